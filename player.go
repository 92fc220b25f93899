package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/sadhana/recital/internal/cache"
	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/playback/engines/gtts"
	"github.com/sadhana/recital/playback/engines/output"
	"github.com/sadhana/recital/playback/engines/piper"
	"github.com/sadhana/recital/playback/engines/stream"
)

// player is the composition root: one loop, one output session, one
// coordinator shared by every screen.
type player struct {
	cfg     playback.Config
	loop    *playback.Loop
	session *output.Session
	audio   *stream.Engine
	voice   playback.NarrationEngine // nil when narration is off
	lines   *cache.Manager           // nil when the line cache is off
	coord   *playback.Coordinator
}

func newPlayer(cfg playback.Config, silent bool) (*player, error) {
	open := output.OpenDevice
	if silent {
		open = (&output.SilentBackend{Realtime: true}).Open
	}

	p := &player{
		cfg:     cfg,
		loop:    playback.NewLoop(),
		session: output.NewSession(output.DefaultSampleRate, open),
	}
	p.audio = stream.New(p.session, cfg.Stream)

	if cfg.Cache.Enabled && cfg.Narrator != "none" {
		lines, err := cache.New(cache.Config{
			MemoryCapacity:   int64(cfg.Cache.MemoryMB) << 20,
			DiskCapacity:     int64(cfg.Cache.DiskMB) << 20,
			Dir:              cfg.Cache.Dir,
			TTL:              cfg.Cache.TTL,
			CompressionLevel: cache.DefaultConfig().CompressionLevel,
		})
		if err != nil {
			p.loop.Close()
			return nil, fmt.Errorf("unable to open line cache: %w", err)
		}
		p.lines = lines
	}

	switch cfg.Narrator {
	case piper.Name:
		engine := piper.New(p.session, cfg.Piper, p.lines)
		if err := engine.Validate(); err != nil {
			log.Warn("piper is not usable, reading will fail", "err", err)
		}
		p.voice = engine
	case gtts.Name:
		p.voice = gtts.New(p.session, cfg.Google, p.lines)
	}

	p.coord = playback.NewCoordinator(p.loop, p.audio, p.session, cfg)
	return p, nil
}

// policy creates the TargetPolicy and NarrationController of one screen.
func (p *player) policy() (*playback.TargetPolicy, error) {
	narration := playback.NewNarrationController(p.loop, p.audio, p.voice, p.session, p.cfg)
	policy, err := playback.NewTargetPolicy(p.coord, narration, p.cfg)
	if err != nil {
		narration.Release()
		return nil, err
	}
	return policy, nil
}

func (p *player) Close() error {
	p.coord.Shutdown()
	p.loop.Close()
	if p.lines != nil {
		if err := p.lines.Close(); err != nil {
			return fmt.Errorf("unable to close line cache: %w", err)
		}
	}
	return nil
}
