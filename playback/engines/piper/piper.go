// Package piper narrates text with the Piper neural speech synthesizer,
// running a fresh process per line.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"

	"github.com/sadhana/recital/internal/cache"
	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/playback/engines/output"
)

const (
	// Name identifies the engine in logs and cache keys.
	Name = "piper"

	maxTextSize  = 5000
	maxAudioSize = 10 * 1024 * 1024

	// interruptGrace is how long piper gets to exit after an interrupt
	// before it is killed.
	interruptGrace = 100 * time.Millisecond
)

// ErrEmptyText is returned for utterances with nothing to say.
var ErrEmptyText = errors.New("text cannot be empty")

// Engine implements playback.NarrationEngine.
type Engine struct {
	session *output.Session
	cfg     playback.PiperConfig
	cache   *cache.Manager
}

// New creates a piper engine. lines may be nil to disable caching.
func New(session *output.Session, cfg playback.PiperConfig, lines *cache.Manager) *Engine {
	return &Engine{session: session, cfg: cfg, cache: lines}
}

// Name implements playback.NarrationEngine.
func (e *Engine) Name() string { return Name }

// Narrate implements playback.NarrationEngine.
func (e *Engine) Narrate(ctx context.Context, u playback.Utterance, cb playback.NarrationCallbacks) (playback.Speech, error) {
	if strings.TrimSpace(u.Text) == "" {
		return nil, ErrEmptyText
	}
	render := func(ctx context.Context) (beep.Streamer, beep.Format, error) {
		pcm, err := e.Synthesize(ctx, u.Text, u.Speed)
		if err != nil {
			return nil, beep.Format{}, err
		}
		src, format := output.NewRawPCM(pcm, e.cfg.SampleRate)
		return src, format, nil
	}
	return e.session.Speak(ctx, render, func(err error) {
		if err != nil {
			cb.Fail(err)
			return
		}
		cb.Done()
	}), nil
}

// Synthesize returns raw 16-bit mono PCM for text at speed.
func (e *Engine) Synthesize(ctx context.Context, text string, speed float64) ([]byte, error) {
	key := cache.Key{Engine: Name, Voice: e.voice(), Text: text, Speed: speed}
	if e.cache != nil {
		if audio, ok := e.cache.Get(key); ok {
			return audio, nil
		}
	}

	if len(text) > maxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(text), maxTextSize)
	}

	audio, err := e.run(ctx, text, speed)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(key, audio); err != nil {
			log.Debug("caching piper line", "error", err)
		}
	}
	return audio, nil
}

func (e *Engine) run(ctx context.Context, text string, speed float64) ([]byte, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.cfg.Binary, e.args(speed)...)
	// Stdin is set before start; piper reads it as soon as it launches.
	cmd.Stdin = strings.NewReader(text)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = interruptGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("piper synthesis: %w", ctx.Err())
		}
		return nil, fmt.Errorf("piper failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	audio := stdout.Bytes()
	switch {
	case len(audio) == 0:
		return nil, fmt.Errorf("piper produced no audio output, stderr: %s", strings.TrimSpace(stderr.String()))
	case len(audio) > maxAudioSize:
		return nil, fmt.Errorf("piper output too large: %d bytes (max %d)", len(audio), maxAudioSize)
	}
	log.Debug("piper synthesized", "chars", len(text), "bytes", len(audio), "took", time.Since(start))
	return audio, nil
}

func (e *Engine) args(speed float64) []string {
	args := []string{
		"--model", e.model(),
		"--output-raw",
		"--length-scale", strconv.FormatFloat(playback.PiperLengthScale(speed), 'f', 2, 64),
	}
	if e.cfg.SpeakerID > 0 {
		args = append(args, "--speaker", strconv.Itoa(e.cfg.SpeakerID))
	}
	return args
}

func (e *Engine) model() string {
	if e.cfg.ModelPath != "" {
		return e.cfg.ModelPath
	}
	return e.cfg.Model
}

func (e *Engine) voice() string {
	return e.model() + "#" + strconv.Itoa(e.cfg.SpeakerID)
}

// Validate checks that the binary can be found and the model exists.
func (e *Engine) Validate() error {
	if _, err := exec.LookPath(e.cfg.Binary); err != nil {
		return fmt.Errorf("piper not found: %w", err)
	}
	if e.cfg.ModelPath != "" {
		if _, err := os.Stat(e.cfg.ModelPath); err != nil {
			return fmt.Errorf("model file not accessible: %w", err)
		}
	}
	return nil
}
