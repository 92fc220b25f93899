//go:build !nocgo
// +build !nocgo

package output

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// readyTimeout bounds how long the device may take to come up.
const readyTimeout = 5 * time.Second

type otoBackend struct {
	ctx *oto.Context
}

// OpenDevice opens the system audio output with oto. It is the Opener used
// outside tests.
func OpenDevice(sampleRate int, buffer time.Duration) (Backend, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating oto context: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(readyTimeout):
		return nil, fmt.Errorf("audio device not ready after %v", readyTimeout)
	}
	log.Debug("oto context ready", "sample_rate", sampleRate, "buffer", buffer)
	return &otoBackend{ctx: ctx}, nil
}

func (b *otoBackend) NewPlayer(r io.Reader) Player {
	return b.ctx.NewPlayer(r)
}

func (b *otoBackend) Suspend() error {
	return b.ctx.Suspend()
}

func (b *otoBackend) Resume() error {
	return b.ctx.Resume()
}
