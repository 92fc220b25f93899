package output

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// Renderer produces the audio of one utterance. It must honour ctx.
type Renderer func(ctx context.Context) (beep.Streamer, beep.Format, error)

// Speech is an utterance being rendered or played.
type Speech struct {
	cancel context.CancelFunc
	ended  atomic.Bool

	mu     sync.Mutex
	stream *Stream
}

// Speak renders and plays one utterance in the background. onEnd is called
// once with nil when the audio has played out, or with the render or
// playback error. It is never called once Stop has returned.
func (s *Session) Speak(ctx context.Context, render Renderer, onEnd func(error)) *Speech {
	ctx, cancel := context.WithCancel(ctx)
	sp := &Speech{cancel: cancel}
	go sp.run(ctx, s, render, onEnd)
	return sp
}

func (sp *Speech) run(ctx context.Context, s *Session, render Renderer, onEnd func(error)) {
	src, format, err := render(ctx)
	if err != nil {
		closeStreamer(src)
		sp.end(onEnd, err)
		return
	}

	st, err := s.Play(src, format, func(err error) {
		sp.end(onEnd, err)
		go sp.closeStream()
	})
	if err != nil {
		closeStreamer(src)
		sp.end(onEnd, err)
		return
	}

	sp.mu.Lock()
	sp.stream = st
	sp.mu.Unlock()

	if sp.ended.Load() {
		_ = st.Close()
		return
	}
	if err := st.Play(); err != nil {
		sp.end(onEnd, err)
	}
}

func (sp *Speech) end(onEnd func(error), err error) {
	if !sp.ended.CompareAndSwap(false, true) {
		return
	}
	sp.cancel()
	if onEnd != nil {
		onEnd(err)
	}
}

func (sp *Speech) closeStream() {
	sp.mu.Lock()
	st := sp.stream
	sp.mu.Unlock()
	if st != nil {
		_ = st.Close()
	}
}

// Stop silences the utterance. No callback fires afterwards.
func (sp *Speech) Stop() {
	if sp.ended.CompareAndSwap(false, true) {
		sp.cancel()
	}
	// Close waits out a completion callback already in flight.
	sp.closeStream()
}

// Stopped reports whether the speech has ended or been stopped.
func (sp *Speech) Stopped() bool {
	return sp.ended.Load()
}

func closeStreamer(src beep.Streamer) {
	if c, ok := src.(beep.StreamCloser); ok {
		_ = c.Close()
	}
}
