// Package output owns the process-wide audio output and plays decoded
// beep streams through it. Only one output context may exist per process,
// so recordings and synthesized narration share a single Session.
package output

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
)

const (
	// Channels is the channel count of the output; sources are upmixed.
	Channels = 2
	// BytesPerFrame is one stereo frame of signed 16-bit samples.
	BytesPerFrame = Channels * 2

	// DefaultSampleRate is the output rate when none is configured.
	DefaultSampleRate = 44100
	// DefaultBuffer is the output buffer length.
	DefaultBuffer = 80 * time.Millisecond
)

// ErrNotAcquired is returned by Play before the first Acquire.
var ErrNotAcquired = errors.New("output session not acquired")

// Player is one voice of the output. *oto.Player satisfies it.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	Seek(offset int64, whence int) (int64, error)
	BufferedSize() int
	Close() error
}

// Backend is an opened output device.
type Backend interface {
	NewPlayer(r io.Reader) Player
	Suspend() error
	Resume() error
}

// Opener opens the output device. It is called at most once per Session.
type Opener func(sampleRate int, buffer time.Duration) (Backend, error)

// Session reference-counts the output device. The device is opened in the
// background after the first Acquire, suspended when the last reference is
// released and resumed by the next Acquire.
type Session struct {
	open       Opener
	sampleRate int
	buffer     time.Duration

	mu        sync.Mutex
	backend   Backend
	opening   chan struct{} // closed when the pending open finishes
	openErr   error
	refs      int
	suspended bool
}

// NewSession creates a session that opens its device with open. A zero
// sampleRate selects DefaultSampleRate.
func NewSession(sampleRate int, open Opener) *Session {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Session{
		open:       open,
		sampleRate: sampleRate,
		buffer:     DefaultBuffer,
	}
}

// Acquire takes a reference. It never waits for the device: the first
// Acquire, or the first one after a failed open, starts opening it and Play
// waits for the result. A suspended device is resumed.
func (s *Session) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.backend == nil && s.opening == nil:
		s.opening = make(chan struct{})
		s.openErr = nil
		go s.openDevice(s.opening)
	case s.suspended:
		if err := s.backend.Resume(); err != nil {
			return fmt.Errorf("resuming audio output: %w", err)
		}
		s.suspended = false
	}
	s.refs++
	return nil
}

func (s *Session) openDevice(done chan struct{}) {
	b, err := s.open(s.sampleRate, s.buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)

	s.opening = nil
	if err != nil {
		s.openErr = fmt.Errorf("opening audio output: %w", err)
		log.Warn("audio output unavailable", "error", err)
		return
	}
	s.backend = b
	log.Debug("audio output opened", "sample_rate", s.sampleRate, "buffer", s.buffer)
	if s.refs > 0 {
		return
	}
	if err := b.Suspend(); err != nil {
		log.Warn("suspending audio output", "error", err)
		return
	}
	s.suspended = true
}

// Wait blocks until a pending device open finishes and returns the error
// of the last open, if it failed.
func (s *Session) Wait() error {
	s.mu.Lock()
	opening := s.opening
	s.mu.Unlock()
	if opening != nil {
		<-opening
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openErr
}

// Release drops a reference. Extra releases are ignored.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs > 0 || s.backend == nil {
		return
	}
	if err := s.backend.Suspend(); err != nil {
		log.Warn("suspending audio output", "error", err)
		return
	}
	s.suspended = true
}

// Refs returns the number of outstanding references.
func (s *Session) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// SampleRate returns the output sample rate.
func (s *Session) SampleRate() beep.SampleRate {
	return beep.SampleRate(s.sampleRate)
}

// Play binds src to a new paused voice, waiting for the device if it is
// still opening. onEnd is called once when src is exhausted and its audio
// has drained, with src's error if it failed. It is never called after
// Close and must not call back into the stream.
func (s *Session) Play(src beep.Streamer, format beep.Format, onEnd func(error)) (*Stream, error) {
	if err := s.Wait(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	backend := s.backend
	s.mu.Unlock()
	if backend == nil {
		return nil, ErrNotAcquired
	}

	r := newPCMReader(src, format.SampleRate, s.SampleRate())
	st := &Stream{
		reader: r,
		format: format,
		onEnd:  onEnd,
		done:   make(chan struct{}),
	}
	st.player = backend.NewPlayer(r)
	return st, nil
}
