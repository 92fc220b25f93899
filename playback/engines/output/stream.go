package output

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// drainPoll is how often a playing stream checks whether it has finished.
const drainPoll = 20 * time.Millisecond

// ErrStreamClosed is returned by Stream methods after Close.
var ErrStreamClosed = errors.New("output stream closed")

// Stream is one decoded source bound to an output voice. It starts paused.
// Its methods match playback.AudioHandle.
type Stream struct {
	player Player
	reader *pcmReader
	format beep.Format
	onEnd  func(error)
	done   chan struct{}

	mu       sync.Mutex
	paused   bool
	watching bool
	closed   bool
}

// Play starts or resumes sound.
func (s *Stream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.paused = false
	s.player.Play()
	if !s.watching {
		s.watching = true
		go s.watch()
	}
	return nil
}

// Pause halts sound, keeping the position.
func (s *Stream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.paused = true
	s.player.Pause()
	return nil
}

// Seek moves to positionMs, clamped to the stream.
func (s *Stream) Seek(positionMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if !s.seekable() {
		return errors.New("output: stream is not seekable")
	}
	if positionMs < 0 {
		positionMs = 0
	}
	rate := s.reader.outRate
	offset := int64(rate.N(time.Duration(positionMs)*time.Millisecond)) * BytesPerFrame
	_, err := s.player.Seek(offset, io.SeekStart)
	return err
}

// Position returns the audible position in milliseconds.
func (s *Stream) Position() int64 {
	pos := s.format.SampleRate.D(s.reader.position())
	buffered := s.reader.outRate.D(s.player.BufferedSize() / BytesPerFrame)
	ms := (pos - buffered).Milliseconds()
	if ms < 0 {
		return 0
	}
	if d := s.Duration(); d > 0 && ms > d {
		return d
	}
	return ms
}

// Duration returns the stream length in milliseconds, 0 when unknown.
func (s *Stream) Duration() int64 {
	return s.format.SampleRate.D(s.reader.length()).Milliseconds()
}

// Seekable reports whether Seek can move the stream.
func (s *Stream) Seekable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekable()
}

func (s *Stream) seekable() bool {
	_, ok := s.reader.src.(beep.StreamSeeker)
	return ok
}

// Close silences the stream and releases its source. onEnd is not called
// afterwards.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	err := s.player.Close()
	if cerr := s.reader.close(); err == nil {
		err = cerr
	}
	return err
}

// watch reports the end of the stream once its source is exhausted and
// the player has drained.
func (s *Stream) watch() {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		eof, err := s.reader.ended()
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if s.paused || !eof || s.player.IsPlaying() {
			s.mu.Unlock()
			continue
		}
		s.watching = false
		if s.onEnd != nil {
			// Held so Close cannot interleave; onEnd must not call back
			// into the stream.
			s.onEnd(err)
		}
		s.mu.Unlock()
		return
	}
}
