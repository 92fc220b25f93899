// Package mock provides hand-driven audio and narration engines for
// testing. Nothing completes on its own: tests call Complete, Finish or
// Fail to move playback forward.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/sadhana/recital/playback"
)

// ErrClosed is returned by handle methods after Close.
var ErrClosed = errors.New("mock handle closed")

// AudioEngine implements playback.AudioEngine for testing.
type AudioEngine struct {
	mu sync.Mutex

	// Configuration for new handles
	durationMs int64
	seekable   bool

	// Control for testing
	shouldFail   bool
	failureError error
	hang         bool
	stall        chan struct{}

	// Recorded calls
	opens   []string
	handles []*Handle
}

// NewAudioEngine creates a mock engine whose handles last three minutes
// and are seekable.
func NewAudioEngine() *AudioEngine {
	return &AudioEngine{
		durationMs: 180_000,
		seekable:   true,
	}
}

// Open records the locator and returns a new handle immediately.
func (e *AudioEngine) Open(ctx context.Context, locator string, cb playback.AudioCallbacks) (playback.AudioHandle, error) {
	e.mu.Lock()
	e.opens = append(e.opens, locator)
	if e.shouldFail {
		err := e.failureError
		e.shouldFail = false
		e.mu.Unlock()
		return nil, err
	}
	hang, stall := e.hang, e.stall
	e.mu.Unlock()

	if stall != nil {
		<-stall
		return nil, errors.New("mock engine stalled")
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	h := &Handle{
		locator:    locator,
		cb:         cb,
		durationMs: e.durationMs,
		seekable:   e.seekable,
	}
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
	return h, nil
}

// Test control methods

// SetFailure makes the next Open fail with err.
func (e *AudioEngine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = true
	e.failureError = err
}

// SetHang makes Open block until its context is done.
func (e *AudioEngine) SetHang(hang bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hang = hang
}

// Stall makes Open block, ignoring its context, until Unstall.
func (e *AudioEngine) Stall() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stall = make(chan struct{})
}

// Unstall fails every stalled Open.
func (e *AudioEngine) Unstall() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stall != nil {
		close(e.stall)
		e.stall = nil
	}
}

// SetDuration sets the duration reported by handles opened from now on.
func (e *AudioEngine) SetDuration(ms int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.durationMs = ms
}

// SetSeekable sets whether handles opened from now on can seek.
func (e *AudioEngine) SetSeekable(seekable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seekable = seekable
}

// Opens returns every locator passed to Open, in order.
func (e *AudioEngine) Opens() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.opens))
	copy(out, e.opens)
	return out
}

// GetCallCount returns the number of Open calls.
func (e *AudioEngine) GetCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.opens)
}

// Handles returns every handle opened so far.
func (e *AudioEngine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Handle, len(e.handles))
	copy(out, e.handles)
	return out
}

// Last returns the most recently opened handle, or nil.
func (e *AudioEngine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Handle implements playback.AudioHandle for testing.
type Handle struct {
	mu         sync.Mutex
	locator    string
	cb         playback.AudioCallbacks
	durationMs int64
	seekable   bool

	playing    bool
	closed     bool
	positionMs int64
	playCalls  int
	pauseCalls int
	seeks      []int64
}

// Play implements playback.AudioHandle.
func (h *Handle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.playing = true
	h.playCalls++
	return nil
}

// Pause implements playback.AudioHandle.
func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.playing = false
	h.pauseCalls++
	return nil
}

// Seek implements playback.AudioHandle.
func (h *Handle) Seek(positionMs int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.positionMs = positionMs
	h.seeks = append(h.seeks, positionMs)
	return nil
}

// Position implements playback.AudioHandle.
func (h *Handle) Position() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionMs
}

// Duration implements playback.AudioHandle.
func (h *Handle) Duration() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.durationMs
}

// Seekable implements playback.AudioHandle.
func (h *Handle) Seekable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seekable
}

// Close implements playback.AudioHandle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.playing = false
	return nil
}

// Test control methods

// SetPosition moves the playhead as if audio had played.
func (h *Handle) SetPosition(ms int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.positionMs = ms
}

// Complete reports the natural end of the recording. It fires even after
// Close, like a real callback racing with Close.
func (h *Handle) Complete() {
	h.mu.Lock()
	h.playing = false
	h.mu.Unlock()
	h.cb.Complete()
}

// Fail reports a playback error. It fires even after Close.
func (h *Handle) Fail(err error) {
	h.cb.Fail(err)
}

// Locator returns the locator the handle was opened with.
func (h *Handle) Locator() string {
	return h.locator
}

// IsPlaying reports whether Play was called more recently than Pause.
func (h *Handle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

// IsClosed reports whether Close was called.
func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Seeks returns every position passed to Seek.
func (h *Handle) Seeks() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.seeks))
	copy(out, h.seeks)
	return out
}

// PlayCalls returns the number of Play calls.
func (h *Handle) PlayCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playCalls
}
