package mock

import (
	"context"
	"sync"

	"github.com/sadhana/recital/playback"
)

// NarrationEngine implements playback.NarrationEngine for testing.
type NarrationEngine struct {
	mu sync.Mutex

	shouldFail   bool
	failureError error

	speeches []*Speech
}

// NewNarrationEngine creates a mock narration engine.
func NewNarrationEngine() *NarrationEngine {
	return &NarrationEngine{}
}

// Name implements playback.NarrationEngine.
func (e *NarrationEngine) Name() string {
	return "mock"
}

// Narrate records the utterance and returns a speech that stays in
// progress until Finish, Fail or Stop.
func (e *NarrationEngine) Narrate(_ context.Context, u playback.Utterance, cb playback.NarrationCallbacks) (playback.Speech, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shouldFail {
		e.shouldFail = false
		return nil, e.failureError
	}
	s := &Speech{Utterance: u, cb: cb}
	e.speeches = append(e.speeches, s)
	return s, nil
}

// SetFailure makes the next Narrate call fail with err.
func (e *NarrationEngine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = true
	e.failureError = err
}

// GetCallCount returns the number of successful Narrate calls.
func (e *NarrationEngine) GetCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.speeches)
}

// Speeches returns every speech started so far.
func (e *NarrationEngine) Speeches() []*Speech {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Speech, len(e.speeches))
	copy(out, e.speeches)
	return out
}

// Last returns the most recent speech, or nil.
func (e *NarrationEngine) Last() *Speech {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.speeches) == 0 {
		return nil
	}
	return e.speeches[len(e.speeches)-1]
}

// Speech implements playback.Speech for testing.
type Speech struct {
	Utterance playback.Utterance

	mu      sync.Mutex
	cb      playback.NarrationCallbacks
	stopped bool
	ended   bool
}

// Stop implements playback.Speech.
func (s *Speech) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Finish ends the utterance successfully.
func (s *Speech) Finish() {
	if s.end() {
		s.cb.Done()
	}
}

// Fail ends the utterance with err.
func (s *Speech) Fail(err error) {
	if s.end() {
		s.cb.Fail(err)
	}
}

// IsStopped reports whether Stop was called.
func (s *Speech) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Speech) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.ended {
		return false
	}
	s.ended = true
	return true
}

// OutputSession implements playback.OutputSession and counts references.
type OutputSession struct {
	mu       sync.Mutex
	refs     int
	acquires int
	err      error
}

// NewOutputSession creates a mock output session.
func NewOutputSession() *OutputSession {
	return &OutputSession{}
}

// Acquire implements playback.OutputSession.
func (o *OutputSession) Acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.refs++
	o.acquires++
	return nil
}

// Release implements playback.OutputSession.
func (o *OutputSession) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.refs > 0 {
		o.refs--
	}
}

// SetFailure makes Acquire fail with err until cleared with nil.
func (o *OutputSession) SetFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Refs returns the references currently held.
func (o *OutputSession) Refs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refs
}

// Acquires returns the number of successful Acquire calls.
func (o *OutputSession) Acquires() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acquires
}
