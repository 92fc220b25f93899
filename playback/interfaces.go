package playback

import "context"

// AudioEngine opens recorded audio. One engine instance serves the
// Coordinator and any number of streaming NarrationControllers.
type AudioEngine interface {
	// Open prepares the locator for playback and returns once the handle
	// is ready to play, or fails. It must honour ctx cancellation.
	// Callbacks may fire on any goroutine.
	Open(ctx context.Context, locator string, cb AudioCallbacks) (AudioHandle, error)
}

// AudioHandle controls one opened recording.
type AudioHandle interface {
	Play() error
	Pause() error
	Seek(positionMs int64) error
	Position() int64 // milliseconds
	Duration() int64 // milliseconds, 0 when unknown
	Seekable() bool
	// Close stops sound and releases the handle. Callbacks stop firing.
	Close() error
}

// AudioCallbacks report asynchronous events of an opened recording.
type AudioCallbacks struct {
	OnComplete func()
	OnError    func(err error)
}

// Complete invokes OnComplete if set.
func (cb AudioCallbacks) Complete() {
	if cb.OnComplete != nil {
		cb.OnComplete()
	}
}

// Fail invokes OnError if set.
func (cb AudioCallbacks) Fail(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// Utterance is one line handed to a NarrationEngine.
type Utterance struct {
	Text      string
	LineIndex int
	Speed     float64
}

// NarrationCallbacks report the end of one utterance.
type NarrationCallbacks struct {
	OnDone  func()
	OnError func(err error)
}

// Done invokes OnDone if set.
func (cb NarrationCallbacks) Done() {
	if cb.OnDone != nil {
		cb.OnDone()
	}
}

// Fail invokes OnError if set.
func (cb NarrationCallbacks) Fail(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// NarrationEngine speaks text one utterance at a time.
type NarrationEngine interface {
	// Narrate starts speaking u and returns immediately. Exactly one of
	// the callbacks fires unless the returned Speech is stopped first.
	Narrate(ctx context.Context, u Utterance, cb NarrationCallbacks) (Speech, error)
	Name() string
}

// Speech is an utterance in progress.
type Speech interface {
	// Stop silences the utterance. No callback fires afterwards.
	Stop()
}

// OutputSession is the process-wide audio output. Holders take a
// reference while they may produce sound. Acquire is called on the loop
// and must not wait for a device to open.
type OutputSession interface {
	Acquire() error
	Release()
}

// Queue supplies neighbours for skip next and previous.
type Queue interface {
	Next(current Track) (Track, bool)
	Previous(current Track) (Track, bool)
}
