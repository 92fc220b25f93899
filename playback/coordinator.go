package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Coordinator owns the single "now playing" recording of the process.
// It is created once by the composition root and shared by every screen
// through Acquire and Release. All methods return immediately; the work
// happens on the loop and results are observed through State and
// Subscribe.
type Coordinator struct {
	loop    *Loop
	engine  AudioEngine
	session OutputSession
	cfg     Config
	state   *Observable[PlaybackState]

	// Owned by the loop.
	sm            *StateMachine
	refs          int
	sessionHeld   bool
	track         *Track
	handle        AudioHandle
	cancel        context.CancelFunc
	openTimer     *time.Timer
	stopTick      func()
	gen           uint64
	positionMs    int64
	durationMs    int64
	seekable      bool
	playWhenReady bool
	err           error
	queue         Queue
	narrations    map[*NarrationController]struct{}
}

// NewCoordinator creates a coordinator. session may be nil when the
// engine manages its own output.
func NewCoordinator(loop *Loop, engine AudioEngine, session OutputSession, cfg Config) *Coordinator {
	defaults := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}

	c := &Coordinator{
		loop:       loop,
		engine:     engine,
		session:    session,
		cfg:        cfg,
		state:      newObservable(loop, PlaybackState{}),
		sm:         NewStateMachine(),
		narrations: make(map[*NarrationController]struct{}),
	}
	c.sm.OnEnter(StatusPlaying, c.startTicker)
	for _, s := range []Status{StatusIdle, StatusLoading, StatusPaused, StatusError} {
		c.sm.OnEnter(s, c.stopTicker)
	}
	return c
}

// Loop returns the loop the coordinator runs on.
func (c *Coordinator) Loop() *Loop {
	return c.loop
}

// State returns the latest snapshot.
func (c *Coordinator) State() PlaybackState {
	return c.state.Get()
}

// Subscribe registers fn for every published snapshot.
func (c *Coordinator) Subscribe(fn func(PlaybackState)) *Subscription {
	return c.state.Subscribe(fn)
}

// Acquire takes a reference on behalf of a surface. The first reference
// acquires the output session.
func (c *Coordinator) Acquire() {
	c.loop.Post(c.acquire)
}

// Release drops a reference. When the last one goes, playback stops and
// the output session is released. Extra releases are ignored.
func (c *Coordinator) Release() {
	c.loop.Post(c.release)
}

// Shutdown stops playback and releases the output session regardless of
// outstanding references.
func (c *Coordinator) Shutdown() {
	c.loop.Post(func() {
		c.refs = 0
		c.teardown()
	})
}

// Play starts t, or toggles it when the same content is already loaded.
func (c *Coordinator) Play(t Track) {
	c.loop.Post(func() { c.play(t) })
}

// TogglePlayPause pauses or resumes the loaded track. After the track
// completed it replays from the start.
func (c *Coordinator) TogglePlayPause() {
	c.loop.Post(c.toggle)
}

// SeekTo moves to positionMs, clamped to the track duration.
func (c *Coordinator) SeekTo(positionMs int64) {
	c.loop.Post(func() { c.seek(positionMs) })
}

// SkipToNext plays the queue's track after the current one.
func (c *Coordinator) SkipToNext() {
	c.loop.Post(func() { c.skip(1) })
}

// SkipToPrevious plays the queue's track before the current one.
func (c *Coordinator) SkipToPrevious() {
	c.loop.Post(func() { c.skip(-1) })
}

// Stop halts playback and unloads the track.
func (c *Coordinator) Stop() {
	c.loop.Post(c.unload)
}

// SetQueue sets the neighbours used by skip and auto advance.
func (c *Coordinator) SetQueue(q Queue) {
	c.loop.Post(func() { c.queue = q })
}

func (c *Coordinator) acquire() {
	c.refs++
	LogPlaybackEvent("coordinator", "acquire", "refs", c.refs)
	if c.refs > 1 || c.sessionHeld || c.session == nil {
		return
	}
	if err := c.session.Acquire(); err != nil {
		c.failWith(NewError(ErrEngineFailure, "coordinator", "acquire output", err))
		return
	}
	c.sessionHeld = true
}

func (c *Coordinator) release() {
	if c.refs == 0 {
		logger.Debug("coordinator release without reference ignored")
		return
	}
	c.refs--
	LogPlaybackEvent("coordinator", "release", "refs", c.refs)
	if c.refs == 0 {
		c.teardown()
	}
}

func (c *Coordinator) teardown() {
	c.unload()
	if c.sessionHeld {
		c.session.Release()
		c.sessionHeld = false
	}
}

func (c *Coordinator) play(t Track) {
	if c.refs == 0 {
		logger.Warn("play requested without a coordinator reference", "content", t.ContentID)
	}

	if c.rejectEmpty(t) {
		return
	}

	if c.track != nil && c.track.SameContent(t) && c.sm.Current() != StatusError {
		c.toggle()
		return
	}

	c.unload()
	c.load(t)
}

func (c *Coordinator) load(t Track) {
	if c.rejectEmpty(t) {
		return
	}
	c.teardownHandle()
	c.silenceNarration()
	gen := c.gen

	tr := t
	c.track = &tr
	c.positionMs = 0
	c.durationMs = t.DurationMs
	c.seekable = false
	c.err = nil
	c.playWhenReady = true
	c.sm.Transition(StatusLoading)
	c.publish()

	LogPlaybackEvent("coordinator", "load", "content", t.ContentID, "source", t.SourceLabel, "locator", t.Locator)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.openTimer = time.AfterFunc(c.cfg.OpenTimeout, func() {
		c.loop.Post(func() { c.openTimedOut(gen) })
	})

	cb := AudioCallbacks{
		OnComplete: func() {
			c.loop.Post(func() { c.completed(gen) })
		},
		OnError: func(err error) {
			c.loop.Post(func() { c.engineFailed(gen, err) })
		},
	}

	locator := t.Locator
	go func() {
		h, err := c.engine.Open(ctx, locator, cb)
		if !c.loop.Post(func() { c.opened(gen, h, err) }) && h != nil {
			_ = h.Close()
		}
	}()
}

// rejectEmpty fails with ErrSourceUnavailable when t has nothing to open.
// The track is dropped so that toggle and skip cannot reload it.
func (c *Coordinator) rejectEmpty(t Track) bool {
	if strings.TrimSpace(t.Locator) != "" {
		return false
	}
	c.unload()
	c.failWith(NewError(ErrSourceUnavailable, "coordinator", "load",
		fmt.Errorf("%s/%s has no locator", t.ContentType, t.ContentID)))
	return true
}

func (c *Coordinator) opened(gen uint64, h AudioHandle, err error) {
	if gen != c.gen {
		if h != nil {
			_ = h.Close()
		}
		return
	}
	c.stopOpenTimer()

	if err == nil && h == nil {
		err = errors.New("engine returned no handle")
	}
	if err != nil {
		c.fail(ErrOpenFailure, "open", err)
		return
	}

	c.handle = h
	if d := h.Duration(); d > 0 {
		c.durationMs = d
	}
	c.seekable = h.Seekable()

	if !c.playWhenReady {
		c.sm.Transition(StatusPaused)
		c.publish()
		return
	}
	if err := h.Play(); err != nil {
		c.fail(ErrEngineFailure, "play", err)
		return
	}
	c.sm.Transition(StatusPlaying)
	c.publish()
}

func (c *Coordinator) openTimedOut(gen uint64) {
	if gen != c.gen || c.sm.Current() != StatusLoading {
		return
	}
	c.fail(ErrOpenFailure, "open", fmt.Errorf("no response within %v", c.cfg.OpenTimeout))
}

func (c *Coordinator) completed(gen uint64) {
	if gen != c.gen {
		return
	}
	c.teardownHandle()
	c.positionMs = 0
	c.sm.Transition(StatusIdle)
	c.publish()
	LogPlaybackEvent("coordinator", "complete", "content", c.track.ContentID)

	if c.cfg.AutoAdvance && c.queue != nil {
		if next, ok := c.queue.Next(*c.track); ok {
			c.unload()
			c.load(next)
		}
	}
}

func (c *Coordinator) engineFailed(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.fail(ErrEngineFailure, "play", err)
}

func (c *Coordinator) toggle() {
	switch c.sm.Current() {
	case StatusIdle, StatusError:
		if c.track != nil {
			c.load(*c.track)
		}
	case StatusLoading:
		c.playWhenReady = !c.playWhenReady
		if c.playWhenReady {
			c.silenceNarration()
		}
	case StatusPlaying:
		c.pause()
	case StatusPaused:
		if c.handle == nil {
			c.load(*c.track)
			return
		}
		c.silenceNarration()
		if err := c.handle.Play(); err != nil {
			c.fail(ErrEngineFailure, "resume", err)
			return
		}
		c.sm.Transition(StatusPlaying)
		c.publish()
	}
}

// pause is a no-op unless a track is playing.
func (c *Coordinator) pause() {
	if c.sm.Current() != StatusPlaying || c.handle == nil {
		return
	}
	if err := c.handle.Pause(); err != nil {
		c.fail(ErrEngineFailure, "pause", err)
		return
	}
	c.positionMs = c.handle.Position()
	c.sm.Transition(StatusPaused)
	c.publish()
}

func (c *Coordinator) seek(positionMs int64) {
	if c.track == nil || c.handle == nil || !c.seekable {
		return
	}
	if s := c.sm.Current(); s != StatusPlaying && s != StatusPaused {
		return
	}

	if c.durationMs > 0 {
		positionMs = clampInt64(positionMs, 0, c.durationMs)
	} else if positionMs < 0 {
		positionMs = 0
	}
	if err := c.handle.Seek(positionMs); err != nil {
		logger.Warn("seek failed", "position", positionMs, "error", err)
		return
	}
	c.positionMs = positionMs
	c.publish()
}

func (c *Coordinator) skip(step int) {
	if c.queue == nil || c.track == nil {
		return
	}
	var (
		next Track
		ok   bool
	)
	if step > 0 {
		next, ok = c.queue.Next(*c.track)
	} else {
		next, ok = c.queue.Previous(*c.track)
	}
	if !ok {
		return
	}
	c.unload()
	c.load(next)
}

func (c *Coordinator) unload() {
	changed := c.track != nil || c.sm.Current() != StatusIdle
	c.teardownHandle()
	c.track = nil
	c.positionMs = 0
	c.durationMs = 0
	c.seekable = false
	c.err = nil
	c.sm.Transition(StatusIdle)
	if changed {
		LogPlaybackEvent("coordinator", "unload")
		c.publish()
	}
}

// attach registers a screen's narration controller. Attached narration is
// paused whenever the coordinator starts or resumes a recording.
func (c *Coordinator) attach(n *NarrationController) {
	c.narrations[n] = struct{}{}
}

func (c *Coordinator) detach(n *NarrationController) {
	delete(c.narrations, n)
}

func (c *Coordinator) silenceNarration() {
	for n := range c.narrations {
		n.silence()
	}
}

func (c *Coordinator) fail(kind error, action string, cause error) {
	e := NewError(kind, "coordinator", action, cause)
	if c.track != nil {
		e.WithLocator(c.track.Locator)
	}
	c.failWith(e)
}

func (c *Coordinator) failWith(e *Error) {
	c.teardownHandle()
	c.err = e
	c.sm.Transition(StatusError)
	LogPlaybackError("coordinator", e)
	c.publish()
}

// teardownHandle invalidates every outstanding callback and closes the
// engine handle.
func (c *Coordinator) teardownHandle() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stopOpenTimer()
	c.stopTicker()
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			logger.Debug("closing audio handle", "error", err)
		}
		c.handle = nil
	}
}

func (c *Coordinator) stopOpenTimer() {
	if c.openTimer != nil {
		c.openTimer.Stop()
		c.openTimer = nil
	}
}

func (c *Coordinator) startTicker() {
	if c.stopTick != nil {
		return
	}
	gen := c.gen
	c.stopTick = c.loop.Every(c.cfg.TickInterval, func() { c.tick(gen) })
}

func (c *Coordinator) stopTicker() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
}

func (c *Coordinator) tick(gen uint64) {
	if gen != c.gen || c.sm.Current() != StatusPlaying || c.handle == nil {
		return
	}
	pos := c.handle.Position()
	if d := c.handle.Duration(); d > 0 {
		c.durationMs = d
	}
	if pos == c.positionMs {
		return
	}
	c.positionMs = pos
	c.publish()
}

func (c *Coordinator) publish() {
	status := c.sm.Current()
	s := PlaybackState{
		Status:          status,
		IsPlaying:       status == StatusPlaying,
		PositionMs:      c.positionMs,
		DurationMs:      c.durationMs,
		ProgressPercent: progressPercent(c.positionMs, c.durationMs),
		Seekable:        c.seekable,
		Err:             c.err,
	}
	if c.track != nil {
		tr := *c.track
		s.CurrentTrack = &tr
	}
	c.state.set(s)
}
