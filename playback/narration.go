package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sadhana/recital/playback/lines"
)

// ProgressScale is the upper bound of NarrationState.Progress.
const ProgressScale = 1000

// NarrationState is an immutable snapshot of a NarrationController. Both
// modes publish the same shape; fields a mode has no notion of stay zero.
type NarrationState struct {
	IsStreamingMode bool
	Status          Status
	IsPlaying       bool
	CurrentLine     int
	TotalLines      int
	PositionMs      int64
	DurationMs      int64
	Progress        int // 0 to ProgressScale
	ElapsedText     string
	Speed           float64
	SpeedLabel      string
	Err             error
}

// narrationMode is either streamingMode or synthesizedMode.
type narrationMode interface {
	isNarrationMode()
}

// streamingMode plays a recording of the narration through the audio
// engine. The handle is opened lazily on first play.
type streamingMode struct {
	locator       string
	handle        AudioHandle
	cancel        context.CancelFunc
	openTimer     *time.Timer
	stopTick      func()
	playWhenReady bool
	positionMs    int64
	durationMs    int64
	seekable      bool
}

// synthesizedMode speaks the text line by line. A non-nil speech while
// paused means the current line is still finishing.
type synthesizedMode struct {
	lineIndex int
	speech    Speech
}

func (*streamingMode) isNarrationMode()   {}
func (*synthesizedMode) isNarrationMode() {}

// NarrationController renders one screen's narration. It is created per
// screen and must be released when the screen goes away.
type NarrationController struct {
	loop     *Loop
	audio    AudioEngine
	narrator NarrationEngine
	session  OutputSession
	cfg      Config
	speed    *SpeedController
	state    *Observable[NarrationState]

	// Owned by the loop.
	sm          *StateMachine
	mode        narrationMode
	lines       []string
	gen         uint64
	err         error
	released    bool
	sessionHeld bool
}

// NewNarrationController creates a controller in synthesized mode with no
// text. Either engine may be nil if the corresponding mode is never used.
func NewNarrationController(loop *Loop, audio AudioEngine, narrator NarrationEngine, session OutputSession, cfg Config) *NarrationController {
	defaults := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}

	n := &NarrationController{
		loop:     loop,
		audio:    audio,
		narrator: narrator,
		session:  session,
		cfg:      cfg,
		speed:    NewSpeedController(cfg.DefaultSpeed),
		sm:       NewStateMachine(),
		mode:     &synthesizedMode{},
	}
	n.state = newObservable(loop, n.snapshot())

	loop.Post(n.acquire)
	return n
}

// State returns the latest snapshot.
func (n *NarrationController) State() NarrationState {
	return n.state.Get()
}

// Subscribe registers fn for every published snapshot.
func (n *NarrationController) Subscribe(fn func(NarrationState)) *Subscription {
	return n.state.Subscribe(fn)
}

// SetText replaces the narration text. Playback stops and restarts from
// the first line.
func (n *NarrationController) SetText(fullText string) {
	n.loop.Post(func() { n.setText(fullText) })
}

// SetAudioSource selects the mode: a playable source streams the
// recording, anything else is synthesized from the text.
func (n *NarrationController) SetAudioSource(src AudioSource) {
	n.loop.Post(func() { n.setSource(src) })
}

// Play starts or resumes narration.
func (n *NarrationController) Play() {
	n.loop.Post(n.play)
}

// Pause pauses narration. A synthesized line already sounding finishes.
func (n *NarrationController) Pause() {
	n.loop.Post(n.pause)
}

// TogglePlayPause pauses when playing and plays otherwise.
func (n *NarrationController) TogglePlayPause() {
	n.loop.Post(n.toggle)
}

// Stop halts narration and rewinds to the beginning.
func (n *NarrationController) Stop() {
	n.loop.Post(n.stop)
}

// SeekTo moves a streaming narration to units out of ProgressScale.
// Synthesized narration cannot seek.
func (n *NarrationController) SeekTo(units int) {
	n.loop.Post(func() { n.seek(units) })
}

// CycleSpeed moves to the next synthesized speed preset. The new speed
// applies from the next line.
func (n *NarrationController) CycleSpeed() {
	n.loop.Post(n.cycleSpeed)
}

// Release stops narration and frees the controller's resources. Later
// calls are ignored. Release is idempotent.
func (n *NarrationController) Release() {
	n.loop.Post(n.release)
}

func (n *NarrationController) acquire() {
	if n.released || n.session == nil || n.sessionHeld {
		return
	}
	if err := n.session.Acquire(); err != nil {
		n.failWith(NewError(ErrEngineFailure, "narration", "acquire output", err))
		return
	}
	n.sessionHeld = true
}

func (n *NarrationController) release() {
	if n.released {
		return
	}
	n.stop()
	n.released = true
	if n.sessionHeld {
		n.session.Release()
		n.sessionHeld = false
	}
	LogPlaybackEvent("narration", "release")
}

func (n *NarrationController) usable(action string) bool {
	if n.released {
		logger.Debug("narration call after release ignored", "action", action, "error", ErrReleased)
		return false
	}
	return true
}

func (n *NarrationController) setText(fullText string) {
	if !n.usable("set text") {
		return
	}
	n.stop()
	n.lines = lines.Split(fullText)
	n.publish()
}

func (n *NarrationController) setSource(src AudioSource) {
	if !n.usable("set source") {
		return
	}
	if m, ok := n.mode.(*streamingMode); ok && src.Playable() && m.locator == src.ResolvedLocator {
		return
	}
	if _, ok := n.mode.(*synthesizedMode); ok && !src.Playable() {
		return
	}

	n.stop()
	if src.Playable() {
		n.mode = &streamingMode{locator: src.ResolvedLocator}
	} else {
		n.mode = &synthesizedMode{}
	}
	LogPlaybackEvent("narration", "mode", "streaming", src.Playable(), "source", src.DisplayLabel)
	n.publish()
}

func (n *NarrationController) isPlaying() bool {
	switch m := n.mode.(type) {
	case *streamingMode:
		s := n.sm.Current()
		return s == StatusPlaying || (s == StatusLoading && m.playWhenReady)
	case *synthesizedMode:
		return n.sm.Current() == StatusPlaying
	}
	return false
}

func (n *NarrationController) toggle() {
	if n.isPlaying() {
		n.pause()
		return
	}
	n.play()
}

func (n *NarrationController) play() {
	if !n.usable("play") {
		return
	}
	switch m := n.mode.(type) {
	case *streamingMode:
		n.playStreaming(m)
	case *synthesizedMode:
		n.playSynthesized(m)
	}
}

func (n *NarrationController) pause() {
	if !n.usable("pause") {
		return
	}
	switch m := n.mode.(type) {
	case *streamingMode:
		switch n.sm.Current() {
		case StatusLoading:
			m.playWhenReady = false
			n.publish()
		case StatusPlaying:
			if err := m.handle.Pause(); err != nil {
				n.fail(ErrEngineFailure, "pause", err)
				return
			}
			m.positionMs = m.handle.Position()
			n.stopTicker(m)
			n.sm.Transition(StatusPaused)
			n.publish()
		}
	case *synthesizedMode:
		if n.sm.Current() == StatusPlaying {
			// The sounding line finishes; the next one is not started.
			n.sm.Transition(StatusPaused)
			n.publish()
		}
	}
}

// silence pauses playing narration because another engine is taking the
// output. Unlike pause, a sounding line is cut and repeated on resume.
func (n *NarrationController) silence() {
	if n.released || !n.isPlaying() {
		return
	}
	if m, ok := n.mode.(*synthesizedMode); ok && m.speech != nil {
		n.gen++
		m.speech.Stop()
		m.speech = nil
	}
	LogPlaybackEvent("narration", "silenced")
	n.pause()
}

func (n *NarrationController) stop() {
	n.gen++
	switch m := n.mode.(type) {
	case *streamingMode:
		n.closeStreaming(m)
		m.positionMs = 0
	case *synthesizedMode:
		if m.speech != nil {
			m.speech.Stop()
			m.speech = nil
		}
		m.lineIndex = 0
	}
	changed := n.sm.Current() != StatusIdle || n.err != nil
	n.err = nil
	n.sm.Transition(StatusIdle)
	if changed {
		n.publish()
	}
}

func (n *NarrationController) seek(units int) {
	if !n.usable("seek") {
		return
	}
	m, ok := n.mode.(*streamingMode)
	if !ok || m.handle == nil || !m.seekable || m.durationMs <= 0 {
		return
	}
	units = int(clampInt64(int64(units), 0, ProgressScale))
	pos := m.durationMs * int64(units) / ProgressScale
	if err := m.handle.Seek(pos); err != nil {
		logger.Warn("narration seek failed", "position", pos, "error", err)
		return
	}
	m.positionMs = pos
	n.publish()
}

func (n *NarrationController) cycleSpeed() {
	if !n.usable("cycle speed") {
		return
	}
	if _, ok := n.mode.(*synthesizedMode); !ok {
		return
	}
	speed := n.speed.Cycle()
	LogPlaybackEvent("narration", "speed", "speed", speed)
	n.publish()
}

// Streaming mode.

func (n *NarrationController) playStreaming(m *streamingMode) {
	switch n.sm.Current() {
	case StatusIdle, StatusError:
		n.openStreaming(m)
	case StatusLoading:
		m.playWhenReady = true
		n.publish()
	case StatusPaused:
		if err := m.handle.Play(); err != nil {
			n.fail(ErrEngineFailure, "resume", err)
			return
		}
		n.sm.Transition(StatusPlaying)
		n.startTicker(m)
		n.publish()
	}
}

func (n *NarrationController) openStreaming(m *streamingMode) {
	if n.audio == nil {
		n.fail(ErrOpenFailure, "open", errors.New("no audio engine configured"))
		return
	}
	n.gen++
	gen := n.gen
	n.err = nil
	m.playWhenReady = true
	n.sm.Transition(StatusLoading)
	n.publish()

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.OpenTimeout)
	m.cancel = cancel
	// The engine may ignore ctx.
	m.openTimer = time.AfterFunc(n.cfg.OpenTimeout, func() {
		n.loop.Post(func() { n.streamOpenTimedOut(gen) })
	})
	cb := AudioCallbacks{
		OnComplete: func() {
			n.loop.Post(func() { n.streamCompleted(gen) })
		},
		OnError: func(err error) {
			n.loop.Post(func() { n.streamFailed(gen, ErrEngineFailure, err) })
		},
	}

	locator := m.locator
	go func() {
		h, err := n.audio.Open(ctx, locator, cb)
		if !n.loop.Post(func() { n.streamOpened(gen, h, err) }) && h != nil {
			_ = h.Close()
		}
	}()
}

func (n *NarrationController) streamOpened(gen uint64, h AudioHandle, err error) {
	m, ok := n.mode.(*streamingMode)
	if gen != n.gen || !ok || n.released {
		if h != nil {
			_ = h.Close()
		}
		return
	}
	stopOpenTimer(m)
	if err == nil && h == nil {
		err = errors.New("engine returned no handle")
	}
	if err != nil {
		n.fail(ErrOpenFailure, "open", err)
		return
	}

	m.handle = h
	m.durationMs = h.Duration()
	m.seekable = h.Seekable()
	if m.positionMs > 0 && m.seekable {
		_ = h.Seek(m.positionMs)
	}

	if !m.playWhenReady {
		n.sm.Transition(StatusPaused)
		n.publish()
		return
	}
	if err := h.Play(); err != nil {
		n.fail(ErrEngineFailure, "play", err)
		return
	}
	n.sm.Transition(StatusPlaying)
	n.startTicker(m)
	n.publish()
}

func (n *NarrationController) streamOpenTimedOut(gen uint64) {
	if _, ok := n.mode.(*streamingMode); gen != n.gen || !ok || n.sm.Current() != StatusLoading {
		return
	}
	n.fail(ErrOpenFailure, "open", fmt.Errorf("no response within %v", n.cfg.OpenTimeout))
}

func (n *NarrationController) streamCompleted(gen uint64) {
	m, ok := n.mode.(*streamingMode)
	if gen != n.gen || !ok {
		return
	}
	n.gen++
	n.closeStreaming(m)
	m.positionMs = 0
	n.sm.Transition(StatusIdle)
	n.publish()
	LogPlaybackEvent("narration", "complete", "streaming", true)
}

func (n *NarrationController) streamFailed(gen uint64, kind, err error) {
	if gen != n.gen {
		return
	}
	n.fail(kind, "play", err)
}

func (n *NarrationController) closeStreaming(m *streamingMode) {
	n.stopTicker(m)
	stopOpenTimer(m)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.handle != nil {
		if err := m.handle.Close(); err != nil {
			logger.Debug("closing narration handle", "error", err)
		}
		m.handle = nil
	}
	m.seekable = false
}

func stopOpenTimer(m *streamingMode) {
	if m.openTimer != nil {
		m.openTimer.Stop()
		m.openTimer = nil
	}
}

func (n *NarrationController) startTicker(m *streamingMode) {
	if m.stopTick != nil {
		return
	}
	gen := n.gen
	m.stopTick = n.loop.Every(n.cfg.TickInterval, func() {
		if gen != n.gen || n.mode != narrationMode(m) || m.handle == nil || n.sm.Current() != StatusPlaying {
			return
		}
		if pos := m.handle.Position(); pos != m.positionMs {
			m.positionMs = pos
			n.publish()
		}
	})
}

func (n *NarrationController) stopTicker(m *streamingMode) {
	if m.stopTick != nil {
		m.stopTick()
		m.stopTick = nil
	}
}

// Synthesized mode.

func (n *NarrationController) playSynthesized(m *synthesizedMode) {
	switch n.sm.Current() {
	case StatusPlaying:
		return
	case StatusPaused:
		if m.speech != nil {
			// Resumed before the line finished: carry on from its end.
			n.sm.Transition(StatusPlaying)
			n.publish()
			return
		}
	}

	if len(n.lines) == 0 {
		n.failWith(NewError(ErrSourceUnavailable, "narration", "play", errors.New("no narration text")))
		return
	}
	if n.narrator == nil {
		n.fail(ErrEngineFailure, "play", errors.New("no narration engine configured"))
		return
	}
	if m.lineIndex >= len(n.lines) {
		m.lineIndex = 0
	}
	n.err = nil
	n.speakLine(m, m.lineIndex)
}

func (n *NarrationController) speakLine(m *synthesizedMode, index int) {
	n.gen++
	gen := n.gen
	m.lineIndex = index

	u := Utterance{
		Text:      n.lines[index],
		LineIndex: index,
		Speed:     n.speed.Speed(),
	}
	cb := NarrationCallbacks{
		OnDone: func() {
			n.loop.Post(func() { n.lineDone(gen) })
		},
		OnError: func(err error) {
			n.loop.Post(func() { n.lineFailed(gen, err) })
		},
	}

	speech, err := n.narrator.Narrate(context.Background(), u, cb)
	if err != nil {
		n.fail(ErrEngineFailure, "narrate", err)
		return
	}
	m.speech = speech
	n.sm.Transition(StatusPlaying)
	n.publish()
}

func (n *NarrationController) lineDone(gen uint64) {
	m, ok := n.mode.(*synthesizedMode)
	if gen != n.gen || !ok {
		return
	}
	m.speech = nil

	next := m.lineIndex + 1
	if next >= len(n.lines) {
		n.gen++
		m.lineIndex = 0
		n.sm.Transition(StatusIdle)
		n.publish()
		LogPlaybackEvent("narration", "complete", "streaming", false)
		return
	}

	if n.sm.Current() == StatusPaused {
		m.lineIndex = next
		n.publish()
		return
	}
	n.speakLine(m, next)
}

func (n *NarrationController) lineFailed(gen uint64, err error) {
	m, ok := n.mode.(*synthesizedMode)
	if gen != n.gen || !ok {
		return
	}
	m.speech = nil
	n.fail(ErrEngineFailure, "narrate", fmt.Errorf("line %d: %w", m.lineIndex, err))
}

func (n *NarrationController) fail(kind error, action string, cause error) {
	e := NewError(kind, "narration", action, cause)
	if m, ok := n.mode.(*streamingMode); ok {
		e.WithLocator(m.locator)
	}
	n.failWith(e)
}

func (n *NarrationController) failWith(e *Error) {
	n.gen++
	switch m := n.mode.(type) {
	case *streamingMode:
		n.closeStreaming(m)
	case *synthesizedMode:
		if m.speech != nil {
			m.speech.Stop()
			m.speech = nil
		}
	}
	n.err = e
	n.sm.Transition(StatusError)
	LogPlaybackError("narration", e)
	n.publish()
}

func (n *NarrationController) snapshot() NarrationState {
	status := n.sm.Current()
	s := NarrationState{
		Status:     status,
		TotalLines: len(n.lines),
		Speed:      n.speed.Speed(),
		SpeedLabel: n.speed.Label(),
		Err:        n.err,
	}

	switch m := n.mode.(type) {
	case *streamingMode:
		s.IsStreamingMode = true
		s.IsPlaying = n.isPlaying()
		s.PositionMs = m.positionMs
		s.DurationMs = m.durationMs
		if m.durationMs > 0 {
			s.Progress = int(clampInt64(m.positionMs*ProgressScale/m.durationMs, 0, ProgressScale))
		}
		s.ElapsedText = FormatMs(m.positionMs)
	case *synthesizedMode:
		s.IsPlaying = status == StatusPlaying
		s.CurrentLine = m.lineIndex
		if len(n.lines) > 0 {
			s.Progress = m.lineIndex * ProgressScale / len(n.lines)
			s.ElapsedText = fmt.Sprintf("%d/%d", m.lineIndex+1, len(n.lines))
		}
	}
	return s
}

func (n *NarrationController) publish() {
	n.state.set(n.snapshot())
}
