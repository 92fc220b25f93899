package playback

// Status represents where a playback component is in its lifecycle.
type Status int

const (
	// StatusIdle indicates nothing is playing.
	StatusIdle Status = iota
	// StatusLoading indicates a source is being opened.
	StatusLoading
	// StatusPlaying indicates audio is sounding.
	StatusPlaying
	// StatusPaused indicates playback is suspended and can resume.
	StatusPaused
	// StatusError indicates the last operation failed.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StateMachine guards status transitions. It is not safe for concurrent
// use; its owner only touches it from the loop.
type StateMachine struct {
	current     Status
	transitions map[Status][]Status
	onEnter     map[Status]func()
}

// NewStateMachine creates a state machine starting in StatusIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StatusIdle,
		transitions: map[Status][]Status{
			StatusIdle:    {StatusLoading, StatusPlaying, StatusError},
			StatusLoading: {StatusPlaying, StatusPaused, StatusIdle, StatusError},
			StatusPlaying: {StatusPaused, StatusIdle, StatusError},
			StatusPaused:  {StatusPlaying, StatusLoading, StatusIdle, StatusError},
			StatusError:   {StatusIdle, StatusLoading, StatusPlaying},
		},
		onEnter: make(map[Status]func()),
	}
}

// Can reports whether moving to the given status is allowed.
func (sm *StateMachine) Can(to Status) bool {
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition attempts to move to the given status. Moving to the current
// status is a successful no-op.
func (sm *StateMachine) Transition(to Status) bool {
	if sm.current == to {
		return true
	}
	if !sm.Can(to) {
		return false
	}

	sm.current = to

	if fn, ok := sm.onEnter[to]; ok && fn != nil {
		fn()
	}
	return true
}

// Current returns the current status.
func (sm *StateMachine) Current() Status {
	return sm.current
}

// OnEnter registers a callback for entering a status.
func (sm *StateMachine) OnEnter(s Status, fn func()) {
	sm.onEnter[s] = fn
}

// PlaybackState is an immutable snapshot of the Coordinator.
type PlaybackState struct {
	Status          Status
	CurrentTrack    *Track // nil when nothing is loaded
	IsPlaying       bool
	PositionMs      int64
	DurationMs      int64
	ProgressPercent float64 // 0 to 100
	Seekable        bool
	Err             error // set when Status is StatusError
}

// HasTrack reports whether a track is loaded.
func (s PlaybackState) HasTrack() bool {
	return s.CurrentTrack != nil
}

// IsTrack reports whether the loaded track renders the given content.
func (s PlaybackState) IsTrack(contentType, contentID string) bool {
	return s.CurrentTrack != nil &&
		s.CurrentTrack.ContentType == contentType &&
		s.CurrentTrack.ContentID == contentID
}

// ElapsedText returns the formatted position.
func (s PlaybackState) ElapsedText() string {
	return FormatMs(s.PositionMs)
}

// TotalText returns the formatted duration.
func (s PlaybackState) TotalText() string {
	return FormatMs(s.DurationMs)
}

func progressPercent(position, duration int64) float64 {
	if duration <= 0 {
		return 0
	}
	p := float64(position) / float64(duration) * 100
	return clampFloat(p, 0, 100)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
