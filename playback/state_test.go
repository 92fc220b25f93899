package playback

import "testing"

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []Status
		want  bool
		final Status
	}{
		{"load and play", []Status{StatusLoading, StatusPlaying}, true, StatusPlaying},
		{"pause and resume", []Status{StatusLoading, StatusPlaying, StatusPaused, StatusPlaying}, true, StatusPlaying},
		{"stop while loading", []Status{StatusLoading, StatusIdle}, true, StatusIdle},
		{"error clears on load", []Status{StatusLoading, StatusError, StatusLoading}, true, StatusLoading},
		{"idle cannot pause", []Status{StatusPaused}, false, StatusIdle},
		{"playing cannot reload", []Status{StatusLoading, StatusPlaying, StatusLoading}, false, StatusPlaying},
		{"same status is a no-op", []Status{StatusIdle}, true, StatusIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			ok := true
			for _, s := range tt.path {
				if !sm.Transition(s) {
					ok = false
					break
				}
			}
			if ok != tt.want {
				t.Errorf("Transition() path ok = %v, want %v", ok, tt.want)
			}
			if sm.Current() != tt.final {
				t.Errorf("Current() = %v, want %v", sm.Current(), tt.final)
			}
		})
	}
}

func TestStateMachineOnEnter(t *testing.T) {
	sm := NewStateMachine()
	entered := 0
	sm.OnEnter(StatusLoading, func() { entered++ })

	sm.Transition(StatusLoading)
	sm.Transition(StatusLoading)

	if entered != 1 {
		t.Errorf("OnEnter called %d times, want 1", entered)
	}
}

func TestStatusString(t *testing.T) {
	want := map[Status]string{
		StatusIdle:    "idle",
		StatusLoading: "loading",
		StatusPlaying: "playing",
		StatusPaused:  "paused",
		StatusError:   "error",
		Status(99):    "unknown",
	}
	for s, w := range want {
		if got := s.String(); got != w {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, w)
		}
	}
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00"},
		{-500, "0:00"},
		{999, "0:00"},
		{61_000, "1:01"},
		{599_000, "9:59"},
		{3_600_000, "1:00:00"},
		{3_725_000, "1:02:05"},
	}

	for _, tt := range tests {
		if got := FormatMs(tt.ms); got != tt.want {
			t.Errorf("FormatMs(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestPlaybackStateProgress(t *testing.T) {
	tests := []struct {
		pos, dur int64
		want     float64
	}{
		{0, 0, 0},
		{500, 0, 0},
		{50, 200, 25},
		{300, 200, 100},
		{-10, 200, 0},
	}

	for _, tt := range tests {
		if got := progressPercent(tt.pos, tt.dur); got != tt.want {
			t.Errorf("progressPercent(%d, %d) = %v, want %v", tt.pos, tt.dur, got, tt.want)
		}
	}

	s := PlaybackState{PositionMs: 65_000, DurationMs: 3_600_000}
	if s.ElapsedText() != "1:05" || s.TotalText() != "1:00:00" {
		t.Errorf("formatted times = %q / %q", s.ElapsedText(), s.TotalText())
	}
	if s.HasTrack() || s.IsTrack("prayer", "1") {
		t.Error("empty state must not report a track")
	}
}
