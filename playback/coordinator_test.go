package playback_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sadhana/recital/playback"
)

func TestCoordinatorPlay(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	st := h.waitStatus(t, playback.StatusPlaying)

	if !st.IsPlaying || st.CurrentTrack == nil || st.CurrentTrack.ContentID != "a" {
		t.Fatalf("state = %+v, want playing track a", st)
	}
	if st.DurationMs != 180_000 || !st.Seekable {
		t.Errorf("DurationMs = %d Seekable = %v, want handle values", st.DurationMs, st.Seekable)
	}
	if got := h.audio.Opens(); len(got) != 1 || got[0] != "https://cdn.example.org/a.mp3" {
		t.Errorf("Opens() = %v", got)
	}
	if h.session.Refs() != 1 {
		t.Errorf("session refs = %d, want 1", h.session.Refs())
	}
}

func TestCoordinatorPlaySameContentToggles(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	a := track("a", "https://cdn.example.org/a.mp3")
	h.coord.Play(a)
	h.waitStatus(t, playback.StatusPlaying)
	handle := h.waitOpens(t, 1)

	// A rebuilt track for the same content carries a new ID.
	again := a
	again.ID = "t-a-2"
	h.coord.Play(again)
	st := h.waitStatus(t, playback.StatusPaused)
	if st.IsPlaying || handle.IsPlaying() {
		t.Error("second Play() did not pause")
	}

	h.coord.Play(a)
	h.waitStatus(t, playback.StatusPlaying)
	if !handle.IsPlaying() {
		t.Error("third Play() did not resume")
	}
	if n := h.audio.GetCallCount(); n != 1 {
		t.Errorf("engine opened %d times, want 1", n)
	}
}

func TestCoordinatorPlayOtherStopsFirst(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	first := h.waitOpens(t, 1)
	first.SetPosition(42_000)
	waitFor(t, "position tick", func() bool { return h.coord.State().PositionMs == 42_000 })
	if !h.coord.Ticking() {
		t.Fatal("ticker not running while playing")
	}

	rec := &recorder[playback.PlaybackState]{}
	sub := h.coord.Subscribe(rec.add)
	defer sub.Unsubscribe()
	h.loop.Flush()

	h.coord.Play(track("b", "https://cdn.example.org/b.mp3"))
	waitFor(t, "track b playing", func() bool {
		st := h.coord.State()
		return st.IsPlaying && st.IsTrack("prayer", "b")
	})

	if !first.IsClosed() {
		t.Error("track a handle not closed")
	}

	states := rec.all()[1:]
	if len(states) == 0 {
		t.Fatal("no states published")
	}
	reset := states[0]
	if reset.Status != playback.StatusIdle || reset.PositionMs != 0 || reset.HasTrack() {
		t.Errorf("first state after Play(b) = %+v, want idle with progress reset", reset)
	}
	for _, st := range states[1:] {
		if st.IsTrack("prayer", "a") {
			t.Errorf("track a published after the reset: %+v", st)
		}
		if st.Status == playback.StatusLoading && st.PositionMs != 0 {
			t.Errorf("loading b with position %d", st.PositionMs)
		}
	}
}

func TestCoordinatorEmptyLocator(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", "  "))
	st := h.waitStatus(t, playback.StatusError)

	if !errors.Is(st.Err, playback.ErrSourceUnavailable) {
		t.Errorf("Err = %v, want ErrSourceUnavailable", st.Err)
	}
	if h.audio.GetCallCount() != 0 {
		t.Error("engine opened an empty locator")
	}
}

func TestCoordinatorToggleAfterEmptyLocator(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", ""))
	h.waitStatus(t, playback.StatusError)

	h.coord.TogglePlayPause()
	h.coord.TogglePlayPause()
	h.loop.Flush()

	st := h.coord.State()
	if st.Status != playback.StatusError || !errors.Is(st.Err, playback.ErrSourceUnavailable) {
		t.Errorf("state after toggle = %v %v, want error ErrSourceUnavailable", st.Status, st.Err)
	}
	if st.CurrentTrack != nil {
		t.Errorf("CurrentTrack = %+v, want none", st.CurrentTrack)
	}
	if n := h.audio.GetCallCount(); n != 0 {
		t.Errorf("engine opened %d times, want 0", n)
	}
}

func TestCoordinatorSkipToEmptyLocator(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()
	h.coord.SetQueue(playback.NewSliceQueue(
		track("a", "https://cdn.example.org/a.mp3"),
		track("b", " "),
	))

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)

	h.coord.SkipToNext()
	st := h.waitStatus(t, playback.StatusError)
	if !errors.Is(st.Err, playback.ErrSourceUnavailable) {
		t.Errorf("Err = %v, want ErrSourceUnavailable", st.Err)
	}

	h.coord.TogglePlayPause()
	h.coord.SkipToPrevious()
	h.loop.Flush()

	opens := h.audio.Opens()
	if len(opens) != 1 || opens[0] != "https://cdn.example.org/a.mp3" {
		t.Errorf("Opens() = %q, want only track a", opens)
	}
	if got := h.coord.State().Status; got != playback.StatusError {
		t.Errorf("Status = %v, want error", got)
	}
}

func TestCoordinatorOpenFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()
	h.audio.SetFailure(errors.New("404 not found"))

	a := track("a", "https://cdn.example.org/missing.mp3")
	h.coord.Play(a)
	st := h.waitStatus(t, playback.StatusError)

	if !errors.Is(st.Err, playback.ErrOpenFailure) {
		t.Errorf("Err = %v, want ErrOpenFailure", st.Err)
	}
	var pe *playback.Error
	if !errors.As(st.Err, &pe) || pe.Locator != a.Locator {
		t.Errorf("error locator = %v", st.Err)
	}
	if st.IsPlaying {
		t.Error("IsPlaying in error state")
	}

	// The error clears on the next play of the same content.
	h.coord.Play(a)
	st = h.waitStatus(t, playback.StatusPlaying)
	if st.Err != nil {
		t.Errorf("Err = %v after successful retry", st.Err)
	}
}

func TestCoordinatorOpenTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.OpenTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg)
	h.coord.Acquire()
	h.audio.SetHang(true)

	h.coord.Play(track("a", "https://slow.example.org/a.mp3"))
	st := h.waitStatus(t, playback.StatusError)

	if !errors.Is(st.Err, playback.ErrOpenFailure) {
		t.Errorf("Err = %v, want ErrOpenFailure", st.Err)
	}
}

func TestCoordinatorOpenTimeoutIgnoredContext(t *testing.T) {
	cfg := testConfig()
	cfg.OpenTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg)
	h.coord.Acquire()
	h.audio.Stall()
	defer h.audio.Unstall()

	h.coord.Play(track("a", "https://slow.example.org/a.mp3"))
	st := h.waitStatus(t, playback.StatusError)
	if !errors.Is(st.Err, playback.ErrOpenFailure) {
		t.Errorf("Err = %v, want ErrOpenFailure", st.Err)
	}
}

func TestCoordinatorEngineErrorAfterStart(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	handle := h.waitOpens(t, 1)

	handle.Fail(errors.New("decoder exploded"))
	st := h.waitStatus(t, playback.StatusError)
	if !errors.Is(st.Err, playback.ErrEngineFailure) {
		t.Errorf("Err = %v, want ErrEngineFailure", st.Err)
	}
	if !handle.IsClosed() {
		t.Error("failed handle not closed")
	}
}

func TestCoordinatorCompletionAndReplay(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	first := h.waitOpens(t, 1)
	first.SetPosition(179_000)
	first.Complete()

	st := h.waitStatus(t, playback.StatusIdle)
	if !st.IsTrack("prayer", "a") {
		t.Fatalf("track unloaded on completion: %+v", st)
	}
	if st.PositionMs != 0 || st.IsPlaying {
		t.Errorf("state after completion = %+v, want position 0 and not playing", st)
	}

	h.coord.TogglePlayPause()
	h.waitStatus(t, playback.StatusPlaying)
	if n := h.audio.GetCallCount(); n != 2 {
		t.Errorf("engine opened %d times, want replay to reopen", n)
	}
}

func TestCoordinatorStaleCallbacksIgnored(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	first := h.waitOpens(t, 1)

	h.coord.Play(track("b", "https://cdn.example.org/b.mp3"))
	h.waitOpens(t, 2)
	waitFor(t, "track b playing", func() bool { return h.coord.State().IsTrack("prayer", "b") && h.coord.State().IsPlaying })

	// Callbacks racing with Close still arrive.
	first.Fail(errors.New("late"))
	first.Complete()
	h.loop.Flush()

	if st := h.coord.State(); st.Status != playback.StatusPlaying || !st.IsTrack("prayer", "b") {
		t.Errorf("stale callback changed state: %+v", st)
	}
}

func TestCoordinatorSeek(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	handle := h.waitOpens(t, 1)

	tests := []struct {
		seek int64
		want int64
	}{
		{60_000, 60_000},
		{-5_000, 0},
		{999_999, 180_000},
	}
	for _, tt := range tests {
		h.coord.SeekTo(tt.seek)
		h.loop.Flush()
		seeks := handle.Seeks()
		if got := seeks[len(seeks)-1]; got != tt.want {
			t.Errorf("SeekTo(%d) sought %d, want %d", tt.seek, got, tt.want)
		}
		if st := h.coord.State(); st.PositionMs != tt.want {
			t.Errorf("SeekTo(%d) position = %d, want %d", tt.seek, st.PositionMs, tt.want)
		}
	}
}

func TestCoordinatorSeekIgnored(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.SeekTo(1000)
	h.loop.Flush()
	if st := h.coord.State(); st.PositionMs != 0 {
		t.Errorf("seek with nothing loaded moved to %d", st.PositionMs)
	}

	h.audio.SetSeekable(false)
	h.coord.Play(track("a", "https://live.example.org/stream"))
	h.waitStatus(t, playback.StatusPlaying)
	handle := h.waitOpens(t, 1)

	h.coord.SeekTo(1000)
	h.loop.Flush()
	if len(handle.Seeks()) != 0 {
		t.Error("seek reached an unseekable handle")
	}
}

func TestCoordinatorTogglePausesTicking(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.TogglePlayPause()
	h.loop.Flush()
	if st := h.coord.State(); st.Status != playback.StatusIdle {
		t.Errorf("toggle with nothing loaded changed status to %v", st.Status)
	}

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	h.coord.TogglePlayPause()
	h.waitStatus(t, playback.StatusPaused)
	if h.coord.Ticking() {
		t.Error("ticker running while paused")
	}
}

func TestCoordinatorStop(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	handle := h.waitOpens(t, 1)

	h.coord.Stop()
	h.loop.Flush()
	st := h.coord.State()
	if st.Status != playback.StatusIdle || st.HasTrack() {
		t.Errorf("state after Stop() = %+v", st)
	}
	if !handle.IsClosed() {
		t.Error("handle not closed by Stop()")
	}
}

func TestCoordinatorSkip(t *testing.T) {
	h := newHarness(t, testConfig())
	h.coord.Acquire()
	h.coord.SetQueue(playback.NewSliceQueue(
		track("a", "https://cdn.example.org/a.mp3"),
		track("b", "https://cdn.example.org/b.mp3"),
	))

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)

	h.coord.SkipToPrevious()
	h.loop.Flush()
	if !h.coord.State().IsTrack("prayer", "a") {
		t.Error("SkipToPrevious() without a neighbour changed track")
	}

	h.coord.SkipToNext()
	waitFor(t, "track b", func() bool {
		st := h.coord.State()
		return st.IsPlaying && st.IsTrack("prayer", "b")
	})

	h.coord.SkipToNext()
	h.loop.Flush()
	if !h.coord.State().IsTrack("prayer", "b") {
		t.Error("SkipToNext() past the end changed track")
	}

	h.coord.SkipToPrevious()
	waitFor(t, "track a", func() bool {
		st := h.coord.State()
		return st.IsPlaying && st.IsTrack("prayer", "a")
	})
}

func TestCoordinatorAutoAdvance(t *testing.T) {
	cfg := testConfig()
	cfg.AutoAdvance = true
	h := newHarness(t, cfg)
	h.coord.Acquire()
	h.coord.SetQueue(playback.NewSliceQueue(
		track("a", "https://cdn.example.org/a.mp3"),
		track("b", "https://cdn.example.org/b.mp3"),
	))

	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	h.waitOpens(t, 1).Complete()

	waitFor(t, "auto advance to b", func() bool {
		st := h.coord.State()
		return st.IsPlaying && st.IsTrack("prayer", "b")
	})
}

func TestCoordinatorReferenceCounting(t *testing.T) {
	h := newHarness(t, testConfig())

	h.coord.Acquire()
	h.coord.Acquire()
	h.coord.Play(track("a", "https://cdn.example.org/a.mp3"))
	h.waitStatus(t, playback.StatusPlaying)
	handle := h.waitOpens(t, 1)

	h.coord.Release()
	h.loop.Flush()
	if h.coord.State().Status != playback.StatusPlaying {
		t.Error("playback stopped while a reference remained")
	}
	if h.session.Acquires() != 1 {
		t.Errorf("session acquired %d times, want 1", h.session.Acquires())
	}

	h.coord.Release()
	h.loop.Flush()
	if st := h.coord.State(); st.Status != playback.StatusIdle || st.HasTrack() {
		t.Errorf("state after last Release() = %+v", st)
	}
	if !handle.IsClosed() || h.session.Refs() != 0 {
		t.Error("last Release() did not tear down")
	}

	h.coord.Release()
	h.loop.Flush()
	if h.coord.Refs() != 0 {
		t.Errorf("Refs() = %d after extra Release(), want 0", h.coord.Refs())
	}

	h.coord.Acquire()
	h.loop.Flush()
	if h.session.Refs() != 1 || h.session.Acquires() != 2 {
		t.Error("Acquire() after teardown did not reacquire the session")
	}
}
