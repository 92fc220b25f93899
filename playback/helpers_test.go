package playback_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/playback/engines/mock"
)

func testConfig() playback.Config {
	cfg := playback.DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.OpenTimeout = 2 * time.Second
	return cfg
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.items = append(r.items, v)
	r.mu.Unlock()
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

type harness struct {
	loop    *playback.Loop
	audio   *mock.AudioEngine
	voice   *mock.NarrationEngine
	session *mock.OutputSession
	coord   *playback.Coordinator
	cfg     playback.Config
}

func newHarness(t *testing.T, cfg playback.Config) *harness {
	t.Helper()
	h := &harness{
		loop:    playback.NewLoop(),
		audio:   mock.NewAudioEngine(),
		voice:   mock.NewNarrationEngine(),
		session: mock.NewOutputSession(),
		cfg:     cfg,
	}
	h.coord = playback.NewCoordinator(h.loop, h.audio, h.session, cfg)
	t.Cleanup(func() {
		h.coord.Shutdown()
		h.loop.Close()
	})
	return h
}

func (h *harness) narration() *playback.NarrationController {
	return playback.NewNarrationController(h.loop, h.audio, h.voice, h.session, h.cfg)
}

func track(id, locator string) playback.Track {
	return playback.Track{
		ID:          "t-" + id,
		Title:       "Track " + id,
		Locator:     locator,
		ContentType: "prayer",
		ContentID:   id,
	}
}

func (h *harness) waitStatus(t *testing.T, want playback.Status) playback.PlaybackState {
	t.Helper()
	waitFor(t, "coordinator "+want.String(), func() bool {
		return h.coord.State().Status == want
	})
	return h.coord.State()
}

func (h *harness) waitOpens(t *testing.T, n int) *mock.Handle {
	t.Helper()
	waitFor(t, "audio handle", func() bool { return len(h.audio.Handles()) >= n })
	return h.audio.Handles()[n-1]
}
