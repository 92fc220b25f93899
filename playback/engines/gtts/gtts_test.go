package gtts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/sadhana/recital/internal/cache"
	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/playback/engines/gtts"
	"github.com/sadhana/recital/playback/engines/output"
)

// speechServer answers every request with a short WAV clip and records
// the queries it saw.
type speechServer struct {
	*httptest.Server

	mu      sync.Mutex
	queries []string
	langs   []string
	status  int
}

func newSpeechServer(t *testing.T) *speechServer {
	t.Helper()

	p := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	format := beep.Format{SampleRate: 24000, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, beep.Silence(2400), format); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	clip, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}

	s := &speechServer{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.queries = append(s.queries, r.URL.Query().Get("q"))
		s.langs = append(s.langs, r.URL.Query().Get("tl"))
		status := s.status
		s.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write(clip)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *speechServer) fail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *speechServer) language(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.langs[i]
}

func (s *speechServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func newEngine(t *testing.T, srv *speechServer, lines *cache.Manager) *gtts.Engine {
	t.Helper()
	cfg := playback.DefaultGoogleConfig()
	cfg.BaseURL = srv.URL
	cfg.Language = "hi"
	cfg.RequestsPerMinute = 60000

	session := output.NewSession(0, (&output.SilentBackend{}).Open)
	if err := session.Acquire(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(session.Release)
	return gtts.New(session, cfg, lines)
}

func narrate(t *testing.T, e *gtts.Engine, text string, speed float64) error {
	t.Helper()
	done := make(chan error, 1)
	cb := playback.NarrationCallbacks{
		OnDone:  func() { done <- nil },
		OnError: func(err error) { done <- err },
	}
	if _, err := e.Narrate(context.Background(), playback.Utterance{Text: text, Speed: speed}, cb); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("utterance never finished")
		return nil
	}
}

func TestNarrate(t *testing.T) {
	srv := newSpeechServer(t)
	e := newEngine(t, srv, nil)

	for _, speed := range []float64{1.0, 2.0, 0.75} {
		if err := narrate(t, e, "Om Jai Jagdish Hare", speed); err != nil {
			t.Errorf("speed %v: %v", speed, err)
		}
	}

	seen := srv.seen()
	if len(seen) != 3 || seen[0] != "Om Jai Jagdish Hare" {
		t.Errorf("queries = %q", seen)
	}
	if lang := srv.language(0); lang != "hi" {
		t.Errorf("tl = %q", lang)
	}
}

func TestNarrateLongLine(t *testing.T) {
	srv := newSpeechServer(t)
	e := newEngine(t, srv, nil)

	line := strings.TrimSpace(strings.Repeat("Sri Ram Jai Ram Jai Jai Ram ", 16))
	if err := narrate(t, e, line, 1.0); err != nil {
		t.Fatal(err)
	}
	seen := srv.seen()
	if len(seen) < 3 {
		t.Fatalf("a %d-byte line took %d requests", len(line), len(seen))
	}
	for _, q := range seen {
		if len(q) > 200 {
			t.Errorf("request of %d bytes", len(q))
		}
	}
	if got := strings.Join(seen, " "); got != line {
		t.Error("chunks do not reassemble the line")
	}
}

func TestNarrateUsesCache(t *testing.T) {
	srv := newSpeechServer(t)
	lines, err := cache.New(cache.Config{MemoryCapacity: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer lines.Close()
	e := newEngine(t, srv, lines)

	for _, speed := range []float64{1.0, 1.5, 1.0} {
		if err := narrate(t, e, "Hare Krishna", speed); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(srv.seen()); n != 1 {
		t.Errorf("%d requests, want 1", n)
	}
}

func TestNarrateServerError(t *testing.T) {
	srv := newSpeechServer(t)
	srv.fail(http.StatusServiceUnavailable)
	e := newEngine(t, srv, nil)

	err := narrate(t, e, "Hare Krishna", 1.0)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %v, want 503", err)
	}
}

func TestNarrateRejectsEmptyText(t *testing.T) {
	e := newEngine(t, newSpeechServer(t), nil)
	if _, err := e.Narrate(context.Background(), playback.Utterance{Text: "\n"}, playback.NarrationCallbacks{}); err == nil {
		t.Error("Narrate() accepted empty text")
	}
	if e.Name() != gtts.Name {
		t.Errorf("Name() = %q", e.Name())
	}
}

func TestRenderCancelled(t *testing.T) {
	e := newEngine(t, newSpeechServer(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := e.Render(ctx, "Hare Krishna", 1.0); err == nil {
		t.Error("Render() ignored a cancelled context")
	}
}
