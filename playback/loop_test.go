package playback

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Flush()

	if len(got) != 100 {
		t.Fatalf("ran %d functions, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want FIFO order", i, v)
		}
	}
}

func TestLoopFlushWaitsForNestedPosts(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var depth int
	var post func()
	post = func() {
		depth++
		if depth < 10 {
			l.Post(post)
		}
	}
	l.Post(post)
	l.Flush()

	if depth != 10 {
		t.Errorf("depth = %d after Flush, want 10", depth)
	}
}

func TestLoopClose(t *testing.T) {
	l := NewLoop()

	var ran atomic.Int32
	l.Post(func() { ran.Add(1) })
	l.Close()
	l.Close()

	if ran.Load() != 1 {
		t.Errorf("queued function ran %d times before close, want 1", ran.Load())
	}
	if l.Post(func() { ran.Add(1) }) {
		t.Error("Post() after Close() = true, want false")
	}
	l.Flush()
	if ran.Load() != 1 {
		t.Error("function posted after Close() ran")
	}
}

func TestLoopSurvivesPanic(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })
	l.Flush()

	if !ran {
		t.Error("loop stopped after a panicking function")
	}
}

func TestLoopEvery(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var ticks atomic.Int32
	stop := l.Every(5*time.Millisecond, func() { ticks.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	stop()
	stop()
	l.Flush()

	n := ticks.Load()
	if n < 3 {
		t.Fatalf("ticks = %d, want at least 3", n)
	}
	time.Sleep(30 * time.Millisecond)
	l.Flush()
	if after := ticks.Load(); after != n {
		t.Errorf("ticks kept coming after stop: %d then %d", n, after)
	}
}
