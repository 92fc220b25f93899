package playback

import (
	"fmt"
	"sync"
	"time"
)

// Loop is the single scheduling context every playback component runs on.
// Functions posted to it run one at a time in FIFO order on one goroutine,
// so component state touched only from the loop needs no locking.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewLoop starts a loop goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post schedules fn and returns immediately. It reports false when the
// loop has been closed and fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	l.signal()
	return true
}

// Flush blocks until every function posted so far, and everything those
// functions posted in turn, has run. It must not be called from the loop.
func (l *Loop) Flush() {
	for {
		done := make(chan struct{})
		if !l.Post(func() { close(done) }) {
			<-l.stopped
			return
		}
		<-done

		l.mu.Lock()
		idle := len(l.queue) == 0
		l.mu.Unlock()
		if idle {
			return
		}
	}
}

// Close runs what is already queued, then stops the loop. Later posts are
// dropped. Close is idempotent.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.mu.Unlock()
		l.signal()
	} else {
		l.mu.Unlock()
	}
	<-l.stopped
}

// Every posts fn to the loop once per interval until the returned stop
// function is called. fn never runs after stop returns.
func (l *Loop) Every(interval time.Duration, fn func()) (stop func()) {
	done := make(chan struct{})
	tick := func() {
		select {
		case <-done:
		default:
			fn()
		}
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if !l.Post(tick) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.stopped)
	for range l.wake {
		for {
			fn, closed := l.next()
			if fn == nil {
				if closed {
					return
				}
				break
			}
			l.exec(fn)
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, l.closed
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, l.closed
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered panic on playback loop", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
