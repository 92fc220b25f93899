package playback

import (
	"sort"
	"sync"
)

// Observable holds a snapshot value and notifies subscribers on the loop
// whenever it changes. Get is safe from any goroutine.
type Observable[T any] struct {
	loop *Loop

	mu    sync.RWMutex
	value T
	subs  map[uint64]func(T)
	next  uint64
}

func newObservable[T any](loop *Loop, initial T) *Observable[T] {
	return &Observable[T]{
		loop:  loop,
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
}

// Get returns the latest snapshot.
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Subscribe registers fn for every future snapshot. The current snapshot
// is delivered on the loop right after registration.
func (o *Observable[T]) Subscribe(fn func(T)) *Subscription {
	o.mu.Lock()
	id := o.next
	o.next++
	o.subs[id] = fn
	o.mu.Unlock()

	sub := &Subscription{cancel: func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}}

	o.loop.Post(func() {
		o.mu.RLock()
		_, active := o.subs[id]
		v := o.value
		o.mu.RUnlock()
		if active {
			fn(v)
		}
	})
	return sub
}

// set stores v and notifies subscribers in subscription order. Only call
// it from the loop.
func (o *Observable[T]) set(v T) {
	o.mu.Lock()
	o.value = v
	ids := make([]uint64, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subs[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Scope collects subscriptions that share a lifetime, typically one
// screen, and cancels them together.
type Scope struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Add ties sub to the scope. Adding to a closed scope unsubscribes at once.
func (s *Scope) Add(sub *Subscription) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// Close unsubscribes everything in the scope.
func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
