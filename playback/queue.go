package playback

import "sync"

// SliceQueue is an ordered, fixed list of tracks. Neighbours are found by
// content identity, so a track rebuilt from the same record still matches.
type SliceQueue struct {
	mu     sync.RWMutex
	tracks []Track
}

// NewSliceQueue creates a queue over tracks in order.
func NewSliceQueue(tracks ...Track) *SliceQueue {
	q := &SliceQueue{}
	q.Replace(tracks)
	return q
}

// Replace swaps the queue contents.
func (q *SliceQueue) Replace(tracks []Track) {
	cp := make([]Track, len(tracks))
	copy(cp, tracks)

	q.mu.Lock()
	q.tracks = cp
	q.mu.Unlock()
}

// Len returns the number of tracks.
func (q *SliceQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

// Next returns the track after current.
func (q *SliceQueue) Next(current Track) (Track, bool) {
	return q.neighbour(current, 1)
}

// Previous returns the track before current.
func (q *SliceQueue) Previous(current Track) (Track, bool) {
	return q.neighbour(current, -1)
}

func (q *SliceQueue) neighbour(current Track, step int) (Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for i, t := range q.tracks {
		if !t.SameContent(current) {
			continue
		}
		j := i + step
		if j < 0 || j >= len(q.tracks) {
			return Track{}, false
		}
		return q.tracks[j], true
	}
	return Track{}, false
}
