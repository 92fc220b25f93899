package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager looks entries up in memory first, then on disk, promoting disk
// hits into memory. Writes go to both tiers.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache // nil when the disk tier is disabled
	ttl    time.Duration

	mu     sync.Mutex
	closed bool
}

// New creates a Manager and prunes expired disk entries.
func New(cfg Config) (*Manager, error) {
	m := &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		ttl:    cfg.TTL,
	}
	if cfg.DiskCapacity > 0 {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("cache: disk tier needs a directory")
		}
		disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, err
		}
		m.disk = disk
	}

	if n := m.Prune(); n > 0 {
		log.Debug("pruned expired cache entries", "count", n)
	}
	return m, nil
}

// Get returns the audio cached for k.
func (m *Manager) Get(k Key) ([]byte, bool) {
	key := k.String()
	if data, ok := m.memory.Get(key); ok {
		return data, true
	}
	if m.disk == nil {
		return nil, false
	}
	data, ok := m.disk.Get(key)
	if !ok {
		return nil, false
	}
	_ = m.memory.Put(key, data)
	return data, true
}

// Put caches audio for k. An item too large for memory still goes to disk.
func (m *Manager) Put(k Key, audio []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	key := k.String()
	memErr := m.memory.Put(key, audio)
	if m.disk == nil {
		return memErr
	}
	return m.disk.Put(key, audio)
}

// Prune drops entries older than the TTL from both tiers.
func (m *Manager) Prune() int {
	if m.ttl <= 0 {
		return 0
	}
	n := m.memory.Prune(m.ttl)
	if m.disk != nil {
		n += m.disk.RemoveOlderThan(time.Now().Add(-m.ttl))
	}
	return n
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if m.disk == nil {
		return nil
	}
	return m.disk.Clear()
}

// Stats returns the counters of each enabled tier.
func (m *Manager) Stats() map[Level]Stats {
	out := map[Level]Stats{LevelMemory: m.memory.Stats()}
	if m.disk != nil {
		out[LevelDisk] = m.disk.Stats()
	}
	return out
}

// Close persists the disk index. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.disk != nil {
		return m.disk.Close()
	}
	return nil
}
