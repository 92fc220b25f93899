// Package cache keeps synthesized narration audio so a line read twice is
// only synthesized once. It has an in-memory LRU tier in front of a
// persistent, zstd-compressed disk tier.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds a tier's capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache closed")
)

// Level identifies a cache tier.
type Level int

const (
	// LevelMemory is the in-process LRU tier.
	LevelMemory Level = iota
	// LevelDisk is the persistent tier.
	LevelDisk
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds the counters of one tier.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config configures a Manager.
type Config struct {
	MemoryCapacity   int64         // bytes
	DiskCapacity     int64         // bytes; 0 disables the disk tier
	Dir              string        // disk tier directory
	TTL              time.Duration // 0 keeps entries forever
	CompressionLevel int           // zstd level, 0 stores raw
}

// DefaultConfig returns a 32 MiB memory tier over a 256 MiB disk tier that
// keeps entries for thirty days.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 << 20,
		DiskCapacity:     256 << 20,
		TTL:              30 * 24 * time.Hour,
		CompressionLevel: 3,
	}
}

// Key identifies one synthesized utterance. Two keys are equal when the
// same engine would produce the same audio.
type Key struct {
	Engine string
	Voice  string
	Text   string
	Speed  float64
}

// String returns a stable hex digest of the key.
func (k Key) String() string {
	text := strings.Join(strings.Fields(k.Text), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f|%s", k.Engine, k.Voice, k.Speed, text)))
	return hex.EncodeToString(sum[:16])
}
