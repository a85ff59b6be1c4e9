// Package cache keeps synthesized speech so a repeated script and voice pair
// is served without another upstream call. It has an in-memory LRU level and
// an optional compressed disk level that is cleared when the process exits.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrItemTooLarge is returned when an item exceeds the cache capacity
var ErrItemTooLarge = errors.New("item too large for cache")

// Level represents the cache tier
type Level int

const (
	// LevelMemory is the in-process LRU
	LevelMemory Level = iota

	// LevelDisk is the scratch directory spill
	LevelDisk
)

// String returns the string representation of the cache level
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

// Stats holds cache performance metrics
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64

	LastAccess time.Time
	LastEvict  time.Time
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Cache is implemented by each level.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Contains(key string) bool
	Stats() Stats
}

// Key derives the cache key for a voice reading text.
func Key(voiceID, text string) string {
	h := sha256.New()
	h.Write([]byte(voiceID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
