package cache

import (
	"errors"
	"fmt"
	"sync"
)

// Config sizes a speech cache.
type Config struct {
	// MemoryCapacity in bytes; zero disables the memory level
	MemoryCapacity int64

	// DiskPath enables the disk level when set
	DiskPath         string
	DiskCapacity     int64
	CompressionLevel int
}

// DefaultConfig is a memory-only cache of 64MB.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 << 20,
		DiskCapacity:     512 << 20,
		CompressionLevel: 3,
	}
}

// SpeechCache looks up audio in memory, then on disk. Disk hits are promoted
// to memory.
type SpeechCache struct {
	memory *MemoryCache
	disk   *DiskCache

	mu         sync.Mutex
	memoryHits int64
	diskHits   int64
	misses     int64
}

// New builds a speech cache from cfg.
func New(cfg Config) (*SpeechCache, error) {
	sc := &SpeechCache{}
	if cfg.MemoryCapacity > 0 {
		sc.memory = NewMemoryCache(cfg.MemoryCapacity)
	}
	if cfg.DiskPath != "" {
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		sc.disk = disk
	}
	return sc, nil
}

// Get returns cached audio and the level it came from.
func (sc *SpeechCache) Get(key string) ([]byte, Level, bool) {
	if sc.memory != nil {
		if data, ok := sc.memory.Get(key); ok {
			sc.count(&sc.memoryHits)
			return data, LevelMemory, true
		}
	}
	if sc.disk != nil {
		if data, ok := sc.disk.Get(key); ok {
			sc.count(&sc.diskHits)
			if sc.memory != nil {
				_ = sc.memory.Put(key, data)
			}
			return data, LevelDisk, true
		}
	}
	sc.count(&sc.misses)
	return nil, 0, false
}

// Put stores audio in every level. An item too large for one level is still
// kept by the others.
func (sc *SpeechCache) Put(key string, audio []byte) error {
	var errs []error
	if sc.memory != nil {
		if err := sc.memory.Put(key, audio); err != nil && !errors.Is(err, ErrItemTooLarge) {
			errs = append(errs, fmt.Errorf("memory: %w", err))
		}
	}
	if sc.disk != nil {
		if err := sc.disk.Put(key, audio); err != nil && !errors.Is(err, ErrItemTooLarge) {
			errs = append(errs, fmt.Errorf("disk: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns per-level statistics keyed by level name.
func (sc *SpeechCache) Stats() map[string]Stats {
	out := make(map[string]Stats, 2)
	if sc.memory != nil {
		out[LevelMemory.String()] = sc.memory.Stats()
	}
	if sc.disk != nil {
		out[LevelDisk.String()] = sc.disk.Stats()
	}
	return out
}

// Hits returns lookups served by each level and the misses.
func (sc *SpeechCache) Hits() (memory, disk, misses int64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.memoryHits, sc.diskHits, sc.misses
}

// Close removes the disk level's files.
func (sc *SpeechCache) Close() error {
	if sc.disk != nil {
		return sc.disk.Close()
	}
	return nil
}

func (sc *SpeechCache) count(n *int64) {
	sc.mu.Lock()
	*n++
	sc.mu.Unlock()
}
