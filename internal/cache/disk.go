package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	fileSuffix = ".cache"

	// smaller payloads are stored as is
	compressThreshold = 1024
)

// DiskCache spills audio to a scratch directory with optional zstd
// compression. It lives only as long as the process: stale files are removed
// on open and everything is removed on Close.
type DiskCache struct {
	basePath string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	Key        string
	FilePath   string
	Size       int64 // on disk
	Compressed bool
	LastAccess time.Time
}

// NewDiskCache creates a disk cache in basePath. A compression level of zero
// stores audio uncompressed.
func NewDiskCache(basePath string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// the decoder is always available for entries written with compression on
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	dc.decoder = decoder

	if err := dc.purge(); err != nil {
		return nil, fmt.Errorf("failed to clear cache directory: %w", err)
	}
	return dc, nil
}

// Get reads a value from disk.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.FilePath)
	if err == nil && entry.Compressed {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		dc.remove(key, entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	dc.stats.LastAccess = entry.LastAccess
	return data, true
}

// Put writes a value to disk, evicting least recently used entries to fit.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	data, compressed := value, false
	if dc.encoder != nil && len(value) > compressThreshold {
		if packed := dc.encoder.EncodeAll(value, nil); len(packed) < len(value) {
			data, compressed = packed, true
		}
	}

	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.remove(key, existing)
	}
	for dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	path := dc.filePath(key)
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	dc.index[key] = &diskEntry{
		Key:        key,
		FilePath:   path,
		Size:       n,
		Compressed: compressed,
		LastAccess: time.Now(),
	}
	dc.size += n
	return nil
}

// Delete removes an entry and its file.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.remove(key, entry)
	}
	return nil
}

// Contains reports whether key is indexed.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	_, ok := dc.index[key]
	return ok
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.Items = int64(len(dc.index))
	return stats
}

// Close removes every cached file.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.encoder != nil {
		_ = dc.encoder.Close()
	}
	dc.decoder.Close()
	dc.index = make(map[string]*diskEntry)
	dc.size = 0
	return dc.purge()
}

func (dc *DiskCache) remove(key string, entry *diskEntry) {
	_ = os.Remove(entry.FilePath)
	delete(dc.index, key)
	dc.size -= entry.Size
}

func (dc *DiskCache) evictOldest() {
	var oldestKey string
	var oldest *diskEntry
	for key, e := range dc.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldestKey, oldest = key, e
		}
	}
	if oldest != nil {
		dc.remove(oldestKey, oldest)
		dc.stats.Evictions++
		dc.stats.LastEvict = time.Now()
	}
}

func (dc *DiskCache) filePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(dc.basePath, hex.EncodeToString(hash[:16])+fileSuffix)
}

// purge deletes cache files left in the directory.
func (dc *DiskCache) purge() error {
	entries, err := os.ReadDir(dc.basePath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, fileSuffix) || strings.HasSuffix(name, fileSuffix+".tmp")) {
			continue
		}
		if err := os.Remove(filepath.Join(dc.basePath, name)); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes to a temp file first, then renames it into place.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
