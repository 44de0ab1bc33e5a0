package internal

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	tt "github.com/gnolang/symex/internal/types"
)

const cacheFileName = "symex_cache.gob"

type CacheEntry struct {
	Hash      uint64
	Issues    []tt.Issue
	CreatedAt time.Time
}

// Cache keeps the issues of analyzed files keyed by a hash of their content
// and of the settings they were analyzed with. With a directory it is saved
// to and loaded from disk.
type Cache struct {
	CacheDir string
	entries  map[string]CacheEntry
	mutex    sync.RWMutex
	maxAge   time.Duration
}

// NewCache returns a cache persisted in cacheDir, or an in-memory cache when
// cacheDir is empty.
func NewCache(cacheDir string) (*Cache, error) {
	cache := &Cache{
		CacheDir: cacheDir,
		entries:  make(map[string]CacheEntry),
	}
	if cacheDir == "" {
		return cache, nil
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := cache.load(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	return cache, nil
}

func (c *Cache) load() error {
	file, err := os.Open(filepath.Join(c.CacheDir, cacheFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(&c.entries); err != nil {
		return fmt.Errorf("failed to decode cache file: %w", err)
	}
	return nil
}

func (c *Cache) save() error {
	if c.CacheDir == "" {
		return nil
	}
	file, err := os.Create(filepath.Join(c.CacheDir, cacheFileName))
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(c.entries); err != nil {
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	return nil
}

func entryHash(settings string, src []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(settings)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(src)
	return d.Sum64()
}

// Set records the issues found in src, the content of filename, under
// settings.
func (c *Cache) Set(filename, settings string, src []byte, issues []tt.Issue) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[filename] = CacheEntry{
		Hash:      entryHash(settings, src),
		Issues:    issues,
		CreatedAt: time.Now(),
	}
	return c.save()
}

// Get returns the issues recorded for filename when they were computed from
// the same content under the same settings and have not expired.
func (c *Cache) Get(filename, settings string, src []byte) ([]tt.Issue, bool) {
	c.mutex.RLock()
	entry, exists := c.entries[filename]
	maxAge := c.maxAge
	c.mutex.RUnlock()
	if !exists {
		return nil, false
	}
	if entry.Hash != entryHash(settings, src) || (maxAge > 0 && time.Since(entry.CreatedAt) > maxAge) {
		c.mutex.Lock()
		delete(c.entries, filename)
		c.mutex.Unlock()
		return nil, false
	}
	return entry.Issues, true
}

// SetMaxAge expires entries older than d. Zero keeps them forever.
func (c *Cache) SetMaxAge(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.maxAge = d
}

func (c *Cache) InvalidateAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]CacheEntry)
	_ = c.save() // ignore error as this is a manual operation
}
