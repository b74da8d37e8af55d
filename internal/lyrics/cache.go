// Package lyrics implements the synced-lyric pipeline (§4.6): a
// TTL/batched-write cache fronting an HTTP fetch with per-error-kind retry
// semantics, grounded on original_source/lyricMaster.py's
// OptimizedJSONHandler/OptimizedLyricHandler.
package lyrics

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lanwave/radio/pkg/types"
)

// makeKey builds the cache key "normalized_artist|normalized_title",
// collapsing to an md5 hex digest once the combined key exceeds 200
// characters, matching OptimizedJSONHandler._make_key.
func makeKey(artist, title string) string {
	key := strings.ToLower(strings.TrimSpace(artist)) + "|" + strings.ToLower(strings.TrimSpace(title))
	if len(key) > 200 {
		sum := md5.Sum([]byte(key))
		return hex.EncodeToString(sum[:])
	}
	return key
}

type cacheEntry struct {
	Lines     []types.LyricLine `json:"lyrics"`
	CreatedAt time.Time         `json:"timestamp"`
	HashKey   string            `json:"hash_key"`
}

// Cache is a TTL-expiring, disk-persisted lyric lookup cache. Writes are
// batched: Add marks an entry pending, and a background goroutine flushes
// whenever the pending set reaches batchSize or flushInterval elapses.
// Flushes are atomic (temp file + rename).
type Cache struct {
	mu            sync.Mutex
	path          string
	ttl           time.Duration
	batchSize     int
	flushInterval time.Duration

	entries map[string]cacheEntry
	pending map[string]struct{}

	flushCh chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewCache loads path (if it exists), drops entries older than ttl, and
// starts the background flush goroutine.
func NewCache(path string, ttl time.Duration, batchSize int, flushInterval time.Duration) (*Cache, error) {
	c := &Cache{
		path:          path,
		ttl:           ttl,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		entries:       make(map[string]cacheEntry),
		pending:       make(map[string]struct{}),
		flushCh:       make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	go c.backgroundFlusher()
	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	raw := make(map[string]cacheEntry)
	if err := json.Unmarshal(data, &raw); err != nil {
		// Corrupted cache file: start fresh rather than failing startup.
		return nil
	}

	now := time.Now()
	for k, v := range raw {
		if now.Sub(v.CreatedAt) < c.ttl {
			c.entries[k] = v
		}
	}
	return nil
}

// Get returns the cached lines for key, or ok=false on a miss or expiry.
func (c *Cache) Get(key string) ([]types.LyricLine, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.CreatedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.Lines, true
}

// Add stores lines under key and marks the key pending for the next flush.
func (c *Cache) Add(key string, lines []types.LyricLine) {
	c.mu.Lock()
	entry := cacheEntry{Lines: lines, CreatedAt: time.Now(), HashKey: key}
	c.entries[key] = entry
	c.pending[key] = struct{}{}
	full := len(c.pending) >= c.batchSize
	c.mu.Unlock()

	if full {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

func (c *Cache) backgroundFlusher() {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			c.flush()
			return
		case <-c.flushCh:
			c.flush()
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Cache) flush() {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	snapshot := make(map[string]cacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.pending = make(map[string]struct{})
	c.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, c.path)
}

// Close flushes any pending writes and stops the background goroutine.
func (c *Cache) Close() error {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
	return nil
}
