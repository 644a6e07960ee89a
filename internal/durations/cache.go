// Package durations resolves media durations in the background: a
// priority-queued worker pool probing items via ffprobe and yt-dlp,
// backed by a persistent cache keyed by normalized URL.
package durations

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/silencesuzuka/playerd/internal/util"
)

// Cache limits.
const (
	// DefaultCacheMaxAge is how long an entry stays valid.
	DefaultCacheMaxAge = 30 * 24 * time.Hour
	// DefaultCacheMaxEntries bounds the cache size; oldest entries are
	// evicted past it.
	DefaultCacheMaxEntries = 10000

	// Save every N additions, so a crash loses little.
	saveEvery = 10
)

// cacheEntry is one resolved duration.
type cacheEntry struct {
	Duration  int    `json:"duration"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Expired int     `json:"expired"`
	Evicted int     `json:"evicted"`
}

// cacheFile is the on-disk shape.
type cacheFile struct {
	Cache       map[string]cacheEntry `json:"cache"`
	LastUpdated int64                 `json:"last_updated"`
	Version     string                `json:"version"`
}

// Cache is a persistent duration cache keyed by normalized URL. It is
// safe for concurrent use.
type Cache struct {
	path       string
	maxAge     time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	adds    int
	hits    int
	misses  int
	expired int
	evicted int
}

// NewCache loads the cache at path, starting empty when the file is
// missing or unreadable.
func NewCache(path string, maxAge time.Duration, maxEntries int) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	c := &Cache{
		path:       path,
		maxAge:     maxAge,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
	c.load()
	return c
}

func (c *Cache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read duration cache", "path", c.path, "error", err)
		}
		return
	}
	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		slog.Warn("discarding corrupt duration cache", "path", c.path, "error", err)
		return
	}
	cutoff := c.now().Add(-c.maxAge).Unix()
	for key, entry := range file.Cache {
		if entry.Timestamp < cutoff {
			c.expired++
			continue
		}
		c.entries[key] = entry
	}
}

// Get returns the cached duration for the URL, if present and fresh.
func (c *Cache) Get(rawURL string) (int, bool) {
	if rawURL == "" {
		return 0, false
	}
	key := cacheKey(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return 0, false
	}
	if c.now().Sub(time.Unix(entry.Timestamp, 0)) > c.maxAge {
		delete(c.entries, key)
		c.expired++
		c.misses++
		return 0, false
	}
	c.hits++
	return entry.Duration, true
}

// Set caches a resolved duration. Persisted every few additions and on
// Save.
func (c *Cache) Set(rawURL string, duration int, source string) {
	if rawURL == "" {
		return
	}
	key := cacheKey(rawURL)

	c.mu.Lock()
	c.entries[key] = cacheEntry{
		Duration:  duration,
		Timestamp: c.now().Unix(),
		Source:    source,
	}
	c.evictLocked()
	c.adds++
	flush := c.adds%saveEvery == 0
	c.mu.Unlock()

	if flush {
		if err := c.Save(); err != nil {
			slog.Warn("failed to save duration cache", "error", err)
		}
	}
}

// Remove drops the URL from the cache.
func (c *Cache) Remove(rawURL string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(rawURL))
	c.mu.Unlock()
}

// Clear empties the cache and persists the empty state.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.hits, c.misses, c.expired, c.evicted = 0, 0, 0, 0
	c.mu.Unlock()
	return c.Save()
}

// Stats returns a snapshot of cache effectiveness.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		Expired: c.expired,
		Evicted: c.evicted,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Save writes the cache atomically via a temp file and rename.
func (c *Cache) Save() error {
	c.mu.Lock()
	file := cacheFile{
		Cache:       make(map[string]cacheEntry, len(c.entries)),
		LastUpdated: c.now().Unix(),
		Version:     "1.0",
	}
	for k, v := range c.entries {
		file.Cache[k] = v
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return util.WrapError("marshal duration cache", err)
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return util.WrapError("create cache directory", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return util.WrapError("write duration cache", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return util.WrapError("replace duration cache", err)
	}
	return nil
}

// evictLocked drops the oldest entries past the size limit.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		oldestKey := ""
		oldest := int64(0)
		for key, entry := range c.entries {
			if oldestKey == "" || entry.Timestamp < oldest {
				oldestKey = key
				oldest = entry.Timestamp
			}
		}
		delete(c.entries, oldestKey)
		c.evicted++
	}
}

// NormalizeURL canonicalizes a media URL so the same video always maps
// to one cache key: YouTube URLs collapse to the watch?v= form, Bilibili
// URLs to their BV/av id, local paths to absolute form. Anything else
// passes through unchanged.
func NormalizeURL(rawURL string) string {
	if rawURL == "" {
		return rawURL
	}
	lower := strings.ToLower(rawURL)

	switch {
	case strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be"):
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return rawURL
		}
		var videoID string
		if strings.Contains(lower, "youtu.be") {
			videoID = strings.SplitN(strings.Trim(parsed.Path, "/"), "/", 2)[0]
		} else {
			videoID = parsed.Query().Get("v")
		}
		if videoID != "" {
			return "https://www.youtube.com/watch?v=" + videoID
		}
	case strings.Contains(lower, "bilibili.com"):
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return rawURL
		}
		for _, part := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
			if strings.HasPrefix(part, "BV") || strings.HasPrefix(part, "av") {
				return "https://www.bilibili.com/video/" + part
			}
		}
	case strings.HasPrefix(rawURL, "file://") || strings.HasPrefix(rawURL, "/"):
		path := rawURL
		if strings.HasPrefix(rawURL, "file://") {
			if parsed, err := url.Parse(rawURL); err == nil {
				path = parsed.Path
			}
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return rawURL
}

// cacheKey hashes the normalized URL into a stable key.
func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(NormalizeURL(rawURL)))
	return hex.EncodeToString(sum[:])
}

// String implements fmt.Stringer for log output.
func (s CacheStats) String() string {
	return fmt.Sprintf("%d entries, %d hits, %d misses (%.0f%% hit rate)",
		s.Entries, s.Hits, s.Misses, s.HitRate*100)
}
