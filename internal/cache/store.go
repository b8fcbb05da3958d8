// Package cache implements the bounded in-memory store backing the
// optimizer: LRU eviction by last access, per-entry TTL, and optional
// payload compression above a size threshold.
package cache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/optilayer/optilayer/internal/codec"
	"github.com/optilayer/optilayer/pkg/errors"
	"github.com/optilayer/optilayer/pkg/types"
)

// Config represents cache store configuration.
type Config struct {
	MaxSize              int64         `yaml:"max_size"`
	MaxItems             int           `yaml:"max_items"`
	TTL                  time.Duration `yaml:"ttl"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	CompressionThreshold int64         `yaml:"compression_threshold"`

	// Compressor enables payload compression when set.
	Compressor *codec.Compressor `yaml:"-"`
	Logger     *slog.Logger      `yaml:"-"`
}

// Store is a thread-safe bounded cache with LRU eviction and TTL
// expiration. The sum of entry sizes always equals currentSize.
type Store struct {
	mu          sync.Mutex
	capacity    int64
	maxItems    int
	defaultTTL  time.Duration
	currentSize int64
	items       map[string]*entry
	evictList   *list.List

	compressor           *codec.Compressor
	compressionThreshold int64

	stats  types.CacheStats
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// entry is a live cache entry. value is what Get hands back; payload
// holds the encoded form (raw or compressed) and drives size
// accounting, so a hit always returns the exact value that was stored
// regardless of compression.
type entry struct {
	key          string
	value        any
	payload      []byte
	size         int64
	compressed   bool
	createdAt    time.Time
	lastAccessed time.Time
	hitCount     int64
	ttl          time.Duration
	element      *list.Element
}

// NewStore creates a new cache store and starts its expiration sweep.
// Callers must Close the store to stop the sweep.
func NewStore(config *Config) *Store {
	if config == nil {
		config = &Config{}
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 64 * 1024 * 1024 // 64MB
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 10000
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Store{
		capacity:             config.MaxSize,
		maxItems:             config.MaxItems,
		defaultTTL:           config.TTL,
		items:                make(map[string]*entry),
		evictList:            list.New(),
		compressor:           config.Compressor,
		compressionThreshold: config.CompressionThreshold,
		stats:                types.CacheStats{Capacity: config.MaxSize},
		logger:               config.Logger.With("component", "cache"),
		stopCh:               make(chan struct{}),
	}

	go s.cleanupExpired(config.CleanupInterval)

	return s
}

// Get retrieves a value from the cache. A hit returns the value
// exactly as it was passed to Set. A present entry whose age has
// reached its TTL counts as a miss and is removed. ttlOverride, when
// positive, replaces the entry's own TTL for the staleness check.
func (s *Store) Get(key string, ttlOverride time.Duration) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.items[key]
	if !exists {
		s.stats.Misses++
		return nil, false
	}

	ttl := e.ttl
	if ttlOverride > 0 {
		ttl = ttlOverride
	}
	if time.Since(e.createdAt) >= ttl {
		s.removeEntry(e, false)
		s.stats.Misses++
		return nil, false
	}

	e.lastAccessed = time.Now()
	e.hitCount++
	s.evictList.MoveToFront(e.element)
	s.stats.Hits++

	return e.value, true
}

// Set stores a value. Values whose encoded size exceeds the configured
// capacity bypass the cache entirely: Set returns false with a
// CACHE_CAPACITY_EXCEEDED error and no other entry is disturbed.
func (s *Store) Set(key string, value any, ttl time.Duration) (bool, error) {
	payload, err := codec.Encode(value)
	if err != nil {
		return false, errors.NewError(errors.ErrCodeCacheWriteFailed, "value could not be encoded").
			WithComponent("cache").
			WithDetail("key", key).
			WithCause(err)
	}

	compressed := false
	stored := payload
	if s.compressor != nil && s.compressionThreshold > 0 && int64(len(payload)) > s.compressionThreshold {
		c, cerr := s.compressor.Compress(payload)
		if cerr != nil {
			// Compression is an optimization; fall back to the raw payload.
			s.logger.Warn("payload compression failed", "key", key, "error", cerr)
		} else {
			stored = c
			compressed = true
		}
	}

	size := int64(len(stored))
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if size > s.capacity {
		return false, errors.Newf(errors.ErrCodeCacheCapacityExceeded,
			"value of %d bytes exceeds cache capacity %d", size, s.capacity).
			WithComponent("cache").
			WithDetail("key", key)
	}

	if existing, exists := s.items[key]; exists {
		s.removeEntry(existing, false)
	}

	if required := s.currentSize + size - s.capacity; required > 0 {
		s.evictFor(required)
	}
	for len(s.items) >= s.maxItems && s.evictList.Len() > 0 {
		s.evictOldest()
	}

	now := time.Now()
	e := &entry{
		key:          key,
		value:        value,
		payload:      stored,
		size:         size,
		compressed:   compressed,
		createdAt:    now,
		lastAccessed: now,
		ttl:          ttl,
	}
	e.element = s.evictList.PushFront(e)

	s.items[key] = e
	s.currentSize += size

	return true, nil
}

// Delete removes an entry. It returns whether the key was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.items[key]
	if !exists {
		return false
	}
	s.removeEntry(e, false)
	return true
}

// Clear drops all entries and resets the current size. Cumulative
// hit/miss/eviction counters are preserved.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*entry)
	s.evictList.Init()
	s.currentSize = 0
}

// Size returns the aggregate size of live entries in bytes.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSize
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Keys returns all live keys, most recently used first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.evictList.Len())
	for el := s.evictList.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Stats returns cache statistics.
func (s *Store) Stats() types.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Entries = len(s.items)
	stats.Size = s.currentSize
	stats.Utilization = float64(s.currentSize) / float64(s.capacity)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close stops the expiration sweep.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// evictFor removes least-recently-used entries until at least required
// bytes are freed, never more than necessary.
func (s *Store) evictFor(required int64) {
	freed := int64(0)
	for freed < required && s.evictList.Len() > 0 {
		el := s.evictList.Back()
		e := el.Value.(*entry)
		freed += e.size
		s.removeEntry(e, true)
	}
}

func (s *Store) evictOldest() {
	el := s.evictList.Back()
	if el == nil {
		return
	}
	s.removeEntry(el.Value.(*entry), true)
}

// removeEntry unlinks an entry and keeps the aggregate size in step
// with the live entries. evicted distinguishes LRU eviction from
// expiration and explicit deletes in the counters.
func (s *Store) removeEntry(e *entry, evicted bool) {
	if e.element != nil {
		s.evictList.Remove(e.element)
		e.element = nil
	}
	delete(s.items, e.key)
	s.currentSize -= e.size
	if evicted {
		s.stats.Evictions++
	}
}

func (s *Store) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes every entry older than its own TTL regardless of
// access pattern.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*entry
	for _, e := range s.items {
		if time.Since(e.createdAt) >= e.ttl {
			stale = append(stale, e)
		}
	}
	for _, e := range stale {
		s.removeEntry(e, false)
	}
	if len(stale) > 0 {
		s.logger.Debug("expired entries removed", "count", len(stale))
	}
}
