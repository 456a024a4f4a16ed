// Package cache provides a bounded in-memory key/value cache with per-entry
// TTLs, least-recently-accessed eviction, and a background sweep that removes
// expired entries. Every fetch path in the engine consults one of these
// caches before touching a ledger or oracle.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/ledgerisk/internal/metrics"
)

// DefaultMaxSize bounds a cache whose constructor was given no capacity.
const DefaultMaxSize = 1000

// DefaultSweepInterval is used when no sweep interval is configured.
const DefaultSweepInterval = time.Minute

// Stats is a point-in-time snapshot of a cache's cumulative counters.
// Evictions counts entries removed for capacity or expiry reasons, not
// explicit deletes. Cleanups counts completed sweep passes.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Cleanups  int64   `json:"cleanups"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hitRate"`
}

// Store is the type-erased view of a Bounded cache. The engine manages caches
// of different value types together through this interface for invalidation,
// stats reporting, and sweep lifecycle.
type Store interface {
	Name() string
	Delete(key string)
	Clear()
	Stats() Stats
	Start(ctx context.Context)
	Stop()
}

// entry values are owned exclusively by the cache; callers never see them.
type entry[V any] struct {
	value      V
	createdAt  time.Time
	expiresAt  time.Time    // zero means the entry never expires
	lastAccess atomic.Int64 // unix nanos, updated on every read hit
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (e *entry[V]) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}

// Bounded is a concurrency-safe cache holding at most maxSize entries. An
// insert at capacity evicts the entry with the oldest last-access time.
// Expired entries are treated as absent on read and removed lazily there,
// and proactively by the sweep loop.
type Bounded[V any] struct {
	name       string
	maxSize    int
	sweepEvery time.Duration
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry[V]

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
	cleanups  atomic.Int64

	stop chan struct{}
}

// New creates a bounded cache. name labels the cache in metrics and logs.
// Call Start in a goroutine to run the background sweep.
func New[V any](name string, maxSize int, sweepEvery time.Duration, logger *slog.Logger) *Bounded[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepInterval
	}
	return &Bounded[V]{
		name:       name,
		maxSize:    maxSize,
		sweepEvery: sweepEvery,
		logger:     logger,
		entries:    make(map[string]*entry[V]),
		stop:       make(chan struct{}, 1),
	}
}

// Name returns the cache's metric label.
func (c *Bounded[V]) Name() string { return c.name }

// Get returns the live value for key. Expired entries count as misses and
// are dropped on the spot.
func (c *Bounded[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}

	now := time.Now()
	if e.expired(now) {
		c.removeExpired(key, e)
		c.misses.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}

	e.touch(now)
	c.hits.Add(1)
	metrics.CacheOperationsTotal.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Has reports whether key holds a live entry. It does not count toward the
// hit/miss counters and does not refresh the entry's last-access time.
func (c *Bounded[V]) Has(key string) bool {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false
	}
	if e.expired(time.Now()) {
		c.removeExpired(key, e)
		return false
	}
	return true
}

// Set stores value under key. ttl <= 0 means the entry never expires.
// Inserting a new key at capacity evicts the least-recently-accessed entry.
func (c *Bounded[V]) Set(key string, value V, ttl time.Duration) {
	now := time.Now()
	e := &entry[V]{value: value, createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	e.touch(now)

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = e
	size := len(c.entries)
	c.mu.Unlock()

	c.sets.Add(1)
	metrics.CacheOperationsTotal.WithLabelValues(c.name, "set").Inc()
	metrics.CacheSize.WithLabelValues(c.name).Set(float64(size))
}

// GetOrCompute returns the cached value for key, computing and storing it via
// fn when absent or expired. Concurrent callers for the same key may each run
// fn; the last completed write wins. A failed compute is returned to the
// caller and nothing is cached.
func (c *Bounded[V]) GetOrCompute(key string, ttl time.Duration, fn func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Delete removes key if present. Explicit deletes do not count as evictions.
func (c *Bounded[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	size := len(c.entries)
	c.mu.Unlock()
	metrics.CacheSize.WithLabelValues(c.name).Set(float64(size))
}

// Clear removes every entry. Counters are cumulative and survive a clear.
func (c *Bounded[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry[V])
	c.mu.Unlock()
	metrics.CacheSize.WithLabelValues(c.name).Set(0)
}

// Len returns the current entry count, expired entries included until the
// next read or sweep drops them.
func (c *Bounded[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Bounded[V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{
		Hits:      hits,
		Misses:    misses,
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		Cleanups:  c.cleanups.Load(),
		Size:      c.Len(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Start runs the background sweep loop until ctx is cancelled or Stop is
// called. Call in a goroutine.
func (c *Bounded[V]) Start(ctx context.Context) {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// Stop signals the sweep loop to stop.
func (c *Bounded[V]) Stop() {
	select {
	case c.stop <- struct{}{}:
	default:
	}
}

// sweep removes all expired entries in one short-held lock pass.
func (c *Bounded[V]) sweep() {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.cleanups.Add(1)
	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.CacheOperationsTotal.WithLabelValues(c.name, "expiry").Add(float64(removed))
	}
	metrics.CacheSize.WithLabelValues(c.name).Set(float64(size))

	if removed > 0 {
		c.logger.Debug("cache sweep removed expired entries", "cache", c.name, "removed", removed, "remaining", size)
	}
}

// removeExpired drops an entry observed expired by a reader. The entry is
// only removed if it has not been replaced since the observation.
func (c *Bounded[V]) removeExpired(key string, observed *entry[V]) {
	removed := false

	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && cur == observed {
		delete(c.entries, key)
		removed = true
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed {
		c.evictions.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues(c.name, "expiry").Inc()
		metrics.CacheSize.WithLabelValues(c.name).Set(float64(size))
	}
}

// evictOldestLocked removes the entry with the oldest last-access time.
// Linear scan; capacities here are small enough that this beats maintaining
// a separate access list. Caller holds the write lock.
func (c *Bounded[V]) evictOldestLocked() {
	var oldestKey string
	var oldestNanos int64
	first := true

	for key, e := range c.entries {
		nanos := e.lastAccess.Load()
		if first || nanos < oldestNanos {
			oldestKey = key
			oldestNanos = nanos
			first = false
		}
	}
	if first {
		return
	}

	delete(c.entries, oldestKey)
	c.evictions.Add(1)
	metrics.CacheOperationsTotal.WithLabelValues(c.name, "eviction").Inc()
	c.logger.Debug("cache evicted least-recently-used entry", "cache", c.name, "key", oldestKey)
}
