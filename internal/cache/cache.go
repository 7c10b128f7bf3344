// Package cache holds the most recent successful fetch result per
// provider window, bounded by a TTL. It shields the scheduler and the
// request handlers from redundant provider calls: reads always come
// from memory and never block on the network.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chmouel/nextmeetingd/internal/event"
)

// Entry is one cached fetch result. Entries are replaced atomically on
// refresh, never mutated in place.
type Entry struct {
	Events    []event.Meeting
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry is within its TTL at t.
func (e Entry) Fresh(t time.Time) bool {
	return t.Sub(e.FetchedAt) < e.TTL
}

// Cache is a TTL-bounded store keyed by provider + normalized window.
// Staleness does not delete: a stale entry is still returned on read,
// flagged as stale, so a provider outage degrades to old data instead
// of no data.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	defaultTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a cache with the given default TTL.
func New(defaultTTL time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		entries:    make(map[string]Entry),
		defaultTTL: defaultTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Key derives the cache key for a provider and a normalized window.
// Distinct filters that normalize to the same window share an entry.
func Key(provider string, from, to time.Time) string {
	return provider + "|" + from.UTC().Format(time.RFC3339) + "/" + to.UTC().Format(time.RFC3339)
}

// Get returns the entry for key and whether it is still fresh. The
// second return is false both for a missing entry and a stale one;
// ok distinguishes the two.
func (c *Cache) Get(key string) (entry Entry, fresh, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok = c.entries[key]
	if !ok {
		return Entry{}, false, false
	}
	return entry, entry.Fresh(c.now()), true
}

// Put replaces the entry for key. A zero TTL takes the cache default.
func (c *Cache) Put(key string, events []event.Meeting, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = Entry{Events: events, FetchedAt: c.now(), TTL: ttl}
	c.mu.Unlock()
	c.logger.Debug("cache entry replaced", "key", key, "events", len(events), "ttl", ttl)
}

// Invalidate removes the entry for key, if any.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	_, existed := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if existed {
		c.logger.Debug("cache entry invalidated", "key", key)
	}
}

// Snapshot merges all entries' meetings, sorted by start time, and
// reports whether any contributing entry was stale.
func (c *Cache) Snapshot() (meetings []event.Meeting, stale bool) {
	c.mu.RLock()
	now := c.now()
	for _, entry := range c.entries {
		meetings = append(meetings, entry.Events...)
		if !entry.Fresh(now) {
			stale = true
		}
	}
	c.mu.RUnlock()
	event.SortByStart(meetings)
	return meetings, stale
}

// EvictExpired removes stale entries and returns how many were
// dropped. Normal reads keep stale data; this is for explicit
// housekeeping only.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	evicted := 0
	for key, entry := range c.entries {
		if !entry.Fresh(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		c.logger.Debug("evicted expired cache entries", "count", evicted)
	}
	return evicted
}

// Len returns the number of entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// NextExpiry returns the soonest time a currently fresh entry turns
// stale, and false if no fresh entry exists.
func (c *Cache) NextExpiry() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	var next time.Time
	found := false
	for _, entry := range c.entries {
		if !entry.Fresh(now) {
			continue
		}
		expiry := entry.FetchedAt.Add(entry.TTL)
		if !found || expiry.Before(next) {
			next, found = expiry, true
		}
	}
	return next, found
}
