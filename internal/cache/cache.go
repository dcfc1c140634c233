// Package cache memoizes Captain Cortex answers per tenant and question.
//
// Entries are valid while now-timestamp <= TTL. Expiry is lazy: an expired
// entry stays in the backing store until a Get observes it, a Sweep runs, or
// it is invalidated explicitly.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTTL = 60 * time.Second
	KeyPrefix  = "cortex:"
)

type Entry[T any] struct {
	Data      T         `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
}

// Store is the storage and eviction policy behind a Cache. Implementations
// must be safe for concurrent use.
type Store[T any] interface {
	Get(key string) (Entry[T], bool)
	Set(key string, entry Entry[T])
	// Delete removes key if its entry is still stamped at stamp. A zero stamp
	// removes the key unconditionally.
	Delete(key string, stamp time.Time) bool
	Keys() []string
	Entries() []Entry[T]
	Clear() int
	Len() int
}

type Config struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *zap.Logger
}

type Cache[T any] struct {
	store  Store[T]
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	sweepOnce sync.Once
}

type Stats struct {
	Total   int   `json:"total"`
	Active  int   `json:"active"`
	Expired int   `json:"expired"`
	TTL     int64 `json:"ttl"`
}

func New[T any](store Store[T], cfg Config) *Cache[T] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Cache[T]{
		store:  store,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
}

// GenerateKey normalizes the question so that casing and surrounding
// whitespace do not produce distinct entries for the same tenant.
func GenerateKey(question, organizationID string) string {
	return KeyPrefix + organizationID + ":" + strings.ToLower(strings.TrimSpace(question))
}

// OrganizationPattern matches every key belonging to a tenant.
func OrganizationPattern(organizationID string) string {
	return KeyPrefix + organizationID + ":"
}

func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T

	entry, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}

	age := c.now().Sub(entry.Timestamp)
	if age > c.ttl {
		c.store.Delete(key, entry.Timestamp)
		c.logger.Debug("Cache entry expired", zap.String("key", key), zap.Duration("age", age))
		return zero, false
	}

	c.logger.Debug("Cache hit", zap.String("key", key), zap.Duration("age", age))
	return entry.Data, true
}

func (c *Cache[T]) Set(key string, data T) {
	c.store.Set(key, Entry[T]{
		Data:      data,
		Timestamp: c.now(),
		Key:       key,
	})

	c.logger.Debug("Cache set", zap.String("key", key))
}

// Invalidate clears every entry when pattern is empty, otherwise every key
// containing pattern. It returns the number of entries removed.
func (c *Cache[T]) Invalidate(pattern string) int {
	if pattern == "" {
		removed := c.store.Clear()
		c.logger.Info("Cache cleared", zap.Int("entries_removed", removed))
		return removed
	}

	removed := 0
	for _, key := range c.store.Keys() {
		if strings.Contains(key, pattern) && c.store.Delete(key, time.Time{}) {
			removed++
		}
	}

	c.logger.Info("Cache invalidated",
		zap.String("pattern", pattern),
		zap.Int("entries_removed", removed),
	)
	return removed
}

// Stats reports entry counts without evicting anything.
func (c *Cache[T]) Stats() Stats {
	now := c.now()
	stats := Stats{TTL: c.ttl.Milliseconds()}

	for _, entry := range c.store.Entries() {
		stats.Total++
		if now.Sub(entry.Timestamp) > c.ttl {
			stats.Expired++
		} else {
			stats.Active++
		}
	}

	return stats
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *Cache[T]) Sweep() int {
	now := c.now()
	removed := 0

	for _, entry := range c.store.Entries() {
		if now.Sub(entry.Timestamp) > c.ttl && c.store.Delete(entry.Key, entry.Timestamp) {
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug("Cache swept", zap.Int("entries_removed", removed))
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done. Only the first
// call starts a goroutine.
func (c *Cache[T]) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	c.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.Sweep()
				}
			}
		}()

		c.logger.Info("Cache sweeper started", zap.Duration("interval", interval))
	})
}
