package adminhttp

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/redlite/redlite/internal/storage"
)

// statsSnapshot is what /metrics reports: adapted from the same
// TTL-cache-plus-singleflight shape used elsewhere in this codebase to
// coalesce concurrent refreshes of an expensive read.
type statsSnapshot struct {
	DiskBytes int64
	GeneratedAt time.Time
}

// statsCache serves a short-lived snapshot of store size, refreshing at
// most once per TTL and coalescing concurrent refreshes into a single
// PRAGMA query so a burst of /metrics polling from a monitoring system
// doesn't each take a store transaction.
type statsCache struct {
	store *storage.Store
	ttl   time.Duration

	mu      sync.RWMutex
	cache   statsSnapshot
	expires time.Time

	sg singleflight.Group
	now func() time.Time
}

func newStatsCache(store *storage.Store, ttl time.Duration) *statsCache {
	if ttl <= 0 {
		ttl = 250 * time.Millisecond
	}
	return &statsCache{store: store, ttl: ttl, now: time.Now}
}

func (c *statsCache) Get(ctx context.Context) (statsSnapshot, error) {
	c.mu.RLock()
	if c.now().Before(c.expires) {
		snap := c.cache
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.sg.Do("stats-refresh", func() (any, error) {
		c.mu.RLock()
		if c.now().Before(c.expires) {
			snap := c.cache
			c.mu.RUnlock()
			return snap, nil
		}
		c.mu.RUnlock()

		var pageCount, pageSize int64
		err := c.store.Transact(ctx, func(tx *storage.Tx) error {
			if err := tx.QueryRow(`PRAGMA page_count`).Scan(&pageCount); err != nil {
				return err
			}
			return tx.QueryRow(`PRAGMA page_size`).Scan(&pageSize)
		})
		if err != nil {
			return nil, err
		}

		snap := statsSnapshot{DiskBytes: pageCount * pageSize, GeneratedAt: c.now()}
		c.mu.Lock()
		c.cache = snap
		c.expires = snap.GeneratedAt.Add(c.ttl)
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return statsSnapshot{}, err
	}
	return v.(statsSnapshot), nil
}
