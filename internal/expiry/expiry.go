// Package expiry runs the engine's background maintenance: eager autovacuum
// of expired keys, batched access-statistic flushing, and sampled eviction
// under memory/disk pressure. Each loop follows the supervise-until-cancelled
// shape used for long-running goroutines elsewhere in this codebase: a timer
// reset each pass, a select on ctx.Done() and the timer channel.
package expiry

import (
	"context"
	"database/sql"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/storage"
)

// Policy is a maxmemory-policy value.
type Policy string

const (
	NoEviction     Policy = "noeviction"
	AllKeysLRU     Policy = "allkeys-lru"
	AllKeysLFU     Policy = "allkeys-lfu"
	AllKeysRandom  Policy = "allkeys-random"
	VolatileLRU    Policy = "volatile-lru"
	VolatileLFU    Policy = "volatile-lfu"
	VolatileRandom Policy = "volatile-random"
	VolatileTTL    Policy = "volatile-ttl"
)

// Settings is the live, mutable configuration expiry's loops read on every
// pass. internal/config's Config implements it; the interface lives here so
// expiry has no import-time dependency on config.
type Settings interface {
	AccessFlushInterval() time.Duration
	AutovacuumEnabled() bool
	AutovacuumInterval() time.Duration
	MaxMemoryBytes() int64
	MaxDiskBytes() int64
	EvictionPolicy() Policy
}

const sampleSize = 5

// accessKey identifies one (db, key) pair in the pending-flush map.
type accessKey struct {
	db  int
	key string
}

type accessEntry struct {
	lastAccessMs int64
	count        int64
}

// AccessTracker batches per-access bookkeeping in memory and flushes it to
// the keys table on a timer, so hot paths never pay a write transaction per
// GET/HGET/etc. Flushing is best-effort: a lost interval of stats on crash
// is acceptable, a write-amplifying tracker is not.
type AccessTracker struct {
	store    *storage.Store
	settings Settings
	log      *zap.Logger

	mu      chan struct{} // binary mutex: buffered chan of size 1
	pending map[accessKey]*accessEntry
}

// NewAccessTracker constructs a tracker; call Run to start its flush loop.
func NewAccessTracker(store *storage.Store, settings Settings, log *zap.Logger) *AccessTracker {
	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	return &AccessTracker{
		store:    store,
		settings: settings,
		log:      log.Named("access_tracker"),
		mu:       mu,
		pending:  make(map[accessKey]*accessEntry),
	}
}

func (t *AccessTracker) lock()   { <-t.mu }
func (t *AccessTracker) unlock() { t.mu <- struct{}{} }

// Record notes one access to (db, key) at nowMs. Safe for concurrent callers.
func (t *AccessTracker) Record(db int, key []byte, nowMs int64) {
	t.lock()
	defer t.unlock()
	k := accessKey{db: db, key: string(key)}
	e, ok := t.pending[k]
	if !ok {
		e = &accessEntry{}
		t.pending[k] = e
	}
	e.lastAccessMs = nowMs
	e.count++
}

// Run flushes pending access stats on settings.AccessFlushInterval until ctx
// is cancelled, then performs a final flush.
func (t *AccessTracker) Run(ctx context.Context) {
	timer := time.NewTimer(t.settings.AccessFlushInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			t.flush(context.Background())
			t.log.Info("access tracker stopped", zap.String("reason", ctx.Err().Error()))
			return
		case <-timer.C:
			t.flush(ctx)
			timer.Reset(t.settings.AccessFlushInterval())
		}
	}
}

func (t *AccessTracker) flush(ctx context.Context) {
	t.lock()
	batch := t.pending
	t.pending = make(map[accessKey]*accessEntry)
	t.unlock()

	if len(batch) == 0 {
		return
	}
	err := t.store.Transact(ctx, func(tx *storage.Tx) error {
		for k, e := range batch {
			if _, err := tx.Exec(
				`UPDATE keys SET last_access_ms = ?, access_count = access_count + ? WHERE db = ? AND key = ?`,
				e.lastAccessMs, e.count, k.db, []byte(k.key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.log.Warn("access flush failed", zap.Error(err), zap.Int("batch_size", len(batch)))
	}
}

// Vacuum eagerly sweeps expired keys rather than waiting for them to be
// touched (lazy expiration handles the rest, see internal/keyregistry).
type Vacuum struct {
	store    *storage.Store
	settings Settings
	log      *zap.Logger
}

func NewVacuum(store *storage.Store, settings Settings, log *zap.Logger) *Vacuum {
	return &Vacuum{store: store, settings: settings, log: log.Named("vacuum")}
}

// Run sweeps on settings.AutovacuumInterval until ctx is cancelled. A sweep
// is skipped entirely while autovacuum is disabled, but the loop keeps
// ticking so re-enabling it at runtime (CONFIG SET) takes effect on the next
// tick without restarting the loop.
func (v *Vacuum) Run(ctx context.Context) {
	timer := time.NewTimer(v.settings.AutovacuumInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			v.log.Info("vacuum stopped", zap.String("reason", ctx.Err().Error()))
			return
		case <-timer.C:
			if v.settings.AutovacuumEnabled() {
				if n, err := v.sweep(ctx); err != nil {
					v.log.Warn("vacuum sweep failed", zap.Error(err))
				} else if n > 0 {
					v.log.Info("vacuum swept expired keys", zap.Int64("count", n))
				}
			}
			timer.Reset(v.settings.AutovacuumInterval())
		}
	}
}

func (v *Vacuum) sweep(ctx context.Context) (int64, error) {
	var affected int64
	err := v.store.Transact(ctx, func(tx *storage.Tx) error {
		res, err := tx.Exec(`DELETE FROM keys WHERE expire_at_ms IS NOT NULL AND expire_at_ms <= ?`, tx.Now())
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// Evictor enforces maxmemory/maxdisk by sampling candidate keys and removing
// the worst offender under the active policy until usage is back under the
// configured ceiling, or no eligible candidate remains.
type Evictor struct {
	store    *storage.Store
	settings Settings
	log      *zap.Logger
	sizeFn   func(ctx context.Context) (int64, error)
}

// NewEvictor takes sizeFn so the size source (page-count estimate, on-disk
// file size, ...) is pluggable without the evictor knowing about SQLite
// internals.
func NewEvictor(store *storage.Store, settings Settings, log *zap.Logger, sizeFn func(ctx context.Context) (int64, error)) *Evictor {
	return &Evictor{store: store, settings: settings, log: log.Named("evictor"), sizeFn: sizeFn}
}

// Run checks memory/disk pressure on settings.AccessFlushInterval until ctx
// is cancelled. Eviction piggybacks on the access-flush cadence rather than
// its own Settings knob: pressure only builds through writes the access
// tracker is already timing its flushes around, so a separate interval would
// just be another number to keep in sync.
func (e *Evictor) Run(ctx context.Context) {
	timer := time.NewTimer(e.settings.AccessFlushInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("evictor stopped", zap.String("reason", ctx.Err().Error()))
			return
		case <-timer.C:
			if n, err := e.EvictUntilUnder(ctx); err != nil {
				e.log.Warn("eviction pass failed", zap.Error(err))
			} else if n > 0 {
				e.log.Info("evicted keys under pressure", zap.Int("count", n))
			}
			timer.Reset(e.settings.AccessFlushInterval())
		}
	}
}

// EvictUntilUnder removes keys until the tracked size is under both
// maxmemory and maxdisk, or the policy forbids further eviction. It returns
// the number of keys evicted.
func (e *Evictor) EvictUntilUnder(ctx context.Context) (int, error) {
	policy := e.settings.EvictionPolicy()
	evicted := 0
	for {
		size, err := e.sizeFn(ctx)
		if err != nil {
			return evicted, err
		}
		limit := e.settings.MaxMemoryBytes()
		if diskLimit := e.settings.MaxDiskBytes(); diskLimit > 0 && (limit <= 0 || diskLimit < limit) {
			limit = diskLimit
		}
		if limit <= 0 || size <= limit {
			return evicted, nil
		}
		if policy == NoEviction {
			return evicted, nil
		}
		ok, err := e.evictOne(ctx, policy)
		if err != nil {
			return evicted, err
		}
		if !ok {
			e.log.Warn("eviction pressure but no eligible key", zap.String("policy", string(policy)))
			return evicted, nil
		}
		evicted++
	}
}

type candidate struct {
	db           int
	key          []byte
	lastAccessMs int64
	accessCount  int64
	expireAtMs   sql.NullInt64
	createdAtMs  int64
}

func (e *Evictor) evictOne(ctx context.Context, policy Policy) (bool, error) {
	volatileOnly := policy == VolatileLRU || policy == VolatileLFU || policy == VolatileRandom || policy == VolatileTTL
	var victim *candidate
	err := e.store.Transact(ctx, func(tx *storage.Tx) error {
		query := `SELECT db, key, last_access_ms, access_count, expire_at_ms, created_at_ms FROM keys`
		if volatileOnly {
			query += ` WHERE expire_at_ms IS NOT NULL`
		}
		query += ` ORDER BY RANDOM() LIMIT ?`
		rows, err := tx.Query(query, sampleSize)
		if err != nil {
			return err
		}
		defer rows.Close()
		var pool []candidate
		for rows.Next() {
			var c candidate
			if err := rows.Scan(&c.db, &c.key, &c.lastAccessMs, &c.accessCount, &c.expireAtMs, &c.createdAtMs); err != nil {
				return err
			}
			pool = append(pool, c)
		}
		if len(pool) == 0 {
			return nil
		}
		victim = pickVictim(pool, policy)
		if _, err := tx.Exec(`DELETE FROM keys WHERE db = ? AND key = ?`, victim.db, victim.key); err != nil {
			return err
		}
		return nil
	})
	if err != nil || victim == nil {
		return false, err
	}
	return true, nil
}

func pickVictim(pool []candidate, policy Policy) *candidate {
	switch policy {
	case AllKeysLRU, VolatileLRU:
		best := &pool[0]
		for i := range pool[1:] {
			c := &pool[i+1]
			if c.lastAccessMs < best.lastAccessMs {
				best = c
			}
		}
		return best
	case AllKeysLFU, VolatileLFU:
		best := &pool[0]
		for i := range pool[1:] {
			c := &pool[i+1]
			if c.accessCount < best.accessCount {
				best = c
			}
		}
		return best
	case VolatileTTL:
		best := &pool[0]
		for i := range pool[1:] {
			c := &pool[i+1]
			if c.expireAtMs.Valid && (!best.expireAtMs.Valid || c.expireAtMs.Int64 < best.expireAtMs.Int64) {
				best = c
			}
		}
		return best
	default: // AllKeysRandom, VolatileRandom
		return &pool[rand.Intn(len(pool))]
	}
}
