package expiry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/storage"
)

// fakeSettings is a fixed-value Settings for tests that don't exercise
// internal/config directly.
type fakeSettings struct {
	maxMemory, maxDisk int64
	policy             Policy
	autovacuum         bool
}

func (f fakeSettings) AccessFlushInterval() time.Duration { return time.Second }
func (f fakeSettings) AutovacuumEnabled() bool             { return f.autovacuum }
func (f fakeSettings) AutovacuumInterval() time.Duration   { return time.Second }
func (f fakeSettings) MaxMemoryBytes() int64               { return f.maxMemory }
func (f fakeSettings) MaxDiskBytes() int64                  { return f.maxDisk }
func (f fakeSettings) EvictionPolicy() Policy               { return f.policy }

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertKey(t *testing.T, store *storage.Store, db int, key string, expireAtMs *int64) {
	t.Helper()
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO keys (db, key, type, expire_at_ms, created_at_ms, updated_at_ms, version, last_access_ms, access_count)
			 VALUES (?, ?, 'string', ?, ?, ?, 1, ?, 0)`,
			db, []byte(key), expireAtMs, tx.Now(), tx.Now(), tx.Now())
		return err
	})
	if err != nil {
		t.Fatalf("insert key: %v", err)
	}
}

func TestAccessTrackerFlush(t *testing.T) {
	store := openTestStore(t)
	insertKey(t, store, 0, "foo", nil)

	at := NewAccessTracker(store, fakeSettings{}, zap.NewNop())
	at.Record(0, []byte("foo"), 12345)
	at.flush(t.Context())

	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		var lastAccess, count int64
		if err := tx.QueryRow(`SELECT last_access_ms, access_count FROM keys WHERE db=0 AND key=?`, []byte("foo")).Scan(&lastAccess, &count); err != nil {
			return err
		}
		if lastAccess != 12345 || count != 1 {
			t.Fatalf("unexpected flushed stats: last_access=%d count=%d", lastAccess, count)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestVacuumSweepRemovesExpiredKeys(t *testing.T) {
	store := openTestStore(t)
	past := int64(1)
	insertKey(t, store, 0, "expired", &past)
	insertKey(t, store, 0, "fresh", nil)

	v := NewVacuum(store, fakeSettings{}, zap.NewNop())
	n, err := v.sweep(t.Context())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 key swept, got %d", n)
	}

	err = store.Transact(t.Context(), func(tx *storage.Tx) error {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM keys`).Scan(&count); err != nil {
			return err
		}
		if count != 1 {
			t.Fatalf("expected 1 remaining key, got %d", count)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestEvictUntilUnderNoEvictionPolicyNeverEvicts(t *testing.T) {
	store := openTestStore(t)
	insertKey(t, store, 0, "a", nil)

	e := NewEvictor(store, fakeSettings{maxMemory: 1, policy: NoEviction}, zap.NewNop(),
		func(_ context.Context) (int64, error) { return 1000, nil })
	n, err := e.EvictUntilUnder(t.Context())
	if err != nil {
		t.Fatalf("EvictUntilUnder: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no eviction under noeviction policy, got %d", n)
	}
}

func TestEvictUntilUnderEvictsUnderPressure(t *testing.T) {
	store := openTestStore(t)
	insertKey(t, store, 0, "a", nil)
	insertKey(t, store, 0, "b", nil)

	sizes := []int64{1000, 1000, 0}
	call := 0
	e := NewEvictor(store, fakeSettings{maxMemory: 100, policy: AllKeysRandom}, zap.NewNop(),
		func(_ context.Context) (int64, error) {
			s := sizes[call]
			if call < len(sizes)-1 {
				call++
			}
			return s, nil
		})
	n, err := e.EvictUntilUnder(t.Context())
	if err != nil {
		t.Fatalf("EvictUntilUnder: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected both keys evicted, got %d", n)
	}
}
