package keyregistry

import (
	"testing"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertCreatesAndReuses(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		k, err := Upsert(tx, 0, []byte("foo"), "string")
		if err != nil {
			return err
		}
		if k.Type != "string" || k.Version != 1 {
			t.Fatalf("unexpected key after create: %+v", k)
		}
		k2, err := Upsert(tx, 0, []byte("foo"), "string")
		if err != nil {
			return err
		}
		if k2.Version != 1 {
			t.Fatalf("expected reused row, got version %d", k2.Version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestUpsertWrongType(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Upsert(tx, 0, []byte("foo"), "string"); err != nil {
			return err
		}
		_, err := Upsert(tx, 0, []byte("foo"), "hash")
		if rerr, ok := rlerr.As(err); !ok || rerr.Kind != rlerr.WrongType {
			t.Fatalf("expected WRONGTYPE, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestResolveMissing(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		_, found, err := Resolve(tx, 0, []byte("nope"))
		if err != nil {
			return err
		}
		if found {
			t.Fatal("expected not found")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestSetExpiryAndTTL(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Upsert(tx, 0, []byte("foo"), "string"); err != nil {
			return err
		}
		future := tx.Now() + 10_000
		ok, err := SetExpiry(tx, 0, []byte("foo"), &future, GuardNone)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected SetExpiry to apply")
		}
		ttl, err := TTL(tx, 0, []byte("foo"), UnitSeconds)
		if err != nil {
			return err
		}
		if ttl <= 0 || ttl > 10 {
			t.Fatalf("unexpected ttl seconds: %d", ttl)
		}

		ok, err = SetExpiry(tx, 0, []byte("foo"), &future, GuardNX)
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("GuardNX should refuse when an expiry already exists")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestResolveExpiresLazily(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Upsert(tx, 0, []byte("foo"), "string"); err != nil {
			return err
		}
		past := tx.Now() - 1
		if _, err := SetExpiry(tx, 0, []byte("foo"), &past, GuardNone); err != nil {
			return err
		}
		_, found, err := Resolve(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if found {
			t.Fatal("expected lazy expiry to remove the key")
		}
		ttl, err := TTL(tx, 0, []byte("foo"), UnitMillis)
		if err != nil {
			return err
		}
		if ttl != -2 {
			t.Fatalf("expected -2 for missing key, got %d", ttl)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestDeleteIfEmpty(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Upsert(tx, 0, []byte("foo"), "hash"); err != nil {
			return err
		}
		if err := DeleteIfEmpty(tx, 0, []byte("foo"), 0); err != nil {
			return err
		}
		_, found, err := Resolve(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if found {
			t.Fatal("expected key row removed when empty")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}
