package history

import (
	"testing"

	"go.uber.org/zap"

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

func TestEffectivePolicyCascade(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		p, err := EffectivePolicy(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if p.Enabled {
			t.Fatal("expected history disabled with no config at any tier")
		}

		if err := SetConfig(tx, ScopeGlobal, GlobalTarget(), true, RetentionCount, 5); err != nil {
			return err
		}
		p, err = EffectivePolicy(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if !p.Enabled || p.Value != 5 {
			t.Fatalf("expected global policy to apply, got %+v", p)
		}

		if err := SetConfig(tx, ScopeDB, DBTarget(0), true, RetentionCount, 2); err != nil {
			return err
		}
		p, err = EffectivePolicy(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if p.Value != 2 {
			t.Fatalf("expected db-scoped policy to override global, got %+v", p)
		}

		if err := SetConfig(tx, ScopeKey, KeyTarget(0, []byte("foo")), true, RetentionCount, 1); err != nil {
			return err
		}
		p, err = EffectivePolicy(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if p.Value != 1 {
			t.Fatalf("expected key-scoped policy to override db, got %+v", p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestRecordEnforcesCountRetention(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if err := SetConfig(tx, ScopeGlobal, GlobalTarget(), true, RetentionCount, 2); err != nil {
			return err
		}
		for i := 0; i < 5; i++ {
			if err := Record(tx, 0, []byte("foo"), "SET", []byte("snap")); err != nil {
				return err
			}
		}
		versions, err := Get(tx, 0, []byte("foo"), 0)
		if err != nil {
			return err
		}
		if len(versions) != 2 {
			t.Fatalf("expected retention to cap at 2 versions, got %d", len(versions))
		}
		if versions[0].VersionNum != 5 || versions[1].VersionNum != 4 {
			t.Fatalf("expected newest-first versions 5,4, got %+v", versions)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestRecordNoopWhenDisabled(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if err := Record(tx, 0, []byte("foo"), "SET", []byte("snap")); err != nil {
			return err
		}
		versions, err := Get(tx, 0, []byte("foo"), 0)
		if err != nil {
			return err
		}
		if len(versions) != 0 {
			t.Fatalf("expected no versions recorded when history disabled, got %d", len(versions))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestClearAndStats(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if err := SetConfig(tx, ScopeGlobal, GlobalTarget(), true, RetentionCount, 10); err != nil {
			return err
		}
		if err := Record(tx, 0, []byte("foo"), "SET", []byte("a")); err != nil {
			return err
		}
		if err := Record(tx, 0, []byte("foo"), "SET", []byte("b")); err != nil {
			return err
		}
		count, _, _, err := Stats(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if count != 2 {
			t.Fatalf("expected 2 versions, got %d", count)
		}
		n, err := Clear(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("expected Clear to report 2 removed, got %d", n)
		}
		count, _, _, err = Stats(tx, 0, []byte("foo"))
		if err != nil {
			return err
		}
		if count != 0 {
			t.Fatalf("expected 0 versions after clear, got %d", count)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}
