package lists

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

func bs(vals ...string) [][]byte {
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out
}

func strs(vals [][]byte) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

func eqStrs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPushAndRange(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		n, err := Push(tx, 0, []byte("mylist"), bs("b", "c"), false)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("expected length 2, got %d", n)
		}
		if _, err := Push(tx, 0, []byte("mylist"), bs("a"), true); err != nil {
			return err
		}
		vals, err := Range(tx, 0, []byte("mylist"), 0, -1)
		if err != nil {
			return err
		}
		eqStrs(t, strs(vals), []string{"a", "b", "c"})
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestPopEmptiesAndDeletesKey(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Push(tx, 0, []byte("q"), bs("x"), false); err != nil {
			return err
		}
		popped, err := Pop(tx, 0, []byte("q"), 1, true)
		if err != nil {
			return err
		}
		eqStrs(t, strs(popped), []string{"x"})
		n, err := Len(tx, 0, []byte("q"))
		if err != nil {
			return err
		}
		if n != 0 {
			t.Fatalf("expected list gone after popping last element, got len %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestLSetAndLIndex(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Push(tx, 0, []byte("l"), bs("a", "b", "c"), false); err != nil {
			return err
		}
		if err := Set(tx, 0, []byte("l"), 1, []byte("B")); err != nil {
			return err
		}
		v, ok, err := Index(tx, 0, []byte("l"), -2)
		if err != nil {
			return err
		}
		if !ok || string(v) != "B" {
			t.Fatalf("expected B at index -2, got %q (ok=%v)", v, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestInsertBeforeAndAfter(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Push(tx, 0, []byte("l"), bs("a", "c"), false); err != nil {
			return err
		}
		if _, err := Insert(tx, 0, []byte("l"), true, []byte("c"), []byte("b")); err != nil {
			return err
		}
		if _, err := Insert(tx, 0, []byte("l"), false, []byte("c"), []byte("d")); err != nil {
			return err
		}
		vals, err := Range(tx, 0, []byte("l"), 0, -1)
		if err != nil {
			return err
		}
		eqStrs(t, strs(vals), []string{"a", "b", "c", "d"})
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestTrim(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Push(tx, 0, []byte("l"), bs("a", "b", "c", "d"), false); err != nil {
			return err
		}
		if err := Trim(tx, 0, []byte("l"), 1, 2); err != nil {
			return err
		}
		vals, err := Range(tx, 0, []byte("l"), 0, -1)
		if err != nil {
			return err
		}
		eqStrs(t, strs(vals), []string{"b", "c"})
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestMoveBetweenLists(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Push(tx, 0, []byte("src"), bs("a", "b"), false); err != nil {
			return err
		}
		v, ok, err := Move(tx, 0, []byte("src"), []byte("dst"), false, true)
		if err != nil {
			return err
		}
		if !ok || string(v) != "b" {
			t.Fatalf("expected to move 'b', got %q (ok=%v)", v, ok)
		}
		vals, err := Range(tx, 0, []byte("dst"), 0, -1)
		if err != nil {
			return err
		}
		eqStrs(t, strs(vals), []string{"b"})
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}
