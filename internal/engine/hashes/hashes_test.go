package hashes

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

func TestSetAndGetAll(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		n, err := Set(tx, 0, []byte("h"), map[string][]byte{"a": []byte("1"), "b": []byte("2")})
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("expected 2 new fields, got %d", n)
		}
		all, err := GetAll(tx, 0, []byte("h"))
		if err != nil {
			return err
		}
		if string(all["a"]) != "1" || string(all["b"]) != "2" {
			t.Fatalf("unexpected GetAll: %v", all)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestSetNXRefusesExisting(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		ok, err := SetNX(tx, 0, []byte("h"), "a", []byte("1"))
		if err != nil || !ok {
			t.Fatalf("expected first SetNX to apply, ok=%v err=%v", ok, err)
		}
		ok, err = SetNX(tx, 0, []byte("h"), "a", []byte("2"))
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("expected SetNX to refuse an existing field")
		}
		v, found, err := Get(tx, 0, []byte("h"), "a")
		if err != nil {
			return err
		}
		if !found || string(v) != "1" {
			t.Fatalf("expected field unchanged, got %q (found=%v)", v, found)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestDelRemovesFieldsAndCascadesKey(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		if _, err := Set(tx, 0, []byte("h"), map[string][]byte{"a": []byte("1")}); err != nil {
			return err
		}
		n, err := Del(tx, 0, []byte("h"), []string{"a"})
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("expected 1 field deleted, got %d", n)
		}
		l, err := Len(tx, 0, []byte("h"))
		if err != nil {
			return err
		}
		if l != 0 {
			t.Fatalf("expected hash gone after deleting its last field, got len %d", l)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestIncrByAndIncrByFloat(t *testing.T) {
	store := openTestStore(t)
	err := store.Transact(t.Context(), func(tx *storage.Tx) error {
		n, err := IncrBy(tx, 0, []byte("h"), "count", 5)
		if err != nil {
			return err
		}
		if n != 5 {
			t.Fatalf("expected count 5, got %d", n)
		}
		n, err = IncrBy(tx, 0, []byte("h"), "count", -2)
		if err != nil {
			return err
		}
		if n != 3 {
			t.Fatalf("expected count 3, got %d", n)
		}
		f, err := IncrByFloat(tx, 0, []byte("h"), "ratio", 1.5)
		if err != nil {
			return err
		}
		if f != 1.5 {
			t.Fatalf("expected ratio 1.5, got %v", f)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}
