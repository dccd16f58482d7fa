package embedded

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/engine"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	root, err := engine.Open(engine.Options{Path: ":memory:", Log: zap.NewNop()})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { root.Close() })
	return New(root)
}

func TestDoSetGet(t *testing.T) {
	c := newTestClient(t)
	ctx := t.Context()
	if _, err := c.Do(ctx, "SET", arg("foo"), arg("bar")); err != nil {
		t.Fatalf("SET: %v", err)
	}
	reply, err := c.Do(ctx, "GET", arg("foo"))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	b, ok := reply.([]byte)
	if !ok || string(b) != "bar" {
		t.Fatalf("unexpected GET reply: %#v", reply)
	}
}

func TestBLPopSyncReturnsImmediatelyWhenAvailable(t *testing.T) {
	c := newTestClient(t)
	ctx := t.Context()
	if _, err := c.Do(ctx, "RPUSH", arg("q"), arg("x")); err != nil {
		t.Fatalf("RPUSH: %v", err)
	}
	key, val, ok, err := c.BLPopSync(ctx, 0, "q")
	if err != nil {
		t.Fatalf("BLPopSync: %v", err)
	}
	if !ok || key != "q" || string(val) != "x" {
		t.Fatalf("unexpected BLPopSync result: key=%q val=%q ok=%v", key, val, ok)
	}
}

func TestBLPopSyncWakesOnLatePush(t *testing.T) {
	c := newTestClient(t)
	ctx := t.Context()
	go func() {
		time.Sleep(40 * time.Millisecond)
		_, _ = c.Do(ctx, "RPUSH", arg("q"), arg("late"))
	}()
	key, val, ok, err := c.BLPopSync(ctx, time.Second, "q")
	if err != nil {
		t.Fatalf("BLPopSync: %v", err)
	}
	if !ok || key != "q" || string(val) != "late" {
		t.Fatalf("unexpected BLPopSync result: key=%q val=%q ok=%v", key, val, ok)
	}
}

func TestBLPopSyncTimesOut(t *testing.T) {
	c := newTestClient(t)
	ctx := t.Context()
	_, _, ok, err := c.BLPopSync(ctx, 50*time.Millisecond, "nosuchkey")
	if err != nil {
		t.Fatalf("BLPopSync: %v", err)
	}
	if ok {
		t.Fatal("expected timeout without a value")
	}
}
