package dispatch

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/engine"
	"github.com/redlite/redlite/internal/session"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *session.Session) {
	t.Helper()
	root, err := engine.Open(engine.Options{Path: ":memory:", Log: zap.NewNop()})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { root.Close() })
	return New(root), session.New()
}

func do(t *testing.T, d *Dispatcher, sess *session.Session, name string, args ...string) any {
	t.Helper()
	byteArgs := make([][]byte, len(args))
	for i, a := range args {
		byteArgs[i] = []byte(a)
	}
	reply, err := d.Dispatch(t.Context(), sess, name, byteArgs, nil)
	if err != nil {
		t.Fatalf("%s %v: %v", name, args, err)
	}
	return reply
}

func TestSetGetRoundtrip(t *testing.T) {
	d, sess := newTestDispatcher(t)
	do(t, d, sess, "SET", "foo", "bar")
	reply := do(t, d, sess, "GET", "foo")
	b, ok := reply.([]byte)
	if !ok || string(b) != "bar" {
		t.Fatalf("unexpected GET reply: %#v", reply)
	}
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	d, sess := newTestDispatcher(t)
	reply := do(t, d, sess, "GET", "nope")
	if reply != nil {
		t.Fatalf("expected nil reply for missing key, got %#v", reply)
	}
}

func TestDelRemovesKey(t *testing.T) {
	d, sess := newTestDispatcher(t)
	do(t, d, sess, "SET", "foo", "bar")
	reply := do(t, d, sess, "DEL", "foo")
	n, ok := reply.(int64)
	if !ok || n != 1 {
		t.Fatalf("expected DEL to report 1, got %#v", reply)
	}
	exists, ok := do(t, d, sess, "EXISTS", "foo").(int64)
	if !ok || exists != 0 {
		t.Fatal("expected key gone after DEL")
	}
}

func TestUnknownCommand(t *testing.T) {
	d, sess := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), sess, "NOTACOMMAND", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestWrongArity(t *testing.T) {
	d, sess := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), sess, "GET", nil, nil)
	if err == nil {
		t.Fatal("expected arity error")
	}
}

func TestMultiExecRunsQueuedCommands(t *testing.T) {
	d, sess := newTestDispatcher(t)
	do(t, d, sess, "MULTI")
	if !sess.InMulti() {
		t.Fatal("expected MULTI to open a transaction")
	}

	sess.Queue("SET", [][]byte{[]byte("counter"), []byte("1")})
	sess.Queue("INCR", [][]byte{[]byte("counter")})

	queue, ok := sess.Exec()
	if !ok {
		t.Fatal("expected EXEC to succeed")
	}
	for _, qc := range queue {
		if _, err := d.Dispatch(t.Context(), sess, qc.Name, qc.Args, nil); err != nil {
			t.Fatalf("queued command %s failed: %v", qc.Name, err)
		}
	}

	reply := do(t, d, sess, "GET", "counter")
	b, ok := reply.([]byte)
	if !ok || string(b) != "2" {
		t.Fatalf("expected counter at 2 after queued INCR, got %#v", reply)
	}
}

func TestSelectSwitchesDatabase(t *testing.T) {
	d, sess := newTestDispatcher(t)
	do(t, d, sess, "SET", "foo", "db0")
	do(t, d, sess, "SELECT", "1")
	if do(t, d, sess, "GET", "foo") != nil {
		t.Fatal("expected key invisible in a different database")
	}
	do(t, d, sess, "SELECT", "0")
	reply := do(t, d, sess, "GET", "foo")
	b, ok := reply.([]byte)
	if !ok || string(b) != "db0" {
		t.Fatalf("expected key back after returning to db0, got %#v", reply)
	}
}
