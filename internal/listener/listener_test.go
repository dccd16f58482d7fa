package listener

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/engine"
)

// startTestListener boots a Listener on an ephemeral port and returns a
// go-redis client dialed against it, driving the real wire protocol rather
// than calling internal/dispatch directly.
func startTestListener(t *testing.T, opts Options) *goredis.Client {
	t.Helper()
	root, err := engine.Open(engine.Options{Path: ":memory:", Log: zap.NewNop()})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { root.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	opts.Addr = addr
	l := New(root, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var client *goredis.Client
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client = goredis.NewClient(&goredis.Options{Addr: addr})
		if err := client.Ping(context.Background()).Err(); err == nil {
			return client
		}
		client.Close()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("listener never became reachable at %s", addr)
	return nil
}

func TestPingAndSetGet(t *testing.T) {
	client := startTestListener(t, Options{})
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("PING: %v", err)
	}
	if err := client.Set(ctx, "foo", "bar", 0).Err(); err != nil {
		t.Fatalf("SET: %v", err)
	}
	got, err := client.Get(ctx, "foo").Result()
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if got != "bar" {
		t.Fatalf("got %q, want %q", got, "bar")
	}
}

func TestHashRoundtrip(t *testing.T) {
	client := startTestListener(t, Options{})
	ctx := context.Background()

	if err := client.HSet(ctx, "h", map[string]any{"a": "1", "b": "2"}).Err(); err != nil {
		t.Fatalf("HSET: %v", err)
	}
	got, err := client.HGetAll(ctx, "h").Result()
	if err != nil {
		t.Fatalf("HGETALL: %v", err)
	}
	want := map[string]string{"a": "1", "b": "2"}
	if len(got) != len(want) || got["a"] != want["a"] || got["b"] != want["b"] {
		t.Fatalf("HGETALL mismatch:\ngot:  %s\nwant: %s", spew.Sdump(got), spew.Sdump(want))
	}
}

func TestMultiExecOverWire(t *testing.T) {
	client := startTestListener(t, Options{})
	ctx := context.Background()

	pipe := client.TxPipeline()
	pipe.Set(ctx, "counter", "1", 0)
	pipe.Incr(ctx, "counter")
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("TxPipeline exec: %v", err)
	}
	got, err := client.Get(ctx, "counter").Result()
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if got != "2" {
		t.Fatalf("got %q, want %q", got, "2")
	}
}

func TestPubSubDelivery(t *testing.T) {
	client := startTestListener(t, Options{})
	ctx := context.Background()

	sub := client.Subscribe(ctx, "news")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe confirm: %v", err)
	}

	if err := client.Publish(ctx, "news", "hello").Err(); err != nil {
		t.Fatalf("PUBLISH: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Payload != "hello" {
			t.Fatalf("got payload %q, want %q", msg.Payload, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMaxConnectionsLimitsConcurrency(t *testing.T) {
	client := startTestListener(t, Options{MaxConnections: 1})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("PING under capped connections: %v", err)
	}
}
