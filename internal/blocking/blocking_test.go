package blocking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitSucceedsImmediately(t *testing.T) {
	n := New()
	called := 0
	err := Wait(context.Background(), n, time.Second, func() (bool, error) {
		called++
		return true, nil
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if called != 1 {
		t.Fatalf("expected a single attempt, got %d", called)
	}
}

func TestWaitWakesOnBroadcast(t *testing.T) {
	n := New()
	ready := false
	go func() {
		time.Sleep(20 * time.Millisecond)
		ready = true
		n.Broadcast()
	}()
	err := Wait(context.Background(), n, 2*time.Second, func() (bool, error) {
		return ready, nil
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestWaitTimesOut(t *testing.T) {
	n := New()
	err := Wait(context.Background(), n, 20*time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestWaitPropagatesTryError(t *testing.T) {
	n := New()
	wantErr := errors.New("boom")
	err := Wait(context.Background(), n, time.Second, func() (bool, error) {
		return false, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}

func TestWaitRespectsContextCancel(t *testing.T) {
	n := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Wait(ctx, n, 2*time.Second, func() (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
