// Package embedded is a synchronous, in-process façade over the command
// dispatch table: the same semantics the RESP listener serves, called
// directly as Go methods, no socket involved. Blocking commands poll rather
// than waiting on the listener's per-connection notifier wiring.
package embedded

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/dispatch"
	"github.com/redlite/redlite/internal/engine"
	"github.com/redlite/redlite/internal/session"
)

// Client drives one logical connection's worth of command dispatch against
// an engine.Root, without any RESP framing.
type Client struct {
	log  *zap.Logger
	root *engine.Root
	d    *dispatch.Dispatcher
	sess *session.Session
}

// New opens a Client bound to root, starting on DB 0.
func New(root *engine.Root) *Client {
	log := root.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		log:  log.Named("embedded"),
		root: root,
		d:    dispatch.New(root),
		sess: session.New(),
	}
}

// Do executes one command by name and returns its reply value, the same
// shape internal/resp.Encode would otherwise serialize over the wire.
func (c *Client) Do(ctx context.Context, name string, args ...[]byte) (any, error) {
	return c.d.Dispatch(ctx, c.sess, name, args, nil)
}

func arg(s string) []byte { return []byte(s) }

// pollInterval bounds how often a *Sync helper re-checks its condition; real
// clients get woken immediately via internal/blocking inside Dispatch itself
// for single in-process calls, but cross-call polling here keeps the façade
// simple and allocation-free for the common "try once, wait a bit, retry"
// embedding use case.
const pollInterval = 20 * time.Millisecond

// BLPopSync pops the first available element among keys, polling until
// timeout elapses. A zero timeout waits indefinitely.
func (c *Client) BLPopSync(ctx context.Context, timeout time.Duration, keys ...string) (key string, value []byte, ok bool, err error) {
	return c.blockingPopSync(ctx, "LPOP", timeout, keys)
}

// BRPopSync is BLPopSync for the list's tail.
func (c *Client) BRPopSync(ctx context.Context, timeout time.Duration, keys ...string) (key string, value []byte, ok bool, err error) {
	return c.blockingPopSync(ctx, "RPOP", timeout, keys)
}

func (c *Client) blockingPopSync(ctx context.Context, popCmd string, timeout time.Duration, keys []string) (string, []byte, bool, error) {
	deadline, hasDeadline := deadlineFor(timeout)
	for {
		for _, k := range keys {
			reply, err := c.Do(ctx, popCmd, arg(k))
			if err != nil {
				return "", nil, false, err
			}
			if reply != nil {
				if b, ok := reply.([]byte); ok {
					return k, b, true, nil
				}
			}
		}
		if hasDeadline && time.Now().After(deadline) {
			return "", nil, false, nil
		}
		select {
		case <-ctx.Done():
			return "", nil, false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// XReadBlockSync reads the next entry appended to stream after lastID,
// polling until timeout elapses. A zero timeout waits indefinitely.
func (c *Client) XReadBlockSync(ctx context.Context, timeout time.Duration, stream, lastID string) (any, bool, error) {
	deadline, hasDeadline := deadlineFor(timeout)
	for {
		reply, err := c.Do(ctx, "XREAD", arg("COUNT"), arg("1"), arg("STREAMS"), arg(stream), arg(lastID))
		if err != nil {
			return nil, false, err
		}
		if reply != nil {
			if arr, ok := reply.([]any); ok && len(arr) > 0 {
				return reply, true, nil
			}
		}
		if hasDeadline && time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func deadlineFor(timeout time.Duration) (time.Time, bool) {
	if timeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}
