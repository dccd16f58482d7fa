// Package listener runs the TCP accept loop that exposes internal/dispatch
// over the Redis wire protocol: one goroutine per connection, a semaphore
// capping how many run concurrently, and per-connection RESP framing.
package listener

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/redlite/redlite/internal/dispatch"
	"github.com/redlite/redlite/internal/engine"
	"github.com/redlite/redlite/internal/pubsub"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/session"
)

// Options configures the listener.
type Options struct {
	Addr string // "host:port" to listen on

	// MaxConnections bounds how many connections run their command loop
	// concurrently; additional accepted connections block until a slot
	// frees. 0 disables the cap.
	MaxConnections int64
}

func (o *Options) setDefaults() {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6380"
	}
}

// Listener accepts Redis-protocol connections and drives them through a
// Dispatcher.
type Listener struct {
	log  *zap.Logger
	root *engine.Root
	d    *dispatch.Dispatcher
	opts Options
	sem  *semaphore.Weighted
}

// New builds a Listener bound to root's services.
func New(root *engine.Root, opts Options) *Listener {
	opts.setDefaults()
	log := root.Log
	if log == nil {
		log = zap.NewNop()
	}
	var sem *semaphore.Weighted
	if opts.MaxConnections > 0 {
		sem = semaphore.NewWeighted(opts.MaxConnections)
	}
	return &Listener{
		log:  log.Named("listener"),
		root: root,
		d:    dispatch.New(root),
		opts: opts,
		sem:  sem,
	}
}

// Run opens the listening socket and serves connections until ctx is
// canceled or an unrecoverable Accept error occurs.
func (l *Listener) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.opts.Addr)
	if err != nil {
		return err
	}
	l.log.Info("listening", zap.String("addr", l.opts.Addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			if l.sem != nil {
				if err := l.sem.Acquire(gctx, 1); err != nil {
					conn.Close()
					continue
				}
			}
			go func() {
				if l.sem != nil {
					defer l.sem.Release(1)
				}
				l.serve(gctx, conn)
			}()
		}
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// conn bundles one client connection's framing and write mutex; pub/sub
// delivery and the command loop both write through it, so every write goes
// through send to stay interleave-safe.
type conn struct {
	w    *resp.Writer
	mu   sync.Mutex
	sess *session.Session
}

func (c *conn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.SetProto(c.sess.Proto())
	if err := resp.Encode(c.w, v); err != nil {
		return err
	}
	return c.w.Flush()
}

func (l *Listener) serve(ctx context.Context, nc net.Conn) {
	defer nc.Close()
	sess := session.New()
	c := &conn{w: resp.NewWriter(nc), sess: sess}
	reader := resp.NewReader(nc)

	l.root.PubSub.Register(sess.ID, func(msg pubsub.Message) {
		kind := "message"
		var reply resp.Push
		if msg.Pattern != "" {
			kind = "pmessage"
			reply = []any{kind, msg.Pattern, msg.Channel, msg.Payload}
		} else {
			reply = []any{kind, msg.Channel, msg.Payload}
		}
		_ = c.send(reply)
	})
	defer l.root.PubSub.Unregister(sess.ID)

	log := l.log.With(zap.String("session", sess.ID), zap.String("remote", nc.RemoteAddr().String()))
	log.Debug("connection opened")
	defer log.Debug("connection closed")

	push := func(v any) error { return c.send(v) }

	for {
		if deadline, ok := ctx.Deadline(); ok {
			_ = nc.SetReadDeadline(deadline)
		}
		args, err := reader.ReadCommand()
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		name := strings.ToUpper(string(args[0]))

		if name == "QUIT" {
			_ = c.send("OK")
			return
		}

		if sess.InMulti() && name != "EXEC" && name != "DISCARD" && name != "MULTI" && name != "WATCH" {
			if _, ok := l.d.Lookup(name); !ok {
				sess.MarkDirty()
				_ = c.send(rlerr.New(rlerr.Unknown, "unknown command '%s'", args[0]))
				continue
			}
			sess.Queue(name, args[1:])
			_ = c.send("QUEUED")
			continue
		}

		if requirePass := l.root.Config.RequirePass(); requirePass != "" && !sess.Authenticated() &&
			name != "AUTH" && name != "HELLO" && name != "QUIT" {
			_ = c.send(rlerr.New(rlerr.NoAuth, "Authentication required."))
			continue
		}

		cmd, known := l.d.Lookup(name)
		result, err := l.d.Dispatch(ctx, sess, name, args[1:], push)
		if err != nil {
			_ = c.send(err)
			continue
		}
		if known && cmd.NoImplicitReply {
			continue
		}
		if err := c.send(result); err != nil {
			return
		}
	}
}
