// Package dispatch maps command names to handlers, enforces arity and the
// MULTI/SUBSCRIBE mode gates, and drives each handler's single backing
// transaction. Handlers return a plain Go value (see internal/resp.Encode
// for the supported set) or an error; dispatch never touches the wire.
package dispatch

import (
	"context"
	"strings"

	"github.com/redlite/redlite/internal/engine"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/session"
	"github.com/redlite/redlite/internal/storage"
)

// Context is the per-call environment a handler runs in.
type Context struct {
	ctx     context.Context
	Root    *engine.Root
	Session *session.Session
	// Push, when non-nil, lets a handler emit more than one reply frame for
	// a single command (SUBSCRIBE/UNSUBSCRIBE confirm once per channel).
	// The listener wires this directly to the connection's RESP writer.
	Push func(v any) error
	// dispatcher lets EXEC re-enter command dispatch for each queued
	// command without the cmd_tx.go handler needing its own copy of the
	// command table.
	dispatcher *Dispatcher
}

// HandlerFunc implements one command. Most handlers call transact to run
// their logic inside a single store transaction.
type HandlerFunc func(c *Context, args [][]byte) (any, error)

// Command describes one entry in the dispatch table.
type Command struct {
	Name string
	// Arity follows the Redis convention: a positive value is the exact
	// number of arguments (command name included); a negative value is a
	// minimum.
	Arity                int
	IsWrite              bool
	AllowWhileSubscribed bool
	// NoImplicitReply marks commands that emit all of their reply frames
	// through Context.Push themselves (SUBSCRIBE and kin, once per channel
	// argument) — the listener must not additionally encode the handler's
	// returned value as a reply.
	NoImplicitReply bool
	Handler         HandlerFunc
}

func checkArity(cmd Command, argc int) bool {
	if cmd.Arity >= 0 {
		return argc == cmd.Arity
	}
	return argc >= -cmd.Arity
}

// Dispatcher routes commands by name.
type Dispatcher struct {
	root  *engine.Root
	table map[string]Command
}

// New builds a Dispatcher with the full built-in command table.
func New(root *engine.Root) *Dispatcher {
	d := &Dispatcher{root: root, table: make(map[string]Command)}
	d.register(connectionCommands()...)
	d.register(genericCommands()...)
	d.register(stringCommands()...)
	d.register(hashCommands()...)
	d.register(listCommands()...)
	d.register(setCommands()...)
	d.register(zsetCommands()...)
	d.register(streamCommands()...)
	d.register(pubsubCommands()...)
	d.register(txCommands()...)
	d.register(adminCommands()...)
	return d
}

func (d *Dispatcher) register(cmds ...Command) {
	for _, c := range cmds {
		d.table[strings.ToUpper(c.Name)] = c
	}
}

// Lookup returns a command's metadata by name.
func (d *Dispatcher) Lookup(name string) (Command, bool) {
	c, ok := d.table[strings.ToUpper(name)]
	return c, ok
}

// Dispatch executes one command against the given session, enforcing arity
// and the subscribe-mode gate. MULTI-queueing is the caller's
// responsibility (the listener checks Session.InMulti before reaching
// here); Dispatch always executes immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, name string, args [][]byte, push func(v any) error) (any, error) {
	cmd, ok := d.table[strings.ToUpper(name)]
	if !ok {
		return nil, rlerr.New(rlerr.Unknown, "unknown command '%s'", name)
	}
	if !checkArity(cmd, len(args)+1) {
		return nil, rlerr.New(rlerr.Unknown, "wrong number of arguments for '%s' command", name)
	}
	if sess.SubscriptionCount() > 0 && sess.Proto() < 3 && !cmd.AllowWhileSubscribed {
		return nil, rlerr.New(rlerr.Unknown, "Can't execute '%s': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context", strings.ToLower(name))
	}
	c := &Context{ctx: ctx, Root: d.root, Session: sess, Push: push, dispatcher: d}
	return cmd.Handler(c, args)
}

// dispatchQueued re-enters command dispatch for one command already queued
// by MULTI, bypassing the subscribe-gate (EXEC itself is never reached while
// subscribed in RESP2) but still re-checking arity: queuing only validated
// that the command name existed, not that it was called correctly.
func (c *Context) dispatchQueued(name string, args [][]byte) (any, error) {
	cmd, ok := c.dispatcher.table[strings.ToUpper(name)]
	if !ok {
		return nil, rlerr.New(rlerr.Unknown, "unknown command '%s'", name)
	}
	if !checkArity(cmd, len(args)+1) {
		return nil, rlerr.New(rlerr.Unknown, "wrong number of arguments for '%s' command", name)
	}
	sub := &Context{ctx: c.ctx, Root: c.Root, Session: c.Session, Push: c.Push, dispatcher: c.dispatcher}
	return cmd.Handler(sub, args)
}

// transact runs fn inside one store transaction bound to the session's
// currently selected database.
func transact(c *Context, fn func(tx *storage.Tx, db int) (any, error)) (any, error) {
	var result any
	db := c.Session.DB()
	err := c.Root.Store.Transact(c.ctx, func(tx *storage.Tx) error {
		r, err := fn(tx, db)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
