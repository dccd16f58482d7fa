package dispatch

import (
	"github.com/redlite/redlite/internal/keyregistry"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func txCommands() []Command {
	return []Command{
		{Name: "MULTI", Arity: 1, AllowWhileSubscribed: true, Handler: cmdMulti},
		{Name: "EXEC", Arity: 1, AllowWhileSubscribed: true, Handler: cmdExec},
		{Name: "DISCARD", Arity: 1, AllowWhileSubscribed: true, Handler: cmdDiscard},
		{Name: "WATCH", Arity: -2, AllowWhileSubscribed: true, Handler: cmdWatch},
		{Name: "UNWATCH", Arity: 1, AllowWhileSubscribed: true, Handler: cmdUnwatch},
	}
}

func cmdMulti(c *Context, args [][]byte) (any, error) {
	if !c.Session.Multi() {
		return nil, rlerr.New(rlerr.Unknown, "MULTI calls can not be nested")
	}
	return "OK", nil
}

func cmdDiscard(c *Context, args [][]byte) (any, error) {
	if !c.Session.Discard() {
		return nil, rlerr.New(rlerr.Unknown, "DISCARD without MULTI")
	}
	return "OK", nil
}

func cmdWatch(c *Context, args [][]byte) (any, error) {
	if c.Session.InMulti() {
		return nil, rlerr.New(rlerr.Unknown, "WATCH inside MULTI is not allowed")
	}
	_, err := transact(c, func(tx *storage.Tx, db int) (any, error) {
		for _, key := range args {
			k, found, err := keyregistry.Resolve(tx, db, key)
			if err != nil {
				return nil, err
			}
			var version int64
			if found {
				version = k.Version
			}
			c.Session.Watch(db, string(key), version)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return "OK", nil
}

func cmdUnwatch(c *Context, args [][]byte) (any, error) {
	c.Session.ClearWatch()
	return "OK", nil
}

func cmdExec(c *Context, args [][]byte) (any, error) {
	queue, ok := c.Session.Exec()
	if !ok {
		return nil, rlerr.ErrExecAbort
	}
	valid := c.Session.WatchesStillValid(func(db int, key string) int64 {
		var version int64
		_ = c.Root.Store.Transact(c.ctx, func(tx *storage.Tx) error {
			k, found, err := keyregistry.Resolve(tx, db, []byte(key))
			if err != nil {
				return err
			}
			if found {
				version = k.Version
			}
			return nil
		})
		return version
	})
	if !valid {
		return nil, nil
	}
	results := make([]any, len(queue))
	for i, q := range queue {
		r, err := c.dispatchQueued(q.Name, q.Args)
		if err != nil {
			results[i] = err
		} else {
			results[i] = r
		}
	}
	return results, nil
}
