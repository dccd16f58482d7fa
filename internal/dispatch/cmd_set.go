package dispatch

import (
	engsets "github.com/redlite/redlite/internal/engine/sets"
	"github.com/redlite/redlite/internal/storage"
)

func setCommands() []Command {
	return []Command{
		{Name: "SADD", Arity: -3, IsWrite: true, Handler: cmdSAdd},
		{Name: "SREM", Arity: -3, IsWrite: true, Handler: cmdSRem},
		{Name: "SISMEMBER", Arity: 3, Handler: cmdSIsMember},
		{Name: "SMEMBERS", Arity: 2, Handler: cmdSMembers},
		{Name: "SCARD", Arity: 2, Handler: cmdSCard},
		{Name: "SMOVE", Arity: 4, IsWrite: true, Handler: cmdSMove},
		{Name: "SDIFF", Arity: -2, Handler: cmdSSetOp(engsets.Diff)},
		{Name: "SINTER", Arity: -2, Handler: cmdSSetOp(engsets.Inter)},
		{Name: "SUNION", Arity: -2, Handler: cmdSSetOp(engsets.Union)},
		{Name: "SDIFFSTORE", Arity: -3, IsWrite: true, Handler: cmdSSetOpStore(engsets.Diff)},
		{Name: "SINTERSTORE", Arity: -3, IsWrite: true, Handler: cmdSSetOpStore(engsets.Inter)},
		{Name: "SUNIONSTORE", Arity: -3, IsWrite: true, Handler: cmdSSetOpStore(engsets.Union)},
	}
}

func cmdSAdd(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engsets.Add(tx, db, args[0], args[1:])
	})
}

func cmdSRem(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engsets.Rem(tx, db, args[0], args[1:])
	})
}

func cmdSIsMember(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engsets.IsMember(tx, db, args[0], args[1])
	})
}

func cmdSMembers(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engsets.Members(tx, db, args[0])
	})
}

func cmdSCard(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engsets.Card(tx, db, args[0])
	})
}

func cmdSMove(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engsets.Move(tx, db, args[0], args[1], args[2])
	})
}

type setOpFunc func(tx *storage.Tx, db int, keys [][]byte) ([][]byte, error)

func cmdSSetOp(op setOpFunc) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			return op(tx, db, args)
		})
	}
}

func cmdSSetOpStore(op setOpFunc) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			members, err := op(tx, db, args[1:])
			if err != nil {
				return nil, err
			}
			return engsets.StoreResult(tx, db, args[0], members)
		})
	}
}
