package dispatch

import (
	"strconv"

	enghashes "github.com/redlite/redlite/internal/engine/hashes"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func hashCommands() []Command {
	return []Command{
		{Name: "HSET", Arity: -4, IsWrite: true, Handler: cmdHSet},
		{Name: "HSETNX", Arity: 4, IsWrite: true, Handler: cmdHSetNX},
		{Name: "HGET", Arity: 3, Handler: cmdHGet},
		{Name: "HMGET", Arity: -3, Handler: cmdHMGet},
		{Name: "HGETALL", Arity: 2, Handler: cmdHGetAll},
		{Name: "HDEL", Arity: -3, IsWrite: true, Handler: cmdHDel},
		{Name: "HLEN", Arity: 2, Handler: cmdHLen},
		{Name: "HEXISTS", Arity: 3, Handler: cmdHExists},
		{Name: "HINCRBY", Arity: 4, IsWrite: true, Handler: cmdHIncrBy},
		{Name: "HINCRBYFLOAT", Arity: 4, IsWrite: true, Handler: cmdHIncrByFloat},
		{Name: "HKEYS", Arity: 2, Handler: cmdHKeys},
		{Name: "HVALS", Arity: 2, Handler: cmdHVals},
	}
}

func cmdHSet(c *Context, args [][]byte) (any, error) {
	pairs := args[1:]
	if len(pairs)%2 != 0 {
		return nil, rlerr.ErrSyntax
	}
	fields := make(map[string][]byte, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields[string(pairs[i])] = pairs[i+1]
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return enghashes.Set(tx, db, args[0], fields)
	})
}

func cmdHSetNX(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return enghashes.SetNX(tx, db, args[0], string(args[1]), args[2])
	})
}

func cmdHGet(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		v, ok, err := enghashes.Get(tx, db, args[0], string(args[1]))
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	})
}

func cmdHMGet(c *Context, args [][]byte) (any, error) {
	fields := make([]string, len(args)-1)
	for i, f := range args[1:] {
		fields[i] = string(f)
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		values, oks, err := enghashes.MGet(tx, db, args[0], fields)
		if err != nil {
			return nil, err
		}
		out := make([][]byte, len(values))
		for i, ok := range oks {
			if ok {
				out[i] = values[i]
			}
		}
		return out, nil
	})
}

func cmdHGetAll(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		all, err := enghashes.GetAll(tx, db, args[0])
		if err != nil {
			return nil, err
		}
		m := make(resp.Map, 0, len(all))
		for f, v := range all {
			m = append(m, [2]any{[]byte(f), v})
		}
		return m, nil
	})
}

func cmdHDel(c *Context, args [][]byte) (any, error) {
	fields := make([]string, len(args)-1)
	for i, f := range args[1:] {
		fields[i] = string(f)
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return enghashes.Del(tx, db, args[0], fields)
	})
}

func cmdHLen(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return enghashes.Len(tx, db, args[0])
	})
}

func cmdHExists(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return enghashes.Exists(tx, db, args[0], string(args[1]))
	})
}

func cmdHIncrBy(c *Context, args [][]byte) (any, error) {
	n, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return nil, rlerr.Valuef("value is not an integer or out of range")
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return enghashes.IncrBy(tx, db, args[0], string(args[1]), n)
	})
}

func cmdHIncrByFloat(c *Context, args [][]byte) (any, error) {
	f, err := strconv.ParseFloat(string(args[2]), 64)
	if err != nil {
		return nil, rlerr.Valuef("value is not a valid float")
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return enghashes.IncrByFloat(tx, db, args[0], string(args[1]), f)
	})
}

func cmdHKeys(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		keys, err := enghashes.Keys(tx, db, args[0])
		if err != nil {
			return nil, err
		}
		out := make([][]byte, len(keys))
		for i, k := range keys {
			out[i] = []byte(k)
		}
		return out, nil
	})
}

func cmdHVals(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return enghashes.Values(tx, db, args[0])
	})
}
