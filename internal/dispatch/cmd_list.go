package dispatch

import (
	"strconv"
	"strings"
	"time"

	"github.com/redlite/redlite/internal/blocking"
	englists "github.com/redlite/redlite/internal/engine/lists"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func listCommands() []Command {
	return []Command{
		{Name: "LPUSH", Arity: -3, IsWrite: true, Handler: cmdPush(true, false)},
		{Name: "RPUSH", Arity: -3, IsWrite: true, Handler: cmdPush(false, false)},
		{Name: "LPUSHX", Arity: -3, IsWrite: true, Handler: cmdPush(true, true)},
		{Name: "RPUSHX", Arity: -3, IsWrite: true, Handler: cmdPush(false, true)},
		{Name: "LLEN", Arity: 2, Handler: cmdLLen},
		{Name: "LRANGE", Arity: 4, Handler: cmdLRange},
		{Name: "LINDEX", Arity: 3, Handler: cmdLIndex},
		{Name: "LSET", Arity: 4, IsWrite: true, Handler: cmdLSet},
		{Name: "LPOP", Arity: -2, IsWrite: true, Handler: cmdPop(true)},
		{Name: "RPOP", Arity: -2, IsWrite: true, Handler: cmdPop(false)},
		{Name: "LTRIM", Arity: 4, IsWrite: true, Handler: cmdLTrim},
		{Name: "LINSERT", Arity: 5, IsWrite: true, Handler: cmdLInsert},
		{Name: "LMOVE", Arity: 5, IsWrite: true, Handler: cmdLMove},
		{Name: "BLPOP", Arity: -3, IsWrite: true, Handler: cmdBPop(true)},
		{Name: "BRPOP", Arity: -3, IsWrite: true, Handler: cmdBPop(false)},
		{Name: "BLMOVE", Arity: 6, IsWrite: true, Handler: cmdBLMove},
	}
}

func cmdPush(left, requireExists bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		result, err := transact(c, func(tx *storage.Tx, db int) (any, error) {
			if requireExists {
				return englists.PushX(tx, db, args[0], args[1:], left)
			}
			return englists.Push(tx, db, args[0], args[1:], left)
		})
		if err == nil {
			c.Root.Notifier.Broadcast()
		}
		return result, err
	}
}

func cmdLLen(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return englists.Len(tx, db, args[0])
	})
}

func cmdLRange(c *Context, args [][]byte) (any, error) {
	start, err := parseIntArg(args[1])
	if err != nil {
		return nil, err
	}
	stop, err := parseIntArg(args[2])
	if err != nil {
		return nil, err
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return englists.Range(tx, db, args[0], start, stop)
	})
}

func cmdLIndex(c *Context, args [][]byte) (any, error) {
	idx, err := parseIntArg(args[1])
	if err != nil {
		return nil, err
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		v, ok, err := englists.Index(tx, db, args[0], idx)
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	})
}

func cmdLSet(c *Context, args [][]byte) (any, error) {
	idx, err := parseIntArg(args[1])
	if err != nil {
		return nil, err
	}
	_, err = transact(c, func(tx *storage.Tx, db int) (any, error) {
		return nil, englists.Set(tx, db, args[0], idx, args[2])
	})
	if err != nil {
		return nil, err
	}
	return "OK", nil
}

func cmdPop(left bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		count := 1
		hasCount := false
		if len(args) >= 2 {
			n, err := parseIntArg(args[1])
			if err != nil {
				return nil, err
			}
			count, hasCount = n, true
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			values, err := englists.Pop(tx, db, args[0], count, left)
			if err != nil {
				return nil, err
			}
			if !hasCount {
				if len(values) == 0 {
					return nil, nil
				}
				return values[0], nil
			}
			return values, nil
		})
	}
}

func cmdLTrim(c *Context, args [][]byte) (any, error) {
	start, err := parseIntArg(args[1])
	if err != nil {
		return nil, err
	}
	stop, err := parseIntArg(args[2])
	if err != nil {
		return nil, err
	}
	_, err = transact(c, func(tx *storage.Tx, db int) (any, error) {
		return nil, englists.Trim(tx, db, args[0], start, stop)
	})
	if err != nil {
		return nil, err
	}
	return "OK", nil
}

func cmdLInsert(c *Context, args [][]byte) (any, error) {
	var before bool
	switch strings.ToUpper(string(args[1])) {
	case "BEFORE":
		before = true
	case "AFTER":
		before = false
	default:
		return nil, rlerr.ErrSyntax
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return englists.Insert(tx, db, args[0], before, args[2], args[3])
	})
}

func cmdLMove(c *Context, args [][]byte) (any, error) {
	fromLeft, toLeft, err := parseMoveSides(args[2], args[3])
	if err != nil {
		return nil, err
	}
	result, err := transact(c, func(tx *storage.Tx, db int) (any, error) {
		v, ok, err := englists.Move(tx, db, args[0], args[1], fromLeft, toLeft)
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	})
	if err == nil {
		c.Root.Notifier.Broadcast()
	}
	return result, err
}

func parseMoveSides(from, to []byte) (fromLeft, toLeft bool, err error) {
	switch strings.ToUpper(string(from)) {
	case "LEFT":
		fromLeft = true
	case "RIGHT":
		fromLeft = false
	default:
		return false, false, rlerr.ErrSyntax
	}
	switch strings.ToUpper(string(to)) {
	case "LEFT":
		toLeft = true
	case "RIGHT":
		toLeft = false
	default:
		return false, false, rlerr.ErrSyntax
	}
	return fromLeft, toLeft, nil
}

func cmdBPop(left bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		timeoutSecs, err := strconv.ParseFloat(string(args[len(args)-1]), 64)
		if err != nil || timeoutSecs < 0 {
			return nil, rlerr.Valuef("timeout is not a float or out of range")
		}
		keys := args[:len(args)-1]
		var resultKey []byte
		var resultVal []byte
		found := false
		err = blocking.Wait(c.ctx, c.Root.Notifier, time.Duration(timeoutSecs*float64(time.Second)), func() (bool, error) {
			_, txErr := transact(c, func(tx *storage.Tx, db int) (any, error) {
				for _, k := range keys {
					values, err := englists.Pop(tx, db, k, 1, left)
					if err != nil {
						return nil, err
					}
					if len(values) > 0 {
						resultKey, resultVal, found = k, values[0], true
						return nil, nil
					}
				}
				return nil, nil
			})
			return found, txErr
		})
		if err != nil {
			if err == blocking.ErrTimeout {
				return nil, nil
			}
			return nil, err
		}
		return [][]byte{resultKey, resultVal}, nil
	}
}

func cmdBLMove(c *Context, args [][]byte) (any, error) {
	fromLeft, toLeft, err := parseMoveSides(args[2], args[3])
	if err != nil {
		return nil, err
	}
	timeoutSecs, err := strconv.ParseFloat(string(args[4]), 64)
	if err != nil || timeoutSecs < 0 {
		return nil, rlerr.Valuef("timeout is not a float or out of range")
	}
	var result []byte
	found := false
	err = blocking.Wait(c.ctx, c.Root.Notifier, time.Duration(timeoutSecs*float64(time.Second)), func() (bool, error) {
		_, txErr := transact(c, func(tx *storage.Tx, db int) (any, error) {
			v, ok, err := englists.Move(tx, db, args[0], args[1], fromLeft, toLeft)
			if err != nil {
				return nil, err
			}
			if ok {
				result, found = v, true
			}
			return nil, nil
		})
		return found, txErr
	})
	if err != nil {
		if err == blocking.ErrTimeout {
			return nil, nil
		}
		return nil, err
	}
	c.Root.Notifier.Broadcast()
	return result, nil
}
