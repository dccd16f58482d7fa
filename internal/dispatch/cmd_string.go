package dispatch

import (
	"strconv"
	"strings"

	engstrings "github.com/redlite/redlite/internal/engine/strings"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func stringCommands() []Command {
	return []Command{
		{Name: "SET", Arity: -3, IsWrite: true, Handler: cmdSet},
		{Name: "GET", Arity: 2, Handler: cmdGet},
		{Name: "MGET", Arity: -2, Handler: cmdMGet},
		{Name: "MSET", Arity: -3, IsWrite: true, Handler: cmdMSet},
		{Name: "APPEND", Arity: 3, IsWrite: true, Handler: cmdAppend},
		{Name: "STRLEN", Arity: 2, Handler: cmdStrlen},
		{Name: "GETRANGE", Arity: 4, Handler: cmdGetRange},
		{Name: "SETRANGE", Arity: 4, IsWrite: true, Handler: cmdSetRange},
		{Name: "INCR", Arity: 2, IsWrite: true, Handler: cmdIncrBy(1)},
		{Name: "DECR", Arity: 2, IsWrite: true, Handler: cmdIncrBy(-1)},
		{Name: "INCRBY", Arity: 3, IsWrite: true, Handler: cmdIncrByArg(1)},
		{Name: "DECRBY", Arity: 3, IsWrite: true, Handler: cmdIncrByArg(-1)},
		{Name: "INCRBYFLOAT", Arity: 3, IsWrite: true, Handler: cmdIncrByFloat},
		{Name: "GETBIT", Arity: 3, Handler: cmdGetBit},
		{Name: "SETBIT", Arity: 4, IsWrite: true, Handler: cmdSetBit},
		{Name: "BITCOUNT", Arity: -2, Handler: cmdBitCount},
		{Name: "BITOP", Arity: -4, IsWrite: true, Handler: cmdBitOp},
	}
}

// setArgs bundles SET's parsed option grammar with the raw EX/PX value so
// the handler can resolve it against the transaction's own clock (tx.Now()),
// rather than the wall-clock time at argument-parsing time.
type setArgs struct {
	engstrings.SetOptions
	relativeExpireKind string // "EX" or "PX" if a relative expiry was given, else ""
}

func parseSetOptions(args [][]byte) (setArgs, error) {
	var opt setArgs
	for i := 0; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "NX":
			opt.NX = true
		case "XX":
			opt.XX = true
		case "GET":
			opt.WantOld = true
		case "KEEPTTL":
			opt.KeepTTL = true
		case "EX", "PX", "EXAT", "PXAT":
			kind := strings.ToUpper(string(args[i]))
			i++
			if i >= len(args) {
				return opt, rlerr.ErrSyntax
			}
			n, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil {
				return opt, rlerr.Valuef("value is not an integer or out of range")
			}
			var at int64
			switch kind {
			case "EX":
				at = n * 1000 // resolved against tx.Now() by the handler
			case "PX":
				at = n
			case "EXAT":
				at = n * 1000
			case "PXAT":
				at = n
			}
			opt.ExpireAtMs = &at
			opt.relativeExpireKind = kind
		default:
			return opt, rlerr.ErrSyntax
		}
	}
	return opt, nil
}

func cmdSet(c *Context, args [][]byte) (any, error) {
	opt, err := parseSetOptions(args[2:])
	if err != nil {
		return nil, err
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		if opt.ExpireAtMs != nil && (opt.relativeExpireKind == "EX" || opt.relativeExpireKind == "PX") {
			resolved := tx.Now() + *opt.ExpireAtMs
			opt.ExpireAtMs = &resolved
		}
		old, hadOld, applied, err := engstrings.Set(tx, db, args[0], args[1], opt.SetOptions)
		if err != nil {
			return nil, err
		}
		if opt.WantOld {
			if !hadOld {
				return nil, nil
			}
			return old, nil
		}
		if !applied {
			return nil, nil
		}
		return "OK", nil
	})
}

func cmdGet(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		v, ok, err := engstrings.Get(tx, db, args[0])
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	})
}

func cmdMGet(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		out := make([][]byte, len(args))
		for i, k := range args {
			v, ok, err := engstrings.Get(tx, db, k)
			if err != nil {
				if e, isErr := rlerr.As(err); isErr && e.Kind == rlerr.WrongType {
					continue
				}
				return nil, err
			}
			if ok {
				out[i] = v
			}
		}
		return out, nil
	})
}

func cmdMSet(c *Context, args [][]byte) (any, error) {
	pairs := args
	if len(pairs)%2 != 0 {
		return nil, rlerr.ErrSyntax
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		for i := 0; i < len(pairs); i += 2 {
			if _, _, _, err := engstrings.Set(tx, db, pairs[i], pairs[i+1], engstrings.SetOptions{}); err != nil {
				return nil, err
			}
		}
		return "OK", nil
	})
}

func cmdAppend(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstrings.Append(tx, db, args[0], args[1])
	})
}

func cmdStrlen(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstrings.Len(tx, db, args[0])
	})
}

func parseIntArg(b []byte) (int, error) {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, rlerr.Valuef("value is not an integer or out of range")
	}
	return n, nil
}

func cmdGetRange(c *Context, args [][]byte) (any, error) {
	start, err := parseIntArg(args[1])
	if err != nil {
		return nil, err
	}
	end, err := parseIntArg(args[2])
	if err != nil {
		return nil, err
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstrings.GetRange(tx, db, args[0], start, end)
	})
}

func cmdSetRange(c *Context, args [][]byte) (any, error) {
	offset, err := parseIntArg(args[1])
	if err != nil {
		return nil, err
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstrings.SetRange(tx, db, args[0], offset, args[2])
	})
}

func cmdIncrBy(delta int64) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			return engstrings.IncrBy(tx, db, args[0], delta)
		})
	}
}

func cmdIncrByArg(sign int64) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		n, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return nil, rlerr.Valuef("value is not an integer or out of range")
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			return engstrings.IncrBy(tx, db, args[0], sign*n)
		})
	}
}

func cmdIncrByFloat(c *Context, args [][]byte) (any, error) {
	f, err := strconv.ParseFloat(string(args[1]), 64)
	if err != nil {
		return nil, rlerr.Valuef("value is not a valid float")
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstrings.IncrByFloat(tx, db, args[0], f)
	})
}

func cmdGetBit(c *Context, args [][]byte) (any, error) {
	pos, err := parseIntArg(args[1])
	if err != nil {
		return nil, err
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstrings.GetBit(tx, db, args[0], pos)
	})
}

func cmdSetBit(c *Context, args [][]byte) (any, error) {
	pos, err := parseIntArg(args[1])
	if err != nil {
		return nil, err
	}
	bit, err := parseIntArg(args[2])
	if err != nil || (bit != 0 && bit != 1) {
		return nil, rlerr.Valuef("bit is not an integer or out of range")
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstrings.SetBit(tx, db, args[0], pos, bit)
	})
}

func cmdBitCount(c *Context, args [][]byte) (any, error) {
	haveRange := len(args) >= 3
	var start, end int
	if haveRange {
		var err error
		start, err = parseIntArg(args[1])
		if err != nil {
			return nil, err
		}
		end, err = parseIntArg(args[2])
		if err != nil {
			return nil, err
		}
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstrings.BitCount(tx, db, args[0], start, end, haveRange)
	})
}

func cmdBitOp(c *Context, args [][]byte) (any, error) {
	op := string(args[0])
	dst := args[1]
	srcKeys := args[2:]
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		sources := make([][]byte, len(srcKeys))
		for i, k := range srcKeys {
			v, _, err := engstrings.Get(tx, db, k)
			if err != nil {
				return nil, err
			}
			sources[i] = v
		}
		result, err := engstrings.BitOp(op, sources)
		if err != nil {
			return nil, err
		}
		if _, _, _, err := engstrings.Set(tx, db, dst, result, engstrings.SetOptions{}); err != nil {
			return nil, err
		}
		return len(result), nil
	})
}
