package dispatch

import (
	"strconv"
	"strings"

	engzsets "github.com/redlite/redlite/internal/engine/zsets"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func zsetCommands() []Command {
	return []Command{
		{Name: "ZADD", Arity: -4, IsWrite: true, Handler: cmdZAdd},
		{Name: "ZSCORE", Arity: 3, Handler: cmdZScore},
		{Name: "ZREM", Arity: -3, IsWrite: true, Handler: cmdZRem},
		{Name: "ZCARD", Arity: 2, Handler: cmdZCard},
		{Name: "ZRANK", Arity: 3, Handler: cmdZRank(false)},
		{Name: "ZREVRANK", Arity: 3, Handler: cmdZRank(true)},
		{Name: "ZRANGE", Arity: -4, Handler: cmdZRange(false)},
		{Name: "ZREVRANGE", Arity: -4, Handler: cmdZRange(true)},
		{Name: "ZRANGEBYSCORE", Arity: -4, Handler: cmdZRangeByScore(false)},
		{Name: "ZREVRANGEBYSCORE", Arity: -4, Handler: cmdZRangeByScore(true)},
		{Name: "ZRANGEBYLEX", Arity: -4, Handler: cmdZRangeByLex(false)},
		{Name: "ZREVRANGEBYLEX", Arity: -4, Handler: cmdZRangeByLex(true)},
		{Name: "ZINTERSTORE", Arity: -4, IsWrite: true, Handler: cmdZStore(engzsets.InterStore)},
		{Name: "ZUNIONSTORE", Arity: -4, IsWrite: true, Handler: cmdZStore(engzsets.UnionStore)},
	}
}

func cmdZAdd(c *Context, args [][]byte) (any, error) {
	var opt engzsets.AddOptions
	i := 1
loop:
	for ; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "NX":
			opt.NX = true
		case "XX":
			opt.XX = true
		case "GT":
			opt.GT = true
		case "LT":
			opt.LT = true
		case "CH":
			opt.CH = true
		case "INCR":
			opt.Incr = true
		default:
			break loop
		}
	}
	pairs := args[i:]
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return nil, rlerr.ErrSyntax
	}
	if opt.Incr && len(pairs) != 2 {
		return nil, rlerr.Valuef("INCR option supports a single increment-element pair")
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		var added, changed int64
		var lastScore float64
		var lastApplied bool
		for p := 0; p < len(pairs); p += 2 {
			score, err := strconv.ParseFloat(string(pairs[p]), 64)
			if err != nil {
				return nil, rlerr.Valuef("value is not a valid float")
			}
			result, wasAdded, wasChanged, applied, err := engzsets.Add(tx, db, args[0], pairs[p+1], score, opt)
			if err != nil {
				return nil, err
			}
			lastScore, lastApplied = result, applied
			if wasAdded {
				added++
			}
			if wasChanged {
				changed++
			}
		}
		if opt.Incr {
			if !lastApplied {
				return nil, nil
			}
			return lastScore, nil
		}
		if opt.CH {
			return changed, nil
		}
		return added, nil
	})
}

func cmdZScore(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		score, ok, err := engzsets.Score(tx, db, args[0], args[1])
		if err != nil || !ok {
			return nil, err
		}
		return score, nil
	})
}

func cmdZRem(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engzsets.Rem(tx, db, args[0], args[1:])
	})
}

func cmdZCard(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engzsets.Card(tx, db, args[0])
	})
}

func cmdZRank(rev bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			rank, ok, err := engzsets.Rank(tx, db, args[0], args[1], rev)
			if err != nil || !ok {
				return nil, err
			}
			return rank, nil
		})
	}
}

func membersToReply(members []engzsets.Member, withScores bool) any {
	if !withScores {
		out := make([][]byte, len(members))
		for i, m := range members {
			out[i] = m.Value
		}
		return out
	}
	out := make([]any, 0, len(members)*2)
	for _, m := range members {
		out = append(out, m.Value, m.Score)
	}
	return out
}

func cmdZRange(rev bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		start, err := parseIntArg(args[1])
		if err != nil {
			return nil, err
		}
		stop, err := parseIntArg(args[2])
		if err != nil {
			return nil, err
		}
		withScores := false
		for _, opt := range args[3:] {
			switch strings.ToUpper(string(opt)) {
			case "WITHSCORES":
				withScores = true
			default:
				return nil, rlerr.ErrSyntax
			}
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			members, err := engzsets.RangeByIndex(tx, db, args[0], start, stop, rev)
			if err != nil {
				return nil, err
			}
			return membersToReply(members, withScores), nil
		})
	}
}

func parseScoreBound(s string) (engzsets.ScoreBound, error) {
	switch s {
	case "-inf":
		return engzsets.ScoreBound{Inf: -1}, nil
	case "+inf", "inf":
		return engzsets.ScoreBound{Inf: 1}, nil
	}
	exclusive := false
	if len(s) > 0 && s[0] == '(' {
		exclusive = true
		s = s[1:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return engzsets.ScoreBound{}, rlerr.Valuef("min or max is not a float")
	}
	return engzsets.ScoreBound{Value: v, Exclusive: exclusive}, nil
}

func cmdZRangeByScore(rev bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		minArg, maxArg := args[1], args[2]
		if rev {
			minArg, maxArg = args[2], args[1]
		}
		min, err := parseScoreBound(string(minArg))
		if err != nil {
			return nil, err
		}
		max, err := parseScoreBound(string(maxArg))
		if err != nil {
			return nil, err
		}
		withScores := false
		hasLimit := false
		offset, count := 0, 0
		for i := 3; i < len(args); i++ {
			switch strings.ToUpper(string(args[i])) {
			case "WITHSCORES":
				withScores = true
			case "LIMIT":
				if i+2 >= len(args) {
					return nil, rlerr.ErrSyntax
				}
				o, err := parseIntArg(args[i+1])
				if err != nil {
					return nil, err
				}
				n, err := parseIntArg(args[i+2])
				if err != nil {
					return nil, err
				}
				offset, count, hasLimit = o, n, true
				i += 2
			default:
				return nil, rlerr.ErrSyntax
			}
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			members, err := engzsets.RangeByScore(tx, db, args[0], min, max, rev, offset, count, hasLimit)
			if err != nil {
				return nil, err
			}
			return membersToReply(members, withScores), nil
		})
	}
}

func cmdZRangeByLex(rev bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		minArg, maxArg := args[1], args[2]
		if rev {
			minArg, maxArg = args[2], args[1]
		}
		min, err := engzsets.ParseLexBound(string(minArg))
		if err != nil {
			return nil, err
		}
		max, err := engzsets.ParseLexBound(string(maxArg))
		if err != nil {
			return nil, err
		}
		hasLimit := false
		offset, count := 0, 0
		for i := 3; i < len(args); i++ {
			switch strings.ToUpper(string(args[i])) {
			case "LIMIT":
				if i+2 >= len(args) {
					return nil, rlerr.ErrSyntax
				}
				o, err := parseIntArg(args[i+1])
				if err != nil {
					return nil, err
				}
				n, err := parseIntArg(args[i+2])
				if err != nil {
					return nil, err
				}
				offset, count, hasLimit = o, n, true
				i += 2
			default:
				return nil, rlerr.ErrSyntax
			}
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			members, err := engzsets.RangeByLex(tx, db, args[0], min, max, rev, offset, count, hasLimit)
			if err != nil {
				return nil, err
			}
			return membersToReply(members, false), nil
		})
	}
}

type zStoreFunc func(tx *storage.Tx, db int, keys [][]byte, weights []float64, agg engzsets.Aggregate) ([]engzsets.Member, error)

func cmdZStore(op zStoreFunc) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		numKeys, err := parseIntArg(args[1])
		if err != nil || numKeys <= 0 || 2+numKeys > len(args) {
			return nil, rlerr.Valuef("numkeys should be greater than 0")
		}
		keys := args[2 : 2+numKeys]
		rest := args[2+numKeys:]
		weights := make([]float64, 0)
		agg := engzsets.AggSum
		for i := 0; i < len(rest); i++ {
			switch strings.ToUpper(string(rest[i])) {
			case "WEIGHTS":
				for j := 0; j < numKeys; j++ {
					i++
					if i >= len(rest) {
						return nil, rlerr.ErrSyntax
					}
					w, err := strconv.ParseFloat(string(rest[i]), 64)
					if err != nil {
						return nil, rlerr.Valuef("weight value is not a float")
					}
					weights = append(weights, w)
				}
			case "AGGREGATE":
				i++
				if i >= len(rest) {
					return nil, rlerr.ErrSyntax
				}
				switch strings.ToUpper(string(rest[i])) {
				case "SUM":
					agg = engzsets.AggSum
				case "MIN":
					agg = engzsets.AggMin
				case "MAX":
					agg = engzsets.AggMax
				default:
					return nil, rlerr.ErrSyntax
				}
			default:
				return nil, rlerr.ErrSyntax
			}
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			members, err := op(tx, db, keys, weights, agg)
			if err != nil {
				return nil, err
			}
			return engzsets.StoreResult(tx, db, args[0], members)
		})
	}
}
