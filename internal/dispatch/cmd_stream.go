package dispatch

import (
	"strconv"
	"strings"
	"time"

	"github.com/redlite/redlite/internal/blocking"
	engstreams "github.com/redlite/redlite/internal/engine/streams"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func streamCommands() []Command {
	return []Command{
		{Name: "XADD", Arity: -5, IsWrite: true, Handler: cmdXAdd},
		{Name: "XLEN", Arity: 2, Handler: cmdXLen},
		{Name: "XRANGE", Arity: -4, Handler: cmdXRange(false)},
		{Name: "XREVRANGE", Arity: -4, Handler: cmdXRange(true)},
		{Name: "XREAD", Arity: -4, Handler: cmdXRead},
		{Name: "XGROUP", Arity: -2, IsWrite: true, Handler: cmdXGroup},
		{Name: "XREADGROUP", Arity: -7, IsWrite: true, Handler: cmdXReadGroup},
		{Name: "XACK", Arity: -4, IsWrite: true, Handler: cmdXAck},
		{Name: "XCLAIM", Arity: -6, IsWrite: true, Handler: cmdXClaim},
		{Name: "XPENDING", Arity: -3, Handler: cmdXPending},
		{Name: "XTRIM", Arity: -4, IsWrite: true, Handler: cmdXTrim},
	}
}

func entryToReply(e engstreams.Entry) any {
	fields := make([]any, 0, len(e.Fields)*2)
	for f, v := range e.Fields {
		fields = append(fields, []byte(f), v)
	}
	return []any{e.ID.String(), fields}
}

func entriesToReply(entries []engstreams.Entry) any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = entryToReply(e)
	}
	return out
}

// cmdXAdd implements XADD. NOMKSTREAM and the MAXLEN/MINID options are
// parsed and skipped: XADD creates a missing stream and never trims it.
func cmdXAdd(c *Context, args [][]byte) (any, error) {
	i := 1
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "NOMKSTREAM":
			i++
		case "MAXLEN", "MINID":
			i++
			if i < len(args) && (string(args[i]) == "~" || string(args[i]) == "=") {
				i++
			}
			i++ // threshold value
			if i < len(args) && strings.ToUpper(string(args[i])) == "LIMIT" {
				i += 2
			}
		default:
			goto parsedOpts
		}
	}
parsedOpts:
	idArg := string(args[i])
	i++
	pairs := args[i:]
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return nil, rlerr.ErrSyntax
	}
	fields := make(map[string][]byte, len(pairs)/2)
	for p := 0; p < len(pairs); p += 2 {
		fields[string(pairs[p])] = pairs[p+1]
	}
	var id *engstreams.ID
	seqWildcard := false
	if idArg != "*" {
		parsed, wildcard, err := engstreams.ParseID(idArg)
		if err != nil {
			return nil, err
		}
		id = &parsed
		seqWildcard = wildcard
	}
	result, err := transact(c, func(tx *storage.Tx, db int) (any, error) {
		newID, err := engstreams.Add(tx, db, args[0], id, seqWildcard, fields)
		if err != nil {
			return nil, err
		}
		return newID.String(), nil
	})
	if err == nil {
		c.Root.Notifier.Broadcast()
	}
	return result, err
}

func cmdXLen(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstreams.Len(tx, db, args[0])
	})
}

func parseRangeID(s string, isStart bool) (engstreams.ID, error) {
	if s == "-" {
		return engstreams.ID{Ms: 0, Seq: 0}, nil
	}
	if s == "+" {
		return engstreams.ID{Ms: 1<<63 - 1, Seq: 1<<63 - 1}, nil
	}
	id, wildcard, err := engstreams.ParseID(s)
	if err != nil {
		return engstreams.ID{}, err
	}
	if wildcard && !isStart {
		id.Seq = 1<<63 - 1
	}
	return id, nil
}

func cmdXRange(rev bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		startArg, endArg := string(args[1]), string(args[2])
		if rev {
			startArg, endArg = string(args[2]), string(args[1])
		}
		start, err := parseRangeID(startArg, true)
		if err != nil {
			return nil, err
		}
		end, err := parseRangeID(endArg, false)
		if err != nil {
			return nil, err
		}
		hasCount := false
		count := 0
		if len(args) >= 5 && strings.ToUpper(string(args[3])) == "COUNT" {
			n, err := parseIntArg(args[4])
			if err != nil {
				return nil, err
			}
			count, hasCount = n, true
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			entries, err := engstreams.Range(tx, db, args[0], start, end, count, hasCount, rev)
			if err != nil {
				return nil, err
			}
			return entriesToReply(entries), nil
		})
	}
}

func cmdXRead(c *Context, args [][]byte) (any, error) {
	hasCount := false
	count := 0
	var blockMs int64 = -1
	i := 0
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "COUNT":
			i++
			n, err := parseIntArg(args[i])
			if err != nil {
				return nil, err
			}
			count, hasCount = n, true
			i++
		case "BLOCK":
			i++
			n, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil || n < 0 {
				return nil, rlerr.Valuef("timeout is not an integer or out of range")
			}
			blockMs = n
			i++
		case "STREAMS":
			i++
			goto parsedHeader
		default:
			return nil, rlerr.ErrSyntax
		}
	}
parsedHeader:
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return nil, rlerr.ErrSyntax
	}
	n := len(rest) / 2
	keys := rest[:n]
	idArgs := rest[n:]
	sinces := make([]engstreams.ID, n)
	useTail := make([]bool, n)
	for idx, idArg := range idArgs {
		if string(idArg) == "$" {
			useTail[idx] = true
			continue
		}
		id, _, err := engstreams.ParseID(string(idArg))
		if err != nil {
			return nil, err
		}
		sinces[idx] = id
	}
	resolveSince := func(tx *storage.Tx, db int) error {
		for idx := range keys {
			if useTail[idx] {
				tail, err := engstreams.Tail(tx, db, keys[idx])
				if err != nil {
					return err
				}
				sinces[idx] = tail
				useTail[idx] = false
			}
		}
		return nil
	}

	var reply []any
	try := func() (bool, error) {
		_, err := transact(c, func(tx *storage.Tx, db int) (any, error) {
			if err := resolveSince(tx, db); err != nil {
				return nil, err
			}
			reply = nil
			for idx, k := range keys {
				entries, err := engstreams.After(tx, db, k, sinces[idx], count, hasCount)
				if err != nil {
					return nil, err
				}
				if len(entries) > 0 {
					reply = append(reply, []any{k, entriesToReply(entries)})
				}
			}
			return nil, nil
		})
		return len(reply) > 0, err
	}

	if blockMs < 0 {
		if _, err := try(); err != nil {
			return nil, err
		}
		if len(reply) == 0 {
			return nil, nil
		}
		return reply, nil
	}
	timeout := time.Duration(blockMs) * time.Millisecond
	if blockMs == 0 {
		timeout = 0
	}
	err := blocking.Wait(c.ctx, c.Root.Notifier, timeout, try)
	if err != nil {
		if err == blocking.ErrTimeout {
			return nil, nil
		}
		return nil, err
	}
	return reply, nil
}

func cmdXGroup(c *Context, args [][]byte) (any, error) {
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "CREATE":
		if len(args) < 4 {
			return nil, rlerr.ErrSyntax
		}
		mkstream := false
		for _, opt := range args[4:] {
			if strings.ToUpper(string(opt)) == "MKSTREAM" {
				mkstream = true
			}
		}
		var start engstreams.ID
		if string(args[3]) != "$" {
			id, _, err := engstreams.ParseID(string(args[3]))
			if err != nil {
				return nil, err
			}
			start = id
		}
		_, err := transact(c, func(tx *storage.Tx, db int) (any, error) {
			if string(args[3]) == "$" {
				tail, err := engstreams.Tail(tx, db, args[1])
				if err != nil {
					return nil, err
				}
				start = tail
			}
			return nil, engstreams.GroupCreate(tx, db, args[1], string(args[2]), start, mkstream)
		})
		if err != nil {
			return nil, err
		}
		return "OK", nil
	default:
		return nil, rlerr.New(rlerr.Unknown, "Unknown XGROUP subcommand or wrong number of arguments")
	}
}

func cmdXReadGroup(c *Context, args [][]byte) (any, error) {
	if strings.ToUpper(string(args[0])) != "GROUP" {
		return nil, rlerr.ErrSyntax
	}
	group := string(args[1])
	consumer := string(args[2])
	hasCount := false
	count := 0
	noack := false
	i := 3
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "COUNT":
			i++
			n, err := parseIntArg(args[i])
			if err != nil {
				return nil, err
			}
			count, hasCount = n, true
			i++
		case "BLOCK":
			i += 2
		case "NOACK":
			noack = true
			i++
		case "STREAMS":
			i++
			goto parsedHeader
		default:
			return nil, rlerr.ErrSyntax
		}
	}
parsedHeader:
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return nil, rlerr.ErrSyntax
	}
	n := len(rest) / 2
	keys := rest[:n]
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		var reply []any
		for _, k := range keys {
			entries, err := engstreams.ReadGroup(tx, db, k, group, consumer, count, hasCount, noack)
			if err != nil {
				return nil, err
			}
			reply = append(reply, []any{k, entriesToReply(entries)})
		}
		return reply, nil
	})
}

func parseIDList(args [][]byte) ([]engstreams.ID, error) {
	ids := make([]engstreams.ID, len(args))
	for i, a := range args {
		id, _, err := engstreams.ParseID(string(a))
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func cmdXAck(c *Context, args [][]byte) (any, error) {
	ids, err := parseIDList(args[2:])
	if err != nil {
		return nil, err
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return engstreams.Ack(tx, db, args[0], string(args[1]), ids)
	})
}

func cmdXClaim(c *Context, args [][]byte) (any, error) {
	minIdle, err := strconv.ParseInt(string(args[3]), 10, 64)
	if err != nil {
		return nil, rlerr.Valuef("value is not an integer or out of range")
	}
	ids, err := parseIDList(args[4:])
	if err != nil {
		return nil, err
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		entries, err := engstreams.Claim(tx, db, args[0], string(args[1]), string(args[2]), ids, minIdle)
		if err != nil {
			return nil, err
		}
		return entriesToReply(entries), nil
	})
}

func cmdXPending(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		pending, err := engstreams.Pending(tx, db, args[0], string(args[1]))
		if err != nil {
			return nil, err
		}
		if len(pending) == 0 {
			return []any{int64(0), nil, nil, nil}, nil
		}
		byConsumer := map[string]int64{}
		for _, p := range pending {
			byConsumer[p.Consumer]++
		}
		consumers := make([]any, 0, len(byConsumer))
		for consumer, n := range byConsumer {
			consumers = append(consumers, []any{consumer, strconv.FormatInt(n, 10)})
		}
		return []any{int64(len(pending)), pending[0].ID.String(), pending[len(pending)-1].ID.String(), consumers}, nil
	})
}

func cmdXTrim(c *Context, args [][]byte) (any, error) {
	strategy := strings.ToUpper(string(args[1]))
	i := 2
	if i < len(args) && (string(args[i]) == "~" || string(args[i]) == "=") {
		i++
	}
	if i >= len(args) {
		return nil, rlerr.ErrSyntax
	}
	threshold := string(args[i])
	switch strategy {
	case "MAXLEN":
		count, err := parseIntArg([]byte(threshold))
		if err != nil {
			return nil, err
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			return engstreams.TrimMaxLen(tx, db, args[0], count)
		})
	case "MINID":
		minID, _, err := engstreams.ParseID(threshold)
		if err != nil {
			return nil, err
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			return engstreams.TrimMinID(tx, db, args[0], minID)
		})
	default:
		return nil, rlerr.ErrSyntax
	}
}
