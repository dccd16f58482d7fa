package dispatch

import (
	"strconv"
	"strings"

	"github.com/redlite/redlite/internal/history"
	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func adminCommands() []Command {
	return []Command{
		{Name: "CONFIG", Arity: -2, Handler: cmdConfig},
		{Name: "HISTORY", Arity: -2, Handler: cmdHistory},
	}
}

func cmdConfig(c *Context, args [][]byte) (any, error) {
	switch strings.ToUpper(string(args[0])) {
	case "GET":
		if len(args) != 2 {
			return nil, rlerr.ErrSyntax
		}
		pairs := c.Root.Config.Get(string(args[1]))
		m := make(resp.Map, 0, len(pairs))
		for _, p := range pairs {
			m = append(m, [2]any{[]byte(p[0]), []byte(p[1])})
		}
		return m, nil
	case "SET":
		if len(args) != 3 {
			return nil, rlerr.ErrSyntax
		}
		if err := c.Root.Config.Set(string(args[1]), string(args[2])); err != nil {
			return nil, err
		}
		return "OK", nil
	default:
		return nil, rlerr.New(rlerr.Unknown, "Unknown CONFIG subcommand or wrong number of arguments")
	}
}

func parseRetentionArgs(args [][]byte) (enabled bool, kind history.RetentionKind, value int64, err error) {
	if len(args) == 0 {
		return false, "", 0, nil
	}
	switch strings.ToUpper(string(args[0])) {
	case "OFF":
		return false, "", 0, nil
	case "ON":
		// fallthrough requires a COUNT/DAYS clause
	default:
		return false, "", 0, rlerr.ErrSyntax
	}
	if len(args) != 3 {
		return false, "", 0, rlerr.ErrSyntax
	}
	n, e := strconv.ParseInt(string(args[2]), 10, 64)
	if e != nil || n < 0 {
		return false, "", 0, rlerr.Valuef("value is not an integer or out of range")
	}
	switch strings.ToUpper(string(args[1])) {
	case "COUNT":
		return true, history.RetentionCount, n, nil
	case "DAYS":
		return true, history.RetentionDays, n, nil
	default:
		return false, "", 0, rlerr.ErrSyntax
	}
}

func cmdHistory(c *Context, args [][]byte) (any, error) {
	switch strings.ToUpper(string(args[0])) {
	case "CONFIG":
		return cmdHistoryConfig(c, args[1:])
	case "GET":
		if len(args) < 2 {
			return nil, rlerr.ErrSyntax
		}
		limit := 0
		if len(args) >= 4 && strings.ToUpper(string(args[2])) == "LIMIT" {
			n, err := parseIntArg(args[3])
			if err != nil {
				return nil, err
			}
			limit = n
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			versions, err := history.Get(tx, db, args[1], limit)
			if err != nil {
				return nil, err
			}
			return versionsToReply(versions), nil
		})
	case "GETAT":
		if len(args) != 3 {
			return nil, rlerr.ErrSyntax
		}
		ts, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			return nil, rlerr.Valuef("value is not an integer or out of range")
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			v, ok, err := history.GetAt(tx, db, args[1], ts)
			if err != nil || !ok {
				return nil, err
			}
			return versionToReply(*v), nil
		})
	case "STATS":
		if len(args) != 2 {
			return nil, rlerr.ErrSyntax
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			count, oldest, newest, err := history.Stats(tx, db, args[1])
			if err != nil {
				return nil, err
			}
			return []any{int64(count), oldest, newest}, nil
		})
	case "CLEAR":
		if len(args) != 2 {
			return nil, rlerr.ErrSyntax
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			return history.Clear(tx, db, args[1])
		})
	case "PRUNE":
		if len(args) != 2 {
			return nil, rlerr.ErrSyntax
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			return history.Prune(tx, db, args[1])
		})
	default:
		return nil, rlerr.New(rlerr.Unknown, "Unknown HISTORY subcommand or wrong number of arguments")
	}
}

// cmdHistoryConfig implements HISTORY CONFIG SET GLOBAL|DB <n>|KEY <key>
// ON COUNT|DAYS <n>, or OFF to disable history at that tier (overriding
// any lower tier).
func cmdHistoryConfig(c *Context, args [][]byte) (any, error) {
	if len(args) < 2 || strings.ToUpper(string(args[0])) != "SET" {
		return nil, rlerr.ErrSyntax
	}
	args = args[1:]
	var scope history.Scope
	var target string
	var rest [][]byte
	switch strings.ToUpper(string(args[0])) {
	case "GLOBAL":
		scope, target, rest = history.ScopeGlobal, history.GlobalTarget(), args[1:]
	case "DB":
		if len(args) < 2 {
			return nil, rlerr.ErrSyntax
		}
		n, err := parseIntArg(args[1])
		if err != nil {
			return nil, err
		}
		scope, target, rest = history.ScopeDB, history.DBTarget(n), args[2:]
	case "KEY":
		if len(args) < 2 {
			return nil, rlerr.ErrSyntax
		}
		scope, rest = history.ScopeKey, args[2:]
		target = history.KeyTarget(c.Session.DB(), args[1])
	default:
		return nil, rlerr.ErrSyntax
	}
	enabled, kind, value, err := parseRetentionArgs(rest)
	if err != nil {
		return nil, err
	}
	_, err = transact(c, func(tx *storage.Tx, db int) (any, error) {
		return nil, history.SetConfig(tx, scope, target, enabled, kind, value)
	})
	if err != nil {
		return nil, err
	}
	return "OK", nil
}

func versionToReply(v history.Version) any {
	return []any{v.VersionNum, v.Operation, v.TimestampMs, v.Snapshot}
}

func versionsToReply(versions []history.Version) any {
	out := make([]any, len(versions))
	for i, v := range versions {
		out[i] = versionToReply(v)
	}
	return out
}
