package dispatch

import (
	"strconv"
	"strings"

	"github.com/redlite/redlite/internal/keyregistry"
	"github.com/redlite/redlite/internal/pubsub"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

func genericCommands() []Command {
	return []Command{
		{Name: "DEL", Arity: -2, IsWrite: true, Handler: cmdDel},
		{Name: "EXISTS", Arity: -2, Handler: cmdExists},
		{Name: "TYPE", Arity: 2, Handler: cmdType},
		{Name: "EXPIRE", Arity: -3, IsWrite: true, Handler: cmdExpire(false, false)},
		{Name: "PEXPIRE", Arity: -3, IsWrite: true, Handler: cmdExpire(true, false)},
		{Name: "EXPIREAT", Arity: -3, IsWrite: true, Handler: cmdExpire(false, true)},
		{Name: "PEXPIREAT", Arity: -3, IsWrite: true, Handler: cmdExpire(true, true)},
		{Name: "TTL", Arity: 2, Handler: cmdTTL(keyregistry.UnitSeconds)},
		{Name: "PTTL", Arity: 2, Handler: cmdTTL(keyregistry.UnitMillis)},
		{Name: "PERSIST", Arity: 2, IsWrite: true, Handler: cmdPersist},
		{Name: "KEYS", Arity: 2, Handler: cmdKeys},
		{Name: "SCAN", Arity: -2, Handler: cmdScan},
		{Name: "RENAME", Arity: 3, IsWrite: true, Handler: cmdRename},
	}
}

func cmdDel(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		var n int64
		for _, k := range args {
			if _, found, err := keyregistry.Resolve(tx, db, k); err != nil {
				return nil, err
			} else if found {
				if err := keyregistry.Delete(tx, db, k); err != nil {
					return nil, err
				}
				n++
			}
		}
		return n, nil
	})
}

func cmdExists(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		var n int64
		for _, k := range args {
			if _, found, err := keyregistry.Resolve(tx, db, k); err != nil {
				return nil, err
			} else if found {
				n++
			}
		}
		return n, nil
	})
}

func cmdType(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		k, found, err := keyregistry.Resolve(tx, db, args[0])
		if err != nil {
			return nil, err
		}
		if !found {
			return "none", nil
		}
		return k.Type, nil
	})
}

func cmdExpire(millis, atEpoch bool) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		n, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return nil, rlerr.Valuef("value is not an integer or out of range")
		}
		guard := keyregistry.GuardNone
		for _, opt := range args[2:] {
			switch strings.ToUpper(string(opt)) {
			case "NX":
				guard = keyregistry.GuardNX
			case "XX":
				guard = keyregistry.GuardXX
			case "GT":
				guard = keyregistry.GuardGT
			case "LT":
				guard = keyregistry.GuardLT
			default:
				return nil, rlerr.ErrSyntax
			}
		}
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			var at int64
			switch {
			case atEpoch && millis:
				at = n
			case atEpoch:
				at = n * 1000
			case millis:
				at = tx.Now() + n
			default:
				at = tx.Now() + n*1000
			}
			ok, err := keyregistry.SetExpiry(tx, db, args[0], &at, guard)
			return ok, err
		})
	}
}

func cmdTTL(unit keyregistry.TTLUnit) HandlerFunc {
	return func(c *Context, args [][]byte) (any, error) {
		return transact(c, func(tx *storage.Tx, db int) (any, error) {
			return keyregistry.TTL(tx, db, args[0], unit)
		})
	}
}

func cmdPersist(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		return keyregistry.SetExpiry(tx, db, args[0], nil, keyregistry.GuardXX)
	})
}

func cmdKeys(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		rows, err := tx.Query(`SELECT key, expire_at_ms FROM keys WHERE db = ?`, db)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out [][]byte
		pattern := string(args[0])
		for rows.Next() {
			var key []byte
			var expire *int64
			if err := rows.Scan(&key, &expire); err != nil {
				return nil, rlerr.IOf("keys scan: %v", err)
			}
			if expire != nil && *expire <= tx.Now() {
				continue
			}
			if globMatch(pattern, string(key)) {
				out = append(out, key)
			}
		}
		return out, nil
	})
}

func cmdScan(c *Context, args [][]byte) (any, error) {
	cursor := string(args[0])
	pattern := "*"
	count := 10
	typeFilter := ""
	for i := 1; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "MATCH":
			i++
			if i >= len(args) {
				return nil, rlerr.ErrSyntax
			}
			pattern = string(args[i])
		case "COUNT":
			i++
			if i >= len(args) {
				return nil, rlerr.ErrSyntax
			}
			n, err := strconv.Atoi(string(args[i]))
			if err != nil || n <= 0 {
				return nil, rlerr.ErrSyntax
			}
			count = n
		case "TYPE":
			i++
			if i >= len(args) {
				return nil, rlerr.ErrSyntax
			}
			typeFilter = string(args[i])
		default:
			return nil, rlerr.ErrSyntax
		}
	}
	start, err := decodeScanCursor(cursor)
	if err != nil {
		return nil, rlerr.Valuef("invalid cursor")
	}
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		query := `SELECT key, type, expire_at_ms FROM keys WHERE db = ? AND key > ? ORDER BY key LIMIT ?`
		rows, err := tx.Query(query, db, start, count)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var matched [][]byte
		var lastKey []byte
		seen := 0
		for rows.Next() {
			var key []byte
			var typ string
			var expire *int64
			if err := rows.Scan(&key, &typ, &expire); err != nil {
				return nil, rlerr.IOf("scan scan: %v", err)
			}
			lastKey = key
			seen++
			if expire != nil && *expire <= tx.Now() {
				continue
			}
			if typeFilter != "" && typ != typeFilter {
				continue
			}
			if globMatch(pattern, string(key)) {
				matched = append(matched, key)
			}
		}
		next := scanCursorStart
		if seen == count {
			next = encodeScanCursor(lastKey)
		}
		return []any{next, matched}, nil
	})
}

func cmdRename(c *Context, args [][]byte) (any, error) {
	return transact(c, func(tx *storage.Tx, db int) (any, error) {
		k, found, err := keyregistry.Resolve(tx, db, args[0])
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, rlerr.New(rlerr.Unknown, "no such key")
		}
		if _, found, err := keyregistry.Resolve(tx, db, args[1]); err != nil {
			return nil, err
		} else if found {
			if err := keyregistry.Delete(tx, db, args[1]); err != nil {
				return nil, err
			}
		}
		// Renaming touches the parent row and every child table's foreign
		// key in separate statements; defer FK enforcement to commit so the
		// intermediate, momentarily-inconsistent state never trips it.
		if _, err := tx.Exec(`PRAGMA defer_foreign_keys = ON`); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(`UPDATE keys SET key = ? WHERE db = ? AND key = ?`, args[1], db, args[0]); err != nil {
			return nil, err
		}
		for _, table := range []string{"strings", "hashes", "list_items", "set_members", "zset_members", "stream_entries", "stream_groups", "stream_consumers", "stream_pending"} {
			if _, err := tx.Exec(`UPDATE `+table+` SET key = ? WHERE db = ? AND key = ?`, args[1], db, args[0]); err != nil {
				return nil, err
			}
		}
		_ = k
		return "OK", nil
	})
}

// globMatch matches Redis's KEYS/SCAN MATCH glob syntax; it is the same
// matcher pub/sub uses for PSUBSCRIBE/CONFIG GET patterns.
func globMatch(pattern, s string) bool {
	return pubsub.Match(pattern, s)
}
