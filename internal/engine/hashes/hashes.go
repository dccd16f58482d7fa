// Package hashes implements the Hash data-type engine.
package hashes

import (
	"database/sql"
	"strconv"

	"github.com/redlite/redlite/internal/keyregistry"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

const typeName = "hash"

// Set implements HSET, returning the number of fields newly created.
func Set(tx *storage.Tx, db int, key []byte, fields map[string][]byte) (int, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	created := 0
	for f := range fields {
		exists, err := fieldExists(tx, db, key, f)
		if err != nil {
			return 0, err
		}
		if !exists {
			created++
		}
	}
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return 0, err
	}
	for f, v := range fields {
		if _, err := tx.Exec(`INSERT INTO hashes (db, key, field, value) VALUES (?, ?, ?, ?)
			ON CONFLICT (db, key, field) DO UPDATE SET value = excluded.value`, db, key, []byte(f), v); err != nil {
			return 0, err
		}
	}
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return 0, err
	}
	return created, nil
}

// SetNX implements HSETNX: set only if the field does not already exist.
func SetNX(tx *storage.Tx, db int, key []byte, field string, value []byte) (bool, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return false, err
	}
	exists, err := fieldExists(tx, db, key, field)
	if err != nil || exists {
		return false, err
	}
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return false, err
	}
	if _, err := tx.Exec(`INSERT INTO hashes (db, key, field, value) VALUES (?, ?, ?, ?)`, db, key, []byte(field), value); err != nil {
		return false, err
	}
	return true, keyregistry.Bump(tx, db, key)
}

func fieldExists(tx *storage.Tx, db int, key []byte, field string) (bool, error) {
	var n int
	err := tx.QueryRow(`SELECT 1 FROM hashes WHERE db = ? AND key = ? AND field = ?`, db, key, []byte(field)).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, rlerr.IOf("hash field lookup: %v", err)
	}
	return true, nil
}

// Get implements HGET.
func Get(tx *storage.Tx, db int, key []byte, field string) ([]byte, bool, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, false, err
	}
	var v []byte
	err := tx.QueryRow(`SELECT value FROM hashes WHERE db = ? AND key = ? AND field = ?`, db, key, []byte(field)).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, rlerr.IOf("hget: %v", err)
	}
	return v, true, nil
}

// MGet implements HMGET; missing fields report ok=false at their index.
func MGet(tx *storage.Tx, db int, key []byte, fields []string) ([][]byte, []bool, error) {
	out := make([][]byte, len(fields))
	oks := make([]bool, len(fields))
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return out, oks, err
	}
	for i, f := range fields {
		v, ok, err := Get(tx, db, key, f)
		if err != nil {
			return nil, nil, err
		}
		out[i], oks[i] = v, ok
	}
	return out, oks, nil
}

// GetAll implements HGETALL.
func GetAll(tx *storage.Tx, db int, key []byte) (map[string][]byte, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return map[string][]byte{}, err
	}
	rows, err := tx.Query(`SELECT field, value FROM hashes WHERE db = ? AND key = ?`, db, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]byte{}
	for rows.Next() {
		var f, v []byte
		if err := rows.Scan(&f, &v); err != nil {
			return nil, rlerr.IOf("hgetall scan: %v", err)
		}
		out[string(f)] = v
	}
	return out, nil
}

// Del implements HDEL, returning the number of fields actually removed.
func Del(tx *storage.Tx, db int, key []byte, fields []string) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	removed := 0
	for _, f := range fields {
		res, err := tx.Exec(`DELETE FROM hashes WHERE db = ? AND key = ? AND field = ?`, db, key, []byte(f))
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}
	if removed > 0 {
		remaining, err := Len(tx, db, key)
		if err != nil {
			return removed, err
		}
		if err := keyregistry.DeleteIfEmpty(tx, db, key, remaining); err != nil {
			return removed, err
		}
		if remaining > 0 {
			if err := keyregistry.Bump(tx, db, key); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

// Len implements HLEN.
func Len(tx *storage.Tx, db int, key []byte) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM hashes WHERE db = ? AND key = ?`, db, key).Scan(&n); err != nil {
		return 0, rlerr.IOf("hlen: %v", err)
	}
	return n, nil
}

// Exists implements HEXISTS.
func Exists(tx *storage.Tx, db int, key []byte, field string) (bool, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return false, err
	}
	return fieldExists(tx, db, key, field)
}

// IncrBy implements HINCRBY.
func IncrBy(tx *storage.Tx, db int, key []byte, field string, delta int64) (int64, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	cur, ok, err := Get(tx, db, key, field)
	if err != nil {
		return 0, err
	}
	var n int64
	if ok {
		n, err = strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return 0, rlerr.Valuef("hash value is not an integer")
		}
	}
	next := n + delta
	if err := setRaw(tx, db, key, field, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

// IncrByFloat implements HINCRBYFLOAT.
func IncrByFloat(tx *storage.Tx, db int, key []byte, field string, delta float64) (float64, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	cur, ok, err := Get(tx, db, key, field)
	if err != nil {
		return 0, err
	}
	var f float64
	if ok {
		f, err = strconv.ParseFloat(string(cur), 64)
		if err != nil {
			return 0, rlerr.Valuef("hash value is not a float")
		}
	}
	next := f + delta
	formatted := strconv.FormatFloat(next, 'f', -1, 64)
	if err := setRaw(tx, db, key, field, []byte(formatted)); err != nil {
		return 0, err
	}
	return next, nil
}

func setRaw(tx *storage.Tx, db int, key []byte, field string, value []byte) error {
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO hashes (db, key, field, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (db, key, field) DO UPDATE SET value = excluded.value`, db, key, []byte(field), value); err != nil {
		return err
	}
	return keyregistry.Bump(tx, db, key)
}

// Keys implements HKEYS.
func Keys(tx *storage.Tx, db int, key []byte) ([]string, error) {
	all, err := GetAll(tx, db, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for f := range all {
		out = append(out, f)
	}
	return out, nil
}

// Values implements HVALS.
func Values(tx *storage.Tx, db int, key []byte) ([][]byte, error) {
	all, err := GetAll(tx, db, key)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(all))
	for _, v := range all {
		out = append(out, v)
	}
	return out, nil
}
