// Package sets implements the Set data-type engine, including the
// SDIFF/SINTER/SUNION family and their *STORE variants.
package sets

import (
	"database/sql"

	"github.com/redlite/redlite/internal/keyregistry"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

const typeName = "set"

// Add implements SADD, returning the number of members actually added.
func Add(tx *storage.Tx, db int, key []byte, members [][]byte) (int, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return 0, err
	}
	added := 0
	for _, m := range members {
		res, err := tx.Exec(`INSERT OR IGNORE INTO set_members (db, key, member) VALUES (?, ?, ?)`, db, key, m)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if added > 0 {
		if err := keyregistry.Bump(tx, db, key); err != nil {
			return 0, err
		}
	}
	return added, nil
}

// Rem implements SREM, returning the number of members actually removed.
func Rem(tx *storage.Tx, db int, key []byte, members [][]byte) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	removed := 0
	for _, m := range members {
		res, err := tx.Exec(`DELETE FROM set_members WHERE db = ? AND key = ? AND member = ?`, db, key, m)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}
	if removed > 0 {
		remaining, err := Card(tx, db, key)
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

// IsMember implements SISMEMBER.
func IsMember(tx *storage.Tx, db int, key []byte, member []byte) (bool, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return false, err
	}
	var n int
	err := tx.QueryRow(`SELECT 1 FROM set_members WHERE db = ? AND key = ? AND member = ?`, db, key, member).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, rlerr.IOf("sismember: %v", err)
	}
	return true, nil
}

// Members implements SMEMBERS.
func Members(tx *storage.Tx, db int, key []byte) ([][]byte, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, err
	}
	rows, err := tx.Query(`SELECT member FROM set_members WHERE db = ? AND key = ?`, db, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var m []byte
		if err := rows.Scan(&m); err != nil {
			return nil, rlerr.IOf("smembers scan: %v", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Card implements SCARD.
func Card(tx *storage.Tx, db int, key []byte) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM set_members WHERE db = ? AND key = ?`, db, key).Scan(&n); err != nil {
		return 0, rlerr.IOf("scard: %v", err)
	}
	return n, nil
}

// Move implements SMOVE, atomically removing member from src and adding to
// dst. Returns false if member was not a member of src.
func Move(tx *storage.Tx, db int, src, dst []byte, member []byte) (bool, error) {
	ok, err := IsMember(tx, db, src, member)
	if err != nil || !ok {
		return false, err
	}
	if _, err := Rem(tx, db, src, [][]byte{member}); err != nil {
		return false, err
	}
	if _, err := Add(tx, db, dst, [][]byte{member}); err != nil {
		return false, err
	}
	return true, nil
}

func toSet(values [][]byte) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[string(v)] = struct{}{}
	}
	return m
}

// Diff implements SDIFF: members of the first set not present in any other.
func Diff(tx *storage.Tx, db int, keys [][]byte) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	base, err := Members(tx, db, keys[0])
	if err != nil {
		return nil, err
	}
	result := toSet(base)
	for _, k := range keys[1:] {
		others, err := Members(tx, db, k)
		if err != nil {
			return nil, err
		}
		for _, o := range others {
			delete(result, string(o))
		}
	}
	return setToSlice(result), nil
}

// Inter implements SINTER.
func Inter(tx *storage.Tx, db int, keys [][]byte) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	base, err := Members(tx, db, keys[0])
	if err != nil {
		return nil, err
	}
	result := toSet(base)
	for _, k := range keys[1:] {
		others, err := Members(tx, db, k)
		if err != nil {
			return nil, err
		}
		otherSet := toSet(others)
		for m := range result {
			if _, ok := otherSet[m]; !ok {
				delete(result, m)
			}
		}
	}
	return setToSlice(result), nil
}

// Union implements SUNION.
func Union(tx *storage.Tx, db int, keys [][]byte) ([][]byte, error) {
	result := map[string]struct{}{}
	for _, k := range keys {
		members, err := Members(tx, db, k)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			result[string(m)] = struct{}{}
		}
	}
	return setToSlice(result), nil
}

func setToSlice(s map[string]struct{}) [][]byte {
	out := make([][]byte, 0, len(s))
	for m := range s {
		out = append(out, []byte(m))
	}
	return out
}

// StoreResult overwrites dst's member set with the supplied values inside
// the caller's transaction, implementing the *STORE variants.
func StoreResult(tx *storage.Tx, db int, dst []byte, members [][]byte) (int, error) {
	if _, found, _ := keyregistry.Resolve(tx, db, dst); found {
		if err := keyregistry.Delete(tx, db, dst); err != nil {
			return 0, err
		}
	}
	if len(members) == 0 {
		return 0, nil
	}
	if _, err := keyregistry.Upsert(tx, db, dst, typeName); err != nil {
		return 0, err
	}
	for _, m := range members {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO set_members (db, key, member) VALUES (?, ?, ?)`, db, dst, m); err != nil {
			return 0, err
		}
	}
	if err := keyregistry.Bump(tx, db, dst); err != nil {
		return 0, err
	}
	return len(members), nil
}
