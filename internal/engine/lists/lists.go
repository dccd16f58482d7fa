// Package lists implements the List data-type engine using gap-based
// positioning: each element's `position` is a float64 chosen so an
// insertion between any two neighbours finds a midpoint without
// renumbering existing rows. Left push decreases position, right push
// increases it.
package lists

import (
	"database/sql"

	"github.com/redlite/redlite/internal/keyregistry"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

const typeName = "list"

const (
	initialGap = 1 << 20 // generous starting spacing so many pushes stay O(1)
)

// Push implements LPUSH (left=true) / RPUSH (left=false) for one or more
// values, returning the resulting length.
func Push(tx *storage.Tx, db int, key []byte, values [][]byte, left bool) (int, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return 0, err
	}
	for _, v := range values {
		pos, err := nextEdgePosition(tx, db, key, left)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`INSERT INTO list_items (db, key, position, value) VALUES (?, ?, ?, ?)`, db, key, pos, v); err != nil {
			return 0, err
		}
	}
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return 0, err
	}
	return Len(tx, db, key)
}

// PushX implements LPUSHX/RPUSHX: only push if the key already exists.
func PushX(tx *storage.Tx, db int, key []byte, values [][]byte, left bool) (int, error) {
	k, found, err := keyregistry.ResolveTyped(tx, db, key, typeName)
	if err != nil || !found || k == nil {
		return 0, err
	}
	return Push(tx, db, key, values, left)
}

func nextEdgePosition(tx *storage.Tx, db int, key []byte, left bool) (float64, error) {
	var edge sql.NullFloat64
	var query string
	if left {
		query = `SELECT MIN(position) FROM list_items WHERE db = ? AND key = ?`
	} else {
		query = `SELECT MAX(position) FROM list_items WHERE db = ? AND key = ?`
	}
	if err := tx.QueryRow(query, db, key).Scan(&edge); err != nil {
		return 0, rlerr.IOf("list edge lookup: %v", err)
	}
	if !edge.Valid {
		return 0, nil
	}
	if left {
		return edge.Float64 - initialGap, nil
	}
	return edge.Float64 + initialGap, nil
}

// Len implements LLEN.
func Len(tx *storage.Tx, db int, key []byte) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM list_items WHERE db = ? AND key = ?`, db, key).Scan(&n); err != nil {
		return 0, rlerr.IOf("llen: %v", err)
	}
	return n, nil
}

// orderedValues returns every value for key in position order.
func orderedValues(tx *storage.Tx, db int, key []byte) ([][]byte, []float64, error) {
	rows, err := tx.Query(`SELECT position, value FROM list_items WHERE db = ? AND key = ? ORDER BY position ASC`, db, key)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var values [][]byte
	var positions []float64
	for rows.Next() {
		var p float64
		var v []byte
		if err := rows.Scan(&p, &v); err != nil {
			return nil, nil, rlerr.IOf("list scan: %v", err)
		}
		positions = append(positions, p)
		values = append(values, v)
	}
	return values, positions, nil
}

// Range implements LRANGE with negative-index-from-tail semantics.
func Range(tx *storage.Tx, db int, key []byte, start, stop int) ([][]byte, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, err
	}
	values, _, err := orderedValues(tx, db, key)
	if err != nil {
		return nil, err
	}
	n := len(values)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return [][]byte{}, nil
	}
	return values[start : stop+1], nil
}

// Index implements LINDEX.
func Index(tx *storage.Tx, db int, key []byte, index int) ([]byte, bool, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, false, err
	}
	values, _, err := orderedValues(tx, db, key)
	if err != nil {
		return nil, false, err
	}
	n := len(values)
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return nil, false, nil
	}
	return values[index], true, nil
}

// Set implements LSET.
func Set(tx *storage.Tx, db int, key []byte, index int, value []byte) error {
	_, found, err := keyregistry.ResolveTyped(tx, db, key, typeName)
	if err != nil {
		return err
	}
	if !found {
		return rlerr.New(rlerr.Unknown, "no such key")
	}
	_, positions, err := orderedValues(tx, db, key)
	if err != nil {
		return err
	}
	n := len(positions)
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return rlerr.Valuef("index out of range")
	}
	if _, err := tx.Exec(`UPDATE list_items SET value = ? WHERE db = ? AND key = ? AND position = ?`, value, db, key, positions[index]); err != nil {
		return err
	}
	return keyregistry.Bump(tx, db, key)
}

// Pop implements LPOP/RPOP with optional count, returning popped values in
// pop order (head-first for left, tail-first for right).
func Pop(tx *storage.Tx, db int, key []byte, count int, left bool) ([][]byte, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, err
	}
	order := "ASC"
	if !left {
		order = "DESC"
	}
	rows, err := tx.Query(`SELECT position, value FROM list_items WHERE db = ? AND key = ? ORDER BY position `+order+` LIMIT ?`, db, key, count)
	if err != nil {
		return nil, err
	}
	var positions []float64
	var values [][]byte
	for rows.Next() {
		var p float64
		var v []byte
		if err := rows.Scan(&p, &v); err != nil {
			rows.Close()
			return nil, rlerr.IOf("lpop scan: %v", err)
		}
		positions = append(positions, p)
		values = append(values, v)
	}
	rows.Close()
	for _, p := range positions {
		if _, err := tx.Exec(`DELETE FROM list_items WHERE db = ? AND key = ? AND position = ?`, db, key, p); err != nil {
			return nil, err
		}
	}
	if len(values) > 0 {
		remaining, err := Len(tx, db, key)
		if err != nil {
			return values, err
		}
		if err := keyregistry.DeleteIfEmpty(tx, db, key, remaining); err != nil {
			return values, err
		}
		if remaining > 0 {
			if err := keyregistry.Bump(tx, db, key); err != nil {
				return values, err
			}
		}
	}
	return values, nil
}

// Trim implements LTRIM: keep only the window [start, stop], drop the rest.
func Trim(tx *storage.Tx, db int, key []byte, start, stop int) error {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return err
	}
	_, positions, err := orderedValues(tx, db, key)
	if err != nil {
		return err
	}
	n := len(positions)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	for i, p := range positions {
		if i < start || i > stop {
			if _, err := tx.Exec(`DELETE FROM list_items WHERE db = ? AND key = ? AND position = ?`, db, key, p); err != nil {
				return err
			}
		}
	}
	remaining, err := Len(tx, db, key)
	if err != nil {
		return err
	}
	if err := keyregistry.DeleteIfEmpty(tx, db, key, remaining); err != nil {
		return err
	}
	if remaining > 0 {
		return keyregistry.Bump(tx, db, key)
	}
	return nil
}

// Insert implements LINSERT BEFORE|AFTER pivot value.
func Insert(tx *storage.Tx, db int, key []byte, before bool, pivot, value []byte) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		if err != nil {
			return 0, err
		}
		return 0, nil
	}
	values, positions, err := orderedValues(tx, db, key)
	if err != nil {
		return 0, err
	}
	idx := -1
	for i, v := range values {
		if string(v) == string(pivot) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return -1, nil
	}
	var newPos float64
	switch {
	case before && idx == 0:
		newPos = positions[0] - initialGap
	case !before && idx == len(positions)-1:
		newPos = positions[idx] + initialGap
	case before:
		newPos = (positions[idx-1] + positions[idx]) / 2
	default:
		newPos = (positions[idx] + positions[idx+1]) / 2
	}
	if _, err := tx.Exec(`INSERT INTO list_items (db, key, position, value) VALUES (?, ?, ?, ?)`, db, key, newPos, value); err != nil {
		return 0, err
	}
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return 0, err
	}
	return Len(tx, db, key)
}

// Move implements LMOVE/BLMOVE's non-blocking dequeue+enqueue, which the
// caller runs inside a single transact() call so the move is atomic.
func Move(tx *storage.Tx, db int, src, dst []byte, fromLeft, toLeft bool) ([]byte, bool, error) {
	popped, err := Pop(tx, db, src, 1, fromLeft)
	if err != nil || len(popped) == 0 {
		return nil, false, err
	}
	if _, err := Push(tx, db, dst, popped, toLeft); err != nil {
		return nil, false, err
	}
	return popped[0], true, nil
}
