// Package keyregistry is the thin coordinator over the keys table: the
// single place that creates, resolves, expires, and destroys key rows.
// Every data-type engine goes through it so invariants 1, 2, 3, and 6
// (type exclusivity, lazy expiration, db isolation) hold in one place.
package keyregistry

import (
	"database/sql"

	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

// Key mirrors one row of the keys table.
type Key struct {
	DB           int
	Key          []byte
	Type         string
	ExpireAtMs   *int64
	CreatedAtMs  int64
	UpdatedAtMs  int64
	Version      int64
	LastAccessMs int64
	AccessCount  int64
}

// TTLGuard selects the conditional-expiry semantics for SetExpiry.
type TTLGuard int

const (
	GuardNone TTLGuard = iota
	GuardNX            // only set if no expiry exists
	GuardXX            // only set if an expiry already exists
	GuardGT            // only set if new expiry is later than current
	GuardLT            // only set if new expiry is earlier than current
)

// Upsert creates the key row on first use or touches it on a later write.
// It fails WRONGTYPE if an existing row has a different type.
func Upsert(tx *storage.Tx, db int, key []byte, typ string) (*Key, error) {
	existing, found, err := lookupRaw(tx, db, key)
	if err != nil {
		return nil, err
	}
	now := tx.Now()
	if found {
		if existing.Type != typ {
			return nil, rlerr.ErrWrongType
		}
		return existing, nil
	}
	if _, err := tx.Exec(
		`INSERT INTO keys (db, key, type, expire_at_ms, created_at_ms, updated_at_ms, version, last_access_ms, access_count)
		 VALUES (?, ?, ?, NULL, ?, ?, 1, ?, 0)`,
		db, key, typ, now, now, now,
	); err != nil {
		return nil, err
	}
	return &Key{DB: db, Key: key, Type: typ, CreatedAtMs: now, UpdatedAtMs: now, Version: 1, LastAccessMs: now}, nil
}

// Resolve fetches the current row, applying lazy expiration: if the row is
// expired it is deleted and Resolve reports "not found".
func Resolve(tx *storage.Tx, db int, key []byte) (*Key, bool, error) {
	k, found, err := lookupRaw(tx, db, key)
	if err != nil || !found {
		return nil, false, err
	}
	if k.ExpireAtMs != nil && *k.ExpireAtMs <= tx.Now() {
		if err := Delete(tx, db, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return k, true, nil
}

// ResolveTyped resolves the key and fails WRONGTYPE if it exists with a
// different type. A missing key returns found=false with no error.
func ResolveTyped(tx *storage.Tx, db int, key []byte, typ string) (*Key, bool, error) {
	k, found, err := Resolve(tx, db, key)
	if err != nil || !found {
		return nil, false, err
	}
	if k.Type != typ {
		return nil, false, rlerr.ErrWrongType
	}
	return k, true, nil
}

func lookupRaw(tx *storage.Tx, db int, key []byte) (*Key, bool, error) {
	row := tx.QueryRow(
		`SELECT type, expire_at_ms, created_at_ms, updated_at_ms, version, last_access_ms, access_count
		   FROM keys WHERE db = ? AND key = ?`, db, key)
	var k Key
	var expire sql.NullInt64
	if err := row.Scan(&k.Type, &expire, &k.CreatedAtMs, &k.UpdatedAtMs, &k.Version, &k.LastAccessMs, &k.AccessCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, rlerr.IOf("resolve key: %v", err)
	}
	if expire.Valid {
		k.ExpireAtMs = &expire.Int64
	}
	k.DB, k.Key = db, key
	return &k, true, nil
}

// Bump advances updated_at_ms and the version counter. Call after every
// mutating write.
func Bump(tx *storage.Tx, db int, key []byte) error {
	_, err := tx.Exec(`UPDATE keys SET updated_at_ms = ?, version = version + 1 WHERE db = ? AND key = ?`,
		tx.Now(), db, key)
	return err
}

// Delete removes the key row; FK cascades remove the value rows.
func Delete(tx *storage.Tx, db int, key []byte) error {
	_, err := tx.Exec(`DELETE FROM keys WHERE db = ? AND key = ?`, db, key)
	return err
}

// DeleteIfEmpty removes the key row when the given value-row count is zero,
// implementing "empty collections cascade to Key deletion".
func DeleteIfEmpty(tx *storage.Tx, db int, key []byte, remaining int) error {
	if remaining > 0 {
		return nil
	}
	return Delete(tx, db, key)
}

// SetExpiry installs, clears, or conditionally updates a key's expiry.
func SetExpiry(tx *storage.Tx, db int, key []byte, ms *int64, guard TTLGuard) (bool, error) {
	k, found, err := Resolve(tx, db, key)
	if err != nil || !found {
		return false, err
	}
	switch guard {
	case GuardNX:
		if k.ExpireAtMs != nil {
			return false, nil
		}
	case GuardXX:
		if k.ExpireAtMs == nil {
			return false, nil
		}
	case GuardGT:
		if ms == nil || (k.ExpireAtMs != nil && *ms <= *k.ExpireAtMs) {
			return false, nil
		}
	case GuardLT:
		if k.ExpireAtMs != nil && ms != nil && *ms >= *k.ExpireAtMs {
			return false, nil
		}
	}
	if _, err := tx.Exec(`UPDATE keys SET expire_at_ms = ? WHERE db = ? AND key = ?`, ms, db, key); err != nil {
		return false, err
	}
	return true, nil
}

// TTLUnit selects the return granularity for TTL.
type TTLUnit int

const (
	UnitSeconds TTLUnit = iota
	UnitMillis
)

// TTL returns -2 if missing, -1 if no expiry, else the remaining duration.
func TTL(tx *storage.Tx, db int, key []byte, unit TTLUnit) (int64, error) {
	k, found, err := Resolve(tx, db, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return -2, nil
	}
	if k.ExpireAtMs == nil {
		return -1, nil
	}
	remaining := *k.ExpireAtMs - tx.Now()
	if remaining < 0 {
		remaining = 0
	}
	if unit == UnitSeconds {
		return (remaining + 999) / 1000, nil
	}
	return remaining, nil
}

// Touch updates k's in-memory access fields (LastAccessMs, AccessCount).
// It writes neither the store nor internal/expiry.AccessTracker's map.
func Touch(k *Key, nowMs int64) {
	k.LastAccessMs = nowMs
	k.AccessCount++
}
