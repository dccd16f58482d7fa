// Package history implements versioned snapshots of key mutations with a
// three-tier configuration cascade (key overrides db overrides global) and
// inline retention enforcement: every recorded version immediately prunes
// whatever the active policy says is now too old or too many.
package history

import (
	"database/sql"
	"fmt"

	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

// Scope is a history_config row's priority tier.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeDB     Scope = "db"
	ScopeKey    Scope = "key"
)

const globalTarget = "*"

// RetentionKind selects how Policy.Value is interpreted.
type RetentionKind string

const (
	RetentionCount RetentionKind = "count" // keep at most Value versions
	RetentionDays  RetentionKind = "days"  // keep versions newer than Value days
)

// Policy is the effective configuration for one key after cascading.
type Policy struct {
	Enabled bool
	Kind    RetentionKind
	Value   int64
}

func dbTarget(db int) string               { return fmt.Sprintf("%d", db) }
func keyTarget(db int, key []byte) string { return fmt.Sprintf("%d:%s", db, key) }

// GlobalTarget, DBTarget, and KeyTarget expose the scope/target encoding so
// callers (HISTORY CONFIG's dispatch handler) can build SetConfig's target
// argument without reaching into this package's internal key scheme.
func GlobalTarget() string                 { return globalTarget }
func DBTarget(db int) string                { return dbTarget(db) }
func KeyTarget(db int, key []byte) string   { return keyTarget(db, key) }

// SetConfig installs the policy for one scope/target pair, implementing
// HISTORY CONFIG SET. A policy with enabled false is stored like any other;
// EffectivePolicy finds it first, so it disables history for that tier
// rather than deferring to a lower one.
func SetConfig(tx *storage.Tx, scope Scope, target string, enabled bool, kind RetentionKind, value int64) error {
	_, err := tx.Exec(`INSERT INTO history_config (scope, target, enabled, retention_kind, retention_value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (scope, target) DO UPDATE SET enabled = excluded.enabled,
			retention_kind = excluded.retention_kind, retention_value = excluded.retention_value`,
		string(scope), target, boolToInt(enabled), string(kind), value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EffectivePolicy cascades key > db > global, returning the first configured
// tier. With nothing configured at any tier, history is disabled by default.
func EffectivePolicy(tx *storage.Tx, db int, key []byte) (Policy, error) {
	if p, ok, err := lookup(tx, ScopeKey, keyTarget(db, key)); err != nil || ok {
		return p, err
	}
	if p, ok, err := lookup(tx, ScopeDB, dbTarget(db)); err != nil || ok {
		return p, err
	}
	if p, ok, err := lookup(tx, ScopeGlobal, globalTarget); err != nil || ok {
		return p, err
	}
	return Policy{Enabled: false}, nil
}

func lookup(tx *storage.Tx, scope Scope, target string) (Policy, bool, error) {
	var enabled int
	var kind string
	var value int64
	err := tx.QueryRow(`SELECT enabled, retention_kind, retention_value FROM history_config WHERE scope = ? AND target = ?`,
		string(scope), target).Scan(&enabled, &kind, &value)
	if err == sql.ErrNoRows {
		return Policy{}, false, nil
	}
	if err != nil {
		return Policy{}, false, rlerr.IOf("history config lookup: %v", err)
	}
	return Policy{Enabled: enabled != 0, Kind: RetentionKind(kind), Value: value}, true, nil
}

// Version is one recorded mutation.
type Version struct {
	VersionNum  int64
	Operation   string
	TimestampMs int64
	Snapshot    []byte
}

// Record appends a new version for (db, key) if the effective policy enables
// history, then immediately enforces retention. Callers invoke this inside
// the same transaction as the mutation it snapshots, before commit, so a
// rolled-back write never leaves an orphaned version.
func Record(tx *storage.Tx, db int, key []byte, operation string, snapshot []byte) error {
	policy, err := EffectivePolicy(tx, db, key)
	if err != nil || !policy.Enabled {
		return err
	}
	var maxVersion sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(version_num) FROM history_versions WHERE db = ? AND key = ?`, db, key).Scan(&maxVersion); err != nil {
		return rlerr.IOf("history max version: %v", err)
	}
	next := int64(1)
	if maxVersion.Valid {
		next = maxVersion.Int64 + 1
	}
	if _, err := tx.Exec(`INSERT INTO history_versions (db, key, version_num, operation, timestamp_ms, snapshot)
		VALUES (?, ?, ?, ?, ?, ?)`, db, key, next, operation, tx.Now(), snapshot); err != nil {
		return err
	}
	return enforceRetention(tx, db, key, policy)
}

func enforceRetention(tx *storage.Tx, db int, key []byte, policy Policy) error {
	switch policy.Kind {
	case RetentionCount:
		if policy.Value <= 0 {
			return nil
		}
		_, err := tx.Exec(`DELETE FROM history_versions WHERE db = ? AND key = ? AND version_num NOT IN (
			SELECT version_num FROM history_versions WHERE db = ? AND key = ? ORDER BY version_num DESC LIMIT ?
		)`, db, key, db, key, policy.Value)
		return err
	case RetentionDays:
		if policy.Value <= 0 {
			return nil
		}
		cutoff := tx.Now() - policy.Value*24*60*60*1000
		_, err := tx.Exec(`DELETE FROM history_versions WHERE db = ? AND key = ? AND timestamp_ms < ?`, db, key, cutoff)
		return err
	default:
		return nil
	}
}

// Prune re-applies the effective policy's retention on demand, implementing
// HISTORY PRUNE. It returns the number of versions removed.
func Prune(tx *storage.Tx, db int, key []byte) (int, error) {
	policy, err := EffectivePolicy(tx, db, key)
	if err != nil {
		return 0, err
	}
	before, err := countVersions(tx, db, key)
	if err != nil {
		return 0, err
	}
	if err := enforceRetention(tx, db, key, policy); err != nil {
		return 0, err
	}
	after, err := countVersions(tx, db, key)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}

func countVersions(tx *storage.Tx, db int, key []byte) (int, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM history_versions WHERE db = ? AND key = ?`, db, key).Scan(&n); err != nil {
		return 0, rlerr.IOf("history count: %v", err)
	}
	return n, nil
}

// Get implements HISTORY GET: the most recent `limit` versions, newest
// first. limit<=0 means unbounded.
func Get(tx *storage.Tx, db int, key []byte, limit int) ([]Version, error) {
	query := `SELECT version_num, operation, timestamp_ms, snapshot FROM history_versions
		WHERE db = ? AND key = ? ORDER BY version_num DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = tx.Query(query+` LIMIT ?`, db, key, limit)
	} else {
		rows, err = tx.Query(query, db, key)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVersions(rows)
}

// GetAt implements HISTORY GETAT: the latest version at or before
// timestampMs, if any.
func GetAt(tx *storage.Tx, db int, key []byte, timestampMs int64) (*Version, bool, error) {
	row := tx.QueryRow(`SELECT version_num, operation, timestamp_ms, snapshot FROM history_versions
		WHERE db = ? AND key = ? AND timestamp_ms <= ? ORDER BY timestamp_ms DESC, version_num DESC LIMIT 1`,
		db, key, timestampMs)
	var v Version
	if err := row.Scan(&v.VersionNum, &v.Operation, &v.TimestampMs, &v.Snapshot); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, rlerr.IOf("history getat: %v", err)
	}
	return &v, true, nil
}

// Stats implements HISTORY STATS: count plus the oldest/newest timestamps.
func Stats(tx *storage.Tx, db int, key []byte) (count int, oldestMs, newestMs int64, err error) {
	row := tx.QueryRow(`SELECT COUNT(*), MIN(timestamp_ms), MAX(timestamp_ms) FROM history_versions WHERE db = ? AND key = ?`, db, key)
	var oldest, newest sql.NullInt64
	if err := row.Scan(&count, &oldest, &newest); err != nil {
		return 0, 0, 0, rlerr.IOf("history stats: %v", err)
	}
	return count, oldest.Int64, newest.Int64, nil
}

// Clear implements HISTORY CLEAR: drop every version for key.
func Clear(tx *storage.Tx, db int, key []byte) (int, error) {
	res, err := tx.Exec(`DELETE FROM history_versions WHERE db = ? AND key = ?`, db, key)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanVersions(rows *sql.Rows) ([]Version, error) {
	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.VersionNum, &v.Operation, &v.TimestampMs, &v.Snapshot); err != nil {
			return nil, rlerr.IOf("history scan: %v", err)
		}
		out = append(out, v)
	}
	return out, nil
}
