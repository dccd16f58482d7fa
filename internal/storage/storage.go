// Package storage owns the connection to the backing relational store
// (SQLite via mattn/go-sqlite3, built with the sqlite_fts5 tag) and exposes
// the transact/read/exec primitives every other component is layered on.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/rlerr"
)

// Store wraps a *sql.DB configured for the engine's concurrency model:
// WAL journaling for file-backed stores, and a single pooled connection, so
// every read and write from this process runs one at a time.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open applies the schema (idempotently) and returns a ready Store.
// path may be a filesystem path or ":memory:".
func Open(path string, log *zap.Logger) (*Store, error) {
	log = log.Named("storage")

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	} else {
		dsn = "file::memory:?cache=shared&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, rlerr.IOf("open store: %v", err)
	}
	// SQLite allows one writer; keep a single physical connection so
	// "busy" contention is visible to our own retry loop rather than the
	// driver's pool silently queuing it.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return rlerr.IOf("apply schema: %v", err)
	}
	return nil
}

// Tx is the handle passed to every engine/registry operation inside one
// transact() call. It never outlives the call.
type Tx struct {
	tx  *sql.Tx
	now int64
}

// Now returns the millisecond timestamp captured at transaction start; all
// operations within the transaction see the same "now", keeping a single
// write's timestamp fields mutually consistent.
func (t *Tx) Now() int64 { return t.now }

func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	res, err := t.tx.Exec(query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

func (t *Tx) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(query, args...)
}

// nowMillis is overridable in tests; production always uses wall-clock.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// Transact runs fn inside a write transaction. It commits on success, rolls
// back on failure, and retries SQLITE_BUSY with exponential backoff capped
// at 5s (matching the storage adapter contract in §4.1).
func (s *Store) Transact(ctx context.Context, fn func(*Tx) error) error {
	backoff := 10 * time.Millisecond
	const cap = 5 * time.Second
	for {
		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return rlerr.Busyf("store busy: %v", ctx.Err())
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if backoff > cap {
			backoff = cap
		}
	}
}

func (s *Store) attempt(ctx context.Context, fn func(*Tx) error) error {
	sqltx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	tx := &Tx{tx: sqltx, now: nowMillis()}
	if err := fn(tx); err != nil {
		_ = sqltx.Rollback()
		return err
	}
	if err := sqltx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)/2+1))
}

func isBusy(err error) bool {
	var e *rlerr.Error
	if errors.As(err, &e) {
		return e.Kind == rlerr.Busy
	}
	return false
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return rlerr.Busyf("%v", err)
	}
	return rlerr.IOf("%v", err)
}
