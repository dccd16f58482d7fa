// Package engine composes the services every connection needs into one
// explicit Root value: the storage handle, the access tracker, the
// pub/sub broker, the blocking-command notifier, and live configuration.
// Nothing here reaches for a package-level global — every component that
// needs one of these takes it as a constructor argument, so tests can stand
// up an isolated Root per test case.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/blocking"
	"github.com/redlite/redlite/internal/config"
	"github.com/redlite/redlite/internal/expiry"
	"github.com/redlite/redlite/internal/pubsub"
	"github.com/redlite/redlite/internal/storage"
)

// Root is the engine's composition root: one instance per running server,
// shared read-only (after construction) by every connection's session.
type Root struct {
	Store    *storage.Store
	Config   *config.Config
	PubSub   *pubsub.Broker
	Notifier *blocking.Notifier
	Access   *expiry.AccessTracker
	Vacuum   *expiry.Vacuum
	Evictor  *expiry.Evictor
	Log      *zap.Logger
}

// Options configures Open.
type Options struct {
	Path string // filesystem path, or ":memory:"
	Log  *zap.Logger
}

// Open builds a Root: opens the store, applies the schema, and wires every
// service together. It does not start the background maintenance loops;
// call Run for that once the caller is ready to serve traffic.
func Open(opts Options) (*Root, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	store, err := storage.Open(opts.Path, log)
	if err != nil {
		return nil, err
	}
	cfg := config.New()
	r := &Root{
		Store:    store,
		Config:   cfg,
		PubSub:   pubsub.New(),
		Notifier: blocking.New(),
		Log:      log.Named("engine"),
	}
	r.Access = expiry.NewAccessTracker(store, cfg, log)
	r.Vacuum = expiry.NewVacuum(store, cfg, log)
	r.Evictor = expiry.NewEvictor(store, cfg, log, r.estimateSize)
	return r, nil
}

// estimateSize reports the store's approximate on-disk footprint via
// SQLite's page_count/page_size pragmas, used by the evictor to decide
// whether maxmemory/maxdisk is currently exceeded.
func (r *Root) estimateSize(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := r.Store.Transact(ctx, func(tx *storage.Tx) error {
		if err := tx.QueryRow(`PRAGMA page_count`).Scan(&pageCount); err != nil {
			return err
		}
		return tx.QueryRow(`PRAGMA page_size`).Scan(&pageSize)
	}); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

// Run starts the background maintenance loops (access-tracker flush,
// autovacuum, maxmemory/maxdisk eviction) and blocks until ctx is cancelled.
func (r *Root) Run(ctx context.Context) {
	done := make(chan struct{}, 3)
	go func() { r.Access.Run(ctx); done <- struct{}{} }()
	go func() { r.Vacuum.Run(ctx); done <- struct{}{} }()
	go func() { r.Evictor.Run(ctx); done <- struct{}{} }()
	<-done
	<-done
	<-done
}

// Close releases the store handle.
func (r *Root) Close() error {
	return r.Store.Close()
}
