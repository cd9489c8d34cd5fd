// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

// =============================================================================
// CatalogCache — Variable Catalog Persistence
// =============================================================================
//
// The full ACS variable listing is ~30MB of JSON and changes only when the
// Census Bureau publishes revisions, so it is fetched rarely and persisted
// in BadgerDB between process restarts.
//
// Design choices:
//
//	1. Application-level freshness, not BadgerDB TTL: a snapshot past its
//	   freshness window must remain readable so it can be served when a
//	   refresh attempt fails. BadgerDB's native TTL would delete exactly the
//	   data the degraded path needs. Age is checked against an injected
//	   clock instead.
//
//	2. Vintage as cache key: catalogs for different dataset editions never
//	   collide and never invalidate each other.
//
//	3. singleflight per vintage: when concurrent resolve calls miss the
//	   cache, exactly one fetches from the network; the rest share its
//	   result. Readers of a fresh snapshot never block on a refresh.
//
// Storage layout:
//
//	census/catalog/v1/{vintage}  →  gob-encoded CatalogSnapshot

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// DefaultCatalogTTL is the default freshness window for a catalog snapshot.
// ACS revisions land on the scale of months; 14 days keeps snapshots current
// without hammering the listing endpoint.
const DefaultCatalogTTL = 14 * 24 * time.Hour

// catalogKeyPrefix is prepended to the vintage to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const catalogKeyPrefix = "census/catalog/v1/"

// errSnapshotMiss is a sentinel used internally to distinguish "key not
// found" (a normal miss) from a genuine storage error.
var errSnapshotMiss = errors.New("snapshot miss")

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	catalogRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bayou",
		Subsystem: "catalog",
		Name:      "refresh_total",
		Help:      "Catalog refresh attempts by outcome",
	}, []string{"outcome"})

	catalogSnapshotHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bayou",
		Subsystem: "catalog",
		Name:      "snapshot_hits_total",
		Help:      "Times a fresh persisted snapshot was served without a network call",
	})

	catalogStaleServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bayou",
		Subsystem: "catalog",
		Name:      "stale_served_total",
		Help:      "Times a stale snapshot was served because a refresh failed",
	})
)

// =============================================================================
// Snapshot Store
// =============================================================================

// CatalogSnapshot is a persisted variable catalog plus its fetch time.
type CatalogSnapshot struct {
	// Vintage is the dataset edition this snapshot was fetched for.
	Vintage int

	// FetchedAt is when the listing was downloaded.
	FetchedAt time.Time

	// Records is the materialized, filtered catalog in canonical order.
	Records []VariableRecord
}

// SnapshotStore persists catalog snapshots across process restarts.
//
// # Description
//
// Load returns (nil, nil) on a miss — key absent. Implementations must keep
// snapshots readable indefinitely; freshness is the cache's concern, not the
// store's.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	Load(ctx context.Context, vintage int) (*CatalogSnapshot, error)
	Save(ctx context.Context, snapshot *CatalogSnapshot) error
}

// BadgerSnapshotStore implements SnapshotStore backed by a BadgerDB instance.
//
// # Description
//
// Snapshots are gob-encoded. The DB is expected to be opened at startup by
// the caller (typically in main) and shared with other stores; this store
// does not own the DB lifecycle.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type BadgerSnapshotStore struct {
	db     *dgbadger.DB
	logger *slog.Logger
}

// NewBadgerSnapshotStore creates a BadgerSnapshotStore backed by the given DB.
func NewBadgerSnapshotStore(db *dgbadger.DB, logger *slog.Logger) *BadgerSnapshotStore {
	if db == nil {
		panic("NewBadgerSnapshotStore: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerSnapshotStore{db: db, logger: logger}
}

// Load retrieves the persisted snapshot for a vintage, or (nil, nil) on miss.
func (s *BadgerSnapshotStore) Load(ctx context.Context, vintage int) (*CatalogSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(catalogKey(vintage))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errSnapshotMiss
		}
		if err != nil {
			return fmt.Errorf("get snapshot key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errSnapshotMiss) {
		s.logger.Debug("catalog store: miss", slog.Int("vintage", vintage))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog store load: %w", err)
	}

	var snapshot CatalogSnapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	s.logger.Debug("catalog store: hit",
		slog.Int("vintage", vintage),
		slog.Int("record_count", len(snapshot.Records)),
		slog.Time("fetched_at", snapshot.FetchedAt),
	)
	return &snapshot, nil
}

// Save persists a snapshot, overwriting any previous one for the vintage.
func (s *BadgerSnapshotStore) Save(ctx context.Context, snapshot *CatalogSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return fmt.Errorf("catalog store encode: %w", err)
	}

	err := s.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(catalogKey(snapshot.Vintage), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("catalog store save: %w", err)
	}

	s.logger.Debug("catalog store: saved",
		slog.Int("vintage", snapshot.Vintage),
		slog.Int("record_count", len(snapshot.Records)),
	)
	return nil
}

// catalogKey builds the BadgerDB key for a vintage.
func catalogKey(vintage int) []byte {
	return []byte(catalogKeyPrefix + strconv.Itoa(vintage))
}

// =============================================================================
// CatalogCache
// =============================================================================

// catalogFetcher is the slice of CatalogClient the cache depends on.
type catalogFetcher interface {
	FetchCatalog(ctx context.Context, vintage int) ([]VariableRecord, error)
}

// CatalogCache serves the variable catalog for a vintage, refreshing from
// the network only when the persisted snapshot has aged past the TTL.
//
// # Description
//
// Lookup order: in-process snapshot → persisted snapshot → network. A fresh
// snapshot (age < TTL) is served without any network call. When a
// TTL-triggered refresh fails and a stale snapshot exists, the stale
// snapshot is served with a warning (age unbounded); only a cold fetch with
// no snapshot at all fails, with ErrSourceUnavailable.
//
// # Thread Safety
//
// Safe for concurrent use. At most one network refresh runs per vintage at
// a time; concurrent callers share its result.
type CatalogCache struct {
	client catalogFetcher
	store  SnapshotStore // may be nil: in-memory only
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	group singleflight.Group

	mu  sync.RWMutex
	mem map[int]*CatalogSnapshot
}

// CatalogCacheOption is a functional option for configuring CatalogCache.
type CatalogCacheOption func(*CatalogCache)

// WithCatalogTTL overrides the snapshot freshness window.
func WithCatalogTTL(ttl time.Duration) CatalogCacheOption {
	return func(c *CatalogCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source. Tests use this to age snapshots
// deterministically.
func WithClock(now func() time.Time) CatalogCacheOption {
	return func(c *CatalogCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCatalogCache creates a CatalogCache.
//
// # Inputs
//
//   - client: Fetches the listing on refresh. Must not be nil.
//   - store: Persists snapshots between restarts. May be nil (in-memory only;
//     every process start pays one cold fetch per vintage).
//   - logger: Diagnostics. May be nil.
//   - opts: Optional TTL and clock overrides.
//
// # Thread Safety
//
// The returned cache is safe for concurrent use.
func NewCatalogCache(client catalogFetcher, store SnapshotStore, logger *slog.Logger, opts ...CatalogCacheOption) *CatalogCache {
	if client == nil {
		panic("NewCatalogCache: client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &CatalogCache{
		client: client,
		store:  store,
		ttl:    DefaultCatalogTTL,
		now:    time.Now,
		logger: logger,
		mem:    make(map[int]*CatalogSnapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the variable catalog for a vintage.
//
// # Description
//
// May block on network I/O on a cold cache; callers needing a bound should
// wrap the context with a deadline. The returned slice is shared and must
// be treated as read-only.
//
// # Outputs
//
//   - []VariableRecord: The catalog. Empty is valid (degenerate listing).
//   - error: ErrSourceUnavailable (wrapped) when a cold fetch fails with no
//     snapshot to fall back on.
//
// # Thread Safety
//
// Safe for concurrent use.
func (c *CatalogCache) Catalog(ctx context.Context, vintage int) ([]VariableRecord, error) {
	if snap := c.memSnapshot(vintage); snap != nil && c.fresh(snap) {
		return snap.Records, nil
	}

	v, err, _ := c.group.Do(strconv.Itoa(vintage), func() (any, error) {
		return c.loadOrRefresh(ctx, vintage)
	})
	if err != nil {
		return nil, err
	}

	snap := v.(*CatalogSnapshot)
	if len(snap.Records) == 0 {
		c.logger.Warn("catalog is empty; resolution will return no candidates",
			slog.Int("vintage", vintage),
		)
	}
	return snap.Records, nil
}

// loadOrRefresh runs inside singleflight: consult the store, then the
// network, then the stale fallback.
func (c *CatalogCache) loadOrRefresh(ctx context.Context, vintage int) (*CatalogSnapshot, error) {
	// Re-check after winning the flight; a concurrent caller may have
	// populated the snapshot while this one waited.
	stale := c.memSnapshot(vintage)
	if stale != nil && c.fresh(stale) {
		return stale, nil
	}

	if c.store != nil {
		stored, err := c.store.Load(ctx, vintage)
		switch {
		case errors.Is(err, ErrSnapshotCorrupt):
			c.logger.Warn("persisted catalog snapshot corrupt, refetching",
				slog.Int("vintage", vintage),
				slog.String("error", err.Error()),
			)
		case err != nil:
			return nil, err
		case stored != nil:
			if c.fresh(stored) {
				catalogSnapshotHits.Inc()
				c.setMemSnapshot(vintage, stored)
				return stored, nil
			}
			stale = stored
		}
	}

	records, err := c.client.FetchCatalog(ctx, vintage)
	if err != nil {
		if stale != nil {
			// Non-fatal degradation: refresh failed but an old snapshot
			// exists. Serve it regardless of age.
			catalogRefreshTotal.WithLabelValues("stale_fallback").Inc()
			catalogStaleServed.Inc()
			c.logger.Warn("catalog refresh failed, serving stale snapshot",
				slog.Int("vintage", vintage),
				slog.Time("fetched_at", stale.FetchedAt),
				slog.String("error", err.Error()),
			)
			c.setMemSnapshot(vintage, stale)
			return stale, nil
		}
		catalogRefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: vintage %d: %v", ErrSourceUnavailable, vintage, err)
	}

	snap := &CatalogSnapshot{
		Vintage:   vintage,
		FetchedAt: c.now(),
		Records:   records,
	}

	if c.store != nil {
		if err := c.store.Save(ctx, snap); err != nil {
			// Persistence failure is non-fatal; the snapshot is refetched
			// on the next restart.
			c.logger.Warn("catalog snapshot persist failed",
				slog.Int("vintage", vintage),
				slog.String("error", err.Error()),
			)
		}
	}

	catalogRefreshTotal.WithLabelValues("ok").Inc()
	c.setMemSnapshot(vintage, snap)
	return snap, nil
}

// fresh reports whether a snapshot is inside the freshness window.
func (c *CatalogCache) fresh(snap *CatalogSnapshot) bool {
	return c.now().Sub(snap.FetchedAt) < c.ttl
}

func (c *CatalogCache) memSnapshot(vintage int) *CatalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mem[vintage]
}

func (c *CatalogCache) setMemSnapshot(vintage int, snap *CatalogSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[vintage] = snap
}
