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

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Doubles
// =============================================================================

// fakeFetcher counts calls and serves a scripted catalog or error.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	records []VariableRecord
	err     error
}

func (f *fakeFetcher) FetchCatalog(ctx context.Context, vintage int) ([]VariableRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memStore is an in-memory SnapshotStore.
type memStore struct {
	mu        sync.Mutex
	snapshots map[int]*CatalogSnapshot
	loadErr   error
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[int]*CatalogSnapshot)}
}

func (s *memStore) Load(ctx context.Context, vintage int) (*CatalogSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.snapshots[vintage], nil
}

func (s *memStore) Save(ctx context.Context, snapshot *CatalogSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Vintage] = snapshot
	return nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testRecords() []VariableRecord {
	return []VariableRecord{
		{VariableID: "B01003_001E", Label: "Estimate!!Total", Concept: "Total Population", SourceTable: "B01003"},
	}
}

// =============================================================================
// CatalogCache Tests
// =============================================================================

func TestCatalog_ColdFetchPopulatesStore(t *testing.T) {
	fetcher := &fakeFetcher{records: testRecords()}
	store := newMemStore()
	clock := newFakeClock()
	cache := NewCatalogCache(fetcher, store, nil, WithClock(clock.Now))

	records, err := cache.Catalog(context.Background(), 2023)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if fetcher.callCount() != 1 {
		t.Errorf("fetch count = %d, want 1", fetcher.callCount())
	}

	persisted, _ := store.Load(context.Background(), 2023)
	if persisted == nil {
		t.Fatal("cold fetch did not persist a snapshot")
	}
	if !persisted.FetchedAt.Equal(clock.Now()) {
		t.Errorf("FetchedAt = %v, want clock time %v", persisted.FetchedAt, clock.Now())
	}
}

func TestCatalog_FreshSnapshotSkipsNetwork(t *testing.T) {
	fetcher := &fakeFetcher{records: testRecords()}
	store := newMemStore()
	clock := newFakeClock()

	store.Save(context.Background(), &CatalogSnapshot{
		Vintage:   2023,
		FetchedAt: clock.Now().Add(-time.Hour),
		Records:   testRecords(),
	})

	cache := NewCatalogCache(fetcher, store, nil, WithClock(clock.Now))
	if _, err := cache.Catalog(context.Background(), 2023); err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("fresh persisted snapshot must be served without a fetch, got %d fetches", fetcher.callCount())
	}
}

func TestCatalog_MemoryFastPathAfterFirstLoad(t *testing.T) {
	fetcher := &fakeFetcher{records: testRecords()}
	clock := newFakeClock()
	cache := NewCatalogCache(fetcher, newMemStore(), nil, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		if _, err := cache.Catalog(context.Background(), 2023); err != nil {
			t.Fatalf("Catalog call %d: %v", i, err)
		}
	}
	if fetcher.callCount() != 1 {
		t.Errorf("fetch count = %d, want 1 (subsequent calls hit memory)", fetcher.callCount())
	}
}

func TestCatalog_TTLExpiryTriggersRefetch(t *testing.T) {
	fetcher := &fakeFetcher{records: testRecords()}
	clock := newFakeClock()
	cache := NewCatalogCache(fetcher, newMemStore(), nil,
		WithClock(clock.Now),
		WithCatalogTTL(14*24*time.Hour),
	)

	if _, err := cache.Catalog(context.Background(), 2023); err != nil {
		t.Fatalf("first Catalog: %v", err)
	}

	clock.Advance(13 * 24 * time.Hour)
	if _, err := cache.Catalog(context.Background(), 2023); err != nil {
		t.Fatalf("within-TTL Catalog: %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("within-TTL call refetched (count=%d)", fetcher.callCount())
	}

	clock.Advance(2 * 24 * time.Hour)
	if _, err := cache.Catalog(context.Background(), 2023); err != nil {
		t.Fatalf("post-TTL Catalog: %v", err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("post-TTL call did not refetch (count=%d)", fetcher.callCount())
	}
}

func TestCatalog_StaleFallbackOnRefreshFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("census api down")}
	store := newMemStore()
	clock := newFakeClock()

	// A snapshot far past any freshness window.
	store.Save(context.Background(), &CatalogSnapshot{
		Vintage:   2023,
		FetchedAt: clock.Now().Add(-90 * 24 * time.Hour),
		Records:   testRecords(),
	})

	cache := NewCatalogCache(fetcher, store, nil, WithClock(clock.Now))
	records, err := cache.Catalog(context.Background(), 2023)
	if err != nil {
		t.Fatalf("stale fallback must not error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records from stale snapshot, want 1", len(records))
	}
	if fetcher.callCount() != 1 {
		t.Errorf("refresh was not attempted (count=%d)", fetcher.callCount())
	}
}

func TestCatalog_ColdFailureIsSourceUnavailable(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("census api down")}
	cache := NewCatalogCache(fetcher, newMemStore(), nil)

	_, err := cache.Catalog(context.Background(), 2023)
	if err == nil {
		t.Fatal("expected error on cold fetch failure with no snapshot")
	}
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("error %v does not wrap ErrSourceUnavailable", err)
	}
}

func TestCatalog_NilStoreIsMemoryOnly(t *testing.T) {
	fetcher := &fakeFetcher{records: testRecords()}
	cache := NewCatalogCache(fetcher, nil, nil)

	if _, err := cache.Catalog(context.Background(), 2023); err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if _, err := cache.Catalog(context.Background(), 2023); err != nil {
		t.Fatalf("second Catalog: %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("fetch count = %d, want 1", fetcher.callCount())
	}
}

func TestCatalog_VintagesAreIndependent(t *testing.T) {
	fetcher := &fakeFetcher{records: testRecords()}
	cache := NewCatalogCache(fetcher, newMemStore(), nil)

	if _, err := cache.Catalog(context.Background(), 2022); err != nil {
		t.Fatalf("Catalog 2022: %v", err)
	}
	if _, err := cache.Catalog(context.Background(), 2023); err != nil {
		t.Fatalf("Catalog 2023: %v", err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("fetch count = %d, want one per vintage", fetcher.callCount())
	}
}

// =============================================================================
// BadgerSnapshotStore Tests
// =============================================================================

func TestBadgerSnapshotStore_RoundTrip(t *testing.T) {
	opts := dgbadger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := dgbadger.Open(opts)
	require.NoError(t, err)
	defer db.Close()

	store := NewBadgerSnapshotStore(db, nil)
	ctx := context.Background()

	// Miss before save.
	snap, err := store.Load(ctx, 2023)
	require.NoError(t, err)
	require.Nil(t, snap)

	fetched := time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, &CatalogSnapshot{
		Vintage:   2023,
		FetchedAt: fetched,
		Records:   testRecords(),
	}))

	loaded, err := store.Load(ctx, 2023)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, 2023, loaded.Vintage)
	require.True(t, loaded.FetchedAt.Equal(fetched))
	require.Len(t, loaded.Records, 1)
	require.Equal(t, "B01003_001E", loaded.Records[0].VariableID)

	// Other vintages stay misses.
	other, err := store.Load(ctx, 2021)
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestBadgerSnapshotStore_CorruptValue(t *testing.T) {
	opts := dgbadger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := dgbadger.Open(opts)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(catalogKey(2023), []byte("not a gob payload"))
	}))

	store := NewBadgerSnapshotStore(db, nil)
	_, err = store.Load(context.Background(), 2023)
	require.ErrorIs(t, err, ErrSnapshotCorrupt)
}
