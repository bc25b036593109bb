package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fanfund/market"
	"github.com/warp/fanfund/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTrack(t *testing.T, s *sqlite.Store, id market.TrackID, artist market.AccountID, downloads int64) {
	t.Helper()
	require.NoError(t, s.SaveTrack(context.Background(), market.Track{
		ID:         id,
		Title:      "Title " + string(id),
		ArtistID:   artist,
		ArtistName: "Artist",
		Price:      50,
		Duration:   200,
		Genre:      "Afropop",
		ReleasedAt: time.Date(2025, time.January, 2, 3, 4, 5, 6, time.UTC),
		Downloads:  downloads,
	}))
}

// =============================================================================
// CATALOG
// =============================================================================

func TestSQLite_TrackRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 4)

	got, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, market.Money(50), got.Price)
	assert.Equal(t, int64(4), got.Downloads)
	assert.True(t, got.ReleasedAt.Equal(time.Date(2025, time.January, 2, 3, 4, 5, 6, time.UTC)))

	missing, err := s.GetTrack(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.DeleteTrack(ctx, "t1"))
	gone, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSQLite_ListTracksFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 0)
	seedTrack(t, s, "t2", "a1", 0)
	seedTrack(t, s, "t3", "a2", 0)

	byArtist, err := s.ListTracks(ctx, market.TrackFilter{ArtistID: "a1"})
	require.NoError(t, err)
	assert.Len(t, byArtist, 2)

	byQuery, err := s.ListTracks(ctx, market.TrackFilter{Query: "title t3"})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)
	assert.Equal(t, market.TrackID("t3"), byQuery[0].ID)
}

func TestSQLite_IncrementUnknownTrack(t *testing.T) {
	s := newTestStore(t)
	_, err := s.IncrementDownloads(context.Background(), "nope")
	assert.ErrorIs(t, err, market.ErrUnknownTrack)
}

func TestSQLite_UpdateListingLeavesDownloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 9)

	genre := "Jazz"
	require.NoError(t, s.UpdateListing(ctx, "t1", market.TrackUpdate{Genre: &genre}))

	got, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Jazz", got.Genre)
	assert.Equal(t, market.Money(50), got.Price)
	assert.Equal(t, int64(9), got.Downloads)

	assert.ErrorIs(t, s.UpdateListing(ctx, "nope", market.TrackUpdate{Genre: &genre}), market.ErrUnknownTrack)
	assert.ErrorIs(t, s.UpdateListing(ctx, "nope", market.TrackUpdate{}), market.ErrUnknownTrack)
}

func TestSQLite_EditsDuringSupports(t *testing.T) {
	// GIVEN: A track with no downloads
	// WHEN: Supports and price edits run concurrently
	// THEN: Every support is counted

	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 0)
	ledger := market.NewLedger(s, nil)
	catalog := market.NewCatalog(s, nil)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.RecordSupport(ctx, market.AccountID(fmt.Sprintf("fan-%02d", i)), "a1", "t1", 50)
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			price := market.Money(50 + i)
			_, err := catalog.Update(ctx, "a1", "t1", market.TrackUpdate{Price: &price})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tr, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), tr.Downloads)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestSQLite_RecordSupport_Concurrent(t *testing.T) {
	// GIVEN: A track with 2 baseline downloads
	// WHEN: 20 fans support it concurrently through the Ledger
	// THEN: downloads == 22 and all entries are stored

	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 2)
	ledger := market.NewLedger(s, nil)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.RecordSupport(ctx, market.AccountID(fmt.Sprintf("fan-%02d", i)), "a1", "t1", 50)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tr, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2+n), tr.Downloads)

	entries, err := s.EntriesByTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, entries, n)

	ok, err := s.HasEntry(ctx, "fan-07", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_WithTx_Rollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 0)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx market.Store) error {
		require.NoError(t, tx.AppendEntry(ctx, market.LedgerEntry{
			ID: "e1", FanID: "f1", ArtistID: "a1", TrackID: "t1", Amount: 50, CreatedAt: time.Now(),
		}))
		n, err := tx.IncrementDownloads(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	has, err := s.HasEntry(ctx, "f1", "t1")
	require.NoError(t, err)
	assert.False(t, has)
	tr, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), tr.Downloads)
}

func TestSQLite_ResetInsideTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 0)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx market.Store) error {
		r, ok := tx.(interface{ Reset(context.Context) error })
		require.True(t, ok)
		require.NoError(t, r.Reset(ctx))
		return boom
	})
	require.ErrorIs(t, err, boom)

	tr, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, tr)

	require.NoError(t, s.Reset(ctx))
	tr, err = s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestSQLite_EntriesChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of order; sub-second precision must survive.
	for i, offset := range []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond} {
		require.NoError(t, s.AppendEntry(ctx, market.LedgerEntry{
			ID:        market.EntryID(fmt.Sprintf("e%d", i)),
			FanID:     "f1",
			ArtistID:  "a1",
			TrackID:   "t1",
			Amount:    market.Money(10 * (i + 1)),
			CreatedAt: base.Add(offset),
		}))
	}

	entries, err := s.EntriesByArtist(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, market.EntryID("e1"), entries[0].ID)
	assert.Equal(t, market.EntryID("e2"), entries[1].ID)
	assert.Equal(t, market.EntryID("e0"), entries[2].ID)

	byFan, err := s.EntriesByFan(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, byFan, 3)
}

func TestSQLite_StatsEndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 0)
	ledger := market.NewLedger(s, nil)

	_, err := ledger.RecordSupport(ctx, "f1", "a1", "t1", 50)
	require.NoError(t, err)

	snap, err := market.NewAggregator(s, ledger).ComputeStats(ctx, "a1", time.Now().Add(time.Minute), 5, 5)
	require.NoError(t, err)
	assert.Equal(t, market.Money(50), snap.TotalRevenue)
	assert.Equal(t, int64(1), snap.TotalDownloads)
	require.Len(t, snap.TopTracks, 1)
	assert.Equal(t, market.Money(50), snap.TopTracks[0].Revenue)
}

// =============================================================================
// PLAYLISTS
// =============================================================================

func TestSQLite_PlaylistRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTrack(t, s, "t1", "a1", 0)
	seedTrack(t, s, "t2", "a1", 0)

	svc := market.NewPlaylists(s, nil)
	pl, err := svc.Create(ctx, "f1", "Mix", []market.TrackID{"t1", "t2"})
	require.NoError(t, err)

	pl, err = svc.Reorder(ctx, "f1", pl.ID, []market.TrackID{"t2", "t1"})
	require.NoError(t, err)

	got, err := s.GetPlaylist(ctx, pl.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []market.TrackID{"t2", "t1"}, got.TrackIDs)
	assert.Equal(t, "Mix", got.Name)

	empty, err := svc.Create(ctx, "f1", "Empty", nil)
	require.NoError(t, err)
	gotEmpty, err := s.GetPlaylist(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, gotEmpty.TrackIDs)

	lists, err := s.ListPlaylists(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, lists, 2)

	require.NoError(t, s.DeletePlaylist(ctx, pl.ID))
	gone, err := s.GetPlaylist(ctx, pl.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSQLite_ClosedStoreIsStorageError(t *testing.T) {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetTrack(context.Background(), "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrStorageUnavailable)
	assert.Equal(t, "service temporarily unavailable, please try again", market.UserMessage(err))
}
