package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fanfund/market"
	"github.com/warp/fanfund/market/store"
)

func TestSeeder_LoadsDemoCatalog(t *testing.T) {
	// GIVEN: A store holding unrelated data
	ctx := context.Background()
	mem := store.NewTxMemory()
	require.NoError(t, mem.SaveTrack(ctx, market.Track{ID: "stale", ArtistID: "someone", Price: 1, Duration: 1}))

	seeder := NewSeeder(mem, nil)
	seeder.Now = func() time.Time { return testNow }

	// WHEN: Seeding
	res, err := seeder.Seed(ctx)

	// THEN: The store holds exactly the demo data
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Tracks: 20, Entries: 3}, res)

	stale, err := mem.GetTrack(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, stale, "reset clears old data")

	all, err := mem.ListTracks(ctx, market.TrackFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 20)

	wanjiru, err := mem.ListTracks(ctx, market.TrackFilter{ArtistID: "artist1"})
	require.NoError(t, err)
	assert.Len(t, wanjiru, 2)
}

func TestSeeder_DemoStats(t *testing.T) {
	// GIVEN: The seeded demo marketplace
	mem := seededStore(t)
	ledger := market.NewLedger(mem, nil)
	agg := market.NewAggregator(mem, ledger)

	// WHEN: Computing artist1's dashboard
	snap, err := agg.ComputeStats(context.Background(), "artist1", testNow, 5, 10)

	// THEN: Revenue comes from tx1..tx3 and downloads from the demo counters
	require.NoError(t, err)
	assert.Equal(t, market.Money(250), snap.TotalRevenue)
	assert.Equal(t, int64(1240+720), snap.TotalDownloads)
	require.Len(t, snap.TopTracks, 2)
	assert.Equal(t, market.TrackID("track4"), snap.TopTracks[0].TrackID, "150 beats 2x50")
	assert.Equal(t, market.TrackID("track1"), snap.TopTracks[1].TrackID)
	require.Len(t, snap.RecentTransactions, 3)
	assert.Equal(t, market.EntryID("tx1"), snap.RecentTransactions[0].ID)
}

func TestSeeder_IsRepeatable(t *testing.T) {
	mem := seededStore(t)
	seeder := NewSeeder(mem, nil)

	_, err := seeder.Seed(context.Background())
	require.NoError(t, err)

	entries, err := mem.EntriesByArtist(context.Background(), "artist1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestSeeder_FailureKeepsPreviousData(t *testing.T) {
	// GIVEN: A store with one track, whose ledger rejects appends
	ctx := context.Background()
	mem := store.NewTxMemory()
	require.NoError(t, mem.SaveTrack(ctx, market.Track{ID: "stale", ArtistID: "someone", Price: 1, Duration: 1}))
	seeder := NewSeeder(rejectingAppends{TxMemory: mem}, nil)

	// WHEN: Seeding fails halfway
	_, err := seeder.Seed(ctx)

	// THEN: The reset is rolled back with everything else
	require.ErrorIs(t, err, market.ErrStorageUnavailable)

	stale, err := mem.GetTrack(ctx, "stale")
	require.NoError(t, err)
	assert.NotNil(t, stale)

	demo, err := mem.GetTrack(ctx, "track1")
	require.NoError(t, err)
	assert.Nil(t, demo)
}

// rejectingAppends fails every AppendEntry made inside a transaction.
type rejectingAppends struct {
	*store.TxMemory
}

func (r rejectingAppends) WithTx(ctx context.Context, fn func(market.Store) error) error {
	return r.TxMemory.WithTx(ctx, func(tx market.Store) error {
		return fn(rejectingTx{Store: tx, Resetter: tx.(Resetter)})
	})
}

type rejectingTx struct {
	market.Store
	Resetter
}

func (rejectingTx) AppendEntry(context.Context, market.LedgerEntry) error {
	return market.NewStorageError("append entry", errors.New("disk full"))
}
