package market_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/fanfund/market"
	"github.com/warp/fanfund/market/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// testClock hands out strictly increasing timestamps, one second apart.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock { return &testClock{now: start} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func seqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

type testEnv struct {
	store     *store.TxMemory
	clock     *testClock
	ledger    *market.Ledger
	catalog   *market.Catalog
	resolver  *market.Resolver
	stats     *market.Aggregator
	playlists *market.Playlists
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := store.NewTxMemory()
	clock := newTestClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))

	ledger := market.NewLedger(s, nil)
	ledger.Now = clock.Now
	ledger.NewID = seqIDs("entry")

	catalog := market.NewCatalog(s, nil)
	catalog.Now = clock.Now
	catalog.NewID = seqIDs("track")

	playlists := market.NewPlaylists(s, nil)
	playlists.Now = clock.Now
	playlists.NewID = seqIDs("pl")

	return &testEnv{
		store:     s,
		clock:     clock,
		ledger:    ledger,
		catalog:   catalog,
		resolver:  market.NewResolver(ledger, s, nil, nil),
		stats:     market.NewAggregator(s, ledger),
		playlists: playlists,
	}
}

// addTrack stores a track directly, with an explicit baseline download count.
func (e *testEnv) addTrack(t *testing.T, id market.TrackID, artist market.AccountID, downloads int64) market.Track {
	t.Helper()
	tr := market.Track{
		ID:         id,
		Title:      "Title " + string(id),
		ArtistID:   artist,
		ArtistName: "Artist " + string(artist),
		Price:      50,
		Duration:   180,
		Genre:      "Afrobeat",
		ReleasedAt: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Downloads:  downloads,
	}
	require.NoError(t, e.store.SaveTrack(context.Background(), tr))
	return tr
}

func (e *testEnv) downloads(t *testing.T, id market.TrackID) int64 {
	t.Helper()
	tr, err := e.store.GetTrack(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tr)
	return tr.Downloads
}
