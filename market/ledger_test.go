package market_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fanfund/market"
)

// =============================================================================
// RECORD SUPPORT
// =============================================================================

func TestLedger_RecordSupport_UnlocksAndCountsDownload(t *testing.T) {
	// GIVEN: A track owned by artist-1 with no downloads
	// WHEN: fan-1 supports it with 50
	// THEN: One entry exists, the pair is unlocked, downloads == 1

	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 0)

	entry, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", 50)
	require.NoError(t, err)
	assert.Equal(t, market.EntryID("entry-001"), entry.ID)
	assert.Equal(t, market.Money(50), entry.Amount)
	assert.Equal(t, market.AccountID("artist-1"), entry.ArtistID)

	ok, err := env.ledger.IsUnlocked(ctx, "fan-1", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), env.downloads(t, "t1"))

	other, err := env.ledger.IsUnlocked(ctx, "fan-2", "t1")
	require.NoError(t, err)
	assert.False(t, other, "unlock is per fan")
}

func TestLedger_RecordSupport_NonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 7)

	for _, amount := range []market.Money{0, -5} {
		_, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", amount)
		assert.ErrorIs(t, err, market.ErrInvalidAmount, "amount %d", amount)
	}

	entries, err := env.ledger.EntriesForFan(ctx, "fan-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int64(7), env.downloads(t, "t1"), "counter untouched")
}

func TestLedger_RecordSupport_SelfSupportForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 0)

	_, err := env.ledger.RecordSupport(ctx, "artist-1", "artist-1", "t1", 50)
	assert.ErrorIs(t, err, market.ErrSelfSupportForbidden)
	assert.Equal(t, "you cannot support your own track", market.UserMessage(err))
	assert.Equal(t, int64(0), env.downloads(t, "t1"))
}

func TestLedger_RecordSupport_OwnerNamedAsOtherArtist(t *testing.T) {
	// GIVEN: artist-1 owns t1
	// WHEN: artist-1 supports t1 while naming a different artist
	// THEN: Still forbidden; the track owner decides

	env := newTestEnv(t)
	env.addTrack(t, "t1", "artist-1", 0)

	_, err := env.ledger.RecordSupport(context.Background(), "artist-1", "artist-2", "t1", 50)
	assert.ErrorIs(t, err, market.ErrSelfSupportForbidden)
}

func TestLedger_RecordSupport_UnknownTrack(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ledger.RecordSupport(context.Background(), "fan-1", "artist-1", "missing", 50)
	assert.ErrorIs(t, err, market.ErrUnknownTrack)
	assert.True(t, market.IsNotFound(err))
}

func TestLedger_RecordSupport_ArtistMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 0)

	_, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-2", "t1", 50)
	assert.ErrorIs(t, err, market.ErrArtistMismatch)

	entries, err := env.ledger.EntriesForArtist(ctx, "artist-2")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_RecordSupport_MissingIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.addTrack(t, "t1", "artist-1", 0)

	_, err := env.ledger.RecordSupport(context.Background(), "  ", "artist-1", "t1", 50)
	assert.ErrorIs(t, err, market.ErrMissingIdentity)
}

func TestLedger_RepeatSupport_CountsEachTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 0)

	for i := 0; i < 3; i++ {
		_, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", 30)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), env.downloads(t, "t1"))

	entries, err := env.ledger.EntriesForFan(ctx, "fan-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestLedger_ConcurrentSupports_NoLostUpdates(t *testing.T) {
	// GIVEN: A track with a baseline of 5 downloads
	// WHEN: 50 fans support it concurrently
	// THEN: downloads == 5 + 50 and there are 50 entries

	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 5)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fan := market.AccountID(fmt.Sprintf("fan-%02d", i))
			_, err := env.ledger.RecordSupport(ctx, fan, "artist-1", "t1", 50)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(5+n), env.downloads(t, "t1"))
	entries, err := env.ledger.EntriesForArtist(ctx, "artist-1")
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestLedger_UnlockIsMonotonic(t *testing.T) {
	// GIVEN: fan-1 unlocked t1
	// WHEN: More activity happens, including failed supports
	// THEN: t1 stays unlocked for fan-1

	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 0)
	env.addTrack(t, "t2", "artist-1", 0)

	_, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", 50)
	require.NoError(t, err)

	_, err = env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", -1)
	require.Error(t, err)
	_, err = env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t2", 100)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := env.ledger.IsUnlocked(ctx, "fan-1", "t1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

// =============================================================================
// CACHE NOTIFICATION
// =============================================================================

type recordingCache struct {
	mu       sync.Mutex
	unlocked map[string]bool
	failRead bool
	failMark bool
}

func newRecordingCache() *recordingCache {
	return &recordingCache{unlocked: make(map[string]bool)}
}

func (c *recordingCache) IsUnlocked(_ context.Context, fan market.AccountID, track market.TrackID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRead {
		return false, errors.New("cache down")
	}
	return c.unlocked[string(fan)+"|"+string(track)], nil
}

func (c *recordingCache) MarkUnlocked(_ context.Context, fan market.AccountID, track market.TrackID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failMark {
		return errors.New("cache down")
	}
	c.unlocked[string(fan)+"|"+string(track)] = true
	return nil
}

func TestLedger_RecordSupport_NotifiesCache(t *testing.T) {
	env := newTestEnv(t)
	cache := newRecordingCache()
	env.ledger.Cache = cache
	env.addTrack(t, "t1", "artist-1", 0)

	_, err := env.ledger.RecordSupport(context.Background(), "fan-1", "artist-1", "t1", 50)
	require.NoError(t, err)
	assert.True(t, cache.unlocked["fan-1|t1"])
}

func TestLedger_RecordSupport_CacheFailureIgnored(t *testing.T) {
	env := newTestEnv(t)
	cache := newRecordingCache()
	cache.failMark = true
	env.ledger.Cache = cache
	env.addTrack(t, "t1", "artist-1", 0)

	_, err := env.ledger.RecordSupport(context.Background(), "fan-1", "artist-1", "t1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.downloads(t, "t1"))
}
