package market_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fanfund/market"
)

func TestResolver_CanPlayFull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 0)

	ok, err := env.resolver.CanPlayFull(ctx, "fan-1", "t1")
	require.NoError(t, err)
	assert.False(t, ok, "locked before support")

	_, err = env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", 50)
	require.NoError(t, err)

	ok, err = env.resolver.CanPlayFull(ctx, "fan-1", "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.resolver.CanPlayFull(ctx, "", "t1")
	require.NoError(t, err)
	assert.False(t, ok, "unresolved identity")

	ok, err = env.resolver.CanPlayFull(ctx, "fan-1", "missing")
	require.NoError(t, err)
	assert.False(t, ok, "unknown track")
}

func TestResolver_DeletedTrackFailsClosed(t *testing.T) {
	// GIVEN: fan-1 unlocked t1, then the artist deleted t1
	// WHEN: Checking full playback
	// THEN: false, though the ledger still records the unlock

	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 0)
	_, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", 50)
	require.NoError(t, err)
	require.NoError(t, env.catalog.Delete(ctx, "artist-1", "t1"))

	ok, err := env.resolver.CanPlayFull(ctx, "fan-1", "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	unlocked, err := env.ledger.IsUnlocked(ctx, "fan-1", "t1")
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestResolver_CacheWarmedOnLedgerHit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cache := newRecordingCache()
	env.resolver.Cache = cache
	env.addTrack(t, "t1", "artist-1", 0)

	_, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", 50)
	require.NoError(t, err)
	assert.False(t, cache.unlocked["fan-1|t1"], "ledger has no cache here")

	ok, err := env.resolver.CanPlayFull(ctx, "fan-1", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, cache.unlocked["fan-1|t1"])
}

func TestResolver_CacheFailureFallsBackToLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cache := newRecordingCache()
	cache.failRead = true
	cache.failMark = true
	env.resolver.Cache = cache
	env.addTrack(t, "t1", "artist-1", 0)

	_, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-1", "t1", 50)
	require.NoError(t, err)

	ok, err := env.resolver.CanPlayFull(ctx, "fan-1", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_Library(t *testing.T) {
	// GIVEN: fan-1 supports t1, t2, then t1 again; t3 is never supported
	// WHEN: Listing the library
	// THEN: [t1, t2] (t1 most recent), no duplicates, no t3

	env := newTestEnv(t)
	ctx := context.Background()
	env.addTrack(t, "t1", "artist-1", 0)
	env.addTrack(t, "t2", "artist-1", 0)
	env.addTrack(t, "t3", "artist-2", 0)

	for _, id := range []market.TrackID{"t1", "t2", "t1"} {
		_, err := env.ledger.RecordSupport(ctx, "fan-1", "artist-1", id, 30)
		require.NoError(t, err)
	}

	lib, err := env.resolver.Library(ctx, "fan-1")
	require.NoError(t, err)
	require.Len(t, lib, 2)
	assert.Equal(t, market.TrackID("t1"), lib[0].ID)
	assert.Equal(t, market.TrackID("t2"), lib[1].ID)

	require.NoError(t, env.catalog.Delete(ctx, "artist-1", "t2"))
	lib, err = env.resolver.Library(ctx, "fan-1")
	require.NoError(t, err)
	require.Len(t, lib, 1)

	_, err = env.resolver.Library(ctx, "")
	assert.ErrorIs(t, err, market.ErrMissingIdentity)
}
