package market

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// UnlockCache remembers (fan, track) pairs known to be unlocked.
// Only positive answers are cached: unlock state never reverts, so a cached
// true can never go stale, while a cached false could.
type UnlockCache interface {
	IsUnlocked(ctx context.Context, fanID AccountID, trackID TrackID) (bool, error)
	MarkUnlocked(ctx context.Context, fanID AccountID, trackID TrackID) error
}

// Resolver gates full playback and downloads.
//
// States per (fan, track): Locked -> Unlocked. The transition fires on the
// first successful RecordSupport and is never reversed.
type Resolver struct {
	Ledger  *Ledger
	Catalog CatalogReader
	Cache   UnlockCache // optional
	Log     *zap.Logger
}

func NewResolver(ledger *Ledger, catalog CatalogReader, cache UnlockCache, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{Ledger: ledger, Catalog: catalog, Cache: cache, Log: log}
}

// CanPlayFull answers whether fanID may play or download trackID in full.
// Unresolved identities and tracks no longer in the catalog fail closed.
// Preview playback is a caller concern.
func (r *Resolver) CanPlayFull(ctx context.Context, fanID AccountID, trackID TrackID) (bool, error) {
	if fanID.Blank() {
		return false, nil
	}
	track, err := r.Catalog.GetTrack(ctx, trackID)
	if err != nil {
		return false, err
	}
	if track == nil {
		return false, nil
	}

	if r.Cache != nil {
		hit, err := r.Cache.IsUnlocked(ctx, fanID, trackID)
		if err != nil {
			r.Log.Warn("unlock cache read failed, using ledger",
				zap.String("fan_id", string(fanID)),
				zap.String("track_id", string(trackID)),
				zap.Error(err),
			)
		} else if hit {
			return true, nil
		}
	}

	ok, err := r.Ledger.IsUnlocked(ctx, fanID, trackID)
	if err != nil {
		return false, err
	}
	if ok && r.Cache != nil {
		if err := r.Cache.MarkUnlocked(ctx, fanID, trackID); err != nil {
			r.Log.Warn("unlock cache write failed", zap.Error(err))
		}
	}
	return ok, nil
}

// Library returns the distinct tracks the fan has unlocked and that still
// exist, most recently supported first.
func (r *Resolver) Library(ctx context.Context, fanID AccountID) ([]Track, error) {
	if fanID.Blank() {
		return nil, ErrMissingIdentity
	}
	entries, err := r.Ledger.EntriesForFan(ctx, fanID)
	if err != nil {
		return nil, err
	}

	latest := make(map[TrackID]LedgerEntry)
	for _, e := range entries {
		if cur, ok := latest[e.TrackID]; !ok || e.CreatedAt.After(cur.CreatedAt) {
			latest[e.TrackID] = e
		}
	}
	ordered := make([]LedgerEntry, 0, len(latest))
	for _, e := range latest {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].TrackID < ordered[j].TrackID
	})

	tracks := make([]Track, 0, len(ordered))
	for _, e := range ordered {
		t, err := r.Catalog.GetTrack(ctx, e.TrackID)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tracks = append(tracks, *t)
		}
	}
	return tracks, nil
}
