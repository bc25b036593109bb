/*
ledger.go - Append-only support ledger

PURPOSE:
  The Ledger is the immutable source of truth for who supported which
  track and for how much. Unlock state and every revenue figure are
  derived from it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted
  2. ONE ENTRY, ONE DOWNLOAD: each successful RecordSupport appends exactly
     one entry and increments the track's download counter by exactly one,
     in the same storage transaction
  3. NO LOST UPDATES: concurrent supports for the same track each count
  4. NO PARTIAL STATE: a failed support leaves neither entry nor increment

REPEAT SUPPORT:
  A fan may support the same track again. Every successful call counts as
  one more download, regardless of prior unlock state.

EXAMPLE:
  ledger := market.NewLedger(store.NewMemory(), nil)
  entry, err := ledger.RecordSupport(ctx, "fan-1", "artist-1", "track-1", 50)
  if errors.Is(err, market.ErrSelfSupportForbidden) {
      // artist tried to fund their own track
  }

SEE ALSO:
  - store.go: TxStore.WithTx provides the atomicity
  - unlock.go: Resolver built on IsUnlocked
*/
package market

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store TxStore

	// Cache, when set, is told about every new unlock. Failures are logged.
	Cache UnlockCache

	Log   *zap.Logger
	Now   func() time.Time
	NewID func() string
}

func NewLedger(store TxStore, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		Store: store,
		Log:   log,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// RecordSupport records that fanID paid amount to artistID for trackID.
// On success the (fan, track) pair is unlocked and the track's download
// counter is one higher.
func (l *Ledger) RecordSupport(ctx context.Context, fanID, artistID AccountID, trackID TrackID, amount Money) (LedgerEntry, error) {
	if !amount.IsPositive() {
		return LedgerEntry{}, invalid("amount", ErrInvalidAmount, "amount must be positive")
	}
	if fanID.Blank() {
		return LedgerEntry{}, ErrMissingIdentity
	}
	if fanID == artistID {
		return LedgerEntry{}, ErrSelfSupportForbidden
	}

	var entry LedgerEntry
	err := l.Store.WithTx(ctx, func(s Store) error {
		track, err := s.GetTrack(ctx, trackID)
		if err != nil {
			return err
		}
		if track == nil {
			return ErrUnknownTrack
		}
		if track.ArtistID == fanID {
			return ErrSelfSupportForbidden
		}
		if track.ArtistID != artistID {
			return ErrArtistMismatch
		}

		entry = LedgerEntry{
			ID:        EntryID(l.NewID()),
			FanID:     fanID,
			ArtistID:  artistID,
			TrackID:   trackID,
			Amount:    amount,
			CreatedAt: l.Now(),
		}
		if err := s.AppendEntry(ctx, entry); err != nil {
			return err
		}
		_, err = s.IncrementDownloads(ctx, trackID)
		return err
	})
	if err != nil {
		return LedgerEntry{}, err
	}

	l.Log.Info("support recorded",
		zap.String("entry_id", string(entry.ID)),
		zap.String("fan_id", string(fanID)),
		zap.String("artist_id", string(artistID)),
		zap.String("track_id", string(trackID)),
		zap.Int64("amount", int64(amount)),
	)

	if l.Cache != nil {
		if err := l.Cache.MarkUnlocked(ctx, fanID, trackID); err != nil {
			l.Log.Warn("unlock cache write failed",
				zap.String("fan_id", string(fanID)),
				zap.String("track_id", string(trackID)),
				zap.Error(err),
			)
		}
	}
	return entry, nil
}

// IsUnlocked reports whether at least one entry exists for (fanID, trackID).
func (l *Ledger) IsUnlocked(ctx context.Context, fanID AccountID, trackID TrackID) (bool, error) {
	if fanID.Blank() {
		return false, nil
	}
	return l.Store.HasEntry(ctx, fanID, trackID)
}

// EntriesForArtist returns all entries crediting the artist, in no
// particular order.
func (l *Ledger) EntriesForArtist(ctx context.Context, artistID AccountID) ([]LedgerEntry, error) {
	return l.Store.EntriesByArtist(ctx, artistID)
}

// EntriesForFan returns all entries made by the fan, in no particular order.
func (l *Ledger) EntriesForFan(ctx context.Context, fanID AccountID) ([]LedgerEntry, error) {
	return l.Store.EntriesByFan(ctx, fanID)
}
