package market

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrackInput is the metadata an artist supplies on upload.
type TrackInput struct {
	Title      string
	Price      Money
	Duration   int
	Genre      string
	AudioRef   string
	CoverRef   string
	ReleasedAt time.Time // zero means now
}

// TrackUpdate holds the editable fields. Nil fields are left unchanged.
type TrackUpdate struct {
	Price *Money
	Genre *string
}

// Catalog manages artist-owned track metadata.
type Catalog struct {
	Store TxStore
	Log   *zap.Logger
	Now   func() time.Time
	NewID func() string
}

func NewCatalog(store TxStore, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{
		Store: store,
		Log:   log,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// Upload adds a track owned by artistID. Download count starts at zero.
func (c *Catalog) Upload(ctx context.Context, artistID AccountID, artistName string, in TrackInput) (Track, error) {
	if artistID.Blank() {
		return Track{}, ErrMissingIdentity
	}
	if isBlank(in.Title) {
		return Track{}, invalid("title", ErrInvalidTrack, "title is required")
	}
	if !in.Price.IsPositive() {
		return Track{}, invalid("price", ErrInvalidAmount, "price must be positive")
	}
	if in.Duration <= 0 {
		return Track{}, invalid("duration", ErrInvalidTrack, "duration must be positive")
	}

	released := in.ReleasedAt
	if released.IsZero() {
		released = c.Now()
	}
	t := Track{
		ID:         TrackID(c.NewID()),
		Title:      strings.TrimSpace(in.Title),
		ArtistID:   artistID,
		ArtistName: strings.TrimSpace(artistName),
		Price:      in.Price,
		Duration:   in.Duration,
		Genre:      strings.TrimSpace(in.Genre),
		AudioRef:   in.AudioRef,
		CoverRef:   in.CoverRef,
		ReleasedAt: released.UTC(),
	}
	if err := c.Store.SaveTrack(ctx, t); err != nil {
		return Track{}, err
	}
	c.Log.Info("track uploaded",
		zap.String("track_id", string(t.ID)),
		zap.String("artist_id", string(artistID)),
		zap.String("title", t.Title),
	)
	return t, nil
}

// Update edits price and/or genre. Only the owning artist may update.
// The write touches the listing columns only, so a support committed
// concurrently keeps its download.
func (c *Catalog) Update(ctx context.Context, artistID AccountID, id TrackID, upd TrackUpdate) (Track, error) {
	if upd.Genre != nil {
		g := strings.TrimSpace(*upd.Genre)
		upd.Genre = &g
	}
	var out Track
	err := c.Store.WithTx(ctx, func(s Store) error {
		if _, err := owned(ctx, s, artistID, id); err != nil {
			return err
		}
		if upd.Price != nil && !upd.Price.IsPositive() {
			return invalid("price", ErrInvalidAmount, "price must be positive")
		}
		if err := s.UpdateListing(ctx, id, upd); err != nil {
			return err
		}
		t, err := s.GetTrack(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrUnknownTrack
		}
		out = *t
		return nil
	})
	if err != nil {
		return Track{}, err
	}
	return out, nil
}

// Delete removes the track from the catalog. Its ledger entries remain.
func (c *Catalog) Delete(ctx context.Context, artistID AccountID, id TrackID) error {
	err := c.Store.WithTx(ctx, func(s Store) error {
		if _, err := owned(ctx, s, artistID, id); err != nil {
			return err
		}
		return s.DeleteTrack(ctx, id)
	})
	if err != nil {
		return err
	}
	c.Log.Info("track deleted",
		zap.String("track_id", string(id)),
		zap.String("artist_id", string(artistID)),
	)
	return nil
}

func (c *Catalog) Get(ctx context.Context, id TrackID) (Track, error) {
	t, err := c.Store.GetTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}
	if t == nil {
		return Track{}, ErrUnknownTrack
	}
	return *t, nil
}

// List returns tracks matching filter, newest release first.
func (c *Catalog) List(ctx context.Context, filter TrackFilter) ([]Track, error) {
	tracks, err := c.Store.ListTracks(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(tracks)
	return tracks, nil
}

func owned(ctx context.Context, s CatalogReader, artistID AccountID, id TrackID) (*Track, error) {
	if artistID.Blank() {
		return nil, ErrMissingIdentity
	}
	t, err := s.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrUnknownTrack
	}
	if t.ArtistID != artistID {
		return nil, ErrNotOwner
	}
	return t, nil
}

// MatchTrack reports whether t satisfies filter. Stores use it so that all
// realizations agree on search semantics.
func MatchTrack(t Track, f TrackFilter) bool {
	if f.ArtistID != "" && t.ArtistID != f.ArtistID {
		return false
	}
	if f.Genre != "" && !strings.EqualFold(t.Genre, f.Genre) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.ArtistName), q) ||
		strings.Contains(strings.ToLower(t.Genre), q)
}

// SortNewestFirst orders tracks by release date desc, id asc on ties.
func SortNewestFirst(tracks []Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		if !tracks[i].ReleasedAt.Equal(tracks[j].ReleasedAt) {
			return tracks[i].ReleasedAt.After(tracks[j].ReleasedAt)
		}
		return tracks[i].ID < tracks[j].ID
	})
}
