/*
playlist.go - Owner-scoped fan playlists

PURPOSE:
  Fans curate ordered lists of track ids. A playlist references tracks by
  id only; it never copies track metadata.

INVARIANTS:
  1. Name is non-empty after trimming whitespace
  2. Track ids are unique within a playlist
  3. Only the owning fan may mutate a playlist
  4. Every id was in the catalog when it was added

DELETED TRACKS:
  Deleting a track from the catalog leaves its id in stored playlists.
  View drops such ids when rendering.

CONCURRENCY:
  Every mutation is a read-modify-write inside TxStore.WithTx. Stores must
  make that read exclusive for the rest of the transaction: the memory
  store holds its write lock, SQLite has a single connection, and
  PostgreSQL reads the row FOR UPDATE. Two concurrent edits of one
  playlist then serialize instead of overwriting each other.
*/
package market

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Playlists struct {
	Store TxStore
	Log   *zap.Logger
	Now   func() time.Time
	NewID func() string
}

func NewPlaylists(store TxStore, log *zap.Logger) *Playlists {
	if log == nil {
		log = zap.NewNop()
	}
	return &Playlists{
		Store: store,
		Log:   log,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// Create makes a new playlist owned by fanID.
func (p *Playlists) Create(ctx context.Context, fanID AccountID, name string, trackIDs []TrackID) (Playlist, error) {
	if fanID.Blank() {
		return Playlist{}, ErrMissingIdentity
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Playlist{}, invalid("name", ErrEmptyName, "")
	}
	if hasDuplicates(trackIDs) {
		return Playlist{}, invalid("track_ids", ErrDuplicateTrackIDs, "")
	}

	now := p.Now()
	pl := Playlist{
		ID:        PlaylistID(p.NewID()),
		FanID:     fanID,
		Name:      name,
		TrackIDs:  append([]TrackID{}, trackIDs...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := p.Store.WithTx(ctx, func(s Store) error {
		for _, id := range pl.TrackIDs {
			if err := requireTrack(ctx, s, id); err != nil {
				return err
			}
		}
		return s.SavePlaylist(ctx, pl)
	})
	if err != nil {
		return Playlist{}, err
	}
	p.Log.Debug("playlist created",
		zap.String("playlist_id", string(pl.ID)),
		zap.String("fan_id", string(fanID)),
		zap.Int("tracks", len(pl.TrackIDs)),
	)
	return pl, nil
}

// AddTrack appends trackID to the end of the playlist.
func (p *Playlists) AddTrack(ctx context.Context, fanID AccountID, id PlaylistID, trackID TrackID) (Playlist, error) {
	return p.mutate(ctx, fanID, id, func(s Store, pl *Playlist) error {
		if pl.Contains(trackID) {
			return invalid("track_id", ErrDuplicateTrackIDs, "")
		}
		if err := requireTrack(ctx, s, trackID); err != nil {
			return err
		}
		pl.TrackIDs = append(pl.TrackIDs, trackID)
		return nil
	})
}

// RemoveTrack removes trackID, preserving the order of the rest.
func (p *Playlists) RemoveTrack(ctx context.Context, fanID AccountID, id PlaylistID, trackID TrackID) (Playlist, error) {
	return p.mutate(ctx, fanID, id, func(_ Store, pl *Playlist) error {
		idx := -1
		for i, t := range pl.TrackIDs {
			if t == trackID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNotFound
		}
		ids := make([]TrackID, 0, len(pl.TrackIDs)-1)
		ids = append(ids, pl.TrackIDs[:idx]...)
		pl.TrackIDs = append(ids, pl.TrackIDs[idx+1:]...)
		return nil
	})
}

func (p *Playlists) Rename(ctx context.Context, fanID AccountID, id PlaylistID, name string) (Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Playlist{}, invalid("name", ErrEmptyName, "")
	}
	return p.mutate(ctx, fanID, id, func(_ Store, pl *Playlist) error {
		pl.Name = name
		return nil
	})
}

// Reorder replaces the track order. newOrder must be a permutation of the
// playlist's current ids.
func (p *Playlists) Reorder(ctx context.Context, fanID AccountID, id PlaylistID, newOrder []TrackID) (Playlist, error) {
	return p.mutate(ctx, fanID, id, func(_ Store, pl *Playlist) error {
		if !isPermutation(pl.TrackIDs, newOrder) {
			return invalid("track_ids", ErrNotPermutation, "")
		}
		pl.TrackIDs = append([]TrackID{}, newOrder...)
		return nil
	})
}

func (p *Playlists) Delete(ctx context.Context, fanID AccountID, id PlaylistID) error {
	if fanID.Blank() {
		return ErrMissingIdentity
	}
	return p.Store.WithTx(ctx, func(s Store) error {
		if _, err := loadOwned(ctx, s, fanID, id); err != nil {
			return err
		}
		return s.DeletePlaylist(ctx, id)
	})
}

// Get returns the playlist if fanID owns it.
func (p *Playlists) Get(ctx context.Context, fanID AccountID, id PlaylistID) (Playlist, error) {
	if fanID.Blank() {
		return Playlist{}, ErrMissingIdentity
	}
	pl, err := loadOwned(ctx, p.Store, fanID, id)
	if err != nil {
		return Playlist{}, err
	}
	return *pl, nil
}

// List returns the fan's playlists, newest first.
func (p *Playlists) List(ctx context.Context, fanID AccountID) ([]Playlist, error) {
	if fanID.Blank() {
		return nil, ErrMissingIdentity
	}
	lists, err := p.Store.ListPlaylists(ctx, fanID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lists, func(i, j int) bool {
		if !lists[i].CreatedAt.Equal(lists[j].CreatedAt) {
			return lists[i].CreatedAt.After(lists[j].CreatedAt)
		}
		return lists[i].ID < lists[j].ID
	})
	return lists, nil
}

// View returns the playlist with its tracks resolved, skipping ids that are
// no longer in the catalog.
func (p *Playlists) View(ctx context.Context, fanID AccountID, id PlaylistID) (PlaylistView, error) {
	pl, err := p.Get(ctx, fanID, id)
	if err != nil {
		return PlaylistView{}, err
	}
	view := PlaylistView{Playlist: pl, Tracks: make([]Track, 0, len(pl.TrackIDs))}
	for _, tid := range pl.TrackIDs {
		t, err := p.Store.GetTrack(ctx, tid)
		if err != nil {
			return PlaylistView{}, err
		}
		if t != nil {
			view.Tracks = append(view.Tracks, *t)
		}
	}
	return view, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (p *Playlists) mutate(ctx context.Context, fanID AccountID, id PlaylistID, fn func(Store, *Playlist) error) (Playlist, error) {
	if fanID.Blank() {
		return Playlist{}, ErrMissingIdentity
	}
	var out Playlist
	err := p.Store.WithTx(ctx, func(s Store) error {
		pl, err := loadOwned(ctx, s, fanID, id)
		if err != nil {
			return err
		}
		if err := fn(s, pl); err != nil {
			return err
		}
		pl.UpdatedAt = p.Now()
		if err := s.SavePlaylist(ctx, *pl); err != nil {
			return err
		}
		out = *pl
		return nil
	})
	if err != nil {
		return Playlist{}, err
	}
	return out, nil
}

func loadOwned(ctx context.Context, s PlaylistStore, fanID AccountID, id PlaylistID) (*Playlist, error) {
	pl, err := s.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	if pl == nil {
		return nil, ErrNotFound
	}
	if pl.FanID != fanID {
		return nil, ErrNotOwner
	}
	return pl, nil
}

func requireTrack(ctx context.Context, s CatalogReader, id TrackID) error {
	t, err := s.GetTrack(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrUnknownTrack
	}
	return nil
}

func hasDuplicates(ids []TrackID) bool {
	seen := make(map[TrackID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

func isPermutation(current, next []TrackID) bool {
	if len(current) != len(next) || hasDuplicates(next) {
		return false
	}
	want := make(map[TrackID]struct{}, len(current))
	for _, id := range current {
		want[id] = struct{}{}
	}
	for _, id := range next {
		if _, ok := want[id]; !ok {
			return false
		}
	}
	return true
}
