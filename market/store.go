/*
store.go - Persistence contract for catalog, ledger and playlists

PURPOSE:
  Defines the interface between the marketplace core and the database.
  The core is written only against these interfaces so a real store and an
  in-memory double are interchangeable.

KEY INTERFACES:
  CatalogStore:  Track rows, lookup by id/artist, listing edits, atomic
                 download increment
  LedgerStore:   Append-only support entries
  PlaylistStore: Owner-scoped playlists
  Store:         All three
  TxStore:       Store + WithTx for atomic multi-write operations

APPEND-ONLY CONTRACT:
  LedgerStore has AppendEntry and reads. There is no update or delete.

NOT FOUND:
  Get* methods return (nil, nil) when the row does not exist. Callers map
  that to ErrUnknownTrack / ErrNotFound as appropriate.

ERRORS:
  Infrastructure failures are wrapped with NewStorageError so that
  errors.Is(err, ErrStorageUnavailable) holds.

IMPLEMENTATIONS:
  - market/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL via gorm
*/
package market

import "context"

// =============================================================================
// CATALOG
// =============================================================================

type CatalogReader interface {
	GetTrack(ctx context.Context, id TrackID) (*Track, error)
	ListTracks(ctx context.Context, filter TrackFilter) ([]Track, error)
}

type CatalogStore interface {
	CatalogReader

	// SaveTrack inserts or replaces a whole track row, download counter
	// included. Use it for new rows only; edits go through UpdateListing.
	SaveTrack(ctx context.Context, track Track) error

	// UpdateListing sets the non-nil fields of upd on an existing row and
	// touches no other column. Returns ErrUnknownTrack if the row is gone.
	UpdateListing(ctx context.Context, id TrackID, upd TrackUpdate) error

	// DeleteTrack removes the track row. Ledger entries are untouched.
	DeleteTrack(ctx context.Context, id TrackID) error

	// IncrementDownloads adds exactly one to the track's download counter
	// and returns the new value. Must not lose concurrent increments.
	IncrementDownloads(ctx context.Context, id TrackID) (int64, error)
}

// =============================================================================
// LEDGER
// =============================================================================

type LedgerStore interface {
	// AppendEntry persists a support entry. This is the ONLY ledger write.
	AppendEntry(ctx context.Context, entry LedgerEntry) error

	EntriesByArtist(ctx context.Context, artistID AccountID) ([]LedgerEntry, error)
	EntriesByFan(ctx context.Context, fanID AccountID) ([]LedgerEntry, error)
	EntriesByTrack(ctx context.Context, trackID TrackID) ([]LedgerEntry, error)

	// HasEntry reports whether any entry exists for the (fan, track) pair.
	HasEntry(ctx context.Context, fanID AccountID, trackID TrackID) (bool, error)
}

// =============================================================================
// PLAYLISTS
// =============================================================================

type PlaylistStore interface {
	// SavePlaylist inserts or replaces a playlist.
	SavePlaylist(ctx context.Context, p Playlist) error
	GetPlaylist(ctx context.Context, id PlaylistID) (*Playlist, error)
	ListPlaylists(ctx context.Context, fanID AccountID) ([]Playlist, error)
	DeletePlaylist(ctx context.Context, id PlaylistID) error
}

// =============================================================================
// AGGREGATE + TRANSACTIONAL STORE
// =============================================================================

type Store interface {
	CatalogStore
	LedgerStore
	PlaylistStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store passed to fn
	// is rolled back. Readers never observe a partially applied fn.
	WithTx(ctx context.Context, fn func(Store) error) error
}
