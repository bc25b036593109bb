/*
Package sqlite provides a SQLite-backed implementation of market.TxStore.

PURPOSE:
  Persists the catalog, the support ledger and playlists in a single SQLite
  file. The same schema maps one-to-one onto PostgreSQL (see store/postgres).

KEY TABLES:
  tracks:         Catalog rows with the download counter
  ledger_entries: Immutable support events
  playlists:      Fan playlists, ordered ids as a JSON array

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries outside Reset, which only
    the demo seeder calls
  - No foreign key from ledger_entries to tracks: deleting a track keeps
    its revenue history

CONCURRENCY:
  The pool is capped at one connection. SQLite allows a single writer, and
  ":memory:" databases are per-connection, so one connection gives both a
  shared in-memory database and serialized read-modify-write transactions.
  Reads inside WithTx go through the *sql.Tx, never through the pool.

TIMESTAMPS:
  Stored as fixed-width UTC text (timeLayout) so lexical order is
  chronological order.

USAGE:
  store, err := sqlite.New("./data/fanfund.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := market.NewLedger(store, logger)

SEE ALSO:
  - market/store.go: Interface definitions
  - market/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/fanfund/market"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements market.TxStore using SQLite.
type Store struct {
	db *sql.DB
	conn
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn holds every query. Store uses it over the pool, WithTx over a tx.
type conn struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, conn: conn{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection. Used by startup retries and health checks.
func (s *Store) Ping(ctx context.Context) error {
	return market.NewStorageError("ping", s.db.PingContext(ctx))
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist_id TEXT NOT NULL,
		artist_name TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL,
		duration INTEGER NOT NULL,
		genre TEXT NOT NULL DEFAULT '',
		audio_ref TEXT NOT NULL DEFAULT '',
		cover_ref TEXT NOT NULL DEFAULT '',
		released_at TEXT NOT NULL,
		downloads INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_artist
		ON tracks(artist_id);

	-- Support ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		fan_id TEXT NOT NULL,
		artist_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_artist_created
		ON ledger_entries(artist_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_ledger_fan_track
		ON ledger_entries(fan_id, track_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_track
		ON ledger_entries(track_id);

	CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		fan_id TEXT NOT NULL,
		name TEXT NOT NULL,
		track_ids_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_playlists_fan
		ON playlists(fan_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside a SQLite transaction. Any error rolls back every
// write made through the Store passed to fn.
func (s *Store) WithTx(ctx context.Context, fn func(market.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return market.NewStorageError("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}
	return market.NewStorageError("commit", sqlTx.Commit())
}

// Reset clears all data. Used by the demo seeder, which calls it inside
// WithTx so a failed seed rolls the wipe back too.
func (c *conn) Reset(ctx context.Context) error {
	for _, table := range []string{"ledger_entries", "playlists", "tracks"} {
		if _, err := c.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return market.NewStorageError("reset "+table, err)
		}
	}
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

const trackColumns = `id, title, artist_id, artist_name, price, duration, genre,
	audio_ref, cover_ref, released_at, downloads`

func (c *conn) SaveTrack(ctx context.Context, t market.Track) error {
	query := `
		INSERT INTO tracks (` + trackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist_id = excluded.artist_id,
			artist_name = excluded.artist_name,
			price = excluded.price,
			duration = excluded.duration,
			genre = excluded.genre,
			audio_ref = excluded.audio_ref,
			cover_ref = excluded.cover_ref,
			released_at = excluded.released_at,
			downloads = excluded.downloads
	`
	_, err := c.q.ExecContext(ctx, query,
		t.ID, t.Title, t.ArtistID, t.ArtistName, int64(t.Price), t.Duration, t.Genre,
		t.AudioRef, t.CoverRef, formatTime(t.ReleasedAt), t.Downloads,
	)
	return market.NewStorageError("save track", err)
}

// UpdateListing writes only the listing columns, so it never races with
// IncrementDownloads over the counter.
func (c *conn) UpdateListing(ctx context.Context, id market.TrackID, upd market.TrackUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, int64(*upd.Price))
	}
	if upd.Genre != nil {
		sets = append(sets, "genre = ?")
		args = append(args, *upd.Genre)
	}
	if len(sets) == 0 {
		t, err := c.GetTrack(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return market.ErrUnknownTrack
		}
		return nil
	}

	args = append(args, id)
	res, err := c.q.ExecContext(ctx, "UPDATE tracks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return market.NewStorageError("update listing", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.ErrUnknownTrack
	}
	return nil
}

func (c *conn) GetTrack(ctx context.Context, id market.TrackID) (*market.Track, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+trackColumns+" FROM tracks WHERE id = ?", id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, market.NewStorageError("get track", err)
	}
	return &t, nil
}

// ListTracks narrows by artist in SQL and applies the text filter in Go so
// that matching is identical across stores.
func (c *conn) ListTracks(ctx context.Context, filter market.TrackFilter) ([]market.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks"
	var args []any
	if filter.ArtistID != "" {
		query += " WHERE artist_id = ?"
		args = append(args, filter.ArtistID)
	}
	query += " ORDER BY id"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, market.NewStorageError("list tracks", err)
	}
	defer rows.Close()

	out := make([]market.Track, 0)
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, market.NewStorageError("scan track", err)
		}
		if market.MatchTrack(t, filter) {
			out = append(out, t)
		}
	}
	return out, market.NewStorageError("list tracks", rows.Err())
}

func (c *conn) DeleteTrack(ctx context.Context, id market.TrackID) error {
	_, err := c.q.ExecContext(ctx, "DELETE FROM tracks WHERE id = ?", id)
	return market.NewStorageError("delete track", err)
}

// IncrementDownloads is a single UPDATE, so concurrent calls never lose a count.
func (c *conn) IncrementDownloads(ctx context.Context, id market.TrackID) (int64, error) {
	res, err := c.q.ExecContext(ctx, "UPDATE tracks SET downloads = downloads + 1 WHERE id = ?", id)
	if err != nil {
		return 0, market.NewStorageError("increment downloads", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, market.ErrUnknownTrack
	}
	var downloads int64
	err = c.q.QueryRowContext(ctx, "SELECT downloads FROM tracks WHERE id = ?", id).Scan(&downloads)
	return downloads, market.NewStorageError("read downloads", err)
}

// =============================================================================
// LEDGER
// =============================================================================

const entryColumns = "id, fan_id, artist_id, track_id, amount, created_at"

// AppendEntry inserts a support entry. This is the ONLY ledger write.
func (c *conn) AppendEntry(ctx context.Context, e market.LedgerEntry) error {
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO ledger_entries ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.FanID, e.ArtistID, e.TrackID, int64(e.Amount), formatTime(e.CreatedAt),
	)
	return market.NewStorageError("append entry", err)
}

func (c *conn) EntriesByArtist(ctx context.Context, artistID market.AccountID) ([]market.LedgerEntry, error) {
	return c.queryEntries(ctx, "WHERE artist_id = ?", artistID)
}

func (c *conn) EntriesByFan(ctx context.Context, fanID market.AccountID) ([]market.LedgerEntry, error) {
	return c.queryEntries(ctx, "WHERE fan_id = ?", fanID)
}

func (c *conn) EntriesByTrack(ctx context.Context, trackID market.TrackID) ([]market.LedgerEntry, error) {
	return c.queryEntries(ctx, "WHERE track_id = ?", trackID)
}

func (c *conn) HasEntry(ctx context.Context, fanID market.AccountID, trackID market.TrackID) (bool, error) {
	var one int
	err := c.q.QueryRowContext(ctx,
		"SELECT 1 FROM ledger_entries WHERE fan_id = ? AND track_id = ? LIMIT 1",
		fanID, trackID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, market.NewStorageError("has entry", err)
	}
	return true, nil
}

func (c *conn) queryEntries(ctx context.Context, where string, args ...any) ([]market.LedgerEntry, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, market.NewStorageError("query entries", err)
	}
	defer rows.Close()

	out := make([]market.LedgerEntry, 0)
	for rows.Next() {
		var (
			e       market.LedgerEntry
			amount  int64
			created string
		)
		if err := rows.Scan(&e.ID, &e.FanID, &e.ArtistID, &e.TrackID, &amount, &created); err != nil {
			return nil, market.NewStorageError("scan entry", err)
		}
		e.Amount = market.Money(amount)
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, market.NewStorageError("scan entry", err)
		}
		out = append(out, e)
	}
	return out, market.NewStorageError("query entries", rows.Err())
}

// =============================================================================
// PLAYLISTS
// =============================================================================

const playlistColumns = "id, fan_id, name, track_ids_json, created_at, updated_at"

func (c *conn) SavePlaylist(ctx context.Context, p market.Playlist) error {
	ids := p.TrackIDs
	if ids == nil {
		ids = []market.TrackID{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode playlist tracks: %w", err)
	}
	query := `
		INSERT INTO playlists (` + playlistColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			track_ids_json = excluded.track_ids_json,
			updated_at = excluded.updated_at
	`
	_, err = c.q.ExecContext(ctx, query,
		p.ID, p.FanID, p.Name, string(idsJSON), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return market.NewStorageError("save playlist", err)
}

func (c *conn) GetPlaylist(ctx context.Context, id market.PlaylistID) (*market.Playlist, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+playlistColumns+" FROM playlists WHERE id = ?", id)
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, market.NewStorageError("get playlist", err)
	}
	return &p, nil
}

func (c *conn) ListPlaylists(ctx context.Context, fanID market.AccountID) ([]market.Playlist, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+playlistColumns+" FROM playlists WHERE fan_id = ? ORDER BY created_at DESC, id", fanID)
	if err != nil {
		return nil, market.NewStorageError("list playlists", err)
	}
	defer rows.Close()

	out := make([]market.Playlist, 0)
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, market.NewStorageError("scan playlist", err)
		}
		out = append(out, p)
	}
	return out, market.NewStorageError("list playlists", rows.Err())
}

func (c *conn) DeletePlaylist(ctx context.Context, id market.PlaylistID) error {
	_, err := c.q.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
	return market.NewStorageError("delete playlist", err)
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (market.Track, error) {
	var (
		t        market.Track
		price    int64
		released string
	)
	err := row.Scan(&t.ID, &t.Title, &t.ArtistID, &t.ArtistName, &price, &t.Duration, &t.Genre,
		&t.AudioRef, &t.CoverRef, &released, &t.Downloads)
	if err != nil {
		return market.Track{}, err
	}
	t.Price = market.Money(price)
	t.ReleasedAt, err = parseTime(released)
	return t, err
}

func scanPlaylist(row scanner) (market.Playlist, error) {
	var (
		p                market.Playlist
		idsJSON          string
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.FanID, &p.Name, &idsJSON, &created, &updated); err != nil {
		return market.Playlist{}, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &p.TrackIDs); err != nil {
		return market.Playlist{}, fmt.Errorf("decode playlist tracks: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return market.Playlist{}, err
	}
	p.UpdatedAt, err = parseTime(updated)
	return p, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

var (
	_ market.TxStore = (*Store)(nil)
	_ market.Store   = (*conn)(nil)
)
