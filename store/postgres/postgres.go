/*
Package postgres provides a PostgreSQL implementation of market.TxStore
built on gorm.

TABLES:
  tracks, ledger_entries, playlists. Same shape as store/sqlite; playlist
  track ids are a jsonb array.

TRANSACTIONS:
  WithTx runs fn inside db.Transaction. The download counter is bumped
  with a single "downloads = downloads + 1" UPDATE, so concurrent supports
  never lose an increment even under READ COMMITTED.

  Playlist edits are read-modify-write. Inside WithTx, GetPlaylist reads
  with SELECT ... FOR UPDATE, so a second editor of the same playlist
  waits for the first to commit and then sees its write.
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/warp/fanfund/market"
)

// =============================================================================
// SCHEMA
// =============================================================================

type trackRow struct {
	ID         string    `gorm:"column:id;primaryKey;type:text"`
	Title      string    `gorm:"column:title;not null;type:text"`
	ArtistID   string    `gorm:"column:artist_id;not null;type:text;index:idx_tracks_artist"`
	ArtistName string    `gorm:"column:artist_name;not null;type:text;default:''"`
	Price      int64     `gorm:"column:price;not null"`
	Duration   int       `gorm:"column:duration;not null"`
	Genre      string    `gorm:"column:genre;not null;type:text;default:''"`
	AudioRef   string    `gorm:"column:audio_ref;not null;type:text;default:''"`
	CoverRef   string    `gorm:"column:cover_ref;not null;type:text;default:''"`
	ReleasedAt time.Time `gorm:"column:released_at;not null;type:timestamptz"`
	Downloads  int64     `gorm:"column:downloads;not null;default:0"`
}

func (trackRow) TableName() string { return "tracks" }

// entryRow has no foreign key to tracks: deleting a track keeps its revenue.
type entryRow struct {
	ID        string    `gorm:"column:id;primaryKey;type:text"`
	FanID     string    `gorm:"column:fan_id;not null;type:text;index:idx_ledger_fan_track,priority:1"`
	ArtistID  string    `gorm:"column:artist_id;not null;type:text;index:idx_ledger_artist_created,priority:1"`
	TrackID   string    `gorm:"column:track_id;not null;type:text;index:idx_ledger_fan_track,priority:2;index:idx_ledger_track"`
	Amount    int64     `gorm:"column:amount;not null;check:amount > 0"`
	CreatedAt time.Time `gorm:"column:created_at;not null;type:timestamptz;index:idx_ledger_artist_created,priority:2"`
}

func (entryRow) TableName() string { return "ledger_entries" }

type playlistRow struct {
	ID        string         `gorm:"column:id;primaryKey;type:text"`
	FanID     string         `gorm:"column:fan_id;not null;type:text;index:idx_playlists_fan"`
	Name      string         `gorm:"column:name;not null;type:text"`
	TrackIDs  datatypes.JSON `gorm:"column:track_ids;not null;type:jsonb"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;type:timestamptz"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null;type:timestamptz"`
}

func (playlistRow) TableName() string { return "playlists" }

// =============================================================================
// STORE
// =============================================================================

// Store implements market.TxStore on PostgreSQL.
type Store struct {
	conn
}

type conn struct {
	db *gorm.DB

	// inTx marks a transaction-scoped conn; its reads lock rows they will rewrite.
	inTx bool
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, market.NewStorageError("open", err)
	}
	return New(db)
}

// New wraps an existing gorm connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&trackRow{}, &entryRow{}, &playlistRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{conn: conn{db: db}}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return market.NewStorageError("ping", err)
	}
	return market.NewStorageError("ping", sqlDB.PingContext(ctx))
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(market.Store) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&conn{db: tx, inTx: true})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return market.NewStorageError("transaction", err)
}

// Reset clears all data. Used by the demo seeder, inside WithTx.
// TRUNCATE is transactional in PostgreSQL.
func (c *conn) Reset(ctx context.Context) error {
	err := c.db.WithContext(ctx).Exec("TRUNCATE ledger_entries, playlists, tracks").Error
	return market.NewStorageError("reset", err)
}

// =============================================================================
// CATALOG
// =============================================================================

func (c *conn) SaveTrack(ctx context.Context, t market.Track) error {
	row := toTrackRow(t)
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	return market.NewStorageError("save track", err)
}

// UpdateListing writes only price and genre; downloads is never part of
// the SET list.
func (c *conn) UpdateListing(ctx context.Context, id market.TrackID, upd market.TrackUpdate) error {
	cols := make(map[string]any, 2)
	if upd.Price != nil {
		cols["price"] = int64(*upd.Price)
	}
	if upd.Genre != nil {
		cols["genre"] = *upd.Genre
	}
	if len(cols) == 0 {
		t, err := c.GetTrack(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return market.ErrUnknownTrack
		}
		return nil
	}

	res := c.db.WithContext(ctx).Model(&trackRow{}).Where("id = ?", string(id)).Updates(cols)
	if res.Error != nil {
		return market.NewStorageError("update listing", res.Error)
	}
	if res.RowsAffected == 0 {
		return market.ErrUnknownTrack
	}
	return nil
}

func (c *conn) GetTrack(ctx context.Context, id market.TrackID) (*market.Track, error) {
	var row trackRow
	err := c.db.WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, market.NewStorageError("get track", err)
	}
	t := row.toTrack()
	return &t, nil
}

func (c *conn) ListTracks(ctx context.Context, filter market.TrackFilter) ([]market.Track, error) {
	q := c.db.WithContext(ctx).Order("id")
	if filter.ArtistID != "" {
		q = q.Where("artist_id = ?", string(filter.ArtistID))
	}
	var rows []trackRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, market.NewStorageError("list tracks", err)
	}
	out := make([]market.Track, 0, len(rows))
	for _, r := range rows {
		if t := r.toTrack(); market.MatchTrack(t, filter) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *conn) DeleteTrack(ctx context.Context, id market.TrackID) error {
	err := c.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&trackRow{}).Error
	return market.NewStorageError("delete track", err)
}

func (c *conn) IncrementDownloads(ctx context.Context, id market.TrackID) (int64, error) {
	var row trackRow
	res := c.db.WithContext(ctx).Model(&row).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "downloads"}}}).
		Where("id = ?", string(id)).
		Update("downloads", gorm.Expr("downloads + 1"))
	if res.Error != nil {
		return 0, market.NewStorageError("increment downloads", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, market.ErrUnknownTrack
	}
	return row.Downloads, nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (c *conn) AppendEntry(ctx context.Context, e market.LedgerEntry) error {
	row := entryRow{
		ID:        string(e.ID),
		FanID:     string(e.FanID),
		ArtistID:  string(e.ArtistID),
		TrackID:   string(e.TrackID),
		Amount:    int64(e.Amount),
		CreatedAt: e.CreatedAt.UTC(),
	}
	return market.NewStorageError("append entry", c.db.WithContext(ctx).Create(&row).Error)
}

func (c *conn) EntriesByArtist(ctx context.Context, artistID market.AccountID) ([]market.LedgerEntry, error) {
	return c.queryEntries(ctx, "artist_id = ?", string(artistID))
}

func (c *conn) EntriesByFan(ctx context.Context, fanID market.AccountID) ([]market.LedgerEntry, error) {
	return c.queryEntries(ctx, "fan_id = ?", string(fanID))
}

func (c *conn) EntriesByTrack(ctx context.Context, trackID market.TrackID) ([]market.LedgerEntry, error) {
	return c.queryEntries(ctx, "track_id = ?", string(trackID))
}

func (c *conn) HasEntry(ctx context.Context, fanID market.AccountID, trackID market.TrackID) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&entryRow{}).
		Where("fan_id = ? AND track_id = ?", string(fanID), string(trackID)).
		Limit(1).Count(&n).Error
	if err != nil {
		return false, market.NewStorageError("has entry", err)
	}
	return n > 0, nil
}

func (c *conn) queryEntries(ctx context.Context, where string, arg string) ([]market.LedgerEntry, error) {
	var rows []entryRow
	err := c.db.WithContext(ctx).Where(where, arg).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, market.NewStorageError("query entries", err)
	}
	out := make([]market.LedgerEntry, len(rows))
	for i, r := range rows {
		out[i] = market.LedgerEntry{
			ID:        market.EntryID(r.ID),
			FanID:     market.AccountID(r.FanID),
			ArtistID:  market.AccountID(r.ArtistID),
			TrackID:   market.TrackID(r.TrackID),
			Amount:    market.Money(r.Amount),
			CreatedAt: r.CreatedAt.UTC(),
		}
	}
	return out, nil
}

// =============================================================================
// PLAYLISTS
// =============================================================================

func (c *conn) SavePlaylist(ctx context.Context, p market.Playlist) error {
	ids := p.TrackIDs
	if ids == nil {
		ids = []market.TrackID{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode playlist tracks: %w", err)
	}
	row := playlistRow{
		ID:        string(p.ID),
		FanID:     string(p.FanID),
		Name:      p.Name,
		TrackIDs:  datatypes.JSON(raw),
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "track_ids", "updated_at"}),
	}).Create(&row).Error
	return market.NewStorageError("save playlist", err)
}

func (c *conn) GetPlaylist(ctx context.Context, id market.PlaylistID) (*market.Playlist, error) {
	q := c.db.WithContext(ctx)
	if c.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row playlistRow
	err := q.Where("id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, market.NewStorageError("get playlist", err)
	}
	p, err := row.toPlaylist()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *conn) ListPlaylists(ctx context.Context, fanID market.AccountID) ([]market.Playlist, error) {
	var rows []playlistRow
	err := c.db.WithContext(ctx).Where("fan_id = ?", string(fanID)).
		Order("created_at DESC, id").Find(&rows).Error
	if err != nil {
		return nil, market.NewStorageError("list playlists", err)
	}
	out := make([]market.Playlist, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPlaylist()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *conn) DeletePlaylist(ctx context.Context, id market.PlaylistID) error {
	err := c.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&playlistRow{}).Error
	return market.NewStorageError("delete playlist", err)
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTrackRow(t market.Track) trackRow {
	return trackRow{
		ID:         string(t.ID),
		Title:      t.Title,
		ArtistID:   string(t.ArtistID),
		ArtistName: t.ArtistName,
		Price:      int64(t.Price),
		Duration:   t.Duration,
		Genre:      t.Genre,
		AudioRef:   t.AudioRef,
		CoverRef:   t.CoverRef,
		ReleasedAt: t.ReleasedAt.UTC(),
		Downloads:  t.Downloads,
	}
}

func (r trackRow) toTrack() market.Track {
	return market.Track{
		ID:         market.TrackID(r.ID),
		Title:      r.Title,
		ArtistID:   market.AccountID(r.ArtistID),
		ArtistName: r.ArtistName,
		Price:      market.Money(r.Price),
		Duration:   r.Duration,
		Genre:      r.Genre,
		AudioRef:   r.AudioRef,
		CoverRef:   r.CoverRef,
		ReleasedAt: r.ReleasedAt.UTC(),
		Downloads:  r.Downloads,
	}
}

func (r playlistRow) toPlaylist() (market.Playlist, error) {
	p := market.Playlist{
		ID:        market.PlaylistID(r.ID),
		FanID:     market.AccountID(r.FanID),
		Name:      r.Name,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(r.TrackIDs, &p.TrackIDs); err != nil {
		return market.Playlist{}, fmt.Errorf("decode playlist tracks: %w", err)
	}
	return p, nil
}

var (
	_ market.TxStore = (*Store)(nil)
	_ market.Store   = (*conn)(nil)
)
