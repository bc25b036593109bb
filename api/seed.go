/*
seed.go - Demo catalog loader

PURPOSE:

	Populates a store with the demo marketplace: twenty tracks across
	nineteen artists and a few sample supports, so the dashboard and
	library have something to show.

HOW SEEDING WORKS:
 1. Reset the store (clear all data)
 2. Save the demo tracks with their historical download counts
 3. Append the sample ledger entries

	All three steps run in one transaction; a failed seed leaves the
	previous data in place.

USAGE:

	POST /api/demo/seed          (only when demo.enabled, signed in)
	fanfund seed --config ...    (CLI)

NOTE:

	Seeding resets the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/fanfund/market"
)

// Resetter clears a store.
type Resetter interface {
	Reset(ctx context.Context) error
}

// SeedStore is a store the Seeder can wipe and fill. The Store handed to
// WithTx callbacks must implement Resetter.
type SeedStore interface {
	market.TxStore
}

// SeedResult counts what was loaded.
type SeedResult struct {
	Tracks  int
	Entries int
}

// Seeder loads the demo catalog.
type Seeder struct {
	Store SeedStore
	Log   *zap.Logger
	Now   func() time.Time
}

func NewSeeder(store SeedStore, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{
		Store: store,
		Log:   log,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// DEMO DATA
// =============================================================================

type demoTrack struct {
	id         string
	title      string
	artistID   string
	artistName string
	price      int64
	duration   int
	genre      string
	downloads  int64
}

var demoTracks = []demoTrack{
	{"track1", "African Spirit", "artist1", "Wanjiru Beats", 50, 225, "Afrobeat", 1240},
	{"track2", "Nairobi Nights", "artist2", "DJ Simba", 30, 260, "Gengetone", 890},
	{"track3", "Mountain High", "artist3", "Grace Harmony", 100, 195, "Gospel", 450},
	{"track4", "City Vibrations", "artist1", "Wanjiru Beats", 150, 175, "Electronic", 720},
	{"track5", "Savanna Dreams", "artist4", "Kibaki Flow", 200, 210, "Hip Hop", 1050},
	{"track6", "Coastal Breeze", "artist5", "Ocean Waves", 50, 250, "Reggae", 680},
	{"track7", "Urban Pulse", "artist6", "Street Vibes", 75, 205, "Hip Hop", 920},
	{"track8", "Sunset Melody", "artist7", "Acoustic Soul", 120, 245, "R&B", 580},
	{"track9", "Digital Dreams", "artist8", "Techno Master", 180, 315, "Electronic", 340},
	{"track10", "Traditional Echoes", "artist9", "Heritage Sounds", 90, 230, "Benga", 670},
	{"track11", "Jazz Fusion", "artist10", "Smooth Operator", 140, 270, "Jazz", 420},
	{"track12", "Pop Anthem", "artist11", "Chart Topper", 60, 192, "Pop", 1450},
	{"track13", "Rock Revolution", "artist12", "Power Chord", 110, 285, "Rock", 780},
	{"track14", "Classical Harmony", "artist13", "Symphony Orchestra", 250, 380, "Classical", 290},
	{"track15", "Gospel Glory", "artist14", "Divine Voices", 85, 255, "Gospel", 650},
	{"track16", "Afro Fusion", "artist15", "Continental Mix", 130, 215, "Afrobeat", 850},
	{"track17", "Street Chronicles", "artist16", "Urban Legend", 95, 238, "Gengetone", 1120},
	{"track18", "Island Vibes", "artist17", "Tropical Sound", 70, 248, "Reggae", 730},
	{"track19", "Smooth Operator", "artist18", "Velvet Voice", 160, 222, "R&B", 540},
	{"track20", "Bass Drop", "artist19", "Electronic Pulse", 170, 295, "Electronic", 380},
}

type demoEntry struct {
	id      string
	fanID   string
	trackID string
	daysAgo int
}

var demoEntries = []demoEntry{
	{"tx1", "fan1", "track1", 1},
	{"tx2", "fan2", "track4", 2},
	{"tx3", "fan3", "track1", 3},
}

// =============================================================================
// SEEDING
// =============================================================================

// Seed resets the store and loads the demo data. Entry amounts are the
// track prices; entry times are relative to Now.
func (s *Seeder) Seed(ctx context.Context) (SeedResult, error) {
	now := s.Now()
	var res SeedResult
	err := s.Store.WithTx(ctx, func(tx market.Store) error {
		r, ok := tx.(Resetter)
		if !ok {
			return errors.New("store cannot reset inside a transaction")
		}
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}

		res = SeedResult{}
		byID := make(map[market.TrackID]market.Track, len(demoTracks))
		for i, d := range demoTracks {
			t := market.Track{
				ID:         market.TrackID(d.id),
				Title:      d.title,
				ArtistID:   market.AccountID(d.artistID),
				ArtistName: d.artistName,
				Price:      market.Money(d.price),
				Duration:   d.duration,
				Genre:      d.genre,
				// track1 is the newest release
				ReleasedAt: now.Add(-time.Duration(i) * time.Hour),
				Downloads:  d.downloads,
			}
			if err := tx.SaveTrack(ctx, t); err != nil {
				return err
			}
			byID[t.ID] = t
			res.Tracks++
		}

		for _, d := range demoEntries {
			t, ok := byID[market.TrackID(d.trackID)]
			if !ok {
				return fmt.Errorf("demo entry %s: %w", d.id, market.ErrUnknownTrack)
			}
			e := market.LedgerEntry{
				ID:        market.EntryID(d.id),
				FanID:     market.AccountID(d.fanID),
				ArtistID:  t.ArtistID,
				TrackID:   t.ID,
				Amount:    t.Price,
				CreatedAt: now.AddDate(0, 0, -d.daysAgo),
			}
			if err := tx.AppendEntry(ctx, e); err != nil {
				return err
			}
			res.Entries++
		}
		return nil
	})
	if err != nil {
		s.Log.Error("demo seed failed, previous data kept", zap.Error(err))
		return SeedResult{}, err
	}

	s.Log.Info("demo data loaded",
		zap.Int("tracks", res.Tracks),
		zap.Int("entries", res.Entries),
	)
	return res, nil
}
