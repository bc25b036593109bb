/*
stats.go - Artist statistics aggregation

PURPOSE:
  Builds an ArtistStatsSnapshot on demand from the ledger and the catalog.
  Nothing is maintained incrementally; each call rescans the artist's
  entries and tracks.

RULES:
  totalRevenue       sum of entry amounts with CreatedAt <= asOf
  totalDownloads     sum of current download counters of the artist's
                     catalog tracks (NOT filtered by asOf)
  topTracks          tracks with revenue > 0, by revenue desc, then
                     downloads desc, then id asc; first topN
  recentTransactions entries by CreatedAt desc (id asc on ties); first recentM
  monthlyRevenue     one bucket per UTC calendar month in [From, month(asOf)],
                     chronological, zero-filled

  totalDownloads reflects current cumulative state while revenue reflects
  ledger history up to asOf. The two can disagree for a past asOf.
*/
package market

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultStatsMonths is the monthly window used by ComputeStats.
const DefaultStatsMonths = 12

// StatsQuery parameterizes Compute.
type StatsQuery struct {
	ArtistID AccountID
	AsOf     time.Time
	TopN     int
	RecentM  int

	// From is the first month of the monthly window. Zero means
	// DefaultStatsMonths months ending at AsOf's month.
	From Month
}

type Aggregator struct {
	Catalog CatalogReader
	Ledger  *Ledger
}

func NewAggregator(catalog CatalogReader, ledger *Ledger) *Aggregator {
	return &Aggregator{Catalog: catalog, Ledger: ledger}
}

// ComputeStats computes the artist's snapshot using the default window.
func (a *Aggregator) ComputeStats(ctx context.Context, artistID AccountID, asOf time.Time, topN, recentM int) (ArtistStatsSnapshot, error) {
	return a.Compute(ctx, StatsQuery{ArtistID: artistID, AsOf: asOf, TopN: topN, RecentM: recentM})
}

func (a *Aggregator) Compute(ctx context.Context, q StatsQuery) (ArtistStatsSnapshot, error) {
	asOf := q.AsOf.UTC()
	last := MonthOf(asOf)
	from := q.From
	if from == (Month{}) {
		from = last.AddMonths(-(DefaultStatsMonths - 1))
	}

	var (
		tracks  []Track
		entries []LedgerEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tracks, err = a.Catalog.ListTracks(gctx, TrackFilter{ArtistID: q.ArtistID})
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = a.Ledger.EntriesForArtist(gctx, q.ArtistID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ArtistStatsSnapshot{}, err
	}

	snap := ArtistStatsSnapshot{
		ArtistID:           q.ArtistID,
		AsOf:               asOf,
		TopTracks:          []TrackStats{},
		RecentTransactions: []LedgerEntry{},
	}

	catalog := make(map[TrackID]Track, len(tracks))
	for _, t := range tracks {
		catalog[t.ID] = t
		snap.TotalDownloads += t.Downloads
	}

	buckets := make(map[Month]Money)
	revenue := make(map[TrackID]Money)
	var visible []LedgerEntry
	for _, e := range entries {
		if e.ArtistID != q.ArtistID || e.CreatedAt.After(asOf) {
			continue
		}
		visible = append(visible, e)
		snap.TotalRevenue += e.Amount
		revenue[e.TrackID] += e.Amount
		buckets[MonthOf(e.CreatedAt)] += e.Amount
	}

	snap.TopTracks = topTracks(revenue, catalog, q.TopN)
	snap.RecentTransactions = recent(visible, q.RecentM)

	months := MonthsBetween(from, last)
	snap.MonthlyRevenue = make([]MonthlyRevenue, len(months))
	for i, m := range months {
		snap.MonthlyRevenue[i] = MonthlyRevenue{Month: m, Amount: buckets[m]}
	}
	return snap, nil
}

// Profile builds the public page for artistID. An artist with no catalog
// tracks is unknown, even if old ledger entries credit them.
func (a *Aggregator) Profile(ctx context.Context, artistID AccountID) (ArtistProfile, error) {
	if artistID.Blank() {
		return ArtistProfile{}, ErrUnknownArtist
	}
	var (
		tracks  []Track
		entries []LedgerEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tracks, err = a.Catalog.ListTracks(gctx, TrackFilter{ArtistID: artistID})
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = a.Ledger.EntriesForArtist(gctx, artistID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ArtistProfile{}, err
	}
	if len(tracks) == 0 {
		return ArtistProfile{}, ErrUnknownArtist
	}

	SortNewestFirst(tracks)
	p := ArtistProfile{
		ID:          artistID,
		Name:        tracks[0].ArtistName,
		TotalTracks: len(tracks),
		Tracks:      tracks,
	}
	for _, t := range tracks {
		p.TotalDownloads += t.Downloads
	}
	fans := make(map[AccountID]struct{})
	for _, e := range entries {
		fans[e.FanID] = struct{}{}
	}
	p.TotalFans = len(fans)
	return p, nil
}

func topTracks(revenue map[TrackID]Money, catalog map[TrackID]Track, n int) []TrackStats {
	out := make([]TrackStats, 0, len(revenue))
	if n <= 0 {
		return out
	}
	for id, rev := range revenue {
		if rev <= 0 {
			continue
		}
		ts := TrackStats{TrackID: id, Revenue: rev}
		if t, ok := catalog[id]; ok {
			ts.Title = t.Title
			ts.Downloads = t.Downloads
		} else {
			ts.Deleted = true
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		if a.Downloads != b.Downloads {
			return a.Downloads > b.Downloads
		}
		return a.TrackID < b.TrackID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func recent(entries []LedgerEntry, m int) []LedgerEntry {
	if m <= 0 {
		return []LedgerEntry{}
	}
	sorted := make([]LedgerEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > m {
		sorted = sorted[:m]
	}
	return sorted
}
