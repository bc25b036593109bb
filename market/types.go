/*
Package market provides the revenue and unlock ledger of the fanfund marketplace.

PURPOSE:
  Fans support artists by paying for tracks. Every support is an immutable
  ledger entry; unlock state and all revenue figures are derived from the
  ledger, never stored separately.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: integer amount in minor currency units
  - Track: catalog metadata with a monotonic download counter
  - LedgerEntry: one support/purchase event (append-only)
  - Playlist: fan-curated ordered list of track ids
  - ArtistStatsSnapshot: aggregate figures for an artist dashboard

DESIGN PRINCIPLES:
  1. Immutability: ledger entries are never modified or removed
  2. Precision: amounts are int64 minor units, no floating point anywhere
  3. Explicit identity: every operation takes the acting account id

SEE ALSO:
  - ledger.go: RecordSupport and unlock queries
  - stats.go: Stats aggregation
  - store.go: Persistence contract
*/
package market

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AccountID identifies a fan or an artist. Both live in the same id space.
type AccountID string

type TrackID string
type EntryID string
type PlaylistID string

// Blank reports whether the id is empty after trimming whitespace.
func (a AccountID) Blank() bool { return isBlank(string(a)) }

// =============================================================================
// MONEY - Integer amount in minor units
// =============================================================================

type Money int64

func (m Money) IsPositive() bool { return m > 0 }

// =============================================================================
// TRACK
// =============================================================================

type Track struct {
	ID         TrackID
	Title      string
	ArtistID   AccountID
	ArtistName string
	Price      Money
	Duration   int // seconds
	Genre      string
	AudioRef   string // opaque blob-store key
	CoverRef   string
	ReleasedAt time.Time
	Downloads  int64
}

// TrackFilter narrows catalog listings. Zero values match everything.
type TrackFilter struct {
	ArtistID AccountID
	Genre    string
	Query    string // case-insensitive match on title, artist name or genre
}

// =============================================================================
// LEDGER ENTRY - One support event
// =============================================================================

type LedgerEntry struct {
	ID        EntryID
	FanID     AccountID
	ArtistID  AccountID
	TrackID   TrackID
	Amount    Money
	CreatedAt time.Time
}

// =============================================================================
// PLAYLIST
// =============================================================================

type Playlist struct {
	ID        PlaylistID
	FanID     AccountID
	Name      string
	TrackIDs  []TrackID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the playlist holds the track.
func (p Playlist) Contains(id TrackID) bool {
	for _, t := range p.TrackIDs {
		if t == id {
			return true
		}
	}
	return false
}

// PlaylistView is a playlist with its tracks resolved against the catalog.
// Tracks deleted from the catalog are left out of Tracks but stay in
// Playlist.TrackIDs.
type PlaylistView struct {
	Playlist Playlist
	Tracks   []Track
}

// =============================================================================
// STATS SNAPSHOT
// =============================================================================

type TrackStats struct {
	TrackID   TrackID
	Title     string
	Downloads int64
	Revenue   Money
	Deleted   bool // track no longer in the catalog; revenue kept from the ledger
}

type MonthlyRevenue struct {
	Month  Month
	Amount Money
}

type ArtistStatsSnapshot struct {
	ArtistID           AccountID
	AsOf               time.Time
	TotalRevenue       Money
	TotalDownloads     int64
	TopTracks          []TrackStats
	RecentTransactions []LedgerEntry
	MonthlyRevenue     []MonthlyRevenue
}

// =============================================================================
// ARTIST PROFILE
// =============================================================================

// ArtistProfile is the public page of an artist. There is no account store,
// so the name comes from the newest catalog track and the fan count from
// the ledger.
type ArtistProfile struct {
	ID             AccountID
	Name           string
	TotalTracks    int
	TotalFans      int // distinct fans with at least one entry
	TotalDownloads int64
	Tracks         []Track // newest release first
}

// =============================================================================
// SUPPORT TIERS
// =============================================================================

// SupportTier is a suggested support amount shown to fans.
type SupportTier struct {
	Value Money
	Label string
}

var defaultTierValues = []Money{30, 50, 100, 150, 200, 400}

// SupportTiers returns the suggested support amounts labelled in cur.
// Tiers are suggestions only: RecordSupport accepts any positive amount.
func SupportTiers(cur Currency) []SupportTier {
	tiers := make([]SupportTier, len(defaultTierValues))
	for i, v := range defaultTierValues {
		tiers[i] = SupportTier{Value: v, Label: cur.Format(v)}
	}
	return tiers
}
