/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  market types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Every amount is sent twice: the integer minor-unit value and a display
  string in the configured currency ("50 KSh").

VALIDATION:
  Validation is done in handlers and the market package. DTOs are pure
  data carriers.
*/
package api

import (
	"time"

	"github.com/warp/fanfund/market"
)

// =============================================================================
// TRACKS
// =============================================================================

type TrackDTO struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ArtistID     string    `json:"artist_id"`
	ArtistName   string    `json:"artist_name"`
	Price        int64     `json:"price"`
	PriceDisplay string    `json:"price_display"`
	Duration     int       `json:"duration"`
	Genre        string    `json:"genre"`
	AudioRef     string    `json:"audio_ref,omitempty"`
	CoverRef     string    `json:"cover_ref,omitempty"`
	ReleasedAt   time.Time `json:"released_at"`
	Downloads    int64     `json:"downloads"`
}

type UploadTrackRequest struct {
	Title      string     `json:"title"`
	Price      int64      `json:"price"`
	Duration   int        `json:"duration"`
	Genre      string     `json:"genre"`
	AudioRef   string     `json:"audio_ref"`
	CoverRef   string     `json:"cover_ref"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

type UpdateTrackRequest struct {
	Price *int64  `json:"price,omitempty"`
	Genre *string `json:"genre,omitempty"`
}

type AccessDTO struct {
	TrackID     string `json:"track_id"`
	CanPlayFull bool   `json:"can_play_full"`
	Preview     bool   `json:"preview"`
}

// =============================================================================
// SUPPORT
// =============================================================================

type SupportRequest struct {
	Amount int64 `json:"amount"`
}

type LedgerEntryDTO struct {
	ID            string    `json:"id"`
	FanID         string    `json:"fan_id"`
	ArtistID      string    `json:"artist_id"`
	TrackID       string    `json:"track_id"`
	Amount        int64     `json:"amount"`
	AmountDisplay string    `json:"amount_display"`
	CreatedAt     time.Time `json:"created_at"`
}

type SupportTierDTO struct {
	Value int64  `json:"value"`
	Label string `json:"label"`
}

// =============================================================================
// STATS
// =============================================================================

type TrackStatsDTO struct {
	TrackID        string `json:"track_id"`
	Title          string `json:"title"`
	Downloads      int64  `json:"downloads"`
	Revenue        int64  `json:"revenue"`
	RevenueDisplay string `json:"revenue_display"`
	Deleted        bool   `json:"deleted,omitempty"`
}

// ArtistDTO is the public artist page.
type ArtistDTO struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	TotalTracks    int        `json:"total_tracks"`
	TotalFans      int        `json:"total_fans"`
	TotalDownloads int64      `json:"total_downloads"`
	Tracks         []TrackDTO `json:"tracks"`
}

type MonthlyRevenueDTO struct {
	Month  string `json:"month"` // YYYY-MM
	Amount int64  `json:"amount"`
}

type ArtistStatsDTO struct {
	ArtistID            string              `json:"artist_id"`
	AsOf                time.Time           `json:"as_of"`
	TotalRevenue        int64               `json:"total_revenue"`
	TotalRevenueDisplay string              `json:"total_revenue_display"`
	TotalDownloads      int64               `json:"total_downloads"`
	TopTracks           []TrackStatsDTO     `json:"top_tracks"`
	RecentTransactions  []LedgerEntryDTO    `json:"recent_transactions"`
	MonthlyRevenue      []MonthlyRevenueDTO `json:"monthly_revenue"`
}

// =============================================================================
// PLAYLISTS
// =============================================================================

type PlaylistDTO struct {
	ID        string     `json:"id"`
	FanID     string     `json:"fan_id"`
	Name      string     `json:"name"`
	TrackIDs  []string   `json:"track_ids"`
	Tracks    []TrackDTO `json:"tracks,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CreatePlaylistRequest struct {
	Name     string   `json:"name"`
	TrackIDs []string `json:"track_ids"`
}

type RenamePlaylistRequest struct {
	Name string `json:"name"`
}

type AddTrackRequest struct {
	TrackID string `json:"track_id"`
}

type ReorderRequest struct {
	TrackIDs []string `json:"track_ids"`
}

// =============================================================================
// MISC
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SeedResponse struct {
	Tracks  int `json:"tracks"`
	Entries int `json:"entries"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTrackDTO(t market.Track, cur market.Currency) TrackDTO {
	return TrackDTO{
		ID:           string(t.ID),
		Title:        t.Title,
		ArtistID:     string(t.ArtistID),
		ArtistName:   t.ArtistName,
		Price:        int64(t.Price),
		PriceDisplay: cur.Format(t.Price),
		Duration:     t.Duration,
		Genre:        t.Genre,
		AudioRef:     t.AudioRef,
		CoverRef:     t.CoverRef,
		ReleasedAt:   t.ReleasedAt,
		Downloads:    t.Downloads,
	}
}

func toTrackDTOs(tracks []market.Track, cur market.Currency) []TrackDTO {
	out := make([]TrackDTO, len(tracks))
	for i, t := range tracks {
		out[i] = toTrackDTO(t, cur)
	}
	return out
}

func toEntryDTO(e market.LedgerEntry, cur market.Currency) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:            string(e.ID),
		FanID:         string(e.FanID),
		ArtistID:      string(e.ArtistID),
		TrackID:       string(e.TrackID),
		Amount:        int64(e.Amount),
		AmountDisplay: cur.Format(e.Amount),
		CreatedAt:     e.CreatedAt,
	}
}

func toArtistDTO(p market.ArtistProfile, cur market.Currency) ArtistDTO {
	return ArtistDTO{
		ID:             string(p.ID),
		Name:           p.Name,
		TotalTracks:    p.TotalTracks,
		TotalFans:      p.TotalFans,
		TotalDownloads: p.TotalDownloads,
		Tracks:         toTrackDTOs(p.Tracks, cur),
	}
}

func toStatsDTO(s market.ArtistStatsSnapshot, cur market.Currency) ArtistStatsDTO {
	dto := ArtistStatsDTO{
		ArtistID:            string(s.ArtistID),
		AsOf:                s.AsOf,
		TotalRevenue:        int64(s.TotalRevenue),
		TotalRevenueDisplay: cur.Format(s.TotalRevenue),
		TotalDownloads:      s.TotalDownloads,
		TopTracks:           make([]TrackStatsDTO, len(s.TopTracks)),
		RecentTransactions:  make([]LedgerEntryDTO, len(s.RecentTransactions)),
		MonthlyRevenue:      make([]MonthlyRevenueDTO, len(s.MonthlyRevenue)),
	}
	for i, t := range s.TopTracks {
		dto.TopTracks[i] = TrackStatsDTO{
			TrackID:        string(t.TrackID),
			Title:          t.Title,
			Downloads:      t.Downloads,
			Revenue:        int64(t.Revenue),
			RevenueDisplay: cur.Format(t.Revenue),
			Deleted:        t.Deleted,
		}
	}
	for i, e := range s.RecentTransactions {
		dto.RecentTransactions[i] = toEntryDTO(e, cur)
	}
	for i, m := range s.MonthlyRevenue {
		dto.MonthlyRevenue[i] = MonthlyRevenueDTO{Month: m.Month.String(), Amount: int64(m.Amount)}
	}
	return dto
}

func toPlaylistDTO(p market.Playlist) PlaylistDTO {
	ids := make([]string, len(p.TrackIDs))
	for i, id := range p.TrackIDs {
		ids[i] = string(id)
	}
	return PlaylistDTO{
		ID:        string(p.ID),
		FanID:     string(p.FanID),
		Name:      p.Name,
		TrackIDs:  ids,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toTrackIDs(ids []string) []market.TrackID {
	out := make([]market.TrackID, len(ids))
	for i, id := range ids {
		out[i] = market.TrackID(id)
	}
	return out
}
