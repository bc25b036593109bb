/*
handlers.go - HTTP API handlers for the fanfund marketplace

PURPOSE:
  Exposes the catalog, ledger, unlock resolver, stats aggregator and
  playlists via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the market package.

ENDPOINTS:
  Catalog:
    GET    /api/tracks                     List tracks (?artist_id=&genre=&q=)
    POST   /api/tracks                     Upload track (artists only)
    GET    /api/tracks/{id}                Track details
    PATCH  /api/tracks/{id}                Edit price/genre (owner only)
    DELETE /api/tracks/{id}                Remove from catalog (owner only)

  Support & unlock:
    GET    /api/tiers                      Suggested support amounts
    POST   /api/tracks/{id}/support        Pay for a track
    GET    /api/tracks/{id}/access         Full playback or preview
    GET    /api/me/library                 Unlocked tracks

  Playlists:
    GET    /api/me/playlists               Caller's playlists
    POST   /api/playlists                  Create
    GET    /api/playlists/{id}             View with resolved tracks
    PATCH  /api/playlists/{id}             Rename
    DELETE /api/playlists/{id}             Delete
    POST   /api/playlists/{id}/tracks      Add track
    DELETE /api/playlists/{id}/tracks/{trackID}
    PUT    /api/playlists/{id}/order       Reorder

  Artists:
    GET    /api/artists/{id}               Public profile with tracks
    GET    /api/artists/{id}/stats         Stats snapshot (the artist only)

  Demo:
    POST   /api/demo/seed                  Reset and load the demo catalog (signed in)

IDENTITY:
  The caller comes from the bearer token (see auth.go). Any identity in a
  body or query string is ignored.

ERROR HANDLING:
  Market errors are mapped by statusFor (errors.go):
  - 400: Validation errors, invalid input
  - 401: No identity
  - 403: Not owner, self support, wrong role
  - 404: Resource not found
  - 409: Duplicate track ids
  - 503: Storage unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - seed.go: Demo data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/fanfund/market"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog   *market.Catalog
	Ledger    *market.Ledger
	Resolver  *market.Resolver
	Stats     *market.Aggregator
	Playlists *market.Playlists
	Currency  market.Currency
	Log       *zap.Logger
	Now       func() time.Time

	// Health is checked by /healthz. Optional.
	Health Pinger

	// Seeder backs /api/demo/seed. Nil disables the endpoint.
	Seeder *Seeder
}

// NewHandler wires the market components over one store.
func NewHandler(store market.TxStore, cache market.UnlockCache, cur market.Currency, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	ledger := market.NewLedger(store, log)
	ledger.Cache = cache
	return &Handler{
		Catalog:   market.NewCatalog(store, log),
		Ledger:    ledger,
		Resolver:  market.NewResolver(ledger, store, cache, log),
		Stats:     market.NewAggregator(store, ledger),
		Playlists: market.NewPlaylists(store, log),
		Currency:  cur,
		Log:       log,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// HEALTH & TIERS
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			h.Log.Warn("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "unhealthy", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers := market.SupportTiers(h.Currency)
	dtos := make([]SupportTierDTO, len(tiers))
	for i, t := range tiers {
		dtos[i] = SupportTierDTO{Value: int64(t.Value), Label: t.Label}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := market.TrackFilter{
		ArtistID: market.AccountID(q.Get("artist_id")),
		Genre:    q.Get("genre"),
		Query:    q.Get("q"),
	}
	tracks, err := h.Catalog.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackDTOs(tracks, h.Currency))
}

func (h *Handler) GetTrack(w http.ResponseWriter, r *http.Request) {
	track, err := h.Catalog.Get(r.Context(), trackParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackDTO(track, h.Currency))
}

func (h *Handler) UploadTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	if !id.IsArtist() {
		h.fail(w, r, errArtistOnly)
		return
	}

	var req UploadTrackRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := market.TrackInput{
		Title:    req.Title,
		Price:    market.Money(req.Price),
		Duration: req.Duration,
		Genre:    req.Genre,
		AudioRef: req.AudioRef,
		CoverRef: req.CoverRef,
	}
	if req.ReleasedAt != nil {
		in.ReleasedAt = *req.ReleasedAt
	}

	track, err := h.Catalog.Upload(r.Context(), id.ID, id.Name, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTrackDTO(track, h.Currency))
}

func (h *Handler) UpdateTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req UpdateTrackRequest
	if !h.decode(w, r, &req) {
		return
	}
	var upd market.TrackUpdate
	if req.Price != nil {
		p := market.Money(*req.Price)
		upd.Price = &p
	}
	upd.Genre = req.Genre

	track, err := h.Catalog.Update(r.Context(), id.ID, trackParam(r), upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackDTO(track, h.Currency))
}

func (h *Handler) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.Delete(r.Context(), id.ID, trackParam(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SUPPORT & UNLOCK HANDLERS
// =============================================================================

// SupportTrack records a payment from the caller for the track. The artist
// is taken from the catalog row.
func (h *Handler) SupportTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req SupportRequest
	if !h.decode(w, r, &req) {
		return
	}

	track, err := h.Catalog.Get(r.Context(), trackParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.Ledger.RecordSupport(r.Context(), id.ID, track.ArtistID, track.ID, market.Money(req.Amount))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry, h.Currency))
}

// TrackAccess reports whether the caller gets full playback. Anonymous
// callers and locked tracks get the preview.
func (h *Handler) TrackAccess(w http.ResponseWriter, r *http.Request) {
	trackID := trackParam(r)
	if _, err := h.Catalog.Get(r.Context(), trackID); err != nil {
		h.fail(w, r, err)
		return
	}

	full := false
	if id, ok := IdentityFrom(r.Context()); ok {
		var err error
		full, err = h.Resolver.CanPlayFull(r.Context(), id.ID, trackID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, AccessDTO{
		TrackID:     string(trackID),
		CanPlayFull: full,
		Preview:     !full,
	})
}

func (h *Handler) MyLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	tracks, err := h.Resolver.Library(r.Context(), id.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackDTOs(tracks, h.Currency))
}

// =============================================================================
// PLAYLIST HANDLERS
// =============================================================================

func (h *Handler) MyPlaylists(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	lists, err := h.Playlists.List(r.Context(), id.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PlaylistDTO, len(lists))
	for i, p := range lists {
		dtos[i] = toPlaylistDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req CreatePlaylistRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Playlists.Create(r.Context(), id.ID, req.Name, toTrackIDs(req.TrackIDs))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlaylistDTO(p))
}

func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	view, err := h.Playlists.View(r.Context(), id.ID, playlistParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dto := toPlaylistDTO(view.Playlist)
	dto.Tracks = toTrackDTOs(view.Tracks, h.Currency)
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) RenamePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req RenamePlaylistRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Playlists.Rename(r.Context(), id.ID, playlistParam(r), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylistDTO(p))
}

func (h *Handler) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.Playlists.Delete(r.Context(), id.ID, playlistParam(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddPlaylistTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req AddTrackRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Playlists.AddTrack(r.Context(), id.ID, playlistParam(r), market.TrackID(req.TrackID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylistDTO(p))
}

func (h *Handler) RemovePlaylistTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	trackID := market.TrackID(chi.URLParam(r, "trackID"))
	p, err := h.Playlists.RemoveTrack(r.Context(), id.ID, playlistParam(r), trackID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylistDTO(p))
}

func (h *Handler) ReorderPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req ReorderRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Playlists.Reorder(r.Context(), id.ID, playlistParam(r), toTrackIDs(req.TrackIDs))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylistDTO(p))
}

// =============================================================================
// ARTIST HANDLERS
// =============================================================================

// GetArtist returns the public artist page. No identity needed.
func (h *Handler) GetArtist(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Stats.Profile(r.Context(), market.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toArtistDTO(profile, h.Currency))
}

const (
	defaultTopN    = 5
	defaultRecentM = 10
	maxStatsMonths = 120
)

// ArtistStats returns the dashboard snapshot. Only the artist may read it.
//
// Query: as_of (RFC3339 or YYYY-MM-DD, default now), top, recent, months.
func (h *Handler) ArtistStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	artistID := market.AccountID(chi.URLParam(r, "id"))
	if !id.IsArtist() {
		h.fail(w, r, errArtistOnly)
		return
	}
	if id.ID != artistID {
		h.fail(w, r, errForbidden)
		return
	}

	q, err := h.parseStatsQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q.ArtistID = artistID

	snap, err := h.Stats.Compute(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(snap, h.Currency))
}

func (h *Handler) parseStatsQuery(r *http.Request) (market.StatsQuery, error) {
	v := r.URL.Query()
	q := market.StatsQuery{AsOf: h.Now(), TopN: defaultTopN, RecentM: defaultRecentM}

	if raw := v.Get("as_of"); raw != "" {
		asOf, err := parseAsOf(raw)
		if err != nil {
			return q, err
		}
		q.AsOf = asOf
	}

	var err error
	if q.TopN, err = intParam(v.Get("top"), q.TopN); err != nil {
		return q, err
	}
	if q.RecentM, err = intParam(v.Get("recent"), q.RecentM); err != nil {
		return q, err
	}
	months, err := intParam(v.Get("months"), market.DefaultStatsMonths)
	if err != nil {
		return q, err
	}
	if months < 1 || months > maxStatsMonths {
		return q, fmt.Errorf("%w: months must be between 1 and %d", errInvalidInput, maxStatsMonths)
	}
	q.From = market.MonthOf(q.AsOf).AddMonths(-(months - 1))
	return q, nil
}

// parseAsOf accepts an RFC3339 instant or a date. A bare date means the end
// of that UTC day.
func parseAsOf(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		return d.Add(24*time.Hour - time.Nanosecond), nil
	}
	return time.Time{}, fmt.Errorf("%w: as_of must be RFC3339 or YYYY-MM-DD", errInvalidInput)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errInvalidInput, raw)
	}
	return n, nil
}

// =============================================================================
// DEMO
// =============================================================================

// SeedDemo wipes the store and loads the demo catalog. Any signed-in
// caller may trigger it, so demo.enabled must stay off outside demo
// deployments.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if h.Seeder == nil {
		writeError(w, http.StatusNotFound, "demo mode is disabled", nil)
		return
	}
	id, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	h.Log.Warn("demo seed requested", zap.String("account_id", string(id.ID)))
	res, err := h.Seeder.Seed(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SeedResponse{Tracks: res.Tracks, Entries: res.Entries})
}

// =============================================================================
// HELPERS
// =============================================================================

func trackParam(r *http.Request) market.TrackID {
	return market.TrackID(chi.URLParam(r, "id"))
}

func playlistParam(r *http.Request) market.PlaylistID {
	return market.PlaylistID(chi.URLParam(r, "id"))
}

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok || id.ID.Blank() {
		h.fail(w, r, market.ErrMissingIdentity)
		return Identity{}, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// fail writes err with its mapped status. Server-side failures are logged
// and their details withheld.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, userMessage(err), nil)
		return
	}
	writeError(w, status, userMessage(err), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
