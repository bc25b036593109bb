// Package store provides an in-memory market.TxStore.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/fanfund/market"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	tracks    map[market.TrackID]market.Track
	entries   []market.LedgerEntry
	playlists map[market.PlaylistID]market.Playlist
}

func NewMemory() *Memory {
	return &Memory{
		tracks:    make(map[market.TrackID]market.Track),
		playlists: make(map[market.PlaylistID]market.Playlist),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(_ context.Context) error { return nil }

// ---- catalog ----

func (m *Memory) GetTrack(_ context.Context, id market.TrackID) (*market.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTrackLocked(id), nil
}

func (m *Memory) ListTracks(_ context.Context, filter market.TrackFilter) ([]market.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTracksLocked(filter), nil
}

func (m *Memory) SaveTrack(_ context.Context, t market.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[t.ID] = t
	return nil
}

func (m *Memory) UpdateListing(_ context.Context, id market.TrackID, upd market.TrackUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateListingLocked(id, upd)
}

func (m *Memory) DeleteTrack(_ context.Context, id market.TrackID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, id)
	return nil
}

func (m *Memory) IncrementDownloads(_ context.Context, id market.TrackID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementLocked(id)
}

// ---- ledger ----

// AppendEntry adds a single entry. Append-only.
func (m *Memory) AppendEntry(_ context.Context, e market.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) EntriesByArtist(_ context.Context, artistID market.AccountID) ([]market.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(e market.LedgerEntry) bool { return e.ArtistID == artistID }), nil
}

func (m *Memory) EntriesByFan(_ context.Context, fanID market.AccountID) ([]market.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(e market.LedgerEntry) bool { return e.FanID == fanID }), nil
}

func (m *Memory) EntriesByTrack(_ context.Context, trackID market.TrackID) ([]market.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(e market.LedgerEntry) bool { return e.TrackID == trackID }), nil
}

func (m *Memory) HasEntry(_ context.Context, fanID market.AccountID, trackID market.TrackID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasEntryLocked(fanID, trackID), nil
}

// ---- playlists ----

func (m *Memory) SavePlaylist(_ context.Context, p market.Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlists[p.ID] = clonePlaylist(p)
	return nil
}

func (m *Memory) GetPlaylist(_ context.Context, id market.PlaylistID) (*market.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPlaylistLocked(id), nil
}

func (m *Memory) ListPlaylists(_ context.Context, fanID market.AccountID) ([]market.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPlaylistsLocked(fanID), nil
}

func (m *Memory) DeletePlaylist(_ context.Context, id market.PlaylistID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playlists, id)
	return nil
}

// ---- locked helpers (caller holds mu) ----

func (m *Memory) getTrackLocked(id market.TrackID) *market.Track {
	t, ok := m.tracks[id]
	if !ok {
		return nil
	}
	return &t
}

func (m *Memory) listTracksLocked(filter market.TrackFilter) []market.Track {
	out := make([]market.Track, 0)
	for _, t := range m.tracks {
		if market.MatchTrack(t, filter) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) updateListingLocked(id market.TrackID, upd market.TrackUpdate) error {
	t, ok := m.tracks[id]
	if !ok {
		return market.ErrUnknownTrack
	}
	if upd.Price != nil {
		t.Price = *upd.Price
	}
	if upd.Genre != nil {
		t.Genre = *upd.Genre
	}
	m.tracks[id] = t
	return nil
}

func (m *Memory) incrementLocked(id market.TrackID) (int64, error) {
	t, ok := m.tracks[id]
	if !ok {
		return 0, market.ErrUnknownTrack
	}
	t.Downloads++
	m.tracks[id] = t
	return t.Downloads, nil
}

func (m *Memory) filterLocked(keep func(market.LedgerEntry) bool) []market.LedgerEntry {
	out := make([]market.LedgerEntry, 0)
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) hasEntryLocked(fanID market.AccountID, trackID market.TrackID) bool {
	for _, e := range m.entries {
		if e.FanID == fanID && e.TrackID == trackID {
			return true
		}
	}
	return false
}

func (m *Memory) getPlaylistLocked(id market.PlaylistID) *market.Playlist {
	p, ok := m.playlists[id]
	if !ok {
		return nil
	}
	c := clonePlaylist(p)
	return &c
}

func (m *Memory) listPlaylistsLocked(fanID market.AccountID) []market.Playlist {
	out := make([]market.Playlist, 0)
	for _, p := range m.playlists {
		if p.FanID == fanID {
			out = append(out, clonePlaylist(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clonePlaylist(p market.Playlist) market.Playlist {
	p.TrackIDs = append([]market.TrackID{}, p.TrackIDs...)
	return p
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn while holding the write lock. Each write made through
// the view records an undo step; on error the steps run in reverse.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(market.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	view := &txMemoryView{parent: tm.Memory}
	if err := fn(view); err != nil {
		view.rollback()
		return err
	}
	return nil
}

// txMemoryView is the Store handed to WithTx callbacks. The parent lock is
// already held, so it only uses the *Locked helpers.
type txMemoryView struct {
	parent *Memory
	undo   []func()
}

func (tv *txMemoryView) rollback() {
	for i := len(tv.undo) - 1; i >= 0; i-- {
		tv.undo[i]()
	}
	tv.undo = nil
}

func (tv *txMemoryView) rememberTrack(id market.TrackID) {
	m := tv.parent
	prev, existed := m.tracks[id]
	tv.undo = append(tv.undo, func() {
		if existed {
			m.tracks[id] = prev
		} else {
			delete(m.tracks, id)
		}
	})
}

func (tv *txMemoryView) rememberPlaylist(id market.PlaylistID) {
	m := tv.parent
	prev, existed := m.playlists[id]
	tv.undo = append(tv.undo, func() {
		if existed {
			m.playlists[id] = prev
		} else {
			delete(m.playlists, id)
		}
	})
}

// Reset drops all data; rollback restores the previous maps.
func (tv *txMemoryView) Reset(_ context.Context) error {
	m := tv.parent
	tracks, entries, playlists := m.tracks, m.entries, m.playlists
	tv.undo = append(tv.undo, func() {
		m.tracks, m.entries, m.playlists = tracks, entries, playlists
	})
	m.tracks = make(map[market.TrackID]market.Track)
	m.entries = nil
	m.playlists = make(map[market.PlaylistID]market.Playlist)
	return nil
}

func (tv *txMemoryView) GetTrack(_ context.Context, id market.TrackID) (*market.Track, error) {
	return tv.parent.getTrackLocked(id), nil
}

func (tv *txMemoryView) ListTracks(_ context.Context, filter market.TrackFilter) ([]market.Track, error) {
	return tv.parent.listTracksLocked(filter), nil
}

func (tv *txMemoryView) SaveTrack(_ context.Context, t market.Track) error {
	tv.rememberTrack(t.ID)
	tv.parent.tracks[t.ID] = t
	return nil
}

func (tv *txMemoryView) UpdateListing(_ context.Context, id market.TrackID, upd market.TrackUpdate) error {
	tv.rememberTrack(id)
	return tv.parent.updateListingLocked(id, upd)
}

func (tv *txMemoryView) DeleteTrack(_ context.Context, id market.TrackID) error {
	tv.rememberTrack(id)
	delete(tv.parent.tracks, id)
	return nil
}

func (tv *txMemoryView) IncrementDownloads(_ context.Context, id market.TrackID) (int64, error) {
	tv.rememberTrack(id)
	return tv.parent.incrementLocked(id)
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e market.LedgerEntry) error {
	m := tv.parent
	n := len(m.entries)
	tv.undo = append(tv.undo, func() { m.entries = m.entries[:n] })
	m.entries = append(m.entries, e)
	return nil
}

func (tv *txMemoryView) EntriesByArtist(_ context.Context, artistID market.AccountID) ([]market.LedgerEntry, error) {
	return tv.parent.filterLocked(func(e market.LedgerEntry) bool { return e.ArtistID == artistID }), nil
}

func (tv *txMemoryView) EntriesByFan(_ context.Context, fanID market.AccountID) ([]market.LedgerEntry, error) {
	return tv.parent.filterLocked(func(e market.LedgerEntry) bool { return e.FanID == fanID }), nil
}

func (tv *txMemoryView) EntriesByTrack(_ context.Context, trackID market.TrackID) ([]market.LedgerEntry, error) {
	return tv.parent.filterLocked(func(e market.LedgerEntry) bool { return e.TrackID == trackID }), nil
}

func (tv *txMemoryView) HasEntry(_ context.Context, fanID market.AccountID, trackID market.TrackID) (bool, error) {
	return tv.parent.hasEntryLocked(fanID, trackID), nil
}

func (tv *txMemoryView) SavePlaylist(_ context.Context, p market.Playlist) error {
	tv.rememberPlaylist(p.ID)
	tv.parent.playlists[p.ID] = clonePlaylist(p)
	return nil
}

func (tv *txMemoryView) GetPlaylist(_ context.Context, id market.PlaylistID) (*market.Playlist, error) {
	return tv.parent.getPlaylistLocked(id), nil
}

func (tv *txMemoryView) ListPlaylists(_ context.Context, fanID market.AccountID) ([]market.Playlist, error) {
	return tv.parent.listPlaylistsLocked(fanID), nil
}

func (tv *txMemoryView) DeletePlaylist(_ context.Context, id market.PlaylistID) error {
	tv.rememberPlaylist(id)
	delete(tv.parent.playlists, id)
	return nil
}

var (
	_ market.TxStore = (*TxMemory)(nil)
	_ market.Store   = (*txMemoryView)(nil)
)
