package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/warp/fanfund/market"
	"github.com/warp/fanfund/market/store"
)

const testSecret = "test-secret"

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testAPI struct {
	store   *store.TxMemory
	handler *Handler
	auth    *Authenticator
	router  *chi.Mux
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mem := store.NewTxMemory()
	h := NewHandler(mem, nil, market.DefaultCurrency, nil)
	clock := func() time.Time { return testNow }
	h.Now = clock
	h.Ledger.Now = clock
	h.Catalog.Now = clock
	h.Playlists.Now = clock
	h.Health = mem

	auth := NewAuthenticator(testSecret, nil)
	return &testAPI{store: mem, handler: h, auth: auth, router: NewRouter(h, auth)}
}

func (a *testAPI) token(t *testing.T, id, name, role string) string {
	t.Helper()
	tok, err := a.auth.Issue(Identity{ID: market.AccountID(id), Name: name, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) addTrack(t *testing.T, id, artist string, price int64) {
	t.Helper()
	require.NoError(t, a.store.SaveTrack(context.Background(), market.Track{
		ID:         market.TrackID(id),
		Title:      "Title " + id,
		ArtistID:   market.AccountID(artist),
		ArtistName: "Name " + artist,
		Price:      market.Money(price),
		Duration:   200,
		Genre:      "Afrobeat",
		ReleasedAt: testNow.Add(-time.Hour),
	}))
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}
