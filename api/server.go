/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (method, path, status, duration, id)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web client
  5. Auth:       Bearer token identity (anonymous when absent)

ROUTE GROUPS:
  /healthz              Liveness + store ping
  /api/tiers            Support tiers
  /api/tracks/*         Catalog, support, access
  /api/me/*             Caller's library and playlists
  /api/playlists/*      Playlist management
  /api/artists/*        Artist profile and dashboard
  /api/demo/seed        Demo data (only when a Seeder is configured)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Identity middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(auth.Middleware)

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tiers", h.ListTiers)

		// Catalog routes
		r.Route("/tracks", func(r chi.Router) {
			r.Get("/", h.ListTracks)
			r.Post("/", h.UploadTrack)
			r.Get("/{id}", h.GetTrack)
			r.Patch("/{id}", h.UpdateTrack)
			r.Delete("/{id}", h.DeleteTrack)
			r.Post("/{id}/support", h.SupportTrack)
			r.Get("/{id}/access", h.TrackAccess)
		})

		// Caller routes
		r.Route("/me", func(r chi.Router) {
			r.Get("/library", h.MyLibrary)
			r.Get("/playlists", h.MyPlaylists)
		})

		// Playlist routes
		r.Route("/playlists", func(r chi.Router) {
			r.Post("/", h.CreatePlaylist)
			r.Get("/{id}", h.GetPlaylist)
			r.Patch("/{id}", h.RenamePlaylist)
			r.Delete("/{id}", h.DeletePlaylist)
			r.Post("/{id}/tracks", h.AddPlaylistTrack)
			r.Delete("/{id}/tracks/{trackID}", h.RemovePlaylistTrack)
			r.Put("/{id}/order", h.ReorderPlaylist)
		})

		r.Get("/artists/{id}", h.GetArtist)
		r.Get("/artists/{id}/stats", h.ArtistStats)

		r.Post("/demo/seed", h.SeedDemo)
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
