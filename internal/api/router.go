package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/drivestream/internal/api/handler"
	mw "github.com/iconidentify/drivestream/internal/api/middleware"
	"github.com/iconidentify/drivestream/internal/metrics"
)

// Paths served by the stream handler.
const (
	StreamPath      = "/api/stream"
	StreamAliasPath = "/stream"
)

// NewRouter creates the HTTP router with all routes configured. When apiKey
// is empty the stream and stats endpoints are public.
func NewRouter(
	streamHandler *handler.StreamHandler,
	healthHandler *handler.HealthHandler,
	m *metrics.Metrics,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics(m))

	// CORS for browser players; answers every preflight
	r.Use(mw.CORS)

	// Health and metrics (no auth)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/health", healthHandler.Live)
		r.Get("/ready", healthHandler.Ready)
		r.Handle("/metrics", m.Handler())
	})

	// Streams run as long as the client keeps reading, so no request timeout
	r.Group(func(r chi.Router) {
		if apiKey != "" {
			r.Use(mw.APIKeyAuth(apiKey))
		}
		for _, path := range []string{StreamPath, StreamAliasPath} {
			r.Get(path, streamHandler.Stream)
			r.Head(path, streamHandler.Stream)
		}
	})

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if apiKey != "" {
			r.Use(mw.APIKeyAuth(apiKey))
		}
		r.Use(middleware.Timeout(30 * time.Second))

		// Process stats
		r.Get("/stats", healthHandler.Stats)
	})

	return r
}
