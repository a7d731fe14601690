// Package health exposes the ops HTTP endpoints: liveness, storage
// health, aggregate stats, and the active dialog list.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"log/slog"

	"github.com/kuznya/studiobot/core/buildinfo"
	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/logger"
	"github.com/kuznya/studiobot/core/storage"
)

// Server serves the ops endpoints on its own listener, independent of
// the Telegram transport.
type Server struct {
	registry *dialog.Registry
	store    storage.Store
	srv      *http.Server
	started  time.Time
}

// NewServer builds the ops server bound to listen.
func NewServer(listen string, registry *dialog.Registry, store storage.Store) *Server {
	s := &Server{
		registry: registry,
		store:    store,
		started:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/", s.handleRoot)
	r.Get("/ping", s.handlePing)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/dialogs", s.handleDialogs)

	s.srv = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logger.HTTP.Info("ops server listening",
		slog.String("event", "http.start"),
		slog.String("listen", s.srv.Addr),
	)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":        "studiobot",
		"status":         "ok",
		"version":        buildinfo.Version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// A cheap read verifies the store is reachable.
	if _, _, err := s.store.Get(r.Context(), "health:probe"); err != nil {
		logger.HTTP.Error("storage probe failed",
			slog.String("event", "http.health"),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "degraded",
			"storage": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"storage": "ok",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDialogs(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.registry.ActiveSessions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "dialogs unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(sessions),
		"dialogs": sessions,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
