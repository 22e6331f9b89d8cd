// Package api exposes the HTTP interface for the catalog crawler service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/playdex/catalog-crawler/internal/catalog"
	"github.com/playdex/catalog-crawler/internal/metrics"
	"github.com/playdex/catalog-crawler/internal/middleware"
	"github.com/playdex/catalog-crawler/internal/service"
)

const requestTimeout = 60 * time.Second

// Server wires HTTP handlers to the service layer and stores.
type Server struct {
	router  chi.Router
	svc     *service.Service
	sources catalog.SourceStore
	games   catalog.GameStore
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	svc *service.Service,
	sources catalog.SourceStore,
	games catalog.GameStore,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:     svc,
		sources: sources,
		games:   games,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawls", s.startCrawl)
		r.Post("/crawls/all", s.crawlAll)

		r.Get("/sources", s.listSources)

		r.Route("/jobs/{job_id}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Get("/errors", s.listJobErrors)
			r.Post("/cancel", s.cancelJob)
		})

		r.Get("/games", s.listGames)
		r.Route("/games/{game_id}", func(r chi.Router) {
			r.Get("/", s.getGame)
			r.Get("/image", s.getGameImage)
		})

		r.Post("/images/verify", s.verifyImages)
		r.Post("/maintenance/sweep", s.sweepJobs)
		r.Post("/maintenance/dedupe", s.dedupeGames)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sources.ListActiveSources(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
