package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const (
	defaultGameLimit = 50
	maxGameLimit     = 500
)

type crawlRequest struct {
	Source    string `json:"source"`
	ItemLimit int    `json:"item_limit"`
	Async     bool   `json:"async"`
}

type crawlAllRequest struct {
	ItemLimit int `json:"item_limit"`
}

// startCrawl handles POST /v1/crawls. With "async": true the job is launched
// in the background and the running row returned immediately; otherwise the
// call blocks until the job reaches a terminal state.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" {
		writeError(w, http.StatusBadRequest, "missing source name")
		return
	}

	src, err := s.sources.GetSourceByName(r.Context(), req.Source)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		s.logger.Error("load source failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load source")
		return
	}

	if req.Async {
		job, err := s.svc.StartCrawl(r.Context(), src.ID, req.ItemLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
		return
	}

	job, err := s.svc.RunCrawl(r.Context(), src.ID, req.ItemLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// crawlAll handles POST /v1/crawls/all: a synchronous pass over every active
// source. Individual source failures are reported alongside the jobs that did
// run.
func (s *Server) crawlAll(w http.ResponseWriter, r *http.Request) {
	var req crawlAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	jobs, err := s.svc.RunAllCrawls(r.Context(), req.ItemLimit)
	if err != nil && len(jobs) == 0 {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"jobs": jobs}
	if err != nil {
		resp["failed"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.ListActiveSources(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) listJobErrors(w http.ResponseWriter, r *http.Request) {
	jobErrs, err := s.svc.ListJobErrors(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("list job errors failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list job errors")
		return
	}
	if jobErrs == nil {
		jobErrs = []catalog.JobError{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": jobErrs})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	err := s.svc.CancelJob(r.Context(), jobID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancelling"})
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	default:
		writeError(w, http.StatusConflict, err.Error())
	}
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultGameLimit, maxGameLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	games, err := s.games.ListGames(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list games failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}
	if games == nil {
		games = []catalog.Game{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	id, err := parseGameID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := s.games.GetGame(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		s.logger.Error("get game failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"game": g})
}

// getGameImage handles GET /v1/games/{game_id}/image?refresh=. Without
// refresh it serves whatever the cache holds; with refresh=true it runs the
// resolver chain first.
func (s *Server) getGameImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseGameID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"

	url, err := s.svc.BestImageURL(r.Context(), id, refresh)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		s.logger.Error("resolve game image failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve image")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"game_id": id, "url": url})
}

func (s *Server) verifyImages(w http.ResponseWriter, r *http.Request) {
	verified, unverified, err := s.svc.VerifyImages(r.Context())
	if err != nil {
		s.logger.Error("image verification pass failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "verification pass failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"verified": verified, "unverified": unverified})
}

func (s *Server) sweepJobs(w http.ResponseWriter, r *http.Request) {
	removed, err := s.svc.SweepJobs(r.Context())
	if err != nil {
		s.logger.Error("job sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "job sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) dedupeGames(w http.ResponseWriter, r *http.Request) {
	removed, err := s.svc.DedupeGames(r.Context())
	if err != nil {
		s.logger.Error("dedupe failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "dedupe failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func parseGameID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "game_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid game_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
