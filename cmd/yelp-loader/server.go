package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/yelp-loader/pkg/metrics"
	"github.com/Sternrassler/yelp-loader/pkg/quota"
	"github.com/Sternrassler/yelp-loader/pkg/runlog"
)

// quotaStaleAfter is how old an observed quota may be before /quota
// flags it. Quota headers arrive with every API response.
const quotaStaleAfter = time.Hour

// runner executes one search. *pipeline.Pipeline implements it.
type runner interface {
	Run(ctx context.Context, term, location string) (*runlog.Record, error)
}

// runHistory reads recorded runs. *runlog.Store implements it.
type runHistory interface {
	Get(ctx context.Context, id string) (*runlog.Record, error)
	Latest(ctx context.Context, term, location string) (*runlog.Record, error)
}

// quotaReader reports the last observed daily quota. *quota.Tracker implements it.
type quotaReader interface {
	GetState(ctx context.Context) (*quota.State, error)
}

type server struct {
	runner  runner
	history runHistory
	quota   quotaReader
	ping    func(ctx context.Context) error
}

// newServer creates the HTTP API. history may be nil when runs are not
// recorded, and q may be nil when quota is not tracked.
func newServer(r runner, h runHistory, q quotaReader, ping func(ctx context.Context) error) *server {
	return &server{runner: r, history: h, quota: q, ping: ping}
}

func (s *server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/quota", s.handleQuota)

	r.Post("/runs", s.handleCreateRun)
	r.Get("/runs/latest", s.handleLatestRun)
	r.Get("/runs/{id}", s.handleGetRun)

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.ping != nil {
		if err := s.ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term     string `json:"term"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		respondError(w, http.StatusBadRequest, "location is required", nil)
		return
	}

	rec, err := s.runner.Run(r.Context(), req.Term, req.Location)
	if err != nil {
		status := http.StatusBadGateway
		if rec == nil {
			status = http.StatusBadRequest
		}
		respondJSON(w, status, map[string]any{
			"error": err.Error(),
			"run":   rec,
		})
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "run history is disabled (no redis configured)", nil)
		return
	}

	term := r.URL.Query().Get("term")
	location := r.URL.Query().Get("location")
	if location == "" {
		respondError(w, http.StatusBadRequest, "location is required", nil)
		return
	}

	rec, err := s.history.Latest(r.Context(), term, location)
	if errors.Is(err, runlog.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no run recorded for this search", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read run history", err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "run history is disabled (no redis configured)", nil)
		return
	}

	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, runlog.ErrNotFound) {
		respondError(w, http.StatusNotFound, "run not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read run history", err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

type quotaResponse struct {
	*quota.State
	UsedFraction float64 `json:"used_fraction"`
	Stale        bool    `json:"stale"`
}

func (s *server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if s.quota == nil {
		respondError(w, http.StatusNotImplemented, "quota tracking is disabled", nil)
		return
	}

	state, err := s.quota.GetState(r.Context())
	if errors.Is(err, quota.ErrNoState) {
		respondError(w, http.StatusNotFound, "no quota observed yet", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read quota", err)
		return
	}

	respondJSON(w, http.StatusOK, quotaResponse{
		State:        state,
		UsedFraction: state.UsedFraction(),
		Stale:        state.IsStale(quotaStaleAfter),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	respondJSON(w, status, body)
}
