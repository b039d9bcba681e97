package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kkanellis/MLOS/internal/storage"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
)

// HTTPServer exposes experiments and trials read-only.
type HTTPServer struct {
	mux   *http.ServeMux
	store storage.Storage
}

func NewHTTPServer(store storage.Storage) *HTTPServer {
	s := &HTTPServer{
		mux:   http.NewServeMux(),
		store: store,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/experiments", s.handleExperiments)
	s.mux.HandleFunc("/v1/experiments/", s.handleExperimentByID)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleExperiments handles GET /v1/experiments
func (s *HTTPServer) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	exps, err := s.store.ListExperiments(r.Context())
	if err != nil {
		logger.Error("failed to list experiments", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list experiments")
		return
	}
	out := make([]map[string]any, 0, len(exps))
	for _, exp := range exps {
		out = append(out, convertExperimentToJSON(exp))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"experiments": out})
}

// handleExperimentByID handles /v1/experiments/{id} and /v1/experiments/{id}/trials
func (s *HTTPServer) handleExperimentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/experiments/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "experiment ID is required")
		return
	}

	if strings.HasSuffix(path, "/trials") {
		s.handleListTrials(w, r, strings.TrimSuffix(path, "/trials"))
		return
	}
	if strings.Contains(path, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.handleGetExperiment(w, r, path)
}

// handleGetExperiment handles GET /v1/experiments/{id}
func (s *HTTPServer) handleGetExperiment(w http.ResponseWriter, r *http.Request, id string) {
	exp, ok := s.lookup(w, r, id)
	if !ok {
		return
	}
	trials, err := exp.Trials(r.Context())
	if err != nil {
		logger.Error("failed to load trials", "experiment_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load trials")
		return
	}

	info := exp.Info()
	var counts models.StatusCounter
	var best *models.Trial
	for i := range trials {
		tr := &trials[i]
		counts.Add(tr.Status)
		score, ok := tr.Score(info.Target)
		if !ok || !tr.Status.IsSucceeded() {
			continue
		}
		if best == nil || better(info.Direction, score, best.Results[info.Target]) {
			best = tr
		}
	}

	resp := map[string]any{
		"experiment": convertExperimentToJSON(info),
		"trials":     len(trials),
		"status":     counts.Snapshot(),
	}
	if best != nil {
		resp["best_trial"] = convertTrialToJSON(best)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleListTrials handles GET /v1/experiments/{id}/trials with pagination
// and status filtering
func (s *HTTPServer) handleListTrials(w http.ResponseWriter, r *http.Request, id string) {
	exp, ok := s.lookup(w, r, id)
	if !ok {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, 1000)
		}
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	var filter *models.Status
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		st, err := models.ParseStatus(statusStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter = &st
	}

	trials, err := exp.Trials(r.Context())
	if err != nil {
		logger.Error("failed to load trials", "experiment_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load trials")
		return
	}

	out := make([]map[string]any, 0, limit)
	matched := 0
	for i := range trials {
		if filter != nil && trials[i].Status != *filter {
			continue
		}
		matched++
		if matched <= offset || len(out) >= limit {
			continue
		}
		out = append(out, convertTrialToJSON(&trials[i]))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"trials": out,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(out),
			"total":  matched,
		},
	})
}

func (s *HTTPServer) lookup(w http.ResponseWriter, r *http.Request, id string) (storage.Experiment, bool) {
	exp, err := s.store.GetExperiment(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "experiment not found")
		return nil, false
	}
	if err != nil {
		logger.Error("failed to load experiment", "experiment_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load experiment")
		return nil, false
	}
	return exp, true
}

func better(direction string, a, b float64) bool {
	if direction == "max" {
		return a > b
	}
	return a < b
}

// Helper functions

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

func convertExperimentToJSON(exp models.Experiment) map[string]any {
	return map[string]any{
		"id":                     exp.ID,
		"description":            exp.Description,
		"root_env":               exp.RootEnv,
		"optimization_target":    exp.Target,
		"optimization_direction": exp.Direction,
		"created_at":             exp.CreatedAt.Format(time.RFC3339),
	}
}

func convertTrialToJSON(tr *models.Trial) map[string]any {
	out := map[string]any{
		"trial_id":    tr.TrialID,
		"config_id":   tr.ConfigID,
		"config_hash": tr.ConfigHash,
		"status":      tr.Status.String(),
		"ts_start":    tr.TsStart.Format(time.RFC3339Nano),
		"config":      tr.Config,
	}
	if tr.TsEnd != nil {
		out["ts_end"] = tr.TsEnd.Format(time.RFC3339Nano)
	}
	if len(tr.Params) > 0 {
		out["params"] = tr.Params
	}
	if len(tr.Results) > 0 {
		out["results"] = tr.Results
	}
	return out
}
