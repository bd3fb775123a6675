// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fraudguard/internal/anomaly"
	"github.com/tomtom215/fraudguard/internal/logging"
	"github.com/tomtom215/fraudguard/internal/risk"
)

// BatchRunner triggers and reports batch risk evaluation.
// Implemented by *risk.Runner.
type BatchRunner interface {
	Run(ctx context.Context) (*risk.Summary, error)
	LastSummary() *risk.Summary
}

// AnomalyHistory serves the on-demand per-user anomaly path.
// Implemented by *anomaly.History.
type AnomalyHistory interface {
	ForUser(ctx context.Context, userID string) (*anomaly.UserAnomalies, error)
}

// Pinger reports store health. Implemented by *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the HTTP API.
type Handler struct {
	db      Pinger
	runner  BatchRunner
	history AnomalyHistory
	version string
	started time.Time
}

// NewHandler creates the API handler set.
func NewHandler(db Pinger, runner BatchRunner, history AnomalyHistory, version string) *Handler {
	return &Handler{
		db:      db,
		runner:  runner,
		history: history,
		version: version,
		started: time.Now(),
	}
}

// HealthLive reports process liveness. Always 200 once the server is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// HealthReady reports readiness: the database must answer a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("readiness check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// RiskRun triggers a batch evaluation and returns its summary. A run already
// in progress answers 409 rather than queueing a second one.
func (h *Handler) RiskRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.Run(r.Context())
	if err != nil {
		if errors.Is(err, risk.ErrRunInProgress) {
			respondError(w, http.StatusConflict, "a batch run is already in progress")
			return
		}
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("batch run failed")
		respondError(w, http.StatusInternalServerError, "batch run failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// RiskSignals returns the summary of the most recent completed batch run,
// including the surfaced risk-signal preview.
func (h *Handler) RiskSignals(w http.ResponseWriter, r *http.Request) {
	summary := h.runner.LastSummary()
	if summary == nil {
		respondError(w, http.StatusNotFound, "no batch run has completed yet")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// UserAnomalies returns the scored login history for one user.
func (h *Handler) UserAnomalies(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userID is required")
		return
	}

	result, err := h.history.ForUser(r.Context(), userID)
	if err != nil {
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Str("user_id", userID).Msg("anomaly history failed")
		respondError(w, http.StatusInternalServerError, "failed to compute anomaly history")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
