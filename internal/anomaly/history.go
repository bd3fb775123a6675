// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package anomaly

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/geoip"
	"github.com/tomtom215/fraudguard/internal/logging"
	"github.com/tomtom215/fraudguard/internal/models"
	"github.com/tomtom215/fraudguard/internal/pattern"
)

// LoginStore is the read surface the on-demand path needs.
// Implemented by *database.DB.
type LoginStore interface {
	RecentLoginEvents(ctx context.Context, userID string, limit int) ([]models.LoginEvent, error)
}

// ScoredLogin pairs a login event with its anomaly assessment.
type ScoredLogin struct {
	Event models.LoginEvent `json:"event"`
	Score Score             `json:"score"`
}

// UserAnomalies is the on-demand response for one user: the learned baseline
// plus every recent login scored in chronological order.
type UserAnomalies struct {
	UserID string `json:"user_id"`

	// InsufficientHistory is true when fewer than the minimum resolved
	// logins exist; Pattern is nil and no login carries a score then.
	InsufficientHistory bool `json:"insufficient_history"`

	Pattern *pattern.Pattern `json:"pattern,omitempty"`
	Logins  []ScoredLogin    `json:"logins"`
}

// History serves the on-demand per-user path: fetch recent logins, backfill
// unresolved locations through a per-request geolocation memoizer, learn the
// baseline, and score each event against its predecessor.
type History struct {
	cfg      config.RiskConfig
	store    LoginStore
	resolver geoip.LocationResolver
	scorer   *Scorer
}

// NewHistory creates the on-demand service. resolver may be nil, in which
// case unresolved locations stay unknown.
func NewHistory(cfg config.RiskConfig, store LoginStore, resolver geoip.LocationResolver) *History {
	return &History{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		scorer:   NewScorer(cfg),
	}
}

// ForUser computes the scored login history for one user.
//
// Insufficient history is a valid answer, not an error: the response flags it
// and carries the unscored events for display. A geolocation failure degrades
// the affected event to unknown location and never fails the request.
func (h *History) ForUser(ctx context.Context, userID string) (*UserAnomalies, error) {
	events, err := h.store.RecentLoginEvents(ctx, userID, h.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("fetch login history for %s: %w", userID, err)
	}

	h.backfillLocations(ctx, events)

	result := &UserAnomalies{
		UserID: userID,
		Logins: make([]ScoredLogin, 0, len(events)),
	}

	p, err := pattern.Learn(events, h.cfg.MinHistory)
	if err != nil {
		if !errors.Is(err, pattern.ErrInsufficientHistory) {
			return nil, fmt.Errorf("learn pattern for %s: %w", userID, err)
		}
		// Thin data: display the events, score nothing.
		result.InsufficientHistory = true
		for i := range events {
			result.Logins = append(result.Logins, ScoredLogin{Event: events[i]})
		}
		return result, nil
	}
	result.Pattern = p

	var previous *models.LoginEvent
	for i := range events {
		event := &events[i]
		score := h.scorer.Score(event, previous, p)
		result.Logins = append(result.Logins, ScoredLogin{Event: *event, Score: score})
		previous = event
	}
	return result, nil
}

// backfillLocations resolves locations for events stored without one. The
// same IP repeats across a login history, so resolution goes through a
// per-request memoizer.
func (h *History) backfillLocations(ctx context.Context, events []models.LoginEvent) {
	if h.resolver == nil {
		return
	}
	memo := geoip.NewMemoizer(h.resolver)

	for i := range events {
		e := &events[i]
		if e.Location.Known() {
			continue
		}
		loc, err := memo.Resolve(ctx, e.IPAddress)
		if err != nil {
			logging.Debug().Err(err).Str("ip", e.IPAddress).Msg("location backfill failed")
			continue
		}
		if loc != nil && loc.Known() {
			e.Location = loc
		}
	}
}
