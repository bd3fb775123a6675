// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package anomaly scores a single login event against the user's learned
// baseline and the immediately preceding login.
//
// Scoring is deterministic and pure: identical inputs always produce the
// identical Score, with no randomness and no external calls. Each check can
// only add to the overall score (monotonicity), and the sum is clamped to
// [0,100].
package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/models"
	"github.com/tomtom215/fraudguard/internal/pattern"
)

// Score is the anomaly assessment for one login event, computed relative to
// the previous login of the same user in chronological order.
type Score struct {
	LoginEventID       string   `json:"login_event_id"`
	Overall            int      `json:"overall"`
	IsImpossibleTravel bool     `json:"is_impossible_travel"`
	Reasons            []string `json:"reasons,omitempty"`
}

// Scorer evaluates login events using weights from a versioned RiskConfig.
type Scorer struct {
	cfg config.RiskConfig
}

// NewScorer creates a scorer with the given weight set.
func NewScorer(cfg config.RiskConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score evaluates one login event. previous may be nil for a user's first
// event; the baseline must come from pattern.Learn over the same user's
// history (callers skip scoring entirely on ErrInsufficientHistory).
//
// Checks run in a fixed order, each contributing independently to Reasons
// and to Overall:
//  1. impossible travel (high weight)
//  2. location rarity (medium weight)
//  3. device mismatch (low weight)
func (s *Scorer) Score(event *models.LoginEvent, previous *models.LoginEvent, p *pattern.Pattern) Score {
	score := Score{LoginEventID: event.ID}

	s.checkImpossibleTravel(&score, event, previous)
	s.checkLocationRarity(&score, event, p)
	s.checkDeviceMismatch(&score, event, p)

	if score.Overall > 100 {
		score.Overall = 100
	}
	return score
}

// checkImpossibleTravel flags transitions whose required travel speed
// exceeds the configured maximum (default 900 km/h, commercial flight).
//
// Guard: non-positive elapsed time (clock skew, duplicate timestamps) skips
// the check entirely rather than dividing by zero or a negative.
func (s *Scorer) checkImpossibleTravel(score *Score, event, previous *models.LoginEvent) {
	if previous == nil {
		return
	}
	if !event.Location.Known() || !previous.Location.Known() {
		return
	}

	elapsedHours := event.Timestamp.Sub(previous.Timestamp).Hours()
	if elapsedHours <= 0 {
		return
	}

	distanceKm := haversineDistance(
		previous.Location.Latitude, previous.Location.Longitude,
		event.Location.Latitude, event.Location.Longitude,
	)

	requiredSpeedKmH := distanceKm / elapsedHours
	if requiredSpeedKmH <= s.cfg.MaxTravelSpeedKmH {
		return
	}

	score.IsImpossibleTravel = true
	score.Overall += s.cfg.ImpossibleTravelWeight
	score.Reasons = append(score.Reasons, fmt.Sprintf(
		"Impossible travel: %s to %s, %.0f km in %s (would require %.0f km/h)",
		previous.Location.String(),
		event.Location.String(),
		distanceKm,
		formatElapsed(elapsedHours),
		requiredSpeedKmH,
	))
}

// checkLocationRarity flags logins from a non-home country whose historical
// frequency is below the rarity cutoff (default 20% of resolved logins).
func (s *Scorer) checkLocationRarity(score *Score, event *models.LoginEvent, p *pattern.Pattern) {
	if p == nil || !event.Location.Known() || event.Location.Country == "" {
		return
	}

	home := p.HomeCountry()
	if home == "" || event.Location.Country == home {
		return
	}

	freq := p.CountryFrequencyOf(event.Location.Country)
	if freq >= s.cfg.RareLocationFrequency {
		return
	}

	score.Overall += s.cfg.RareLocationWeight
	score.Reasons = append(score.Reasons, fmt.Sprintf(
		"Login from rare location: %s (seen in %.0f%% of history, home is %s)",
		event.Location.Country, freq*100, home,
	))
}

// checkDeviceMismatch flags logins whose normalized device signature differs
// from the dominant one in the baseline.
func (s *Scorer) checkDeviceMismatch(score *Score, event *models.LoginEvent, p *pattern.Pattern) {
	if p == nil || p.DominantDevice == "" {
		return
	}

	sig := pattern.DeviceSignature(event.UserAgent)
	if sig == p.DominantDevice {
		return
	}

	score.Overall += s.cfg.DeviceMismatchWeight
	score.Reasons = append(score.Reasons, fmt.Sprintf(
		"Device signature %s differs from usual %s", sig, p.DominantDevice,
	))
}

// haversineDistance calculates the great-circle distance between two points
// on Earth using the Haversine formula. Returns distance in kilometers.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// formatElapsed renders an hour count compactly for reason strings.
func formatElapsed(hours float64) string {
	d := time.Duration(hours * float64(time.Hour))
	if d < time.Hour {
		return fmt.Sprintf("%.0f minutes", d.Minutes())
	}
	return fmt.Sprintf("%.1f hours", hours)
}
