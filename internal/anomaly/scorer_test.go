// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package anomaly

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/models"
	"github.com/tomtom215/fraudguard/internal/pattern"
)

var (
	madrid = models.Location{City: "Madrid", Country: "ES", Latitude: 40.4168, Longitude: -3.7038}
	tokyo  = models.Location{City: "Tokyo", Country: "JP", Latitude: 35.6762, Longitude: 139.6503}
	paris  = models.Location{City: "Paris", Country: "FR", Latitude: 48.8566, Longitude: 2.3522}
)

func event(id string, loc models.Location, at time.Time, ua string) *models.LoginEvent {
	locCopy := loc
	return &models.LoginEvent{
		ID:        id,
		UserID:    "user-1",
		Timestamp: at,
		IPAddress: "203.0.113.10",
		UserAgent: ua,
		Location:  &locCopy,
	}
}

func baselinePattern() *pattern.Pattern {
	return &pattern.Pattern{
		HomeLocations: []pattern.CountryFrequency{
			{Country: "ES", Count: 9, Frequency: 0.9},
			{Country: "FR", Count: 1, Frequency: 0.1},
		},
		LocationConsistency: 0.9,
		DominantDevice:      "Chrome/Windows",
		DeviceConsistency:   0.9,
		ResolvedLogins:      10,
		TotalLogins:         10,
	}
}

const uaChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const uaFirefox = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm                 float64
		tolerance              float64
	}{
		{"same point", 40.0, -3.0, 40.0, -3.0, 0, 0.001},
		{"madrid to tokyo", madrid.Latitude, madrid.Longitude, tokyo.Latitude, tokyo.Longitude, 10790, 50},
		{"madrid to paris", madrid.Latitude, madrid.Longitude, paris.Latitude, paris.Longitude, 1053, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("haversineDistance = %.1f km, want %.1f +/- %.1f", got, tt.wantKm, tt.tolerance)
			}

			// Symmetry: distance A->B equals B->A.
			reverse := haversineDistance(tt.lat2, tt.lon2, tt.lat1, tt.lon1)
			if math.Abs(got-reverse) > 1e-9 {
				t.Errorf("haversineDistance is asymmetric: %v vs %v", got, reverse)
			}
		})
	}
}

func TestScoreImpossibleTravel(t *testing.T) {
	scorer := NewScorer(config.DefaultRiskConfig())
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	p := baselinePattern()

	tests := []struct {
		name           string
		previous       *models.LoginEvent
		current        *models.LoginEvent
		wantImpossible bool
	}{
		{
			name:           "madrid to tokyo in one hour exceeds 900 km/h",
			previous:       event("prev", madrid, base, uaChrome),
			current:        event("cur", tokyo, base.Add(time.Hour), uaChrome),
			wantImpossible: true,
		},
		{
			name:           "madrid to tokyo in fourteen hours is a flight",
			previous:       event("prev", madrid, base, uaChrome),
			current:        event("cur", tokyo, base.Add(14*time.Hour), uaChrome),
			wantImpossible: false,
		},
		{
			name:           "no previous event",
			previous:       nil,
			current:        event("cur", tokyo, base.Add(time.Hour), uaChrome),
			wantImpossible: false,
		},
		{
			name: "previous location unknown",
			previous: &models.LoginEvent{
				ID: "prev", UserID: "user-1", Timestamp: base,
				IPAddress: "10.0.0.1", UserAgent: uaChrome,
			},
			current:        event("cur", tokyo, base.Add(time.Hour), uaChrome),
			wantImpossible: false,
		},
		{
			name:           "zero elapsed time skips the check",
			previous:       event("prev", madrid, base, uaChrome),
			current:        event("cur", tokyo, base, uaChrome),
			wantImpossible: false,
		},
		{
			name:           "negative elapsed time skips the check",
			previous:       event("prev", madrid, base, uaChrome),
			current:        event("cur", tokyo, base.Add(-time.Hour), uaChrome),
			wantImpossible: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := scorer.Score(tt.current, tt.previous, p)
			if score.IsImpossibleTravel != tt.wantImpossible {
				t.Errorf("IsImpossibleTravel = %v, want %v (reasons: %v)",
					score.IsImpossibleTravel, tt.wantImpossible, score.Reasons)
			}
			if tt.wantImpossible && score.Overall < 50 {
				t.Errorf("Overall = %d, want >= 50 when impossible travel fires", score.Overall)
			}
		})
	}
}

func TestScoreLocationRarity(t *testing.T) {
	scorer := NewScorer(config.DefaultRiskConfig())
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	p := baselinePattern()

	t.Run("rare country below cutoff fires", func(t *testing.T) {
		score := scorer.Score(event("cur", tokyo, base, uaChrome), nil, p)
		if score.Overall != 25 {
			t.Errorf("Overall = %d, want 25 for rare-location only", score.Overall)
		}
		if len(score.Reasons) != 1 || !strings.Contains(score.Reasons[0], "rare location") {
			t.Errorf("Reasons = %v, want one rare-location reason", score.Reasons)
		}
	})

	t.Run("home country never fires", func(t *testing.T) {
		score := scorer.Score(event("cur", madrid, base, uaChrome), nil, p)
		if score.Overall != 0 {
			t.Errorf("Overall = %d, want 0 for home-country login", score.Overall)
		}
	})

	t.Run("frequency at the cutoff does not fire", func(t *testing.T) {
		// FR sits at exactly 10%; raise it to the 20% cutoff.
		atCutoff := baselinePattern()
		atCutoff.HomeLocations[1].Frequency = 0.20
		score := scorer.Score(event("cur", paris, base, uaChrome), nil, atCutoff)
		if score.Overall != 0 {
			t.Errorf("Overall = %d, want 0 at the rarity cutoff", score.Overall)
		}
	})

	t.Run("nil pattern is skipped", func(t *testing.T) {
		score := scorer.Score(event("cur", tokyo, base, uaChrome), nil, nil)
		if score.Overall != 0 {
			t.Errorf("Overall = %d, want 0 with no baseline", score.Overall)
		}
	})
}

func TestScoreDeviceMismatch(t *testing.T) {
	scorer := NewScorer(config.DefaultRiskConfig())
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	p := baselinePattern()

	score := scorer.Score(event("cur", madrid, base, uaFirefox), nil, p)
	if score.Overall != 15 {
		t.Errorf("Overall = %d, want 15 for device mismatch only", score.Overall)
	}

	score = scorer.Score(event("cur", madrid, base, uaChrome), nil, p)
	if score.Overall != 0 {
		t.Errorf("Overall = %d, want 0 for dominant device", score.Overall)
	}
}

func TestScoreAdditiveAndClamped(t *testing.T) {
	cfg := config.DefaultRiskConfig()
	cfg.ImpossibleTravelWeight = 60
	cfg.RareLocationWeight = 30
	cfg.DeviceMismatchWeight = 30
	scorer := NewScorer(cfg)
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	p := baselinePattern()

	// All three checks fire: 60+30+30 clamps to 100.
	previous := event("prev", madrid, base, uaChrome)
	current := event("cur", tokyo, base.Add(time.Hour), uaFirefox)
	score := scorer.Score(current, previous, p)

	if score.Overall != 100 {
		t.Errorf("Overall = %d, want clamp at 100", score.Overall)
	}
	if len(score.Reasons) != 3 {
		t.Errorf("len(Reasons) = %d, want 3: %v", len(score.Reasons), score.Reasons)
	}
}

func TestScoreDeterministic(t *testing.T) {
	scorer := NewScorer(config.DefaultRiskConfig())
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	p := baselinePattern()
	previous := event("prev", madrid, base, uaChrome)
	current := event("cur", tokyo, base.Add(time.Hour), uaFirefox)

	first := scorer.Score(current, previous, p)
	for i := 0; i < 50; i++ {
		if got := scorer.Score(current, previous, p); !reflect.DeepEqual(got, first) {
			t.Fatalf("Score is not deterministic: %+v vs %+v", got, first)
		}
	}
}
