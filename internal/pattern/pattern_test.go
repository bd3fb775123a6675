// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package pattern

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/fraudguard/internal/models"
)

const (
	uaChromeWindows  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaChromeWindows2 = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	uaFirefoxLinux   = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
	uaSafariMac      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
)

func loginAt(country string, ua string, offset time.Duration) models.LoginEvent {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	e := models.LoginEvent{
		ID:        fmt.Sprintf("login-%d", offset/time.Hour),
		UserID:    "user-1",
		Timestamp: base.Add(offset),
		IPAddress: "203.0.113.10",
		UserAgent: ua,
	}
	if country != "" {
		e.Location = &models.Location{Country: country, Latitude: 40.0, Longitude: -3.0}
	}
	return e
}

func TestLearnInsufficientHistory(t *testing.T) {
	tests := []struct {
		name       string
		events     []models.LoginEvent
		minHistory int
	}{
		{
			name:       "no events",
			events:     nil,
			minHistory: 3,
		},
		{
			name: "two resolved logins below minimum of three",
			events: []models.LoginEvent{
				loginAt("ES", uaChromeWindows, 0),
				loginAt("ES", uaChromeWindows, time.Hour),
			},
			minHistory: 3,
		},
		{
			name: "unresolved events do not count toward the minimum",
			events: []models.LoginEvent{
				loginAt("ES", uaChromeWindows, 0),
				loginAt("", uaChromeWindows, time.Hour),
				loginAt("", uaChromeWindows, 2*time.Hour),
				loginAt("ES", uaChromeWindows, 3*time.Hour),
			},
			minHistory: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Learn(tt.events, tt.minHistory)
			if !errors.Is(err, ErrInsufficientHistory) {
				t.Fatalf("expected ErrInsufficientHistory, got %v", err)
			}
		})
	}
}

func TestLearnConsistencyRatios(t *testing.T) {
	events := []models.LoginEvent{
		loginAt("ES", uaChromeWindows, 0),
		loginAt("ES", uaChromeWindows2, time.Hour),
		loginAt("ES", uaChromeWindows, 2*time.Hour),
		loginAt("FR", uaFirefoxLinux, 3*time.Hour),
		loginAt("", uaChromeWindows, 4*time.Hour), // unresolved, device only
	}

	p, err := Learn(events, 3)
	if err != nil {
		t.Fatalf("Learn returned error: %v", err)
	}

	if got := p.HomeCountry(); got != "ES" {
		t.Errorf("HomeCountry = %q, want ES", got)
	}
	if p.ResolvedLogins != 4 {
		t.Errorf("ResolvedLogins = %d, want 4", p.ResolvedLogins)
	}
	if p.TotalLogins != 5 {
		t.Errorf("TotalLogins = %d, want 5", p.TotalLogins)
	}
	if want := 3.0 / 4.0; math.Abs(p.LocationConsistency-want) > 1e-9 {
		t.Errorf("LocationConsistency = %v, want %v", p.LocationConsistency, want)
	}

	// Chrome/Windows appears 4 of 5 times (version churn collapses).
	if p.DominantDevice != "Chrome/Windows" {
		t.Errorf("DominantDevice = %q, want Chrome/Windows", p.DominantDevice)
	}
	if want := 4.0 / 5.0; math.Abs(p.DeviceConsistency-want) > 1e-9 {
		t.Errorf("DeviceConsistency = %v, want %v", p.DeviceConsistency, want)
	}

	if got := p.CountryFrequencyOf("FR"); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("CountryFrequencyOf(FR) = %v, want 0.25", got)
	}
	if got := p.CountryFrequencyOf("JP"); got != 0 {
		t.Errorf("CountryFrequencyOf(JP) = %v, want 0", got)
	}
}

func TestLearnTieBreaksKeepFirstSeenOrder(t *testing.T) {
	events := []models.LoginEvent{
		loginAt("DE", uaChromeWindows, 0),
		loginAt("NL", uaChromeWindows, time.Hour),
		loginAt("DE", uaChromeWindows, 2*time.Hour),
		loginAt("NL", uaChromeWindows, 3*time.Hour),
	}

	p, err := Learn(events, 3)
	if err != nil {
		t.Fatalf("Learn returned error: %v", err)
	}

	// Equal counts: DE was seen first, so DE is home.
	if got := p.HomeCountry(); got != "DE" {
		t.Errorf("HomeCountry = %q, want DE (first seen)", got)
	}
	if len(p.HomeLocations) != 2 {
		t.Fatalf("len(HomeLocations) = %d, want 2", len(p.HomeLocations))
	}
	if p.HomeLocations[1].Country != "NL" {
		t.Errorf("second home location = %q, want NL", p.HomeLocations[1].Country)
	}
}

func TestLearnDeterministic(t *testing.T) {
	events := []models.LoginEvent{
		loginAt("ES", uaChromeWindows, 0),
		loginAt("FR", uaFirefoxLinux, time.Hour),
		loginAt("ES", uaChromeWindows, 2*time.Hour),
		loginAt("DE", uaSafariMac, 3*time.Hour),
	}

	first, err := Learn(events, 3)
	if err != nil {
		t.Fatalf("Learn returned error: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Learn(events, 3)
		if err != nil {
			t.Fatalf("Learn returned error on iteration %d: %v", i, err)
		}
		if again.HomeCountry() != first.HomeCountry() ||
			again.DominantDevice != first.DominantDevice ||
			len(again.HomeLocations) != len(first.HomeLocations) {
			t.Fatalf("Learn is not deterministic: %+v vs %+v", again, first)
		}
		for j := range again.HomeLocations {
			if again.HomeLocations[j] != first.HomeLocations[j] {
				t.Fatalf("home location order changed at %d: %+v vs %+v",
					j, again.HomeLocations[j], first.HomeLocations[j])
			}
		}
	}
}

func TestDeviceSignature(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"chrome on windows", uaChromeWindows, "Chrome/Windows"},
		{"version churn maps to same signature", uaChromeWindows2, "Chrome/Windows"},
		{"firefox on linux", uaFirefoxLinux, "Firefox/Linux"},
		{"safari on mac", uaSafariMac, "Safari/macOS"},
		{
			"edge embeds chrome token",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			"Edge/Windows",
		},
		{
			"opera embeds chrome token",
			"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 OPR/106.0.0.0",
			"Opera/Windows",
		},
		{
			"chrome on ios",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/120.0.0.0 Mobile/15E148 Safari/604.1",
			"Chrome/iOS",
		},
		{
			"android chrome",
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			"Chrome/Android",
		},
		{"empty user agent", "", "Unknown/Unknown"},
		{"unrecognized", "curl/8.4.0", "Other/Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeviceSignature(tt.ua); got != tt.want {
				t.Errorf("DeviceSignature(%q) = %q, want %q", tt.ua, got, tt.want)
			}
		})
	}
}
