// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package anomaly

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/models"
)

type mockLoginStore struct {
	events []models.LoginEvent
	err    error
}

func (m *mockLoginStore) RecentLoginEvents(_ context.Context, _ string, limit int) ([]models.LoginEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

// mockResolver counts lookups per IP to assert per-request memoization.
type mockResolver struct {
	mu        sync.Mutex
	locations map[string]*models.Location
	calls     map[string]int
}

func (m *mockResolver) Resolve(_ context.Context, ip string) (*models.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[ip]++
	return m.locations[ip], nil
}

func (m *mockResolver) callsFor(ip string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ip]
}

func historyEvents() []models.LoginEvent {
	base := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	es := models.Location{Country: "ES", Latitude: 40.4168, Longitude: -3.7038}

	events := make([]models.LoginEvent, 0, 4)
	for i := 0; i < 4; i++ {
		loc := es
		events = append(events, models.LoginEvent{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			IPAddress: "203.0.113.10",
			UserAgent: ua,
			Location:  &loc,
		})
	}
	return events
}

func TestForUserScoresAllLogins(t *testing.T) {
	store := &mockLoginStore{events: historyEvents()}
	h := NewHistory(config.DefaultRiskConfig(), store, nil)

	result, err := h.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser returned error: %v", err)
	}

	if result.InsufficientHistory {
		t.Fatal("InsufficientHistory = true with four resolved logins")
	}
	if result.Pattern == nil || result.Pattern.HomeCountry() != "ES" {
		t.Fatalf("Pattern = %+v, want home ES", result.Pattern)
	}
	if len(result.Logins) != 4 {
		t.Fatalf("len(Logins) = %d, want 4", len(result.Logins))
	}
	for i, sl := range result.Logins {
		if sl.Score.LoginEventID != sl.Event.ID {
			t.Errorf("login %d score id = %q, want %q", i, sl.Score.LoginEventID, sl.Event.ID)
		}
		// Same country, same device, reasonable timing: nothing anomalous.
		if sl.Score.Overall != 0 {
			t.Errorf("login %d Overall = %d, want 0: %v", i, sl.Score.Overall, sl.Score.Reasons)
		}
	}
}

func TestForUserInsufficientHistory(t *testing.T) {
	store := &mockLoginStore{events: historyEvents()[:2]}
	h := NewHistory(config.DefaultRiskConfig(), store, nil)

	result, err := h.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser returned error: %v", err)
	}

	if !result.InsufficientHistory {
		t.Error("InsufficientHistory = false with two resolved logins")
	}
	if result.Pattern != nil {
		t.Errorf("Pattern = %+v, want nil", result.Pattern)
	}
	// Events are still returned for display, just unscored.
	if len(result.Logins) != 2 {
		t.Fatalf("len(Logins) = %d, want 2", len(result.Logins))
	}
	for i, sl := range result.Logins {
		if sl.Score.Overall != 0 || len(sl.Score.Reasons) != 0 {
			t.Errorf("login %d carries a score despite thin history: %+v", i, sl.Score)
		}
	}
}

func TestForUserBackfillMemoizesByIP(t *testing.T) {
	events := historyEvents()
	// Three events share an IP and lack a stored location.
	for i := 0; i < 3; i++ {
		events[i].Location = nil
		events[i].IPAddress = "198.51.100.7"
	}

	resolver := &mockResolver{
		locations: map[string]*models.Location{
			"198.51.100.7": {Country: "FR", Latitude: 48.8566, Longitude: 2.3522},
		},
	}
	store := &mockLoginStore{events: events}
	h := NewHistory(config.DefaultRiskConfig(), store, resolver)

	result, err := h.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser returned error: %v", err)
	}

	if got := resolver.callsFor("198.51.100.7"); got != 1 {
		t.Errorf("resolver called %d times for one IP, want 1 (memoized)", got)
	}
	// The stored location was kept, so its IP is never resolved.
	if got := resolver.callsFor("203.0.113.10"); got != 0 {
		t.Errorf("resolver called %d times for already-resolved events, want 0", got)
	}
	if result.InsufficientHistory {
		t.Error("backfilled locations must count toward the history minimum")
	}
}

func TestForUserStoreError(t *testing.T) {
	store := &mockLoginStore{err: errors.New("db closed")}
	h := NewHistory(config.DefaultRiskConfig(), store, nil)

	if _, err := h.ForUser(context.Background(), "u1"); err == nil {
		t.Fatal("ForUser did not propagate the store error")
	}
}
