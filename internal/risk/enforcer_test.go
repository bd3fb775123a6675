// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package risk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fraudguard/internal/audit"
	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/fingerprint"
	"github.com/tomtom215/fraudguard/internal/models"
)

// mockBanner records ApplyBan calls and simulates the conditional update:
// only the first ban per user reports applied=true.
type mockBanner struct {
	mu      sync.Mutex
	banned  map[string]string // userID -> reason
	calls   int
	failErr error
}

func newMockBanner() *mockBanner {
	return &mockBanner{banned: make(map[string]string)}
}

func (m *mockBanner) ApplyBan(_ context.Context, userID, reason string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failErr != nil {
		return false, m.failErr
	}
	if _, already := m.banned[userID]; already {
		return false, nil
	}
	m.banned[userID] = reason
	return true, nil
}

func (m *mockBanner) reasonFor(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banned[userID]
}

func newTestAudit() (*audit.Logger, *audit.MemoryStore) {
	store := audit.NewMemoryStore(100)
	logger := audit.NewLogger(store, &audit.Config{Enabled: true, BufferSize: 16})
	return logger, store
}

func TestEnforceBansAtThreshold(t *testing.T) {
	banner := newMockBanner()
	auditLog, store := newTestAudit()
	enf := NewEnforcer(config.DefaultRiskConfig(), banner, auditLog)

	in := Signals{
		UserID:    "u1",
		Collision: fingerprint.Result{Collision: true, CollisionCount: 1},
		Behavior:  &models.BehavioralSignal{SessionID: "s1", BotLikelihoodScore: 85},
	}
	sig := Signal{UserID: "u1", RiskScore: 70, RiskFactors: []string{"Device fingerprint shared with 1 other account(s)", "High bot likelihood score: 85"}}

	banned, err := enf.Enforce(context.Background(), sig, in)
	if err != nil {
		t.Fatalf("Enforce returned error: %v", err)
	}
	if !banned {
		t.Fatal("Enforce did not ban at the inclusive threshold")
	}

	reason := banner.reasonFor("u1")
	if !strings.HasPrefix(reason, "Automated ban: Multiple risk signals detected (Risk Score: 70/100)") {
		t.Errorf("ban reason = %q, want the standard prefix", reason)
	}

	auditLog.Stop()
	events, err := store.Query(context.Background(), audit.QueryFilter{UserID: "u1", Type: audit.EventTypeAutoBan})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("auto-ban audit events = %d, want 1", len(events))
	}

	e := events[0]
	if e.Severity != audit.SeverityCritical || e.Outcome != audit.OutcomeSuccess || e.Category != audit.CategoryAdminChange {
		t.Errorf("audit event fields = %+v, want critical/success/admin_change", e)
	}

	var meta audit.BanMetadata
	if err := json.Unmarshal(e.Metadata, &meta); err != nil {
		t.Fatalf("metadata unmarshal: %v", err)
	}
	if !meta.Automated || meta.RiskScore != 70 || !meta.CollisionFlag || !meta.BotScoreFlag || meta.FraudFlag || meta.VPNFlag {
		t.Errorf("metadata = %+v, want automated collision+bot breakdown", meta)
	}
}

func TestEnforceIdempotent(t *testing.T) {
	banner := newMockBanner()
	auditLog, store := newTestAudit()
	enf := NewEnforcer(config.DefaultRiskConfig(), banner, auditLog)

	sig := Signal{UserID: "u1", RiskScore: 90, RiskFactors: []string{"High bot likelihood score: 95"}}

	first, err := enf.Enforce(context.Background(), sig, Signals{UserID: "u1"})
	if err != nil || !first {
		t.Fatalf("first Enforce = (%v, %v), want (true, nil)", first, err)
	}
	second, err := enf.Enforce(context.Background(), sig, Signals{UserID: "u1"})
	if err != nil {
		t.Fatalf("second Enforce returned error: %v", err)
	}
	if second {
		t.Error("second Enforce reported a new ban for an already banned user")
	}

	auditLog.Stop()
	count, err := store.CountForUser(context.Background(), "u1", audit.EventTypeAutoBan)
	if err != nil {
		t.Fatalf("CountForUser: %v", err)
	}
	if count != 1 {
		t.Errorf("auto-ban audit entries = %d, want exactly 1 after re-run", count)
	}
}

func TestEnforceBanWriteFailure(t *testing.T) {
	banner := newMockBanner()
	banner.failErr = errors.New("disk full")
	auditLog, store := newTestAudit()
	enf := NewEnforcer(config.DefaultRiskConfig(), banner, auditLog)

	sig := Signal{UserID: "u1", RiskScore: 80}
	banned, err := enf.Enforce(context.Background(), sig, Signals{UserID: "u1"})
	if banned {
		t.Error("Enforce reported a ban despite the write failing")
	}
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Enforce error = %v, want wrapped write failure", err)
	}

	auditLog.Stop()
	count, _ := store.CountForUser(context.Background(), "u1", audit.EventTypeBanFailed)
	if count != 1 {
		t.Errorf("ban-failed audit entries = %d, want 1", count)
	}
}

func TestEnforceReportsBetweenThresholds(t *testing.T) {
	banner := newMockBanner()
	auditLog, store := newTestAudit()
	enf := NewEnforcer(config.DefaultRiskConfig(), banner, auditLog)

	sig := Signal{UserID: "u1", RiskScore: 45, RiskFactors: []string{"Connection via VPN (NL)"}}
	banned, err := enf.Enforce(context.Background(), sig, Signals{UserID: "u1"})
	if err != nil || banned {
		t.Fatalf("Enforce = (%v, %v), want (false, nil)", banned, err)
	}
	if banner.calls != 0 {
		t.Error("report path must not touch account state")
	}

	auditLog.Stop()
	events, _ := store.Query(context.Background(), audit.QueryFilter{UserID: "u1", Type: audit.EventTypeRiskSignal})
	if len(events) != 1 {
		t.Fatalf("risk-signal audit events = %d, want 1", len(events))
	}
	if events[0].Severity != audit.SeverityWarning {
		t.Errorf("severity = %q, want warning", events[0].Severity)
	}
}

func TestEnforceLeavesLowScoresAlone(t *testing.T) {
	banner := newMockBanner()
	auditLog, store := newTestAudit()
	enf := NewEnforcer(config.DefaultRiskConfig(), banner, auditLog)

	// Exactly at the report bound: exclusive, so nothing happens.
	sig := Signal{UserID: "u1", RiskScore: 30}
	banned, err := enf.Enforce(context.Background(), sig, Signals{UserID: "u1"})
	if err != nil || banned {
		t.Fatalf("Enforce = (%v, %v), want (false, nil)", banned, err)
	}

	auditLog.Stop()
	events, _ := store.Query(context.Background(), audit.QueryFilter{UserID: "u1"})
	if len(events) != 0 {
		t.Errorf("audit events = %d, want none for score at the report bound", len(events))
	}
	if banner.calls != 0 {
		t.Error("no account mutation expected below the ban threshold")
	}
}
