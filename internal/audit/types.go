// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package audit provides security audit logging for enforcement actions.
// It records every automated ban, surfaced risk signal, and batch run for
// compliance and forensic analysis.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Enforcement events
	EventTypeAutoBan    EventType = "enforcement.auto_ban"
	EventTypeBanFailed  EventType = "enforcement.ban_failed"
	EventTypeRiskSignal EventType = "enforcement.risk_signal"

	// Batch lifecycle events
	EventTypeBatchCompleted EventType = "batch.completed"

	// Ingestion events
	EventTypeIngestRejected EventType = "ingest.rejected"
)

// CategoryAdminChange tags account-state mutations the way the platform's
// shared audit trail expects them.
const CategoryAdminChange = "admin_change"

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event represents a single audit record.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Category groups events for the platform-wide audit trail
	// (account mutations use CategoryAdminChange).
	Category string `json:"category,omitempty"`

	// Severity of the event.
	Severity Severity `json:"severity"`

	// Outcome indicates success or failure.
	Outcome Outcome `json:"outcome"`

	// UserID is the affected account, if any.
	UserID string `json:"user_id,omitempty"`

	// Description provides human-readable details.
	Description string `json:"description"`

	// Metadata carries the typed, event-specific breakdown.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CorrelationID links related events (e.g. all bans of one batch run).
	CorrelationID string `json:"correlation_id,omitempty"`
}

// BanMetadata is the full signal breakdown recorded with every automated
// ban or surfaced risk signal.
type BanMetadata struct {
	Automated      bool     `json:"automated"`
	RiskScore      int      `json:"riskScore"`
	RiskFactors    []string `json:"riskFactors"`
	CollisionFlag  bool     `json:"collisionFlag"`
	CollisionCount int      `json:"collisionCount,omitempty"`
	BotScoreFlag   bool     `json:"botScoreFlag"`
	FraudFlag      bool     `json:"fraudFlag"`
	VPNFlag        bool     `json:"vpnFlag"`
	WeightsVersion int      `json:"weightsVersion,omitempty"`
}

// QueryFilter selects audit events. Zero values mean "any".
type QueryFilter struct {
	UserID string
	Type   EventType
	Since  time.Time
	Until  time.Time
	Limit  int
}

// Store persists audit events.
type Store interface {
	// Save persists one audit event.
	Save(ctx context.Context, event *Event) error

	// Query retrieves events matching the filter, most recent first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// CountForUser returns how many events of the given type exist for a
	// user. Used by idempotence checks in tests and tooling.
	CountForUser(ctx context.Context, userID string, eventType EventType) (int, error)
}
