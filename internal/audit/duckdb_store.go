// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// DuckDBStore implements Store on the shared DuckDB connection pool, so the
// audit trail survives restarts alongside the signal tables.
type DuckDBStore struct {
	conn *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed audit store. The caller owns the
// connection pool; the store never closes it.
func NewDuckDBStore(conn *sql.DB) *DuckDBStore {
	return &DuckDBStore{conn: conn}
}

// Save persists one audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		metadata = sql.NullString{String: string(event.Metadata), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO audit_events
			(id, ts, event_type, category, severity, outcome, user_id, description, metadata, correlation_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Timestamp.UTC(), string(event.Type), event.Category,
		string(event.Severity), string(event.Outcome), event.UserID,
		event.Description, metadata, event.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event %s: %w", event.ID, err)
	}
	return nil
}

// Query retrieves events matching the filter, most recent first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Type != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "ts <= ?")
		args = append(args, filter.Until.UTC())
	}

	query := `SELECT id, ts, event_type, COALESCE(category, ''), COALESCE(severity, ''),
	                 COALESCE(outcome, ''), COALESCE(user_id, ''), COALESCE(description, ''),
	                 metadata, COALESCE(correlation_id, '')
	            FROM audit_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY ts DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                      Event
			typ, severity, outcome string
			metadata               sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &e.Category, &severity,
			&outcome, &e.UserID, &e.Description, &metadata, &e.CorrelationID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(typ)
		e.Severity = Severity(severity)
		e.Outcome = Outcome(outcome)
		if metadata.Valid && metadata.String != "" {
			e.Metadata = json.RawMessage(metadata.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

// CountForUser returns the number of events of the given type for a user.
func (s *DuckDBStore) CountForUser(ctx context.Context, userID string, eventType EventType) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE user_id = ? AND event_type = ?`,
		userID, string(eventType),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events for %s: %w", userID, err)
	}
	return count, nil
}
