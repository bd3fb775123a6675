// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core tables and indexes.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS login_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			ts TIMESTAMP NOT NULL,
			ip_address TEXT NOT NULL,
			user_agent TEXT,
			city TEXT,
			country TEXT,
			latitude DOUBLE,
			longitude DOUBLE,
			location_resolved BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS fingerprints (
			hash TEXT NOT NULL,
			user_id TEXT,
			device_attributes JSON,
			collected_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS behavioral_signals (
			session_id TEXT PRIMARY KEY,
			user_id TEXT,
			bot_likelihood_score INTEGER NOT NULL,
			indicators JSON,
			observed_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ip_reputation (
			ip_address TEXT PRIMARY KEY,
			fraud_score INTEGER,
			is_vpn BOOLEAN NOT NULL DEFAULT FALSE,
			is_proxy BOOLEAN NOT NULL DEFAULT FALSE,
			is_tor BOOLEAN NOT NULL DEFAULT FALSE,
			country_code TEXT,
			associated_user_id TEXT,
			checked_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			user_id TEXT PRIMARY KEY,
			is_banned BOOLEAN NOT NULL DEFAULT FALSE,
			banned_at TIMESTAMP,
			ban_reason TEXT,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			ts TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			category TEXT,
			severity TEXT,
			outcome TEXT,
			user_id TEXT,
			description TEXT,
			metadata JSON,
			correlation_id TEXT
		)`,

		// Indexes for the engine's hot read paths
		`CREATE INDEX IF NOT EXISTS idx_login_events_user_ts ON login_events (user_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprints_hash ON fingerprints (hash)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprints_user ON fingerprints (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_behavioral_user ON behavioral_signals (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ip_reputation_user ON ip_reputation (associated_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_user_ts ON audit_events (user_id, ts)`,
	}
}
