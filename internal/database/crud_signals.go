// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fraudguard/internal/models"
)

// InsertFingerprint appends one fingerprint observation.
func (db *DB) InsertFingerprint(ctx context.Context, r *models.FingerprintRecord) error {
	var attrs sql.NullString
	if len(r.DeviceAttributes) > 0 {
		b, err := json.Marshal(r.DeviceAttributes)
		if err != nil {
			return fmt.Errorf("failed to marshal device attributes: %w", err)
		}
		attrs = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO fingerprints (hash, user_id, device_attributes, collected_at)
		 VALUES (?, ?, ?, ?)`,
		r.Hash, nullString(r.UserID), attrs, r.CollectedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fingerprint: %w", err)
	}
	return nil
}

// FingerprintsSince returns all fingerprint observations in the evaluation
// window, for collision indexing.
func (db *DB) FingerprintsSince(ctx context.Context, since time.Time) ([]models.FingerprintRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT hash, COALESCE(user_id, ''), device_attributes, collected_at
		   FROM fingerprints
		  WHERE collected_at >= ?`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	var records []models.FingerprintRecord
	for rows.Next() {
		var (
			r     models.FingerprintRecord
			attrs sql.NullString
		)
		if err := rows.Scan(&r.Hash, &r.UserID, &attrs, &r.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &r.DeviceAttributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal device attributes: %w", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fingerprints: %w", err)
	}
	return records, nil
}

// UpsertBehavioralSignal inserts or replaces the behavioral summary for a
// session. The collector owns these rows; upsert is keyed by session ID.
func (db *DB) UpsertBehavioralSignal(ctx context.Context, s *models.BehavioralSignal) error {
	var indicators sql.NullString
	if len(s.Indicators) > 0 {
		b, err := json.Marshal(s.Indicators)
		if err != nil {
			return fmt.Errorf("failed to marshal indicators: %w", err)
		}
		indicators = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO behavioral_signals (session_id, user_id, bot_likelihood_score, indicators, observed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
			user_id = excluded.user_id,
			bot_likelihood_score = excluded.bot_likelihood_score,
			indicators = excluded.indicators,
			observed_at = excluded.observed_at`,
		s.SessionID, nullString(s.UserID), s.BotLikelihoodScore, indicators, s.ObservedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert behavioral signal %s: %w", s.SessionID, err)
	}
	return nil
}

// LatestBehavioralSignal returns the most recent behavioral summary for a
// user, or nil when none exists.
func (db *DB) LatestBehavioralSignal(ctx context.Context, userID string) (*models.BehavioralSignal, error) {
	var (
		s          models.BehavioralSignal
		indicators sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT session_id, COALESCE(user_id, ''), bot_likelihood_score, indicators, observed_at
		   FROM behavioral_signals
		  WHERE user_id = ?
		  ORDER BY observed_at DESC
		  LIMIT 1`,
		userID,
	).Scan(&s.SessionID, &s.UserID, &s.BotLikelihoodScore, &indicators, &s.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query behavioral signal for %s: %w", userID, err)
	}

	if indicators.Valid && indicators.String != "" {
		if err := json.Unmarshal([]byte(indicators.String), &s.Indicators); err != nil {
			return nil, fmt.Errorf("failed to unmarshal indicators: %w", err)
		}
	}
	return &s, nil
}

// UpsertIPReputation inserts or replaces the reputation record for an IP.
func (db *DB) UpsertIPReputation(ctx context.Context, r *models.IPReputation) error {
	var fraudScore sql.NullInt64
	if r.FraudScore != nil {
		fraudScore = sql.NullInt64{Int64: int64(*r.FraudScore), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ip_reputation
			(ip_address, fraud_score, is_vpn, is_proxy, is_tor, country_code, associated_user_id, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (ip_address) DO UPDATE SET
			fraud_score = excluded.fraud_score,
			is_vpn = excluded.is_vpn,
			is_proxy = excluded.is_proxy,
			is_tor = excluded.is_tor,
			country_code = excluded.country_code,
			associated_user_id = excluded.associated_user_id,
			checked_at = excluded.checked_at`,
		r.IPAddress, fraudScore, r.IsVPN, r.IsProxy, r.IsTor,
		nullString(r.CountryCode), nullString(r.AssociatedUserID), r.CheckedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ip reputation %s: %w", r.IPAddress, err)
	}
	return nil
}

// LatestIPReputation returns the most recent reputation record associated
// with a user: first by explicit association, then via the IP of the user's
// latest login. Returns nil when neither path yields a record.
func (db *DB) LatestIPReputation(ctx context.Context, userID string) (*models.IPReputation, error) {
	r, err := db.scanIPReputationRow(db.conn.QueryRowContext(ctx,
		`SELECT ip_address, fraud_score, is_vpn, is_proxy, is_tor,
		        COALESCE(country_code, ''), COALESCE(associated_user_id, ''), checked_at
		   FROM ip_reputation
		  WHERE associated_user_id = ?
		  ORDER BY checked_at DESC
		  LIMIT 1`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query ip reputation for %s: %w", userID, err)
	}
	if r != nil {
		return r, nil
	}

	r, err = db.scanIPReputationRow(db.conn.QueryRowContext(ctx,
		`SELECT r.ip_address, r.fraud_score, r.is_vpn, r.is_proxy, r.is_tor,
		        COALESCE(r.country_code, ''), COALESCE(r.associated_user_id, ''), r.checked_at
		   FROM ip_reputation r
		   JOIN (SELECT ip_address FROM login_events
		          WHERE user_id = ? ORDER BY ts DESC LIMIT 1) l
		     ON r.ip_address = l.ip_address`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query ip reputation by login ip for %s: %w", userID, err)
	}
	return r, nil
}

func (db *DB) scanIPReputationRow(row *sql.Row) (*models.IPReputation, error) {
	var (
		r          models.IPReputation
		fraudScore sql.NullInt64
	)
	err := row.Scan(&r.IPAddress, &fraudScore, &r.IsVPN, &r.IsProxy, &r.IsTor,
		&r.CountryCode, &r.AssociatedUserID, &r.CheckedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if fraudScore.Valid {
		score := int(fraudScore.Int64)
		r.FraudScore = &score
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
