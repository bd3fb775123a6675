// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/fraudguard/internal/models"
)

// InsertLoginEvent persists one login event. Location is stored denormalized
// (nullable columns) so the event remains queryable when resolution failed.
func (db *DB) InsertLoginEvent(ctx context.Context, e *models.LoginEvent) error {
	var (
		city, country sql.NullString
		lat, lon      sql.NullFloat64
		resolved      bool
	)
	if e.Location.Known() {
		resolved = true
		city = sql.NullString{String: e.Location.City, Valid: e.Location.City != ""}
		country = sql.NullString{String: e.Location.Country, Valid: e.Location.Country != ""}
		lat = sql.NullFloat64{Float64: e.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: e.Location.Longitude, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO login_events
			(id, user_id, ts, ip_address, user_agent, city, country, latitude, longitude, location_resolved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.UserID, e.Timestamp.UTC(), e.IPAddress, e.UserAgent,
		city, country, lat, lon, resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to insert login event %s: %w", e.ID, err)
	}
	return nil
}

// RecentLoginEvents returns the user's most recent login events in
// chronological (oldest first) order, bounded by limit.
func (db *DB) RecentLoginEvents(ctx context.Context, userID string, limit int) ([]models.LoginEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, ts, ip_address, COALESCE(user_agent, ''),
		        city, country, latitude, longitude, location_resolved
		   FROM login_events
		  WHERE user_id = ?
		  ORDER BY ts DESC
		  LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query login events for %s: %w", userID, err)
	}
	defer rows.Close()

	var events []models.LoginEvent
	for rows.Next() {
		e, err := scanLoginEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate login events: %w", err)
	}

	// Query is newest-first for the LIMIT; callers need chronological order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func scanLoginEvent(rows *sql.Rows) (models.LoginEvent, error) {
	var (
		e             models.LoginEvent
		city, country sql.NullString
		lat, lon      sql.NullFloat64
		resolved      bool
	)
	if err := rows.Scan(
		&e.ID, &e.UserID, &e.Timestamp, &e.IPAddress, &e.UserAgent,
		&city, &country, &lat, &lon, &resolved,
	); err != nil {
		return models.LoginEvent{}, fmt.Errorf("failed to scan login event: %w", err)
	}

	if resolved && lat.Valid && lon.Valid {
		e.Location = &models.Location{
			City:      city.String,
			Country:   country.String,
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
		}
	}
	return e, nil
}
