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

	"github.com/tomtom215/fraudguard/internal/models"
)

// EnsureAccount creates the account row if it does not exist yet. Login
// ingestion calls this so every observed user has account state.
func (db *DB) EnsureAccount(ctx context.Context, userID string, createdAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (user_id, is_banned, created_at)
		 VALUES (?, FALSE, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure account %s: %w", userID, err)
	}
	return nil
}

// GetAccount returns the account state for a user, or nil when unknown.
func (db *DB) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	var (
		a        models.Account
		bannedAt sql.NullTime
		reason   sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, is_banned, banned_at, ban_reason, created_at
		   FROM accounts
		  WHERE user_id = ?`,
		userID,
	).Scan(&a.UserID, &a.IsBanned, &bannedAt, &reason, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account %s: %w", userID, err)
	}

	if bannedAt.Valid {
		t := bannedAt.Time
		a.BannedAt = &t
	}
	a.BanReason = reason.String
	return &a, nil
}

// ActiveUserIDs returns the IDs of all accounts that are not banned,
// in a stable order. This is the evaluation set for a batch run.
func (db *DB) ActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM accounts WHERE is_banned = FALSE ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return ids, nil
}

// ApplyBan marks an account banned. The update is conditional on the account
// not already being banned, which makes enforcement idempotent under
// concurrent runs: exactly one caller observes applied=true.
func (db *DB) ApplyBan(ctx context.Context, userID, reason string, bannedAt time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		    SET is_banned = TRUE, banned_at = ?, ban_reason = ?
		  WHERE user_id = ? AND is_banned = FALSE`,
		bannedAt.UTC(), reason, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to ban account %s: %w", userID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read ban result for %s: %w", userID, err)
	}
	return affected == 1, nil
}
