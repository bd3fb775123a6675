// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package database provides the DuckDB-backed signal stores.
//
// Tables:
//   - login_events: append-only authentication events with resolved location
//   - fingerprints: append-only device fingerprint observations
//   - behavioral_signals: behavioral-biometric summaries, upserted by session
//   - ip_reputation: latest reputation record per IP address
//   - accounts: account state; the only table the engine mutates
//   - audit_events: enforcement audit trail
//
// Schema strategy: all columns are defined in the initial CREATE TABLE
// statements (single source of truth, no migrations to run at startup).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/logging"
)

// DB wraps the DuckDB connection pool.
type DB struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// Open opens (creating if necessary) the DuckDB database and initializes
// the schema. The caller owns the returned DB and must Close it.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	connStr := cfg.Path
	if cfg.MaxMemory != "" {
		connStr = fmt.Sprintf("%s?threads=%d&max_memory=%s", cfg.Path, numThreads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// DuckDB is an embedded database: writes serialize internally, so a
	// small pool is enough and avoids lock contention.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Msg("database opened")

	return db, nil
}

// Conn exposes the underlying *sql.DB for stores that share the pool
// (e.g. the audit store).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
