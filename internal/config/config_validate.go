// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Struct tag validation covers
// ranges; cross-field rules live in Validate below.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for errors that would cause incorrect
// behavior at runtime. Called by Load after unmarshaling.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The reporting band must sit strictly below the ban threshold,
	// otherwise review-only users would be auto-banned.
	if c.Risk.ReportThreshold >= c.Risk.BanThreshold {
		return fmt.Errorf("risk.report_threshold (%d) must be below risk.ban_threshold (%d)",
			c.Risk.ReportThreshold, c.Risk.BanThreshold)
	}

	if c.Risk.HistoryWindow < c.Risk.MinHistory {
		return fmt.Errorf("risk.history_window (%d) must be at least risk.min_history (%d)",
			c.Risk.HistoryWindow, c.Risk.MinHistory)
	}

	if c.Server.Environment == "production" && c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required in production")
	}

	if c.NATS.Enabled && c.NATS.StreamName == "" {
		return fmt.Errorf("nats.stream_name is required when ingestion is enabled")
	}

	return nil
}
