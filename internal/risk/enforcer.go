// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fraudguard/internal/audit"
	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/logging"
	"github.com/tomtom215/fraudguard/internal/metrics"
)

// AccountBanner applies the ban mutation. Implemented by *database.DB.
type AccountBanner interface {
	// ApplyBan bans the account if it is not already banned. Returns true
	// when this call applied the ban.
	ApplyBan(ctx context.Context, userID, reason string, bannedAt time.Time) (bool, error)
}

// Enforcer turns composite risk scores into account state. The ban write is
// a conditional update keyed on the not-yet-banned state, so concurrent and
// repeated runs apply at most one ban and one audit entry per user.
type Enforcer struct {
	cfg      config.RiskConfig
	accounts AccountBanner
	auditLog *audit.Logger
}

// NewEnforcer creates an enforcer. auditLog may be nil in tests.
func NewEnforcer(cfg config.RiskConfig, accounts AccountBanner, auditLog *audit.Logger) *Enforcer {
	return &Enforcer{cfg: cfg, accounts: accounts, auditLog: auditLog}
}

// Enforce applies the enforcement decision for one evaluated user:
// ban at or above the ban threshold, surface as a risk signal above the
// report threshold, otherwise nothing. Returns whether a ban was applied by
// this call.
//
// The engine never unbans; scores below the threshold leave existing state
// untouched.
func (e *Enforcer) Enforce(ctx context.Context, sig Signal, in Signals) (banned bool, err error) {
	metrics.RiskScoreDistribution.Observe(float64(sig.RiskScore))

	if sig.RiskScore >= e.cfg.BanThreshold {
		return e.ban(ctx, sig, in)
	}

	if sig.RiskScore > e.cfg.ReportThreshold {
		e.report(ctx, sig, in)
	}
	return false, nil
}

func (e *Enforcer) ban(ctx context.Context, sig Signal, in Signals) (bool, error) {
	reason := BanReason(sig)
	now := time.Now().UTC()

	applied, err := e.accounts.ApplyBan(ctx, sig.UserID, reason, now)
	if err != nil {
		metrics.BanFailures.Inc()
		e.recordBanFailure(ctx, sig, err)
		return false, fmt.Errorf("ban write for %s: %w", sig.UserID, err)
	}

	if !applied {
		// Already banned (lost the race or stale evaluation set): no new
		// audit entry, no summary increment.
		logging.Debug().
			Str("user_id", sig.UserID).
			Int("risk_score", sig.RiskScore).
			Msg("ban already applied, skipping")
		return false, nil
	}

	metrics.BansApplied.Inc()
	logging.Warn().
		Str("user_id", sig.UserID).
		Int("risk_score", sig.RiskScore).
		Strs("risk_factors", sig.RiskFactors).
		Msg("automated ban applied")

	e.record(ctx, &audit.Event{
		Type:        audit.EventTypeAutoBan,
		Category:    audit.CategoryAdminChange,
		Severity:    audit.SeverityCritical,
		Outcome:     audit.OutcomeSuccess,
		UserID:      sig.UserID,
		Description: reason,
		Metadata:    e.banMetadata(sig, in),
	})
	return true, nil
}

func (e *Enforcer) report(ctx context.Context, sig Signal, in Signals) {
	metrics.RiskSignalsSurfaced.Inc()
	logging.Info().
		Str("user_id", sig.UserID).
		Int("risk_score", sig.RiskScore).
		Strs("risk_factors", sig.RiskFactors).
		Msg("risk signal surfaced for review")

	e.record(ctx, &audit.Event{
		Type:     audit.EventTypeRiskSignal,
		Severity: audit.SeverityWarning,
		Outcome:  audit.OutcomeSuccess,
		UserID:   sig.UserID,
		Description: fmt.Sprintf(
			"Risk signals detected (Risk Score: %d/100), below auto-ban threshold", sig.RiskScore),
		Metadata: e.banMetadata(sig, in),
	})
}

func (e *Enforcer) recordBanFailure(ctx context.Context, sig Signal, banErr error) {
	logging.Error().
		Err(banErr).
		Str("user_id", sig.UserID).
		Int("risk_score", sig.RiskScore).
		Msg("ban write failed")

	e.record(ctx, &audit.Event{
		Type:        audit.EventTypeBanFailed,
		Category:    audit.CategoryAdminChange,
		Severity:    audit.SeverityCritical,
		Outcome:     audit.OutcomeFailure,
		UserID:      sig.UserID,
		Description: fmt.Sprintf("Automated ban failed to persist: %v", banErr),
	})
}

func (e *Enforcer) banMetadata(sig Signal, in Signals) json.RawMessage {
	meta := audit.BanMetadata{
		Automated:      true,
		RiskScore:      sig.RiskScore,
		RiskFactors:    sig.RiskFactors,
		CollisionFlag:  in.Collision.Collision,
		CollisionCount: in.Collision.CollisionCount,
		BotScoreFlag:   in.Behavior != nil && in.Behavior.BotLikelihoodScore >= e.cfg.BotScoreThreshold,
		FraudFlag: in.IPReputation != nil && in.IPReputation.FraudScore != nil &&
			*in.IPReputation.FraudScore >= e.cfg.FraudScoreThreshold,
		VPNFlag:        in.IPReputation != nil && in.IPReputation.Anonymizing(),
		WeightsVersion: e.cfg.Version,
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return data
}

func (e *Enforcer) record(ctx context.Context, event *audit.Event) {
	if e.auditLog == nil {
		return
	}
	e.auditLog.Record(ctx, event)
}

// BanReason renders the ban reason persisted on the account record.
func BanReason(sig Signal) string {
	return fmt.Sprintf(
		"Automated ban: Multiple risk signals detected (Risk Score: %d/100). Factors: %s",
		sig.RiskScore, strings.Join(sig.RiskFactors, "; "))
}
