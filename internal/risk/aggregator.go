// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package risk combines independent fraud signals into one composite per-user
// score and enforces the ban decision.
//
// Aggregation is additive: each present-and-true factor contributes its
// configured weight, absent signals contribute zero, and the sum is clamped
// to [0,100]. There is no normalization by the number of signals present, so
// adding a factor can never lower the composite score.
package risk

import (
	"fmt"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/fingerprint"
	"github.com/tomtom215/fraudguard/internal/models"
)

// Signals is the fetched per-user input to one aggregation. Nil fields mean
// the signal source has nothing for this user.
type Signals struct {
	UserID       string
	Collision    fingerprint.Result
	Behavior     *models.BehavioralSignal
	IPReputation *models.IPReputation
}

// Signal is the transient composite assessment for one user in one run.
// Only its consequences (ban, audit entry) are persisted.
type Signal struct {
	UserID      string   `json:"user_id"`
	RiskScore   int      `json:"risk_score"`
	RiskFactors []string `json:"risk_factors"`
}

// Aggregator computes composite risk scores using a versioned weight set.
type Aggregator struct {
	cfg config.RiskConfig
}

// NewAggregator creates an aggregator with the given weight set.
func NewAggregator(cfg config.RiskConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate computes the composite score for one user. Deterministic and
// pure: factors are evaluated in a fixed order and each appends exactly one
// reason when it fires.
func (a *Aggregator) Aggregate(in Signals) Signal {
	sig := Signal{UserID: in.UserID}

	if in.Collision.Collision {
		sig.RiskScore += a.cfg.CollisionWeight
		sig.RiskFactors = append(sig.RiskFactors, fmt.Sprintf(
			"Device fingerprint shared with %d other account(s)", in.Collision.CollisionCount))
	}

	if in.Behavior != nil && in.Behavior.BotLikelihoodScore >= a.cfg.BotScoreThreshold {
		sig.RiskScore += a.cfg.BotWeight
		sig.RiskFactors = append(sig.RiskFactors, fmt.Sprintf(
			"High bot likelihood score: %d", in.Behavior.BotLikelihoodScore))
	}

	if rep := in.IPReputation; rep != nil {
		if rep.FraudScore != nil && *rep.FraudScore >= a.cfg.FraudScoreThreshold {
			sig.RiskScore += a.cfg.FraudWeight
			sig.RiskFactors = append(sig.RiskFactors, fmt.Sprintf(
				"IP flagged for fraud (score: %d)", *rep.FraudScore))
		}
		if rep.Anonymizing() {
			sig.RiskScore += a.cfg.AnonymizerWeight
			sig.RiskFactors = append(sig.RiskFactors, fmt.Sprintf(
				"Connection via %s (%s)", rep.AnonymizerKind(), countryOrUnknown(rep.CountryCode)))
		}
	}

	if sig.RiskScore > 100 {
		sig.RiskScore = 100
	}
	return sig
}

// ShouldBan reports whether the composite score triggers automated
// enforcement (inclusive threshold).
func (a *Aggregator) ShouldBan(sig Signal) bool {
	return sig.RiskScore >= a.cfg.BanThreshold
}

// ShouldReport reports whether the score is surfaced for human review
// without being banned (exclusive lower bound, below the ban threshold).
func (a *Aggregator) ShouldReport(sig Signal) bool {
	return sig.RiskScore > a.cfg.ReportThreshold && sig.RiskScore < a.cfg.BanThreshold
}

func countryOrUnknown(code string) string {
	if code == "" {
		return "unknown country"
	}
	return code
}
