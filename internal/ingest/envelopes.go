// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package ingest consumes the platform's signal streams over NATS JetStream
// and persists them through the database package.
//
// Each subject carries one explicitly-typed envelope; payloads are decoded
// into internal/models records at this boundary so the scoring core never
// sees untyped maps. Undecodable or permanently failing messages are routed
// to the poison topic after retries.
package ingest

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fraudguard/internal/models"
)

// Subject suffixes under the configured prefix (e.g. "signals.login").
const (
	SubjectLogin        = "login"
	SubjectFingerprint  = "fingerprint"
	SubjectBehavior     = "behavior"
	SubjectIPReputation = "ipreputation"
)

// activityTypeLogin is the only activity type the login subject accepts;
// collectors multiplex other activity kinds on the same envelope shape.
const activityTypeLogin = "login"

// loginEnvelope is the wire contract of the authentication collector.
type loginEnvelope struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ActivityType string    `json:"activityType"`
	CreatedAt    time.Time `json:"createdAt"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent"`
}

// fingerprintEnvelope is the wire contract of the device-fingerprint collector.
type fingerprintEnvelope struct {
	UserID           string            `json:"userId,omitempty"`
	FingerprintHash  string            `json:"fingerprintHash"`
	DeviceAttributes map[string]string `json:"deviceAttributes,omitempty"`
	CollectedAt      time.Time         `json:"collectedAt"`
}

// behaviorEnvelope is the wire contract of the behavioral-biometric collector.
type behaviorEnvelope struct {
	UserID             string    `json:"userId,omitempty"`
	SessionID          string    `json:"sessionId"`
	BotLikelihoodScore int       `json:"botLikelihoodScore"`
	Indicators         []string  `json:"indicators,omitempty"`
	ObservedAt         time.Time `json:"observedAt"`
}

// ipReputationEnvelope is the wire contract of the IP-intelligence feed.
type ipReputationEnvelope struct {
	IPAddress        string    `json:"ipAddress"`
	FraudScore       *int      `json:"fraudScore,omitempty"`
	IsVPN            bool      `json:"isVpn"`
	IsProxy          bool      `json:"isProxy"`
	IsTor            bool      `json:"isTor"`
	CountryCode      string    `json:"countryCode,omitempty"`
	AssociatedUserID string    `json:"associatedUserId,omitempty"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// decodeLogin parses a login payload. Returns (nil, nil) for non-login
// activity records, which are acknowledged and dropped.
func decodeLogin(payload []byte) (*models.LoginEvent, error) {
	var env loginEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode login envelope: %w", err)
	}
	if env.ActivityType != "" && env.ActivityType != activityTypeLogin {
		return nil, nil
	}
	if env.ID == "" || env.UserID == "" || env.IPAddress == "" {
		return nil, fmt.Errorf("login envelope missing required fields (id=%q userId=%q)", env.ID, env.UserID)
	}
	if env.CreatedAt.IsZero() {
		return nil, fmt.Errorf("login envelope %s has no timestamp", env.ID)
	}

	return &models.LoginEvent{
		ID:        env.ID,
		UserID:    env.UserID,
		Timestamp: env.CreatedAt,
		IPAddress: env.IPAddress,
		UserAgent: env.UserAgent,
	}, nil
}

func decodeFingerprint(payload []byte) (*models.FingerprintRecord, error) {
	var env fingerprintEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode fingerprint envelope: %w", err)
	}
	if env.FingerprintHash == "" {
		return nil, fmt.Errorf("fingerprint envelope missing hash")
	}
	collectedAt := env.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}

	return &models.FingerprintRecord{
		Hash:             env.FingerprintHash,
		UserID:           env.UserID,
		DeviceAttributes: env.DeviceAttributes,
		CollectedAt:      collectedAt,
	}, nil
}

func decodeBehavior(payload []byte) (*models.BehavioralSignal, error) {
	var env behaviorEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode behavior envelope: %w", err)
	}
	if env.SessionID == "" {
		return nil, fmt.Errorf("behavior envelope missing session id")
	}
	if env.BotLikelihoodScore < 0 || env.BotLikelihoodScore > 100 {
		return nil, fmt.Errorf("behavior envelope %s: bot likelihood %d out of range",
			env.SessionID, env.BotLikelihoodScore)
	}
	observedAt := env.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	return &models.BehavioralSignal{
		UserID:             env.UserID,
		SessionID:          env.SessionID,
		BotLikelihoodScore: env.BotLikelihoodScore,
		Indicators:         env.Indicators,
		ObservedAt:         observedAt,
	}, nil
}

func decodeIPReputation(payload []byte) (*models.IPReputation, error) {
	var env ipReputationEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode ip reputation envelope: %w", err)
	}
	if env.IPAddress == "" {
		return nil, fmt.Errorf("ip reputation envelope missing ip address")
	}
	if env.FraudScore != nil && (*env.FraudScore < 0 || *env.FraudScore > 100) {
		return nil, fmt.Errorf("ip reputation envelope %s: fraud score %d out of range",
			env.IPAddress, *env.FraudScore)
	}
	checkedAt := env.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}

	return &models.IPReputation{
		IPAddress:        env.IPAddress,
		FraudScore:       env.FraudScore,
		IsVPN:            env.IsVPN,
		IsProxy:          env.IsProxy,
		IsTor:            env.IsTor,
		CountryCode:      env.CountryCode,
		AssociatedUserID: env.AssociatedUserID,
		CheckedAt:        checkedAt,
	}, nil
}
