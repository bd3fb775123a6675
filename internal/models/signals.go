// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package models defines the data contracts shared between the signal
// collectors, the signal stores, and the scoring engine.
//
// LoginEvent, FingerprintRecord, BehavioralSignal and IPReputation are
// write-once facts produced by external collectors; the engine only reads
// them. Account is the one record the engine mutates, and only in a single
// direction (is_banned can go from false to true, never back).
//
// Every record is explicitly typed at the ingestion boundary. The scoring
// core never depends on untyped metadata maps.
package models

import (
	"math"
	"time"
)

// CoordinateEpsilon is the threshold for considering coordinates as
// effectively zero. A coordinate pair is "unknown" (sentinel 0,0) if both
// values are within this epsilon of zero.
//
// DETERMINISM: direct float equality against 0 is unreliable under IEEE 754;
// 1e-7 degrees is about 1.1cm at the equator, well below any meaningful
// coordinate difference.
const CoordinateEpsilon = 1e-7

// Location is a resolved geographic location for an IP address.
type Location struct {
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Known returns true if the location carries usable coordinates.
func (l *Location) Known() bool {
	if l == nil {
		return false
	}
	return math.Abs(l.Latitude) >= CoordinateEpsilon || math.Abs(l.Longitude) >= CoordinateEpsilon
}

// String returns a human-readable "City, Country" form for reasons and logs.
func (l *Location) String() string {
	if l == nil {
		return "Unknown"
	}
	switch {
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.Country != "":
		return l.Country
	case l.City != "":
		return l.City
	default:
		return "Unknown"
	}
}

// LoginEvent is one authentication event for a user. Immutable once recorded.
// Location is nil when geolocation resolution failed or was skipped; such
// events still count toward device consistency but are excluded from
// location math (never an error).
type LoginEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Location  *Location `json:"location,omitempty"`
}

// FingerprintRecord is one observed device fingerprint. UserID is empty for
// anonymous (pre-authentication) observations; only non-empty user IDs
// participate in collision detection.
type FingerprintRecord struct {
	Hash             string            `json:"hash"`
	UserID           string            `json:"user_id,omitempty"`
	DeviceAttributes map[string]string `json:"device_attributes,omitempty"`
	CollectedAt      time.Time         `json:"collected_at"`
}

// BehavioralSignal is the collector-owned behavioral-biometric summary for a
// session, upserted by SessionID. BotLikelihoodScore is 0..100.
type BehavioralSignal struct {
	UserID             string    `json:"user_id,omitempty"`
	SessionID          string    `json:"session_id"`
	BotLikelihoodScore int       `json:"bot_likelihood_score"`
	Indicators         []string  `json:"indicators,omitempty"`
	ObservedAt         time.Time `json:"observed_at"`
}

// IPReputation is the latest reputation record for an IP address.
// FraudScore is 0..100; nil when the reputation provider returned none.
type IPReputation struct {
	IPAddress        string    `json:"ip_address"`
	FraudScore       *int      `json:"fraud_score,omitempty"`
	IsVPN            bool      `json:"is_vpn"`
	IsProxy          bool      `json:"is_proxy"`
	IsTor            bool      `json:"is_tor"`
	CountryCode      string    `json:"country_code,omitempty"`
	AssociatedUserID string    `json:"associated_user_id,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Anonymizing returns true when any anonymity-network flag is set.
func (r *IPReputation) Anonymizing() bool {
	return r != nil && (r.IsVPN || r.IsProxy || r.IsTor)
}

// AnonymizerKind names the first anonymity flag that is set, for reasons.
func (r *IPReputation) AnonymizerKind() string {
	switch {
	case r == nil:
		return ""
	case r.IsTor:
		return "Tor"
	case r.IsVPN:
		return "VPN"
	case r.IsProxy:
		return "Proxy"
	default:
		return ""
	}
}

// Account is the user account record as seen by the enforcement engine.
// The engine only ever flips IsBanned from false to true; unbanning is an
// explicit out-of-scope administrative action.
type Account struct {
	UserID    string     `json:"user_id"`
	IsBanned  bool       `json:"is_banned"`
	BannedAt  *time.Time `json:"banned_at,omitempty"`
	BanReason string     `json:"ban_reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
