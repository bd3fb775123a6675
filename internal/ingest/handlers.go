// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package ingest

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/fraudguard/internal/geoip"
	"github.com/tomtom215/fraudguard/internal/logging"
	"github.com/tomtom215/fraudguard/internal/metrics"
	"github.com/tomtom215/fraudguard/internal/models"
)

// Store is the write surface the handlers need. Implemented by *database.DB.
type Store interface {
	EnsureAccount(ctx context.Context, userID string, createdAt time.Time) error
	InsertLoginEvent(ctx context.Context, e *models.LoginEvent) error
	InsertFingerprint(ctx context.Context, r *models.FingerprintRecord) error
	UpsertBehavioralSignal(ctx context.Context, s *models.BehavioralSignal) error
	UpsertIPReputation(ctx context.Context, r *models.IPReputation) error
}

// Handlers persists decoded signal envelopes. One instance serves all
// subjects; each handler is safe for concurrent use.
type Handlers struct {
	store    Store
	resolver geoip.LocationResolver
}

// NewHandlers creates the signal handlers. resolver may be nil; login events
// are then stored with unknown location and backfilled on read.
func NewHandlers(store Store, resolver geoip.LocationResolver) *Handlers {
	return &Handlers{store: store, resolver: resolver}
}

// HandleLogin persists one login event, resolving its location first.
// Non-login activity records on the subject are acknowledged and dropped.
// Geolocation failure degrades to unknown location, never a redelivery.
func (h *Handlers) HandleLogin(msg *message.Message) error {
	start := time.Now()
	metrics.IngestMessagesConsumed.WithLabelValues("login").Inc()

	event, err := decodeLogin(msg.Payload)
	if err != nil {
		return h.reject("login", msg, err)
	}
	if event == nil {
		return nil
	}

	ctx := msg.Context()
	if h.resolver != nil {
		loc, resolveErr := h.resolver.Resolve(ctx, event.IPAddress)
		if resolveErr == nil && loc != nil && loc.Known() {
			event.Location = loc
		}
	}

	if err := h.store.EnsureAccount(ctx, event.UserID, event.Timestamp); err != nil {
		return err
	}
	if err := h.store.InsertLoginEvent(ctx, event); err != nil {
		return err
	}

	metrics.IngestMessagesProcessed.WithLabelValues("login").Inc()
	metrics.IngestProcessingDuration.Observe(time.Since(start).Seconds())
	return nil
}

// HandleFingerprint persists one fingerprint observation.
func (h *Handlers) HandleFingerprint(msg *message.Message) error {
	start := time.Now()
	metrics.IngestMessagesConsumed.WithLabelValues("fingerprint").Inc()

	record, err := decodeFingerprint(msg.Payload)
	if err != nil {
		return h.reject("fingerprint", msg, err)
	}

	if err := h.store.InsertFingerprint(msg.Context(), record); err != nil {
		return err
	}

	metrics.IngestMessagesProcessed.WithLabelValues("fingerprint").Inc()
	metrics.IngestProcessingDuration.Observe(time.Since(start).Seconds())
	return nil
}

// HandleBehavior upserts one behavioral-biometric summary by session id.
func (h *Handlers) HandleBehavior(msg *message.Message) error {
	start := time.Now()
	metrics.IngestMessagesConsumed.WithLabelValues("behavior").Inc()

	signal, err := decodeBehavior(msg.Payload)
	if err != nil {
		return h.reject("behavior", msg, err)
	}

	if err := h.store.UpsertBehavioralSignal(msg.Context(), signal); err != nil {
		return err
	}

	metrics.IngestMessagesProcessed.WithLabelValues("behavior").Inc()
	metrics.IngestProcessingDuration.Observe(time.Since(start).Seconds())
	return nil
}

// HandleIPReputation upserts one IP-reputation record by ip address.
func (h *Handlers) HandleIPReputation(msg *message.Message) error {
	start := time.Now()
	metrics.IngestMessagesConsumed.WithLabelValues("ip_reputation").Inc()

	record, err := decodeIPReputation(msg.Payload)
	if err != nil {
		return h.reject("ip_reputation", msg, err)
	}

	if err := h.store.UpsertIPReputation(msg.Context(), record); err != nil {
		return err
	}

	metrics.IngestMessagesProcessed.WithLabelValues("ip_reputation").Inc()
	metrics.IngestProcessingDuration.Observe(time.Since(start).Seconds())
	return nil
}

// reject logs a malformed payload and returns the decode error so the retry
// middleware eventually routes the message to the poison topic.
func (h *Handlers) reject(signalType string, msg *message.Message, err error) error {
	logging.Warn().
		Err(err).
		Str("signal_type", signalType).
		Str("message_uuid", msg.UUID).
		Msg("rejecting malformed signal payload")
	return err
}
