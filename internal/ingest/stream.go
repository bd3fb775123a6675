// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/fraudguard/internal/config"
)

// JetStreamContext is the subset of jetstream.JetStream used for stream
// provisioning. Narrowed for testing with mocks.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// EnsureStream creates or updates the signal stream so publishers and
// subscribers find it in a known state. Idempotent: safe to call on every
// startup.
//
// The stream holds every signal subject under the configured prefix plus
// the poison topic, with file storage and FIFO limits retention.
func EnsureStream(ctx context.Context, js JetStreamContext, cfg config.NATSConfig) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name: cfg.StreamName,
		Subjects: []string{
			cfg.SubjectPrefix + ".>",
		},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Duplicates:  2 * time.Minute,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}

	_, err := js.Stream(ctx, cfg.StreamName)
	if err == nil {
		stream, err := js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", cfg.StreamName, err)
		}
		return stream, nil
	}

	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := js.CreateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
		}
		return stream, nil
	}

	return nil, fmt.Errorf("check stream %s: %w", cfg.StreamName, err)
}
