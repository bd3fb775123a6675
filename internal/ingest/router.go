// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/metrics"
)

// Router wraps the Watermill router with the middleware stack and one
// consumer handler per signal subject. It provides automatic ack/nack,
// panic recovery, exponential-backoff retry, and poison-queue routing.
type Router struct {
	router *message.Router
}

// NewRouter builds the ingest router. poisonPub may be nil to disable the
// poison queue (tests).
func NewRouter(
	cfg config.NATSConfig,
	subscriber message.Subscriber,
	poisonPub message.Publisher,
	handlers *Handlers,
	logger watermill.LoggerAdapter,
) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	// Middleware order (outer to inner): recover panics, retry transient
	// failures, then poison-route what still fails.
	wmRouter.AddMiddleware(middleware.Recoverer)

	retryMiddleware := middleware.Retry{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2.0,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retryMiddleware.Middleware)

	if poisonPub != nil && cfg.PoisonTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(&countingPublisher{inner: poisonPub}, cfg.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	}

	subjects := []struct {
		name    string
		suffix  string
		handler message.NoPublishHandlerFunc
	}{
		{"login-consumer", SubjectLogin, handlers.HandleLogin},
		{"fingerprint-consumer", SubjectFingerprint, handlers.HandleFingerprint},
		{"behavior-consumer", SubjectBehavior, handlers.HandleBehavior},
		{"ipreputation-consumer", SubjectIPReputation, handlers.HandleIPReputation},
	}
	for _, s := range subjects {
		wmRouter.AddConsumerHandler(
			s.name,
			cfg.SubjectPrefix+"."+s.suffix,
			subscriber,
			s.handler,
		)
	}

	return &Router{router: wmRouter}, nil
}

// Run processes messages until the context is canceled. Blocks.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Serve implements suture.Service.
func (r *Router) Serve(ctx context.Context) error {
	if err := r.router.Run(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

// String names the service in supervisor logs.
func (r *Router) String() string {
	return "ingest-router"
}

// Running returns a channel closed once the router is running.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close gracefully stops the router.
func (r *Router) Close() error {
	return r.router.Close()
}

// countingPublisher counts poison-routed messages by originating subject.
type countingPublisher struct {
	inner message.Publisher
}

func (p *countingPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		metrics.IngestMessagesPoisoned.WithLabelValues(poisonSignalType(msg)).Inc()
	}
	return p.inner.Publish(topic, messages...)
}

func (p *countingPublisher) Close() error {
	return p.inner.Close()
}

func poisonSignalType(msg *message.Message) string {
	topic := msg.Metadata.Get(middleware.PoisonedTopicKey)
	if idx := strings.LastIndex(topic, "."); idx != -1 && idx < len(topic)-1 {
		return topic[idx+1:]
	}
	return "unknown"
}
