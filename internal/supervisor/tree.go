// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package supervisor builds the suture supervision tree that owns every
// long-running component of the risk engine.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds restart and shutdown tuning for the tree. Zero values
// take suture's documented defaults.
type TreeConfig struct {
	// FailureThreshold is the failure count before entering backoff.
	FailureThreshold float64

	// FailureDecay is the failure decay rate in seconds.
	FailureDecay float64

	// FailureBackoff is how long to pause restarts once the threshold trips.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds graceful service shutdown.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the three-layer supervision hierarchy:
//
//   - ingest: embedded NATS server and the signal router
//   - evaluation: the batch scheduler
//   - api: the HTTP server
//
// A crashing ingest consumer restarts without touching the API layer, and
// vice versa.
type Tree struct {
	root       *suture.Supervisor
	ingest     *suture.Supervisor
	evaluation *suture.Supervisor
	api        *suture.Supervisor
}

// NewTree creates the supervision tree. Events are logged through the given
// slog logger (bridge from zerolog via logging.NewSlogLogger).
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// sutureslog's hook constructor has a pointer receiver:
	// (&Handler{Logger: logger}).MustHook()
	eventHook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("fraudguard", rootSpec)
	ingest := suture.New("ingest-layer", childSpec)
	evaluation := suture.New("evaluation-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(ingest)
	root.Add(evaluation)
	root.Add(api)

	return &Tree{
		root:       root,
		ingest:     ingest,
		evaluation: evaluation,
		api:        api,
	}
}

// AddIngestService adds a service to the ingest layer (NATS server, router).
func (t *Tree) AddIngestService(svc suture.Service) suture.ServiceToken {
	return t.ingest.Add(svc)
}

// AddEvaluationService adds a service to the evaluation layer (scheduler).
func (t *Tree) AddEvaluationService(svc suture.Service) suture.ServiceToken {
	return t.evaluation.Add(svc)
}

// AddAPIService adds a service to the API layer (HTTP server).
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve starts the tree and blocks until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
