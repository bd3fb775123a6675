// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/logging"
	"github.com/tomtom215/fraudguard/internal/risk"
)

// Runner is the batch entry point the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (*risk.Summary, error)
}

// Scheduler triggers a batch risk evaluation on a fixed interval. It
// implements suture.Service. A run still in flight when the ticker fires is
// skipped, never queued: Runner.Run fails fast with ErrRunInProgress and the
// scheduler treats that as a skip.
type Scheduler struct {
	interval   time.Duration
	runner     Runner
	runAtStart bool
}

// New creates a batch scheduler. runAtStart triggers one evaluation
// immediately on service start instead of waiting a full interval.
func New(cfg config.BatchConfig, runner Runner, runAtStart bool) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		interval:   interval,
		runner:     runner,
		runAtStart: runAtStart,
	}
}

// Serve runs the tick loop until the context is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("batch scheduler started")

	if s.runAtStart {
		s.trigger(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("batch scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, risk.ErrRunInProgress) {
			logging.Warn().Msg("skipping scheduled batch run: previous run still in flight")
			return
		}
		// Run failures are logged and metered inside the runner; the
		// scheduler keeps ticking.
		logging.Error().Err(err).Msg("scheduled batch run failed")
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "batch-scheduler"
}
