// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/risk"
)

type countingRunner struct {
	runs atomic.Int64
	err  error
}

func (c *countingRunner) Run(_ context.Context) (*risk.Summary, error) {
	c.runs.Add(1)
	return &risk.Summary{}, c.err
}

func TestServeRunsAtStartAndOnTicks(t *testing.T) {
	runner := &countingRunner{}
	s := New(config.BatchConfig{Interval: 10 * time.Millisecond}, runner, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs before deadline, want >=3", runner.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
}

func TestServeSkipsWhileRunInFlight(t *testing.T) {
	// A busy runner must be skipped, not queued, and must not stop the loop.
	runner := &countingRunner{err: risk.ErrRunInProgress}
	s := New(config.BatchConfig{Interval: 10 * time.Millisecond}, runner, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs before deadline, want >=2", runner.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestNewDefaultsInterval(t *testing.T) {
	s := New(config.BatchConfig{}, &countingRunner{}, false)
	if s.interval != 15*time.Minute {
		t.Errorf("interval = %v, want 15m default", s.interval)
	}
	if got := s.String(); got != "batch-scheduler" {
		t.Errorf("String() = %q", got)
	}
}
