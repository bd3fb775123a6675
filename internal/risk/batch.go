// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fraudguard/internal/audit"
	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/fingerprint"
	"github.com/tomtom215/fraudguard/internal/logging"
	"github.com/tomtom215/fraudguard/internal/metrics"
	"github.com/tomtom215/fraudguard/internal/models"
)

// fingerprintWindow bounds how far back collision indexing looks. Fingerprints
// older than this no longer tie two identities together.
const fingerprintWindow = 30 * 24 * time.Hour

// ErrRunInProgress is returned by Run when a batch evaluation is already
// executing.
var ErrRunInProgress = errors.New("batch run already in progress")

// SignalStore is the read surface the batch runner needs.
// Implemented by *database.DB.
type SignalStore interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
	FingerprintsSince(ctx context.Context, since time.Time) ([]models.FingerprintRecord, error)
	LatestBehavioralSignal(ctx context.Context, userID string) (*models.BehavioralSignal, error)
	LatestIPReputation(ctx context.Context, userID string) (*models.IPReputation, error)
}

// Summary is the result of one batch evaluation run.
type Summary struct {
	StartedAt         time.Time `json:"started_at"`
	Duration          string    `json:"duration"`
	UsersEvaluated    int       `json:"users_evaluated"`
	UsersSkipped      int       `json:"users_skipped"`
	AutoBannedCount   int       `json:"auto_banned_count"`
	AutoBannedUserIDs []string  `json:"auto_banned_user_ids,omitempty"`
	RiskSignalsCount  int       `json:"risk_signals_count"`
	TopRiskSignals    []Signal  `json:"top_risk_signals,omitempty"`
	BanFailures       int       `json:"ban_failures"`
}

// Runner evaluates every active account against the current signal stores
// with a bounded worker pool. Each user's evaluation is independent: per-user
// failures are logged and skipped, never aborting the run, and cancellation
// is honored between user evaluations so an aborted run leaves no partial
// per-user state.
type Runner struct {
	cfg        config.BatchConfig
	store      SignalStore
	aggregator *Aggregator
	enforcer   *Enforcer
	auditLog   *audit.Logger

	mu          sync.Mutex
	running     bool
	banFailures int
	lastSummary *Summary
}

// NewRunner creates a batch runner. auditLog may be nil in tests.
func NewRunner(cfg config.BatchConfig, store SignalStore, aggregator *Aggregator, enforcer *Enforcer, auditLog *audit.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		store:      store,
		aggregator: aggregator,
		enforcer:   enforcer,
		auditLog:   auditLog,
	}
}

// Run executes one full batch evaluation. Only one run executes at a time;
// a second concurrent call fails fast instead of queueing.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	start := time.Now()

	summary, err := r.run(ctx, start)
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordBatchRun(elapsed, 0, 0, err)
		logging.Error().Err(err).Dur("elapsed", elapsed).Msg("batch run failed")
		return nil, err
	}

	summary.Duration = elapsed.Round(time.Millisecond).String()
	metrics.RecordBatchRun(elapsed, summary.UsersEvaluated, summary.UsersSkipped, nil)
	r.recordCompletion(ctx, summary)

	r.mu.Lock()
	r.lastSummary = summary
	r.mu.Unlock()

	logging.Info().
		Int("users_evaluated", summary.UsersEvaluated).
		Int("users_skipped", summary.UsersSkipped).
		Int("auto_banned", summary.AutoBannedCount).
		Int("risk_signals", summary.RiskSignalsCount).
		Int("ban_failures", summary.BanFailures).
		Dur("elapsed", elapsed).
		Msg("batch run completed")

	return summary, nil
}

func (r *Runner) run(ctx context.Context, start time.Time) (*Summary, error) {
	userIDs, err := r.store.ActiveUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch active users: %w", err)
	}

	records, err := r.store.FingerprintsSince(ctx, start.Add(-fingerprintWindow))
	if err != nil {
		return nil, fmt.Errorf("fetch fingerprints: %w", err)
	}
	idx := fingerprint.NewIndex(records)

	concurrency := r.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		sem      = make(chan struct{}, concurrency)
		summary  = &Summary{StartedAt: start.UTC()}
		surfaced []Signal
	)

	for _, userID := range userIDs {
		// Abort between users, never mid-evaluation.
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(userID string) {
			defer wg.Done()
			defer func() { <-sem }()

			banned, sig, evalErr := r.evaluateUser(ctx, userID, idx)

			mu.Lock()
			defer mu.Unlock()
			if evalErr != nil {
				summary.UsersSkipped++
				return
			}
			summary.UsersEvaluated++
			if banned {
				summary.AutoBannedCount++
				summary.AutoBannedUserIDs = append(summary.AutoBannedUserIDs, userID)
			} else if r.aggregator.ShouldReport(sig) {
				summary.RiskSignalsCount++
				surfaced = append(surfaced, sig)
			}
		}(userID)
	}
	wg.Wait()

	summary.BanFailures = r.countBanFailures()
	summary.TopRiskSignals = topSignals(surfaced, r.cfg.TopSignalsPreview)
	sort.Strings(summary.AutoBannedUserIDs)

	if ctx.Err() != nil {
		logging.Warn().
			Int("users_evaluated", summary.UsersEvaluated).
			Msg("batch run aborted between user evaluations")
	}
	return summary, nil
}

// evaluateUser fetches the user's signals, aggregates, and enforces.
// Any fetch failure skips the user for this run (no action, no false
// positives from partial data).
func (r *Runner) evaluateUser(ctx context.Context, userID string, idx *fingerprint.Index) (bool, Signal, error) {
	in := Signals{
		UserID:    userID,
		Collision: idx.ForUser(userID),
	}

	behavior, err := r.store.LatestBehavioralSignal(ctx, userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("skipping user: behavioral signal fetch failed")
		return false, Signal{}, err
	}
	in.Behavior = behavior

	reputation, err := r.store.LatestIPReputation(ctx, userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("skipping user: ip reputation fetch failed")
		return false, Signal{}, err
	}
	in.IPReputation = reputation

	sig := r.aggregator.Aggregate(in)

	banned, err := r.enforcer.Enforce(ctx, sig, in)
	if err != nil {
		// Ban write failures count in the summary; the evaluation itself
		// succeeded, so the user is not counted as skipped.
		r.noteBanFailure()
		return false, sig, nil
	}
	return banned, sig, nil
}

// LastSummary returns the summary of the most recent completed run, or nil
// when no run has completed yet.
func (r *Runner) LastSummary() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSummary
}

func (r *Runner) noteBanFailure() {
	r.mu.Lock()
	r.banFailures++
	r.mu.Unlock()
}

func (r *Runner) countBanFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := r.banFailures
	r.banFailures = 0
	return count
}

func (r *Runner) recordCompletion(ctx context.Context, summary *Summary) {
	if r.auditLog == nil {
		return
	}
	meta, err := json.Marshal(summary)
	if err != nil {
		meta = nil
	}
	r.auditLog.Record(ctx, &audit.Event{
		Type:     audit.EventTypeBatchCompleted,
		Severity: audit.SeverityInfo,
		Outcome:  audit.OutcomeSuccess,
		Description: fmt.Sprintf(
			"Batch risk evaluation completed: %d evaluated, %d banned, %d surfaced",
			summary.UsersEvaluated, summary.AutoBannedCount, summary.RiskSignalsCount),
		Metadata: meta,
	})
}

// topSignals returns the highest-scoring surfaced signals, bounded by limit.
// Ties keep user-ID order for determinism.
func topSignals(signals []Signal, limit int) []Signal {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].RiskScore != signals[j].RiskScore {
			return signals[i].RiskScore > signals[j].RiskScore
		}
		return signals[i].UserID < signals[j].UserID
	})
	if limit > 0 && len(signals) > limit {
		signals = signals[:limit]
	}
	return signals
}
