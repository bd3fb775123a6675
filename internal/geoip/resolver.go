// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package geoip

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/logging"
	"github.com/tomtom215/fraudguard/internal/metrics"
	"github.com/tomtom215/fraudguard/internal/models"
)

// ErrRateLimited is returned when the outbound lookup budget is exhausted.
var ErrRateLimited = errors.New("geoip lookup rate limited")

// Resolver resolves IP addresses to locations through a single provider,
// protected by a circuit breaker and an outbound rate limiter, with a
// persistent TTL cache in front.
//
// A failed or rate-limited resolution is not an error for callers that can
// proceed with an unknown location: Resolve returns (nil, nil) in that case
// and the failure is negatively cached.
type Resolver struct {
	provider Provider
	cache    *Cache
	breaker  *gobreaker.CircuitBreaker[*models.Location]
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewResolver builds a resolver from configuration. The cache is optional
// (nil disables persistence); the provider is required.
func NewResolver(cfg config.GeoIPConfig, provider Provider, cache *Cache) *Resolver {
	perSecond := rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	burst := cfg.RateLimitPerMinute / 4
	if burst < 1 {
		burst = 1
	}

	cbSettings := gobreaker.Settings{
		Name:    "geoip-" + provider.Name(),
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("geoip circuit breaker state change")
		},
	}

	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Resolver{
		provider: provider,
		cache:    cache,
		breaker:  gobreaker.NewCircuitBreaker[*models.Location](cbSettings),
		limiter:  rate.NewLimiter(perSecond, burst),
		timeout:  timeout,
	}
}

// Provider returns the underlying provider (for logging at startup).
func (r *Resolver) Provider() Provider {
	return r.provider
}

// Resolve returns the location for an IP address, or (nil, nil) when the IP
// cannot be resolved (private range, provider down, rate limited, negative
// cache). A non-nil error means the caller should treat this as transient.
func (r *Resolver) Resolve(ctx context.Context, ipAddress string) (*models.Location, error) {
	ipAddress = NormalizeIPAddress(ipAddress)

	if IsPrivateIP(ipAddress) {
		return nil, nil
	}

	if r.cache != nil {
		loc, err := r.cache.Get(ipAddress)
		if err == nil {
			metrics.GeoIPCacheHits.Inc()
			return loc, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			logging.Warn().Err(err).Str("ip", ipAddress).Msg("geoip cache read failed")
		}
		metrics.GeoIPCacheMisses.Inc()
	}

	loc, err := r.lookup(ctx, ipAddress)
	if err != nil {
		// Soft failures resolve to unknown; negative-cache them so a dead
		// IP doesn't consume the lookup budget on every login.
		if errors.Is(err, ErrRateLimited) ||
			errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Debug().Err(err).Str("ip", ipAddress).Msg("geoip lookup unavailable")
			return nil, nil
		}
		r.cacheNegative(ipAddress)
		logging.Debug().
			Err(err).
			Str("provider", r.provider.Name()).
			Str("ip", ipAddress).
			Msg("geoip lookup failed")
		return nil, nil
	}

	if r.cache != nil {
		if cacheErr := r.cache.Put(ipAddress, loc); cacheErr != nil {
			logging.Warn().Err(cacheErr).Str("ip", ipAddress).Msg("failed to cache geoip result")
		}
	}
	return loc, nil
}

func (r *Resolver) lookup(ctx context.Context, ipAddress string) (*models.Location, error) {
	if !r.limiter.Allow() {
		metrics.RecordGeoIPLookup(r.provider.Name(), "rejected", 0)
		return nil, ErrRateLimited
	}

	start := time.Now()
	loc, err := r.breaker.Execute(func() (*models.Location, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.provider.Lookup(lookupCtx, ipAddress)
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordGeoIPLookup(r.provider.Name(), "failure", elapsed)
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}

	metrics.RecordGeoIPLookup(r.provider.Name(), "success", elapsed)
	return loc, nil
}

func (r *Resolver) cacheNegative(ipAddress string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.PutNegative(ipAddress); err != nil {
		logging.Warn().Err(err).Str("ip", ipAddress).Msg("failed to negative-cache geoip result")
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
