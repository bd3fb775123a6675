// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package geoip

import (
	"context"
	"sync"

	"github.com/tomtom215/fraudguard/internal/models"
)

// LocationResolver is the lookup surface consumers depend on. *Resolver and
// *Memoizer both satisfy it.
type LocationResolver interface {
	Resolve(ctx context.Context, ipAddress string) (*models.Location, error)
}

// Memoizer wraps a LocationResolver with a per-instance result map, so a
// single evaluation (one batch run, one API request) resolves each distinct
// IP at most once. Create one per evaluation and discard it; it never
// expires entries.
type Memoizer struct {
	inner LocationResolver

	mu      sync.Mutex
	results map[string]*models.Location
}

// NewMemoizer creates a memoizer over inner.
func NewMemoizer(inner LocationResolver) *Memoizer {
	return &Memoizer{
		inner:   inner,
		results: make(map[string]*models.Location),
	}
}

// Resolve returns the memoized location for an IP, resolving through the
// inner resolver on first sight. Unknown results (nil locations) are
// memoized too.
func (m *Memoizer) Resolve(ctx context.Context, ipAddress string) (*models.Location, error) {
	key := NormalizeIPAddress(ipAddress)

	m.mu.Lock()
	if loc, ok := m.results[key]; ok {
		m.mu.Unlock()
		return loc, nil
	}
	m.mu.Unlock()

	loc, err := m.inner.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.results[key] = loc
	m.mu.Unlock()
	return loc, nil
}
