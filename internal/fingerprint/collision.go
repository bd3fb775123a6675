// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package fingerprint detects device fingerprints shared across distinct
// user identities.
//
// A fingerprint hash observed under more than one non-empty user ID is a
// collision: the same physical device (or the same spoofed fingerprint)
// operating multiple accounts. Records without a user ID are indexed but
// never produce collisions on their own.
package fingerprint

import (
	"sync"

	"github.com/tomtom215/fraudguard/internal/models"
)

// Result is the collision assessment for one user.
type Result struct {
	// Collision is true when any of the user's fingerprints is shared
	// with at least one other distinct user.
	Collision bool `json:"collision"`

	// CollisionCount is the number of *other* distinct users sharing any
	// of this user's fingerprints.
	CollisionCount int `json:"collision_count"`
}

// Index groups fingerprint records by hash for collision queries.
// Build it once per evaluation window; queries are safe for concurrent use.
type Index struct {
	// usersByHash maps fingerprint hash -> set of distinct user IDs.
	usersByHash map[string]map[string]struct{}

	// hashesByUser maps user ID -> set of fingerprint hashes.
	hashesByUser map[string]map[string]struct{}

	mu sync.RWMutex
}

// NewIndex builds an index over all fingerprint records in the evaluation
// window. Anonymous records (empty user ID) are skipped: they cannot tie
// two identities together.
func NewIndex(records []models.FingerprintRecord) *Index {
	idx := &Index{
		usersByHash:  make(map[string]map[string]struct{}),
		hashesByUser: make(map[string]map[string]struct{}),
	}

	for i := range records {
		r := &records[i]
		if r.Hash == "" || r.UserID == "" {
			continue
		}

		users, ok := idx.usersByHash[r.Hash]
		if !ok {
			users = make(map[string]struct{})
			idx.usersByHash[r.Hash] = users
		}
		users[r.UserID] = struct{}{}

		hashes, ok := idx.hashesByUser[r.UserID]
		if !ok {
			hashes = make(map[string]struct{})
			idx.hashesByUser[r.UserID] = hashes
		}
		hashes[r.Hash] = struct{}{}
	}

	return idx
}

// ForUser returns the collision assessment for the given user.
// A hash used only by one user never flags.
func (idx *Index) ForUser(userID string) Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	others := make(map[string]struct{})
	for hash := range idx.hashesByUser[userID] {
		for uid := range idx.usersByHash[hash] {
			if uid != userID {
				others[uid] = struct{}{}
			}
		}
	}

	return Result{
		Collision:      len(others) > 0,
		CollisionCount: len(others),
	}
}

// SharedHashes returns the subset of a user's fingerprint hashes that are
// also used by other users. Used for audit detail, not for scoring.
func (idx *Index) SharedHashes(userID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var shared []string
	for hash := range idx.hashesByUser[userID] {
		if len(idx.usersByHash[hash]) > 1 {
			shared = append(shared, hash)
		}
	}
	return shared
}
