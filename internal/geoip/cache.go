// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package geoip

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fraudguard/internal/models"
)

// Key prefix for BadgerDB storage
const locationKeyPrefix = "geoip:"

// ErrCacheMiss is returned when an IP has no cached entry.
var ErrCacheMiss = errors.New("geoip cache miss")

// Cache is a persistent TTL cache of IP-to-location lookups backed by
// BadgerDB. Entries expire via Badger's native TTL; a cached unknown
// location (failed lookup) is stored too, so dead IPs don't hammer the
// upstream provider on every login.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// cacheEntry is the stored representation. Resolved distinguishes "lookup
// failed, don't retry yet" from a real location.
type cacheEntry struct {
	Resolved bool             `json:"resolved"`
	Location *models.Location `json:"location,omitempty"`
}

// OpenCache opens (creating if necessary) the cache at dir.
func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip cache at %s: %w", dir, err)
	}

	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached location for an IP. A nil location with nil error
// means the lookup previously failed and is negatively cached.
func (c *Cache) Get(ipAddress string) (*models.Location, error) {
	var entry cacheEntry

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(locationKeyPrefix + ipAddress))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get location: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}

	if !entry.Resolved {
		return nil, nil
	}
	return entry.Location, nil
}

// Put stores a successful lookup.
func (c *Cache) Put(ipAddress string, loc *models.Location) error {
	return c.set(ipAddress, cacheEntry{Resolved: true, Location: loc}, c.ttl)
}

// PutNegative stores a failed lookup with a short TTL so the provider gets
// retried eventually but not per login.
func (c *Cache) PutNegative(ipAddress string) error {
	negTTL := c.ttl / 24
	if negTTL < time.Minute {
		negTTL = time.Minute
	}
	return c.set(ipAddress, cacheEntry{Resolved: false}, negTTL)
}

func (c *Cache) set(ipAddress string, entry cacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(locationKeyPrefix+ipAddress), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
