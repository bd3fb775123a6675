// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package geoip

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"github.com/tomtom215/fraudguard/internal/models"
)

// MMDBProvider implements Provider against a local GeoLite2-City.mmdb file.
// No network, no rate limits; preferred when a database file is present.
// The reader is opened lazily on first lookup so a misconfigured path fails
// at lookup time rather than at startup.
type MMDBProvider struct {
	path string

	mu     sync.Mutex
	reader *geoip2.Reader
}

// NewMMDBProvider creates a provider for a local MaxMind database file.
func NewMMDBProvider(path string) *MMDBProvider {
	return &MMDBProvider{path: path}
}

// Name returns the provider name.
func (p *MMDBProvider) Name() string {
	return "mmdb"
}

// IsAvailable returns true when the database file exists.
func (p *MMDBProvider) IsAvailable() bool {
	if p.path == "" {
		return false
	}
	_, err := os.Stat(p.path)
	return err == nil
}

// Lookup resolves an IP against the local database.
func (p *MMDBProvider) Lookup(_ context.Context, ipAddress string) (*models.Location, error) {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	reader, err := p.getReader()
	if err != nil {
		return nil, err
	}

	record, err := reader.City(ip)
	if err != nil {
		return nil, fmt.Errorf("mmdb lookup failed for %s: %w", ipAddress, err)
	}

	return &models.Location{
		City:      record.City.Names["en"],
		Country:   record.Country.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}, nil
}

// Close releases the underlying reader.
func (p *MMDBProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}

func (p *MMDBProvider) getReader() (*geoip2.Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader != nil {
		return p.reader, nil
	}

	reader, err := geoip2.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmdb %s: %w", p.path, err)
	}
	p.reader = reader
	return reader, nil
}
