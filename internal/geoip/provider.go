// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package geoip resolves login IP addresses to geographic locations.
//
// Provider priority (first available wins): local MMDB file, MaxMind
// GeoLite2 web service, ip-api.com. The resolver wraps providers with a
// circuit breaker, an outbound rate limiter, and a persistent TTL cache.
package geoip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/models"
)

// Provider defines the interface for geolocation lookup services.
type Provider interface {
	// Lookup returns geolocation data for the given IP address.
	// Returns nil and an error if the lookup fails or the IP is invalid.
	Lookup(ctx context.Context, ipAddress string) (*models.Location, error)

	// Name returns the provider name for logging and metrics.
	Name() string

	// IsAvailable checks if the provider is properly configured.
	IsAvailable() bool
}

// SelectProvider picks a provider from configuration: the forced one when
// cfg.Provider is set, otherwise the first available in priority order.
func SelectProvider(cfg config.GeoIPConfig) (Provider, error) {
	candidates := []Provider{
		NewMMDBProvider(cfg.MMDBPath),
		NewMaxMindProvider(cfg.MaxMindAccountID, cfg.MaxMindLicenseKey),
		NewIPAPIProvider(),
	}

	if cfg.Provider != "" {
		for _, p := range candidates {
			if p.Name() == cfg.Provider {
				if !p.IsAvailable() {
					return nil, fmt.Errorf("geoip provider %q is configured but not available", cfg.Provider)
				}
				return p, nil
			}
		}
		return nil, fmt.Errorf("unknown geoip provider: %s", cfg.Provider)
	}

	for _, p := range candidates {
		if p.IsAvailable() {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no geoip provider available")
}

// ========================================
// MaxMind GeoLite2 Provider
// ========================================

// MaxMindProvider implements Provider using MaxMind's GeoLite2 web service.
// Requires a free MaxMind account and license key.
// Rate limit: 1,000 lookups/day for GeoLite2 free tier.
type MaxMindProvider struct {
	client     *http.Client
	accountID  string
	licenseKey string
	baseURL    string
}

// maxMindResponse represents the JSON response from MaxMind GeoLite2 web service
type maxMindResponse struct {
	City struct {
		Names map[string]string `json:"names"`
	} `json:"city"`
	Country struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"country"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

// maxMindErrorResponse represents error responses from MaxMind
type maxMindErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewMaxMindProvider creates a new MaxMind GeoLite2 provider.
// accountID and licenseKey can be obtained from https://www.maxmind.com/en/account
func NewMaxMindProvider(accountID, licenseKey string) *MaxMindProvider {
	return &MaxMindProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		accountID:  accountID,
		licenseKey: licenseKey,
		baseURL:    "https://geolite.info/geoip/v2.1/city",
	}
}

// Name returns the provider name.
func (p *MaxMindProvider) Name() string {
	return "maxmind"
}

// IsAvailable returns true if account ID and license key are configured.
func (p *MaxMindProvider) IsAvailable() bool {
	return p.accountID != "" && p.licenseKey != ""
}

// Lookup queries MaxMind GeoLite2 web service for geolocation data.
func (p *MaxMindProvider) Lookup(ctx context.Context, ipAddress string) (*models.Location, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("MaxMind credentials not configured")
	}
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	result, err := p.queryMaxMind(ctx, ipAddress)
	if err != nil {
		return nil, err
	}

	return &models.Location{
		City:      result.City.Names["en"],
		Country:   result.Country.Names["en"],
		Latitude:  result.Location.Latitude,
		Longitude: result.Location.Longitude,
	}, nil
}

func (p *MaxMindProvider) queryMaxMind(ctx context.Context, ipAddress string) (*maxMindResponse, error) {
	url := fmt.Sprintf("%s/%s", p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// MaxMind uses Basic Auth with account ID as username and license key as password
	req.SetBasicAuth(p.accountID, p.licenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query MaxMind: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp maxMindErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("MaxMind error (%s): %s", errResp.Code, errResp.Error)
		}
		return nil, fmt.Errorf("MaxMind returned status %d", resp.StatusCode)
	}

	var result maxMindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode MaxMind response: %w", err)
	}

	return &result, nil
}

// ========================================
// ip-api.com Provider (Free, No API Key)
// ========================================

// IPAPIProvider implements Provider using the free ip-api.com service.
// Rate limit: 45 requests per minute (free tier, no API key required);
// the resolver's outbound rate limiter enforces this.
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
}

// ipAPIResponse represents the JSON response from ip-api.com
type ipAPIResponse struct {
	Status  string  `json:"status"`  // "success" or "fail"
	Message string  `json:"message"` // Error message if status is "fail"
	Country string  `json:"country"` // Country name
	City    string  `json:"city"`    // City name
	Lat     float64 `json:"lat"`     // Latitude
	Lon     float64 `json:"lon"`     // Longitude
	Query   string  `json:"query"`   // IP address queried
}

// NewIPAPIProvider creates a new ip-api.com provider.
func NewIPAPIProvider() *IPAPIProvider {
	return &IPAPIProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: "http://ip-api.com/json",
	}
}

// Name returns the provider name.
func (p *IPAPIProvider) Name() string {
	return "ipapi"
}

// IsAvailable returns true (ip-api.com doesn't require an API key).
func (p *IPAPIProvider) IsAvailable() bool {
	return true
}

// Lookup queries ip-api.com for geolocation data.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.Location, error) {
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	url := fmt.Sprintf("%s/%s?fields=status,message,country,city,lat,lon,query",
		p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api.com lookup failed: %s", result.Message)
	}

	return &models.Location{
		City:      result.City,
		Country:   result.Country,
		Latitude:  result.Lat,
		Longitude: result.Lon,
	}, nil
}

// IsPrivateIP checks if the IP address is in a private/local range.
// Private IPs cannot be geolocated and resolve to an unknown location.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	// RFC 1918: 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16
	// Loopback: 127.0.0.0/8
	// Link-local: 169.254.0.0/16
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"::1/128",   // IPv6 loopback
		"fc00::/7",  // IPv6 unique local
		"fe80::/10", // IPv6 link-local
	}

	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}

	return false
}

// NormalizeIPAddress strips a port from the IP address if present.
func NormalizeIPAddress(ipAddr string) string {
	if strings.HasPrefix(ipAddr, "[") {
		// IPv6 with port: [::1]:443 -> ::1
		if idx := strings.LastIndex(ipAddr, "]:"); idx != -1 {
			return ipAddr[1:idx]
		}
		return strings.Trim(ipAddr, "[]")
	}

	// IPv4 with port: 192.168.1.1:443 -> 192.168.1.1
	// Only strip if it looks like host:port (single colon)
	if strings.Count(ipAddr, ":") != 1 {
		return ipAddr
	}
	if idx := strings.LastIndex(ipAddr, ":"); idx != -1 {
		return ipAddr[:idx]
	}
	return ipAddr
}
