// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package geoip

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/models"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false}, // outside the /12
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"8.8.8.8", false},
		{"203.0.113.10", false},
		{"2001:4860:4860::8888", false},
		{"not-an-ip", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := IsPrivateIP(tt.ip); got != tt.want {
				t.Errorf("IsPrivateIP(%q) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestNormalizeIPAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.1.1", "192.168.1.1"},
		{"192.168.1.1:443", "192.168.1.1"},
		{"[::1]:443", "::1"},
		{"[2001:db8::1]:8080", "2001:db8::1"},
		{"[::1]", "::1"},
		{"2001:db8::1", "2001:db8::1"}, // bare IPv6, no port to strip
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeIPAddress(tt.in); got != tt.want {
				t.Errorf("NormalizeIPAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSelectProvider(t *testing.T) {
	t.Run("falls back to ipapi with no configuration", func(t *testing.T) {
		p, err := SelectProvider(config.GeoIPConfig{})
		if err != nil {
			t.Fatalf("SelectProvider returned error: %v", err)
		}
		if p.Name() != "ipapi" {
			t.Errorf("provider = %q, want ipapi", p.Name())
		}
	})

	t.Run("maxmind credentials outrank ipapi", func(t *testing.T) {
		p, err := SelectProvider(config.GeoIPConfig{
			MaxMindAccountID:  "12345",
			MaxMindLicenseKey: "key",
		})
		if err != nil {
			t.Fatalf("SelectProvider returned error: %v", err)
		}
		if p.Name() != "maxmind" {
			t.Errorf("provider = %q, want maxmind", p.Name())
		}
	})

	t.Run("forced provider must be available", func(t *testing.T) {
		_, err := SelectProvider(config.GeoIPConfig{Provider: "mmdb"})
		if err == nil {
			t.Fatal("expected error forcing mmdb without a database file")
		}
	})

	t.Run("unknown forced provider", func(t *testing.T) {
		_, err := SelectProvider(config.GeoIPConfig{Provider: "bogus"})
		if err == nil {
			t.Fatal("expected error for unknown provider name")
		}
	})
}

type countingResolver struct {
	mu    sync.Mutex
	calls map[string]int
	loc   *models.Location
	err   error
}

func (c *countingResolver) Resolve(_ context.Context, ip string) (*models.Location, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[ip]++
	return c.loc, c.err
}

func TestMemoizer(t *testing.T) {
	t.Run("resolves each distinct ip once", func(t *testing.T) {
		inner := &countingResolver{loc: &models.Location{Country: "ES", Latitude: 40, Longitude: -3}}
		memo := NewMemoizer(inner)

		for i := 0; i < 5; i++ {
			loc, err := memo.Resolve(context.Background(), "203.0.113.10")
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if loc == nil || loc.Country != "ES" {
				t.Fatalf("Resolve = %+v", loc)
			}
		}
		if inner.calls["203.0.113.10"] != 1 {
			t.Errorf("inner resolver called %d times, want 1", inner.calls["203.0.113.10"])
		}
	})

	t.Run("port variants share one entry", func(t *testing.T) {
		inner := &countingResolver{loc: &models.Location{Country: "ES", Latitude: 40, Longitude: -3}}
		memo := NewMemoizer(inner)

		if _, err := memo.Resolve(context.Background(), "203.0.113.10"); err != nil {
			t.Fatal(err)
		}
		if _, err := memo.Resolve(context.Background(), "203.0.113.10:443"); err != nil {
			t.Fatal(err)
		}
		if inner.calls["203.0.113.10"] != 1 {
			t.Errorf("inner resolver called %d times, want 1 across port variants", inner.calls["203.0.113.10"])
		}
	})

	t.Run("unknown results are memoized too", func(t *testing.T) {
		inner := &countingResolver{loc: nil}
		memo := NewMemoizer(inner)

		for i := 0; i < 3; i++ {
			loc, err := memo.Resolve(context.Background(), "10.0.0.1")
			if err != nil || loc != nil {
				t.Fatalf("Resolve = (%+v, %v), want (nil, nil)", loc, err)
			}
		}
		if inner.calls["10.0.0.1"] != 1 {
			t.Errorf("inner resolver called %d times for a nil result, want 1", inner.calls["10.0.0.1"])
		}
	})

	t.Run("errors are not memoized", func(t *testing.T) {
		inner := &countingResolver{err: errors.New("provider down")}
		memo := NewMemoizer(inner)

		for i := 0; i < 2; i++ {
			if _, err := memo.Resolve(context.Background(), "203.0.113.10"); err == nil {
				t.Fatal("expected error from inner resolver")
			}
		}
		if inner.calls["203.0.113.10"] != 2 {
			t.Errorf("inner resolver called %d times, want 2 (errors retry)", inner.calls["203.0.113.10"])
		}
	})
}
