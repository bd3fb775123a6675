// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package pattern learns a per-user behavioral baseline from login history.
//
// The baseline is a pure derivation: it is rebuilt from the most recent
// login events every time it is needed and is never persisted. This trades
// recomputation cost for zero staleness risk; callers that need caching can
// memoize by (userID, latest login ID) without changing the derivation.
package pattern

import (
	"errors"
	"sort"
	"strings"

	"github.com/tomtom215/fraudguard/internal/models"
)

// ErrInsufficientHistory is returned when a user has fewer resolved logins
// than the configured minimum. Callers must treat this as "no pattern" and
// skip anomaly detection entirely rather than scoring against thin data.
var ErrInsufficientHistory = errors.New("insufficient login history for baseline")

// CountryFrequency is one entry of the home-location table.
type CountryFrequency struct {
	Country   string  `json:"country"`
	Count     int     `json:"count"`
	Frequency float64 `json:"frequency"`
}

// Pattern is a user's learned behavioral baseline.
type Pattern struct {
	// HomeLocations is ordered by descending frequency; ties keep
	// first-seen order. The first entry is the home country.
	HomeLocations []CountryFrequency `json:"home_locations"`

	// LocationConsistency is homeCountry occurrences / resolved logins.
	LocationConsistency float64 `json:"location_consistency"`

	// DominantDevice is the most frequent normalized device signature.
	DominantDevice string `json:"dominant_device"`

	// DeviceConsistency is dominantDevice occurrences / total logins.
	DeviceConsistency float64 `json:"device_consistency"`

	// ResolvedLogins and TotalLogins record the sample sizes behind the
	// ratios above.
	ResolvedLogins int `json:"resolved_logins"`
	TotalLogins    int `json:"total_logins"`
}

// HomeCountry returns the most frequent country, or "" with no resolved data.
func (p *Pattern) HomeCountry() string {
	if p == nil || len(p.HomeLocations) == 0 {
		return ""
	}
	return p.HomeLocations[0].Country
}

// CountryFrequencyOf returns the historical frequency of the given country
// among resolved logins, or 0 if never seen.
func (p *Pattern) CountryFrequencyOf(country string) float64 {
	if p == nil {
		return 0
	}
	for _, cf := range p.HomeLocations {
		if cf.Country == country {
			return cf.Frequency
		}
	}
	return 0
}

// Learn builds a Pattern from a user's chronologically ordered login events.
//
// Events without a resolved location still count toward device consistency
// but are excluded from location math. Returns ErrInsufficientHistory when
// fewer than minHistory events have a resolved location.
func Learn(events []models.LoginEvent, minHistory int) (*Pattern, error) {
	if minHistory < 2 {
		minHistory = 2
	}

	resolved := 0
	countryCounts := make(map[string]int)
	countryOrder := make([]string, 0, 8) // first-seen order for tie-breaks
	deviceCounts := make(map[string]int)
	deviceOrder := make([]string, 0, 4)

	for i := range events {
		e := &events[i]

		sig := DeviceSignature(e.UserAgent)
		if _, seen := deviceCounts[sig]; !seen {
			deviceOrder = append(deviceOrder, sig)
		}
		deviceCounts[sig]++

		if !e.Location.Known() || e.Location.Country == "" {
			continue
		}
		resolved++
		if _, seen := countryCounts[e.Location.Country]; !seen {
			countryOrder = append(countryOrder, e.Location.Country)
		}
		countryCounts[e.Location.Country]++
	}

	if resolved < minHistory {
		return nil, ErrInsufficientHistory
	}

	home := make([]CountryFrequency, 0, len(countryOrder))
	for _, country := range countryOrder {
		count := countryCounts[country]
		home = append(home, CountryFrequency{
			Country:   country,
			Count:     count,
			Frequency: float64(count) / float64(resolved),
		})
	}
	// Stable sort keeps first-seen order among equal counts.
	sort.SliceStable(home, func(i, j int) bool {
		return home[i].Count > home[j].Count
	})

	dominantDevice := ""
	dominantCount := 0
	for _, sig := range deviceOrder {
		if deviceCounts[sig] > dominantCount {
			dominantDevice = sig
			dominantCount = deviceCounts[sig]
		}
	}

	p := &Pattern{
		HomeLocations:  home,
		DominantDevice: dominantDevice,
		ResolvedLogins: resolved,
		TotalLogins:    len(events),
	}
	p.LocationConsistency = float64(home[0].Count) / float64(resolved)
	if len(events) > 0 {
		p.DeviceConsistency = float64(dominantCount) / float64(len(events))
	}

	return p, nil
}

// DeviceSignature normalizes a raw user-agent string into a coarse
// "browser/os" identifier. Two logins from the same browser and OS produce
// the same signature regardless of version churn.
func DeviceSignature(userAgent string) string {
	return browserFamily(userAgent) + "/" + osFamily(userAgent)
}

// Order matters: Edge and Opera embed "Chrome", Chrome embeds "Safari".
func browserFamily(ua string) string {
	switch {
	case strings.Contains(ua, "Edg/"), strings.Contains(ua, "Edge/"):
		return "Edge"
	case strings.Contains(ua, "OPR/"), strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "CriOS/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	case strings.Contains(ua, "MSIE"), strings.Contains(ua, "Trident/"):
		return "IE"
	case ua == "":
		return "Unknown"
	default:
		return "Other"
	}
}

func osFamily(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return "iOS"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}
