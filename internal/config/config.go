// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package config

import (
	"time"
)

// Config is the root configuration structure.
// Loaded via Load() with precedence ENV > config file > defaults.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	GeoIP    GeoIPConfig    `koanf:"geoip"`
	NATS     NATSConfig     `koanf:"nats"`
	Risk     RiskConfig     `koanf:"risk"`
	Batch    BatchConfig    `koanf:"batch"`
	Audit    AuditConfig    `koanf:"audit"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment" validate:"oneof=development production"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" is valid for tests.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory caps DuckDB memory usage (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads for DuckDB query execution. 0 = runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// GeoIPConfig holds configuration for IP geolocation lookup.
//
// Provider priority (first available wins):
//  1. Local MMDB file (no network, no rate limits)
//  2. MaxMind GeoLite2 web service (if credentials configured)
//  3. ip-api.com (free, no API key required, 45 req/min limit)
type GeoIPConfig struct {
	// Provider forces a specific provider: "mmdb", "maxmind", "ipapi".
	// Empty = auto-detect based on available configuration.
	Provider string `koanf:"provider" validate:"omitempty,oneof=mmdb maxmind ipapi"`

	// MMDBPath is the path to a local GeoLite2-City.mmdb file.
	MMDBPath string `koanf:"mmdb_path"`

	// MaxMind GeoLite2 web service credentials.
	MaxMindAccountID  string `koanf:"maxmind_account_id"`
	MaxMindLicenseKey string `koanf:"maxmind_license_key"`

	// CachePath is the directory for the persistent lookup cache.
	// Empty disables the persistent cache (in-request memoization still applies).
	CachePath string `koanf:"cache_path"`

	// CacheTTL is how long cached lookups stay valid.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// RateLimitPerMinute caps outbound lookups (ip-api free tier: 45/min).
	RateLimitPerMinute int `koanf:"rate_limit_per_minute" validate:"gt=0"`

	// BreakerFailures is the consecutive-failure count that opens the
	// circuit breaker around the lookup provider.
	BreakerFailures uint32 `koanf:"breaker_failures" validate:"gt=0"`

	// BreakerTimeout is how long the breaker stays open before half-open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`

	// LookupTimeout bounds a single provider lookup.
	LookupTimeout time.Duration `koanf:"lookup_timeout"`
}

// NATSConfig holds signal-ingestion settings.
type NATSConfig struct {
	// Enabled controls whether the ingest router runs at all.
	Enabled bool `koanf:"enabled"`

	// URL of the NATS server.
	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process NATS server (standalone mode).
	EmbeddedServer bool `koanf:"embedded_server"`

	// StoreDir is the JetStream storage directory for the embedded server.
	StoreDir string `koanf:"store_dir"`

	// StreamName is the JetStream stream holding all signal subjects.
	StreamName string `koanf:"stream_name"`

	// SubjectPrefix is the prefix for signal subjects (e.g. "signals").
	SubjectPrefix string `koanf:"subject_prefix"`

	// DurableName prefixes durable consumer names.
	DurableName string `koanf:"durable_name"`

	// QueueGroup enables load balancing across instances.
	QueueGroup string `koanf:"queue_group"`

	// SubscribersCount is the number of concurrent subscribers per subject.
	SubscribersCount int `koanf:"subscribers_count" validate:"gte=1"`

	// MaxDeliver is the JetStream redelivery cap before a message is dropped.
	MaxDeliver int `koanf:"max_deliver" validate:"gte=1"`

	// AckWait is the JetStream ack timeout.
	AckWait time.Duration `koanf:"ack_wait"`

	// CloseTimeout bounds router shutdown.
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// PoisonTopic receives undecodable or permanently failing messages.
	PoisonTopic string `koanf:"poison_topic"`

	// MaxReconnects and ReconnectWait tune client reconnection.
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// RiskConfig holds the scoring weights and thresholds for both the per-login
// anomaly scorer and the batch risk aggregator.
//
// The weights were literals buried in scoring code historically; they are
// hoisted here, versioned, so weight changes are auditable and testable
// independently of the aggregation logic. Magnitudes are adjustable but the
// ordering and thresholds are load-bearing: the documented semantics are
// collision +30, bot>=70 +40, ip fraud>=75 +20, VPN/Proxy/Tor +15, auto-ban
// at composite >=70, human review above 30.
type RiskConfig struct {
	// Version identifies this weight set in audit records.
	Version int `koanf:"version" validate:"gte=1"`

	// Aggregator weights.
	CollisionWeight     int `koanf:"collision_weight" validate:"gte=0,lte=100"`
	BotWeight           int `koanf:"bot_weight" validate:"gte=0,lte=100"`
	BotScoreThreshold   int `koanf:"bot_score_threshold" validate:"gte=0,lte=100"`
	FraudWeight         int `koanf:"fraud_weight" validate:"gte=0,lte=100"`
	FraudScoreThreshold int `koanf:"fraud_score_threshold" validate:"gte=0,lte=100"`
	AnonymizerWeight    int `koanf:"anonymizer_weight" validate:"gte=0,lte=100"`

	// BanThreshold is the composite score at which the enforcement engine
	// bans automatically (inclusive).
	BanThreshold int `koanf:"ban_threshold" validate:"gt=0,lte=100"`

	// ReportThreshold is the composite score above which (exclusive) a user
	// is surfaced for human review without being banned.
	ReportThreshold int `koanf:"report_threshold" validate:"gte=0,lte=100"`

	// Anomaly scorer weights.
	MaxTravelSpeedKmH      float64 `koanf:"max_travel_speed_kmh" validate:"gt=0"`
	ImpossibleTravelWeight int     `koanf:"impossible_travel_weight" validate:"gte=0,lte=100"`
	RareLocationWeight     int     `koanf:"rare_location_weight" validate:"gte=0,lte=100"`
	RareLocationFrequency  float64 `koanf:"rare_location_frequency" validate:"gt=0,lt=1"`
	DeviceMismatchWeight   int     `koanf:"device_mismatch_weight" validate:"gte=0,lte=100"`

	// MinHistory is the minimum resolved logins required before any
	// baseline is learned. Below this, anomaly detection is skipped.
	MinHistory int `koanf:"min_history" validate:"gte=2"`

	// HistoryWindow is how many recent login events feed the baseline.
	HistoryWindow int `koanf:"history_window" validate:"gte=3"`
}

// BatchConfig holds batch risk-evaluation settings.
type BatchConfig struct {
	// Interval between scheduled batch runs.
	Interval time.Duration `koanf:"interval"`

	// Concurrency is the bounded worker pool size for per-user evaluation.
	Concurrency int `koanf:"concurrency" validate:"gte=1"`

	// TopSignalsPreview bounds the risk-signal preview in the run summary.
	TopSignalsPreview int `koanf:"top_signals_preview" validate:"gte=1"`

	// RunTimeout bounds one full batch run.
	RunTimeout time.Duration `koanf:"run_timeout"`
}

// AuditConfig holds audit-log settings.
type AuditConfig struct {
	Enabled       bool `koanf:"enabled"`
	BufferSize    int  `koanf:"buffer_size" validate:"gte=1"`
	RetentionDays int  `koanf:"retention_days" validate:"gte=1"`
}

// SecurityConfig holds API security settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies API bearer tokens (HS256).
	// Required in production.
	JWTSecret string `koanf:"jwt_secret"`

	// RateLimitReqs / RateLimitWindow apply per-IP to the API surface.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins for the external dashboard consumers.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. These are applied
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3861,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/fraudguard.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		GeoIP: GeoIPConfig{
			Provider:           "",
			MMDBPath:           "",
			MaxMindAccountID:   "",
			MaxMindLicenseKey:  "",
			CachePath:          "/data/geoip-cache",
			CacheTTL:           7 * 24 * time.Hour,
			RateLimitPerMinute: 45, // ip-api.com free tier
			BreakerFailures:    5,
			BreakerTimeout:     30 * time.Second,
			LookupTimeout:      10 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:          true,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/nats/jetstream",
			StreamName:       "SIGNALS",
			SubjectPrefix:    "signals",
			DurableName:      "fraudguard",
			QueueGroup:       "risk-engine",
			SubscribersCount: 4,
			MaxDeliver:       5,
			AckWait:          30 * time.Second,
			CloseTimeout:     30 * time.Second,
			PoisonTopic:      "signals.poison",
			MaxReconnects:    -1, // Retry forever
			ReconnectWait:    2 * time.Second,
		},
		Risk: DefaultRiskConfig(),
		Batch: BatchConfig{
			Interval:          15 * time.Minute,
			Concurrency:       8,
			TopSignalsPreview: 20,
			RunTimeout:        10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:       true,
			BufferSize:    1000,
			RetentionDays: 90,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// DefaultRiskConfig returns the documented v1 weight set.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Version:             1,
		CollisionWeight:     30,
		BotWeight:           40,
		BotScoreThreshold:   70,
		FraudWeight:         20,
		FraudScoreThreshold: 75,
		AnonymizerWeight:    15,
		BanThreshold:        70,
		ReportThreshold:     30,

		MaxTravelSpeedKmH:      900, // Commercial flight speed
		ImpossibleTravelWeight: 50,
		RareLocationWeight:     25,
		RareLocationFrequency:  0.20,
		DeviceMismatchWeight:   15,

		MinHistory:    3,
		HistoryWindow: 50,
	}
}
