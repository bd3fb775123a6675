// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

// Package main is the entry point for the Fraudguard server.
//
// Fraudguard is the risk engine of a multi-tenant account platform: it
// consumes login, device-fingerprint, behavioral, and IP-reputation signals,
// learns per-user login baselines, scores anomalies, aggregates composite
// risk, and enforces automated bans with a full audit trail.
//
// # Application Architecture
//
// Startup proceeds in order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML file, env vars)
//  2. Database: DuckDB signal stores and account state
//  3. Audit: async audit logger over the shared DuckDB pool
//  4. Geolocation: provider selection, persistent cache, breaker and limiter
//  5. Risk engine: aggregator, enforcer, batch runner, on-demand history
//  6. Ingest (optional): embedded NATS server, JetStream stream, Watermill router
//  7. HTTP server: REST API plus Prometheus metrics
//
// Components 6 and 7 plus the batch scheduler run under a suture supervision
// tree; a crashing ingest consumer restarts without taking down the API.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context; the supervision tree then shuts
// every service down gracefully, and the audit buffer is drained before exit.
package main

import (
	"context"
	"errors"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/fraudguard/internal/anomaly"
	"github.com/tomtom215/fraudguard/internal/api"
	"github.com/tomtom215/fraudguard/internal/audit"
	"github.com/tomtom215/fraudguard/internal/config"
	"github.com/tomtom215/fraudguard/internal/database"
	"github.com/tomtom215/fraudguard/internal/geoip"
	"github.com/tomtom215/fraudguard/internal/ingest"
	"github.com/tomtom215/fraudguard/internal/logging"
	"github.com/tomtom215/fraudguard/internal/metrics"
	"github.com/tomtom215/fraudguard/internal/risk"
	"github.com/tomtom215/fraudguard/internal/scheduler"
	"github.com/tomtom215/fraudguard/internal/supervisor"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	}); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize logging")
	}

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Bool("ingest_enabled", cfg.NATS.Enabled).
		Msg("Starting Fraudguard")

	db, err := database.Open(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	auditLog := audit.NewLogger(audit.NewDuckDBStore(db.Conn()), &audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
	})
	defer auditLog.Stop()

	resolver := buildResolver(cfg.GeoIP)

	aggregator := risk.NewAggregator(cfg.Risk)
	enforcer := risk.NewEnforcer(cfg.Risk, db, auditLog)
	runner := risk.NewRunner(cfg.Batch, db, aggregator, enforcer, auditLog)
	history := anomaly.NewHistory(cfg.Risk, db, resolver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	var embedded *ingest.EmbeddedServer
	if cfg.NATS.Enabled {
		embedded, err = setupIngest(ctx, cfg.NATS, db, resolver, tree)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to set up signal ingestion")
		}
	} else {
		logging.Warn().Msg("Signal ingestion disabled; only previously stored signals are evaluated")
	}
	defer func() {
		if embedded == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := embedded.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
		}
	}()

	tree.AddEvaluationService(scheduler.New(cfg.Batch, runner, true))

	var verifier *api.JWTVerifier
	if cfg.Security.JWTSecret != "" {
		verifier, err = api.NewJWTVerifier(cfg.Security.JWTSecret)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT verification")
		}
		logging.Info().Msg("JWT authentication enabled on risk endpoints")
	} else if cfg.Server.Environment == "production" {
		logging.Fatal().Msg("JWT_SECRET is required in production")
	} else {
		logging.Warn().Msg("JWT_SECRET not set: risk endpoints are unauthenticated (development only)")
	}

	handler := api.NewHandler(db, runner, history, version)
	server := api.NewServer(cfg.Server, api.NewRouter(cfg.Security, handler, verifier))
	tree.AddAPIService(server)

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	go trackUptime(ctx)

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	logging.Info().Msg("Fraudguard stopped")
}

// buildResolver wires geolocation: provider selection, persistent cache,
// breaker and limiter. Geolocation is optional; with no usable provider the
// engine runs with unknown locations and skips travel/rarity anomalies.
func buildResolver(cfg config.GeoIPConfig) geoip.LocationResolver {
	provider, err := geoip.SelectProvider(cfg)
	if err != nil {
		logging.Warn().Err(err).Msg("No geolocation provider available; locations stay unknown")
		return nil
	}

	var cache *geoip.Cache
	if cfg.CachePath != "" {
		cache, err = geoip.OpenCache(cfg.CachePath, cfg.CacheTTL)
		if err != nil {
			logging.Warn().Err(err).Str("path", cfg.CachePath).Msg("Geolocation cache unavailable; lookups are uncached")
		}
	}

	logging.Info().Str("provider", provider.Name()).Msg("Geolocation provider selected")
	return geoip.NewResolver(cfg, provider, cache)
}

// setupIngest starts the optional embedded NATS server, provisions the
// JetStream stream, and adds the Watermill router to the supervision tree.
// The returned embedded server (possibly nil) is shut down by the caller.
func setupIngest(
	ctx context.Context,
	cfg config.NATSConfig,
	db *database.DB,
	resolver geoip.LocationResolver,
	tree *supervisor.Tree,
) (*ingest.EmbeddedServer, error) {
	url := cfg.URL
	var embedded *ingest.EmbeddedServer

	if cfg.EmbeddedServer {
		var err error
		embedded, err = ingest.NewEmbeddedServer(ingest.EmbeddedServerConfig{
			StoreDir: cfg.StoreDir,
		})
		if err != nil {
			return nil, err
		}
		url = embedded.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	if err := provisionStream(ctx, cfg, url); err != nil {
		return embedded, err
	}

	wmLogger := watermill.NewStdLogger(false, false)

	subscriber, err := ingest.NewSubscriber(cfg, url, wmLogger)
	if err != nil {
		return embedded, err
	}
	poisonPub, err := ingest.NewPoisonPublisher(cfg, url, wmLogger)
	if err != nil {
		return embedded, err
	}

	router, err := ingest.NewRouter(cfg, subscriber, poisonPub, ingest.NewHandlers(db, resolver), wmLogger)
	if err != nil {
		return embedded, err
	}
	tree.AddIngestService(router)

	logging.Info().
		Str("stream", cfg.StreamName).
		Str("subject_prefix", cfg.SubjectPrefix).
		Msg("Signal ingestion configured")
	return embedded, nil
}

// provisionStream creates or updates the signal stream over a short-lived
// connection, before any subscriber binds to it.
func provisionStream(ctx context.Context, cfg config.NATSConfig, url string) error {
	nc, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return err
	}

	provisionCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err = ingest.EnsureStream(provisionCtx, js, cfg)
	return err
}

func trackUptime(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.AppUptime.Set(time.Since(start).Seconds())
		}
	}
}
