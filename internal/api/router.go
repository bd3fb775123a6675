// Fraudguard - Account Risk Scoring and Automated Fraud Enforcement
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fraudguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fraudguard/internal/config"
)

// NewRouter builds the HTTP routing tree.
//
// Health and metrics are unauthenticated and unlimited (probes and scrapers).
// The risk endpoints carry per-IP rate limiting and bearer-token auth.
func NewRouter(cfg config.SecurityConfig, handler *Handler, verifier *JWTVerifier) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/health", func(r chi.Router) {
			r.Get("/live", handler.HealthLive)
			r.Get("/ready", handler.HealthReady)
		})

		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(
				cfg.RateLimitReqs,
				cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
			r.Use(RequireBearer(verifier))

			r.Post("/risk/run", handler.RiskRun)
			r.Get("/risk/signals", handler.RiskSignals)
			r.Get("/users/{userID}/anomalies", handler.UserAnomalies)
		})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
