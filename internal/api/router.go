// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/middleware"
)

// NewRouter wires the ops endpoints:
//
//	GET  /healthz
//	GET  /readyz
//	GET  /metrics
//	GET  /api/v1/ops/warmer
//	POST /api/v1/ops/warmer/run
//	GET  /api/v1/ops/budget?user=
//	POST /api/v1/ops/users/{userID}/invalidate?scope=review|preferences|fsrs|feedback
//
// The /api/v1/ops routes are rate limited per client IP when
// cfg.RateLimitRequests is positive.
func NewRouter(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/ops", func(r chi.Router) {
		r.Use(rateLimit(cfg))
		r.Get("/warmer", h.WarmerStats)
		r.Post("/warmer/run", h.WarmerRun)
		r.Get("/budget", h.Budget)
		r.Post("/users/{userID}/invalidate", h.InvalidateUser)
	})

	return r
}

func rateLimit(cfg config.ServerConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		cfg.RateLimitRequests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded")
		}),
	)
}
