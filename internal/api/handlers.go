// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/recommend"
)

// readyTimeout bounds the store ping of the readiness check.
const readyTimeout = 2 * time.Second

// Pinger reports whether the shared store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WarmerController is the part of the cache warmer the ops API drives.
type WarmerController interface {
	Run(ctx context.Context) (recommend.RunResult, error)
	Stats() recommend.WarmerStats
}

// UserInvalidator drops cached state of one user.
type UserInvalidator interface {
	Invalidate(ctx context.Context, userID, scope string) (int, error)
}

// BudgetReporter reports LLM spend against the configured budget.
type BudgetReporter interface {
	BudgetStatus(ctx context.Context, userID string) (recommend.BudgetStatus, error)
}

// Handler serves the ops endpoints.
type Handler struct {
	store       Pinger
	warmer      WarmerController
	invalidator UserInvalidator
	budget      BudgetReporter
	startTime   time.Time

	// baseCtx outlives a single request; manual warming runs under it.
	baseCtx context.Context
	runs    sync.WaitGroup

	logger zerolog.Logger
}

// Deps are the collaborators of the ops handler. Warmer may be nil when
// warming is disabled.
type Deps struct {
	BaseContext context.Context
	Store       Pinger
	Warmer      WarmerController
	Invalidator UserInvalidator
	Budget      BudgetReporter
}

// NewHandler creates the ops handler.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(deps Deps, logger zerolog.Logger) *Handler {
	base := deps.BaseContext
	if base == nil {
		base = context.Background()
	}
	return &Handler{
		store:       deps.Store,
		warmer:      deps.Warmer,
		invalidator: deps.Invalidator,
		budget:      deps.Budget,
		startTime:   time.Now(),
		baseCtx:     base,
		logger:      logger.With().Str("component", "ops_api").Logger(),
	}
}

// Healthz is the liveness check. It never touches dependencies.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// Readyz is the readiness check: 200 when the store answers a ping.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("Readiness check failed")
			rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "cache store unreachable")
			return
		}
	}
	rw.Success(map[string]any{"ready": true})
}

// WarmerStats handles GET /api/v1/ops/warmer.
func (h *Handler) WarmerStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.warmer == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeWarmerDisabled, "cache warmer is disabled")
		return
	}
	rw.Success(h.warmer.Stats())
}

// WarmerRun handles POST /api/v1/ops/warmer/run. The run continues after
// the response is written; 202 means it was started.
func (h *Handler) WarmerRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.warmer == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeWarmerDisabled, "cache warmer is disabled")
		return
	}
	if h.warmer.Stats().Running {
		rw.Error(http.StatusConflict, ErrCodeConflict, recommend.ErrWarmerRunning.Error())
		return
	}

	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		res, err := h.warmer.Run(h.baseCtx)
		switch {
		case errors.Is(err, recommend.ErrWarmerRunning):
			h.logger.Debug().Msg("Manual warming skipped, run already active")
		case err != nil:
			h.logger.Warn().Err(err).Msg("Manual warming failed")
		default:
			h.logger.Info().Str("outcome", res.Outcome).Int("warmed", res.Warmed).Msg("Manual warming finished")
		}
	}()

	rw.Status(http.StatusAccepted, map[string]any{"started": true})
}

// Budget handles GET /api/v1/ops/budget?user=. With a user id the answer
// also says whether that user can still get LLM recommendations today.
func (h *Handler) Budget(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.budget == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "budget reporting unavailable")
		return
	}

	st, err := h.budget.BudgetStatus(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Budget status failed")
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "budget counters unavailable")
		return
	}
	rw.Success(st)
}

// InvalidateUser handles POST /api/v1/ops/users/{userID}/invalidate?scope=.
func (h *Handler) InvalidateUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.Error(http.StatusBadRequest, ErrCodeBadRequest, "user id is required")
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = recommend.ScopeReview
	}

	n, err := h.invalidator.Invalidate(r.Context(), userID, scope)
	if err != nil {
		if errors.Is(err, recommend.ErrUnknownScope) {
			rw.Error(http.StatusBadRequest, ErrCodeUnknownScope, err.Error())
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "invalidation failed")
		return
	}

	rw.Success(map[string]any{
		"user_id": userID,
		"scope":   scope,
		"keys":    n,
	})
}

// Wait blocks until manual warming runs started by WarmerRun return.
func (h *Handler) Wait() {
	h.runs.Wait()
}
