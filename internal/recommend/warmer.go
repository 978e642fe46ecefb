// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/recoplane/internal/metrics"
)

// Warmer run outcomes.
const (
	WarmOutcomeSuccess = "success"
	WarmOutcomePartial = "partial"
	WarmOutcomeFailed  = "failed"
	WarmOutcomeSkipped = "skipped"
)

// activeUserFactor caps the active users fetched per run at
// batch_size * activeUserFactor.
const activeUserFactor = 10

// ErrWarmerRunning is returned when a run is requested while one is active.
var ErrWarmerRunning = errors.New("cache warmer already running")

// Recommender is the part of the service the warmer drives.
type Recommender interface {
	GetRecommendations(ctx context.Context, req Request) (*Response, error)
}

// WarmerStats is a snapshot of warmer counters.
type WarmerStats struct {
	Running        bool          `json:"running"`
	Runs           int64         `json:"runs"`
	UsersWarmed    int64         `json:"usersWarmed"`
	VariantsWarmed int64         `json:"variantsWarmed"`
	Failures       int64         `json:"failures"`
	LastRunAt      time.Time     `json:"lastRunAt,omitzero"`
	LastDuration   time.Duration `json:"lastDurationNs"`
	LastOutcome    string        `json:"lastOutcome,omitempty"`
	LastUsers      int           `json:"lastUsers"`
}

// RunResult summarizes one warmer run.
type RunResult struct {
	Users    int
	Warmed   int
	Variants int
	Failed   int
	Duration time.Duration
	Outcome  string
}

// Warmer pre-computes results for recently active users. It reads only
// from the settings snapshot and the sources, so it never holds a lock the
// request path waits on.
type Warmer struct {
	svc      Recommender
	users    ActiveUserSource
	profiles ProfileRefresher
	settings *SettingsStore
	now      func() time.Time

	running        atomic.Bool
	runs           atomic.Int64
	usersWarmed    atomic.Int64
	variantsWarmed atomic.Int64
	failures       atomic.Int64

	mu   sync.Mutex
	last RunResult
	at   time.Time

	logger zerolog.Logger
}

// NewWarmer creates a warmer. profiles may be nil, in which case profiles
// are not refreshed before warming.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewWarmer(svc Recommender, users ActiveUserSource, profiles ProfileRefresher, settings *SettingsStore, logger zerolog.Logger) *Warmer {
	if users == nil {
		users = EmptySources{}
	}
	return &Warmer{
		svc:      svc,
		users:    users,
		profiles: profiles,
		settings: settings,
		now:      time.Now,
		logger:   logger.With().Str("component", "cache_warmer").Logger(),
	}
}

// Run warms every active user once. Per-user failures are counted and
// logged but never abort the run. Concurrent calls return ErrWarmerRunning.
func (w *Warmer) Run(ctx context.Context) (RunResult, error) {
	if !w.running.CompareAndSwap(false, true) {
		return RunResult{Outcome: WarmOutcomeSkipped}, ErrWarmerRunning
	}
	defer w.running.Store(false)

	cfg := w.settings.Load().Warmer
	start := w.now()
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	since := start.AddDate(0, 0, -cfg.ActiveUserDays)
	users, err := w.users.ActiveUsers(ctx, since, cfg.MinReviews, max(1, cfg.BatchSize)*activeUserFactor)
	if err != nil {
		res := RunResult{Outcome: WarmOutcomeFailed, Duration: time.Since(start)}
		w.complete(res)
		return res, fmt.Errorf("list active users: %w", err)
	}

	var warmed, variants, failed atomic.Int64
	batchSize := max(1, cfg.BatchSize)
	for i := 0; i < len(users) && ctx.Err() == nil; i += batchSize {
		batch := users[i:min(i+batchSize, len(users))]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, cfg.MaxConcurrent))
		for _, uid := range batch {
			g.Go(func() error {
				n, err := w.warmUser(gctx, uid, cfg.Types, cfg.Limits)
				variants.Add(int64(n))
				if err != nil {
					failed.Add(1)
					w.logger.Warn().Err(err).Str("user_id", uid).Msg("Warming failed for user")
					return nil
				}
				warmed.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		w.logger.Debug().
			Int("batch_start", i).
			Int("batch_size", len(batch)).
			Msg("Warm batch complete")
	}

	res := RunResult{
		Users:    len(users),
		Warmed:   int(warmed.Load()),
		Variants: int(variants.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}
	switch {
	case res.Failed == 0 && ctx.Err() == nil:
		res.Outcome = WarmOutcomeSuccess
	case res.Warmed > 0:
		res.Outcome = WarmOutcomePartial
	default:
		res.Outcome = WarmOutcomeFailed
	}
	if len(users) == 0 {
		res.Outcome = WarmOutcomeSuccess
	}
	w.complete(res)

	w.logger.Info().
		Int("users", res.Users).
		Int("warmed", res.Warmed).
		Int("variants", res.Variants).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Str("outcome", res.Outcome).
		Msg("Cache warming run complete")
	return res, nil
}

// warmUser refreshes the profile and then requests every type and limit
// variant. It returns the number of variants warmed and the first error.
func (w *Warmer) warmUser(ctx context.Context, userID string, types []string, limits []int) (int, error) {
	if w.profiles != nil {
		if _, err := w.profiles.RefreshProfile(ctx, userID); err != nil {
			return 0, fmt.Errorf("refresh profile: %w", err)
		}
	}

	n := 0
	var firstErr error
	for _, t := range types {
		for _, limit := range limits {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			_, err := w.svc.GetRecommendations(ctx, Request{UserID: userID, Type: t, Limit: limit})
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("warm %s/%d: %w", t, limit, err)
				}
				continue
			}
			n++
		}
	}
	return n, firstErr
}

func (w *Warmer) complete(res RunResult) {
	w.runs.Add(1)
	w.usersWarmed.Add(int64(res.Warmed))
	w.variantsWarmed.Add(int64(res.Variants))
	w.failures.Add(int64(res.Failed))

	w.mu.Lock()
	w.last = res
	w.at = w.now()
	w.mu.Unlock()

	metrics.RecordWarmerRun(res.Outcome, res.Warmed, res.Failed, res.Duration)
}

// Stats returns the warmer counters.
func (w *Warmer) Stats() WarmerStats {
	w.mu.Lock()
	last, at := w.last, w.at
	w.mu.Unlock()

	return WarmerStats{
		Running:        w.running.Load(),
		Runs:           w.runs.Load(),
		UsersWarmed:    w.usersWarmed.Load(),
		VariantsWarmed: w.variantsWarmed.Load(),
		Failures:       w.failures.Load(),
		LastRunAt:      at,
		LastDuration:   last.Duration,
		LastOutcome:    last.Outcome,
		LastUsers:      last.Users,
	}
}
