// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/metrics"
)

// userPermitIdleTTL is how long an idle per-user semaphore is kept.
const userPermitIdleTTL = 10 * time.Minute

// Admission rejection errors.
var (
	ErrGlobalBusy = errors.New("global async capacity exhausted")
	ErrUserBusy   = errors.New("per-user async capacity exhausted")
)

// userPermits is one user's semaphore. refs counts callers holding or
// waiting on it; the pool never evicts an entry with refs > 0.
type userPermits struct {
	sem  *semaphore.Weighted
	refs atomic.Int64
}

// Admission bounds concurrent provider calls with a global semaphore and a
// pool of per-user semaphores. The pool is LRU-bounded; idle users are
// dropped, users with permits in flight are kept.
type Admission struct {
	limits config.AsyncLimitsConfig
	global *semaphore.Weighted
	users  *cache.LRU[*userPermits]
	logger zerolog.Logger
}

// NewAdmission creates an admission controller for limits.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewAdmission(limits config.AsyncLimitsConfig, logger zerolog.Logger) *Admission {
	limits.Global = max(1, limits.Global)
	limits.PerUser = max(1, limits.PerUser)

	return &Admission{
		limits: limits,
		global: semaphore.NewWeighted(int64(limits.Global)),
		users: cache.NewLRU[*userPermits](limits.MaxTrackedUsers,
			cache.WithEvictionGuard(func(_ string, u *userPermits) bool {
				return u.refs.Load() == 0
			}),
		),
		logger: logger.With().Str("component", "admission").Logger(),
	}
}

// Limits returns the limits the controller was built with.
func (a *Admission) Limits() config.AsyncLimitsConfig {
	return a.limits
}

// Acquire takes one global and one per-user permit. The global wait is
// bounded by timeout and the per-user wait by half of it. The returned
// release func frees both permits and is safe to call more than once.
func (a *Admission) Acquire(ctx context.Context, userID string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = a.limits.AcquireTimeout
	}

	gctx, cancel := context.WithTimeout(ctx, timeout)
	err := a.global.Acquire(gctx, 1)
	cancel()
	if err != nil {
		metrics.RecordAdmissionRejected("global")
		return nil, fmt.Errorf("%w: %w", ErrGlobalBusy, err)
	}

	u := a.users.GetOrAddThen(userID, userPermitIdleTTL,
		func() *userPermits {
			return &userPermits{sem: semaphore.NewWeighted(int64(a.limits.PerUser))}
		},
		func(u *userPermits) { u.refs.Add(1) },
	)

	uctx, cancel := context.WithTimeout(ctx, timeout/2)
	err = u.sem.Acquire(uctx, 1)
	cancel()
	if err != nil {
		u.refs.Add(-1)
		a.global.Release(1)
		metrics.RecordAdmissionRejected("user")
		a.logger.Debug().Str("user_id", userID).Msg("Per-user async limit reached")
		return nil, fmt.Errorf("%w: %w", ErrUserBusy, err)
	}

	metrics.TrackInFlight(true)

	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		u.sem.Release(1)
		u.refs.Add(-1)
		a.global.Release(1)
		metrics.TrackInFlight(false)
	}, nil
}

// TrackedUsers returns the number of per-user semaphores in the pool.
func (a *Admission) TrackedUsers() int {
	return a.users.Len()
}

// Sweep drops idle per-user semaphores whose TTL has passed.
func (a *Admission) Sweep() int {
	return a.users.CleanupExpired()
}
