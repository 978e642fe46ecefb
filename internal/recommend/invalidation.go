// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/metrics"
)

// Invalidation hook names, also used as metric labels.
const (
	HookReviewCompleted    = "review_completed"
	HookReviewRated        = "review_rated"
	HookPreferencesChanged = "preferences_changed"
	HookFSRSParamsChanged  = "fsrs_parameters_changed"
	HookProblemsModified   = "problems_modified"
	HookFeedbackSubmitted  = "feedback_submitted"
)

// anyRecPurpose matches every rec-* purpose prefix.
const anyRecPurpose = "rec-*"

// Review ratings on the scheduler's 1..4 scale.
const (
	RatingAgain = 1
	RatingEasy  = 4
)

// Invalidation scopes accepted by the ops API.
const (
	ScopeReview      = "review"
	ScopePreferences = "preferences"
	ScopeFSRS        = "fsrs"
	ScopeFeedback    = "feedback"
)

// ErrUnknownScope is returned by Invalidate for an unrecognized scope.
var ErrUnknownScope = errors.New("unknown invalidation scope")

// Invalidator removes cached results and intermediate lookups when the
// data behind them changes. Hooks never fail the caller's operation: store
// errors are logged and counted, and the hook reports how many keys went.
type Invalidator struct {
	store  cache.Store
	logger zerolog.Logger
}

// NewInvalidator creates an invalidator over store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewInvalidator(store cache.Store, logger zerolog.Logger) *Invalidator {
	return &Invalidator{
		store:  store,
		logger: logger.With().Str("component", "invalidator").Logger(),
	}
}

// OnReviewCompleted drops the user's results, profile and candidates.
func (v *Invalidator) OnReviewCompleted(ctx context.Context, userID string) int {
	n := v.results(ctx, userID) + v.intermediates(ctx, userID)
	v.record(HookReviewCompleted, userID, n)
	return n
}

// OnReviewRated is a finer-grained review hook: an Again or Easy rating is
// treated as a shift in the learner model and invalidates like a completed
// review; other ratings only drop cached results.
func (v *Invalidator) OnReviewRated(ctx context.Context, userID string, rating int) int {
	n := v.results(ctx, userID)
	if rating == RatingAgain || rating == RatingEasy {
		n += v.intermediates(ctx, userID)
	}
	v.record(HookReviewRated, userID, n)
	return n
}

// OnPreferencesChanged drops the user's cached results only.
func (v *Invalidator) OnPreferencesChanged(ctx context.Context, userID string) int {
	n := v.results(ctx, userID)
	v.record(HookPreferencesChanged, userID, n)
	return n
}

// OnFeedbackSubmitted drops the user's results and cached profile after
// feedback on a recommendation. Candidate lists stay.
func (v *Invalidator) OnFeedbackSubmitted(ctx context.Context, userID string) int {
	if userID == "" {
		return 0
	}
	n := v.results(ctx, userID) + v.deleteKey(ctx, ProfileKey(userID))
	v.record(HookFeedbackSubmitted, userID, n)
	return n
}

// OnFSRSParametersChanged drops every recommendation key of the user and
// the cached profile.
func (v *Invalidator) OnFSRSParametersChanged(ctx context.Context, userID string) int {
	if userID == "" {
		return 0
	}
	v.bump(ctx, GenerationKey(userID))
	n := v.deletePattern(ctx, anyRecPurpose+":"+userID+":*") +
		v.deleteKey(ctx, ProfileKey(userID))
	v.record(HookFSRSParamsChanged, userID, n)
	return n
}

// OnProblemsModified drops all cached results and candidate lists. Which
// users saw the modified problems is not tracked, so the sweep is global.
func (v *Invalidator) OnProblemsModified(ctx context.Context, problemIDs []int64) int {
	if len(problemIDs) == 0 {
		return 0
	}
	v.bump(ctx, globalGenerationKey)
	n := v.deletePattern(ctx, PurposeResult+":*") + v.deletePattern(ctx, PurposeCandidates+":*")
	metrics.RecordInvalidation(HookProblemsModified, n)
	v.logger.Info().Ints64("problem_ids", problemIDs).Int("keys", n).Msg("Caches invalidated for modified problems")
	return n
}

// Invalidate dispatches an ops request by scope.
func (v *Invalidator) Invalidate(ctx context.Context, userID, scope string) (int, error) {
	switch strings.ToLower(scope) {
	case "", ScopeReview:
		return v.OnReviewCompleted(ctx, userID), nil
	case ScopePreferences:
		return v.OnPreferencesChanged(ctx, userID), nil
	case ScopeFSRS:
		return v.OnFSRSParametersChanged(ctx, userID), nil
	case ScopeFeedback:
		return v.OnFeedbackSubmitted(ctx, userID), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
}

func (v *Invalidator) results(ctx context.Context, userID string) int {
	if userID == "" {
		return 0
	}
	v.bump(ctx, GenerationKey(userID))
	return v.deletePattern(ctx, UserResultPattern(userID))
}

// bump advances a generation counter. It runs before the matching deletes
// so a fill that caches after the delete sees the new generation.
func (v *Invalidator) bump(ctx context.Context, key string) {
	if _, err := v.store.IncrBy(ctx, key, 1, generationTTL); err != nil {
		metrics.RecordStoreError("invalidate")
		v.logger.Warn().Err(err).Str("key", key).Msg("Generation bump failed")
	}
}

func (v *Invalidator) intermediates(ctx context.Context, userID string) int {
	if userID == "" {
		return 0
	}
	return v.deletePattern(ctx, PurposeCandidates+":"+userID+":*") + v.deleteKey(ctx, ProfileKey(userID))
}

func (v *Invalidator) deletePattern(ctx context.Context, pattern string) int {
	n, err := v.store.DeletePattern(ctx, pattern)
	if err != nil {
		metrics.RecordStoreError("invalidate")
		v.logger.Error().Err(err).Str("pattern", pattern).Msg("Cache invalidation failed")
	}
	return n
}

func (v *Invalidator) deleteKey(ctx context.Context, key string) int {
	ok, err := v.store.Exists(ctx, key)
	if err != nil || !ok {
		return 0
	}
	if err := v.store.Delete(ctx, key); err != nil {
		metrics.RecordStoreError("invalidate")
		v.logger.Error().Err(err).Str("key", key).Msg("Cache invalidation failed")
		return 0
	}
	return 1
}

func (v *Invalidator) record(hook, userID string, n int) {
	metrics.RecordInvalidation(hook, n)
	v.logger.Debug().Str("hook", hook).Str("user_id", userID).Int("keys", n).Msg("Caches invalidated")
}
