// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"time"
)

// CandidateSource supplies the practice problems a user may be offered,
// typically ordered by the external scheduler.
type CandidateSource interface {
	Candidates(ctx context.Context, userID string, limit int) ([]ProblemCandidate, error)
}

// ProfileSource builds or loads the learner profile. A nil profile with a
// nil error means the user has no history yet.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (*UserProfile, error)
}

// ActiveUserSource lists users worth warming: at least minReviews reviews
// since the given time, capped at limit.
type ActiveUserSource interface {
	ActiveUsers(ctx context.Context, since time.Time, minReviews, limit int) ([]string, error)
}

// TierResolver maps a user to a subscription tier. ok=false leaves the
// tier to the request hint or DefaultTier.
type TierResolver interface {
	Tier(ctx context.Context, userID string) (tier Tier, ok bool, err error)
}

// EmptySources satisfies all source interfaces with no data.
type EmptySources struct{}

// Candidates returns no candidates.
func (EmptySources) Candidates(context.Context, string, int) ([]ProblemCandidate, error) {
	return nil, nil
}

// Profile returns no profile.
func (EmptySources) Profile(context.Context, string) (*UserProfile, error) {
	return nil, nil
}

// ActiveUsers returns no users.
func (EmptySources) ActiveUsers(context.Context, time.Time, int, int) ([]string, error) {
	return nil, nil
}
