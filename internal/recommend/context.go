// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/logging"
)

// Request limits.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// DefaultTier applies when neither the resolver nor the request names one.
const DefaultTier = TierBronze

// abGroups are assigned by a stable hash of the user id.
var abGroups = [...]string{"A", "B"}

// ProfileRefresher is implemented by profile sources that can bypass their
// own cache.
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context, userID string) (*UserProfile, error)
}

// ContextBuilder turns a Request into an immutable RequestContext.
type ContextBuilder struct {
	profiles ProfileSource
	tiers    TierResolver
	logger   zerolog.Logger
}

// NewContextBuilder creates a builder. Both sources may be nil.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewContextBuilder(profiles ProfileSource, tiers TierResolver, logger zerolog.Logger) *ContextBuilder {
	return &ContextBuilder{
		profiles: profiles,
		tiers:    tiers,
		logger:   logger.With().Str("component", "context_builder").Logger(),
	}
}

// Build resolves the segment, trace id and profile for req. It fails only
// for an empty user id; profile and tier lookup errors degrade to defaults.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (b *ContextBuilder) Build(ctx context.Context, req Request) (*RequestContext, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	rctx := &RequestContext{
		UserID:            userID,
		Tier:              b.resolveTier(ctx, userID, req.Tier),
		ABGroup:           req.ABGroup,
		Route:             req.Route,
		TraceID:           req.TraceID,
		Objective:         ParseObjective(req.Objective),
		TargetDomains:     normalizeDomains(req.Domains),
		DesiredDifficulty: ParseDifficulty(req.Difficulty),
		TimeboxMinutes:    max(0, req.TimeboxMinutes),
		ForceRefresh:      req.ForceRefresh,
		Limit:             NormalizeLimit(req.Limit),
	}
	if t, ok := ParseRecommendationType(req.Type); ok {
		rctx.Type = t
	}
	if rctx.ABGroup == "" {
		rctx.ABGroup = abGroupFor(userID)
	}
	if rctx.Route == "" {
		rctx.Route = config.DefaultRoute
	}
	if rctx.TraceID == "" {
		rctx.TraceID = logging.TraceIDFromContext(ctx)
	}
	if rctx.TraceID == "" {
		rctx.TraceID = logging.GenerateTraceID()
	}

	rctx.Profile = b.loadProfile(ctx, userID, req.ForceRefresh)
	return rctx, nil
}

func (b *ContextBuilder) resolveTier(ctx context.Context, userID, hint string) Tier {
	if b.tiers != nil {
		tier, ok, err := b.tiers.Tier(ctx, userID)
		if err != nil {
			b.logger.Warn().Err(err).Str("user_id", userID).Msg("Tier lookup failed, using request hint")
		} else if ok {
			return tier
		}
	}
	if tier, ok := ParseTier(hint); ok {
		return tier
	}
	return DefaultTier
}

func (b *ContextBuilder) loadProfile(ctx context.Context, userID string, refresh bool) *UserProfile {
	if b.profiles == nil {
		return nil
	}

	var (
		profile *UserProfile
		err     error
	)
	if r, ok := b.profiles.(ProfileRefresher); ok && refresh {
		profile, err = r.RefreshProfile(ctx, userID)
	} else {
		profile, err = b.profiles.Profile(ctx, userID)
	}
	if err != nil {
		b.logger.Warn().Err(err).Str("user_id", userID).Msg("Profile unavailable, continuing without it")
		return nil
	}
	return profile
}

// NormalizeLimit clamps a requested limit into [1, MaxLimit]; zero and
// negative values select DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// CandidateCap is how many candidates are fetched for a limit.
func CandidateCap(limit int) int {
	return min(MaxLimit, max(10, 3*limit))
}

func abGroupFor(userID string) string {
	return abGroups[xxh3.HashString(userID)%uint64(len(abGroups))]
}

func normalizeDomains(domains []string) []string {
	if len(domains) == 0 {
		return nil
	}
	out := make([]string, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
