// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/metrics"
)

// CachedProfiles caches profiles from src in the shared store for
// cache.profile_ttl. A zero TTL bypasses the cache.
type CachedProfiles struct {
	src      ProfileSource
	store    cache.Store
	settings *SettingsStore
	logger   zerolog.Logger
}

// NewCachedProfiles wraps src.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCachedProfiles(src ProfileSource, store cache.Store, settings *SettingsStore, logger zerolog.Logger) *CachedProfiles {
	return &CachedProfiles{
		src:      src,
		store:    store,
		settings: settings,
		logger:   logger.With().Str("component", "profile_cache").Logger(),
	}
}

// Profile returns the cached profile or loads and caches it.
func (c *CachedProfiles) Profile(ctx context.Context, userID string) (*UserProfile, error) {
	ttl := c.settings.Load().Cache.ProfileTTL
	if ttl <= 0 {
		return c.src.Profile(ctx, userID)
	}

	var p UserProfile
	if readJSON(ctx, c.store, ProfileKey(userID), &p, c.logger) {
		return &p, nil
	}
	return c.load(ctx, userID, ttl)
}

// RefreshProfile reloads the profile from the source, replacing any cached
// copy.
func (c *CachedProfiles) RefreshProfile(ctx context.Context, userID string) (*UserProfile, error) {
	return c.load(ctx, userID, c.settings.Load().Cache.ProfileTTL)
}

func (c *CachedProfiles) load(ctx context.Context, userID string, ttl time.Duration) (*UserProfile, error) {
	p, err := c.src.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if p != nil && ttl > 0 {
		writeJSON(ctx, c.store, ProfileKey(userID), p, ttl, c.logger)
	}
	return p, nil
}

// CachedCandidates caches candidate lists per (user, cap) for
// cache.candidate_ttl. A zero TTL bypasses the cache.
type CachedCandidates struct {
	src      CandidateSource
	store    cache.Store
	settings *SettingsStore
	logger   zerolog.Logger
}

// NewCachedCandidates wraps src.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCachedCandidates(src CandidateSource, store cache.Store, settings *SettingsStore, logger zerolog.Logger) *CachedCandidates {
	return &CachedCandidates{
		src:      src,
		store:    store,
		settings: settings,
		logger:   logger.With().Str("component", "candidate_cache").Logger(),
	}
}

// Candidates returns the cached list or loads and caches it. Empty lists
// are not cached.
func (c *CachedCandidates) Candidates(ctx context.Context, userID string, limit int) ([]ProblemCandidate, error) {
	ttl := c.settings.Load().Cache.CandidateTTL
	if ttl <= 0 {
		return c.src.Candidates(ctx, userID, limit)
	}

	key := CandidatesKey(userID, limit)
	var list []ProblemCandidate
	if readJSON(ctx, c.store, key, &list, c.logger) {
		return list, nil
	}

	list, err := c.src.Candidates(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(list) > 0 {
		writeJSON(ctx, c.store, key, list, ttl, c.logger)
	}
	return list, nil
}

// readJSON decodes key into dst. Misses, store errors and corrupt payloads
// all return false; corrupt payloads are deleted.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func readJSON(ctx context.Context, store cache.Store, key string, dst any, logger zerolog.Logger) bool {
	raw, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			metrics.RecordStoreError("source_get")
			logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, evicting")
		if err := store.Delete(ctx, key); err != nil {
			metrics.RecordStoreError("source_delete")
		}
		return false
	}
	return true
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func writeJSON(ctx context.Context, store cache.Store, key string, v any, ttl time.Duration, logger zerolog.Logger) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Cache encode failed")
		return
	}
	if err := store.Set(ctx, key, raw, ttl); err != nil {
		metrics.RecordStoreError("source_set")
		logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
