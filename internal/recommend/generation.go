// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/recoplane/internal/cache"
)

// Invalidation generations. Every hook that drops results bumps the user's
// counter, or the global one for problem changes, before deleting. A fill
// that read an older generation does not cache what it computed.
//
// GenerationKey has no trailing segment, so the <purpose>:<userId>:* result
// patterns never match it.
const (
	purposeGeneration   = "rec-gen"
	globalGenerationKey = "rec-gen-global"
	generationTTL       = 7 * 24 * time.Hour
)

// GenerationKey returns the key of a user's invalidation counter.
func GenerationKey(userID string) string {
	return purposeGeneration + ":" + userID
}

// generation is a snapshot of the counters a fill started under. A zero
// value (known == false) disables the check.
type generation struct {
	user   int64
	global int64
	known  bool
}

func readGeneration(ctx context.Context, store cache.Store, userID string) generation {
	if store == nil || userID == "" {
		return generation{}
	}
	user, err := readCounter(ctx, store, GenerationKey(userID))
	if err != nil {
		return generation{}
	}
	global, err := readCounter(ctx, store, globalGenerationKey)
	if err != nil {
		return generation{}
	}
	return generation{user: user, global: global, known: true}
}

// current reports whether no invalidation ran since g was read. When either
// read fails the answer is true: the generation check never blocks caching
// on store trouble.
func (g generation) current(ctx context.Context, store cache.Store, userID string) bool {
	if !g.known {
		return true
	}
	now := readGeneration(ctx, store, userID)
	if !now.known {
		return true
	}
	return now.user == g.user && now.global == g.global
}

func readCounter(ctx context.Context, store cache.Store, key string) (int64, error) {
	v, err := store.GetInt(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	return v, err
}
