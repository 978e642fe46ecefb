// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
)

// Maintainer is implemented by stores that need periodic housekeeping
// (expired entry sweeps, value log GC).
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// Open builds the Store selected by cfg.Backend.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Open(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (Store, error) {
	log := logger.With().Str("component", "cache").Str("backend", cfg.Backend).Logger()

	switch cfg.Backend {
	case BackendMemory, "":
		log.Info().Int("max_entries", cfg.MemoryMaxEntries).Msg("Using in-process cache store")
		return NewMemoryStore(cfg.MemoryMaxEntries), nil

	case BackendRedis:
		s, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.Redis.Addr).Int("db", cfg.Redis.DB).Msg("Connected to redis cache store")
		return s, nil

	case BackendBadger:
		s, err := NewBadgerStore(cfg.Badger)
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("path", cfg.Badger.Path).
			Bool("in_memory", cfg.Badger.InMemory).
			Msg("Opened badger cache store")
		return s, nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
