// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/recommend"
)

// WarmRunner is the part of the cache warmer the service drives.
type WarmRunner interface {
	Run(ctx context.Context) (recommend.RunResult, error)
}

// WarmerServiceConfig holds the scheduling settings of the warmer service.
type WarmerServiceConfig struct {
	// Interval between scheduled runs. Default: 4h
	Interval time.Duration

	// WarmOnStartup runs the warmer once before the first tick.
	WarmOnStartup bool
}

// WarmerService runs the cache warmer on a fixed schedule. A run that is
// still in flight when the next tick fires is skipped by the warmer itself.
type WarmerService struct {
	warmer WarmRunner
	config WarmerServiceConfig
	logger zerolog.Logger
	name   string
}

// NewWarmerService creates a new warmer service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewWarmerService(warmer WarmRunner, cfg WarmerServiceConfig, logger zerolog.Logger) *WarmerService {
	if cfg.Interval <= 0 {
		cfg.Interval = 4 * time.Hour
	}
	return &WarmerService{
		warmer: warmer,
		config: cfg,
		logger: logger.With().Str("service", "cache-warmer").Logger(),
		name:   "cache-warmer-service",
	}
}

// Serve implements the suture.Service interface.
func (s *WarmerService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("warm_on_startup", s.config.WarmOnStartup).
		Dur("interval", s.config.Interval).
		Msg("cache warmer service starting")

	if s.config.WarmOnStartup {
		s.warm(ctx, "startup")
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache warmer service shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.warm(ctx, "schedule")
		}
	}
}

func (s *WarmerService) warm(ctx context.Context, trigger string) {
	res, err := s.warmer.Run(ctx)
	switch {
	case errors.Is(err, recommend.ErrWarmerRunning):
		s.logger.Debug().Str("trigger", trigger).Msg("warming already in progress, skipping")
	case err != nil:
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("cache warming failed")
	default:
		s.logger.Debug().
			Str("trigger", trigger).
			Str("outcome", res.Outcome).
			Int("warmed", res.Warmed).
			Msg("cache warming finished")
	}
}

// String returns the service name for logging.
func (s *WarmerService) String() string {
	return s.name
}
