// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/cache"
)

// Sweeper drops idle entries from an in-process pool.
type Sweeper interface {
	Sweep() int
}

// StoreMaintenanceService runs periodic housekeeping: expired entry sweeps
// and value log GC on the cache store, and idle per-user semaphore sweeps
// on the async admission pool.
type StoreMaintenanceService struct {
	store    cache.Store
	sweepers []Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	name     string
}

// NewStoreMaintenanceService creates a maintenance service. Stores that do
// not implement cache.Maintainer (redis) are skipped.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStoreMaintenanceService(store cache.Store, interval time.Duration, logger zerolog.Logger, sweepers ...Sweeper) *StoreMaintenanceService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreMaintenanceService{
		store:    store,
		sweepers: sweepers,
		interval: interval,
		timeout:  min(interval, time.Minute),
		logger:   logger.With().Str("service", "store-maintenance").Logger(),
		name:     "store-maintenance-service",
	}
}

// Serve implements suture.Service.
func (s *StoreMaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("store maintenance service running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one maintenance pass.
func (s *StoreMaintenanceService) RunOnce(ctx context.Context) {
	if m, ok := s.store.(cache.Maintainer); ok {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := m.Maintain(mctx)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Msg("store maintenance failed")
		}
	}

	swept := 0
	for _, sw := range s.sweepers {
		swept += sw.Sweep()
	}
	if swept > 0 {
		s.logger.Debug().Int("swept", swept).Msg("idle entries swept")
	}
}

// String returns the service name for logging.
func (s *StoreMaintenanceService) String() string {
	return s.name
}
