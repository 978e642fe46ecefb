// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/metrics"
	"github.com/tomtom215/recoplane/internal/recommend"
)

// defaultReloadDebounce collapses the burst of events editors produce for
// a single save.
const defaultReloadDebounce = 250 * time.Millisecond

// ConfigReloadOptions customizes a ConfigReloadService. Zero values select
// the koanf file watcher and loader.
type ConfigReloadOptions struct {
	Debounce time.Duration
	Load     func(path string) (*config.Config, error)
	Watch    func(path string, callback func(err error)) (stop func() error, err error)

	// OnApply runs after a new snapshot has been published.
	OnApply func(cfg *config.Config)
}

// ConfigReloadService watches the config file and publishes a fresh
// settings snapshot whenever it changes. A file that fails to load or
// validate is rejected and the previous snapshot stays in place.
type ConfigReloadService struct {
	path     string
	settings *recommend.SettingsStore
	opts     ConfigReloadOptions
	logger   zerolog.Logger
	name     string
}

// NewConfigReloadService creates a reload service for path.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewConfigReloadService(path string, settings *recommend.SettingsStore, opts ConfigReloadOptions, logger zerolog.Logger) *ConfigReloadService {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultReloadDebounce
	}
	if opts.Load == nil {
		opts.Load = config.LoadFile
	}
	if opts.Watch == nil {
		opts.Watch = config.WatchConfigFile
	}
	return &ConfigReloadService{
		path:     path,
		settings: settings,
		opts:     opts,
		logger:   logger.With().Str("service", "config-reload").Str("path", path).Logger(),
		name:     "config-reload-service",
	}
}

// Serve implements suture.Service.
func (s *ConfigReloadService) Serve(ctx context.Context) error {
	events := make(chan error, 1)
	stop, err := s.opts.Watch(s.path, func(werr error) {
		select {
		case events <- werr:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer func() {
		if err := stop(); err != nil {
			s.logger.Debug().Err(err).Msg("config watcher stop failed")
		}
	}()

	s.logger.Info().Dur("debounce", s.opts.Debounce).Msg("watching config file")

	debounce := time.NewTimer(s.opts.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case werr := <-events:
			if werr != nil {
				s.logger.Warn().Err(werr).Msg("config watcher error")
				continue
			}
			debounce.Reset(s.opts.Debounce)

		case <-debounce.C:
			s.Reload()
		}
	}
}

// Reload loads the file once and publishes it when valid. It reports
// whether the new snapshot was applied.
func (s *ConfigReloadService) Reload() bool {
	cfg, err := s.opts.Load(s.path)
	if err != nil {
		metrics.RecordConfigReload(false)
		s.logger.Error().Err(err).Msg("config reload rejected, keeping previous settings")
		return false
	}

	s.settings.Store(recommend.NewSettings(cfg))
	metrics.RecordConfigReload(true)
	if s.opts.OnApply != nil {
		s.opts.OnApply(cfg)
	}

	s.logger.Info().
		Bool("llm_enabled", cfg.LLM.Enabled).
		Str("default_chain_id", cfg.LLM.DefaultChainID).
		Int("chains", len(cfg.LLM.Chains)).
		Bool("budget_enabled", cfg.Budget.Enabled).
		Msg("config reloaded")
	return true
}

// String returns the service name for logging.
func (s *ConfigReloadService) String() string {
	return s.name
}
