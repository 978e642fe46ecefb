// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/recoplane/internal/api"
	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/logging"
	"github.com/tomtom215/recoplane/internal/recommend"
	"github.com/tomtom215/recoplane/internal/recommend/provider"
	"github.com/tomtom215/recoplane/internal/source"
	"github.com/tomtom215/recoplane/internal/supervisor"
	"github.com/tomtom215/recoplane/internal/supervisor/services"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.FromConfig(cfg.Logging))
	logger := logging.Logger()

	configPath := config.ConfigFilePath()
	logging.Info().
		Str("config_file", configPath).
		Str("cache_backend", cfg.Cache.Backend).
		Bool("llm_enabled", cfg.LLM.Enabled).
		Str("default_chain", cfg.LLM.DefaultChainID).
		Bool("warmer_enabled", cfg.Warmer.Enabled).
		Msg("Starting Recoplane with supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === STORE ===

	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache store")
		}
	}()

	// === RECOMMENDATION SERVICE ===

	settings := recommend.NewSettingsStore(recommend.NewSettings(cfg))

	fixtures, err := source.Open(cfg.Sources)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load candidate and profile sources")
	}

	providers := provider.Build(settings, logger)
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logging.Info().Strs("providers", names).Msg("Providers registered")

	svc, err := recommend.NewService(recommend.Deps{
		Settings:   settings,
		Store:      store,
		Providers:  providers,
		Candidates: fixtures,
		Profiles:   fixtures,
		Tiers:      fixtures,
	}, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create recommendation service")
	}
	invalidator := recommend.NewInvalidator(store, logger)

	var warmer *recommend.Warmer
	if cfg.Warmer.Enabled {
		warmer = recommend.NewWarmer(svc, fixtures, svc.Profiles(), settings, logger)
	} else {
		logging.Info().Msg("Cache warmer disabled (WARMER_ENABLED=false)")
	}

	// === SUPERVISOR TREE ===

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout + 5*time.Second
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddStoreService(services.NewStoreMaintenanceService(store, cfg.Cache.Badger.GCInterval, logger, svc))
	if configPath != "" {
		tree.AddStoreService(services.NewConfigReloadService(configPath, settings, services.ConfigReloadOptions{
			OnApply: func(next *config.Config) {
				if prev := logging.SetLevel(next.Logging.Level); prev.String() != next.Logging.Level {
					logging.Info().Str("from", prev.String()).Str("to", next.Logging.Level).Msg("Log level changed")
				}
			},
		}, logger))
		logging.Info().Str("path", configPath).Msg("Config hot reload enabled")
	}

	handlerDeps := api.Deps{
		BaseContext: ctx,
		Store:       store,
		Invalidator: invalidator,
		Budget:      svc,
	}
	if warmer != nil {
		tree.AddBackgroundService(services.NewWarmerService(warmer, services.WarmerServiceConfig{
			Interval:      cfg.Warmer.Interval,
			WarmOnStartup: cfg.Warmer.WarmOnStartup,
		}, logger))
		handlerDeps.Warmer = warmer
	}

	handler := api.NewHandler(handlerDeps, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, logger))

	// === START SUPERVISOR TREE ===

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
		err = <-errCh
	case err = <-errCh:
		stop()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	// Manual warmer runs started over the ops API finish before the store closes.
	handler.Wait()

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, u := range unstopped {
			logging.Warn().Str("service", u.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
