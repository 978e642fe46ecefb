// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

/*
Package supervisor provides process supervision for the control plane using
suture v4.

Long-running services are organized into three layers so that a failing
background job cannot take the ops endpoints down:

	RootSupervisor ("recoplane")
	├── StoreSupervisor ("store-layer")
	│   ├── StoreMaintenanceService
	│   └── ConfigReloadService (if a config file is present)
	├── BackgroundSupervisor ("background-layer")
	│   └── WarmerService (if warmer.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services are restarted with backoff. Each layer counts failures on
its own. Supervisor events are logged through sutureslog, bridged onto
zerolog by logging.NewSlogLogger.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddStoreService(services.NewStoreMaintenanceService(store, gcInterval, logger, svc))
	tree.AddBackgroundService(services.NewWarmerService(warmer, warmerCfg, logger))
	tree.AddAPIService(services.NewHTTPServerService(srv, shutdownTimeout, logger))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("supervisor stopped")
	}

See the services subpackage for the service implementations.
*/
package supervisor
