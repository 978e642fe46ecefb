// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

/*
Package services provides suture.Service wrappers for the long-running
parts of the control plane.

Services:
  - HTTPServerService: runs the ops HTTP server and shuts it down gracefully
  - WarmerService: runs the cache warmer on startup and on a fixed interval
  - ConfigReloadService: watches the config file and swaps the settings snapshot
  - StoreMaintenanceService: store GC plus idle admission semaphore sweeps

Every service follows the same contract: Serve blocks until its context is
canceled and then returns ctx.Err(); a returned error makes suture restart
it with backoff. String names the service in supervisor logs.
*/
package services
