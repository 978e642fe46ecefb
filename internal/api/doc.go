// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

// Package api serves the operational HTTP surface of the control plane:
// liveness and readiness checks, Prometheus metrics, cache warmer status
// and triggers, and per-user cache invalidation.
//
// Every JSON response uses the APIResponse envelope:
//
//	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 0}}
//
// The recommendation request path itself is a library API (see package
// recommend) and is not exposed here.
package api
