// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

// Package source provides file-backed data sources for local runs and
// demos. Production deployments plug their own implementations of the
// recommend source interfaces in front of the scheduler database.
//
// Files (all optional, configured under sources.*):
//
//	candidates.json    {"default": [...], "users": {"u-1": [...]}}
//	profiles.json      {"u-1": {"overallMastery": 0.6, "domainSkills": {...}}}
//	active_users.json  [{"userId": "u-1", "reviews": 12, "lastReviewAt": "2026-03-14T10:00:00Z", "tier": "GOLD"}]
package source
