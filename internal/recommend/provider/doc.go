// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

// Package provider contains the ranking providers a chain can call: an
// OpenAI-compatible chat completions client, a deterministic mock and the
// terminal default provider.
//
// Build registers the providers named by the configuration:
//
//	providers := provider.Build(settings, logger)
//	svc, err := recommend.NewService(recommend.Deps{Providers: providers, ...}, logger)
package provider
