// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

// Package logging provides centralized zerolog-based structured logging for Recoplane.
//
// # Overview
//
// The package provides:
//   - A global zerolog logger configured once at startup
//   - JSON output for production and console output for development
//   - Context helpers carrying correlation and recommendation trace ids
//   - An slog adapter so suture's event hook logs through zerolog
//
// # Quick Start
//
//	logging.Init(logging.FromConfig(cfg.Logging))
//
//	logging.Info().Str("addr", addr).Msg("ops server listening")
//	logging.Ctx(ctx).Warn().Str("chain_id", id).Msg("unknown chain id, using first chain")
//
// Components take a zerolog.Logger by value in their constructors and
// derive a child logger tagged with their component name:
//
//	logger = logger.With().Str("component", "provider-chain").Logger()
//
// Every line of the global logger carries service=recoplane. On a config
// reload only the level changes, through SetLevel; format and output stay
// as they were at startup.
package logging
