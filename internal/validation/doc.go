// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is built once and shared; it caches struct
// metadata and carries the project-specific rules:
//
//   - chainid: identifiers that are safe inside cache and counter keys
//   - tier: user segment names, matched case-insensitively
//
// Usage:
//
//	type RoutingCondition struct {
//	    Tier []string `koanf:"tier" validate:"omitempty,dive,tier"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    return fmt.Errorf("invalid llm config: %w", err)
//	}
package validation
