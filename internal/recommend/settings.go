// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"sync/atomic"

	"github.com/tomtom215/recoplane/internal/config"
)

// Settings is an immutable snapshot of everything the request path reads
// from configuration. A request loads the snapshot once and uses it
// throughout, so a concurrent reload never produces a half-old, half-new
// view.
type Settings struct {
	LLM         config.LLMConfig
	Budget      config.BudgetConfig
	Enhancer    config.EnhancerConfig
	Calibration config.CalibrationConfig
	Hybrid      config.HybridConfig
	Strategy    config.StrategyConfig
	Cache       config.CacheConfig
	Warmer      config.WarmerConfig
}

// NewSettings extracts a snapshot from a loaded configuration. The tag to
// domain mapping is resolved here once, with lowercased keys, so every
// ranking stage reads the same one.
func NewSettings(cfg *config.Config) *Settings {
	if cfg == nil {
		cfg = config.Default()
	}
	enhancer := cfg.Enhancer
	enhancer.TagDomainMapping = ResolveTagDomains(cfg.Enhancer.TagDomainMapping)
	return &Settings{
		LLM:         cfg.LLM,
		Budget:      cfg.Budget,
		Enhancer:    enhancer,
		Calibration: cfg.Calibration,
		Hybrid:      cfg.Hybrid,
		Strategy:    cfg.Strategy,
		Cache:       cfg.Cache,
		Warmer:      cfg.Warmer,
	}
}

// SettingsStore publishes the current Settings snapshot.
type SettingsStore struct {
	current atomic.Pointer[Settings]
}

// NewSettingsStore returns a store holding s.
func NewSettingsStore(s *Settings) *SettingsStore {
	st := &SettingsStore{}
	st.Store(s)
	return st
}

// Load returns the current snapshot. Callers must not modify it.
func (s *SettingsStore) Load() *Settings {
	return s.current.Load()
}

// Store replaces the snapshot. A nil snapshot is ignored.
func (s *SettingsStore) Store(next *Settings) {
	if next == nil {
		return
	}
	s.current.Store(next)
}
