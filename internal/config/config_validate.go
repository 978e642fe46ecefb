// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/tomtom215/recoplane/internal/validation"
)

// Validate checks struct tag rules and the cross-field constraints that tags
// cannot express. An unknown default chain id is not an error: the selector
// recovers from it at request time and logs the gap.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateCache(); err != nil {
		return err
	}

	if err := c.validateChains(); err != nil {
		return err
	}

	if err := c.validateOpenAI(); err != nil {
		return err
	}

	if err := c.validateBudget(); err != nil {
		return err
	}

	if err := c.validateToggles(); err != nil {
		return err
	}

	return c.validateCalibration()
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	case "badger":
		if !c.Cache.Badger.InMemory && c.Cache.Badger.Path == "" {
			return fmt.Errorf("BADGER_PATH is required when CACHE_BACKEND=badger")
		}
	}
	return nil
}

// validateChains rejects duplicate chain ids. Dangling references from
// routing rules are tolerated and resolved by the selector.
func (c *Config) validateChains() error {
	seen := make(map[string]struct{}, len(c.LLM.Chains))
	for _, ch := range c.LLM.Chains {
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("llm.chains: duplicate chain id %q", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	return nil
}

func (c *Config) validateOpenAI() error {
	if err := validateBaseURL(c.LLM.OpenAI.BaseURL, "llm.openai.base_url"); err != nil {
		return fmt.Errorf("invalid provider endpoint: %w", err)
	}
	return nil
}

func (c *Config) validateBudget() error {
	if c.Budget.WarningThreshold >= c.Budget.EmergencyThreshold {
		return fmt.Errorf("budget.warning_threshold (%.2f) must be below budget.emergency_threshold (%.2f)",
			c.Budget.WarningThreshold, c.Budget.EmergencyThreshold)
	}
	return nil
}

// validateToggles rejects tier keys that differ only in case. Tiers match
// case-insensitively, so free:false next to FREE:true has no single meaning.
func (c *Config) validateToggles() error {
	seen := make(map[string]string, len(c.LLM.Toggles.Tiers))
	for key := range c.LLM.Toggles.Tiers {
		folded := strings.ToUpper(key)
		if prev, dup := seen[folded]; dup {
			first, second := min(prev, key), max(prev, key)
			return fmt.Errorf("llm.toggles.tiers: keys %q and %q differ only in case", first, second)
		}
		seen[folded] = key
	}
	return nil
}

func (c *Config) validateCalibration() error {
	t := c.Calibration.Thresholds
	if !(t.MinimumShow <= t.Low && t.Low <= t.Medium && t.Medium <= t.High) {
		return fmt.Errorf("calibration.thresholds must satisfy minimum_show <= low <= medium <= high")
	}

	if !c.Calibration.Enabled {
		return nil
	}
	w := c.Calibration.Weights
	sum := w.LLM + w.FSRS + w.Profile + w.Historical + w.Consensus + w.Context
	if math.Abs(sum-1.0) > 0.05 {
		return fmt.Errorf("calibration.weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}
