// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
)

// LegacyChainID names the chain synthesized from llm.nodes when no chains
// are configured.
const LegacyChainID = "legacy"

// ChainSelector picks the provider chain for a request segment.
type ChainSelector struct {
	logger zerolog.Logger
}

// NewChainSelector creates a selector.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewChainSelector(logger zerolog.Logger) *ChainSelector {
	return &ChainSelector{logger: logger.With().Str("component", "chain_selector").Logger()}
}

// Select returns the chain for rctx and its id. The first routing rule whose
// present conditions all match wins; otherwise the default chain is used.
// A dangling chain id falls back to the first configured chain, and with no
// chains at all a legacy chain is built from llm.nodes. Select never fails.
func (s *ChainSelector) Select(rctx *RequestContext, llm *config.LLMConfig) (config.ChainConfig, string) {
	if len(llm.Chains) == 0 {
		return config.ChainConfig{ID: LegacyChainID, Nodes: llm.Nodes}, LegacyChainID
	}

	selected, source := llm.DefaultChainID, "default"
	for i := range llm.Routing {
		if ruleMatches(&llm.Routing[i], rctx) {
			selected, source = llm.Routing[i].ChainID, "routing"
			break
		}
	}

	if ch, ok := llm.Chain(selected); ok {
		return ch, ch.ID
	}

	first := llm.Chains[0]
	s.logger.Warn().
		Str("chain_id", selected).
		Str("selected_by", source).
		Str("using", first.ID).
		Msg("Selected chain is missing or unknown, falling back to the first chain (configuration gap)")
	return first, first.ID
}

// ruleMatches reports whether every present, non-empty condition accepts
// rctx. Rules without a when block never match.
func ruleMatches(rule *config.RoutingRule, rctx *RequestContext) bool {
	when := rule.When
	if when == nil || rctx == nil {
		return false
	}

	if len(when.Tier) > 0 && !slices.ContainsFunc(when.Tier, func(t string) bool {
		return strings.EqualFold(t, string(rctx.Tier))
	}) {
		return false
	}
	if len(when.ABGroup) > 0 && !slices.Contains(when.ABGroup, rctx.ABGroup) {
		return false
	}
	if len(when.Route) > 0 && !slices.Contains(when.Route, rctx.Route) {
		return false
	}
	return true
}
