// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
)

func routedLLM() *config.LLMConfig {
	return &config.LLMConfig{
		Enabled:        true,
		DefaultChainID: "main",
		Chains: []config.ChainConfig{
			{ID: "main", Nodes: []config.NodeConfig{{Name: "openai"}}},
			{ID: "premium", Nodes: []config.NodeConfig{{Name: "deepseek"}}},
			{ID: "experiment", Nodes: []config.NodeConfig{{Name: "mock"}}},
		},
		Routing: []config.RoutingRule{
			{ChainID: "premium", When: &config.RoutingCondition{Tier: []string{"gold", "platinum"}}},
			{ChainID: "experiment", When: &config.RoutingCondition{ABGroup: []string{"B"}, Route: []string{"ai-recommendations"}}},
			{ChainID: "premium"},
		},
	}
}

func TestChainSelectorSelect(t *testing.T) {
	s := NewChainSelector(zerolog.Nop())

	tests := []struct {
		name string
		rctx *RequestContext
		llm  func() *config.LLMConfig
		want string
	}{
		{"default", &RequestContext{Tier: TierBronze}, routedLLM, "main"},
		{"tier rule", &RequestContext{Tier: TierGold}, routedLLM, "premium"},
		{"all conditions must match", &RequestContext{ABGroup: "B", Route: "daily-plan"}, routedLLM, "main"},
		{"multi-condition rule", &RequestContext{ABGroup: "B", Route: "ai-recommendations"}, routedLLM, "experiment"},
		{"first matching rule wins", &RequestContext{Tier: TierPlatinum, ABGroup: "B", Route: "ai-recommendations"}, routedLLM, "premium"},
		{"dangling default", &RequestContext{}, func() *config.LLMConfig {
			c := routedLLM()
			c.DefaultChainID = "gone"
			return c
		}, "main"},
		{"dangling rule target", &RequestContext{Tier: TierGold}, func() *config.LLMConfig {
			c := routedLLM()
			c.Routing[0].ChainID = "gone"
			c.Chains = c.Chains[2:]
			return c
		}, "experiment"},
		{"legacy nodes", &RequestContext{}, func() *config.LLMConfig {
			return &config.LLMConfig{Nodes: []config.NodeConfig{{Name: "openai"}}}
		}, LegacyChainID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, id := s.Select(tt.rctx, tt.llm())
			if id != tt.want || chain.ID != tt.want {
				t.Errorf("Select = %s (chain %s), want %s", id, chain.ID, tt.want)
			}
		})
	}
}

func TestChainSelectorLegacyUsesNodes(t *testing.T) {
	llm := &config.LLMConfig{Nodes: []config.NodeConfig{{Name: "a"}, {Name: "b"}}}
	chain, _ := NewChainSelector(zerolog.Nop()).Select(&RequestContext{}, llm)
	if len(chain.Nodes) != 2 || chain.Nodes[1].Name != "b" {
		t.Errorf("legacy chain nodes = %+v", chain.Nodes)
	}
}

func TestChainSelectorRuleOrder(t *testing.T) {
	s := NewChainSelector(zerolog.Nop())
	gold := &RequestContext{Tier: TierGold, ABGroup: "B", Route: "ai-recommendations"}
	silver := &RequestContext{Tier: TierSilver, ABGroup: "A"}

	swap := func(c *config.LLMConfig) *config.LLMConfig {
		c.Routing[0], c.Routing[1] = c.Routing[1], c.Routing[0]
		return c
	}

	t.Run("non-overlapping rules are order independent", func(t *testing.T) {
		build := func() *config.LLMConfig {
			c := routedLLM()
			c.Routing = []config.RoutingRule{
				{ChainID: "premium", When: &config.RoutingCondition{Tier: []string{"gold"}}},
				{ChainID: "experiment", When: &config.RoutingCondition{Tier: []string{"silver"}}},
			}
			return c
		}
		for _, rctx := range []*RequestContext{gold, silver} {
			_, a := s.Select(rctx, build())
			_, b := s.Select(rctx, swap(build()))
			if a != b {
				t.Errorf("tier %s: %s before swap, %s after", rctx.Tier, a, b)
			}
		}
	})

	t.Run("overlapping rules follow order", func(t *testing.T) {
		_, before := s.Select(gold, routedLLM())
		_, after := s.Select(gold, swap(routedLLM()))
		if before != "premium" || after != "experiment" {
			t.Errorf("got %s then %s, want premium then experiment", before, after)
		}
	})
}
