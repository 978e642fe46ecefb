// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package provider

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/recommend"
)

// Build returns one provider per node name found in the configured chains
// and legacy nodes, plus openai, mock and the terminal default. Names other
// than mock and default are OpenAI-compatible clients sharing llm.openai.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Build(settings *recommend.SettingsStore, logger zerolog.Logger) []recommend.Provider {
	llm := settings.Load().LLM

	names := map[string]struct{}{OpenAIName: {}}
	for i := range llm.Chains {
		addNodeNames(names, llm.Chains[i].Nodes)
	}
	addNodeNames(names, llm.Nodes)

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	providers := make([]recommend.Provider, 0, len(sorted)+2)
	for _, name := range sorted {
		switch name {
		case MockName, recommend.DefaultProviderName:
			continue
		default:
			providers = append(providers, NewOpenAI(llm.OpenAI, logger, WithName(name)))
		}
	}
	providers = append(providers, NewMock(), NewDefault(settings))

	logger.Info().Strs("providers", sorted).Msg("Providers registered")
	return providers
}

func addNodeNames(names map[string]struct{}, nodes []config.NodeConfig) {
	for i := range nodes {
		if nodes[i].Name != "" {
			names[nodes[i].Name] = struct{}{}
		}
	}
}
