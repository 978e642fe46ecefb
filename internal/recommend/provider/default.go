// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package provider

import (
	"context"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/recommend"
)

// Default is the terminal provider of every chain. It never succeeds: its
// error code is the configured default strategy, which the service turns
// into a fallback ranking, a busy message or an empty answer. The strategy
// is read from the current settings on every call.
type Default struct {
	settings *recommend.SettingsStore
}

// NewDefault creates the terminal provider.
func NewDefault(settings *recommend.SettingsStore) *Default {
	return &Default{settings: settings}
}

// Name returns "default".
func (*Default) Name() string {
	return recommend.DefaultProviderName
}

// Rank always fails with the configured strategy as the error code.
func (d *Default) Rank(context.Context, *recommend.RequestContext, []recommend.ProblemCandidate, recommend.CallOptions) (*recommend.ProviderResult, error) {
	return nil, recommend.NewProviderError(recommend.DefaultProviderName, d.strategy(), nil)
}

func (d *Default) strategy() string {
	if d.settings != nil {
		if s := d.settings.Load(); s != nil && s.LLM.DefaultProvider.Strategy != "" {
			return s.LLM.DefaultProvider.Strategy
		}
	}
	return config.DefaultStrategyBusyMessage
}
