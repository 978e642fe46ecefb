// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"slices"
	"strings"

	"github.com/tomtom215/recoplane/internal/config"
)

// Toggle denial reasons. Route, tier and A/B group reasons carry the
// offending value after a colon.
const (
	ReasonGlobalDisabled  = "GLOBAL_DISABLED"
	ReasonUserDenied      = "USER_DENIED"
	ReasonAllowListDenied = "ALLOWLIST_DENIED"
	ReasonRouteDisabled   = "ROUTE_DISABLED"
	ReasonTierDisabled    = "TIER_DISABLED"
	ReasonABGroupDisabled = "ABGROUP_DISABLED"
)

// IsEnabled reports whether the LLM path is open for rctx.
func IsEnabled(rctx *RequestContext, toggles *config.TogglesConfig) bool {
	return DisabledReason(rctx, toggles) == ""
}

// DisabledReason returns why the LLM path is closed for rctx, or "" when it
// is open. Checks run in order: global switch, deny list, allow list,
// route, tier, A/B group. A nil toggle config enables everything.
func DisabledReason(rctx *RequestContext, toggles *config.TogglesConfig) string {
	if toggles == nil {
		return ""
	}
	if !toggles.Enabled {
		return ReasonGlobalDisabled
	}
	if rctx == nil {
		return ""
	}

	if slices.Contains(toggles.DenyList, rctx.UserID) {
		return ReasonUserDenied
	}

	if len(toggles.AllowList) > 0 {
		listed := slices.Contains(toggles.AllowList, rctx.UserID)
		switch toggles.AllowListMode {
		case config.AllowListModeWhitelist:
			if !listed {
				return ReasonAllowListDenied
			}
			return ""
		case config.AllowListModeOverride, "":
			if listed {
				return ""
			}
		}
	}

	if rctx.Route != "" {
		if on, ok := toggles.Routes[rctx.Route]; ok && !on {
			return ReasonRouteDisabled + ":" + rctx.Route
		}
	}

	if rctx.Tier != "" {
		for key, on := range toggles.Tiers {
			if !on && strings.EqualFold(key, string(rctx.Tier)) {
				return ReasonTierDisabled + ":" + strings.ToUpper(string(rctx.Tier))
			}
		}
	}

	if rctx.ABGroup != "" {
		if on, ok := toggles.ABGroups[rctx.ABGroup]; ok && !on {
			return ReasonABGroupDisabled + ":" + rctx.ABGroup
		}
	}

	return ""
}
