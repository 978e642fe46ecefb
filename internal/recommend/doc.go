// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

// Package recommend is the control plane in front of LLM-backed practice
// recommendations.
//
// # Request Flow
//
// A request passes through these stages:
//
//  1. ContextBuilder resolves tier, A/B group, route and the learner profile.
//  2. The feature toggles decide whether the LLM path runs at all.
//  3. ResolveStrategy picks AI, HYBRID or FSRS; ChainSelector picks a chain.
//  4. The ResultCache is consulted under a fingerprinted key.
//  5. CostGuard checks the token budgets and may shrink the candidate set.
//  6. Enhancer filters and orders candidates for the prompt.
//  7. ChainExecutor walks the provider chain with per-hop breakers,
//     rate limits and timeouts until one provider succeeds.
//  8. HybridRanker, Calibrator and TopUp post-process the items.
//
// Any failure along the way degrades to FallbackRank, a deterministic
// urgency ordering, or to a busy response when no candidates exist. LLM
// trouble is never returned as an error.
//
// # Concurrency
//
// Settings are an immutable snapshot swapped atomically on reload; a request
// reads one snapshot for its whole life. Async requests are admitted by a
// global and a per-user semaphore. Concurrent identical requests share one
// computation through the result cache.
//
// # Usage
//
//	settings := recommend.NewSettingsStore(recommend.NewSettings(cfg))
//	svc, err := recommend.NewService(recommend.Deps{
//	    Settings:   settings,
//	    Store:      store,
//	    Providers:  providers,
//	    Candidates: candidates,
//	    Profiles:   profiles,
//	}, logger)
//
//	resp, err := svc.GetRecommendations(ctx, recommend.Request{
//	    UserID: "u-123",
//	    Limit:  10,
//	    Type:   "HYBRID",
//	})
package recommend
