// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/recoplane/internal/recommend"
)

// MockName is the registered name of the mock provider.
const MockName = "mock"

const (
	mockScore     = 0.5
	defaultLimitN = 10
)

// Mock answers deterministically with the first limit candidates in input
// order, each at confidence and score 0.5. It is meant for local runs and
// tests.
type Mock struct{}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns "mock".
func (*Mock) Name() string {
	return MockName
}

// Rank returns the first opts.Limit candidates.
func (*Mock) Rank(ctx context.Context, _ *recommend.RequestContext, candidates []recommend.ProblemCandidate, opts recommend.CallOptions) (*recommend.ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimitN
	}
	n := min(limit, len(candidates))

	items := make([]recommend.RecommendationItem, 0, n)
	for i := range n {
		items = append(items, recommend.RecommendationItem{
			ProblemID:  candidates[i].ID,
			Reason:     fmt.Sprintf("Mock recommendation for candidate %d", candidates[i].ID),
			Confidence: mockScore,
			Score:      mockScore,
			Strategy:   MockName,
		})
	}
	return &recommend.ProviderResult{
		Items:    items,
		Provider: MockName,
		Model:    MockName,
		Latency:  time.Since(start),
		Complete: true,
	}, nil
}
