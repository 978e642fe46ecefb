// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/cache"
)

func newResultCache(t *testing.T) (*ResultCache, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore(100)
	t.Cleanup(func() { _ = store.Close() })
	return NewResultCache(store, zerolog.Nop()), store
}

func sampleResponse() *Response {
	return &Response{
		Items: []RecommendationItem{{ProblemID: 7, Score: 0.9, Explanations: []string{"overdue"}}},
		Meta:  Meta{Strategy: StrategyNormal, ChainHops: []string{"openai"}},
	}
}

func TestResultCacheRoundTrip(t *testing.T) {
	rc, _ := newResultCache(t)
	ctx := context.Background()

	if _, ok := rc.Get(ctx, "rec-ai:u1:1"); ok {
		t.Fatal("empty cache should miss")
	}
	if err := rc.Put(ctx, "rec-ai:u1:1", sampleResponse(), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := rc.Get(ctx, "rec-ai:u1:1")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got.Items) != 1 || got.Items[0].ProblemID != 7 || got.Meta.ChainHops[0] != "openai" {
		t.Errorf("cached response = %+v", got)
	}
}

func TestResultCachePutSkips(t *testing.T) {
	rc, store := newResultCache(t)
	ctx := context.Background()

	if err := rc.Put(ctx, "k", nil, time.Minute); err != nil {
		t.Errorf("nil response: %v", err)
	}
	if err := rc.Put(ctx, "k", sampleResponse(), 0); err != nil {
		t.Errorf("zero ttl: %v", err)
	}
	if ok, _ := store.Exists(ctx, "k"); ok {
		t.Error("nothing should have been stored")
	}
}

func TestResultCacheEvictsUnreadableEntries(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not json"},
		{"old version", `{"v":0,"key":"rec-ai:u1:1","response":{"items":[]}}`},
		{"key mismatch", `{"v":1,"key":"rec-ai:u2:1","response":{"items":[]}}`},
		{"no response", `{"v":1,"key":"rec-ai:u1:1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, store := newResultCache(t)
			ctx := context.Background()
			if err := store.Set(ctx, "rec-ai:u1:1", []byte(tt.raw), time.Minute); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if _, ok := rc.Get(ctx, "rec-ai:u1:1"); ok {
				t.Fatal("unreadable entry should miss")
			}
			if ok, _ := store.Exists(ctx, "rec-ai:u1:1"); ok {
				t.Error("unreadable entry should be evicted")
			}
		})
	}
}

func TestResultCacheFillSharesWork(t *testing.T) {
	rc, _ := newResultCache(t)

	var calls atomic.Int64
	release := make(chan struct{})
	fn := func() (*Response, error) {
		calls.Add(1)
		<-release
		return sampleResponse(), nil
	}

	const n = 5
	var wg sync.WaitGroup
	results := make([]*Response, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = rc.Fill("key", fn)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if c := calls.Load(); c != 1 {
		t.Errorf("fill ran %d times, want 1", c)
	}
	results[0].Items[0].Explanations[0] = "mutated"
	for i := 1; i < n; i++ {
		if results[i] == results[0] {
			t.Fatal("callers should receive distinct copies")
		}
		if results[i].Items[0].Explanations[0] != "overdue" {
			t.Error("mutating one copy leaked into another")
		}
	}
}

func TestResultCacheFillError(t *testing.T) {
	rc, _ := newResultCache(t)
	if _, err := rc.Fill("key", func() (*Response, error) { return nil, errBoom }); !errors.Is(err, errBoom) {
		t.Errorf("Fill error = %v, want %v", err, errBoom)
	}
}
