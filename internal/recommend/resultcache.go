// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/metrics"
)

// resultFormatVersion is bumped whenever the cached payload changes shape.
// Entries with another version are evicted on read.
const resultFormatVersion = 1

type cachedResult struct {
	Version  int       `json:"v"`
	Key      string    `json:"key"`
	StoredAt time.Time `json:"storedAt"`
	Response *Response `json:"response"`
}

// ResultCache stores finished responses in the shared store. Reads fail
// closed: store errors and undecodable payloads are misses, and undecodable
// payloads are deleted. Writes are last-writer-wins.
type ResultCache struct {
	store  cache.Store
	group  singleflight.Group
	logger zerolog.Logger
}

// NewResultCache creates a result cache over store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewResultCache(store cache.Store, logger zerolog.Logger) *ResultCache {
	return &ResultCache{
		store:  store,
		logger: logger.With().Str("component", "result_cache").Logger(),
	}
}

// Get returns the cached response for key.
func (c *ResultCache) Get(ctx context.Context, key string) (*Response, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			metrics.RecordStoreError("result_get")
			c.logger.Warn().Err(err).Str("key", key).Msg("Result cache read failed, treating as miss")
		}
		metrics.RecordResultCache(false)
		return nil, false
	}

	var entry cachedResult
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Version != resultFormatVersion || entry.Key != key || entry.Response == nil {
		c.evict(ctx, key, err)
		metrics.RecordResultCache(false)
		return nil, false
	}

	metrics.RecordResultCache(true)
	return entry.Response, true
}

// Put stores resp under key for ttl.
func (c *ResultCache) Put(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	if resp == nil || ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(cachedResult{
		Version:  resultFormatVersion,
		Key:      key,
		StoredAt: time.Now().UTC(),
		Response: resp,
	})
	if err != nil {
		return fmt.Errorf("encode cached result: %w", err)
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		metrics.RecordStoreError("result_set")
		return fmt.Errorf("store cached result: %w", err)
	}
	return nil
}

// Fill runs fn once per key among concurrent callers and hands each caller
// its own copy of the response.
func (c *ResultCache) Fill(key string, fn func() (*Response, error)) (*Response, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	resp, _ := v.(*Response)
	return resp.Clone(), nil
}

// Discard removes the entry under key.
func (c *ResultCache) Discard(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		metrics.RecordStoreError("result_delete")
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to discard cached result")
	}
}

func (c *ResultCache) evict(ctx context.Context, key string, cause error) {
	metrics.RecordResultCacheEviction("corrupt")
	c.logger.Warn().Err(cause).Str("key", key).Msg("Corrupt cached result, evicting")
	if err := c.store.Delete(ctx, key); err != nil {
		metrics.RecordStoreError("result_delete")
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to evict corrupt cached result")
	}
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Items = make([]RecommendationItem, len(r.Items))
	for i, it := range r.Items {
		if it.Explanations != nil {
			it.Explanations = append([]string(nil), it.Explanations...)
		}
		out.Items[i] = it
	}
	out.Meta.ChainHops = append([]string{}, r.Meta.ChainHops...)
	return &out
}
