// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package cache

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/recoplane/internal/metrics"
)

// MemoryStore is an in-process Store on top of the LRU. It is the default
// backend for single-instance deployments and the store used in tests.
// Capacity evictions can drop counters, so multi-instance deployments that
// enforce budgets should use redis.
type MemoryStore struct {
	lru    *LRU[[]byte]
	closed atomic.Bool
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries keys.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		lru: NewLRU[[]byte](maxEntries, WithEvictCallback(func(string, []byte) {
			metrics.MemoryStoreEvictions.Inc()
		})),
	}
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.lru.Set(key, bytes.Clone(value), ttl)
	return nil
}

// SetNX implements Store.
func (s *MemoryStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	return s.lru.SetIfAbsent(key, bytes.Clone(value), ttl), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

// DeletePattern implements Store.
func (s *MemoryStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return s.lru.RemoveFunc(func(key string) bool {
		return MatchPattern(key, pattern)
	}), nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	return s.lru.Contains(key), nil
}

// IncrByFloat implements Store.
func (s *MemoryStore) IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var result float64
	_, err := s.lru.Mutate(key, ttl, func(old []byte, _ bool) ([]byte, error) {
		cur, err := parseFloat(old)
		if err != nil {
			return nil, err
		}
		result = cur + delta
		return formatFloat(result), nil
	})
	return result, err
}

// IncrBy implements Store.
func (s *MemoryStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var result int64
	_, err := s.lru.Mutate(key, ttl, func(old []byte, _ bool) ([]byte, error) {
		cur, err := parseInt(old)
		if err != nil {
			return nil, err
		}
		result = cur + delta
		return formatInt(result), nil
	})
	return result, err
}

// GetFloat implements Store.
func (s *MemoryStore) GetFloat(ctx context.Context, key string) (float64, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return parseFloat(b)
}

// GetInt implements Store.
func (s *MemoryStore) GetInt(ctx context.Context, key string) (int64, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return parseInt(b)
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Maintain drops expired entries and refreshes the size gauge.
func (s *MemoryStore) Maintain(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.lru.CleanupExpired()
	metrics.MemoryStoreEntries.Set(float64(s.lru.Len()))
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
