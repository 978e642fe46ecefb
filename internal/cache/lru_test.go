// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package cache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLRU_BasicOperations(t *testing.T) {
	c := NewLRU[int](3)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		got, ok := c.Get(key)
		if !ok {
			t.Errorf("Expected to find key %q", key)
			continue
		}
		if got != want {
			t.Errorf("Get(%q) = %d, want %d", key, got, want)
		}
	}

	if c.Len() != 3 {
		t.Errorf("Expected len 3, got %d", c.Len())
	}
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c := NewLRU[int](3, WithEvictCallback(func(key string, _ int) {
		evicted = append(evicted, key)
	}))

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item, should evict 'b' (least recently used)
	c.Set("d", 4, 0)

	if _, found := c.Get("b"); found {
		t.Error("Expected 'b' to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, found := c.Get(key); !found {
			t.Errorf("Expected %q to be present", key)
		}
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evict callback saw %v, want [b]", evicted)
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	c := NewLRU[string](10)

	c.Set("short", "x", 30*time.Millisecond)
	c.Set("forever", "y", 0)

	if _, found := c.Get("short"); !found {
		t.Fatal("Expected to find key 'short' immediately")
	}

	time.Sleep(50 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("Expected 'short' to be expired")
	}
	if _, found := c.Get("forever"); !found {
		t.Error("Expected 'forever' to survive")
	}
}

func TestLRU_SetIfAbsent(t *testing.T) {
	c := NewLRU[int](10)

	if !c.SetIfAbsent("k", 1, 0) {
		t.Fatal("first SetIfAbsent should store")
	}
	if c.SetIfAbsent("k", 2, 0) {
		t.Fatal("second SetIfAbsent should not store")
	}
	if v, _ := c.Get("k"); v != 1 {
		t.Errorf("value = %d, want 1", v)
	}

	c.Set("exp", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if !c.SetIfAbsent("exp", 5, 0) {
		t.Error("SetIfAbsent should replace an expired entry")
	}
}

func TestLRU_GetOrAdd(t *testing.T) {
	c := NewLRU[*int](10)
	calls := 0
	create := func() *int {
		calls++
		v := calls
		return &v
	}

	first := c.GetOrAdd("u1", time.Minute, create)
	second := c.GetOrAdd("u1", time.Minute, create)

	if first != second {
		t.Error("GetOrAdd should return the same value for a live key")
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestLRU_GetOrAddSlidesExpiry(t *testing.T) {
	c := NewLRU[int](10)
	ttl := 40 * time.Millisecond

	c.GetOrAdd("u1", ttl, func() int { return 1 })
	for range 4 {
		time.Sleep(20 * time.Millisecond)
		c.GetOrAdd("u1", ttl, func() int { return 2 })
	}

	if v, ok := c.Get("u1"); !ok || v != 1 {
		t.Errorf("Get = (%d, %v), want (1, true) after repeated touches", v, ok)
	}
}

func TestLRU_Mutate(t *testing.T) {
	c := NewLRU[int](10)

	v, err := c.Mutate("n", time.Minute, func(old int, exists bool) (int, error) {
		if exists {
			t.Error("exists should be false for a new key")
		}
		return old + 5, nil
	})
	if err != nil || v != 5 {
		t.Fatalf("Mutate = (%d, %v), want (5, nil)", v, err)
	}

	v, _ = c.Mutate("n", time.Minute, func(old int, exists bool) (int, error) {
		if !exists {
			t.Error("exists should be true for a stored key")
		}
		return old + 1, nil
	})
	if v != 6 {
		t.Errorf("Mutate = %d, want 6", v)
	}

	boom := errors.New("boom")
	v, err = c.Mutate("n", time.Minute, func(int, bool) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if v != 6 {
		t.Errorf("failed Mutate returned %d, want previous value 6", v)
	}
	if got, _ := c.Get("n"); got != 6 {
		t.Errorf("stored value changed to %d after failed Mutate", got)
	}
}

func TestLRU_MutateKeepsExpiry(t *testing.T) {
	c := NewLRU[int](10)

	_, _ = c.Mutate("n", 40*time.Millisecond, func(old int, _ bool) (int, error) { return old + 1, nil })
	time.Sleep(25 * time.Millisecond)
	_, _ = c.Mutate("n", time.Hour, func(old int, _ bool) (int, error) { return old + 1, nil })
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("n"); ok {
		t.Error("later Mutate must not extend the original expiry")
	}
}

func TestLRU_RemoveFunc(t *testing.T) {
	c := NewLRU[int](10)
	c.Set("rec:u1:a", 1, 0)
	c.Set("rec:u1:b", 2, 0)
	c.Set("rec:u2:a", 3, 0)

	n := c.RemoveFunc(func(key string) bool { return MatchPattern(key, "rec:u1:*") })
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if !c.Contains("rec:u2:a") {
		t.Error("non-matching key was removed")
	}
}

func TestLRU_EvictionGuard(t *testing.T) {
	pinned := map[string]bool{"busy": true}
	c := NewLRU[int](2, WithEvictionGuard(func(key string, _ int) bool {
		return !pinned[key]
	}))

	c.Set("busy", 1, 10*time.Millisecond)
	c.Set("idle", 2, 0)
	c.Set("new", 3, 0)

	if !c.Contains("busy") {
		t.Error("pinned entry was evicted for capacity")
	}
	if c.Contains("idle") {
		t.Error("unpinned LRU entry should have been evicted")
	}

	time.Sleep(20 * time.Millisecond)
	if removed := c.CleanupExpired(); removed != 0 {
		t.Errorf("CleanupExpired removed %d pinned entries", removed)
	}
	if _, ok := c.Get("busy"); !ok {
		t.Error("expired but pinned entry should still be readable")
	}

	pinned["busy"] = false
	if removed := c.CleanupExpired(); removed != 1 {
		t.Errorf("CleanupExpired removed %d, want 1 once unpinned", removed)
	}
}

func TestLRU_GuardPinsEverything(t *testing.T) {
	c := NewLRU[int](1, WithEvictionGuard(func(string, int) bool { return false }))

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2 (capacity is soft when everything is pinned)", c.Len())
	}
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU[int](1)
	c.Set("a", 1, 0)
	c.Get("a")
	c.Get("missing")
	c.Set("b", 2, 0)

	hits, misses, evictions, size := c.Stats()
	if hits != 1 || misses != 1 || evictions != 1 || size != 1 {
		t.Errorf("Stats = (%d, %d, %d, %d), want (1, 1, 1, 1)", hits, misses, evictions, size)
	}
}

func TestLRU_Clear(t *testing.T) {
	c := NewLRU[int](10)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
	c.Set("c", 3, 0)
	if !c.Contains("c") {
		t.Error("cache unusable after Clear")
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int](100)
	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 200 {
				key := string(rune('a' + (n+j)%26))
				_, _ = c.Mutate(key, 0, func(old int, _ bool) (int, error) { return old + 1, nil })
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := range 26 {
		v, _ := c.Get(string(rune('a' + i)))
		total += v
	}
	if total != 2000 {
		t.Errorf("sum of counters = %d, want 2000", total)
	}
}
