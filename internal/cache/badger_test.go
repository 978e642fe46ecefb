// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/recoplane/internal/config"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(config.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_Conformance(t *testing.T) {
	runStoreConformance(t, newTestBadgerStore(t))
}

func TestBadgerStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBadgerStore(config.BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	if _, err := s.IncrByFloat(ctx, "budget:monthly:2026-10", 12.5, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewBadgerStore(config.BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetFloat(ctx, "budget:monthly:2026-10")
	if err != nil || got != 12.5 {
		t.Errorf("GetFloat after reopen = (%v, %v), want (12.5, nil)", got, err)
	}
	if err := reopened.Maintain(ctx); err != nil {
		t.Errorf("Maintain: %v", err)
	}
}

func TestBadgerStore_CounterKeepsExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	if _, err := s.IncrBy(ctx, "c", 1, time.Hour); err != nil {
		t.Fatal(err)
	}

	var firstExpiry uint64
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("c"))
		if err != nil {
			return err
		}
		firstExpiry = item.ExpiresAt()
		return nil
	})
	if firstExpiry == 0 {
		t.Fatal("expected counter to carry an expiry")
	}

	if _, err := s.IncrBy(ctx, "c", 1, 48*time.Hour); err != nil {
		t.Fatal(err)
	}
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("c"))
		if err != nil {
			return err
		}
		if item.ExpiresAt() != firstExpiry {
			t.Errorf("expiry changed from %d to %d", firstExpiry, item.ExpiresAt())
		}
		return nil
	})
}

func TestBadgerStore_SharedDBNotClosed(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := NewBadgerStoreFromDB(db)
	_ = s.Close()

	if db.IsClosed() {
		t.Error("Close on a wrapped store must not close the shared db")
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after Close err = %v, want ErrClosed", err)
	}
}

func TestGlobPrefix(t *testing.T) {
	tests := map[string]string{
		"rec:u1:*":  "rec:u1:",
		"rec:u?:AI": "rec:u",
		"plain":     "plain",
		"*":         "",
		"a[bc]:*":   "a",
	}
	for pattern, want := range tests {
		if got := globPrefix(pattern); got != want {
			t.Errorf("globPrefix(%q) = %q, want %q", pattern, got, want)
		}
	}
}
