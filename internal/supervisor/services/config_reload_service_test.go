// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/metrics"
	"github.com/tomtom215/recoplane/internal/recommend"
)

var _ suture.Service = (*ConfigReloadService)(nil)

// fakeWatcher hands the registered callback to the test.
type fakeWatcher struct {
	mu       sync.Mutex
	callback func(error)
	stopped  bool
	ready    chan struct{}
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{ready: make(chan struct{})}
}

func (f *fakeWatcher) watch(_ string, cb func(error)) (func() error, error) {
	f.mu.Lock()
	f.callback = cb
	f.mu.Unlock()
	close(f.ready)
	return func() error {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		return nil
	}, nil
}

func (f *fakeWatcher) fire(err error) {
	<-f.ready
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	cb(err)
}

func writeYAML(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConfigReloadService_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	settings := recommend.NewSettingsStore(recommend.NewSettings(config.Default()))

	var applied *config.Config
	svc := NewConfigReloadService(path, settings, ConfigReloadOptions{
		OnApply: func(cfg *config.Config) { applied = cfg },
	}, zerolog.Nop())

	t.Run("valid file is published", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.ConfigReloads.WithLabelValues("applied"))
		writeYAML(t, path, "llm:\n  enabled: false\nbudget:\n  daily_usd: 2\n")

		if !svc.Reload() {
			t.Fatal("Reload() = false, want true")
		}
		got := settings.Load()
		if got.LLM.Enabled || got.Budget.DailyUSD != 2 {
			t.Errorf("snapshot not updated: llm.enabled=%v daily_usd=%v", got.LLM.Enabled, got.Budget.DailyUSD)
		}
		if applied == nil || applied.Budget.DailyUSD != 2 {
			t.Error("OnApply did not receive the new config")
		}
		if after := testutil.ToFloat64(metrics.ConfigReloads.WithLabelValues("applied")); after != before+1 {
			t.Errorf("applied reloads = %v, want %v", after, before+1)
		}
	})

	t.Run("invalid file keeps previous snapshot", func(t *testing.T) {
		prev := settings.Load()
		before := testutil.ToFloat64(metrics.ConfigReloads.WithLabelValues("rejected"))
		writeYAML(t, path, "budget:\n  daily_usd: -1\n")

		if svc.Reload() {
			t.Fatal("Reload() = true, want false")
		}
		if settings.Load() != prev {
			t.Error("snapshot replaced by an invalid config")
		}
		if after := testutil.ToFloat64(metrics.ConfigReloads.WithLabelValues("rejected")); after != before+1 {
			t.Errorf("rejected reloads = %v, want %v", after, before+1)
		}
	})
}

func TestConfigReloadService_Serve(t *testing.T) {
	settings := recommend.NewSettingsStore(recommend.NewSettings(config.Default()))
	watcher := newFakeWatcher()

	var mu sync.Mutex
	loads := 0
	svc := NewConfigReloadService("config.yaml", settings, ConfigReloadOptions{
		Debounce: 30 * time.Millisecond,
		Watch:    watcher.watch,
		Load: func(string) (*config.Config, error) {
			mu.Lock()
			defer mu.Unlock()
			loads++
			cfg := config.Default()
			cfg.LLM.DefaultChainID = "reloaded"
			return cfg, nil
		},
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	// A burst of events and a watcher error collapse into one load.
	watcher.fire(nil)
	watcher.fire(errors.New("inotify overflow"))
	watcher.fire(nil)

	waitFor(t, func() bool { return settings.Load().LLM.DefaultChainID == "reloaded" })
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
	mu.Unlock()

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
	watcher.mu.Lock()
	defer watcher.mu.Unlock()
	if !watcher.stopped {
		t.Error("watcher was not stopped")
	}
}

func TestConfigReloadService_WatchError(t *testing.T) {
	watchErr := errors.New("no such file")
	svc := NewConfigReloadService("missing.yaml", recommend.NewSettingsStore(nil), ConfigReloadOptions{
		Watch: func(string, func(error)) (func() error, error) { return nil, watchErr },
	}, zerolog.Nop())

	if err := svc.Serve(context.Background()); !errors.Is(err, watchErr) {
		t.Errorf("Serve = %v, want wrapped watch error", err)
	}
}
