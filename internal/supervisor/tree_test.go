// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*stubService)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// waitStarted polls until svc has been started at least n times.
func waitStarted(svc *stubService, n int32) bool {
	for i := 0; i < 25; i++ {
		if svc.starts.Load() >= n {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return svc.starts.Load() >= n
}

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Run("creates hierarchical supervisor tree", func(t *testing.T) {
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{
			FailureThreshold: 5,
			FailureBackoff:   time.Second,
			ShutdownTimeout:  10 * time.Second,
		})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}
		if tree.Root() == nil {
			t.Error("root supervisor should not be nil")
		}
	})

	t.Run("applies default values for zero config", func(t *testing.T) {
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}
		if got, want := tree.Config(), DefaultTreeConfig(); got != want {
			t.Errorf("Config() = %+v, want %+v", got, want)
		}
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})
		if tree.Config().FailureBackoff != time.Second {
			t.Errorf("FailureBackoff = %v, want 1s", tree.Config().FailureBackoff)
		}
		if tree.Config().FailureThreshold != 5 {
			t.Errorf("FailureThreshold = %v, want 5", tree.Config().FailureThreshold)
		}
	})
}

func TestSupervisorTreeLayers(t *testing.T) {
	tests := []struct {
		name string
		add  func(*SupervisorTree, suture.Service)
	}{
		{"store", func(tr *SupervisorTree, s suture.Service) { tr.AddStoreService(s) }},
		{"background", func(tr *SupervisorTree, s suture.Service) { tr.AddBackgroundService(s) }},
		{"api", func(tr *SupervisorTree, s suture.Service) { tr.AddAPIService(s) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
			svc := newStubService(tt.name + "-service")
			tt.add(tree, svc)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			errCh := tree.ServeBackground(ctx)

			if !waitStarted(svc, 1) {
				t.Errorf("%s service was not started", tt.name)
			}
			cancel()
			<-errCh
			if svc.stops.Load() < 1 {
				t.Errorf("%s service was not stopped", tt.name)
			}
		})
	}
}

func TestSupervisorTreeLifecycle(t *testing.T) {
	t.Run("tree starts and stops gracefully", func(t *testing.T) {
		tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
			FailureBackoff:  100 * time.Millisecond,
			ShutdownTimeout: time.Second,
		})
		tree.AddStoreService(newStubService("store-maintenance"))
		tree.AddBackgroundService(newStubService("cache-warmer"))
		tree.AddAPIService(newStubService("ops-http"))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- tree.Serve(ctx) }()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("tree did not shut down in time")
		}

		report, err := tree.UnstoppedServiceReport()
		if err != nil {
			t.Fatalf("UnstoppedServiceReport: %v", err)
		}
		if len(report) != 0 {
			t.Errorf("unstopped services: %v", report)
		}
	})

	t.Run("empty tree stops on deadline", func(t *testing.T) {
		tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		select {
		case err := <-tree.ServeBackground(ctx):
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("did not receive from error channel")
		}
	})
}

func TestSupervisorTreeFailureIsolation(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newStubService("flaky-warmer")
	failing.flaky = 2
	stable := newStubService("ops-http")

	tree.AddBackgroundService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	if !waitStarted(failing, 3) {
		t.Errorf("failing service starts = %d, want >= 3", failing.starts.Load())
	}
	if stable.starts.Load() != 1 {
		t.Errorf("stable service starts = %d, want 1", stable.starts.Load())
	}
	cancel()
	<-errCh
}

func TestSupervisorTreeRemoveBackgroundService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := newStubService("cache-warmer")
	token := tree.AddBackgroundService(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	if !waitStarted(svc, 1) {
		t.Fatal("service was not started")
	}
	if err := tree.RemoveBackgroundService(token); err != nil {
		t.Fatalf("RemoveBackgroundService: %v", err)
	}
	for i := 0; i < 25 && svc.stops.Load() == 0; i++ {
		time.Sleep(20 * time.Millisecond)
	}
	if svc.stops.Load() != 1 {
		t.Errorf("stops = %d, want 1", svc.stops.Load())
	}
	cancel()
	<-errCh
}

func TestStubService(t *testing.T) {
	t.Run("fails N times then runs", func(t *testing.T) {
		svc := newStubService("retry")
		svc.flaky = 2

		for i := 0; i < 2; i++ {
			if err := svc.Serve(context.Background()); !errors.Is(err, errFlaky) {
				t.Fatalf("call %d = %v, want errFlaky", i+1, err)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("third call = %v, want deadline exceeded", err)
		}
		if got := svc.starts.Load(); got != 3 {
			t.Errorf("starts = %d, want 3", got)
		}
	})

	t.Run("returns exit error", func(t *testing.T) {
		svc := newStubService("one-shot")
		svc.exitErr = suture.ErrDoNotRestart
		if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve = %v, want ErrDoNotRestart", err)
		}
		if svc.String() != "one-shot" {
			t.Errorf("String = %q", svc.String())
		}
	})
}
