// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// stubService fails a fixed number of times, then runs until canceled.
type stubService struct {
	name   string
	fails  int32
	final  error
	starts atomic.Int32
}

func (s *stubService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.fails {
		return fmt.Errorf("%s: simulated failure %d", s.name, n)
	}
	if s.final != nil {
		return s.final
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTreeConfigDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in          TreeConfig
		wantBackoff time.Duration
		wantSession time.Duration
	}{
		{
			name:        "zero config",
			wantBackoff: 15 * time.Second,
			wantSession: 15 * time.Second,
		},
		{
			name:        "session follows failure backoff",
			in:          TreeConfig{FailureBackoff: 2 * time.Second},
			wantBackoff: 2 * time.Second,
			wantSession: 2 * time.Second,
		},
		{
			name:        "explicit session backoff",
			in:          TreeConfig{FailureBackoff: 2 * time.Second, SessionBackoff: 500 * time.Millisecond},
			wantBackoff: 2 * time.Second,
			wantSession: 500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tree, err := NewSupervisorTree(quietLogger(), tt.in)
			if err != nil {
				t.Fatalf("NewSupervisorTree: %v", err)
			}
			if tree.Root() == nil {
				t.Fatal("root supervisor is nil")
			}
			if tree.config.FailureThreshold != 5 || tree.config.FailureDecay != 30 {
				t.Errorf("threshold/decay = %v/%v, want 5/30", tree.config.FailureThreshold, tree.config.FailureDecay)
			}
			if tree.config.ShutdownTimeout != 10*time.Second {
				t.Errorf("ShutdownTimeout = %v, want 10s", tree.config.ShutdownTimeout)
			}
			if tree.config.FailureBackoff != tt.wantBackoff {
				t.Errorf("FailureBackoff = %v, want %v", tree.config.FailureBackoff, tt.wantBackoff)
			}
			if tree.config.SessionBackoff != tt.wantSession {
				t.Errorf("SessionBackoff = %v, want %v", tree.config.SessionBackoff, tt.wantSession)
			}
		})
	}
}

func TestSupervisorTree_StartsEveryLayer(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	session := &stubService{name: "session"}
	core := &stubService{name: "core"}
	api := &stubService{name: "api"}
	tree.AddSessionService(session)
	tree.AddCoreService(core)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for session.starts.Load() == 0 || core.starts.Load() == 0 || api.starts.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("services were not started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not shut down")
	}

	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("UnstoppedServiceReport: %v", err)
	}
	if len(report) != 0 {
		t.Errorf("unstopped services: %v", report)
	}
}

func TestSupervisorTree_RestartsFailedSession(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		SessionBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	flaky := &stubService{name: "flaky-session", fails: 2}
	stable := &stubService{name: "manager"}
	tree.AddSessionService(flaky)
	tree.AddCoreService(stable)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = tree.Serve(ctx) }()

	for flaky.starts.Load() < 3 {
		if ctx.Err() != nil {
			t.Fatalf("flaky service started %d times, want at least 3", flaky.starts.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := stable.starts.Load(); got != 1 {
		t.Errorf("core service started %d times, want 1", got)
	}
}

func TestSupervisorTree_DoNotRestart(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	final := &stubService{
		name:  "no-credentials",
		final: fmt.Errorf("%w: no credentials", suture.ErrDoNotRestart),
	}
	tree.AddSessionService(final)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = tree.Serve(ctx)

	if got := final.starts.Load(); got != 1 {
		t.Errorf("started %d times, want 1", got)
	}
}
