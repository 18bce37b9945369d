// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/chatty-sync/internal/auth"
	"github.com/tomtom215/chatty-sync/internal/models"
)

type fakeConnector struct {
	mu          sync.Mutex
	connectErr  error
	connected   []auth.Identity
	disconnects int
	done        chan struct{}
	connectedCh chan struct{}
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		done:        make(chan struct{}),
		connectedCh: make(chan struct{}, 4),
	}
}

func (f *fakeConnector) Connect(ctx context.Context, id auth.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = append(f.connected, id)
	f.connectedCh <- struct{}{}
	return nil
}

func (f *fakeConnector) Done() <-chan struct{} { return f.done }

func (f *fakeConnector) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeConnector) identities() []auth.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auth.Identity(nil), f.connected...)
}

type fakeProvider struct {
	id    auth.Identity
	err   error
	calls int
}

func (p *fakeProvider) Identity(ctx context.Context) (auth.Identity, error) {
	p.calls++
	return p.id, p.err
}

type recordingTokens struct {
	mu     sync.Mutex
	tokens []string
}

func (r *recordingTokens) SetToken(token string) {
	r.mu.Lock()
	r.tokens = append(r.tokens, token)
	r.mu.Unlock()
}

var (
	alice     = auth.Identity{User: models.User{ID: "u1", Username: "alice"}, Token: "t-initial"}
	refreshed = auth.Identity{User: models.User{ID: "u1", Username: "alice"}, Token: "t-fresh"}
)

func TestSessionService_IdentityResolution(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := alice
	expired.ExpiresAt = now.Add(-time.Minute)

	tests := []struct {
		name          string
		initial       *auth.Identity
		provider      *fakeProvider
		wantToken     string
		wantProviders int
	}{
		{
			name:          "initial identity skips provider",
			initial:       &alice,
			provider:      &fakeProvider{id: refreshed},
			wantToken:     "t-initial",
			wantProviders: 0,
		},
		{
			name:          "expired initial identity is resolved again",
			initial:       &expired,
			provider:      &fakeProvider{id: refreshed},
			wantToken:     "t-fresh",
			wantProviders: 1,
		},
		{
			name:          "no initial identity",
			provider:      &fakeProvider{id: refreshed},
			wantToken:     "t-fresh",
			wantProviders: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := newFakeConnector()
			tokens := &recordingTokens{}
			svc := NewSessionService(conn, tt.provider, SessionOptions{
				Initial: tt.initial,
				Tokens:  tokens,
				Now:     func() time.Time { return now },
			})

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- svc.Serve(ctx) }()

			<-conn.connectedCh
			cancel()
			if err := <-done; !errors.Is(err, context.Canceled) {
				t.Fatalf("Serve() = %v, want context.Canceled", err)
			}

			ids := conn.identities()
			if len(ids) != 1 || ids[0].Token != tt.wantToken {
				t.Fatalf("connected with %+v, want token %q", ids, tt.wantToken)
			}
			if len(tokens.tokens) != 1 || tokens.tokens[0] != tt.wantToken {
				t.Errorf("tokens = %v, want [%s]", tokens.tokens, tt.wantToken)
			}
			if tt.provider.calls != tt.wantProviders {
				t.Errorf("provider calls = %d, want %d", tt.provider.calls, tt.wantProviders)
			}
			if conn.disconnects != 1 {
				t.Errorf("disconnects = %d, want 1", conn.disconnects)
			}
		})
	}
}

func TestSessionService_Failures(t *testing.T) {
	t.Parallel()

	dialFailure := errors.New("dial refused")

	tests := []struct {
		name          string
		provider      *fakeProvider
		connectErr    error
		drop          bool
		reconnect     bool
		wantErr       error
		wantNoRestart bool
	}{
		{
			name:          "missing credentials never restart",
			provider:      &fakeProvider{err: auth.ErrNoCredentials},
			reconnect:     true,
			wantErr:       auth.ErrNoCredentials,
			wantNoRestart: true,
		},
		{
			name:          "expired token never restarts",
			provider:      &fakeProvider{err: auth.ErrTokenExpired},
			reconnect:     true,
			wantErr:       auth.ErrTokenExpired,
			wantNoRestart: true,
		},
		{
			name:       "connect failure with reconnect",
			provider:   &fakeProvider{id: alice},
			connectErr: dialFailure,
			reconnect:  true,
			wantErr:    dialFailure,
		},
		{
			name:          "connect failure without reconnect",
			provider:      &fakeProvider{id: alice},
			connectErr:    dialFailure,
			wantErr:       dialFailure,
			wantNoRestart: true,
		},
		{
			name:      "drop with reconnect",
			provider:  &fakeProvider{id: alice},
			drop:      true,
			reconnect: true,
			wantErr:   ErrSessionDropped,
		},
		{
			name:          "drop without reconnect",
			provider:      &fakeProvider{id: alice},
			drop:          true,
			wantErr:       ErrSessionDropped,
			wantNoRestart: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := newFakeConnector()
			conn.connectErr = tt.connectErr
			if tt.drop {
				close(conn.done)
			}
			svc := NewSessionService(conn, tt.provider, SessionOptions{Reconnect: tt.reconnect})

			err := svc.Serve(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Serve() = %v, want %v", err, tt.wantErr)
			}
			if got := errors.Is(err, suture.ErrDoNotRestart); got != tt.wantNoRestart {
				t.Errorf("ErrDoNotRestart = %v, want %v", got, tt.wantNoRestart)
			}
		})
	}
}

func TestSessionService_NilProvider(t *testing.T) {
	t.Parallel()

	svc := NewSessionService(newFakeConnector(), nil, SessionOptions{Reconnect: true})
	err := svc.Serve(context.Background())
	if !errors.Is(err, auth.ErrNoCredentials) || !errors.Is(err, suture.ErrDoNotRestart) {
		t.Fatalf("Serve() = %v, want no-credentials and do-not-restart", err)
	}
	if svc.String() != "push-session" {
		t.Errorf("String() = %q", svc.String())
	}
}
