// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/chatty-sync/internal/auth"
	"github.com/tomtom215/chatty-sync/internal/config"
)

func TestNewCredentialProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.AuthConfig
		want    string
		wantErr error
	}{
		{name: "token", cfg: config.AuthConfig{Token: "t"}, want: "static"},
		{name: "token wins over login", cfg: config.AuthConfig{Token: "t", Username: "a", Password: "b"}, want: "static"},
		{name: "login", cfg: config.AuthConfig{Username: "a", Password: "b"}, want: "login"},
		{name: "username only", cfg: config.AuthConfig{Username: "a"}, wantErr: auth.ErrNoCredentials},
		{name: "nothing", wantErr: auth.ErrNoCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := newCredentialProvider(tt.cfg, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch p.(type) {
			case *auth.StaticProvider:
				if tt.want != "static" {
					t.Errorf("got static provider, want %s", tt.want)
				}
			case *auth.LoginProvider:
				if tt.want != "login" {
					t.Errorf("got login provider, want %s", tt.want)
				}
			default:
				t.Errorf("unexpected provider %T", p)
			}
		})
	}
}

func TestBreakerSettings(t *testing.T) {
	t.Parallel()

	s := breakerSettings(config.BackendConfig{})
	if s.MinRequests != 10 || s.FailureRatio != 0.6 || s.Timeout != 30*time.Second {
		t.Errorf("defaults not kept: %+v", s)
	}

	s = breakerSettings(config.BackendConfig{
		BreakerMinRequests:  3,
		BreakerFailureRatio: 0.9,
		BreakerTimeout:      time.Second,
	})
	if s.MinRequests != 3 || s.FailureRatio != 0.9 || s.Timeout != time.Second {
		t.Errorf("overrides not applied: %+v", s)
	}
}

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	claims := auth.Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-side-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestNewApp(t *testing.T) {
	t.Parallel()

	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"user":{"_id":"u1","username":"alice","fullName":"Alice"}}`)
	}))
	t.Cleanup(backendSrv.Close)

	tests := []struct {
		name      string
		apiOn     bool
		wantHub   bool
		wantHTTP  bool
		noCreds   bool
		wantError error
	}{
		{name: "api enabled", apiOn: true, wantHub: true, wantHTTP: true},
		{name: "api disabled", apiOn: false},
		{name: "no credentials", noCreds: true, wantError: auth.ErrNoCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			cfg.Backend.BaseURL = backendSrv.URL
			cfg.Server.Enabled = tt.apiOn
			cfg.Server.Port = 18787
			if !tt.noCreds {
				cfg.Auth.Token = signedToken(t, "u1")
			}

			a, err := newApp(context.Background(), cfg)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Fatalf("err = %v, want %v", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("newApp: %v", err)
			}
			defer a.manager.Detach()

			if a.identity.UserID() != "u1" || a.manager.Self().FullName != "Alice" {
				t.Errorf("identity = %+v, self = %+v", a.identity, a.manager.Self())
			}
			if (a.hub != nil) != tt.wantHub {
				t.Errorf("hub present = %v, want %v", a.hub != nil, tt.wantHub)
			}
			if (a.server != nil) != tt.wantHTTP {
				t.Errorf("server present = %v, want %v", a.server != nil, tt.wantHTTP)
			}
			if a.server != nil && a.server.Addr != "127.0.0.1:18787" {
				t.Errorf("server addr = %q", a.server.Addr)
			}

			tree, err := a.tree(slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil || tree.Root() == nil {
				t.Fatalf("tree: %v", err)
			}
		})
	}
}
