// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/chatty-sync/internal/models"
)

func signToken(t *testing.T, sub, username string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		Username:         username,
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
	}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret-not-known-to-client"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

type fakeBackend struct {
	token    string
	loginErr error
	meErr    error
	user     models.User
	issued   string
}

func (f *fakeBackend) SetToken(token string) { f.token = token }

func (f *fakeBackend) Login(_ context.Context, username, password string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.issued, nil
}

func (f *fakeBackend) Me(context.Context) (models.User, error) {
	if f.meErr != nil {
		return models.User{}, f.meErr
	}
	return f.user, nil
}

func TestInspectToken(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tests := []struct {
		name    string
		token   string
		wantSub string
		wantErr bool
	}{
		{name: "valid", token: signToken(t, "u1", "ann", exp), wantSub: "u1"},
		{name: "bearer prefix", token: "Bearer " + signToken(t, "u2", "bob", exp), wantSub: "u2"},
		{name: "empty", token: "  ", wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
		{name: "no subject", token: signToken(t, "", "x", exp), wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info, err := InspectToken(tt.token)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", info)
				}
				return
			}
			if err != nil {
				t.Fatalf("InspectToken: %v", err)
			}
			if info.Subject != tt.wantSub || !info.ExpiresAt.Equal(exp) {
				t.Errorf("info = %+v", info)
			}
		})
	}
}

func TestStaticProviderWithoutBackend(t *testing.T) {
	t.Parallel()

	token := signToken(t, "u1", "ann", time.Now().Add(time.Hour))
	id, err := NewStaticProvider(token, nil).Identity(context.Background())
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if id.UserID() != "u1" || id.User.Username != "ann" || id.Token != token {
		t.Errorf("identity = %+v", id)
	}
}

func TestStaticProviderRejectsExpired(t *testing.T) {
	t.Parallel()

	token := signToken(t, "u1", "ann", time.Now().Add(-time.Minute))
	_, err := NewStaticProvider(token, &fakeBackend{}).Identity(context.Background())
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v", err)
	}
}

func TestStaticProviderResolvesUser(t *testing.T) {
	t.Parallel()

	token := signToken(t, "u1", "ann", time.Time{})
	fb := &fakeBackend{user: models.User{ID: "u1", Username: "ann", FullName: "Ann A"}}
	id, err := NewStaticProvider(token, fb).Identity(context.Background())
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if fb.token != token {
		t.Error("token not handed to backend before /auth/me")
	}
	if id.User.FullName != "Ann A" || id.Expired(time.Now()) {
		t.Errorf("identity = %+v", id)
	}
}

func TestLoginProvider(t *testing.T) {
	t.Parallel()

	issued := signToken(t, "u9", "zed", time.Now().Add(time.Hour))
	tests := []struct {
		name     string
		username string
		backend  *fakeBackend
		wantErr  error
	}{
		{name: "ok", username: "zed", backend: &fakeBackend{issued: issued, user: models.User{ID: "u9"}}},
		{name: "no credentials", username: "", backend: &fakeBackend{}, wantErr: ErrNoCredentials},
		{name: "login rejected", username: "zed", backend: &fakeBackend{loginErr: errors.New("401")}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, err := NewLoginProvider(tt.username, "pw", tt.backend).Identity(context.Background())
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.backend.loginErr != nil:
				if err == nil {
					t.Error("expected login error")
				}
			default:
				if err != nil || id.UserID() != "u9" || id.Token != issued {
					t.Errorf("identity = %+v, err = %v", id, err)
				}
			}
		})
	}
}
