// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package auth supplies the identity the push session connects with.
//
// The backend signs its tokens with a secret the client never sees, so
// tokens are inspected, not verified: InspectToken reads the subject,
// username and expiry so an expired credential is rejected before a dial
// that would fail anyway. The backend remains the authority.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/models"
)

var (
	// ErrNoCredentials means neither a token nor a username/password pair is configured.
	ErrNoCredentials = errors.New("auth: no credentials configured")

	// ErrTokenExpired means the token's exp claim is in the past.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Identity is the authenticated user plus the bearer token.
type Identity struct {
	User      models.User
	Token     string
	ExpiresAt time.Time
}

// UserID returns the id of the identity's user.
func (i Identity) UserID() string {
	return i.User.ID
}

// Expired reports whether the token carries an expiry before now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Claims are the claims issued by the chat backend.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenInfo is what can be learned from a token without its signing key.
type TokenInfo struct {
	Subject   string
	Username  string
	ExpiresAt time.Time
}

// InspectToken parses token without verifying the signature.
func InspectToken(token string) (TokenInfo, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return TokenInfo{}, ErrNoCredentials
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("auth: parse token: %w", err)
	}

	info := TokenInfo{Subject: claims.Subject, Username: claims.Username}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	if info.Subject == "" {
		return TokenInfo{}, fmt.Errorf("auth: token has no subject")
	}
	return info, nil
}

// CredentialProvider resolves the identity used to connect.
type CredentialProvider interface {
	Identity(ctx context.Context) (Identity, error)
}

// Backend is the part of the REST collaborator used for authentication.
type Backend interface {
	SetToken(token string)
	Login(ctx context.Context, username, password string) (string, error)
	Me(ctx context.Context) (models.User, error)
}

// StaticProvider uses a pre-issued token.
type StaticProvider struct {
	token   string
	backend Backend
	now     func() time.Time
}

// NewStaticProvider creates a provider for token. When backend is non-nil the
// user record is resolved through /auth/me; otherwise it is built from the
// token claims.
func NewStaticProvider(token string, backend Backend) *StaticProvider {
	return &StaticProvider{token: token, backend: backend, now: time.Now}
}

// Identity implements CredentialProvider.
func (p *StaticProvider) Identity(ctx context.Context) (Identity, error) {
	return resolve(ctx, p.token, p.backend, p.now())
}

// LoginProvider exchanges a username and password for a token.
type LoginProvider struct {
	username string
	password string
	backend  Backend
	now      func() time.Time
}

// NewLoginProvider creates a LoginProvider.
func NewLoginProvider(username, password string, backend Backend) *LoginProvider {
	return &LoginProvider{username: username, password: password, backend: backend, now: time.Now}
}

// Identity implements CredentialProvider. Every call performs a fresh login.
func (p *LoginProvider) Identity(ctx context.Context) (Identity, error) {
	if p.username == "" || p.password == "" || p.backend == nil {
		return Identity{}, ErrNoCredentials
	}
	token, err := p.backend.Login(ctx, p.username, p.password)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: login: %w", err)
	}
	logging.Info().Str("username", p.username).Msg("Logged in to chat backend")
	return resolve(ctx, token, p.backend, p.now())
}

func resolve(ctx context.Context, token string, backend Backend, now time.Time) (Identity, error) {
	info, err := InspectToken(token)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{
		User:      models.User{ID: info.Subject, Username: info.Username},
		Token:     strings.TrimSpace(strings.TrimPrefix(token, "Bearer ")),
		ExpiresAt: info.ExpiresAt,
	}
	if id.Expired(now) {
		return Identity{}, ErrTokenExpired
	}
	if backend == nil {
		return id, nil
	}

	backend.SetToken(id.Token)
	user, err := backend.Me(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: resolve user: %w", err)
	}
	if user.ID == "" {
		user.ID = info.Subject
	}
	if user.ID != info.Subject {
		logging.Warn().Str("token_sub", info.Subject).Str("user_id", user.ID).Msg("Token subject differs from /auth/me user")
	}
	id.User = user
	return id, nil
}
