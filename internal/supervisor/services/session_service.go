// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/chatty-sync/internal/auth"
	"github.com/tomtom215/chatty-sync/internal/logging"
)

// ErrSessionDropped is returned when the push connection ends while the
// service is running. The supervisor restarts the service after its backoff.
var ErrSessionDropped = errors.New("push session dropped")

// Connector is the push session lifecycle. Satisfied by *session.Session.
type Connector interface {
	Connect(ctx context.Context, id auth.Identity) error
	Done() <-chan struct{}
	Disconnect()
}

// TokenSink receives the token of every resolved identity. Satisfied by
// *backend.BreakerClient.
type TokenSink interface {
	SetToken(token string)
}

// SessionOptions configures a SessionService.
type SessionOptions struct {
	// Initial is used for the first connect instead of asking the provider,
	// as long as it has not expired.
	Initial *auth.Identity

	// Reconnect lets the supervisor restart a dropped or failed session.
	// Without it the first drop ends the service for good.
	Reconnect bool

	// Tokens, when set, is updated before every connect.
	Tokens TokenSink

	Now func() time.Time
}

// SessionService keeps the push session connected for the lifetime of its
// supervisor. The session itself never reconnects; a restart of this
// service does.
type SessionService struct {
	conn     Connector
	provider auth.CredentialProvider
	opts     SessionOptions
	initial  *auth.Identity
}

// NewSessionService creates the service.
func NewSessionService(conn Connector, provider auth.CredentialProvider, opts SessionOptions) *SessionService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionService{conn: conn, provider: provider, opts: opts, initial: opts.Initial}
}

// Serve implements suture.Service.
func (s *SessionService) Serve(ctx context.Context) error {
	id, err := s.identity(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNoCredentials) || errors.Is(err, auth.ErrTokenExpired) {
			return fmt.Errorf("%w: %w", suture.ErrDoNotRestart, err)
		}
		return s.failure(fmt.Errorf("resolve identity: %w", err))
	}
	if s.opts.Tokens != nil {
		s.opts.Tokens.SetToken(id.Token)
	}

	if err := s.conn.Connect(ctx, id); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.failure(err)
	}

	select {
	case <-ctx.Done():
		s.conn.Disconnect()
		return ctx.Err()
	case <-s.conn.Done():
		return s.failure(ErrSessionDropped)
	}
}

func (s *SessionService) identity(ctx context.Context) (auth.Identity, error) {
	if s.initial != nil {
		id := *s.initial
		s.initial = nil
		if !id.Expired(s.opts.Now()) {
			return id, nil
		}
		logging.Info().Str("user_id", id.UserID()).Msg("Initial credentials expired, resolving again")
	}
	if s.provider == nil {
		return auth.Identity{}, auth.ErrNoCredentials
	}
	return s.provider.Identity(ctx)
}

func (s *SessionService) failure(err error) error {
	if s.opts.Reconnect {
		logging.Warn().Err(err).Msg("Push session ended, supervisor will reconnect")
		return err
	}
	logging.Warn().Err(err).Msg("Push session ended, reconnect disabled")
	return fmt.Errorf("%w: %w", suture.ErrDoNotRestart, err)
}

// String implements fmt.Stringer for supervisor logs.
func (s *SessionService) String() string {
	return "push-session"
}
