// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tomtom215/chatty-sync/internal/api"
	"github.com/tomtom215/chatty-sync/internal/auth"
	"github.com/tomtom215/chatty-sync/internal/backend"
	"github.com/tomtom215/chatty-sync/internal/config"
	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/session"
	"github.com/tomtom215/chatty-sync/internal/supervisor"
	"github.com/tomtom215/chatty-sync/internal/supervisor/services"
	"github.com/tomtom215/chatty-sync/internal/sync"
	ws "github.com/tomtom215/chatty-sync/internal/websocket"
)

// app holds the wired components of one signed-in client.
type app struct {
	cfg      *config.Config
	provider auth.CredentialProvider
	identity auth.Identity
	backend  *backend.BreakerClient
	session  *session.Session
	manager  *sync.Manager
	hub      *ws.Hub
	server   *http.Server
}

// newCredentialProvider picks the credential source. A token wins over a
// username/password pair.
func newCredentialProvider(cfg config.AuthConfig, b auth.Backend) (auth.CredentialProvider, error) {
	switch {
	case cfg.Token != "":
		return auth.NewStaticProvider(cfg.Token, b), nil
	case cfg.Username != "" && cfg.Password != "":
		return auth.NewLoginProvider(cfg.Username, cfg.Password, b), nil
	default:
		return nil, auth.ErrNoCredentials
	}
}

func breakerSettings(cfg config.BackendConfig) backend.BreakerSettings {
	s := backend.DefaultBreakerSettings()
	if cfg.BreakerMinRequests > 0 {
		s.MinRequests = cfg.BreakerMinRequests
	}
	if cfg.BreakerFailureRatio > 0 {
		s.FailureRatio = cfg.BreakerFailureRatio
	}
	if cfg.BreakerTimeout > 0 {
		s.Timeout = cfg.BreakerTimeout
	}
	return s
}

// newApp resolves the signed-in user and wires every component. Nothing is
// started; see app.tree.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client := backend.NewBreakerClient(backend.NewClient(backend.Config{
		BaseURL:           cfg.Backend.BaseURL,
		Timeout:           cfg.Backend.Timeout,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
	}), breakerSettings(cfg.Backend))

	provider, err := newCredentialProvider(cfg.Auth, client)
	if err != nil {
		return nil, err
	}

	resolveCtx, cancel := context.WithTimeout(ctx, cfg.Backend.Timeout+5*time.Second)
	defer cancel()
	identity, err := provider.Identity(resolveCtx)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	client.SetToken(identity.Token)

	logging.Info().
		Str("user_id", identity.UserID()).
		Str("username", identity.User.Username).
		Time("expires_at", identity.ExpiresAt).
		Msg("Signed in")

	sess := session.New(session.Options{
		URL:               cfg.Session.URL,
		HandshakeTimeout:  cfg.Session.HandshakeTimeout,
		PingInterval:      cfg.Session.PingInterval,
		ReadTimeout:       cfg.Session.ReadTimeout,
		WriteTimeout:      cfg.Session.WriteTimeout,
		SendBuffer:        cfg.Session.SendBuffer,
		EnableCompression: cfg.Session.EnableCompression,
	})

	manager := sync.NewManager(identity.User, client, sess, sync.Options{
		InboxSize:         cfg.Sync.InboxSize,
		FetchTimeout:      cfg.Sync.FetchTimeout,
		TypingIdle:        cfg.Typing.IdleTimeout,
		SearchDelay:       cfg.Search.Delay,
		PendingReceipts:   cfg.Sync.PendingReceipts,
		PendingReceiptTTL: cfg.Sync.PendingReceiptTTL,
	})

	a := &app{
		cfg:      cfg,
		provider: provider,
		identity: identity,
		backend:  client,
		session:  sess,
		manager:  manager,
	}

	if cfg.Server.Enabled {
		a.hub = ws.NewHub()
		manager.SetPublisher(a.hub)
		a.server = newHTTPServer(cfg.Server, manager, sess, a.hub)
	}

	manager.Attach()
	return a, nil
}

func newHTTPServer(cfg config.ServerConfig, core api.Core, ready api.Readiness, hub *ws.Hub) *http.Server {
	handler := api.NewHandler(core, ready, api.HandlerOptions{
		Hub:     hub,
		Origins: cfg.CORSOrigins,
	})

	mwCfg := api.DefaultMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.CORSOrigins
	mwCfg.RateLimitRequests = cfg.RateLimitRPM
	mwCfg.RateLimitWindow = time.Minute

	router := api.NewRouter(handler, api.NewMiddleware(mwCfg))

	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		// Upgraded view streams clear these deadlines and keep their own.
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}
}

// tree builds the supervisor tree for a.
func (a *app) tree(logger *slog.Logger) (*supervisor.SupervisorTree, error) {
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return nil, err
	}

	initial := a.identity
	tree.AddSessionService(services.NewSessionService(a.session, a.provider, services.SessionOptions{
		Initial:   &initial,
		Reconnect: a.cfg.Session.Reconnect,
		Tokens:    a.backend,
	}))

	tree.AddCoreService(a.manager)
	if a.hub != nil {
		tree.AddCoreService(a.hub)
	}
	if a.server != nil {
		tree.AddAPIService(services.NewHTTPServerService(a.server, a.cfg.Server.ShutdownTimeout))
	}
	return tree, nil
}
