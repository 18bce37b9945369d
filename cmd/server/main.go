// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package main runs a chatty-sync client: one signed-in user, one push
// session to the chat backend, and the local API a UI renders from.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config.yaml, CHATTY_* environment)
//  2. Logging (zerolog)
//  3. Backend client behind a circuit breaker
//  4. Identity from a static token or a username/password login
//  5. Push session, sync Manager, view hub
//  6. Local API server (when server.enabled)
//  7. Supervisor tree; the push session connects as its first service
//
// SIGINT and SIGTERM cancel the tree. When CONFIG_PATH is set the file is
// watched and logging.level changes apply without a restart.
//
// Example:
//
//	export CHATTY_BACKEND_URL=https://chat.example.com/api/v1
//	export CHATTY_SESSION_URL=wss://chat.example.com/ws
//	export CHATTY_USERNAME=alice
//	export CHATTY_PASSWORD=secret
//	./chatty-sync
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/chatty-sync/internal/config"
	"github.com/tomtom215/chatty-sync/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: cfg.Logging.Timestamp,
	})

	logging.Info().
		Str("backend", cfg.Backend.BaseURL).
		Str("session", cfg.Session.URL).
		Bool("api_enabled", cfg.Server.Enabled).
		Bool("reconnect", cfg.Session.Reconnect).
		Msg("Starting chatty-sync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		stop()
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}

	tree, err := a.tree(logging.NewSlogLogger())
	if err != nil {
		stop()
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	watchLogLevel()

	if a.server != nil {
		logging.Info().Str("addr", a.server.Addr).Msg("Local API enabled")
	}

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	a.manager.Detach()

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	logging.Info().Msg("Stopped")
}

// watchLogLevel applies logging.level from the config file on change.
func watchLogLevel() {
	path := os.Getenv(config.ConfigPathEnvVar)
	if path == "" {
		return
	}
	err := config.WatchConfigFile(path, func() {
		cfg, err := config.Load()
		if err != nil {
			logging.Warn().Err(err).Msg("Ignoring invalid configuration change")
			return
		}
		logging.SetLevelString(cfg.Logging.Level)
		logging.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch disabled")
	}
}
