// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

/*
Package supervisor runs the long-lived parts of chatty-sync under a suture v4
supervisor tree.

	chatty-sync
	├── session-layer
	│   └── push-session      (services.SessionService)
	├── core-layer
	│   ├── sync-manager      (sync.Manager)
	│   └── websocket-hub     (websocket.Hub)
	└── api-layer
	    └── http-server       (services.HTTPServerService)

Layers restart independently. A dropped push session is reconnected by
restarting push-session; once failures pass FailureThreshold the layer waits
SessionBackoff between attempts. The apply loop keeps its state and sees the
drop as a connection-state event. A service that returns an
error wrapping suture.ErrDoNotRestart stays down, which is how missing
credentials and disabled reconnects end the session layer.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
	    return err
	}
	tree.AddSessionService(services.NewSessionService(sess, provider, opts))
	tree.AddCoreService(manager)
	tree.AddCoreService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

Supervisor events (start, failure, backoff, stop timeout) are logged through
sutureslog into the zerolog-backed slog handler from internal/logging.
*/
package supervisor
