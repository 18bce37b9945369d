// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

/*
Package services adapts chatty-sync components to suture.Service.

SessionService owns the push connection. Each Serve resolves an identity
(the one resolved at startup is used first while it is unexpired), hands the
token to the backend client, connects and waits for either cancellation or a
dropped link. Return values steer the supervisor:

	ctx.Err()                      shutdown requested
	ErrSessionDropped / dial error restart after backoff (Reconnect on)
	wraps suture.ErrDoNotRestart   stay down (no credentials, expired token,
	                               or Reconnect off)

HTTPServerService turns ListenAndServe/Shutdown into Serve with a bounded
graceful shutdown.

The sync Manager and the websocket Hub implement suture.Service themselves
and are added to the tree directly.
*/
package services
