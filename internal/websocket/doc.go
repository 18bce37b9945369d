// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

/*
Package websocket streams published views to local observers.

The sync Manager publishes a fresh View after every applied step. The Hub
implements the Manager's ViewPublisher: it remembers the latest message of
each type and fans every broadcast out to connected clients, so an external
UI can render without polling the HTTP API.

Components:

  - Hub: client registry and broadcast loop, run under the supervisor
  - Client: one connection with a read pump (pings) and a write pump
  - Message: the {"type", "data"} frame

Ordering and backpressure:

Clients are served in connection order. BroadcastJSON never blocks the
Manager; a full broadcast queue drops the message, and a client whose own
buffer is full is disconnected. Every newly registered client first receives
the latest message of each type, so a dropped or reconnecting observer
always converges on the current view.

Usage:

	hub := websocket.NewHub()
	manager.SetPublisher(hub)
	go hub.RunWithContext(ctx)

	upgrader := websocket.NewUpgrader(cfg.Server.CORSOrigins)
	r.Get("/api/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(hub, upgrader, w, r)
	})
*/
package websocket
