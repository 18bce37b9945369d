// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

/*
Package api is the local presentation API of chatty-sync.

An external UI reads view snapshots and issues commands over HTTP, and
subscribes to /api/v1/ws for a push stream of new views. Every command is
applied on the sync Manager's loop; the handler waits for the result.

Routes:

	GET    /api/v1/health/live
	GET    /api/v1/health/ready                    ready while the session is connected
	GET    /api/v1/view
	GET    /api/v1/conversations?kind=&online=&q=
	POST   /api/v1/conversations/close
	POST   /api/v1/conversations/{kind}/{id}/open
	GET    /api/v1/conversations/{kind}/{id}/messages
	POST   /api/v1/conversations/{kind}/{id}/messages  {content, replyTo?, fileUrl?}
	POST   /api/v1/conversations/{kind}/{id}/input     {text}
	POST   /api/v1/search                              {scope, text}
	POST   /api/v1/groups                              {name, description?, members}
	DELETE /api/v1/groups/{id}
	POST   /api/v1/directory/refresh
	GET    /api/v1/ws
	GET    /metrics

Responses use a single envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "...", "view_version": 12}}
	{"status": "error", "data": null, "metadata": {...}, "error": {"code": "NOT_FOUND", "message": "..."}}

Middleware: chi RequestID (copied into the logging context), RealIP,
Recoverer, go-chi/cors, go-chi/httprate per client IP, gzip for JSON
bodies, and Prometheus request metrics labelled by route pattern.
*/
package api
