// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into a chi router.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, middleware *Middleware) *Router {
	if middleware == nil {
		middleware = NewMiddleware(DefaultMiddlewareConfig())
	}
	return &Router{handler: handler, middleware: middleware}
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, ErrCodeValidation, "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics)

		r.Route("/health", func(r chi.Router) {
			r.Use(APISecurityHeaders())
			r.Get("/live", router.handler.HealthLive)
			r.Get("/ready", router.handler.HealthReady)
		})

		// The view stream is long-lived and sets its own headers.
		r.Get("/ws", router.handler.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimit())
			r.Use(APISecurityHeaders())
			r.Use(chimiddleware.Compress(5, "application/json"))

			r.Get("/view", router.handler.View)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", router.handler.Conversations)
				r.Post("/close", router.handler.CloseConversation)
				r.Route("/{kind}/{id}", func(r chi.Router) {
					r.Post("/open", router.handler.OpenConversation)
					r.Get("/messages", router.handler.Messages)
					r.Post("/messages", router.handler.SendMessage)
					r.Post("/input", router.handler.Input)
				})
			})

			r.Post("/search", router.handler.Search)
			r.Post("/groups", router.handler.CreateGroup)
			r.Delete("/groups/{id}", router.handler.DeleteGroup)
			r.Post("/directory/refresh", router.handler.RefreshDirectory)
		})
	})

	return r
}
