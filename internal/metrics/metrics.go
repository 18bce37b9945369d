// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package metrics holds the Prometheus collectors for chatty-sync. They are
// registered with the default registry and exposed on /metrics by the local
// API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Push session
	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatty_session_state",
			Help: "Push session state (0=unconnected, 1=connecting, 2=connected)",
		},
	)

	SessionConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_session_connect_attempts_total",
			Help: "Total number of push session connect attempts",
		},
		[]string{"result"}, // success, failure
	)

	SessionDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_session_disconnects_total",
			Help: "Total number of push session disconnects",
		},
		[]string{"reason"}, // local, remote, error
	)

	PushEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_push_events_total",
			Help: "Total number of decoded push events by kind",
		},
		[]string{"kind"},
	)

	PushEventsMalformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_push_events_malformed_total",
			Help: "Total number of push frames dropped as malformed",
		},
		[]string{"event"},
	)

	CommandsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_commands_emitted_total",
			Help: "Total number of outbound commands written",
		},
		[]string{"event"},
	)

	CommandsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_commands_dropped_total",
			Help: "Total number of outbound commands rejected",
		},
		[]string{"event", "reason"}, // not_connected, queue_full
	)

	// Apply loop
	ApplyQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatty_apply_queue_depth",
			Help: "Number of pending steps in the apply loop inbox",
		},
	)

	ApplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatty_apply_duration_seconds",
			Help:    "Time spent applying one step in the apply loop",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
		[]string{"source"}, // event, command, timer, result
	)

	ViewVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatty_view_version",
			Help: "Version of the latest published view snapshot",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatty_online_users",
			Help: "Number of users currently online",
		},
	)

	UnreadConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatty_unread_conversations",
			Help: "Number of conversations with unread messages",
		},
	)

	// Fetches and search
	HistoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_history_fetches_total",
			Help: "Total number of history fetches",
		},
		[]string{"kind", "result"}, // direct|group, success|failure
	)

	SearchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_search_queries_total",
			Help: "Search queries by outcome",
		},
		[]string{"scope", "outcome"}, // issued, applied, discarded, failed, cleared
	)

	// Backend REST collaborator
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatty_backend_request_duration_seconds",
			Help:    "Duration of backend REST requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BackendRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatty_backend_request_errors_total",
			Help: "Total number of failed backend REST requests",
		},
		[]string{"operation", "status"},
	)

	// Circuit Breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Local API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of local API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of local API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// View stream WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of view stream WebSocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of view stream messages sent",
		},
	)

	WSSlowClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_clients_total",
			Help: "Clients dropped because their send buffer was full",
		},
	)
)

// RecordAPIRequest records one local API request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBackendRequest records one REST call to the chat backend. status is
// the HTTP status, or 0 when no response was received.
func RecordBackendRequest(operation string, status int, duration time.Duration, err error) {
	BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		label := "transport"
		if status > 0 {
			label = strconv.Itoa(status)
		}
		BackendRequestErrors.WithLabelValues(operation, label).Inc()
	}
}

// RecordHistoryFetch records a conversation history fetch.
func RecordHistoryFetch(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	HistoryFetches.WithLabelValues(kind, result).Inc()
}

// RecordSearch records a search outcome.
func RecordSearch(scope, outcome string) {
	SearchQueries.WithLabelValues(scope, outcome).Inc()
}

// RecordApply records the time spent applying one loop step.
func RecordApply(source string, start time.Time) {
	ApplyDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}
