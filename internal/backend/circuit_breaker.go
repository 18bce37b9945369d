// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package backend

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/metrics"
	"github.com/tomtom215/chatty-sync/internal/models"
)

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings returns the production defaults: at least 10
// requests in a one minute window with 60% failing opens the circuit for 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:         "chat-backend",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerClient wraps a Client with a circuit breaker.
//
// Client errors (4xx) count as successes for the breaker: they say nothing
// about backend health.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

var _ API = (*BreakerClient)(nil)

// NewBreakerClient wraps client.
func NewBreakerClient(client *Client, s BreakerSettings) *BreakerClient {
	if s.Name == "" {
		s.Name = DefaultBreakerSettings().Name
	}
	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRatio {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode < 500 {
				return true
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerClient{client: client, cb: cb, name: s.Name}
}

// Client returns the wrapped client.
func (b *BreakerClient) Client() *Client {
	return b.client
}

// SetToken sets the bearer token on the wrapped client.
func (b *BreakerClient) SetToken(token string) {
	b.client.SetToken(token)
}

// State returns the breaker state as a string.
func (b *BreakerClient) State() string {
	return stateToString(b.cb.State())
}

func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Str("breaker", b.name).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// guarded runs fn through the breaker and restores its static type.
func guarded[T any](b *BreakerClient, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}

func (b *BreakerClient) guardErr(fn func() error) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Login is not guarded: a bad password must not count toward tripping.
func (b *BreakerClient) Login(ctx context.Context, username, password string) (string, error) {
	return b.client.Login(ctx, username, password)
}

// Me resolves the current user with breaker protection.
func (b *BreakerClient) Me(ctx context.Context) (models.User, error) {
	return guarded(b, func() (models.User, error) { return b.client.Me(ctx) })
}

// ListUsers lists the directory with breaker protection.
func (b *BreakerClient) ListUsers(ctx context.Context) ([]models.User, error) {
	return guarded(b, func() ([]models.User, error) { return b.client.ListUsers(ctx) })
}

// SearchUsers searches users with breaker protection.
func (b *BreakerClient) SearchUsers(ctx context.Context, keyword string) ([]models.User, error) {
	return guarded(b, func() ([]models.User, error) { return b.client.SearchUsers(ctx, keyword) })
}

// DirectHistory fetches direct history with breaker protection.
func (b *BreakerClient) DirectHistory(ctx context.Context, peerID string) ([]models.DirectMessage, error) {
	return guarded(b, func() ([]models.DirectMessage, error) { return b.client.DirectHistory(ctx, peerID) })
}

// ListGroups lists groups with breaker protection.
func (b *BreakerClient) ListGroups(ctx context.Context) ([]models.Group, error) {
	return guarded(b, func() ([]models.Group, error) { return b.client.ListGroups(ctx) })
}

// GroupInfo fetches a group with breaker protection.
func (b *BreakerClient) GroupInfo(ctx context.Context, groupID string) (models.Group, error) {
	return guarded(b, func() (models.Group, error) { return b.client.GroupInfo(ctx, groupID) })
}

// GroupHistory fetches group history with breaker protection.
func (b *BreakerClient) GroupHistory(ctx context.Context, groupID string) ([]models.GroupMessage, error) {
	return guarded(b, func() ([]models.GroupMessage, error) { return b.client.GroupHistory(ctx, groupID) })
}

// GroupMembers fetches group membership with breaker protection.
func (b *BreakerClient) GroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	return guarded(b, func() ([]models.GroupMember, error) { return b.client.GroupMembers(ctx, groupID) })
}

// CreateGroup creates a group with breaker protection.
func (b *BreakerClient) CreateGroup(ctx context.Context, req models.NewGroupRequest) (models.Group, error) {
	return guarded(b, func() (models.Group, error) { return b.client.CreateGroup(ctx, req) })
}

// DeleteGroup deletes a group with breaker protection.
func (b *BreakerClient) DeleteGroup(ctx context.Context, groupID string) error {
	return b.guardErr(func() error { return b.client.DeleteGroup(ctx, groupID) })
}

// AddMembers adds members with breaker protection.
func (b *BreakerClient) AddMembers(ctx context.Context, groupID string, memberIDs []string) error {
	return b.guardErr(func() error { return b.client.AddMembers(ctx, groupID, memberIDs) })
}

// RemoveMember removes a member with breaker protection.
func (b *BreakerClient) RemoveMember(ctx context.Context, groupID, memberID string) error {
	return b.guardErr(func() error { return b.client.RemoveMember(ctx, groupID, memberID) })
}
