// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

/*
Package backend is the REST collaborator of the sync core.

It covers authentication (/auth), the direct-message directory and history
(/messages), user search (/users/search) and group CRUD and history
(/groups). Every request carries the bearer token set with SetToken, passes
through a token-bucket limiter and is recorded in the backend request
metrics. BreakerClient wraps a Client with a circuit breaker so an unhealthy
backend fails fast instead of stalling history fetches.
*/
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/chatty-sync/internal/metrics"
	"github.com/tomtom215/chatty-sync/internal/models"
)

// maxErrorBodySize bounds how much of an error response is read.
const maxErrorBodySize = 64 * 1024

// ErrMissingToken is returned by authenticated calls made before SetToken.
var ErrMissingToken = errors.New("backend: no bearer token")

// API is the full set of backend operations.
type API interface {
	Login(ctx context.Context, username, password string) (string, error)
	Me(ctx context.Context) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SearchUsers(ctx context.Context, keyword string) ([]models.User, error)
	DirectHistory(ctx context.Context, peerID string) ([]models.DirectMessage, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	GroupInfo(ctx context.Context, groupID string) (models.Group, error)
	GroupHistory(ctx context.Context, groupID string) ([]models.GroupMessage, error)
	GroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	CreateGroup(ctx context.Context, req models.NewGroupRequest) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
	AddMembers(ctx context.Context, groupID string, memberIDs []string) error
	RemoveMember(ctx context.Context, groupID, memberID string) error
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// StatusError is a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s: HTTP %d", e.Op, e.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client talks to the chat backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.RWMutex
	token string
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// SetToken sets the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// requestConfig describes one call.
type requestConfig struct {
	op     string
	method string
	path   string
	query  url.Values
	body   interface{}
	noAuth bool
}

// do executes a request and decodes a JSON response into result when non-nil.
func (c *Client) do(ctx context.Context, cfg requestConfig, result interface{}) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		metrics.RecordBackendRequest(cfg.op, status, time.Since(start), err)
	}()

	token := c.Token()
	if !cfg.noAuth && token == "" {
		return ErrMissingToken
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("backend %s: rate limit wait: %w", cfg.op, err)
	}

	var body io.Reader = http.NoBody
	if cfg.body != nil {
		b, err := json.Marshal(cfg.body)
		if err != nil {
			return fmt.Errorf("backend %s: encode request: %w", cfg.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.method, c.baseURL+cfg.path, body)
	if err != nil {
		return fmt.Errorf("backend %s: create request: %w", cfg.op, err)
	}
	if len(cfg.query) > 0 {
		req.URL.RawQuery = cfg.query.Encode()
	}
	req.Header.Set("Accept", "application/json")
	if cfg.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !cfg.noAuth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", cfg.op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: cfg.op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("backend %s: decode response: %w", cfg.op, err)
	}
	return nil
}

// errorMessage extracts {"message": "..."} from an error body, falling back
// to the raw (bounded) text.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

// Login exchanges credentials for a token. The token is not stored.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, requestConfig{
		op:     "login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"username": username, "password": password},
		noAuth: true,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("backend login: response carried no token")
	}
	return out.Token, nil
}

// Me resolves the user behind the current token.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	if err := c.do(ctx, requestConfig{op: "me", method: http.MethodGet, path: "/auth/me"}, &out); err != nil {
		return models.User{}, err
	}
	return out.User, nil
}

// ListUsers returns the direct-message directory.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	if err := c.do(ctx, requestConfig{op: "list_users", method: http.MethodGet, path: "/messages/users"}, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// SearchUsers searches users by keyword.
func (c *Client) SearchUsers(ctx context.Context, keyword string) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	err := c.do(ctx, requestConfig{
		op:     "search_users",
		method: http.MethodGet,
		path:   "/users/search",
		query:  url.Values{"keyword": []string{keyword}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Users, nil
}

// DirectHistory returns the conversation with peerID, oldest first.
func (c *Client) DirectHistory(ctx context.Context, peerID string) ([]models.DirectMessage, error) {
	var out struct {
		Messages []models.DirectMessage `json:"messages"`
	}
	err := c.do(ctx, requestConfig{
		op:     "direct_history",
		method: http.MethodGet,
		path:   "/messages/" + url.PathEscape(peerID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// ListGroups returns the groups the user belongs to.
func (c *Client) ListGroups(ctx context.Context) ([]models.Group, error) {
	var out struct {
		Groups []models.Group `json:"groups"`
	}
	if err := c.do(ctx, requestConfig{op: "list_groups", method: http.MethodGet, path: "/groups/getGroups"}, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// GroupInfo returns one group.
func (c *Client) GroupInfo(ctx context.Context, groupID string) (models.Group, error) {
	var out struct {
		Group models.Group `json:"group"`
	}
	err := c.do(ctx, requestConfig{
		op:     "group_info",
		method: http.MethodGet,
		path:   "/groups/" + url.PathEscape(groupID),
	}, &out)
	if err != nil {
		return models.Group{}, err
	}
	return out.Group, nil
}

// GroupHistory returns the messages of a group, oldest first.
func (c *Client) GroupHistory(ctx context.Context, groupID string) ([]models.GroupMessage, error) {
	var out struct {
		Messages []models.GroupMessage `json:"messages"`
	}
	err := c.do(ctx, requestConfig{
		op:     "group_history",
		method: http.MethodGet,
		path:   "/groups/" + url.PathEscape(groupID) + "/messages",
	}, &out)
	if err != nil {
		return nil, err
	}
	for i := range out.Messages {
		if out.Messages[i].GroupID == "" {
			out.Messages[i].GroupID = groupID
		}
	}
	return out.Messages, nil
}

// GroupMembers returns the membership of a group.
func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	var out struct {
		Members []models.GroupMember `json:"members"`
	}
	err := c.do(ctx, requestConfig{
		op:     "group_members",
		method: http.MethodGet,
		path:   "/groups/" + url.PathEscape(groupID) + "/getMembers",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Members, nil
}

// CreateGroup creates a group owned by the current user.
func (c *Client) CreateGroup(ctx context.Context, req models.NewGroupRequest) (models.Group, error) {
	var out struct {
		Group models.Group `json:"group"`
	}
	err := c.do(ctx, requestConfig{
		op:     "create_group",
		method: http.MethodPost,
		path:   "/groups/create",
		body:   req,
	}, &out)
	if err != nil {
		return models.Group{}, err
	}
	return out.Group, nil
}

// DeleteGroup deletes a group.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, requestConfig{
		op:     "delete_group",
		method: http.MethodDelete,
		path:   "/groups/delete/" + url.PathEscape(groupID),
	}, nil)
}

// AddMembers adds users to a group.
func (c *Client) AddMembers(ctx context.Context, groupID string, memberIDs []string) error {
	return c.do(ctx, requestConfig{
		op:     "add_members",
		method: http.MethodPost,
		path:   "/groups/" + url.PathEscape(groupID) + "/addMembers",
		body:   map[string][]string{"memberIds": memberIDs},
	}, nil)
}

// RemoveMember removes one user from a group.
func (c *Client) RemoveMember(ctx context.Context, groupID, memberID string) error {
	return c.do(ctx, requestConfig{
		op:     "remove_member",
		method: http.MethodDelete,
		path:   "/groups/" + url.PathEscape(groupID) + "/deleteMembers/" + url.PathEscape(memberID),
	}, nil)
}
