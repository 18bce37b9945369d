// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	gws "github.com/gorilla/websocket"

	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/roster"
	"github.com/tomtom215/chatty-sync/internal/search"
	chatsync "github.com/tomtom215/chatty-sync/internal/sync"
	ws "github.com/tomtom215/chatty-sync/internal/websocket"
)

// DefaultCommandTimeout bounds how long a request waits for the core.
const DefaultCommandTimeout = 20 * time.Second

// Core is the chat state the API reads and commands. Satisfied by
// *sync.Manager.
type Core interface {
	View() *models.View
	OpenConversation(ctx context.Context, key models.ConversationKey) error
	CloseConversation(ctx context.Context) error
	SendMessage(ctx context.Context, out chatsync.Outgoing) error
	InputChanged(ctx context.Context, key models.ConversationKey, text string) error
	SearchChanged(ctx context.Context, scope search.Scope, text string) error
	RefreshDirectory(ctx context.Context) error
	CreateGroup(ctx context.Context, req models.NewGroupRequest) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
	Conversations(ctx context.Context, f roster.Filter) ([]models.Conversation, error)
	Messages(ctx context.Context, key models.ConversationKey) ([]models.MessageView, error)
}

// Readiness reports whether the push session is live. Satisfied by
// *session.Session.
type Readiness interface {
	Connected() bool
}

// Handler serves the local presentation API.
type Handler struct {
	core     Core
	ready    Readiness
	hub      *ws.Hub
	upgrader gws.Upgrader
	timeout  time.Duration
	started  time.Time
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Hub serves /ws; nil disables the view stream.
	Hub *ws.Hub

	// Origins accepted by the view stream.
	Origins []string

	CommandTimeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(core Core, ready Readiness, opts HandlerOptions) *Handler {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	return &Handler{
		core:     core,
		ready:    ready,
		hub:      opts.Hub,
		upgrader: ws.NewUpgrader(opts.Origins),
		timeout:  opts.CommandTimeout,
		started:  time.Now(),
	}
}

func (h *Handler) commandContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *Handler) viewVersion() uint64 {
	if v := h.core.View(); v != nil {
		return v.Version
	}
	return 0
}

func (h *Handler) ok(w http.ResponseWriter, status int, data interface{}) {
	respondSuccess(w, status, data, h.viewVersion())
}

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.ok(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// HealthReady reports ready only while the push session is connected.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	session := "unknown"
	if v := h.core.View(); v != nil {
		session = v.Session
	}
	if h.ready == nil || !h.ready.Connected() {
		respondError(w, http.StatusServiceUnavailable, ErrCodeNotConnected, "Chat session is "+session, nil)
		return
	}
	h.ok(w, http.StatusOK, map[string]string{"status": "ready", "session": session})
}

// View returns the latest published snapshot.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	h.ok(w, http.StatusOK, h.core.View())
}

// Conversations lists the roster, optionally filtered by kind, presence and
// name.
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	q, err := parseConversationsQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	if verr := validateQuery(q); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr, nil)
		return
	}

	ctx, cancel := h.commandContext(r)
	defer cancel()
	list, err := h.core.Conversations(ctx, q.Filter())
	if err != nil {
		respondFailure(w, err)
		return
	}
	if list == nil {
		list = []models.Conversation{}
	}
	h.ok(w, http.StatusOK, list)
}

// OpenConversation selects a conversation and loads its history.
func (h *Handler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	key, err := conversationKey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	ctx, cancel := h.commandContext(r)
	defer cancel()
	if err := h.core.OpenConversation(ctx, key); err != nil {
		respondFailure(w, err)
		return
	}
	h.ok(w, http.StatusOK, h.core.View())
}

// CloseConversation deselects the active conversation.
func (h *Handler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.commandContext(r)
	defer cancel()
	if err := h.core.CloseConversation(ctx); err != nil {
		respondFailure(w, err)
		return
	}
	h.ok(w, http.StatusOK, h.core.View())
}

// Messages renders the cached messages of a conversation.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	key, err := conversationKey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	ctx, cancel := h.commandContext(r)
	defer cancel()
	msgs, err := h.core.Messages(ctx, key)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.MessageView{}
	}
	h.ok(w, http.StatusOK, msgs)
}

// SendMessage sends to a conversation.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	key, err := conversationKey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	var req SendRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := h.commandContext(r)
	defer cancel()
	err = h.core.SendMessage(ctx, chatsync.Outgoing{
		Key:     key,
		Content: req.Content,
		ReplyTo: req.ReplyTo,
		FileURL: req.FileURL,
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	h.ok(w, http.StatusAccepted, map[string]string{"conversation": key.String()})
}

// Input reports compose-box changes for typing signals.
func (h *Handler) Input(w http.ResponseWriter, r *http.Request) {
	key, err := conversationKey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	var req InputRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := h.commandContext(r)
	defer cancel()
	if err := h.core.InputChanged(ctx, key, req.Text); err != nil {
		respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search feeds the search box. Results arrive in a later view.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := h.commandContext(r)
	defer cancel()
	if err := h.core.SearchChanged(ctx, search.Scope(req.Scope), req.Text); err != nil {
		respondFailure(w, err)
		return
	}
	h.ok(w, http.StatusAccepted, h.core.View().Search)
}

// CreateGroup creates a group with the signed-in user as admin.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req models.NewGroupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := h.commandContext(r)
	defer cancel()
	g, err := h.core.CreateGroup(ctx, req)
	if err != nil {
		respondFailure(w, err)
		return
	}
	h.ok(w, http.StatusCreated, g)
}

// DeleteGroup deletes a group.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := h.commandContext(r)
	defer cancel()
	if err := h.core.DeleteGroup(ctx, id); err != nil {
		respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshDirectory reloads users and groups from the backend.
func (h *Handler) RefreshDirectory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.commandContext(r)
	defer cancel()
	if err := h.core.RefreshDirectory(ctx); err != nil {
		respondFailure(w, err)
		return
	}
	h.ok(w, http.StatusOK, h.core.View())
}

// WebSocket upgrades to the view stream.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "View stream unavailable", nil)
		return
	}
	ws.ServeWS(h.hub, h.upgrader, w, r)
}
