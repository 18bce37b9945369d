// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/roster"
	"github.com/tomtom215/chatty-sync/internal/validation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 * 1024

// SendRequest is the body of POST .../messages.
type SendRequest struct {
	Content string `json:"content" validate:"max=5000"`
	ReplyTo string `json:"replyTo,omitempty"`
	FileURL string `json:"fileUrl,omitempty" validate:"omitempty,url"`
}

// InputRequest is the body of POST .../input.
type InputRequest struct {
	Text string `json:"text" validate:"max=5000"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Scope string `json:"scope" validate:"required,oneof=users groups"`
	Text  string `json:"text" validate:"max=200"`
}

// ConversationsQuery holds the query parameters of GET /conversations.
type ConversationsQuery struct {
	Kind   string `validate:"omitempty,oneof=direct group"`
	Online bool
	Query  string `validate:"max=200"`
}

// Filter converts q to a roster filter.
func (q ConversationsQuery) Filter() roster.Filter {
	return roster.Filter{
		Kind:       models.ConversationKind(q.Kind),
		OnlineOnly: q.Online,
		Query:      q.Query,
	}
}

var errEmptyBody = errors.New("request body is empty")

// decodeAndValidate reads a JSON body into dst and validates it.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errEmptyBody
		}
		respondError(w, http.StatusBadRequest, ErrCodeValidation, "Invalid request body", err)
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		respondAPIError(w, http.StatusBadRequest, toModelError(verr), nil)
		return false
	}
	return true
}

// conversationKey reads {kind} and {id} from the route.
func conversationKey(r *http.Request) (models.ConversationKey, error) {
	key := models.ConversationKey{
		Kind: models.ConversationKind(chi.URLParam(r, "kind")),
		ID:   chi.URLParam(r, "id"),
	}
	if !key.Kind.Valid() {
		return key, fmt.Errorf("conversation kind must be direct or group, got %q", key.Kind)
	}
	if key.ID == "" {
		return key, errors.New("conversation id is required")
	}
	return key, nil
}

func parseConversationsQuery(r *http.Request) (ConversationsQuery, error) {
	q := r.URL.Query()
	out := ConversationsQuery{Kind: q.Get("kind"), Query: q.Get("q")}
	if v := q.Get("online"); v != "" {
		online, err := strconv.ParseBool(v)
		if err != nil {
			return out, fmt.Errorf("online must be a boolean: %w", err)
		}
		out.Online = online
	}
	return out, nil
}

func validateQuery(q ConversationsQuery) *models.APIError {
	if verr := validation.ValidateStruct(&q); verr != nil {
		return toModelError(verr)
	}
	return nil
}
