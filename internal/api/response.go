// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/session"
	chatsync "github.com/tomtom215/chatty-sync/internal/sync"
	"github.com/tomtom215/chatty-sync/internal/validation"
)

// Error codes for API responses
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeNotConnected       = "NOT_CONNECTED"
	ErrCodeFetch              = "FETCH_ERROR"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// respondJSON writes the envelope. API data is live state, so nothing is
// cacheable.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess wraps data in a success envelope stamped with viewVersion.
func respondSuccess(w http.ResponseWriter, status int, data interface{}, viewVersion uint64) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			ViewVersion: viewVersion,
		},
	})
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	respondAPIError(w, status, &models.APIError{Code: code, Message: message}, err)
}

func respondAPIError(w http.ResponseWriter, status int, apiErr *models.APIError, err error) {
	if err != nil {
		logging.Warn().Str("code", apiErr.Code).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Data:     nil,
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    apiErr,
	})
}

// respondFailure maps an error from the core to a status and code.
func respondFailure(w http.ResponseWriter, err error) {
	var verr *validation.RequestValidationError
	var ferr *chatsync.FetchError

	switch {
	case errors.As(err, &verr):
		respondAPIError(w, http.StatusBadRequest, toModelError(verr), nil)
	case errors.Is(err, chatsync.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
	case errors.Is(err, chatsync.ErrUnknownConversation):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
	case errors.Is(err, chatsync.ErrNoActiveConversation):
		respondError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	case errors.Is(err, session.ErrNotConnected):
		respondError(w, http.StatusServiceUnavailable, ErrCodeNotConnected, "Chat session is not connected", err)
	case errors.As(err, &ferr):
		respondError(w, http.StatusBadGateway, ErrCodeFetch, ferr.Error(), err)
	case errors.Is(err, chatsync.ErrStopped):
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Sync core is not running", err)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "Request timed out", err)
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error", err)
	}
}

func toModelError(verr *validation.RequestValidationError) *models.APIError {
	apiErr := verr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// sanitizeLogValue strips line breaks so request data cannot forge log lines.
func sanitizeLogValue(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
