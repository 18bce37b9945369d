// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package sync

import (
	"errors"
	"fmt"

	"github.com/tomtom215/chatty-sync/internal/models"
)

var (
	// ErrEmptyMessage is returned when a send carries neither text nor a file.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoActiveConversation is returned by commands that need a selection.
	ErrNoActiveConversation = errors.New("no active conversation")

	// ErrUnknownConversation is returned for keys missing from the roster.
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrStopped is returned once the apply loop has exited.
	ErrStopped = errors.New("sync manager is not running")
)

// FetchError reports a failed request to the chat backend.
type FetchError struct {
	Op  string
	Key models.ConversationKey
	Err error
}

func (e *FetchError) Error() string {
	if e.Key.IsZero() {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
