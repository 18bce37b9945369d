// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package models holds the data shapes shared across chatty-sync: users,
// messages, groups, conversation keys and the read-only view snapshots
// handed to the presentation layer.
package models

import (
	"bytes"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// User is a chat account as returned by the directory and auth endpoints.
type User struct {
	ID         string `json:"_id"`
	Username   string `json:"username,omitempty"`
	FullName   string `json:"fullName,omitempty"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// DisplayName returns the best human label for the user.
func (u User) DisplayName() string {
	switch {
	case strings.TrimSpace(u.FullName) != "":
		return u.FullName
	case strings.TrimSpace(u.Username) != "":
		return u.Username
	default:
		return "Unknown"
	}
}

// SenderRef is a user reference that arrives either as a bare id string or
// as a populated user object, depending on the endpoint.
type SenderRef struct {
	User
}

// Ref builds a SenderRef that only carries an id.
func Ref(id string) SenderRef {
	return SenderRef{User: User{ID: id}}
}

type senderRefWire struct {
	ID         string `json:"_id"`
	AltID      string `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	ProfilePic string `json:"profilePic"`
	Avatar     string `json:"avatar"`
}

// UnmarshalJSON accepts "id", {"_id": ...} and null.
func (s *SenderRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = SenderRef{}
		return nil
	}

	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*s = Ref(id)
		return nil
	}

	var w senderRefWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := w.ID
	if id == "" {
		id = w.AltID
	}
	pic := w.ProfilePic
	if pic == "" {
		pic = w.Avatar
	}
	*s = SenderRef{User: User{
		ID:         id,
		Username:   w.Username,
		FullName:   w.FullName,
		Email:      w.Email,
		ProfilePic: pic,
	}}
	return nil
}

// ParseTimestamp parses the backend's ISO timestamps. Unparseable or empty
// input yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
