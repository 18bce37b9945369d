// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// LocalIDPrefix marks ids minted on this client for optimistic echoes.
const LocalIDPrefix = "local-"

// DirectMessage is one entry in a one-to-one conversation.
type DirectMessage struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	SeenBy     []string  `json:"seenBy,omitempty"`

	// SeenByPeer is set when the peer acknowledged this message.
	SeenByPeer bool `json:"seenByPeer"`

	// Local is true for optimistic echoes.
	Local bool `json:"local,omitempty"`
}

type directMessageWire struct {
	ID         string    `json:"_id"`
	SenderID   SenderRef `json:"senderId"`
	ReceiverID SenderRef `json:"receiverId"`
	Content    string    `json:"content"`
	Image      string    `json:"image"`
	CreatedAt  string    `json:"createdAt"`
	SentAt     string    `json:"sentAt"`
	SeenBy     []string  `json:"seenBy"`
	SeenByPeer bool      `json:"seenByPeer"`
	Local      bool      `json:"local"`
}

// UnmarshalJSON accepts populated sender objects and the legacy sentAt field.
func (m *DirectMessage) UnmarshalJSON(data []byte) error {
	var w directMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts := w.CreatedAt
	if ts == "" {
		ts = w.SentAt
	}
	*m = DirectMessage{
		ID:         w.ID,
		SenderID:   w.SenderID.ID,
		ReceiverID: w.ReceiverID.ID,
		Content:    w.Content,
		Image:      w.Image,
		CreatedAt:  ParseTimestamp(ts),
		SeenBy:     w.SeenBy,
		SeenByPeer: w.SeenByPeer,
		Local:      w.Local,
	}
	return nil
}

// Peer returns the other participant relative to self.
func (m *DirectMessage) Peer(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// GroupMessage is one entry in a group conversation.
type GroupMessage struct {
	ID        string    `json:"_id"`
	GroupID   string    `json:"groupId"`
	Sender    SenderRef `json:"senderId"`
	Content   string    `json:"content"`
	FileURL   string    `json:"fileUrl,omitempty"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	SeenBy    []string  `json:"seenBy"`
	Local     bool      `json:"local,omitempty"`
}

type groupMessageWire struct {
	ID          string          `json:"_id"`
	GroupID     string          `json:"groupId"`
	Sender      SenderRef       `json:"senderId"`
	Content     string          `json:"content"`
	FileURL     string          `json:"fileUrl"`
	Attachments json.RawMessage `json:"attachments"`
	ReplyTo     SenderRef       `json:"replyTo"`
	CreatedAt   string          `json:"createdAt"`
	SeenBy      []string        `json:"seenBy"`
	Local       bool            `json:"local"`
}

// UnmarshalJSON accepts attachments in place of fileUrl and a populated replyTo.
func (m *GroupMessage) UnmarshalJSON(data []byte) error {
	var w groupMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	file := w.FileURL
	if file == "" && len(w.Attachments) > 0 && w.Attachments[0] == '"' {
		_ = json.Unmarshal(w.Attachments, &file)
	}
	*m = GroupMessage{
		ID:        w.ID,
		GroupID:   w.GroupID,
		Sender:    w.Sender,
		Content:   w.Content,
		FileURL:   file,
		ReplyTo:   w.ReplyTo.ID,
		CreatedAt: ParseTimestamp(w.CreatedAt),
		SeenBy:    w.SeenBy,
		Local:     w.Local,
	}
	return nil
}

// HasSeen reports whether userID is in SeenBy.
func (m *GroupMessage) HasSeen(userID string) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}

// LastMessage is the sidebar preview of a conversation.
type LastMessage struct {
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	SenderName string    `json:"senderName,omitempty"`
	IsMine     bool      `json:"isMine"`
}
