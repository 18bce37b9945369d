// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package models

import (
	"fmt"
	"strings"
	"time"
)

// ConversationKind distinguishes direct and group conversations.
type ConversationKind string

// Conversation kinds.
const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Valid reports whether k is a known kind.
func (k ConversationKind) Valid() bool {
	return k == KindDirect || k == KindGroup
}

// ConversationKey identifies a conversation. For direct conversations ID is
// the peer's user id, for groups it is the group id.
type ConversationKey struct {
	Kind ConversationKind `json:"kind"`
	ID   string           `json:"id"`
}

// DirectKey builds the key of the conversation with peer.
func DirectKey(peer string) ConversationKey {
	return ConversationKey{Kind: KindDirect, ID: peer}
}

// GroupKey builds the key of a group conversation.
func GroupKey(groupID string) ConversationKey {
	return ConversationKey{Kind: KindGroup, ID: groupID}
}

func (k ConversationKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// IsZero reports whether k is unset.
func (k ConversationKey) IsZero() bool {
	return k.Kind == "" && k.ID == ""
}

// ParseConversationKey reverses ConversationKey.String.
func ParseConversationKey(s string) (ConversationKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	k := ConversationKey{Kind: ConversationKind(kind), ID: id}
	if !ok || id == "" || !k.Kind.Valid() {
		return ConversationKey{}, fmt.Errorf("invalid conversation key %q", s)
	}
	return k, nil
}

// Conversation is one sidebar entry.
type Conversation struct {
	Key         ConversationKey `json:"key"`
	Name        string          `json:"name"`
	Avatar      string          `json:"avatar,omitempty"`
	Members     []string        `json:"members,omitempty"`
	OwnerID     string          `json:"ownerId,omitempty"`
	UnreadCount int             `json:"unreadCount"`
	LastMessage *LastMessage    `json:"lastMessage,omitempty"`
	IsTyping    bool            `json:"isTyping"`
	TypingLabel string          `json:"typingLabel,omitempty"`
	Online      bool            `json:"online"`
	Active      bool            `json:"active"`

	// Preview is the derived sidebar subtitle.
	Preview string `json:"preview"`
}

const previewRunes = 25

// BuildPreview derives the sidebar subtitle for c.
func BuildPreview(c *Conversation) string {
	if c.IsTyping {
		if c.Key.Kind == KindGroup && c.TypingLabel != "" {
			return c.TypingLabel + " is typing..."
		}
		return "typing..."
	}
	if c.LastMessage == nil {
		return ""
	}

	content := c.LastMessage.Content
	if r := []rune(content); len(r) > previewRunes {
		content = string(r[:previewRunes]) + "..."
	}
	switch {
	case c.LastMessage.IsMine:
		return "You: " + content
	case c.Key.Kind == KindGroup && c.LastMessage.SenderName != "":
		return c.LastMessage.SenderName + ": " + content
	default:
		return content
	}
}

// MessageView is a rendered message of the active conversation.
type MessageView struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Content    string    `json:"content"`
	FileURL    string    `json:"fileUrl,omitempty"`
	ReplyTo    string    `json:"replyTo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	IsMine     bool      `json:"isMine"`
	Local      bool      `json:"local,omitempty"`

	// Status is the delivery label: "sent", "seen" or "seen by a, b".
	Status string `json:"status,omitempty"`
}

// SearchState is the debounced search as seen by the presentation layer.
type SearchState struct {
	Scope   string   `json:"scope"`
	Text    string   `json:"text"`
	Pending bool     `json:"pending"`
	Seq     uint64   `json:"seq"`
	Users   []User   `json:"users,omitempty"`
	Groups  []string `json:"groups,omitempty"`
}

// Notice is a user-visible message about a failed operation.
type Notice struct {
	Op      string    `json:"op"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// View is an immutable snapshot of everything the presentation layer renders.
type View struct {
	Version       uint64           `json:"version"`
	GeneratedAt   time.Time        `json:"generatedAt"`
	Self          User             `json:"self"`
	Session       string           `json:"session"`
	OnlineCount   int              `json:"onlineCount"`
	Conversations []Conversation   `json:"conversations"`
	Active        *ConversationKey `json:"active,omitempty"`
	Messages      []MessageView    `json:"messages"`
	TypingLabel   string           `json:"typingLabel,omitempty"`
	Search        SearchState      `json:"search"`
	Notice        *Notice          `json:"notice,omitempty"`
}
