// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package events defines the push protocol spoken with the chat backend:
// the JSON envelope, the typed inbound events the session raises, and the
// outbound commands the client emits.
//
// Every frame is an envelope:
//
//	{"event": "receive-message", "data": {"_id": "...", "senderId": "...", "content": "hi"}}
//
// Inbound frames are decoded with Decode into one of the Event types below.
// Frames that fail to decode or validate yield a *MalformedEventError and are
// dropped by the session without interrupting the stream.
package events

import (
	"github.com/tomtom215/chatty-sync/internal/models"
)

// Kind identifies a typed inbound event.
type Kind string

// Inbound event kinds.
const (
	KindRosterSnapshot        Kind = "roster_snapshot"
	KindPeerOnline            Kind = "peer_online"
	KindPeerOffline           Kind = "peer_offline"
	KindTypingStarted         Kind = "typing_started"
	KindTypingStopped         Kind = "typing_stopped"
	KindDirectMessageReceived Kind = "direct_message_received"
	KindGroupMessageReceived  Kind = "group_message_received"
	KindDirectMessageSeen     Kind = "direct_message_seen"
	KindGroupMessageSeen      Kind = "group_message_seen"
	KindGroupCreated          Kind = "group_created"
	KindGroupDeleted          Kind = "group_deleted"
	KindGroupRosterChanged    Kind = "group_roster_changed"
)

// AllKinds lists every inbound kind, in a stable order.
var AllKinds = []Kind{
	KindRosterSnapshot,
	KindPeerOnline,
	KindPeerOffline,
	KindTypingStarted,
	KindTypingStopped,
	KindDirectMessageReceived,
	KindGroupMessageReceived,
	KindDirectMessageSeen,
	KindGroupMessageSeen,
	KindGroupCreated,
	KindGroupDeleted,
	KindGroupRosterChanged,
}

// Event is a decoded inbound push event.
type Event interface {
	Kind() Kind
}

// RosterSnapshot is the full list of online users, sent once after connect.
type RosterSnapshot struct {
	UserIDs []string
}

// PeerOnline reports a single user coming online.
type PeerOnline struct {
	UserID string
}

// PeerOffline reports a single user going offline.
type PeerOffline struct {
	UserID string
}

// TypingStarted reports a remote user typing. For group typing the backend
// does not always name the group; GroupID is then empty and the receiver
// attributes the signal to its active group.
type TypingStarted struct {
	Scope      models.ConversationKind
	SenderID   string
	SenderName string
	GroupID    string
}

// TypingStopped reports a remote user no longer typing.
type TypingStopped struct {
	Scope    models.ConversationKind
	SenderID string
	GroupID  string
}

// DirectMessageReceived carries a message addressed to this user.
type DirectMessageReceived struct {
	Message models.DirectMessage
}

// GroupMessageReceived carries a message broadcast to a group room. The
// sender receives its own broadcast too.
type GroupMessageReceived struct {
	Message models.GroupMessage
}

// DirectMessageSeen reports that ViewerID opened the conversation with us.
type DirectMessageSeen struct {
	ViewerID string
}

// GroupMessageSeen reports that UserID has seen MessageID.
type GroupMessageSeen struct {
	MessageID string
	UserID    string
	SeenBy    []string
	GroupID   string
}

// GroupCreated reports a new group this user belongs to.
type GroupCreated struct {
	GroupID string
	Members []string
}

// GroupDeleted reports a group that no longer exists.
type GroupDeleted struct {
	GroupID string
	Members []string
}

// GroupRosterChanged asks the client to reload its group list.
type GroupRosterChanged struct{}

// Kind implements Event.
func (RosterSnapshot) Kind() Kind { return KindRosterSnapshot }

// Kind implements Event.
func (PeerOnline) Kind() Kind { return KindPeerOnline }

// Kind implements Event.
func (PeerOffline) Kind() Kind { return KindPeerOffline }

// Kind implements Event.
func (TypingStarted) Kind() Kind { return KindTypingStarted }

// Kind implements Event.
func (TypingStopped) Kind() Kind { return KindTypingStopped }

// Kind implements Event.
func (DirectMessageReceived) Kind() Kind { return KindDirectMessageReceived }

// Kind implements Event.
func (GroupMessageReceived) Kind() Kind { return KindGroupMessageReceived }

// Kind implements Event.
func (DirectMessageSeen) Kind() Kind { return KindDirectMessageSeen }

// Kind implements Event.
func (GroupMessageSeen) Kind() Kind { return KindGroupMessageSeen }

// Kind implements Event.
func (GroupCreated) Kind() Kind { return KindGroupCreated }

// Kind implements Event.
func (GroupDeleted) Kind() Kind { return KindGroupDeleted }

// Kind implements Event.
func (GroupRosterChanged) Kind() Kind { return KindGroupRosterChanged }
