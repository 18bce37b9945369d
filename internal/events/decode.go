// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package events

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/validation"
)

// Wire names of inbound events.
const (
	WireOnlineList          = "noti-onlineList-toMe"
	WireOnline              = "noti-online"
	WireOffline             = "noti-offline"
	WireTypingStart         = "typing-start"
	WireTypingStop          = "typing-stop"
	WireGroupTypingStart    = "group-typing-start"
	WireGroupTypingStop     = "group-typing-stop"
	WireReceiveMessage      = "receive-message"
	WireReceiveGroupMessage = "receive-group-message"
	WireSeenMessage         = "seen-message"
	WireUserSeenMessage     = "user-seen-message"
	WireGroupCreated        = "group-created"
	WireGroupDeleted        = "group-deleted"
	WireReloadGroups        = "reload-groups"
)

// SyntheticIDPrefix marks ids minted for pushed messages that arrived without one.
const SyntheticIDPrefix = "push-"

// ErrUnknownEvent is wrapped by MalformedEventError for unrecognised event names.
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is one frame on the push connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MalformedEventError reports a frame that could not be turned into an Event.
type MalformedEventError struct {
	Event  string
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	name := e.Event
	if name == "" {
		name = "<none>"
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed event %s: %s: %v", name, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed event %s: %s", name, e.Reason)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

type peerPayload struct {
	ID string `json:"id" validate:"required"`
}

type typingPayload struct {
	SenderID   string `json:"senderId" validate:"required"`
	SenderName string `json:"senderName"`
	GroupID    string `json:"groupId"`
}

type seenPayload struct {
	ViewerID string `json:"viewerId" validate:"required"`
}

type groupSeenPayload struct {
	MessageID string   `json:"messageId" validate:"required"`
	UserID    string   `json:"userId" validate:"required"`
	SeenBy    []string `json:"seenBy"`
	GroupID   string   `json:"groupId"`
}

type groupChangePayload struct {
	GroupID string   `json:"groupId" validate:"required"`
	Members []string `json:"members"`
}

type rosterObject struct {
	Users []models.SenderRef `json:"users"`
}

type decoder func(data []byte) (Event, error)

var decoders = map[string]decoder{
	WireOnlineList:          decodeRoster,
	WireOnline:              decodePeer(true),
	WireOffline:             decodePeer(false),
	WireTypingStart:         decodeTyping(models.KindDirect, true),
	WireTypingStop:          decodeTyping(models.KindDirect, false),
	WireGroupTypingStart:    decodeTyping(models.KindGroup, true),
	WireGroupTypingStop:     decodeTyping(models.KindGroup, false),
	WireReceiveMessage:      decodeDirectMessage,
	WireReceiveGroupMessage: decodeGroupMessage,
	WireSeenMessage:         decodeSeen,
	WireUserSeenMessage:     decodeGroupSeen,
	WireGroupCreated:        decodeGroupChange(true),
	WireGroupDeleted:        decodeGroupChange(false),
	WireReloadGroups: func([]byte) (Event, error) {
		return GroupRosterChanged{}, nil
	},
}

// Decode parses a raw frame into a typed Event.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &MalformedEventError{Reason: "invalid envelope", Err: err}
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope parses an already split envelope.
func DecodeEnvelope(env Envelope) (Event, error) {
	dec, ok := decoders[env.Event]
	if !ok {
		return nil, &MalformedEventError{Event: env.Event, Reason: "unsupported", Err: ErrUnknownEvent}
	}
	ev, err := dec(bytes.TrimSpace(env.Data))
	if err != nil {
		var malformed *MalformedEventError
		if errors.As(err, &malformed) {
			malformed.Event = env.Event
			return nil, malformed
		}
		return nil, &MalformedEventError{Event: env.Event, Reason: "invalid payload", Err: err}
	}
	return ev, nil
}

// unmarshalValid decodes data into v and runs struct validation.
func unmarshalValid(data []byte, v interface{}) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &MalformedEventError{Reason: "missing payload"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		return &MalformedEventError{Reason: "validation failed", Err: verr}
	}
	return nil
}

func decodeRoster(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, &MalformedEventError{Reason: "missing payload"}
	}

	var refs []models.SenderRef
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &refs); err != nil {
			return nil, err
		}
	case '{':
		var obj rosterObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		refs = obj.Users
	default:
		return nil, &MalformedEventError{Reason: "roster must be a list"}
	}

	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return RosterSnapshot{UserIDs: ids}, nil
}

func decodePeer(online bool) decoder {
	return func(data []byte) (Event, error) {
		var p peerPayload
		if err := unmarshalValid(data, &p); err != nil {
			return nil, err
		}
		if online {
			return PeerOnline{UserID: p.ID}, nil
		}
		return PeerOffline{UserID: p.ID}, nil
	}
}

func decodeTyping(scope models.ConversationKind, start bool) decoder {
	return func(data []byte) (Event, error) {
		var p typingPayload
		if err := unmarshalValid(data, &p); err != nil {
			return nil, err
		}
		if start {
			return TypingStarted{Scope: scope, SenderID: p.SenderID, SenderName: p.SenderName, GroupID: p.GroupID}, nil
		}
		return TypingStopped{Scope: scope, SenderID: p.SenderID, GroupID: p.GroupID}, nil
	}
}

func decodeDirectMessage(data []byte) (Event, error) {
	if len(data) == 0 || data[0] != '{' {
		return nil, &MalformedEventError{Reason: "message must be an object"}
	}
	var m models.DirectMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.SenderID == "" {
		return nil, &MalformedEventError{Reason: "message has no sender"}
	}
	if m.ID == "" {
		m.ID = SyntheticIDPrefix + uuid.NewString()
	}
	return DirectMessageReceived{Message: m}, nil
}

func decodeGroupMessage(data []byte) (Event, error) {
	if len(data) == 0 || data[0] != '{' {
		return nil, &MalformedEventError{Reason: "message must be an object"}
	}
	var m models.GroupMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.GroupID == "" || m.Sender.ID == "" {
		return nil, &MalformedEventError{Reason: "group message needs groupId and senderId"}
	}
	if m.ID == "" {
		m.ID = SyntheticIDPrefix + uuid.NewString()
	}
	return GroupMessageReceived{Message: m}, nil
}

func decodeSeen(data []byte) (Event, error) {
	var p seenPayload
	if err := unmarshalValid(data, &p); err != nil {
		return nil, err
	}
	return DirectMessageSeen{ViewerID: p.ViewerID}, nil
}

func decodeGroupSeen(data []byte) (Event, error) {
	var p groupSeenPayload
	if err := unmarshalValid(data, &p); err != nil {
		return nil, err
	}
	return GroupMessageSeen{MessageID: p.MessageID, UserID: p.UserID, SeenBy: p.SeenBy, GroupID: p.GroupID}, nil
}

func decodeGroupChange(created bool) decoder {
	return func(data []byte) (Event, error) {
		var p groupChangePayload
		if err := unmarshalValid(data, &p); err != nil {
			return nil, err
		}
		if created {
			return GroupCreated{GroupID: p.GroupID, Members: p.Members}, nil
		}
		return GroupDeleted{GroupID: p.GroupID, Members: p.Members}, nil
	}
}
