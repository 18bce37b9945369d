// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package events

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/chatty-sync/internal/models"
)

// Wire names of outbound commands not shared with inbound events.
const (
	WireSendMessage      = "send-message"
	WireSendGroupMessage = "send-group-message"
	WireSeenGroupMessage = "seen-group-message"
	WireJoinGroup        = "join-group"
	WireLeaveGroup       = "leave-group"
)

// Command is an outbound frame.
type Command struct {
	Event string
	Data  interface{}
}

// Encode renders the command as an envelope.
func (c Command) Encode() ([]byte, error) {
	var raw json.RawMessage
	if c.Data != nil {
		b, err := json.Marshal(c.Data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: c.Event, Data: raw})
}

type receiverPayload struct {
	ReceiverID string `json:"receiverId"`
}

type groupPayload struct {
	GroupID string `json:"groupId"`
}

type senderPayload struct {
	SenderID string `json:"senderId"`
}

type sendPayload struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type sendGroupPayload struct {
	GroupID string `json:"groupId"`
	Content string `json:"content"`
	ReplyTo string `json:"replyTo,omitempty"`
	FileURL string `json:"fileUrl,omitempty"`
}

type seenGroupPayload struct {
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId"`
}

type groupChangeCommand struct {
	GroupID string   `json:"groupId"`
	Members []string `json:"members"`
}

// StartTyping announces local typing in the conversation.
func StartTyping(key models.ConversationKey) Command {
	if key.Kind == models.KindGroup {
		return Command{Event: WireGroupTypingStart, Data: groupPayload{GroupID: key.ID}}
	}
	return Command{Event: WireTypingStart, Data: receiverPayload{ReceiverID: key.ID}}
}

// StopTyping announces the end of local typing.
func StopTyping(key models.ConversationKey) Command {
	if key.Kind == models.KindGroup {
		return Command{Event: WireGroupTypingStop, Data: groupPayload{GroupID: key.ID}}
	}
	return Command{Event: WireTypingStop, Data: receiverPayload{ReceiverID: key.ID}}
}

// MarkDirectSeen tells peer that we have read their messages.
func MarkDirectSeen(peer string) Command {
	return Command{Event: WireSeenMessage, Data: senderPayload{SenderID: peer}}
}

// MarkGroupSeen acknowledges messageID in groupID.
func MarkGroupSeen(groupID, messageID string) Command {
	return Command{Event: WireSeenGroupMessage, Data: seenGroupPayload{MessageID: messageID, GroupID: groupID}}
}

// SendDirect sends a one-to-one message.
func SendDirect(receiverID, content string) Command {
	return Command{Event: WireSendMessage, Data: sendPayload{ReceiverID: receiverID, Content: content}}
}

// SendGroup sends a message to a group room.
func SendGroup(groupID, content, replyTo, fileURL string) Command {
	return Command{Event: WireSendGroupMessage, Data: sendGroupPayload{
		GroupID: groupID,
		Content: content,
		ReplyTo: replyTo,
		FileURL: fileURL,
	}}
}

// JoinGroup subscribes the connection to a group room.
func JoinGroup(groupID string) Command {
	return Command{Event: WireJoinGroup, Data: groupPayload{GroupID: groupID}}
}

// LeaveGroup unsubscribes the connection from a group room.
func LeaveGroup(groupID string) Command {
	return Command{Event: WireLeaveGroup, Data: groupPayload{GroupID: groupID}}
}

// AnnounceGroupCreated asks the backend to tell members to reload groups.
func AnnounceGroupCreated(groupID string, members []string) Command {
	return Command{Event: WireGroupCreated, Data: groupChangeCommand{GroupID: groupID, Members: members}}
}

// AnnounceGroupDeleted is AnnounceGroupCreated for deletions.
func AnnounceGroupDeleted(groupID string, members []string) Command {
	return Command{Event: WireGroupDeleted, Data: groupChangeCommand{GroupID: groupID, Members: members}}
}
