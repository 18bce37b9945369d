// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package sync

import (
	"github.com/tomtom215/chatty-sync/internal/events"
	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/session"
)

// handleEvent routes one push event. Runs on the loop.
func (m *Manager) handleEvent(ev events.Event) {
	switch e := ev.(type) {
	case events.RosterSnapshot:
		for _, id := range m.presence.ApplyRosterSnapshot(e.UserIDs) {
			m.roster.SetOnline(models.DirectKey(id), m.presence.IsOnline(id))
		}
	case events.PeerOnline:
		m.onPresence(e.UserID, true)
	case events.PeerOffline:
		m.onPresence(e.UserID, false)
	case events.TypingStarted:
		m.onTyping(e.Scope, e.SenderID, e.SenderName, e.GroupID, true)
	case events.TypingStopped:
		m.onTyping(e.Scope, e.SenderID, "", e.GroupID, false)
	case events.DirectMessageReceived:
		m.onDirectMessage(e.Message)
	case events.GroupMessageReceived:
		m.onGroupMessage(e.Message)
	case events.DirectMessageSeen:
		// Receipts from a peer other than the open one are dropped.
		if m.roster.IsActive(models.DirectKey(e.ViewerID)) {
			m.recon.MarkDirectSeen(e.ViewerID)
		}
	case events.GroupMessageSeen:
		m.recon.MarkGroupSeen(e.GroupID, e.MessageID, e.UserID, e.SeenBy)
	case events.GroupCreated, events.GroupRosterChanged:
		m.refreshGroups()
	case events.GroupDeleted:
		if _, ok := m.groups[e.GroupID]; ok || m.roster.Has(models.GroupKey(e.GroupID)) {
			m.forgetGroup(e.GroupID)
			delete(m.groups, e.GroupID)
		}
	default:
		logging.Debug().Str("kind", string(ev.Kind())).Msg("Unhandled push event")
	}
}

// handleState reacts to session transitions. Runs on the loop.
func (m *Manager) handleState(st session.State, err error) {
	prev := m.state
	m.state = st

	switch st {
	case session.Connected:
		if prev != session.Connected {
			m.loadDirectory(m.runCtx)
		}
	case session.Unconnected:
		// Presence and typing are only meaningful while connected.
		m.presence.Reset()
		m.typing.Reset()
		for _, key := range m.roster.Keys("") {
			m.roster.SetOnline(key, false)
			m.roster.SetTyping(key, false, "")
		}
		if err != nil {
			m.notice = &models.Notice{Op: "session", Message: err.Error(), At: m.opts.Now()}
		}
	}
}

func (m *Manager) onPresence(userID string, online bool) {
	if m.presence.ApplyDelta(userID, online) {
		m.roster.SetOnline(models.DirectKey(userID), online)
	}
}

func (m *Manager) onTyping(scope models.ConversationKind, senderID, senderName, groupID string, started bool) {
	if senderID == "" || senderID == m.self.ID {
		return
	}

	key := models.DirectKey(senderID)
	if scope == models.KindGroup {
		if groupID == "" {
			groupID = m.roster.ActiveGroup()
		}
		if groupID == "" {
			return
		}
		key = models.GroupKey(groupID)
	}

	if started {
		label := senderName
		if label == "" {
			label = m.displayName(senderID)
		}
		m.typing.OnRemoteStart(key, senderID, label)
	} else {
		m.typing.OnRemoteStop(key, senderID)
	}
	m.roster.SetTyping(key, m.typing.IsTyping(key), m.typing.Label(key))
}

func (m *Manager) onDirectMessage(msg models.DirectMessage) {
	peer := msg.Peer(m.self.ID)
	if peer == "" {
		return
	}
	if m.recon.DirectDuplicate(msg) {
		logging.Debug().Str("message_id", msg.ID).Msg("Duplicate direct message dropped")
		return
	}
	key := models.DirectKey(peer)
	mine := msg.SenderID == m.self.ID

	if m.roster.Ensure(key, m.displayName(peer)) {
		m.roster.SetOnline(key, m.presence.IsOnline(peer))
	}
	active := m.roster.IsActive(key)
	m.recon.ReceiveDirect(msg, active)

	m.roster.SetLastMessage(key, models.LastMessage{
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		IsMine:    mine,
	})
	m.roster.BumpToTop(key)

	if mine {
		return
	}
	if active {
		m.emit(events.MarkDirectSeen(peer))
	} else {
		m.roster.IncrementUnread(key)
	}
}

func (m *Manager) onGroupMessage(msg models.GroupMessage) {
	if msg.GroupID == "" {
		return
	}
	if m.recon.GroupDuplicate(msg) {
		logging.Debug().Str("message_id", msg.ID).Msg("Duplicate group message dropped")
		return
	}
	key := models.GroupKey(msg.GroupID)
	mine := msg.Sender.ID == m.self.ID

	if m.roster.Ensure(key, "Group") {
		m.refreshGroups()
	}
	active := m.roster.IsActive(key)
	receipt := m.recon.ReceiveGroup(msg, active)

	m.roster.SetLastMessage(key, models.LastMessage{
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
		SenderName: m.senderName(msg.Sender),
		IsMine:     mine,
	})
	if receipt.ReplacedEcho {
		return
	}
	m.roster.BumpToTop(key)

	if mine {
		return
	}
	if !active {
		m.roster.IncrementUnread(key)
		return
	}
	if receipt.Appended {
		m.emit(events.MarkGroupSeen(msg.GroupID, msg.ID))
	}
}

func (m *Manager) displayName(userID string) string {
	if userID == m.self.ID {
		return m.self.DisplayName()
	}
	if u, ok := m.users[userID]; ok {
		return u.DisplayName()
	}
	return "Unknown"
}

func (m *Manager) senderName(ref models.SenderRef) string {
	if ref.FullName != "" || ref.Username != "" {
		return ref.DisplayName()
	}
	return m.displayName(ref.ID)
}
