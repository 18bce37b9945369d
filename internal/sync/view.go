// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package sync

import (
	"strings"

	"github.com/tomtom215/chatty-sync/internal/metrics"
	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/reconcile"
	"github.com/tomtom215/chatty-sync/internal/roster"
)

// Delivery labels of own messages.
const (
	StatusSent = "sent"
	StatusSeen = "seen"
)

// publish builds a new view, stores it and broadcasts it.
func (m *Manager) publish() {
	m.version++
	v := m.buildView()
	m.view.Store(v)

	m.pubMu.RLock()
	p := m.publisher
	m.pubMu.RUnlock()
	if p != nil {
		p.BroadcastJSON(MessageTypeView, v)
	}
}

func (m *Manager) buildView() *models.View {
	v := &models.View{
		Version:       m.version,
		GeneratedAt:   m.opts.Now(),
		Self:          m.self,
		Session:       m.state.String(),
		OnlineCount:   m.presence.Count(),
		Conversations: m.roster.Project(roster.Filter{}),
		Messages:      []models.MessageView{},
		Search: models.SearchState{
			Scope:   string(m.search.Scope()),
			Text:    m.search.Text(),
			Pending: m.search.Pending(),
			Seq:     m.search.Latest(),
			Users:   m.results.users,
			Groups:  m.results.groups,
		},
		Notice: m.notice,
	}

	if key, ok := m.roster.Active(); ok {
		active := key
		v.Active = &active
		v.Messages = m.messageViews(key)
		if m.typing.IsTyping(key) {
			v.TypingLabel = m.typing.Label(key)
		}
	}

	unread := 0
	for _, c := range v.Conversations {
		if c.UnreadCount > 0 {
			unread++
		}
	}
	metrics.ViewVersion.Set(float64(v.Version))
	metrics.OnlineUsers.Set(float64(v.OnlineCount))
	metrics.UnreadConversations.Set(float64(unread))
	return v
}

func (m *Manager) messageViews(key models.ConversationKey) []models.MessageView {
	if key.Kind == models.KindDirect {
		msgs := m.recon.Direct(key.ID)
		out := make([]models.MessageView, 0, len(msgs))
		for _, msg := range msgs {
			mine := msg.SenderID == m.self.ID
			mv := models.MessageView{
				ID:         msg.ID,
				SenderID:   msg.SenderID,
				SenderName: m.displayName(msg.SenderID),
				Content:    msg.Content,
				FileURL:    msg.Image,
				CreatedAt:  msg.CreatedAt,
				IsMine:     mine,
				Local:      msg.Local,
			}
			if mine {
				mv.Status = StatusSent
				if msg.SeenByPeer {
					mv.Status = StatusSeen
				}
			}
			out = append(out, mv)
		}
		return out
	}

	msgs := m.recon.Group(key.ID)
	out := make([]models.MessageView, 0, len(msgs))
	for i := range msgs {
		msg := &msgs[i]
		mine := msg.Sender.ID == m.self.ID
		mv := models.MessageView{
			ID:         msg.ID,
			SenderID:   msg.Sender.ID,
			SenderName: m.senderName(msg.Sender),
			Content:    msg.Content,
			FileURL:    msg.FileURL,
			ReplyTo:    msg.ReplyTo,
			CreatedAt:  msg.CreatedAt,
			IsMine:     mine,
			Local:      msg.Local,
		}
		if mine {
			mv.Status = m.seenByStatus(msg)
		}
		out = append(out, mv)
	}
	return out
}

func (m *Manager) seenByStatus(msg *models.GroupMessage) string {
	viewers := reconcile.SeenByLabel(msg, m.self.ID)
	if len(viewers) == 0 {
		return StatusSent
	}
	names := make([]string, len(viewers))
	for i, id := range viewers {
		names[i] = m.displayName(id)
	}
	return StatusSeen + " by " + strings.Join(names, ", ")
}
