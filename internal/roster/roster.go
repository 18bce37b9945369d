// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package roster keeps the ordered list of conversations shown in the
// sidebar: recency order, unread counters, the active selection and the
// per-entry presence and typing flags.
//
// Filters are read-time projections; they never reorder or drop entries.
// A Roster is owned by the apply loop and is not safe for concurrent use.
package roster

import (
	"strings"

	"github.com/tomtom215/chatty-sync/internal/models"
)

// Roster is the ordered conversation list.
type Roster struct {
	order   []models.ConversationKey
	entries map[models.ConversationKey]*models.Conversation

	active    models.ConversationKey
	hasActive bool
}

// New returns an empty roster.
func New() *Roster {
	return &Roster{entries: make(map[models.ConversationKey]*models.Conversation)}
}

// Len returns the number of conversations.
func (r *Roster) Len() int {
	return len(r.order)
}

// Load installs the directory listing for one kind. Surviving entries keep
// their position, unread counter, last message, typing and presence flags;
// entries missing from the listing are removed; new ones are appended in
// listing order.
func (r *Roster) Load(kind models.ConversationKind, listing []models.Conversation) {
	incoming := make(map[models.ConversationKey]models.Conversation, len(listing))
	for _, c := range listing {
		if c.Key.Kind == kind && c.Key.ID != "" {
			if _, dup := incoming[c.Key]; !dup {
				incoming[c.Key] = c
			}
		}
	}

	kept := r.order[:0:0]
	for _, key := range r.order {
		if key.Kind != kind {
			kept = append(kept, key)
			continue
		}
		c, ok := incoming[key]
		if !ok {
			delete(r.entries, key)
			if r.hasActive && r.active == key {
				r.ClearActive()
			}
			continue
		}
		e := r.entries[key]
		e.Name = c.Name
		e.Avatar = c.Avatar
		e.Members = c.Members
		e.OwnerID = c.OwnerID
		if e.LastMessage == nil && c.LastMessage != nil {
			lm := *c.LastMessage
			e.LastMessage = &lm
		}
		kept = append(kept, key)
		delete(incoming, key)
	}
	r.order = kept

	for _, c := range listing {
		if _, isNew := incoming[c.Key]; !isNew {
			continue
		}
		entry := c
		if c.LastMessage != nil {
			lm := *c.LastMessage
			entry.LastMessage = &lm
		}
		if entry.UnreadCount < 0 {
			entry.UnreadCount = 0
		}
		entry.Active = false
		r.entries[c.Key] = &entry
		r.order = append(r.order, c.Key)
		delete(incoming, c.Key)
	}
}

// Ensure adds a placeholder conversation if key is unknown and reports
// whether one was created.
func (r *Roster) Ensure(key models.ConversationKey, name string) bool {
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = &models.Conversation{Key: key, Name: name}
	r.order = append(r.order, key)
	return true
}

// Has reports whether key is in the roster.
func (r *Roster) Has(key models.ConversationKey) bool {
	_, ok := r.entries[key]
	return ok
}

// Get returns a copy of the conversation.
func (r *Roster) Get(key models.ConversationKey) (models.Conversation, bool) {
	e, ok := r.entries[key]
	if !ok {
		return models.Conversation{}, false
	}
	return r.copyOf(e), true
}

// Remove deletes key and clears the selection if it was active.
func (r *Roster) Remove(key models.ConversationKey) bool {
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.hasActive && r.active == key {
		r.ClearActive()
	}
	return true
}

// BumpToTop moves key to the front, keeping the relative order of the rest.
func (r *Roster) BumpToTop(key models.ConversationKey) bool {
	for i, k := range r.order {
		if k != key {
			continue
		}
		if i == 0 {
			return false
		}
		copy(r.order[1:i+1], r.order[:i])
		r.order[0] = key
		return true
	}
	return false
}

// SetUnread sets the unread counter, clamped at zero.
func (r *Roster) SetUnread(key models.ConversationKey, n int) bool {
	e, ok := r.entries[key]
	if !ok {
		return false
	}
	if n < 0 {
		n = 0
	}
	if e.UnreadCount == n {
		return false
	}
	e.UnreadCount = n
	return true
}

// IncrementUnread adds one to the counter and returns the new value.
func (r *Roster) IncrementUnread(key models.ConversationKey) int {
	e, ok := r.entries[key]
	if !ok {
		return 0
	}
	e.UnreadCount++
	return e.UnreadCount
}

// ResetUnread zeroes the counter.
func (r *Roster) ResetUnread(key models.ConversationKey) bool {
	return r.SetUnread(key, 0)
}

// SetLastMessage updates the sidebar preview source.
func (r *Roster) SetLastMessage(key models.ConversationKey, lm models.LastMessage) bool {
	e, ok := r.entries[key]
	if !ok {
		return false
	}
	e.LastMessage = &lm
	return true
}

// SetOnline updates the presence flag of a direct conversation.
func (r *Roster) SetOnline(key models.ConversationKey, online bool) bool {
	e, ok := r.entries[key]
	if !ok || key.Kind != models.KindDirect || e.Online == online {
		return false
	}
	e.Online = online
	return true
}

// SetTyping updates the remote typing flag and label.
func (r *Roster) SetTyping(key models.ConversationKey, typing bool, label string) bool {
	e, ok := r.entries[key]
	if !ok || (e.IsTyping == typing && e.TypingLabel == label) {
		return false
	}
	e.IsTyping = typing
	e.TypingLabel = label
	return true
}

// SetActive selects key. Only one conversation is active at a time. It
// returns the previously active key, if any.
func (r *Roster) SetActive(key models.ConversationKey) (models.ConversationKey, bool) {
	prev, hadPrev := r.active, r.hasActive
	if hadPrev {
		if e, ok := r.entries[prev]; ok {
			e.Active = false
		}
	}
	r.active, r.hasActive = key, true
	if e, ok := r.entries[key]; ok {
		e.Active = true
	}
	return prev, hadPrev
}

// ClearActive deselects the active conversation.
func (r *Roster) ClearActive() {
	if r.hasActive {
		if e, ok := r.entries[r.active]; ok {
			e.Active = false
		}
	}
	r.active, r.hasActive = models.ConversationKey{}, false
}

// Active returns the active conversation key.
func (r *Roster) Active() (models.ConversationKey, bool) {
	return r.active, r.hasActive
}

// IsActive reports whether key is the active conversation.
func (r *Roster) IsActive(key models.ConversationKey) bool {
	return r.hasActive && r.active == key
}

// ActiveGroup returns the active group id, or "" when the active
// conversation is not a group.
func (r *Roster) ActiveGroup() string {
	if r.hasActive && r.active.Kind == models.KindGroup {
		return r.active.ID
	}
	return ""
}

// Keys returns the keys of kind in display order. An empty kind returns all.
func (r *Roster) Keys(kind models.ConversationKind) []models.ConversationKey {
	out := make([]models.ConversationKey, 0, len(r.order))
	for _, k := range r.order {
		if kind == "" || k.Kind == kind {
			out = append(out, k)
		}
	}
	return out
}

// Filter selects conversations for display.
type Filter struct {
	// Kind limits the result to one kind; empty means all.
	Kind models.ConversationKind

	// OnlineOnly keeps only direct conversations whose peer is online.
	OnlineOnly bool

	// Query keeps entries whose name contains it, case-insensitively.
	Query string
}

// Project returns copies of the matching conversations in display order,
// with Preview filled in.
func (r *Roster) Project(f Filter) []models.Conversation {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.Conversation, 0, len(r.order))
	for _, key := range r.order {
		e := r.entries[key]
		if f.Kind != "" && key.Kind != f.Kind {
			continue
		}
		if f.OnlineOnly && (key.Kind != models.KindDirect || !e.Online) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Name), q) {
			continue
		}
		out = append(out, r.copyOf(e))
	}
	return out
}

func (r *Roster) copyOf(e *models.Conversation) models.Conversation {
	c := *e
	if e.LastMessage != nil {
		lm := *e.LastMessage
		c.LastMessage = &lm
	}
	if e.Members != nil {
		c.Members = append([]string(nil), e.Members...)
	}
	c.Active = r.IsActive(e.Key)
	c.Preview = models.BuildPreview(&c)
	return c
}
