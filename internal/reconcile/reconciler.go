// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package reconcile merges the three sources of messages for a conversation
// (fetched history, optimistic local echoes and pushed messages) into one
// ordered list without duplicates, and applies read receipts to it.
//
// A Reconciler is owned by the apply loop and is not safe for concurrent use.
package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/chatty-sync/internal/cache"
	"github.com/tomtom215/chatty-sync/internal/models"
)

// Defaults for the receipt buffer and the delivered-id window.
const (
	DefaultPendingReceipts   = 1024
	DefaultPendingReceiptTTL = 10 * time.Minute
	DefaultDeliveredIDs      = 4096
	DefaultDeliveredTTL      = time.Hour
)

var directAccessor = &accessor[models.DirectMessage]{
	id:      func(m *models.DirectMessage) string { return m.ID },
	sender:  func(m *models.DirectMessage) string { return m.SenderID },
	content: func(m *models.DirectMessage) string { return m.Content },
	created: func(m *models.DirectMessage) time.Time { return m.CreatedAt },
	local:   func(m *models.DirectMessage) bool { return m.Local },
}

var groupAccessor = &accessor[models.GroupMessage]{
	id:      func(m *models.GroupMessage) string { return m.ID },
	sender:  func(m *models.GroupMessage) string { return m.Sender.ID },
	content: func(m *models.GroupMessage) string { return m.Content },
	created: func(m *models.GroupMessage) time.Time { return m.CreatedAt },
	local:   func(m *models.GroupMessage) bool { return m.Local },
}

// Options tunes a Reconciler.
type Options struct {
	PendingReceipts   int
	PendingReceiptTTL time.Duration

	// DeliveredIDs bounds how many pushed message ids are remembered for
	// duplicate detection.
	DeliveredIDs int

	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() string
}

// Reconciler holds the message lists of every cached conversation.
type Reconciler struct {
	self  models.User
	now   func() time.Time
	newID func() string

	seq    uint64
	direct map[string]*stream[models.DirectMessage]
	group  map[string]*stream[models.GroupMessage]

	// groupOf maps group message ids to their group.
	groupOf map[string]string

	// receipts parks group read receipts for messages not seen yet.
	receipts *cache.LRU[[]string]

	// delivered remembers pushed ids, including those of conversations
	// that were not cached when the push arrived.
	delivered *cache.LRU[struct{}]
}

// New creates a Reconciler for the signed-in user.
func New(self models.User, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.DeliveredIDs <= 0 {
		opts.DeliveredIDs = DefaultDeliveredIDs
	}
	return &Reconciler{
		self:      self,
		now:       opts.Now,
		newID:     opts.NewID,
		direct:    make(map[string]*stream[models.DirectMessage]),
		group:     make(map[string]*stream[models.GroupMessage]),
		groupOf:   make(map[string]string),
		receipts:  cache.NewLRU[[]string](opts.PendingReceipts, opts.PendingReceiptTTL),
		delivered: cache.NewLRU[struct{}](opts.DeliveredIDs, DefaultDeliveredTTL),
	}
}

// Mark returns the current insertion sequence. Take it when a history fetch
// is issued and pass it back to ReplaceDirect or ReplaceGroup.
func (r *Reconciler) Mark() uint64 {
	return r.seq
}

func (r *Reconciler) next() uint64 {
	r.seq++
	return r.seq
}

func (r *Reconciler) directStream(peer string, create bool) *stream[models.DirectMessage] {
	s, ok := r.direct[peer]
	if !ok && create {
		s = newStream(directAccessor)
		r.direct[peer] = s
	}
	return s
}

func (r *Reconciler) groupStream(groupID string, create bool) *stream[models.GroupMessage] {
	s, ok := r.group[groupID]
	if !ok && create {
		s = newStream(groupAccessor)
		r.group[groupID] = s
	}
	return s
}

// ReplaceDirect installs fetched history for the conversation with peer.
func (r *Reconciler) ReplaceDirect(peer string, history []models.DirectMessage, mark uint64) {
	for i := range history {
		m := &history[i]
		if m.SenderID == r.self.ID && !m.SeenByPeer {
			m.SeenByPeer = contains(m.SeenBy, peer)
		}
	}
	r.directStream(peer, true).replace(history, mark, r.self.ID)
}

// ReplaceGroup installs fetched history for a group and applies any parked
// receipts that now have a target.
func (r *Reconciler) ReplaceGroup(groupID string, history []models.GroupMessage, mark uint64) {
	s := r.groupStream(groupID, true)
	for id, gid := range r.groupOf {
		if gid == groupID {
			delete(r.groupOf, id)
		}
	}
	s.replace(history, mark, r.self.ID)
	for i := range s.items {
		m := &s.items[i]
		r.groupOf[m.ID] = groupID
		r.applyParked(m)
	}
}

// EchoDirect appends an optimistic copy of a message we just sent to peer.
func (r *Reconciler) EchoDirect(peer, content string) models.DirectMessage {
	m := models.DirectMessage{
		ID:         models.LocalIDPrefix + r.newID(),
		SenderID:   r.self.ID,
		ReceiverID: peer,
		Content:    content,
		CreatedAt:  r.now(),
		Local:      true,
	}
	r.directStream(peer, true).append(m, r.next())
	return m
}

// EchoGroup appends an optimistic copy of a message we just sent to a group.
// It is replaced in place when the room broadcast of the same message arrives.
func (r *Reconciler) EchoGroup(groupID, content, replyTo, fileURL string) models.GroupMessage {
	m := models.GroupMessage{
		ID:        models.LocalIDPrefix + r.newID(),
		GroupID:   groupID,
		Sender:    models.SenderRef{User: r.self},
		Content:   content,
		FileURL:   fileURL,
		ReplyTo:   replyTo,
		CreatedAt: r.now(),
		SeenBy:    []string{r.self.ID},
		Local:     true,
	}
	r.groupStream(groupID, true).append(m, r.next())
	r.groupOf[m.ID] = groupID
	return m
}

// DirectDuplicate reports whether msg was delivered before, either into the
// cached list or while its conversation was inactive. A first delivery is
// recorded. Messages without an id are never duplicates.
func (r *Reconciler) DirectDuplicate(msg models.DirectMessage) bool {
	if msg.ID == "" {
		return false
	}
	if s := r.directStream(msg.Peer(r.self.ID), false); s != nil && s.has(msg.ID) {
		return true
	}
	return r.delivery(msg.ID)
}

// GroupDuplicate is DirectDuplicate for group messages.
func (r *Reconciler) GroupDuplicate(msg models.GroupMessage) bool {
	if msg.ID == "" {
		return false
	}
	if s := r.groupStream(msg.GroupID, false); s != nil && s.has(msg.ID) {
		return true
	}
	return r.delivery(msg.ID)
}

func (r *Reconciler) delivery(id string) bool {
	if _, seen := r.delivered.Get(id); seen {
		return true
	}
	r.delivered.Add(id, struct{}{})
	return false
}

// ReceiveDirect appends a pushed direct message when its conversation is
// active. It reports whether the list changed.
func (r *Reconciler) ReceiveDirect(msg models.DirectMessage, active bool) bool {
	if !active {
		return false
	}
	peer := msg.Peer(r.self.ID)
	return r.directStream(peer, true).append(msg, r.next())
}

// GroupReceipt describes what ReceiveGroup did.
type GroupReceipt struct {
	Appended     bool
	ReplacedEcho bool
}

// ReceiveGroup merges a pushed group message. A self-authored push first
// replaces the oldest pending echo with the same content; otherwise the
// message is appended when the group is active.
func (r *Reconciler) ReceiveGroup(msg models.GroupMessage, active bool) GroupReceipt {
	s := r.groupStream(msg.GroupID, false)

	if s != nil && s.has(msg.ID) {
		return GroupReceipt{}
	}

	if s != nil && msg.Sender.ID == r.self.ID {
		if i, ok := s.takeEcho(msg.Content); ok {
			delete(r.groupOf, s.items[i].ID)
			if !msg.HasSeen(r.self.ID) {
				msg.SeenBy = append(append([]string{}, msg.SeenBy...), r.self.ID)
			}
			s.swap(i, msg)
			r.groupOf[msg.ID] = msg.GroupID
			r.applyParked(&s.items[i])
			return GroupReceipt{ReplacedEcho: true}
		}
	}

	if !active {
		return GroupReceipt{}
	}
	if s == nil {
		s = r.groupStream(msg.GroupID, true)
	}
	if !s.append(msg, r.next()) {
		return GroupReceipt{}
	}
	m, _ := s.get(msg.ID)
	r.groupOf[msg.ID] = msg.GroupID
	r.applyParked(m)
	return GroupReceipt{Appended: true}
}

// MarkDirectSeen flags the most recent message we sent to peer as seen. It
// reports whether anything changed.
func (r *Reconciler) MarkDirectSeen(peer string) bool {
	s := r.directStream(peer, false)
	if s == nil {
		return false
	}
	m, ok := s.lastFrom(func(m *models.DirectMessage) bool { return m.SenderID == r.self.ID })
	if !ok || m.SeenByPeer {
		return false
	}
	m.SeenByPeer = true
	return true
}

// MarkGroupSeen records that userID has seen messageID. When groupID is
// empty the message is located by id. Receipts for unknown messages are
// parked and applied when the message shows up. It returns the group the
// message belongs to and whether a cached list changed.
func (r *Reconciler) MarkGroupSeen(groupID, messageID, userID string, seenBy []string) (string, bool) {
	if groupID == "" {
		groupID = r.groupOf[messageID]
	}

	var m *models.GroupMessage
	if s := r.groupStream(groupID, false); s != nil {
		m, _ = s.get(messageID)
	}

	viewers := make([]string, 0, len(seenBy)+1)
	viewers = append(viewers, seenBy...)
	if userID != "" {
		viewers = append(viewers, userID)
	}

	if m == nil {
		r.receipts.Update(messageID, func(cur []string) []string {
			return union(cur, viewers)
		})
		return groupID, false
	}
	return groupID, addSeen(m, viewers)
}

// ParkedReceipts returns how many messages have receipts waiting.
func (r *Reconciler) ParkedReceipts() int {
	return r.receipts.Len()
}

func (r *Reconciler) applyParked(m *models.GroupMessage) {
	if viewers, ok := r.receipts.Take(m.ID); ok {
		addSeen(m, viewers)
	}
}

// Direct returns a copy of the cached list for peer.
func (r *Reconciler) Direct(peer string) []models.DirectMessage {
	s := r.directStream(peer, false)
	if s == nil {
		return nil
	}
	return s.snapshot()
}

// Group returns a copy of the cached list for a group.
func (r *Reconciler) Group(groupID string) []models.GroupMessage {
	s := r.groupStream(groupID, false)
	if s == nil {
		return nil
	}
	return s.snapshot()
}

// LatestFromOthers returns the newest group message not authored by us.
func (r *Reconciler) LatestFromOthers(groupID string) (models.GroupMessage, bool) {
	s := r.groupStream(groupID, false)
	if s == nil {
		return models.GroupMessage{}, false
	}
	m, ok := s.lastFrom(func(m *models.GroupMessage) bool {
		return m.Sender.ID != r.self.ID && !m.Local
	})
	if !ok {
		return models.GroupMessage{}, false
	}
	return *m, true
}

// Drop forgets the cached list of a conversation.
func (r *Reconciler) Drop(key models.ConversationKey) {
	switch key.Kind {
	case models.KindDirect:
		delete(r.direct, key.ID)
	case models.KindGroup:
		delete(r.group, key.ID)
		for id, gid := range r.groupOf {
			if gid == key.ID {
				delete(r.groupOf, id)
			}
		}
	}
}

// Reset forgets every cached list, parked receipt and delivered id.
func (r *Reconciler) Reset() {
	r.direct = make(map[string]*stream[models.DirectMessage])
	r.group = make(map[string]*stream[models.GroupMessage])
	r.groupOf = make(map[string]string)
	r.receipts.Clear()
	r.delivered.Clear()
}

// SeenByLabel returns the viewers of m other than self, in receipt order.
func SeenByLabel(m *models.GroupMessage, self string) []string {
	out := make([]string, 0, len(m.SeenBy))
	for _, id := range m.SeenBy {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

func addSeen(m *models.GroupMessage, viewers []string) bool {
	current := union(m.SeenBy, nil)
	merged := union(current, viewers)
	if len(merged) == len(current) {
		return false
	}
	m.SeenBy = merged
	return true
}

// union returns a fresh slice with a followed by the members of b not in a.
func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
