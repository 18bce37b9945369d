// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/chatty-sync/internal/events"
	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/metrics"
	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/roster"
	"github.com/tomtom215/chatty-sync/internal/search"
	"github.com/tomtom215/chatty-sync/internal/validation"
)

// Outgoing is a message to send. A zero Key targets the active conversation.
type Outgoing struct {
	Key     models.ConversationKey `json:"-"`
	Content string                 `json:"content" validate:"max=5000"`
	ReplyTo string                 `json:"replyTo,omitempty"`
	FileURL string                 `json:"fileUrl,omitempty" validate:"omitempty,url"`
}

// OpenConversation selects key, resets its unread counter, marks it seen and
// replaces its cached history. It returns once the history is applied; on a
// *FetchError the cached list is left as it was.
func (m *Manager) OpenConversation(ctx context.Context, key models.ConversationKey) error {
	var wait <-chan error
	err := m.call(ctx, false, func() error {
		ch, err := m.open(ctx, key)
		wait = ch
		return err
	})
	if err != nil || wait == nil {
		return err
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) open(ctx context.Context, key models.ConversationKey) (<-chan error, error) {
	if !key.Kind.Valid() || key.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, key)
	}
	if !m.roster.Has(key) {
		u, known := m.users[key.ID]
		if key.Kind != models.KindDirect || !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, key)
		}
		m.roster.Ensure(key, u.DisplayName())
		m.roster.SetOnline(key, m.presence.IsOnline(key.ID))
	}

	// The previous conversation's idle timer keeps running.
	m.roster.SetActive(key)
	m.roster.ResetUnread(key)

	if key.Kind == models.KindDirect {
		m.emit(events.MarkDirectSeen(key.ID))
	} else {
		m.emit(events.JoinGroup(key.ID))
	}
	return m.fetchHistory(ctx, key), nil
}

func (m *Manager) fetchHistory(ctx context.Context, key models.ConversationKey) <-chan error {
	m.fetchSeq++
	seq := m.fetchSeq
	m.fetches[key] = seq
	mark := m.recon.Mark()

	res := make(chan error, 1)
	m.spawn(ctx, func(ctx context.Context) {
		var apply func() error
		if key.Kind == models.KindDirect {
			history, err := m.backend.DirectHistory(ctx, key.ID)
			apply = func() error { return m.applyDirectHistory(key, seq, mark, history, err) }
		} else {
			history, err := m.backend.GroupHistory(ctx, key.ID)
			apply = func() error { return m.applyGroupHistory(key, seq, mark, history, err) }
		}
		m.reply("fetch", res, apply)
	})
	return res
}

func (m *Manager) applyDirectHistory(key models.ConversationKey, seq, mark uint64, history []models.DirectMessage, err error) error {
	metrics.RecordHistoryFetch(string(key.Kind), err)
	if m.fetches[key] != seq {
		// A later open of the same conversation owns the cache now.
		return nil
	}
	delete(m.fetches, key)
	if err != nil {
		return m.fail("history", key, err)
	}

	m.recon.ReplaceDirect(key.ID, history, mark)
	if msgs := m.recon.Direct(key.ID); len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		m.roster.SetLastMessage(key, models.LastMessage{
			Content:   last.Content,
			CreatedAt: last.CreatedAt,
			IsMine:    last.SenderID == m.self.ID,
		})
	}
	return nil
}

func (m *Manager) applyGroupHistory(key models.ConversationKey, seq, mark uint64, history []models.GroupMessage, err error) error {
	metrics.RecordHistoryFetch(string(key.Kind), err)
	if m.fetches[key] != seq {
		return nil
	}
	delete(m.fetches, key)
	if err != nil {
		return m.fail("history", key, err)
	}

	m.recon.ReplaceGroup(key.ID, history, mark)
	if msgs := m.recon.Group(key.ID); len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		m.roster.SetLastMessage(key, models.LastMessage{
			Content:    last.Content,
			CreatedAt:  last.CreatedAt,
			SenderName: m.senderName(last.Sender),
			IsMine:     last.Sender.ID == m.self.ID,
		})
	}

	if m.roster.IsActive(key) {
		if latest, ok := m.recon.LatestFromOthers(key.ID); ok && !latest.HasSeen(m.self.ID) {
			m.emit(events.MarkGroupSeen(key.ID, latest.ID))
		}
	}
	return nil
}

// CloseConversation deselects the active conversation.
func (m *Manager) CloseConversation(ctx context.Context) error {
	return m.call(ctx, false, func() error {
		m.roster.ClearActive()
		return nil
	})
}

// SendMessage emits out and, once the session accepted it, appends an
// optimistic echo and moves the conversation to the top.
func (m *Manager) SendMessage(ctx context.Context, out Outgoing) error {
	if err := validation.Validate(&out); err != nil {
		return err
	}
	return m.call(ctx, false, func() error { return m.send(out) })
}

func (m *Manager) send(out Outgoing) error {
	key := out.Key
	if key.IsZero() {
		active, ok := m.roster.Active()
		if !ok {
			return ErrNoActiveConversation
		}
		key = active
	}
	if !m.roster.Has(key) {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, key)
	}

	content := strings.TrimSpace(out.Content)
	if content == "" && (key.Kind == models.KindDirect || out.FileURL == "") {
		return ErrEmptyMessage
	}

	var cmd events.Command
	if key.Kind == models.KindDirect {
		cmd = events.SendDirect(key.ID, content)
	} else {
		cmd = events.SendGroup(key.ID, content, out.ReplyTo, out.FileURL)
	}
	if err := m.source.Emit(cmd); err != nil {
		return fmt.Errorf("send to %s: %w", key, err)
	}
	m.typing.StopLocal(key)

	var created time.Time
	if key.Kind == models.KindDirect {
		created = m.recon.EchoDirect(key.ID, content).CreatedAt
	} else {
		created = m.recon.EchoGroup(key.ID, content, out.ReplyTo, out.FileURL).CreatedAt
	}
	m.roster.SetLastMessage(key, models.LastMessage{
		Content:    content,
		CreatedAt:  created,
		SenderName: m.self.DisplayName(),
		IsMine:     true,
	})
	m.roster.BumpToTop(key)
	return nil
}

// InputChanged reports the compose box text of key (zero key: active
// conversation) to the typing controller.
func (m *Manager) InputChanged(ctx context.Context, key models.ConversationKey, text string) error {
	return m.call(ctx, true, func() error {
		if key.IsZero() {
			active, ok := m.roster.Active()
			if !ok {
				return ErrNoActiveConversation
			}
			key = active
		}
		if text == "" {
			m.typing.StopLocal(key)
			return nil
		}
		m.typing.OnLocalInput(key, text)
		return nil
	})
}

// SearchChanged feeds the search box to the debouncer.
func (m *Manager) SearchChanged(ctx context.Context, scope search.Scope, text string) error {
	if !scope.Valid() {
		return fmt.Errorf("invalid search scope %q", scope)
	}
	return m.call(ctx, false, func() error {
		if m.search.OnQueryChanged(scope, text) {
			m.results = searchResults{}
		}
		return nil
	})
}

// issueSearch runs on the loop when the debounce timer fires.
func (m *Manager) issueSearch(q search.Query) {
	if q.Scope == search.ScopeGroups {
		matches := m.roster.Project(roster.Filter{Kind: models.KindGroup, Query: q.Text})
		if !m.search.OnResponse(q) {
			return
		}
		ids := make([]string, 0, len(matches))
		for _, c := range matches {
			ids = append(ids, c.Key.ID)
		}
		m.results = searchResults{groups: ids}
		return
	}

	m.spawn(m.runCtx, func(ctx context.Context) {
		users, err := m.backend.SearchUsers(ctx, q.Text)
		m.post(step{source: "fetch", fn: func() { m.applySearch(q, users, err) }})
	})
}

func (m *Manager) applySearch(q search.Query, users []models.User, err error) {
	if err != nil {
		metrics.RecordSearch(string(q.Scope), "failed")
		if q.Seq == m.search.Latest() {
			_ = m.fail("search", models.ConversationKey{}, err)
		}
		return
	}
	if !m.search.OnResponse(q) {
		logging.Debug().Uint64("seq", q.Seq).Uint64("latest", m.search.Latest()).Msg("Stale search response discarded")
		return
	}

	found := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID == "" || u.ID == m.self.ID {
			continue
		}
		m.users[u.ID] = u
		found = append(found, u)
	}
	m.results = searchResults{users: found}
}

// RefreshDirectory reloads users and groups and joins every group room.
func (m *Manager) RefreshDirectory(ctx context.Context) error {
	var wait <-chan error
	err := m.call(ctx, true, func() error {
		wait = m.loadDirectory(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loadDirectory(ctx context.Context) <-chan error {
	res := make(chan error, 1)
	m.spawn(ctx, func(ctx context.Context) {
		users, uerr := m.backend.ListUsers(ctx)
		groups, gerr := m.backend.ListGroups(ctx)
		m.reply("fetch", res, func() error {
			var first error
			if uerr != nil {
				first = m.fail("directory", models.ConversationKey{}, uerr)
			} else {
				m.loadUsers(users)
			}
			if gerr != nil {
				err := m.fail("groups", models.ConversationKey{}, gerr)
				if first == nil {
					first = err
				}
			} else {
				m.loadGroups(groups)
			}
			return first
		})
	})
	return res
}

func (m *Manager) refreshGroups() {
	m.spawn(m.runCtx, func(ctx context.Context) {
		groups, err := m.backend.ListGroups(ctx)
		m.post(step{source: "fetch", fn: func() {
			if err != nil {
				_ = m.fail("groups", models.ConversationKey{}, err)
				return
			}
			m.loadGroups(groups)
		}})
	})
}

func (m *Manager) loadUsers(users []models.User) {
	listing := make([]models.Conversation, 0, len(users))
	for _, u := range users {
		if u.ID == "" || u.ID == m.self.ID {
			continue
		}
		m.users[u.ID] = u
		listing = append(listing, models.Conversation{
			Key:    models.DirectKey(u.ID),
			Name:   u.DisplayName(),
			Avatar: u.ProfilePic,
		})
	}
	m.roster.Load(models.KindDirect, listing)
	for _, key := range m.roster.Keys(models.KindDirect) {
		m.roster.SetOnline(key, m.presence.IsOnline(key.ID))
	}
}

func (m *Manager) loadGroups(groups []models.Group) {
	incoming := make(map[string]models.Group, len(groups))
	listing := make([]models.Conversation, 0, len(groups))
	for _, g := range groups {
		if g.ID == "" {
			continue
		}
		incoming[g.ID] = g
		listing = append(listing, groupConversation(g))
	}

	for id := range m.groups {
		if _, ok := incoming[id]; !ok {
			m.forgetGroup(id)
		}
	}
	m.groups = incoming
	m.roster.Load(models.KindGroup, listing)

	for _, g := range groups {
		if g.ID != "" {
			m.emit(events.JoinGroup(g.ID))
		}
	}
}

func groupConversation(g models.Group) models.Conversation {
	return models.Conversation{
		Key:     models.GroupKey(g.ID),
		Name:    g.Name,
		Avatar:  g.Avatar,
		Members: g.MemberIDs(),
		OwnerID: g.Owner.ID,
	}
}

// groupListing returns the known groups in roster order.
func (m *Manager) groupListing() []models.Conversation {
	keys := m.roster.Keys(models.KindGroup)
	out := make([]models.Conversation, 0, len(keys))
	for _, key := range keys {
		if g, ok := m.groups[key.ID]; ok {
			out = append(out, groupConversation(g))
		}
	}
	return out
}

// CreateGroup creates a group through the backend, tells the other members
// about it and adds it to the roster.
func (m *Manager) CreateGroup(ctx context.Context, req models.NewGroupRequest) (models.Group, error) {
	if err := validation.Validate(&req); err != nil {
		return models.Group{}, err
	}

	g, err := m.backend.CreateGroup(ctx, req)
	if err != nil {
		var ferr error
		if cerr := m.call(ctx, false, func() error {
			ferr = m.fail("create group", models.ConversationKey{}, err)
			return nil
		}); cerr != nil {
			return models.Group{}, &FetchError{Op: "create group", Err: err}
		}
		return models.Group{}, ferr
	}

	err = m.call(ctx, false, func() error {
		key := models.GroupKey(g.ID)
		m.groups[g.ID] = g
		m.roster.Ensure(key, g.Name)
		m.roster.Load(models.KindGroup, m.groupListing())
		m.roster.BumpToTop(key)
		m.emit(events.JoinGroup(g.ID))

		members := g.MemberIDs()
		if len(members) == 0 {
			members = append([]string{m.self.ID}, req.Members...)
		}
		m.emit(events.AnnounceGroupCreated(g.ID, members))
		return nil
	})
	return g, err
}

// DeleteGroup deletes a group through the backend, tells the members and
// removes it locally.
func (m *Manager) DeleteGroup(ctx context.Context, groupID string) error {
	var members []string
	err := m.call(ctx, true, func() error {
		g, ok := m.groups[groupID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownConversation, models.GroupKey(groupID))
		}
		members = g.MemberIDs()
		return nil
	})
	if err != nil {
		return err
	}

	if err := m.backend.DeleteGroup(ctx, groupID); err != nil {
		var ferr error
		if cerr := m.call(ctx, false, func() error {
			ferr = m.fail("delete group", models.GroupKey(groupID), err)
			return nil
		}); cerr != nil {
			return &FetchError{Op: "delete group", Key: models.GroupKey(groupID), Err: err}
		}
		return ferr
	}

	return m.call(ctx, false, func() error {
		m.emit(events.AnnounceGroupDeleted(groupID, members))
		m.forgetGroup(groupID)
		delete(m.groups, groupID)
		return nil
	})
}

// forgetGroup leaves the room and drops every trace of the group except the
// m.groups entry.
func (m *Manager) forgetGroup(groupID string) {
	key := models.GroupKey(groupID)
	if m.roster.IsActive(key) {
		m.typing.StopLocal(key)
		m.roster.ClearActive()
	}
	m.emit(events.LeaveGroup(groupID))
	m.roster.Remove(key)
	m.recon.Drop(key)
	m.typing.ClearRemote(key)
	delete(m.fetches, key)
}

// Conversations projects the roster through f.
func (m *Manager) Conversations(ctx context.Context, f roster.Filter) ([]models.Conversation, error) {
	var out []models.Conversation
	err := m.call(ctx, true, func() error {
		out = m.roster.Project(f)
		return nil
	})
	return out, err
}

// Messages renders the cached list of key.
func (m *Manager) Messages(ctx context.Context, key models.ConversationKey) ([]models.MessageView, error) {
	var out []models.MessageView
	err := m.call(ctx, true, func() error {
		if !m.roster.Has(key) {
			return fmt.Errorf("%w: %s", ErrUnknownConversation, key)
		}
		out = m.messageViews(key)
		return nil
	})
	return out, err
}
