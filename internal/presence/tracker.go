// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package presence tracks which users are online.
//
// The backend sends one full snapshot after connect followed by single-user
// deltas. Because the snapshot and early deltas can arrive in either order,
// deltas seen before the first snapshot are applied provisionally and also
// remembered; when the snapshot lands it replaces the set and the remembered
// deltas are replayed in arrival order, so a user who came online after the
// server built the snapshot is not lost.
//
// A Tracker is not safe for concurrent use; it is owned by the apply loop.
package presence

import "sort"

type delta struct {
	userID string
	online bool
}

// Tracker holds the set of online user ids.
type Tracker struct {
	online  map[string]struct{}
	synced  bool
	pending []delta
}

// NewTracker returns an empty, unsynced tracker.
func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// ApplyRosterSnapshot replaces the online set and returns every id whose
// membership changed, sorted.
func (t *Tracker) ApplyRosterSnapshot(ids []string) []string {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	if !t.synced {
		for _, d := range t.pending {
			if d.online {
				next[d.userID] = struct{}{}
			} else {
				delete(next, d.userID)
			}
		}
		t.pending = nil
		t.synced = true
	}

	changed := make([]string, 0)
	for id := range t.online {
		if _, ok := next[id]; !ok {
			changed = append(changed, id)
		}
	}
	for id := range next {
		if _, ok := t.online[id]; !ok {
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)

	t.online = next
	return changed
}

// ApplyDelta marks one user online or offline and reports whether the set
// changed.
func (t *Tracker) ApplyDelta(userID string, online bool) bool {
	if userID == "" {
		return false
	}
	if !t.synced {
		t.pending = append(t.pending, delta{userID: userID, online: online})
	}

	_, was := t.online[userID]
	if was == online {
		return false
	}
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	return true
}

// IsOnline reports membership.
func (t *Tracker) IsOnline(userID string) bool {
	_, ok := t.online[userID]
	return ok
}

// Online returns the online ids, sorted.
func (t *Tracker) Online() []string {
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of online users.
func (t *Tracker) Count() int {
	return len(t.online)
}

// Synced reports whether a snapshot has been applied since the last Reset.
func (t *Tracker) Synced() bool {
	return t.synced
}

// Reset forgets everything; used when the connection is torn down.
func (t *Tracker) Reset() {
	t.online = make(map[string]struct{})
	t.pending = nil
	t.synced = false
}
