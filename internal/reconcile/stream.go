// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package reconcile

import "time"

// echoSkew tolerates clock drift between this client and the backend when
// matching an optimistic echo against the persisted copy in fetched history.
const echoSkew = 5 * time.Second

// accessor exposes the fields the stream needs from a message type.
type accessor[M any] struct {
	id      func(*M) string
	sender  func(*M) string
	content func(*M) string
	created func(*M) time.Time
	local   func(*M) bool
}

// stream is an ordered, id-indexed message list.
//
// seqs runs parallel to items and records the reconciler sequence at which a
// live item (echo or push) was inserted. History items carry 0.
type stream[M any] struct {
	acc     *accessor[M]
	items   []M
	seqs    []uint64
	index   map[string]int
	pending []string
}

func newStream[M any](acc *accessor[M]) *stream[M] {
	return &stream[M]{acc: acc, index: make(map[string]int)}
}

func (s *stream[M]) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *stream[M]) get(id string) (*M, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.items[i], true
}

// append adds m unless its id is already present.
func (s *stream[M]) append(m M, seq uint64) bool {
	id := s.acc.id(&m)
	if id == "" || s.has(id) {
		return false
	}
	s.index[id] = len(s.items)
	s.items = append(s.items, m)
	s.seqs = append(s.seqs, seq)
	if s.acc.local(&m) {
		s.pending = append(s.pending, id)
	}
	return true
}

// replace installs history in server order. Live items inserted after mark
// survive unless history already contains them; kept echoes are dropped when
// history holds a matching self-authored message.
func (s *stream[M]) replace(history []M, mark uint64, self string) {
	oldItems, oldSeqs := s.items, s.seqs

	s.items = make([]M, 0, len(history)+len(s.pending))
	s.seqs = make([]uint64, 0, len(history)+len(s.pending))
	s.index = make(map[string]int, len(history))
	s.pending = nil

	for _, m := range history {
		s.append(m, 0)
	}

	matched := make(map[int]bool)
	for i := range oldItems {
		if oldSeqs[i] <= mark {
			continue
		}
		m := oldItems[i]
		if s.acc.local(&m) {
			if j, ok := s.persistedCopy(&m, self, matched); ok {
				matched[j] = true
				continue
			}
		}
		s.append(m, oldSeqs[i])
	}
}

// persistedCopy finds an unmatched self-authored history item with the same
// content as echo, created no earlier than the echo (within echoSkew).
func (s *stream[M]) persistedCopy(echo *M, self string, matched map[int]bool) (int, bool) {
	content := s.acc.content(echo)
	notBefore := s.acc.created(echo).Add(-echoSkew)
	for j := range s.items {
		h := &s.items[j]
		if matched[j] || s.acc.local(h) || s.seqs[j] != 0 {
			continue
		}
		if s.acc.sender(h) != self || s.acc.content(h) != content {
			continue
		}
		if created := s.acc.created(h); !created.IsZero() && created.Before(notBefore) {
			continue
		}
		return j, true
	}
	return 0, false
}

// takeEcho returns the position of the oldest pending echo whose content
// equals content and removes it from the pending queue.
func (s *stream[M]) takeEcho(content string) (int, bool) {
	for p, id := range s.pending {
		i, ok := s.index[id]
		if !ok {
			continue
		}
		if s.acc.content(&s.items[i]) != content {
			continue
		}
		s.pending = append(s.pending[:p], s.pending[p+1:]...)
		return i, true
	}
	return 0, false
}

// swap replaces the item at i with m, keeping its position.
func (s *stream[M]) swap(i int, m M) {
	delete(s.index, s.acc.id(&s.items[i]))
	s.items[i] = m
	s.index[s.acc.id(&m)] = i
}

// lastFrom returns the newest item for which match holds.
func (s *stream[M]) lastFrom(match func(*M) bool) (*M, bool) {
	for i := len(s.items) - 1; i >= 0; i-- {
		if match(&s.items[i]) {
			return &s.items[i], true
		}
	}
	return nil, false
}

func (s *stream[M]) snapshot() []M {
	out := make([]M, len(s.items))
	copy(out, s.items)
	return out
}
