// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package session

import (
	"sync"

	"github.com/tomtom215/chatty-sync/internal/events"
)

// Handler receives decoded events.
type Handler func(events.Event)

// StateHandler receives state transitions. err is set when the transition was
// caused by a failure.
type StateHandler func(State, error)

type subscription struct {
	id      uint64
	kind    events.Kind // empty for catch-all
	handler Handler
}

// Bus fans events out to any number of subscribers. Subscribers are called in
// registration order on the publishing goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	states []stateSub
}

type stateSub struct {
	id      uint64
	handler StateHandler
}

// Subscribe registers handler for one event kind. The returned func removes it.
func (b *Bus) Subscribe(kind events.Kind, handler Handler) func() {
	return b.add(kind, handler)
}

// SubscribeAll registers handler for every event kind.
func (b *Bus) SubscribeAll(handler Handler) func() {
	return b.add("", handler)
}

func (b *Bus) add(kind events.Kind, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// OnStateChange registers a state listener. The returned func removes it.
func (b *Bus) OnStateChange(handler StateHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.states = append(b.states, stateSub{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.states {
				if s.id == id {
					b.states = append(b.states[:i:i], b.states[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to matching subscribers.
func (b *Bus) Publish(ev events.Event) int {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == "" || s.kind == ev.Kind() {
			matched = append(matched, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(ev)
	}
	return len(matched)
}

func (b *Bus) PublishState(st State, err error) {
	b.mu.RLock()
	handlers := make([]StateHandler, len(b.states))
	for i, s := range b.states {
		handlers[i] = s.handler
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(st, err)
	}
}

// Len returns the number of event subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Clear removes every subscription and state listener.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = nil
	b.states = nil
	b.mu.Unlock()
}
