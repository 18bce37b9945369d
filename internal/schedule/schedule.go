// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package schedule provides the timer seam used by the typing controller
// and the search debouncer.
//
// Timers never run their callback on the timer goroutine. Loop hands every
// expiry to a poster (the apply loop's inbox) and drops it there if the timer
// was stopped in the meantime, so a cancelled timer can never apply.
// Manual is a deterministic implementation for tests.
package schedule

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stop cancels a pending timer. Calling it more than once is harmless.
type Stop func()

// Scheduler creates one-shot timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stop
}

// Loop is a Scheduler whose callbacks run through post.
type Loop struct {
	post func(func())
}

// NewLoop returns a Scheduler that delivers expiries through post.
func NewLoop(post func(func())) *Loop {
	return &Loop{post: post}
}

// AfterFunc implements Scheduler.
func (l *Loop) AfterFunc(d time.Duration, f func()) Stop {
	var stopped atomic.Bool
	t := time.AfterFunc(d, func() {
		l.post(func() {
			if !stopped.Load() {
				f()
			}
		})
	})
	return func() {
		stopped.Store(true)
		t.Stop()
	}
}

// Manual is a virtual clock. Callbacks run synchronously inside Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers map[int]*manualTimer
}

type manualTimer struct {
	at  time.Duration
	seq int
	f   func()
}

// NewManual returns a Manual clock at virtual time zero.
func NewManual() *Manual {
	return &Manual{timers: make(map[int]*manualTimer)}
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, f func()) Stop {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := m.seq
	m.timers[id] = &manualTimer{at: m.now + d, seq: id, f: f}
	return func() {
		m.mu.Lock()
		delete(m.timers, id)
		m.mu.Unlock()
	}
}

// Advance moves the clock forward and fires due timers in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		due := make([]*manualTimer, 0)
		for _, t := range m.timers {
			if t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			m.now = target
			m.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at == due[j].at {
				return due[i].seq < due[j].seq
			}
			return due[i].at < due[j].at
		})
		next := due[0]
		delete(m.timers, next.seq)
		m.now = next.at
		m.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
