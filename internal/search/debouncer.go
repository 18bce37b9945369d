// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package search debounces the sidebar search box.
//
// Each change of the text restarts a single timer; only when the user pauses
// is a query issued. Every issued query carries a monotonically increasing
// sequence number and a response is applied only if it answers the latest
// query, so a slow response to "ab" can never overwrite the results for "abc".
// Clearing the box cancels the timer, invalidates whatever is in flight and
// restores the unfiltered view immediately.
//
// A Debouncer is owned by the apply loop and is not safe for concurrent use.
package search

import (
	"strings"
	"time"

	"github.com/tomtom215/chatty-sync/internal/metrics"
	"github.com/tomtom215/chatty-sync/internal/schedule"
)

// DefaultDelay is the pause after the last keystroke before a query is issued.
const DefaultDelay = 500 * time.Millisecond

// Scope selects what is searched.
type Scope string

// Scopes. Users are searched on the backend; groups are filtered locally
// from the loaded group list.
const (
	ScopeUsers  Scope = "users"
	ScopeGroups Scope = "groups"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeUsers || s == ScopeGroups
}

// Query is an issued search.
type Query struct {
	Seq   uint64
	Scope Scope
	Text  string
}

// Debouncer turns keystrokes into sequenced queries.
type Debouncer struct {
	sched schedule.Scheduler
	delay time.Duration
	issue func(Query)

	stop    schedule.Stop
	scope   Scope
	text    string
	pending bool
	seq     uint64
}

// NewDebouncer creates a Debouncer. issue runs (through sched) each time a
// query is due. A zero delay uses DefaultDelay.
func NewDebouncer(sched schedule.Scheduler, delay time.Duration, issue func(Query)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{sched: sched, delay: delay, issue: issue, scope: ScopeUsers}
}

// OnQueryChanged handles a change of the search box. It reports whether the
// box was cleared, in which case the caller restores the unfiltered view.
func (d *Debouncer) OnQueryChanged(scope Scope, text string) bool {
	if !scope.Valid() {
		scope = ScopeUsers
	}
	text = strings.TrimSpace(text)
	d.cancelTimer()
	d.scope = scope

	if text == "" {
		wasActive := d.text != "" || d.pending
		d.text = ""
		d.pending = false
		// Any response still in flight now answers a stale sequence.
		d.seq++
		if wasActive {
			metrics.RecordSearch(string(scope), "cleared")
		}
		return true
	}

	d.text = text
	d.pending = true
	d.stop = d.sched.AfterFunc(d.delay, d.fire)
	return false
}

func (d *Debouncer) fire() {
	d.stop = nil
	if !d.pending {
		return
	}
	d.pending = false
	d.seq++
	q := Query{Seq: d.seq, Scope: d.scope, Text: d.text}
	metrics.RecordSearch(string(q.Scope), "issued")
	d.issue(q)
}

// OnResponse reports whether a response to q should be applied.
func (d *Debouncer) OnResponse(q Query) bool {
	if q.Seq != d.seq || d.text == "" || d.pending {
		metrics.RecordSearch(string(q.Scope), "discarded")
		return false
	}
	metrics.RecordSearch(string(q.Scope), "applied")
	return true
}

// Latest returns the sequence of the most recently issued (or invalidated) query.
func (d *Debouncer) Latest() uint64 {
	return d.seq
}

// Pending reports whether a query is waiting for the timer.
func (d *Debouncer) Pending() bool {
	return d.pending
}

// Text returns the current (trimmed) search text.
func (d *Debouncer) Text() string {
	return d.text
}

// Scope returns the current scope.
func (d *Debouncer) Scope() Scope {
	return d.scope
}

// Reset cancels the timer and invalidates in-flight queries.
func (d *Debouncer) Reset() {
	d.cancelTimer()
	d.text = ""
	d.pending = false
	d.seq++
}

func (d *Debouncer) cancelTimer() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
}
