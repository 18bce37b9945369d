// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package typing turns keystrokes into debounced typing-start / typing-stop
// commands and keeps the "is typing" flags raised by remote users.
//
// Local side: the first non-empty input after a stop emits start at once;
// each input re-arms a single idle timer; when the timer expires stop is
// emitted. Conversations are tracked independently.
//
// Remote side: flags are set and cleared only by explicit signals. No timeout
// is applied, so a lost stop leaves the flag set until the next stop.
//
// A Controller is owned by the apply loop and is not safe for concurrent use.
package typing

import (
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/chatty-sync/internal/events"
	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/schedule"
)

// DefaultIdleTimeout is the idle period after which typing-stop is sent.
const DefaultIdleTimeout = 2 * time.Second

// Emitter sends outbound commands.
type Emitter interface {
	Emit(cmd events.Command) error
}

type localState struct {
	stop schedule.Stop
}

type remoteTyper struct {
	label string
	order int
}

// Controller tracks local and remote typing.
type Controller struct {
	sched schedule.Scheduler
	emit  Emitter
	idle  time.Duration

	local  map[models.ConversationKey]*localState
	remote map[models.ConversationKey]map[string]remoteTyper
	order  int
}

// NewController creates a Controller. A zero idle uses DefaultIdleTimeout.
func NewController(sched schedule.Scheduler, emit Emitter, idle time.Duration) *Controller {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Controller{
		sched:  sched,
		emit:   emit,
		idle:   idle,
		local:  make(map[models.ConversationKey]*localState),
		remote: make(map[models.ConversationKey]map[string]remoteTyper),
	}
}

// OnLocalInput handles a change of the compose box for key. It reports
// whether typing-start was emitted.
func (c *Controller) OnLocalInput(key models.ConversationKey, text string) bool {
	if text == "" || key.IsZero() {
		return false
	}

	st, active := c.local[key]
	if active {
		st.stop()
	} else {
		st = &localState{}
		c.local[key] = st
		c.send(events.StartTyping(key))
	}

	st.stop = c.sched.AfterFunc(c.idle, func() {
		c.expire(key, st)
	})
	return !active
}

func (c *Controller) expire(key models.ConversationKey, st *localState) {
	// A newer burst may already own the slot.
	if c.local[key] != st {
		return
	}
	delete(c.local, key)
	c.send(events.StopTyping(key))
}

// StopLocal ends a local burst early (for example after sending) and emits
// typing-stop if one was in progress.
func (c *Controller) StopLocal(key models.ConversationKey) bool {
	st, ok := c.local[key]
	if !ok {
		return false
	}
	st.stop()
	delete(c.local, key)
	c.send(events.StopTyping(key))
	return true
}

// LocalActive reports whether a local burst is in progress for key.
func (c *Controller) LocalActive(key models.ConversationKey) bool {
	_, ok := c.local[key]
	return ok
}

func (c *Controller) send(cmd events.Command) {
	if err := c.emit.Emit(cmd); err != nil {
		logging.Debug().Err(err).Str("event", cmd.Event).Msg("typing signal not sent")
	}
}

// OnRemoteStart records that senderID is typing in key. It reports whether
// the conversation's typing flag or label changed.
func (c *Controller) OnRemoteStart(key models.ConversationKey, senderID, label string) bool {
	if key.IsZero() || senderID == "" {
		return false
	}
	typers, ok := c.remote[key]
	if !ok {
		typers = make(map[string]remoteTyper)
		c.remote[key] = typers
	}
	prev, existed := typers[senderID]
	if existed && prev.label == label {
		return false
	}
	order := prev.order
	if !existed {
		c.order++
		order = c.order
	}
	typers[senderID] = remoteTyper{label: label, order: order}
	return true
}

// OnRemoteStop clears senderID's typing flag in key.
func (c *Controller) OnRemoteStop(key models.ConversationKey, senderID string) bool {
	typers, ok := c.remote[key]
	if !ok {
		return false
	}
	if _, ok := typers[senderID]; !ok {
		return false
	}
	delete(typers, senderID)
	if len(typers) == 0 {
		delete(c.remote, key)
	}
	return true
}

// ClearRemote drops every remote typer of key, e.g. when a sender's message
// arrives or the group goes away.
func (c *Controller) ClearRemote(key models.ConversationKey) {
	delete(c.remote, key)
}

// IsTyping reports whether any remote user is typing in key.
func (c *Controller) IsTyping(key models.ConversationKey) bool {
	return len(c.remote[key]) > 0
}

// Label returns the display label of the remote typers of key, in the order
// they started typing.
func (c *Controller) Label(key models.ConversationKey) string {
	typers := c.remote[key]
	if len(typers) == 0 {
		return ""
	}
	list := make([]remoteTyper, 0, len(typers))
	for _, t := range typers {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })

	labels := make([]string, 0, len(list))
	for _, t := range list {
		if t.label != "" {
			labels = append(labels, t.label)
		}
	}
	return strings.Join(labels, ", ")
}

// Reset cancels every local timer without emitting and forgets remote state.
func (c *Controller) Reset() {
	for key, st := range c.local {
		st.stop()
		delete(c.local, key)
	}
	c.remote = make(map[models.ConversationKey]map[string]remoteTyper)
}
