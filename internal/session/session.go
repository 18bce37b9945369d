// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

/*
Package session owns the push connection to the chat backend.

A Session dials a WebSocket with the identity token, decodes every inbound
frame into a typed event and fans it out through a Bus. Outbound commands
are queued to a dedicated writer goroutine so callers never block on socket
I/O.

State machine:

	Unconnected -> Connecting -> Connected -> Unconnected

A failed dial returns *ConnectionError and leaves the session Unconnected. A
dropped connection notifies state listeners with the cause; subscriptions
stay registered but receive nothing until the next Connect. Disconnect
removes every subscription and, once it returns, no handler runs again.

The session never reconnects on its own.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/chatty-sync/internal/auth"
	"github.com/tomtom215/chatty-sync/internal/events"
	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/metrics"
)

var (
	// ErrNotConnected is returned by Emit without a live connection.
	ErrNotConnected = errors.New("session: not connected")

	// ErrSendQueueFull is returned by Emit when the writer is backed up.
	ErrSendQueueFull = errors.New("session: send queue full")
)

// State is the connection state.
type State int32

// Connection states.
const (
	Unconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnectionError describes a failed dial or a dropped connection.
type ConnectionError struct {
	Op         string // dial, read, write
	URL        string // without credentials
	StatusCode int    // handshake HTTP status, when one was received
	Err        error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	b.WriteString("session ")
	b.WriteString(e.Op)
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Options configures a Session.
type Options struct {
	URL               string
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	EnableCompression bool
}

func (o *Options) withDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 2 * o.PingInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
}

// link is one live connection and the goroutines serving it.
type link struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

// Session is the push connection.
type Session struct {
	opts Options
	bus  Bus

	mu    sync.Mutex
	state State
	link  *link
	wg    sync.WaitGroup
}

// New creates an unconnected Session.
func New(opts Options) *Session {
	opts.withDefaults()
	return &Session{opts: opts}
}

// Subscribe registers a handler for one event kind.
func (s *Session) Subscribe(kind events.Kind, h Handler) func() {
	return s.bus.Subscribe(kind, h)
}

// SubscribeAll registers a handler for every event.
func (s *Session) SubscribeAll(h Handler) func() {
	return s.bus.SubscribeAll(h)
}

// OnStateChange registers a state listener.
func (s *Session) OnStateChange(h StateHandler) func() {
	return s.bus.OnStateChange(h)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session is connected.
func (s *Session) Connected() bool {
	return s.State() == Connected
}

// Done returns a channel closed when the current connection ends. Without a
// connection the channel is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.link.done
}

func (s *Session) setState(st State) {
	s.state = st
	metrics.SessionState.Set(float64(st))
}

// Connect dials the push endpoint as id. It is a no-op when already connected.
func (s *Session) Connect(ctx context.Context, id auth.Identity) error {
	s.mu.Lock()
	switch s.state {
	case Connected:
		s.mu.Unlock()
		return nil
	case Connecting:
		s.mu.Unlock()
		return &ConnectionError{Op: "dial", URL: s.opts.URL, Err: errors.New("connect already in progress")}
	}
	s.setState(Connecting)
	s.mu.Unlock()
	s.bus.PublishState(Connecting, nil)

	conn, err := s.dial(ctx, id.Token)
	if err != nil {
		metrics.SessionConnectAttempts.WithLabelValues("failure").Inc()
		s.mu.Lock()
		s.setState(Unconnected)
		s.mu.Unlock()
		logging.Warn().Err(err).Msg("Push session connect failed")
		s.bus.PublishState(Unconnected, err)
		return err
	}

	l := &link{conn: conn, send: make(chan []byte, s.opts.SendBuffer), done: make(chan struct{})}

	s.mu.Lock()
	if s.state != Connecting {
		// Disconnect ran while dialing.
		s.mu.Unlock()
		l.close()
		return &ConnectionError{Op: "dial", URL: s.opts.URL, Err: context.Canceled}
	}
	s.link = l
	s.setState(Connected)
	s.wg.Add(2)
	s.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})
	go s.readLoop(l)
	go s.writeLoop(l)

	metrics.SessionConnectAttempts.WithLabelValues("success").Inc()
	logging.Info().Str("url", s.opts.URL).Str("user_id", id.UserID()).Msg("Push session connected")
	s.bus.PublishState(Connected, nil)
	return nil
}

func (s *Session) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	wsURL, err := buildURL(s.opts.URL, token)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", URL: s.opts.URL, Err: err}
	}

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  s.opts.HandshakeTimeout,
		EnableCompression: s.opts.EnableCompression,
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		cerr := &ConnectionError{Op: "dial", URL: s.opts.URL, Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
		}
		return nil, cerr
	}
	return conn, nil
}

// buildURL converts http(s) to ws(s) and adds the token query parameter.
func buildURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Session) readLoop(l *link) {
	defer s.wg.Done()

	for {
		if err := l.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
			s.drop(l, "read", err)
			return
		}
		_, frame, err := l.conn.ReadMessage()
		if err != nil {
			s.drop(l, "read", err)
			return
		}
		s.dispatch(l, frame)
	}
}

func (s *Session) dispatch(l *link, frame []byte) {
	ev, err := events.Decode(frame)
	if err != nil {
		var malformed *events.MalformedEventError
		name := ""
		if errors.As(err, &malformed) {
			name = malformed.Event
		}
		metrics.PushEventsMalformed.WithLabelValues(name).Inc()
		logging.Warn().Err(err).Str("event", name).Msg("Dropping malformed push event")
		return
	}

	select {
	case <-l.done:
		return
	default:
	}
	metrics.PushEventsReceived.WithLabelValues(string(ev.Kind())).Inc()
	s.bus.Publish(ev)
}

func (s *Session) writeLoop(l *link) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case frame := <-l.send:
			if err := l.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
				s.drop(l, "write", err)
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.drop(l, "write", err)
				return
			}
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				s.drop(l, "write", err)
				return
			}
		}
	}
}

// drop tears down l after a transport failure. Only the first caller for
// the current link reports the transition.
func (s *Session) drop(l *link, op string, err error) {
	s.mu.Lock()
	current := s.link == l
	if current {
		s.link = nil
		s.setState(Unconnected)
	}
	s.mu.Unlock()
	l.close()
	if !current {
		return
	}

	reason := "error"
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		reason = "remote"
	}
	metrics.SessionDisconnects.WithLabelValues(reason).Inc()
	cerr := &ConnectionError{Op: op, URL: s.opts.URL, Err: err}
	logging.Warn().Err(cerr).Str("reason", reason).Msg("Push session dropped")
	s.bus.PublishState(Unconnected, cerr)
}

// Emit queues cmd for the writer.
func (s *Session) Emit(cmd events.Command) error {
	frame, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", cmd.Event, err)
	}

	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil {
		metrics.CommandsDropped.WithLabelValues(cmd.Event, "not_connected").Inc()
		return ErrNotConnected
	}

	select {
	case <-l.done:
		metrics.CommandsDropped.WithLabelValues(cmd.Event, "not_connected").Inc()
		return ErrNotConnected
	case l.send <- frame:
		metrics.CommandsEmitted.WithLabelValues(cmd.Event).Inc()
		return nil
	default:
		metrics.CommandsDropped.WithLabelValues(cmd.Event, "queue_full").Inc()
		return ErrSendQueueFull
	}
}

// Disconnect removes every subscription and closes the connection. It waits
// for the connection goroutines to exit and is safe to call repeatedly. It
// must not be called from a handler.
func (s *Session) Disconnect() {
	s.bus.Clear()

	s.mu.Lock()
	l := s.link
	s.link = nil
	wasConnected := s.state != Unconnected
	s.setState(Unconnected)
	s.mu.Unlock()

	if l != nil {
		_ = l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		l.close()
	}
	s.wg.Wait()

	if wasConnected {
		metrics.SessionDisconnects.WithLabelValues("local").Inc()
		logging.Info().Msg("Push session disconnected")
	}
}
