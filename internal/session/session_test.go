// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/chatty-sync/internal/auth"
	"github.com/tomtom215/chatty-sync/internal/events"
	"github.com/tomtom215/chatty-sync/internal/models"
)

// pushServer is a fake chat backend push endpoint.
type pushServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
	gotAuth  chan string
}

func newPushServer(t *testing.T, wantToken string) *pushServer {
	t.Helper()
	ps := &pushServer{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan []byte, 16),
		gotAuth:  make(chan string, 4),
	}
	upgrader := websocket.Upgrader{}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != wantToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ps.gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.conns <- conn
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				ps.received <- data
			}
		}()
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func (ps *pushServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ps.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func identity(token string) auth.Identity {
	return auth.Identity{User: models.User{ID: "me"}, Token: token}
}

func waitEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestConnectDeliversTypedEvents(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t, "tok")
	s := New(Options{URL: ps.url()})

	online := make(chan events.Event, 4)
	all := make(chan events.Event, 8)
	s.Subscribe(events.KindPeerOnline, func(ev events.Event) { online <- ev })
	s.SubscribeAll(func(ev events.Event) { all <- ev })

	if err := s.Connect(context.Background(), identity("tok")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()
	if s.State() != Connected {
		t.Fatalf("state = %s", s.State())
	}
	if got := <-ps.gotAuth; got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}

	server := ps.accept(t)
	frames := []string{
		`{"event":"noti-online","data":{"id":"u1"}}`,
		`{"event":"not-a-real-event","data":{}}`,
		`{"event":"noti-offline","data":{"id":"u1"}}`,
	}
	for _, f := range frames {
		if err := server.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	ev := waitEvent(t, online)
	if po, ok := ev.(events.PeerOnline); !ok || po.UserID != "u1" {
		t.Errorf("online event = %#v", ev)
	}

	// The malformed frame is dropped and the stream continues in order.
	first, second := waitEvent(t, all), waitEvent(t, all)
	if first.Kind() != events.KindPeerOnline || second.Kind() != events.KindPeerOffline {
		t.Errorf("order = %s, %s", first.Kind(), second.Kind())
	}
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t, "right")
	s := New(Options{URL: ps.url()})

	var states []State
	var mu sync.Mutex
	s.OnStateChange(func(st State, err error) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	err := s.Connect(context.Background(), identity("wrong"))
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v", err)
	}
	if cerr.StatusCode != http.StatusUnauthorized || strings.Contains(cerr.Error(), "wrong") {
		t.Errorf("ConnectionError = %v", cerr)
	}
	if s.State() != Unconnected {
		t.Errorf("state = %s", s.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != Connecting || states[1] != Unconnected {
		t.Errorf("states = %v", states)
	}
}

func TestEmitWritesCommands(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t, "tok")
	s := New(Options{URL: ps.url()})

	if err := s.Emit(events.StartTyping(models.DirectKey("u1"))); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit before connect = %v", err)
	}

	if err := s.Connect(context.Background(), identity("tok")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()
	ps.accept(t)

	if err := s.Emit(events.SendDirect("u1", "hello")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	select {
	case frame := <-ps.received:
		env := string(frame)
		if !strings.Contains(env, `"event":"send-message"`) || !strings.Contains(env, `"content":"hello"`) {
			t.Errorf("frame = %s", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not received")
	}
}

func TestRemoteCloseNotifiesAndGoesInert(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t, "tok")
	s := New(Options{URL: ps.url()})

	dropped := make(chan error, 1)
	s.OnStateChange(func(st State, err error) {
		if st == Unconnected {
			dropped <- err
		}
	})
	if err := s.Connect(context.Background(), identity("tok")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()
	done := s.Done()

	server := ps.accept(t)
	_ = server.Close()

	select {
	case err := <-dropped:
		var cerr *ConnectionError
		if !errors.As(err, &cerr) || cerr.Op != "read" {
			t.Errorf("drop error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drop not reported")
	}
	<-done
	if err := s.Emit(events.JoinGroup("g1")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit after drop = %v", err)
	}
}

func TestDisconnectStopsCallbacks(t *testing.T) {
	t.Parallel()

	ps := newPushServer(t, "tok")
	s := New(Options{URL: ps.url()})

	var mu sync.Mutex
	calls := 0
	s.SubscribeAll(func(events.Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err := s.Connect(context.Background(), identity("tok")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := ps.accept(t)

	s.Disconnect()
	s.Disconnect()

	_ = server.WriteMessage(websocket.TextMessage, []byte(`{"event":"noti-online","data":{"id":"u1"}}`))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("handler ran %d times after Disconnect", calls)
	}
	if s.State() != Unconnected {
		t.Errorf("state = %s", s.State())
	}
}

func TestBusSubscribersDoNotOverwrite(t *testing.T) {
	t.Parallel()

	var b Bus
	var got []string
	cancelA := b.Subscribe(events.KindGroupCreated, func(events.Event) { got = append(got, "a") })
	b.Subscribe(events.KindGroupCreated, func(events.Event) { got = append(got, "b") })
	b.SubscribeAll(func(events.Event) { got = append(got, "all") })
	b.Subscribe(events.KindGroupDeleted, func(events.Event) { got = append(got, "other") })

	if n := b.Publish(events.GroupCreated{GroupID: "g1"}); n != 3 {
		t.Errorf("delivered to %d", n)
	}
	cancelA()
	cancelA()
	b.Publish(events.GroupCreated{GroupID: "g2"})

	want := "a,b,all,b,all"
	if strings.Join(got, ",") != want {
		t.Errorf("calls = %v, want %s", got, want)
	}
	if b.Len() != 3 {
		t.Errorf("Len = %d", b.Len())
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://chat.local:5000/ws", want: "ws://chat.local:5000/ws?token=t"},
		{base: "https://chat.example/ws", want: "wss://chat.example/ws?token=t"},
		{base: "ws://x/ws?v=1", want: "ws://x/ws?token=t&v=1"},
		{base: "ftp://x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := buildURL(tt.base, "t")
		if tt.wantErr {
			if err == nil {
				t.Errorf("buildURL(%q) expected error", tt.base)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("buildURL(%q) = %q, %v; want %q", tt.base, got, err, tt.want)
		}
	}
}
