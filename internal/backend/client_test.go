// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chatty-sync/internal/models"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	c.SetToken("tok")
	return c
}

func TestClientRoutesAndDecoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		query  string
		body   string
		call   func(c *Client) (interface{}, error)
		check  func(t *testing.T, got interface{})
	}{
		{
			name:   "list users",
			method: http.MethodGet,
			path:   "/messages/users",
			body:   `{"users":[{"_id":"u1","username":"ann","fullName":"Ann A"}]}`,
			call:   func(c *Client) (interface{}, error) { return c.ListUsers(context.Background()) },
			check: func(t *testing.T, got interface{}) {
				users := got.([]models.User)
				if len(users) != 1 || users[0].ID != "u1" || users[0].DisplayName() != "Ann A" {
					t.Errorf("users = %+v", users)
				}
			},
		},
		{
			name:   "search users",
			method: http.MethodGet,
			path:   "/users/search",
			query:  "keyword=bo+b",
			body:   `{"users":[{"_id":"u2","username":"bob"}]}`,
			call:   func(c *Client) (interface{}, error) { return c.SearchUsers(context.Background(), "bo b") },
			check: func(t *testing.T, got interface{}) {
				if users := got.([]models.User); len(users) != 1 {
					t.Errorf("users = %+v", users)
				}
			},
		},
		{
			name:   "direct history",
			method: http.MethodGet,
			path:   "/messages/u2",
			body:   `{"messages":[{"_id":"m1","senderId":"u2","receiverId":"me","content":"hi","createdAt":"2026-01-02T10:00:00Z"}]}`,
			call:   func(c *Client) (interface{}, error) { return c.DirectHistory(context.Background(), "u2") },
			check: func(t *testing.T, got interface{}) {
				msgs := got.([]models.DirectMessage)
				if len(msgs) != 1 || msgs[0].SenderID != "u2" || msgs[0].CreatedAt.IsZero() {
					t.Errorf("messages = %+v", msgs)
				}
			},
		},
		{
			name:   "group history fills group id",
			method: http.MethodGet,
			path:   "/groups/g1/messages",
			body:   `{"messages":[{"_id":"m1","senderId":{"_id":"u3","fullName":"Cat"},"content":"yo"}]}`,
			call:   func(c *Client) (interface{}, error) { return c.GroupHistory(context.Background(), "g1") },
			check: func(t *testing.T, got interface{}) {
				msgs := got.([]models.GroupMessage)
				if len(msgs) != 1 || msgs[0].GroupID != "g1" || msgs[0].Sender.ID != "u3" {
					t.Errorf("messages = %+v", msgs)
				}
			},
		},
		{
			name:   "list groups",
			method: http.MethodGet,
			path:   "/groups/getGroups",
			body:   `{"groups":[{"_id":"g1","name":"Team","members":[{"userId":"u1"},{"userId":{"_id":"u2"}}]}]}`,
			call:   func(c *Client) (interface{}, error) { return c.ListGroups(context.Background()) },
			check: func(t *testing.T, got interface{}) {
				groups := got.([]models.Group)
				if len(groups) != 1 || len(groups[0].MemberIDs()) != 2 {
					t.Errorf("groups = %+v", groups)
				}
			},
		},
		{
			name:   "group members",
			method: http.MethodGet,
			path:   "/groups/g1/getMembers",
			body:   `{"members":[{"userId":"u1","role":"admin"}]}`,
			call:   func(c *Client) (interface{}, error) { return c.GroupMembers(context.Background(), "g1") },
			check: func(t *testing.T, got interface{}) {
				if m := got.([]models.GroupMember); len(m) != 1 || m[0].Role != models.RoleAdmin {
					t.Errorf("members = %+v", m)
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != tt.method || r.URL.Path != tt.path {
					http.Error(w, "wrong route "+r.Method+" "+r.URL.Path, http.StatusNotFound)
					return
				}
				if tt.query != "" && r.URL.RawQuery != tt.query {
					http.Error(w, "wrong query "+r.URL.RawQuery, http.StatusBadRequest)
					return
				}
				if r.Header.Get("Authorization") != "Bearer tok" {
					http.Error(w, "no auth", http.StatusUnauthorized)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			})
			got, err := tt.call(c)
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestCreateGroupSendsBody(t *testing.T) {
	t.Parallel()

	var received models.NewGroupRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/groups/create" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"group":{"_id":"g9","name":"New"}}`)
	})

	g, err := c.CreateGroup(context.Background(), models.NewGroupRequest{Name: "New", Members: []string{"u1"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.ID != "g9" || received.Name != "New" || len(received.Members) != 1 {
		t.Errorf("group = %+v, received = %+v", g, received)
	}
}

func TestLoginSkipsBearer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "unexpected auth", http.StatusBadRequest)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "ann" || body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"token":"jwt"}`)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL})

	token, err := c.Login(context.Background(), "ann", "pw")
	if err != nil || token != "jwt" {
		t.Fatalf("Login = %q, %v", token, err)
	}

	_, err = c.Login(context.Background(), "ann", "bad")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized || se.Message != "Invalid credentials" {
		t.Errorf("err = %v", err)
	}
}

func TestMissingTokenFailsFast(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := c.ListUsers(context.Background()); !errors.Is(err, ErrMissingToken) {
		t.Errorf("err = %v", err)
	}
}

func TestStatusErrorPlainBody(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom\n")
	})
	err := c.DeleteGroup(context.Background(), "g1")
	if !IsStatus(err, http.StatusInternalServerError) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("message lost: %v", err)
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	s := DefaultBreakerSettings()
	s.Name = "test-open"
	s.MinRequests = 3
	b := NewBreakerClient(c, s)

	for i := 0; i < 3; i++ {
		if _, err := b.ListUsers(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %s", b.State())
	}
	before := calls.Load()
	if _, err := b.ListUsers(context.Background()); err == nil {
		t.Fatal("expected rejection")
	}
	if calls.Load() != before {
		t.Error("open breaker still reached the backend")
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	s := DefaultBreakerSettings()
	s.Name = "test-4xx"
	s.MinRequests = 2
	b := NewBreakerClient(c, s)

	for i := 0; i < 5; i++ {
		_, err := b.GroupInfo(context.Background(), "missing")
		if !IsStatus(err, http.StatusNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("state = %s", b.State())
	}
}
