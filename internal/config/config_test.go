// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies the built-in defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Typing.IdleTimeout != 2*time.Second {
		t.Errorf("Typing.IdleTimeout = %v, want 2s", cfg.Typing.IdleTimeout)
	}
	if cfg.Search.Delay != 500*time.Millisecond {
		t.Errorf("Search.Delay = %v, want 500ms", cfg.Search.Delay)
	}
	if cfg.Session.Reconnect {
		t.Error("Session.Reconnect should be off by default")
	}
	if cfg.Server.Addr() != "127.0.0.1:8787" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "token", mutate: func(c *Config) { c.Auth.Token = "t" }},
		{name: "login", mutate: func(c *Config) { c.Auth.Username, c.Auth.Password = "u", "p" }},
		{name: "no credentials", mutate: func(c *Config) {}, wantErr: "required"},
		{name: "both credentials", mutate: func(c *Config) {
			c.Auth.Token, c.Auth.Username, c.Auth.Password = "t", "u", "p"
		}, wantErr: "mutually exclusive"},
		{name: "half login", mutate: func(c *Config) { c.Auth.Username = "u" }, wantErr: "together"},
		{name: "bad scheme", mutate: func(c *Config) {
			c.Auth.Token = "t"
			c.Session.URL = "ftp://x/ws"
		}, wantErr: "CHATTY_SESSION_URL"},
		{name: "read timeout below ping", mutate: func(c *Config) {
			c.Auth.Token = "t"
			c.Session.ReadTimeout = 10 * time.Second
		}, wantErr: "read_timeout"},
		{name: "bad log level", mutate: func(c *Config) {
			c.Auth.Token = "t"
			c.Logging.Level = "loud"
		}, wantErr: "level"},
		{name: "bad port", mutate: func(c *Config) {
			c.Auth.Token = "t"
			c.Server.Port = 0
		}, wantErr: "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tt.wantErr)) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"CHATTY_BACKEND_URL":       "backend.base_url",
		"CHATTY_SESSION_RECONNECT": "session.reconnect",
		"CHATTY_HTTP_PORT":         "server.port",
		"CHATTY_UNKNOWN":           "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

// Load reads process environment, so these tests do not run in parallel.
func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "search:\n  delay: 300ms\nsession:\n  url: wss://chat.example/ws\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CHATTY_TOKEN", "abc")
	t.Setenv("CHATTY_SEARCH_DELAY", "750ms")
	t.Setenv("CHATTY_CORS_ORIGINS", "http://a.local, http://b.local")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Search.Delay != 750*time.Millisecond {
		t.Errorf("env should override file: Search.Delay = %v", cfg.Search.Delay)
	}
	if cfg.Session.URL != "wss://chat.example/ws" {
		t.Errorf("file should override default: Session.URL = %q", cfg.Session.URL)
	}
	if cfg.Typing.IdleTimeout != 2*time.Second {
		t.Errorf("default lost: Typing.IdleTimeout = %v", cfg.Typing.IdleTimeout)
	}
	if want := []string{"http://a.local", "http://b.local"}; !reflect.DeepEqual(cfg.Server.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Auth.Token != "abc" {
		t.Errorf("Auth.Token = %q", cfg.Auth.Token)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CHATTY_TOKEN", "")
	t.Setenv("CHATTY_USERNAME", "")
	t.Setenv("CHATTY_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Error("Load() without credentials should fail")
	}
}
