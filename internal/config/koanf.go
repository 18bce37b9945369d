// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/chatty-sync/config.yaml",
	"/etc/chatty-sync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("CHATTY_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps CHATTY_* variables (prefix stripped, lower-cased) to
// config paths. Unmapped variables are ignored.
var envMappings = map[string]string{
	"backend_url":                   "backend.base_url",
	"backend_timeout":               "backend.timeout",
	"backend_requests_per_second":   "backend.requests_per_second",
	"backend_burst":                 "backend.burst",
	"backend_breaker_min_requests":  "backend.breaker_min_requests",
	"backend_breaker_failure_ratio": "backend.breaker_failure_ratio",
	"backend_breaker_timeout":       "backend.breaker_timeout",

	"token":    "auth.token",
	"username": "auth.username",
	"password": "auth.password",

	"session_url":                "session.url",
	"session_handshake_timeout":  "session.handshake_timeout",
	"session_ping_interval":      "session.ping_interval",
	"session_read_timeout":       "session.read_timeout",
	"session_write_timeout":      "session.write_timeout",
	"session_send_buffer":        "session.send_buffer",
	"session_enable_compression": "session.enable_compression",
	"session_reconnect":          "session.reconnect",

	"typing_idle_timeout": "typing.idle_timeout",
	"search_delay":        "search.delay",

	"sync_inbox_size":          "sync.inbox_size",
	"sync_fetch_timeout":       "sync.fetch_timeout",
	"sync_pending_receipts":    "sync.pending_receipts",
	"sync_pending_receipt_ttl": "sync.pending_receipt_ttl",

	"server_enabled":          "server.enabled",
	"http_host":               "server.host",
	"http_port":               "server.port",
	"server_read_timeout":     "server.read_timeout",
	"server_write_timeout":    "server.write_timeout",
	"server_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":            "server.cors_origins",
	"rate_limit_rpm":          "server.rate_limit_rpm",

	"log_level":     "logging.level",
	"log_format":    "logging.format",
	"log_caller":    "logging.caller",
	"log_timestamp": "logging.timestamp",
}

// envTransformFunc maps an environment variable to a koanf path, or "" to skip it.
//
// Examples:
//   - CHATTY_BACKEND_URL -> backend.base_url
//   - CHATTY_SESSION_RECONNECT -> session.reconnect
//   - CHATTY_HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "CHATTY_"))
	return envMappings[key]
}

// WatchConfigFile calls callback whenever path changes. The callback is
// responsible for reloading and swapping the configuration.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
