// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

// Package config loads chatty-sync configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML (CONFIG_PATH, config.yaml, /etc/chatty-sync/config.yaml)
//  3. Environment: CHATTY_* variables override anything above
//
// Config is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Backend BackendConfig `koanf:"backend"`
	Auth    AuthConfig    `koanf:"auth"`
	Session SessionConfig `koanf:"session"`
	Typing  TypingConfig  `koanf:"typing"`
	Search  SearchConfig  `koanf:"search"`
	Sync    SyncConfig    `koanf:"sync"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// BackendConfig points at the chat backend REST API.
type BackendConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	Timeout           time.Duration `koanf:"timeout" validate:"min=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"min=0"`
	Burst             int           `koanf:"burst" validate:"min=0"`

	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gte=0,lte=1"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout" validate:"min=0"`
}

// AuthConfig supplies credentials. Either Token or Username+Password.
type AuthConfig struct {
	Token    string `koanf:"token"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// SessionConfig tunes the push connection.
type SessionConfig struct {
	URL               string        `koanf:"url" validate:"required,url"`
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout" validate:"min=0"`
	PingInterval      time.Duration `koanf:"ping_interval" validate:"min=0"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"min=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"min=0"`
	SendBuffer        int           `koanf:"send_buffer" validate:"min=0"`
	EnableCompression bool          `koanf:"enable_compression"`

	// Reconnect lets the supervisor restart a dropped session.
	Reconnect bool `koanf:"reconnect"`
}

// TypingConfig tunes typing signals.
type TypingConfig struct {
	IdleTimeout time.Duration `koanf:"idle_timeout" validate:"min=0"`
}

// SearchConfig tunes the search debouncer.
type SearchConfig struct {
	Delay time.Duration `koanf:"delay" validate:"min=0"`
}

// SyncConfig tunes the apply loop.
type SyncConfig struct {
	InboxSize         int           `koanf:"inbox_size" validate:"min=1"`
	FetchTimeout      time.Duration `koanf:"fetch_timeout" validate:"min=0"`
	PendingReceipts   int           `koanf:"pending_receipts" validate:"min=0"`
	PendingReceiptTTL time.Duration `koanf:"pending_receipt_ttl" validate:"min=0"`
}

// ServerConfig configures the local presentation API.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitRPM    int           `koanf:"rate_limit_rpm" validate:"min=0"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level     string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format    string `koanf:"format" validate:"oneof=json console"`
	Caller    bool   `koanf:"caller"`
	Timestamp bool   `koanf:"timestamp"`
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:             "http://localhost:5000/api/v1",
			Timeout:             15 * time.Second,
			RequestsPerSecond:   20,
			Burst:               10,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
			BreakerTimeout:      30 * time.Second,
		},
		Session: SessionConfig{
			URL:               "ws://localhost:5000/ws",
			HandshakeTimeout:  10 * time.Second,
			PingInterval:      30 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Second,
			SendBuffer:        256,
			EnableCompression: true,
		},
		Typing: TypingConfig{IdleTimeout: 2 * time.Second},
		Search: SearchConfig{Delay: 500 * time.Millisecond},
		Sync: SyncConfig{
			InboxSize:         1024,
			FetchTimeout:      15 * time.Second,
			PendingReceipts:   512,
			PendingReceiptTTL: 5 * time.Minute,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8787,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitRPM:    600,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			Timestamp: true,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}
