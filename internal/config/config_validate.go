// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/chatty-sync/internal/validation"
)

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateAuth() error {
	hasToken := strings.TrimSpace(c.Auth.Token) != ""
	hasLogin := c.Auth.Username != "" || c.Auth.Password != ""
	switch {
	case hasToken && hasLogin:
		return errors.New("CHATTY_TOKEN and CHATTY_USERNAME/CHATTY_PASSWORD are mutually exclusive")
	case hasLogin && (c.Auth.Username == "" || c.Auth.Password == ""):
		return errors.New("CHATTY_USERNAME and CHATTY_PASSWORD must be set together")
	case !hasToken && !hasLogin:
		return errors.New("either CHATTY_TOKEN or CHATTY_USERNAME/CHATTY_PASSWORD is required")
	}
	return nil
}

func (c *Config) validateSession() error {
	u, err := url.Parse(c.Session.URL)
	if err != nil {
		return fmt.Errorf("CHATTY_SESSION_URL is invalid: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("CHATTY_SESSION_URL must use ws, wss, http or https, got %q", u.Scheme)
	}
	if c.Session.PingInterval > 0 && c.Session.ReadTimeout > 0 && c.Session.ReadTimeout <= c.Session.PingInterval {
		return fmt.Errorf("session.read_timeout (%s) must exceed session.ping_interval (%s)",
			c.Session.ReadTimeout, c.Session.PingInterval)
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			continue
		}
		if _, err := url.ParseRequestURI(origin); err != nil {
			return fmt.Errorf("invalid CORS origin %q: %w", origin, err)
		}
	}
	return nil
}

// Addr returns host:port for the local API.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
