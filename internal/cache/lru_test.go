// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package cache

import (
	"testing"
	"time"
)

func TestLRUEviction(t *testing.T) {
	t.Parallel()

	c := NewLRU[int](2, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Get("a")
	c.Add("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should be evicted as least recently used")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %d, %v", v, ok)
	}
	if c.Len() != 2 || c.Evictions() != 1 {
		t.Errorf("Len=%d Evictions=%d", c.Len(), c.Evictions())
	}
}

func TestLRUExpiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	c := NewLRU[string](10, time.Minute)
	c.SetClock(func() time.Time { return now })

	c.Add("k", "v")
	c.Add("k2", "v2")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}
	if _, ok := c.Take("k2"); ok {
		t.Error("expired entry taken")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d", c.Len())
	}
}

func TestLRUTakeAndUpdate(t *testing.T) {
	t.Parallel()

	c := NewLRU[[]string](10, time.Minute)
	c.Update("m1", func(v []string) []string { return append(v, "u1") })
	c.Update("m1", func(v []string) []string { return append(v, "u2") })

	v, ok := c.Take("m1")
	if !ok || len(v) != 2 || v[0] != "u1" || v[1] != "u2" {
		t.Fatalf("Take = %v, %v", v, ok)
	}
	if _, ok := c.Take("m1"); ok {
		t.Error("Take should remove the entry")
	}
	if c.Remove("m1") {
		t.Error("Remove of absent key should be false")
	}
}

func TestLRUCleanupExpired(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	c := NewLRU[int](10, time.Second)
	c.SetClock(func() time.Time { return now })
	c.Add("a", 1)
	now = now.Add(500 * time.Millisecond)
	c.Add("b", 2)
	now = now.Add(700 * time.Millisecond)

	if n := c.CleanupExpired(); n != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", n)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Error("Clear should empty the cache")
	}
}
