// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package presence

import (
	"reflect"
	"testing"
)

func TestSnapshotThenDeltas(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	changed := tr.ApplyRosterSnapshot([]string{"A", "B"})
	if !reflect.DeepEqual(changed, []string{"A", "B"}) {
		t.Errorf("changed = %v", changed)
	}

	if !tr.ApplyDelta("C", true) {
		t.Error("C online should change the set")
	}
	if !tr.ApplyDelta("A", false) {
		t.Error("A offline should change the set")
	}

	if got := tr.Online(); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("Online() = %v, want [B C]", got)
	}
	if tr.Count() != 2 {
		t.Errorf("Count() = %d", tr.Count())
	}
}

func TestDeltaBeforeSnapshotIsReplayed(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.ApplyDelta("C", true)
	if !tr.IsOnline("C") {
		t.Error("provisional delta should be visible before the snapshot")
	}
	if tr.Synced() {
		t.Error("tracker should not be synced yet")
	}

	tr.ApplyRosterSnapshot([]string{"A", "B"})

	if got := tr.Online(); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("Online() = %v, want [A B C]", got)
	}
	if !tr.Synced() {
		t.Error("tracker should be synced")
	}
}

func TestEarlyOfflineWinsOverSnapshot(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.ApplyDelta("B", true)
	tr.ApplyDelta("B", false)
	tr.ApplyRosterSnapshot([]string{"A", "B"})

	if tr.IsOnline("B") {
		t.Error("B went offline after the snapshot was built")
	}
}

func TestSecondSnapshotReplacesWithoutReplay(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.ApplyRosterSnapshot([]string{"A"})
	tr.ApplyDelta("B", true)

	changed := tr.ApplyRosterSnapshot([]string{"C"})
	if !reflect.DeepEqual(changed, []string{"A", "B", "C"}) {
		t.Errorf("changed = %v", changed)
	}
	if got := tr.Online(); !reflect.DeepEqual(got, []string{"C"}) {
		t.Errorf("Online() = %v", got)
	}
}

func TestDeltaIdempotent(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.ApplyRosterSnapshot(nil)
	if !tr.ApplyDelta("A", true) {
		t.Error("first online should change")
	}
	if tr.ApplyDelta("A", true) {
		t.Error("repeated online should not change")
	}
	if tr.ApplyDelta("Z", false) {
		t.Error("offline for unknown user should not change")
	}
	if tr.ApplyDelta("", true) {
		t.Error("empty id ignored")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.ApplyRosterSnapshot([]string{"A"})
	tr.Reset()
	if tr.Count() != 0 || tr.Synced() {
		t.Error("Reset should clear state")
	}
}
