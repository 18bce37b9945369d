// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/view", "200"))
	RecordAPIRequest("GET", "/api/v1/view", 200, 5*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/view", "200"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestRecordBackendRequest(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		label  string
	}{
		{name: "success", status: 200},
		{name: "http error", status: 503, err: errors.New("unavailable"), label: "503"},
		{name: "transport error", status: 0, err: errors.New("refused"), label: "transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.label == "" {
				RecordBackendRequest("test_op_"+tt.name, tt.status, time.Millisecond, nil)
				return
			}
			c := BackendRequestErrors.WithLabelValues("test_op", tt.label)
			before := testutil.ToFloat64(c)
			RecordBackendRequest("test_op", tt.status, time.Millisecond, tt.err)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("error counter delta = %v", got)
			}
		})
	}
}

func TestRecordHistoryFetch(t *testing.T) {
	ok := HistoryFetches.WithLabelValues("group", "success")
	bad := HistoryFetches.WithLabelValues("group", "failure")
	okBefore, badBefore := testutil.ToFloat64(ok), testutil.ToFloat64(bad)

	RecordHistoryFetch("group", nil)
	RecordHistoryFetch("group", errors.New("boom"))

	if testutil.ToFloat64(ok)-okBefore != 1 || testutil.ToFloat64(bad)-badBefore != 1 {
		t.Error("history fetch counters not updated")
	}
}

func TestRecordSearchAndApply(t *testing.T) {
	c := SearchQueries.WithLabelValues("users", "discarded")
	before := testutil.ToFloat64(c)
	RecordSearch("users", "discarded")
	if testutil.ToFloat64(c)-before != 1 {
		t.Error("search counter not updated")
	}

	RecordApply("event", time.Now())
	if testutil.CollectAndCount(ApplyDuration) == 0 {
		t.Error("apply histogram has no series")
	}
}
