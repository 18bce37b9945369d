// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package validation

import (
	"strings"
	"testing"
)

type sample struct {
	Content string `json:"content" validate:"nonblank,max=10"`
	Scope   string `json:"scope" validate:"oneof=users groups"`
	Limit   int    `json:"limit" validate:"min=1"`
	Note    string `validate:"omitempty,max=3"`
}

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("GetValidator should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        sample
		wantField string
		wantTag   string
		wantMsg   string
	}{
		{name: "valid", in: sample{Content: "hi", Scope: "users", Limit: 1}},
		{name: "blank content", in: sample{Content: "   ", Scope: "users", Limit: 1}, wantField: "content", wantTag: "nonblank", wantMsg: "content must not be blank"},
		{name: "long content", in: sample{Content: "01234567890", Scope: "groups", Limit: 1}, wantField: "content", wantTag: "max", wantMsg: "content must be at most 10 characters"},
		{name: "bad scope", in: sample{Content: "a", Scope: "all", Limit: 1}, wantField: "scope", wantTag: "oneof", wantMsg: "scope must be one of: users groups"},
		{name: "low limit", in: sample{Content: "a", Scope: "users"}, wantField: "limit", wantTag: "min", wantMsg: "limit must be at least 1"},
		{name: "untagged json name", in: sample{Content: "a", Scope: "users", Limit: 1, Note: "long"}, wantField: "Note", wantTag: "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verr := ValidateStruct(&tt.in)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("got %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
			if tt.wantMsg != "" && errs[0].Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", errs[0].Error(), tt.wantMsg)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	verr := ValidateStruct(&sample{Content: "", Scope: "x"})
	if verr == nil {
		t.Fatal("expected error")
	}
	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", apiErr.Code)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 3 {
		t.Fatalf("fields = %#v", apiErr.Details["fields"])
	}
	if !strings.Contains(apiErr.Message, "content must not be blank") {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestValidate_NilOnSuccess(t *testing.T) {
	t.Parallel()

	if err := Validate(&sample{Content: "a", Scope: "groups", Limit: 2}); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := Validate(&sample{}); err == nil {
		t.Error("Validate() = nil, want error")
	}
}
