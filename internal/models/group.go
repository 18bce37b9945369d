// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package models

// Group roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Group is a multi-member conversation.
type Group struct {
	ID          string        `json:"_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Avatar      string        `json:"avatar,omitempty"`
	Owner       SenderRef     `json:"owner"`
	Members     []GroupMember `json:"members"`
}

// GroupMember is a membership entry; the user may or may not be populated.
type GroupMember struct {
	User     SenderRef `json:"userId"`
	Role     string    `json:"role,omitempty"`
	JoinedAt string    `json:"joinedAt,omitempty"`
}

// MemberIDs returns the ids of every member.
func (g *Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m.User.ID != "" {
			ids = append(ids, m.User.ID)
		}
	}
	return ids
}

// NewGroupRequest is the body of a group creation call.
type NewGroupRequest struct {
	Name        string   `json:"name" validate:"nonblank,max=100"`
	Description string   `json:"description,omitempty" validate:"max=500"`
	Members     []string `json:"members" validate:"required,min=1,dive,nonblank"`
}
