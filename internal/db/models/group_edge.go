// Package models - group_edge.go defines the membership edge between a group
// and a member (user or nested group). Exactly one of MemberUserID and
// MemberGroupID is set, enforced by a database check constraint.
package models

import "time"

// GroupEdge represents a direct membership of a user or group in a group
type GroupEdge struct {
	ID            string
	GroupID       string
	MemberUserID  *string
	MemberGroupID *string
	Role          string
	Active        bool
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	// Joined fields (not stored in group_edges table)
	GroupName  string
	MemberName string
	// MemberEmail is joined by ListExpiredEdges for expiry notifications;
	// empty for group members.
	MemberEmail string
}

// IsExpired returns true if the edge has an expiry in the past
func (e *GroupEdge) IsExpired() bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(time.Now())
}

// IsUserEdge returns true if the edge's member is a user rather than a group
func (e *GroupEdge) IsUserEdge() bool {
	return e.MemberUserID != nil
}
