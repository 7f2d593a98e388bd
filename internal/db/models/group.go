// Package models - group.go defines the Group model and the membership roles
// an edge can carry. np-owner is an owner for approval purposes but receives
// no permission grants through the group.
package models

import "time"

// Membership roles, ordered weakest to strongest.
const (
	RoleMember  = "member"
	RoleManager = "manager"
	RoleOwner   = "owner"
	RoleNpOwner = "np-owner"
)

// ValidRoles lists every role accepted on an edge or request.
var ValidRoles = []string{RoleMember, RoleManager, RoleOwner, RoleNpOwner}

// IsValidRole returns true if role is one of the recognized membership roles
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsApproverRole returns true if the role can approve or deny membership requests
func IsApproverRole(role string) bool {
	return role == RoleManager || role == RoleOwner || role == RoleNpOwner
}

// Group represents a group that users (and other groups) can be members of
type Group struct {
	ID          string
	Name        string
	Description string
	Email       *string // notification address; falls back to approver emails when unset
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
