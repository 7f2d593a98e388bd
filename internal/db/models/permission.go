package models

import "time"

// Permission represents a named capability that groups can be granted
type Permission struct {
	ID          string
	Name        string
	Description string
	Enabled     bool
	CreatedAt   time.Time
}

// PermissionGrant binds a permission (with an optional argument) to a group.
// Members inherit grants transitively through the membership graph, except
// through np-owner edges.
type PermissionGrant struct {
	ID           string
	PermissionID string
	GroupID      string
	Argument     string
	CreatedAt    time.Time
	// Joined fields (not stored in permission_grants table)
	PermissionName string
	GroupName      string
}
