// Package models defines the database model types for groupkeeper.
// Each type corresponds to a database table. Models are pure data types —
// business logic belongs in the service layer, query logic in the repositories layer.
package models

import "time"

// SystemRole values control access to admin-only endpoints.
const (
	SystemRoleUser  = "user"
	SystemRoleAdmin = "admin"
)

// User represents an account in the system. Service accounts are users
// with IsServiceAccount set; they authenticate with API keys only.
type User struct {
	ID               string
	Username         string
	Email            string
	FullName         *string
	Role             string // "user" or "admin"
	Enabled          bool
	IsServiceAccount bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastLoginAt      *time.Time
}

// IsAdmin returns true if the user has the admin system role
func (u *User) IsAdmin() bool {
	return u.Role == SystemRoleAdmin
}
