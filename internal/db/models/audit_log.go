// Package models - audit_log.go defines the AuditLog model for recording
// security-relevant events, capturing actor, action, affected resource,
// client IP, and arbitrary metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID           string
	Actor        string // username, "gk_..." key prefix, or "system"
	Action       string // "group.create", "request.approve", "key.delete"
	ResourceType string // "group", "user", "membership_request", "public_key"
	ResourceID   string
	Details      map[string]interface{} // JSONB: additional context
	IPAddress    string
	CreatedAt    time.Time
}
