// Package models - membership_request.go defines the MembershipRequest model.
// Requests move from pending to exactly one terminal status; approving one
// creates (or updates) the corresponding group edge.
package models

import "time"

// Membership request statuses.
const (
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusDenied    = "denied"
	RequestStatusCancelled = "cancelled"
)

// MembershipRequest represents a pending or resolved request to join a group.
// RequestedByID differs from RequesterID when someone files the request on
// another user's behalf.
type MembershipRequest struct {
	ID             string
	GroupID        string
	RequesterID    string
	RequestedByID  string
	Role           string
	Reason         string
	Status         string
	ResolvedByID   *string
	ResolutionNote *string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
	// Joined fields (not stored in membership_requests table)
	GroupName         string
	RequesterUsername string
	RequestedByName   string
}

// IsPending returns true if the request has not been resolved
func (r *MembershipRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// IsOnBehalf returns true if the request was filed by someone other than the requester
func (r *MembershipRequest) IsOnBehalf() bool {
	return r.RequestedByID != r.RequesterID
}
