package models

import (
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Role helpers
// ---------------------------------------------------------------------------

func TestIsValidRole(t *testing.T) {
	for _, role := range []string{"member", "manager", "owner", "np-owner"} {
		if !IsValidRole(role) {
			t.Errorf("IsValidRole(%q) should be true", role)
		}
	}
	for _, role := range []string{"", "admin", "Owner", "viewer"} {
		if IsValidRole(role) {
			t.Errorf("IsValidRole(%q) should be false", role)
		}
	}
}

func TestIsApproverRole(t *testing.T) {
	if IsApproverRole(RoleMember) {
		t.Error("member should not be an approver role")
	}
	for _, role := range []string{RoleManager, RoleOwner, RoleNpOwner} {
		if !IsApproverRole(role) {
			t.Errorf("%s should be an approver role", role)
		}
	}
}

// ---------------------------------------------------------------------------
// GroupEdge.IsExpired / IsUserEdge
// ---------------------------------------------------------------------------

func TestGroupEdge_IsExpired_NilExpiresAt(t *testing.T) {
	e := &GroupEdge{ExpiresAt: nil}
	if e.IsExpired() {
		t.Error("IsExpired() should be false when ExpiresAt is nil")
	}
}

func TestGroupEdge_IsExpired_FutureTime(t *testing.T) {
	future := time.Now().Add(time.Hour)
	e := &GroupEdge{ExpiresAt: &future}
	if e.IsExpired() {
		t.Error("IsExpired() should be false for a future expiry")
	}
}

func TestGroupEdge_IsExpired_PastTime(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	e := &GroupEdge{ExpiresAt: &past}
	if !e.IsExpired() {
		t.Error("IsExpired() should be true for a past expiry")
	}
}

func TestGroupEdge_IsUserEdge(t *testing.T) {
	userID := "u1"
	groupID := "g1"
	if e := (&GroupEdge{MemberUserID: &userID}); !e.IsUserEdge() {
		t.Error("edge with MemberUserID should be a user edge")
	}
	if e := (&GroupEdge{MemberGroupID: &groupID}); e.IsUserEdge() {
		t.Error("edge with MemberGroupID should not be a user edge")
	}
}

// ---------------------------------------------------------------------------
// MembershipRequest helpers
// ---------------------------------------------------------------------------

func TestMembershipRequest_IsPending(t *testing.T) {
	r := &MembershipRequest{Status: RequestStatusPending}
	if !r.IsPending() {
		t.Error("IsPending() should be true for pending status")
	}
	for _, status := range []string{RequestStatusApproved, RequestStatusDenied, RequestStatusCancelled} {
		r := &MembershipRequest{Status: status}
		if r.IsPending() {
			t.Errorf("IsPending() should be false for %s status", status)
		}
	}
}

func TestMembershipRequest_IsOnBehalf(t *testing.T) {
	r := &MembershipRequest{RequesterID: "u1", RequestedByID: "u1"}
	if r.IsOnBehalf() {
		t.Error("IsOnBehalf() should be false when requester filed it themselves")
	}
	r = &MembershipRequest{RequesterID: "u1", RequestedByID: "u2"}
	if !r.IsOnBehalf() {
		t.Error("IsOnBehalf() should be true when filed by someone else")
	}
}

// ---------------------------------------------------------------------------
// APIKey.IsExpired
// ---------------------------------------------------------------------------

func TestAPIKey_IsExpired(t *testing.T) {
	if k := (&APIKey{ExpiresAt: nil}); k.IsExpired() {
		t.Error("IsExpired() should be false when ExpiresAt is nil")
	}
	past := time.Now().Add(-time.Minute)
	if k := (&APIKey{ExpiresAt: &past}); !k.IsExpired() {
		t.Error("IsExpired() should be true for a past expiry")
	}
}

// ---------------------------------------------------------------------------
// User.IsAdmin
// ---------------------------------------------------------------------------

func TestUser_IsAdmin(t *testing.T) {
	if u := (&User{Role: SystemRoleUser}); u.IsAdmin() {
		t.Error("user role should not be admin")
	}
	if u := (&User{Role: SystemRoleAdmin}); !u.IsAdmin() {
		t.Error("admin role should be admin")
	}
}
