// Package auth - scopes.go defines permission scope constants for all groupkeeper
// resources and provides HasScope, HasAnyScope, and HasAllScopes helper functions
// for scope checking.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// User management scopes
	ScopeUsersRead  Scope = "users:read"
	ScopeUsersWrite Scope = "users:write"

	// Group management scopes
	ScopeGroupsRead  Scope = "groups:read"
	ScopeGroupsWrite Scope = "groups:write"

	// Membership request approval scope
	ScopeRequestsApprove Scope = "requests:approve"

	// Permission management scopes
	ScopePermissionsRead  Scope = "permissions:read"
	ScopePermissionsWrite Scope = "permissions:write"

	// Public key management scopes
	ScopeKeysRead  Scope = "keys:read"
	ScopeKeysWrite Scope = "keys:write"

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeUsersRead,
		ScopeUsersWrite,
		ScopeGroupsRead,
		ScopeGroupsWrite,
		ScopeRequestsApprove,
		ScopePermissionsRead,
		ScopePermissionsWrite,
		ScopeKeysRead,
		ScopeKeysWrite,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a user has a required scope.
// The admin scope matches everything, and write scopes imply their read scope.
func HasScope(userScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range userScopes {
		if scope == requiredStr {
			return true
		}

		if scope == string(ScopeAdmin) {
			return true
		}

		if required == ScopeUsersRead && scope == string(ScopeUsersWrite) {
			return true
		}
		if required == ScopeGroupsRead && scope == string(ScopeGroupsWrite) {
			return true
		}
		if required == ScopePermissionsRead && scope == string(ScopePermissionsWrite) {
			return true
		}
		if required == ScopeKeysRead && scope == string(ScopeKeysWrite) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a user has all of the required scopes
func HasAllScopes(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(userScopes, required) {
			return false
		}
	}
	return true
}

// GetDefaultScopes returns default scopes for a new API key
func GetDefaultScopes() []string {
	return []string{
		string(ScopeUsersRead),
		string(ScopeGroupsRead),
		string(ScopeKeysRead),
	}
}

// GetSessionScopes returns the scopes granted to an interactive login session.
// Admins get the wildcard scope. Regular users get every scope except admin;
// per-resource restrictions (group roles, key ownership) are enforced by the
// handlers, not by scopes.
func GetSessionScopes(isAdmin bool) []string {
	if isAdmin {
		return GetAdminScopes()
	}
	scopes := make([]string, 0, len(AllScopes())-1)
	for _, scope := range AllScopes() {
		if scope == ScopeAdmin {
			continue
		}
		scopes = append(scopes, string(scope))
	}
	return scopes
}

// GetAdminScopes returns all scopes including admin
func GetAdminScopes() []string {
	scopes := make([]string, 0)
	for _, scope := range AllScopes() {
		scopes = append(scopes, string(scope))
	}
	return scopes
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
