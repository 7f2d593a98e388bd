package auth

import "testing"

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"empty list", []string{}, false},
		{"single valid scope", []string{"groups:read"}, false},
		{"multiple valid scopes", []string{"groups:read", "users:write", "admin"}, false},
		{"all defined scopes", func() []string {
			s := make([]string, 0, len(AllScopes()))
			for _, sc := range AllScopes() {
				s = append(s, string(sc))
			}
			return s
		}(), false},
		{"invalid scope", []string{"not:a:scope"}, true},
		{"mixed valid and invalid", []string{"groups:read", "invalid"}, true},
		{"empty string scope", []string{""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScopes(tt.scopes)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScopes(%v) error = %v, wantErr %v", tt.scopes, err, tt.wantErr)
			}
		})
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		name       string
		userScopes []string
		required   Scope
		want       bool
	}{
		// Exact match
		{"exact match groups:read", []string{"groups:read"}, ScopeGroupsRead, true},
		{"exact match admin", []string{"admin"}, ScopeAdmin, true},
		{"exact match requests:approve", []string{"requests:approve"}, ScopeRequestsApprove, true},
		// Admin wildcard grants everything
		{"admin grants groups:read", []string{"admin"}, ScopeGroupsRead, true},
		{"admin grants users:write", []string{"admin"}, ScopeUsersWrite, true},
		{"admin grants requests:approve", []string{"admin"}, ScopeRequestsApprove, true},
		{"admin grants audit:read", []string{"admin"}, ScopeAuditRead, true},
		// Write implies read
		{"users:write implies users:read", []string{"users:write"}, ScopeUsersRead, true},
		{"groups:write implies groups:read", []string{"groups:write"}, ScopeGroupsRead, true},
		{"permissions:write implies permissions:read", []string{"permissions:write"}, ScopePermissionsRead, true},
		{"keys:write implies keys:read", []string{"keys:write"}, ScopeKeysRead, true},
		// Write does NOT imply unrelated read
		{"groups:write does not imply users:read", []string{"groups:write"}, ScopeUsersRead, false},
		// No match
		{"no scopes", []string{}, ScopeGroupsRead, false},
		{"wrong scope", []string{"users:read"}, ScopeGroupsRead, false},
		{"read does not imply write", []string{"groups:read"}, ScopeGroupsWrite, false},
		{"read does not imply approve", []string{"groups:read"}, ScopeRequestsApprove, false},
		// Multiple scopes, one matches
		{"one of many matches", []string{"users:read", "groups:read"}, ScopeGroupsRead, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasScope(tt.userScopes, tt.required)
			if got != tt.want {
				t.Errorf("HasScope(%v, %q) = %v, want %v", tt.userScopes, tt.required, got, tt.want)
			}
		})
	}
}

func TestHasAnyScope(t *testing.T) {
	tests := []struct {
		name           string
		userScopes     []string
		requiredScopes []Scope
		want           bool
	}{
		{"matches first", []string{"groups:read"}, []Scope{ScopeGroupsRead, ScopeUsersRead}, true},
		{"matches second", []string{"users:read"}, []Scope{ScopeGroupsRead, ScopeUsersRead}, true},
		{"matches none", []string{"audit:read"}, []Scope{ScopeGroupsRead, ScopeUsersRead}, false},
		{"empty required", []string{"groups:read"}, []Scope{}, false},
		{"empty user scopes", []string{}, []Scope{ScopeGroupsRead}, false},
		{"admin matches any", []string{"admin"}, []Scope{ScopeUsersWrite, ScopeRequestsApprove}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasAnyScope(tt.userScopes, tt.requiredScopes)
			if got != tt.want {
				t.Errorf("HasAnyScope(%v, %v) = %v, want %v", tt.userScopes, tt.requiredScopes, got, tt.want)
			}
		})
	}
}

func TestHasAllScopes(t *testing.T) {
	tests := []struct {
		name           string
		userScopes     []string
		requiredScopes []Scope
		want           bool
	}{
		{"has all", []string{"groups:read", "users:read"}, []Scope{ScopeGroupsRead, ScopeUsersRead}, true},
		{"missing one", []string{"groups:read"}, []Scope{ScopeGroupsRead, ScopeUsersRead}, false},
		{"empty required", []string{"groups:read"}, []Scope{}, true},
		{"empty user no requirements", []string{}, []Scope{}, true},
		{"empty user has requirements", []string{}, []Scope{ScopeGroupsRead}, false},
		{"admin has all", []string{"admin"}, []Scope{ScopeGroupsRead, ScopeUsersWrite, ScopeRequestsApprove}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasAllScopes(tt.userScopes, tt.requiredScopes)
			if got != tt.want {
				t.Errorf("HasAllScopes(%v, %v) = %v, want %v", tt.userScopes, tt.requiredScopes, got, tt.want)
			}
		})
	}
}

func TestValidateScopeString(t *testing.T) {
	tests := []struct {
		scope   string
		wantErr bool
	}{
		{"groups:read", false},
		{"admin", false},
		{"audit:read", false},
		{"requests:approve", false},
		{"invalid", true},
		{"", true},
		{"groups:delete", true},
	}

	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			err := ValidateScopeString(tt.scope)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScopeString(%q) error = %v, wantErr %v", tt.scope, err, tt.wantErr)
			}
		})
	}
}

func TestGetDefaultScopes(t *testing.T) {
	scopes := GetDefaultScopes()
	if len(scopes) == 0 {
		t.Fatal("GetDefaultScopes() returned empty slice")
	}
	// All returned scopes must be valid
	if err := ValidateScopes(scopes); err != nil {
		t.Errorf("GetDefaultScopes() returned invalid scopes: %v", err)
	}
}

func TestGetAdminScopes(t *testing.T) {
	scopes := GetAdminScopes()
	if len(scopes) == 0 {
		t.Fatal("GetAdminScopes() returned empty slice")
	}
	// Must contain at least as many scopes as AllScopes()
	if len(scopes) != len(AllScopes()) {
		t.Errorf("GetAdminScopes() len = %d, want %d", len(scopes), len(AllScopes()))
	}
	if err := ValidateScopes(scopes); err != nil {
		t.Errorf("GetAdminScopes() returned invalid scopes: %v", err)
	}
}

func TestAllScopesUnique(t *testing.T) {
	seen := make(map[Scope]bool)
	for _, sc := range AllScopes() {
		if seen[sc] {
			t.Errorf("duplicate scope in AllScopes(): %q", sc)
		}
		seen[sc] = true
	}
}
