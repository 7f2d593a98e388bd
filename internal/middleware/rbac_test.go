package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/auth"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/graph"
)

// newScopeRouter builds a gin engine where:
//  1. A setup handler sets c["scopes"] to userScopes (if non-nil)
//  2. The provided middleware runs
//  3. A final handler returns 200 {"ok":true} if not aborted
func newScopeRouter(mid gin.HandlerFunc, userScopes interface{}) *gin.Engine {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if userScopes != nil {
			c.Set("scopes", userScopes)
		}
	}, mid, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func do(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	return w
}

func isAbortedWith403(w *httptest.ResponseRecorder) bool {
	return w.Code == http.StatusForbidden
}

func isOK(w *httptest.ResponseRecorder) bool {
	return w.Code == http.StatusOK
}

// ---------------------------------------------------------------------------
// RequireScope
// ---------------------------------------------------------------------------

func TestRequireScope(t *testing.T) {
	t.Run("no scopes in context returns 403", func(t *testing.T) {
		w := do(newScopeRouter(RequireScope("users:read"), nil))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("wrong type in context returns 403", func(t *testing.T) {
		// Put a non-[]string value so the type assertion fails
		w := do(newScopeRouter(RequireScope("users:read"), "not-a-slice"))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("missing scope returns 403", func(t *testing.T) {
		w := do(newScopeRouter(RequireScope("users:write"), []string{"audit:read"}))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("exact scope match allows request", func(t *testing.T) {
		w := do(newScopeRouter(RequireScope("users:read"), []string{"users:read"}))
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("multiple scopes includes required scope", func(t *testing.T) {
		scopes := []string{"audit:read", "users:read", "groups:write"}
		w := do(newScopeRouter(RequireScope("users:read"), scopes))
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("403 body contains error field", func(t *testing.T) {
		w := do(newScopeRouter(RequireScope("users:read"), []string{}))
		var body map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("body parse error: %v", err)
		}
		if _, ok := body["error"]; !ok {
			t.Error("403 response body should have 'error' field")
		}
	})
}

// ---------------------------------------------------------------------------
// RequireAnyScope
// ---------------------------------------------------------------------------

func TestRequireAnyScope(t *testing.T) {
	t.Run("no scopes in context returns 403", func(t *testing.T) {
		w := do(newScopeRouter(RequireAnyScope("users:read", "users:write"), nil))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("wrong type in context returns 403", func(t *testing.T) {
		w := do(newScopeRouter(RequireAnyScope("users:read"), 42))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("no matching scope returns 403", func(t *testing.T) {
		w := do(newScopeRouter(RequireAnyScope("users:read", "users:write"), []string{"audit:read"}))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("first scope matches allows request", func(t *testing.T) {
		w := do(newScopeRouter(RequireAnyScope("users:read", "users:write"), []string{"users:read"}))
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("second scope matches allows request", func(t *testing.T) {
		w := do(newScopeRouter(RequireAnyScope("users:read", "users:write"), []string{"users:write"}))
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("single required scope present allows request", func(t *testing.T) {
		w := do(newScopeRouter(RequireAnyScope(auth.ScopeKeysWrite), []string{"keys:write"}))
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// RequireAllScopes
// ---------------------------------------------------------------------------

func TestRequireAllScopes(t *testing.T) {
	t.Run("no scopes in context returns 403", func(t *testing.T) {
		w := do(newScopeRouter(RequireAllScopes("users:read", "users:write"), nil))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("wrong type in context returns 403", func(t *testing.T) {
		w := do(newScopeRouter(RequireAllScopes("users:read"), true))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("missing one of two scopes returns 403", func(t *testing.T) {
		w := do(newScopeRouter(RequireAllScopes("users:read", "users:write"), []string{"users:read"}))
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("all scopes present allows request", func(t *testing.T) {
		scopes := []string{"users:read", "users:write"}
		w := do(newScopeRouter(RequireAllScopes("users:read", "users:write"), scopes))
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("superset of required scopes allows request", func(t *testing.T) {
		scopes := []string{"users:read", "users:write", "audit:read"}
		w := do(newScopeRouter(RequireAllScopes("users:read", "users:write"), scopes))
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("empty required scopes list allows request", func(t *testing.T) {
		w := do(newScopeRouter(RequireAllScopes(), []string{}))
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// RequireAdmin
// ---------------------------------------------------------------------------

func newUserRouter(mid gin.HandlerFunc, user *models.User) *gin.Engine {
	r := gin.New()
	r.GET("/groups/:name", func(c *gin.Context) {
		if user != nil {
			c.Set("user", user)
		}
	}, mid, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func doPath(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAdmin(t *testing.T) {
	t.Run("no user in context returns 403", func(t *testing.T) {
		w := doPath(newUserRouter(RequireAdmin(), nil), "/groups/x")
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("non-admin returns 403", func(t *testing.T) {
		user := &models.User{ID: "u1", Username: "alice", Role: models.SystemRoleUser}
		w := doPath(newUserRouter(RequireAdmin(), user), "/groups/x")
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("admin allowed", func(t *testing.T) {
		user := &models.User{ID: "u1", Username: "root", Role: models.SystemRoleAdmin}
		w := doPath(newUserRouter(RequireAdmin(), user), "/groups/x")
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// RequireGroupRole
// ---------------------------------------------------------------------------

// roleGraph holds a single group "team-db" where alice is a manager and bob a
// plain member.
func roleGraph() *graph.Graph {
	aliceID, bobID := "u1", "u2"
	return graph.NewFromSnapshot(&repositories.GraphSnapshot{
		Users: []*models.User{
			{ID: aliceID, Username: "alice", Enabled: true},
			{ID: bobID, Username: "bob", Enabled: true},
		},
		Groups: []*models.Group{
			{ID: "g1", Name: "team-db", Enabled: true},
		},
		Edges: []*models.GroupEdge{
			{ID: "e1", GroupID: "g1", MemberUserID: &aliceID, Role: models.RoleManager, Active: true},
			{ID: "e2", GroupID: "g1", MemberUserID: &bobID, Role: models.RoleMember, Active: true},
		},
	})
}

func TestRequireGroupRole(t *testing.T) {
	g := roleGraph()
	mid := RequireGroupRole(g, "name", models.RoleManager, models.RoleOwner, models.RoleNpOwner)

	t.Run("manager allowed", func(t *testing.T) {
		user := &models.User{ID: "u1", Username: "alice", Role: models.SystemRoleUser}
		w := doPath(newUserRouter(mid, user), "/groups/team-db")
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("plain member returns 403", func(t *testing.T) {
		user := &models.User{ID: "u2", Username: "bob", Role: models.SystemRoleUser}
		w := doPath(newUserRouter(mid, user), "/groups/team-db")
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("unknown group returns 403", func(t *testing.T) {
		user := &models.User{ID: "u1", Username: "alice", Role: models.SystemRoleUser}
		w := doPath(newUserRouter(mid, user), "/groups/no-such-group")
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("admin bypasses role check", func(t *testing.T) {
		user := &models.User{ID: "u9", Username: "root", Role: models.SystemRoleAdmin}
		w := doPath(newUserRouter(mid, user), "/groups/team-db")
		if !isOK(w) {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("no user in context returns 403", func(t *testing.T) {
		w := doPath(newUserRouter(mid, nil), "/groups/team-db")
		if !isAbortedWith403(w) {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})
}
