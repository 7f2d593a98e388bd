package groups

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/graph"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// groupSQLCols are the columns returned by group SELECT queries.
var groupSQLCols = []string{"id", "name", "description", "email", "enabled", "created_at", "updated_at"}

// edgeSQLCols are the columns returned by unjoined edge SELECT queries.
var edgeSQLCols = []string{"id", "group_id", "member_user_id", "member_group_id", "role", "active", "expires_at", "created_at", "updated_at"}

// edgeJoinedCols are edgeSQLCols plus the joined group and member names.
var edgeJoinedCols = append(append([]string{}, edgeSQLCols...), "group_name", "member_name")

// userSQLCols are the columns returned by user SELECT queries.
var userSQLCols = []string{"id", "username", "email", "full_name", "role", "enabled", "is_service_account", "created_at", "updated_at", "last_login_at"}

func sampleGroupRow() *sqlmock.Rows {
	return sqlmock.NewRows(groupSQLCols).
		AddRow("g1", "team-db", "database team", nil, true, time.Now(), time.Now())
}

func emptyGroupRows() *sqlmock.Rows {
	return sqlmock.NewRows(groupSQLCols)
}

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userSQLCols).
		AddRow("u1", "alice", "alice@example.com", nil, "user", true, false, time.Now(), time.Now(), nil)
}

func emptyEdgeRows() *sqlmock.Rows {
	return sqlmock.NewRows(edgeSQLCols)
}

// testGroupGraph builds a graph snapshot containing team-db with alice as a
// member, for the graph view handler.
func testGroupGraph() *graph.Graph {
	u1 := "u1"
	return graph.NewFromSnapshot(&repositories.GraphSnapshot{
		Checkpoint:     1,
		CheckpointTime: time.Now(),
		Users:          []*models.User{{ID: "u1", Username: "alice", Email: "alice@example.com", Enabled: true}},
		Groups:         []*models.Group{{ID: "g1", Name: "team-db", Enabled: true}},
		Edges: []*models.GroupEdge{
			{ID: "e1", GroupID: "g1", MemberUserID: &u1, Role: "member", Active: true},
		},
	})
}

// newGroupRouter creates a gin router with all GroupHandlers routes registered.
func newGroupRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewGroupHandlers(db, testGroupGraph())

	r := gin.New()
	r.GET("/groups", h.ListGroupsHandler())
	r.GET("/groups/:name", h.GetGroupHandler())
	r.GET("/groups/:name/graph", h.GetGroupGraphHandler())
	r.POST("/groups", h.CreateGroupHandler())
	r.PUT("/groups/:name", h.UpdateGroupHandler())
	r.DELETE("/groups/:name", h.DeleteGroupHandler())
	r.POST("/groups/:name/members", h.AddMemberHandler())
	r.PUT("/groups/:name/members/:edge_id", h.UpdateMemberHandler())
	r.DELETE("/groups/:name/members/:edge_id", h.RemoveMemberHandler())

	return mock, r
}

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}

// errDB is a sentinel error for DB failures in tests.
var errDB = &dbError{"database error"}

type dbError struct{ msg string }

func (e *dbError) Error() string { return e.msg }

// ---------------------------------------------------------------------------
// ListGroupsHandler
// ---------------------------------------------------------------------------

func TestListGroupsHandler_Success(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT").
		WillReturnRows(sampleGroupRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/groups", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	resp := getJSON(w)
	if resp["groups"] == nil {
		t.Error("response missing 'groups' key")
	}
	if resp["pagination"] == nil {
		t.Error("response missing 'pagination' key")
	}
}

func TestListGroupsHandler_DBError(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/groups", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetGroupHandler
// ---------------------------------------------------------------------------

func TestGetGroupHandler_Success(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(edgeJoinedCols).
			AddRow("e1", "g1", "u1", nil, "member", true, nil, time.Now(), time.Now(), "team-db", "alice"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/groups/team-db", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	resp := getJSON(w)
	if resp["group"] == nil {
		t.Error("response missing 'group' key")
	}
	if resp["members"] == nil {
		t.Error("response missing 'members' key")
	}
}

func TestGetGroupHandler_NotFound(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyGroupRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/groups/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// CreateGroupHandler
// ---------------------------------------------------------------------------

func TestCreateGroupHandler_Success(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-new").
		WillReturnRows(emptyGroupRows())
	mock.ExpectExec("INSERT INTO groups").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups",
		jsonBody(map[string]string{"name": "team-new", "description": "a new team"})))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["group"] == nil {
		t.Error("response missing 'group' key")
	}
}

func TestCreateGroupHandler_InvalidJSON(t *testing.T) {
	_, r := newGroupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups", bytes.NewBufferString("{bad json")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateGroupHandler_InvalidName(t *testing.T) {
	_, r := newGroupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups",
		jsonBody(map[string]string{"name": "team with spaces"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateGroupHandler_Conflict(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups",
		jsonBody(map[string]string{"name": "team-db"})))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

// ---------------------------------------------------------------------------
// UpdateGroupHandler
// ---------------------------------------------------------------------------

func TestUpdateGroupHandler_Success(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectExec("UPDATE groups").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	desc := "updated description"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/groups/team-db",
		jsonBody(map[string]*string{"description": &desc})))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestUpdateGroupHandler_NotFound(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyGroupRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/groups/missing",
		jsonBody(map[string]bool{"enabled": false})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// DeleteGroupHandler
// ---------------------------------------------------------------------------

func TestDeleteGroupHandler_Success(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectExec("DELETE FROM groups").WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/groups/team-db", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestDeleteGroupHandler_NotFound(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyGroupRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/groups/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetGroupGraphHandler
// ---------------------------------------------------------------------------

func TestGetGroupGraphHandler_Success(t *testing.T) {
	_, r := newGroupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/groups/team-db/graph", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestGetGroupGraphHandler_NotInGraph(t *testing.T) {
	_, r := newGroupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/groups/nonexistent/graph", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// AddMemberHandler
// ---------------------------------------------------------------------------

func TestAddMemberHandler_BothUsernameAndGroup(t *testing.T) {
	_, r := newGroupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"username": "alice", "group": "team-infra"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAddMemberHandler_NeitherUsernameNorGroup(t *testing.T) {
	_, r := newGroupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"role": "member"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAddMemberHandler_InvalidRole(t *testing.T) {
	_, r := newGroupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"username": "alice", "role": "superuser"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAddMemberHandler_SubgroupRoleRestricted(t *testing.T) {
	_, r := newGroupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"group": "team-infra", "role": "owner"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAddMemberHandler_PastExpiry(t *testing.T) {
	_, r := newGroupRouter(t)

	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"username": "alice", "expires_at": past})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAddMemberHandler_UserSuccess(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("alice").
		WillReturnRows(sampleUserRow())
	mock.ExpectQuery("SELECT").WithArgs("g1", "u1").
		WillReturnRows(emptyEdgeRows())
	mock.ExpectExec("INSERT INTO group_edges").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"username": "alice", "role": "manager"})))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["edge"] == nil {
		t.Error("response missing 'edge' key")
	}
}

func TestAddMemberHandler_UserNotFound(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userSQLCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"username": "ghost"})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAddMemberHandler_ActiveEdgeConflict(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("alice").
		WillReturnRows(sampleUserRow())
	mock.ExpectQuery("SELECT").WithArgs("g1", "u1").
		WillReturnRows(sqlmock.NewRows(edgeSQLCols).
			AddRow("e1", "g1", "u1", nil, "member", true, nil, time.Now(), time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"username": "alice"})))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestAddMemberHandler_RevivesInactiveEdge(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("alice").
		WillReturnRows(sampleUserRow())
	// Inactive edge from an earlier membership
	mock.ExpectQuery("SELECT").WithArgs("g1", "u1").
		WillReturnRows(sqlmock.NewRows(edgeSQLCols).
			AddRow("e1", "g1", "u1", nil, "member", false, nil, time.Now(), time.Now()))
	mock.ExpectExec("UPDATE group_edges").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"username": "alice", "role": "owner"})))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
}

func TestAddMemberHandler_SelfMembership(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	// Member group lookup resolves to the same group
	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"group": "team-db"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAddMemberHandler_SubgroupSuccess(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("team-infra").
		WillReturnRows(sqlmock.NewRows(groupSQLCols).
			AddRow("g2", "team-infra", "", nil, true, time.Now(), time.Now()))
	mock.ExpectQuery("SELECT").WithArgs("g1", "g2").
		WillReturnRows(emptyEdgeRows())
	mock.ExpectExec("INSERT INTO group_edges").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/team-db/members",
		jsonBody(map[string]string{"group": "team-infra"})))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// UpdateMemberHandler
// ---------------------------------------------------------------------------

func TestUpdateMemberHandler_Success(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(edgeSQLCols).
			AddRow("e1", "g1", "u1", nil, "member", true, nil, time.Now(), time.Now()))
	mock.ExpectExec("UPDATE group_edges").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	role := "manager"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/groups/team-db/members/e1",
		jsonBody(map[string]*string{"role": &role})))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["edge"] == nil {
		t.Error("response missing 'edge' key")
	}
}

func TestUpdateMemberHandler_EdgeNotInGroup(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	// Edge belongs to another group
	mock.ExpectQuery("SELECT").WithArgs("e9").
		WillReturnRows(sqlmock.NewRows(edgeSQLCols).
			AddRow("e9", "g2", "u1", nil, "member", true, nil, time.Now(), time.Now()))

	role := "manager"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/groups/team-db/members/e9",
		jsonBody(map[string]*string{"role": &role})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateMemberHandler_SubgroupRoleRestricted(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	// Subgroup edge: member_group_id set instead of member_user_id
	mock.ExpectQuery("SELECT").WithArgs("e2").
		WillReturnRows(sqlmock.NewRows(edgeSQLCols).
			AddRow("e2", "g1", nil, "g2", "member", true, nil, time.Now(), time.Now()))

	role := "owner"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/groups/team-db/members/e2",
		jsonBody(map[string]*string{"role": &role})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateMemberHandler_ClearExpiry(t *testing.T) {
	mock, r := newGroupRouter(t)

	expiry := time.Now().Add(24 * time.Hour)
	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(edgeSQLCols).
			AddRow("e1", "g1", "u1", nil, "member", true, expiry, time.Now(), time.Now()))
	mock.ExpectExec("UPDATE group_edges").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	empty := ""
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/groups/team-db/members/e1",
		jsonBody(map[string]*string{"expires_at": &empty})))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// RemoveMemberHandler
// ---------------------------------------------------------------------------

func TestRemoveMemberHandler_Success(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(edgeSQLCols).
			AddRow("e1", "g1", "u1", nil, "member", true, nil, time.Now(), time.Now()))
	mock.ExpectExec("UPDATE group_edges").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/groups/team-db/members/e1", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// The edge was active when fetched but a concurrent removal (or the expiry
// sweep) flipped it before our UPDATE ran.
func TestRemoveMemberHandler_AlreadyRemoved(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(edgeSQLCols).
			AddRow("e1", "g1", "u1", nil, "member", true, nil, time.Now(), time.Now()))
	mock.ExpectExec("UPDATE group_edges").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/groups/team-db/members/e1", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRemoveMemberHandler_EdgeNotFound(t *testing.T) {
	mock, r := newGroupRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyEdgeRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/groups/team-db/members/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
