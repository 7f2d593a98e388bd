package permissions

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// permSQLCols are the columns returned by permission SELECT queries.
var permSQLCols = []string{"id", "name", "description", "enabled", "created_at"}

// grantSQLCols are the columns returned by the joined grant SELECT queries.
var grantSQLCols = []string{"id", "permission_id", "group_id", "argument", "created_at", "permission_name", "group_name"}

// groupSQLCols are the columns returned by group SELECT queries.
var groupSQLCols = []string{"id", "name", "description", "email", "enabled", "created_at", "updated_at"}

func samplePermissionRow() *sqlmock.Rows {
	return sqlmock.NewRows(permSQLCols).
		AddRow("p1", "ssh.login", "shell access", true, time.Now())
}

func emptyPermissionRows() *sqlmock.Rows {
	return sqlmock.NewRows(permSQLCols)
}

func sampleGrantRow() *sqlmock.Rows {
	return sqlmock.NewRows(grantSQLCols).
		AddRow("pg1", "p1", "g1", "prod", time.Now(), "ssh.login", "team-db")
}

func emptyGrantRows() *sqlmock.Rows {
	return sqlmock.NewRows(grantSQLCols)
}

func sampleGroupRow() *sqlmock.Rows {
	return sqlmock.NewRows(groupSQLCols).
		AddRow("g1", "team-db", "database team", nil, true, time.Now(), time.Now())
}

// newPermissionRouter creates a gin router with all PermissionHandlers routes registered.
func newPermissionRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewPermissionHandlers(db)

	r := gin.New()
	r.GET("/permissions", h.ListPermissionsHandler())
	r.GET("/permissions/:name", h.GetPermissionHandler())
	r.POST("/permissions", h.CreatePermissionHandler())
	r.DELETE("/permissions/:name", h.DeletePermissionHandler())
	r.POST("/permissions/:name/grants", h.CreateGrantHandler())
	r.DELETE("/permissions/:name/grants/:grant_id", h.DeleteGrantHandler())
	r.GET("/groups/:name/grants", h.ListGroupGrantsHandler())

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
// ListPermissionsHandler
// ---------------------------------------------------------------------------

func TestListPermissionsHandler_Success(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(samplePermissionRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/permissions", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	resp := getJSON(w)
	if resp["permissions"] == nil {
		t.Error("response missing 'permissions' key")
	}
}

func TestListPermissionsHandler_DBError(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/permissions", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetPermissionHandler
// ---------------------------------------------------------------------------

func TestGetPermissionHandler_Success(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())
	mock.ExpectQuery("SELECT").WithArgs("p1").
		WillReturnRows(sampleGrantRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/permissions/ssh.login", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["permission"] == nil {
		t.Error("response missing 'permission' key")
	}
	if resp["grants"] == nil {
		t.Error("response missing 'grants' key")
	}
}

func TestGetPermissionHandler_NotFound(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyPermissionRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/permissions/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// CreatePermissionHandler
// ---------------------------------------------------------------------------

func TestCreatePermissionHandler_Success(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("db.admin").
		WillReturnRows(emptyPermissionRows())
	mock.ExpectExec("INSERT INTO permissions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/permissions",
		jsonBody(map[string]string{"name": "db.admin", "description": "database admin"})))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["permission"] == nil {
		t.Error("response missing 'permission' key")
	}
}

func TestCreatePermissionHandler_InvalidJSON(t *testing.T) {
	_, r := newPermissionRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/permissions", bytes.NewBufferString("{bad")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreatePermissionHandler_InvalidName(t *testing.T) {
	_, r := newPermissionRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/permissions",
		jsonBody(map[string]string{"name": "has spaces"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreatePermissionHandler_Conflict(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/permissions",
		jsonBody(map[string]string{"name": "ssh.login"})))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

// ---------------------------------------------------------------------------
// DeletePermissionHandler
// ---------------------------------------------------------------------------

func TestDeletePermissionHandler_Success(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())
	mock.ExpectExec("DELETE FROM permissions").WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/permissions/ssh.login", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestDeletePermissionHandler_NotFound(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(emptyPermissionRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/permissions/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// CreateGrantHandler
// ---------------------------------------------------------------------------

func TestCreateGrantHandler_Success(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())
	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("g1").
		WillReturnRows(emptyGrantRows())
	mock.ExpectExec("INSERT INTO permission_grants").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/permissions/ssh.login/grants",
		jsonBody(map[string]string{"group": "team-db", "argument": "staging"})))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["grant"] == nil {
		t.Error("response missing 'grant' key")
	}
}

func TestCreateGrantHandler_GroupNotFound(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())
	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(groupSQLCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/permissions/ssh.login/grants",
		jsonBody(map[string]string{"group": "missing"})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateGrantHandler_Duplicate(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())
	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	// Existing grant with the same permission and argument
	mock.ExpectQuery("SELECT").WithArgs("g1").
		WillReturnRows(sampleGrantRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/permissions/ssh.login/grants",
		jsonBody(map[string]string{"group": "team-db", "argument": "prod"})))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestCreateGrantHandler_SamePermissionDifferentArgument(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())
	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("g1").
		WillReturnRows(sampleGrantRow())
	mock.ExpectExec("INSERT INTO permission_grants").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/permissions/ssh.login/grants",
		jsonBody(map[string]string{"group": "team-db", "argument": "staging"})))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// ListGroupGrantsHandler
// ---------------------------------------------------------------------------

func TestListGroupGrantsHandler_Success(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("team-db").
		WillReturnRows(sampleGroupRow())
	mock.ExpectQuery("SELECT").WithArgs("g1").
		WillReturnRows(sampleGrantRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/groups/team-db/grants", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["grants"] == nil {
		t.Error("response missing 'grants' key")
	}
}

func TestListGroupGrantsHandler_GroupNotFound(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(groupSQLCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/groups/missing/grants", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// DeleteGrantHandler
// ---------------------------------------------------------------------------

func TestDeleteGrantHandler_Success(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())
	mock.ExpectQuery("SELECT").WithArgs("p1").
		WillReturnRows(sampleGrantRow())
	mock.ExpectExec("DELETE FROM permission_grants").WithArgs("pg1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO counters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/permissions/ssh.login/grants/pg1", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestDeleteGrantHandler_NotFoundForPermission(t *testing.T) {
	mock, r := newPermissionRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ssh.login").
		WillReturnRows(samplePermissionRow())
	mock.ExpectQuery("SELECT").WithArgs("p1").
		WillReturnRows(sampleGrantRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/permissions/ssh.login/grants/other", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
