package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// auditSQLCols are the columns returned by audit log SELECT queries.
var auditSQLCols = []string{"id", "actor", "action", "resource_type", "resource_id", "details", "ip_address", "created_at"}

func sampleAuditRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditSQLCols).
		AddRow("a1", "alice", "request.approve", "membership_request", "r1", []byte(`{"group":"team-db"}`), "10.0.0.1", time.Now())
}

// newAuditRouter creates a gin router with the audit route registered.
func newAuditRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAuditHandlers(repositories.NewAuditRepository(db))

	r := gin.New()
	r.GET("/audit", h.ListAuditLogsHandler())

	return mock, r
}

// ---------------------------------------------------------------------------
// ListAuditLogsHandler
// ---------------------------------------------------------------------------

func TestListAuditLogsHandler_Success(t *testing.T) {
	mock, r := newAuditRouter(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sampleAuditRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["logs"] == nil {
		t.Error("response missing 'logs' key")
	}
	if resp["pagination"] == nil {
		t.Error("response missing 'pagination' key")
	}
}

func TestListAuditLogsHandler_ActorFilter(t *testing.T) {
	mock, r := newAuditRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("alice", 20, 0).
		WillReturnRows(sampleAuditRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit?actor=alice", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestListAuditLogsHandler_InvalidStartTime(t *testing.T) {
	_, r := newAuditRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit?start=yesterday", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListAuditLogsHandler_DBError(t *testing.T) {
	mock, r := newAuditRouter(t)

	mock.ExpectQuery("SELECT").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/audit", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
