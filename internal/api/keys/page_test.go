package keys

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// parseKeyPageForm
// ---------------------------------------------------------------------------

// parseForm runs parseKeyPageForm against a raw query string.
func parseForm(t *testing.T, rawQuery string) repositories.KeyListFilters {
	t.Helper()
	var filters repositories.KeyListFilters
	r := gin.New()
	r.GET("/keys", func(c *gin.Context) {
		filters = parseKeyPageForm(c)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/keys?"+rawQuery, nil))
	return filters
}

func TestParseKeyPageForm_Defaults(t *testing.T) {
	filters := parseForm(t, "")

	if !filters.Enabled {
		t.Error("Enabled should default to true")
	}
	if filters.SortBy != "user" {
		t.Errorf("SortBy = %s, want user", filters.SortBy)
	}
	if filters.Limit != defaultPageLimit {
		t.Errorf("Limit = %d, want %d", filters.Limit, defaultPageLimit)
	}
	if filters.Offset != 0 {
		t.Errorf("Offset = %d, want 0", filters.Offset)
	}
}

func TestParseKeyPageForm_DisabledUsers(t *testing.T) {
	if filters := parseForm(t, "enabled=false"); filters.Enabled {
		t.Error("enabled=false should filter to disabled users")
	}
	if filters := parseForm(t, "enabled=0"); filters.Enabled {
		t.Error("enabled=0 should filter to disabled users")
	}
	if filters := parseForm(t, "enabled=banana"); !filters.Enabled {
		t.Error("unrecognized enabled value should keep the default")
	}
}

func TestParseKeyPageForm_SortBy(t *testing.T) {
	if filters := parseForm(t, "sort_by=created"); filters.SortBy != "created" {
		t.Errorf("SortBy = %s, want created", filters.SortBy)
	}
	if filters := parseForm(t, "sort_by=bogus"); filters.SortBy != "user" {
		t.Errorf("unknown sort key should fall back to user, got %s", filters.SortBy)
	}
}

func TestParseKeyPageForm_LimitClamp(t *testing.T) {
	if filters := parseForm(t, "limit=50"); filters.Limit != 50 {
		t.Errorf("Limit = %d, want 50", filters.Limit)
	}
	if filters := parseForm(t, "limit=99999"); filters.Limit != maxPageLimit {
		t.Errorf("Limit = %d, want clamp to %d", filters.Limit, maxPageLimit)
	}
	if filters := parseForm(t, "limit=-5"); filters.Limit != defaultPageLimit {
		t.Errorf("Limit = %d, negative values should keep the default", filters.Limit)
	}
}

func TestParseKeyPageForm_Fingerprint(t *testing.T) {
	filters := parseForm(t, "fingerprint=SHA256:abc")
	if filters.Fingerprint != "SHA256:abc" {
		t.Errorf("Fingerprint = %s, want SHA256:abc", filters.Fingerprint)
	}
}

// ---------------------------------------------------------------------------
// UserKeysPageHandler
// ---------------------------------------------------------------------------

func TestUserKeysPageHandler_RendersHTML(t *testing.T) {
	mock, r := newKeyRouter(t, nil, nil)

	mock.ExpectQuery("SELECT COUNT\\(DISTINCT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT").
		WillReturnRows(sampleKeyRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users/public-keys", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %s, want text/html", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "SHA256:abc") {
		t.Error("page should list the key fingerprint")
	}
	if !strings.Contains(body, "alice") {
		t.Error("page should list the key owner")
	}
}

func TestUserKeysPageHandler_DBError(t *testing.T) {
	mock, r := newKeyRouter(t, nil, nil)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users/public-keys", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
