package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var keyCols = []string{
	"id", "user_id", "public_key", "fingerprint", "key_type", "key_size", "comment", "created_at", "username",
}

func sampleKeyRow() *sqlmock.Rows {
	return sqlmock.NewRows(keyCols).
		AddRow("key-1", "user-1", "ssh-ed25519 AAAA...", "SHA256:abcdef", "ssh-ed25519", 256, "laptop", time.Now(), "alice")
}

func newKeyRepo(t *testing.T) (*PublicKeyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPublicKeyRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// Sort key validation
// ---------------------------------------------------------------------------

func TestIsValidKeySort(t *testing.T) {
	for _, key := range []string{"user", "fingerprint", "created"} {
		if !IsValidKeySort(key) {
			t.Errorf("IsValidKeySort(%q) should be true", key)
		}
	}
	for _, key := range []string{"", "age", "username; DROP TABLE users"} {
		if IsValidKeySort(key) {
			t.Errorf("IsValidKeySort(%q) should be false", key)
		}
	}
}

// ---------------------------------------------------------------------------
// ListKeys
// ---------------------------------------------------------------------------

func TestListKeys_EnabledOnly(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM public_keys k.*WHERE u.enabled").
		WithArgs(true, 100, 0).
		WillReturnRows(sampleKeyRow())

	keys, err := repo.ListKeys(context.Background(), KeyListFilters{Enabled: true, SortBy: "user", Limit: 100, Offset: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
	if keys[0].Username != "alice" {
		t.Errorf("Username = %s, want alice", keys[0].Username)
	}
}

func TestListKeys_FingerprintFilter(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM public_keys k.*AND k.fingerprint").
		WithArgs(true, "SHA256:abcdef", 100, 0).
		WillReturnRows(sampleKeyRow())

	keys, err := repo.ListKeys(context.Background(), KeyListFilters{
		Enabled: true, Fingerprint: "SHA256:abcdef", SortBy: "user", Limit: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
}

func TestListKeys_UnknownSortFallsBackToUser(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectQuery("SELECT.*ORDER BY u.username, k.created_at").
		WithArgs(true, 100, 0).
		WillReturnRows(sqlmock.NewRows(keyCols))

	_, err := repo.ListKeys(context.Background(), KeyListFilters{Enabled: true, SortBy: "bogus", Limit: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// CountKeys / CountKeyOwners
// ---------------------------------------------------------------------------

func TestCountKeyOwners(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(DISTINCT k.user_id\\)").
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountKeyOwners(context.Background(), KeyListFilters{Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestCountKeys_DBError(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnError(errDB)

	_, err := repo.CountKeys(context.Background(), KeyListFilters{Enabled: true})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetKeyByFingerprint
// ---------------------------------------------------------------------------

func TestGetKeyByFingerprint_NotFound(t *testing.T) {
	repo, mock := newKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM public_keys k.*WHERE k.user_id").
		WithArgs("user-1", "SHA256:nope").
		WillReturnRows(sqlmock.NewRows(keyCols))

	key, err := repo.GetKeyByFingerprint(context.Background(), "user-1", "SHA256:nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil key for not found, got %v", key)
	}
}
