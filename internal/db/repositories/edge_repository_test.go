package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
)

var edgeJoinedCols = []string{
	"id", "group_id", "member_user_id", "member_group_id", "role", "active", "expires_at",
	"created_at", "updated_at", "group_name", "member_name", "email",
}

func newEdgeRepo(t *testing.T) (*EdgeRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEdgeRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateEdge
// ---------------------------------------------------------------------------

func TestCreateEdge_SetsID(t *testing.T) {
	repo, mock := newEdgeRepo(t)
	mock.ExpectExec("INSERT INTO group_edges").
		WillReturnResult(sqlmock.NewResult(0, 1))

	userID := "user-1"
	edge := &models.GroupEdge{GroupID: "grp-1", MemberUserID: &userID, Role: "member", Active: true}
	if err := repo.CreateEdge(context.Background(), edge); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edge.ID == "" {
		t.Error("expected ID to be set")
	}
}

// ---------------------------------------------------------------------------
// ListExpiredEdges
// ---------------------------------------------------------------------------

func TestListExpiredEdges(t *testing.T) {
	repo, mock := newEdgeRepo(t)
	userID := "user-1"
	expired := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows(edgeJoinedCols).
		AddRow("edge-1", "grp-1", &userID, nil, "member", true, &expired,
			time.Now(), time.Now(), "team-infra", "alice", "alice@example.com")
	mock.ExpectQuery("SELECT.*FROM group_edges e.*WHERE e.active = true AND e.expires_at").
		WillReturnRows(rows)

	edges, err := repo.ListExpiredEdges(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].GroupName != "team-infra" {
		t.Errorf("GroupName = %s, want team-infra", edges[0].GroupName)
	}
	if edges[0].MemberName != "alice" {
		t.Errorf("MemberName = %s, want alice", edges[0].MemberName)
	}
	if edges[0].MemberEmail != "alice@example.com" {
		t.Errorf("MemberEmail = %s, want alice@example.com", edges[0].MemberEmail)
	}
}

func TestListExpiredEdges_Empty(t *testing.T) {
	repo, mock := newEdgeRepo(t)
	mock.ExpectQuery("SELECT.*FROM group_edges e").
		WillReturnRows(sqlmock.NewRows(edgeJoinedCols))

	edges, err := repo.ListExpiredEdges(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("expected no edges, got %d", len(edges))
	}
}

// ---------------------------------------------------------------------------
// DeactivateEdge
// ---------------------------------------------------------------------------

func TestDeactivateEdge(t *testing.T) {
	repo, mock := newEdgeRepo(t)
	mock.ExpectExec("UPDATE group_edges SET active = false").
		WithArgs(sqlmock.AnyArg(), "edge-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.DeactivateEdge(context.Background(), "edge-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !won {
		t.Error("won = false, want true when the row flipped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// The UPDATE only matches still-active rows; a zero row count means another
// caller deactivated the edge first.
func TestDeactivateEdge_AlreadyInactive(t *testing.T) {
	repo, mock := newEdgeRepo(t)
	mock.ExpectExec("UPDATE group_edges SET active = false").
		WithArgs(sqlmock.AnyArg(), "edge-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.DeactivateEdge(context.Background(), "edge-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if won {
		t.Error("won = true, want false when no row flipped")
	}
}

// ---------------------------------------------------------------------------
// GetUserEdge
// ---------------------------------------------------------------------------

func TestGetUserEdge_NotFound(t *testing.T) {
	repo, mock := newEdgeRepo(t)
	cols := []string{"id", "group_id", "member_user_id", "member_group_id", "role", "active", "expires_at", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT.*FROM group_edges WHERE group_id").
		WithArgs("grp-1", "user-9").
		WillReturnRows(sqlmock.NewRows(cols))

	edge, err := repo.GetUserEdge(context.Background(), "grp-1", "user-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edge != nil {
		t.Errorf("expected nil edge for not found, got %v", edge)
	}
}
