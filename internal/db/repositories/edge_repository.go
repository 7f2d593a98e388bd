// edge_repository.go implements EdgeRepository, providing database queries for
// membership edges: creation, role changes, expiry handling, and the listings
// the membership graph is rebuilt from.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
)

// EdgeRepository handles membership edge database operations
type EdgeRepository struct {
	db *sql.DB
}

// NewEdgeRepository creates a new EdgeRepository
func NewEdgeRepository(db *sql.DB) *EdgeRepository {
	return &EdgeRepository{db: db}
}

const edgeColumns = `id, group_id, member_user_id, member_group_id, role, active, expires_at, created_at, updated_at`

func scanEdge(row interface {
	Scan(dest ...interface{}) error
}) (*models.GroupEdge, error) {
	edge := &models.GroupEdge{}
	err := row.Scan(
		&edge.ID,
		&edge.GroupID,
		&edge.MemberUserID,
		&edge.MemberGroupID,
		&edge.Role,
		&edge.Active,
		&edge.ExpiresAt,
		&edge.CreatedAt,
		&edge.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// CreateEdge creates a new membership edge
func (r *EdgeRepository) CreateEdge(ctx context.Context, edge *models.GroupEdge) error {
	edge.ID = uuid.New().String()
	edge.CreatedAt = time.Now()
	edge.UpdatedAt = time.Now()

	query := `
		INSERT INTO group_edges (id, group_id, member_user_id, member_group_id, role, active, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		edge.ID,
		edge.GroupID,
		edge.MemberUserID,
		edge.MemberGroupID,
		edge.Role,
		edge.Active,
		edge.ExpiresAt,
		edge.CreatedAt,
		edge.UpdatedAt,
	)

	return err
}

// GetEdgeByID retrieves an edge by ID
func (r *EdgeRepository) GetEdgeByID(ctx context.Context, edgeID string) (*models.GroupEdge, error) {
	query := `SELECT ` + edgeColumns + ` FROM group_edges WHERE id = $1`
	return scanEdge(r.db.QueryRowContext(ctx, query, edgeID))
}

// GetUserEdge retrieves the edge for a specific user in a specific group
func (r *EdgeRepository) GetUserEdge(ctx context.Context, groupID, userID string) (*models.GroupEdge, error) {
	query := `SELECT ` + edgeColumns + ` FROM group_edges WHERE group_id = $1 AND member_user_id = $2`
	return scanEdge(r.db.QueryRowContext(ctx, query, groupID, userID))
}

// GetGroupEdge retrieves the edge for a specific subgroup nested in a specific group
func (r *EdgeRepository) GetGroupEdge(ctx context.Context, groupID, memberGroupID string) (*models.GroupEdge, error) {
	query := `SELECT ` + edgeColumns + ` FROM group_edges WHERE group_id = $1 AND member_group_id = $2`
	return scanEdge(r.db.QueryRowContext(ctx, query, groupID, memberGroupID))
}

// ListEdgesForGroup retrieves all active edges of a group, with member names joined
func (r *EdgeRepository) ListEdgesForGroup(ctx context.Context, groupID string) ([]*models.GroupEdge, error) {
	query := `
		SELECT e.id, e.group_id, e.member_user_id, e.member_group_id, e.role, e.active, e.expires_at, e.created_at, e.updated_at,
		       g.name, COALESCE(u.username, mg.name, '')
		FROM group_edges e
		JOIN groups g ON g.id = e.group_id
		LEFT JOIN users u ON u.id = e.member_user_id
		LEFT JOIN groups mg ON mg.id = e.member_group_id
		WHERE e.group_id = $1 AND e.active = true
		ORDER BY e.created_at
	`

	return r.queryEdgesJoined(ctx, query, groupID)
}

// ListEdgesForUser retrieves all active edges where the user is the member
func (r *EdgeRepository) ListEdgesForUser(ctx context.Context, userID string) ([]*models.GroupEdge, error) {
	query := `
		SELECT e.id, e.group_id, e.member_user_id, e.member_group_id, e.role, e.active, e.expires_at, e.created_at, e.updated_at,
		       g.name, COALESCE(u.username, mg.name, '')
		FROM group_edges e
		JOIN groups g ON g.id = e.group_id
		LEFT JOIN users u ON u.id = e.member_user_id
		LEFT JOIN groups mg ON mg.id = e.member_group_id
		WHERE e.member_user_id = $1 AND e.active = true
		ORDER BY g.name
	`

	return r.queryEdgesJoined(ctx, query, userID)
}

func (r *EdgeRepository) queryEdgesJoined(ctx context.Context, query string, args ...interface{}) ([]*models.GroupEdge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*models.GroupEdge
	for rows.Next() {
		edge := &models.GroupEdge{}
		if err := rows.Scan(
			&edge.ID,
			&edge.GroupID,
			&edge.MemberUserID,
			&edge.MemberGroupID,
			&edge.Role,
			&edge.Active,
			&edge.ExpiresAt,
			&edge.CreatedAt,
			&edge.UpdatedAt,
			&edge.GroupName,
			&edge.MemberName,
		); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}

	return edges, rows.Err()
}

// UpdateEdge updates an edge's role, active state, and expiry
func (r *EdgeRepository) UpdateEdge(ctx context.Context, edge *models.GroupEdge) error {
	edge.UpdatedAt = time.Now()

	query := `
		UPDATE group_edges
		SET role = $1, active = $2, expires_at = $3, updated_at = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(ctx, query,
		edge.Role,
		edge.Active,
		edge.ExpiresAt,
		edge.UpdatedAt,
		edge.ID,
	)

	return err
}

// DeleteEdge deletes an edge by ID
func (r *EdgeRepository) DeleteEdge(ctx context.Context, edgeID string) error {
	query := `DELETE FROM group_edges WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, edgeID)
	return err
}

// ListExpiredEdges retrieves edges that are still active but past their expiry,
// with group and member names plus the member's email joined for notification
// emails
func (r *EdgeRepository) ListExpiredEdges(ctx context.Context, now time.Time) ([]*models.GroupEdge, error) {
	query := `
		SELECT e.id, e.group_id, e.member_user_id, e.member_group_id, e.role, e.active, e.expires_at, e.created_at, e.updated_at,
		       g.name, COALESCE(u.username, mg.name, ''), COALESCE(u.email, '')
		FROM group_edges e
		JOIN groups g ON g.id = e.group_id
		LEFT JOIN users u ON u.id = e.member_user_id
		LEFT JOIN groups mg ON mg.id = e.member_group_id
		WHERE e.active = true AND e.expires_at IS NOT NULL AND e.expires_at <= $1
		ORDER BY e.expires_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*models.GroupEdge
	for rows.Next() {
		edge := &models.GroupEdge{}
		if err := rows.Scan(
			&edge.ID,
			&edge.GroupID,
			&edge.MemberUserID,
			&edge.MemberGroupID,
			&edge.Role,
			&edge.Active,
			&edge.ExpiresAt,
			&edge.CreatedAt,
			&edge.UpdatedAt,
			&edge.GroupName,
			&edge.MemberName,
			&edge.MemberEmail,
		); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// DeactivateEdge marks an edge inactive, preserving it for history. It only
// flips edges that are still active and reports whether this call did the
// flip, so concurrent sweeps on different servers deactivate (and notify for)
// each edge exactly once.
func (r *EdgeRepository) DeactivateEdge(ctx context.Context, edgeID string) (bool, error) {
	query := `UPDATE group_edges SET active = false, updated_at = $1 WHERE id = $2 AND active = true`
	result, err := r.db.ExecContext(ctx, query, time.Now(), edgeID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
