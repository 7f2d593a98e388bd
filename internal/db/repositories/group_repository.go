// group_repository.go implements GroupRepository, providing database queries
// for group CRUD and listing.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
)

// GroupRepository handles group database operations
type GroupRepository struct {
	db *sql.DB
}

// NewGroupRepository creates a new GroupRepository
func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

const groupColumns = `id, name, description, email, enabled, created_at, updated_at`

func scanGroup(row interface {
	Scan(dest ...interface{}) error
}) (*models.Group, error) {
	group := &models.Group{}
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.Email,
		&group.Enabled,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return group, nil
}

// CreateGroup creates a new group
func (r *GroupRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	group.ID = uuid.New().String()
	group.CreatedAt = time.Now()
	group.UpdatedAt = time.Now()

	query := `
		INSERT INTO groups (id, name, description, email, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		group.ID,
		group.Name,
		group.Description,
		group.Email,
		group.Enabled,
		group.CreatedAt,
		group.UpdatedAt,
	)

	return err
}

// GetGroupByID retrieves a group by ID
func (r *GroupRepository) GetGroupByID(ctx context.Context, groupID string) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	return scanGroup(r.db.QueryRowContext(ctx, query, groupID))
}

// GetGroupByName retrieves a group by name
func (r *GroupRepository) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE name = $1`
	return scanGroup(r.db.QueryRowContext(ctx, query, name))
}

// ListGroups retrieves groups ordered by name. When enabled is non-nil the
// result is filtered to groups with that enabled state.
func (r *GroupRepository) ListGroups(ctx context.Context, enabled *bool, limit, offset int) ([]*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if enabled != nil {
		query += fmt.Sprintf(" AND enabled = $%d", argIdx)
		args = append(args, *enabled)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// CountGroups returns the number of groups, optionally filtered by enabled state
func (r *GroupRepository) CountGroups(ctx context.Context, enabled *bool) (int, error) {
	query := `SELECT COUNT(*) FROM groups`
	args := []interface{}{}
	if enabled != nil {
		query += ` WHERE enabled = $1`
		args = append(args, *enabled)
	}

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// UpdateGroup updates a group's mutable fields
func (r *GroupRepository) UpdateGroup(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now()

	query := `
		UPDATE groups
		SET description = $1, email = $2, enabled = $3, updated_at = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(ctx, query,
		group.Description,
		group.Email,
		group.Enabled,
		group.UpdatedAt,
		group.ID,
	)

	return err
}

// DeleteGroup deletes a group by ID
func (r *GroupRepository) DeleteGroup(ctx context.Context, groupID string) error {
	query := `DELETE FROM groups WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, groupID)
	return err
}
