// permission_repository.go implements PermissionRepository, providing database
// queries for named permissions and their grants to groups.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
)

// PermissionRepository handles permission and grant database operations
type PermissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository creates a new PermissionRepository
func NewPermissionRepository(db *sql.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// CreatePermission creates a new named permission
func (r *PermissionRepository) CreatePermission(ctx context.Context, perm *models.Permission) error {
	perm.ID = uuid.New().String()
	perm.CreatedAt = time.Now()

	query := `
		INSERT INTO permissions (id, name, description, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		perm.ID,
		perm.Name,
		perm.Description,
		perm.Enabled,
		perm.CreatedAt,
	)

	return err
}

// GetPermissionByName retrieves a permission by name
func (r *PermissionRepository) GetPermissionByName(ctx context.Context, name string) (*models.Permission, error) {
	query := `SELECT id, name, description, enabled, created_at FROM permissions WHERE name = $1`

	perm := &models.Permission{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&perm.ID,
		&perm.Name,
		&perm.Description,
		&perm.Enabled,
		&perm.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return perm, nil
}

// ListPermissions retrieves all permissions ordered by name
func (r *PermissionRepository) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	query := `SELECT id, name, description, enabled, created_at FROM permissions ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		perm := &models.Permission{}
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.Enabled, &perm.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}

	return perms, rows.Err()
}

// DeletePermission deletes a permission by ID; grants cascade
func (r *PermissionRepository) DeletePermission(ctx context.Context, permID string) error {
	query := `DELETE FROM permissions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, permID)
	return err
}

// CreateGrant binds a permission to a group with an optional argument
func (r *PermissionRepository) CreateGrant(ctx context.Context, grant *models.PermissionGrant) error {
	grant.ID = uuid.New().String()
	grant.CreatedAt = time.Now()

	query := `
		INSERT INTO permission_grants (id, permission_id, group_id, argument, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		grant.ID,
		grant.PermissionID,
		grant.GroupID,
		grant.Argument,
		grant.CreatedAt,
	)

	return err
}

const grantJoinedQuery = `
	SELECT pg.id, pg.permission_id, pg.group_id, pg.argument, pg.created_at, p.name, g.name
	FROM permission_grants pg
	JOIN permissions p ON p.id = pg.permission_id
	JOIN groups g ON g.id = pg.group_id
`

func (r *PermissionRepository) queryGrants(ctx context.Context, query string, args ...interface{}) ([]*models.PermissionGrant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []*models.PermissionGrant
	for rows.Next() {
		grant := &models.PermissionGrant{}
		if err := rows.Scan(
			&grant.ID,
			&grant.PermissionID,
			&grant.GroupID,
			&grant.Argument,
			&grant.CreatedAt,
			&grant.PermissionName,
			&grant.GroupName,
		); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}

	return grants, rows.Err()
}

// ListGrantsForGroup retrieves all grants held directly by a group
func (r *PermissionRepository) ListGrantsForGroup(ctx context.Context, groupID string) ([]*models.PermissionGrant, error) {
	return r.queryGrants(ctx, grantJoinedQuery+` WHERE pg.group_id = $1 ORDER BY p.name, pg.argument`, groupID)
}

// ListGrantsForPermission retrieves all grants of a permission across groups
func (r *PermissionRepository) ListGrantsForPermission(ctx context.Context, permID string) ([]*models.PermissionGrant, error) {
	return r.queryGrants(ctx, grantJoinedQuery+` WHERE pg.permission_id = $1 ORDER BY g.name, pg.argument`, permID)
}

// DeleteGrant deletes a grant by ID
func (r *PermissionRepository) DeleteGrant(ctx context.Context, grantID string) error {
	query := `DELETE FROM permission_grants WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, grantID)
	return err
}
