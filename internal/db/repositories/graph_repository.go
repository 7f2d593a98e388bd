// graph_repository.go implements GraphRepository, which loads the full
// membership state in one shot for in-memory graph rebuilds. It reads the
// checkpoint counter alongside the rows so the caller can detect writes that
// land mid-load and schedule another rebuild.
package repositories

import (
	"context"
	"time"

	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// GraphRepository loads snapshots of the membership state
type GraphRepository struct {
	db *sqlx.DB
}

// NewGraphRepository creates a new GraphRepository
func NewGraphRepository(db *sqlx.DB) *GraphRepository {
	return &GraphRepository{db: db}
}

// GraphSnapshot is everything a graph rebuild needs: enabled users and groups,
// active unexpired edges between them, permission grants, public keys, and the
// checkpoint the snapshot was taken at.
type GraphSnapshot struct {
	Checkpoint     int64
	CheckpointTime time.Time
	Users          []*models.User
	Groups         []*models.Group
	Edges          []*models.GroupEdge
	Grants         []*models.PermissionGrant
	PublicKeys     []*models.PublicKey
}

// Checkpoint reads the current value of the updates counter
func (r *GraphRepository) Checkpoint(ctx context.Context) (int64, time.Time, error) {
	var count int64
	var lastModified time.Time
	query := `SELECT count, last_modified FROM counters WHERE name = $1`
	err := r.db.QueryRowxContext(ctx, query, models.CounterUpdates).Scan(&count, &lastModified)
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, lastModified, nil
}

// LoadSnapshot reads all graph-relevant rows. Edges are filtered to active,
// unexpired edges between enabled endpoints; expiry checks happen in SQL so
// the snapshot is consistent with a single point in time per table.
func (r *GraphRepository) LoadSnapshot(ctx context.Context) (*GraphSnapshot, error) {
	snap := &GraphSnapshot{}

	checkpoint, checkpointTime, err := r.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}
	snap.Checkpoint = checkpoint
	snap.CheckpointTime = checkpointTime

	if err := r.loadUsers(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadGroups(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadEdges(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadGrants(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadPublicKeys(ctx, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

func (r *GraphRepository) loadUsers(ctx context.Context, snap *GraphSnapshot) error {
	query := `
		SELECT id, username, email, full_name, role, enabled, is_service_account, created_at, updated_at, last_login_at
		FROM users WHERE enabled = true
	`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.Enabled,
			&u.IsServiceAccount, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt); err != nil {
			return err
		}
		snap.Users = append(snap.Users, u)
	}
	return rows.Err()
}

func (r *GraphRepository) loadGroups(ctx context.Context, snap *GraphSnapshot) error {
	query := `
		SELECT id, name, description, email, enabled, created_at, updated_at
		FROM groups WHERE enabled = true
	`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		g := &models.Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Email, &g.Enabled, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return err
		}
		snap.Groups = append(snap.Groups, g)
	}
	return rows.Err()
}

func (r *GraphRepository) loadEdges(ctx context.Context, snap *GraphSnapshot) error {
	query := `
		SELECT e.id, e.group_id, e.member_user_id, e.member_group_id, e.role, e.active, e.expires_at, e.created_at, e.updated_at
		FROM group_edges e
		JOIN groups g ON g.id = e.group_id AND g.enabled = true
		LEFT JOIN users u ON u.id = e.member_user_id
		LEFT JOIN groups mg ON mg.id = e.member_group_id
		WHERE e.active = true
		  AND (e.expires_at IS NULL OR e.expires_at > NOW())
		  AND (u.enabled = true OR mg.enabled = true)
	`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		e := &models.GroupEdge{}
		if err := rows.Scan(&e.ID, &e.GroupID, &e.MemberUserID, &e.MemberGroupID, &e.Role,
			&e.Active, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return err
		}
		snap.Edges = append(snap.Edges, e)
	}
	return rows.Err()
}

func (r *GraphRepository) loadGrants(ctx context.Context, snap *GraphSnapshot) error {
	query := `
		SELECT pg.id, pg.permission_id, pg.group_id, pg.argument, pg.created_at, p.name, g.name
		FROM permission_grants pg
		JOIN permissions p ON p.id = pg.permission_id AND p.enabled = true
		JOIN groups g ON g.id = pg.group_id AND g.enabled = true
	`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		grant := &models.PermissionGrant{}
		if err := rows.Scan(&grant.ID, &grant.PermissionID, &grant.GroupID, &grant.Argument,
			&grant.CreatedAt, &grant.PermissionName, &grant.GroupName); err != nil {
			return err
		}
		snap.Grants = append(snap.Grants, grant)
	}
	return rows.Err()
}

func (r *GraphRepository) loadPublicKeys(ctx context.Context, snap *GraphSnapshot) error {
	query := `
		SELECT k.id, k.user_id, k.public_key, k.fingerprint, k.key_type, k.key_size, k.comment, k.created_at, u.username
		FROM public_keys k
		JOIN users u ON u.id = k.user_id AND u.enabled = true
	`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		k := &models.PublicKey{}
		if err := rows.Scan(&k.ID, &k.UserID, &k.PublicKeyText, &k.Fingerprint, &k.KeyType,
			&k.KeySize, &k.Comment, &k.CreatedAt, &k.Username); err != nil {
			return err
		}
		snap.PublicKeys = append(snap.PublicKeys, k)
	}
	return rows.Err()
}
