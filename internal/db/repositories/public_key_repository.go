// public_key_repository.go implements PublicKeyRepository, providing database
// queries for SSH public keys, including the filtered, sorted, paginated
// listing behind the public keys page.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// PublicKeyRepository handles SSH public key database operations
type PublicKeyRepository struct {
	db *sqlx.DB
}

// NewPublicKeyRepository creates a new PublicKeyRepository
func NewPublicKeyRepository(db *sqlx.DB) *PublicKeyRepository {
	return &PublicKeyRepository{db: db}
}

// KeyListFilters mirrors the listing page's form state
type KeyListFilters struct {
	Enabled     bool   // filter to keys of enabled (true) or disabled (false) users
	Fingerprint string // exact fingerprint filter; empty means no filter
	SortBy      string // "user", "fingerprint", or "created"
	Limit       int
	Offset      int
}

// sort keys accepted from the query string, mapped to ORDER BY clauses
var keySortColumns = map[string]string{
	"user":        "u.username, k.created_at",
	"fingerprint": "k.fingerprint",
	"created":     "k.created_at DESC",
}

// IsValidKeySort returns true if sortBy is an accepted sort key
func IsValidKeySort(sortBy string) bool {
	_, ok := keySortColumns[sortBy]
	return ok
}

// CreateKey stores a parsed public key
func (r *PublicKeyRepository) CreateKey(ctx context.Context, key *models.PublicKey) error {
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now()

	query := `
		INSERT INTO public_keys (id, user_id, public_key, fingerprint, key_type, key_size, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		key.ID,
		key.UserID,
		key.PublicKeyText,
		key.Fingerprint,
		key.KeyType,
		key.KeySize,
		key.Comment,
		key.CreatedAt,
	)

	return err
}

const keyJoinedQuery = `
	SELECT k.id, k.user_id, k.public_key, k.fingerprint, k.key_type, k.key_size, k.comment, k.created_at, u.username
	FROM public_keys k
	JOIN users u ON u.id = k.user_id
`

func scanKey(row interface {
	Scan(dest ...interface{}) error
}) (*models.PublicKey, error) {
	key := &models.PublicKey{}
	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.PublicKeyText,
		&key.Fingerprint,
		&key.KeyType,
		&key.KeySize,
		&key.Comment,
		&key.CreatedAt,
		&key.Username,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// GetKeyByID retrieves a public key by ID
func (r *PublicKeyRepository) GetKeyByID(ctx context.Context, keyID string) (*models.PublicKey, error) {
	query := keyJoinedQuery + ` WHERE k.id = $1`
	return scanKey(r.db.QueryRowxContext(ctx, query, keyID))
}

// GetKeyByFingerprint retrieves a user's key by fingerprint
func (r *PublicKeyRepository) GetKeyByFingerprint(ctx context.Context, userID, fingerprint string) (*models.PublicKey, error) {
	query := keyJoinedQuery + ` WHERE k.user_id = $1 AND k.fingerprint = $2`
	return scanKey(r.db.QueryRowxContext(ctx, query, userID, fingerprint))
}

// ListKeysByUser retrieves all keys belonging to a user, oldest first
func (r *PublicKeyRepository) ListKeysByUser(ctx context.Context, userID string) ([]*models.PublicKey, error) {
	query := keyJoinedQuery + ` WHERE k.user_id = $1 ORDER BY k.created_at`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.PublicKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// ListKeys retrieves keys matching the filters for the listing page.
// Unknown sort keys fall back to sorting by user.
func (r *PublicKeyRepository) ListKeys(ctx context.Context, filters KeyListFilters) ([]*models.PublicKey, error) {
	orderBy, ok := keySortColumns[filters.SortBy]
	if !ok {
		orderBy = keySortColumns["user"]
	}

	query := keyJoinedQuery + ` WHERE u.enabled = $1`
	args := []interface{}{filters.Enabled}
	argIdx := 2

	if filters.Fingerprint != "" {
		query += fmt.Sprintf(" AND k.fingerprint = $%d", argIdx)
		args = append(args, filters.Fingerprint)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", orderBy, argIdx, argIdx+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.PublicKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// CountKeys returns the number of keys matching the enabled and fingerprint filters
func (r *PublicKeyRepository) CountKeys(ctx context.Context, filters KeyListFilters) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM public_keys k
		JOIN users u ON u.id = k.user_id
		WHERE u.enabled = $1
	`
	args := []interface{}{filters.Enabled}

	if filters.Fingerprint != "" {
		query += ` AND k.fingerprint = $2`
		args = append(args, filters.Fingerprint)
	}

	var count int
	err := r.db.QueryRowxContext(ctx, query, args...).Scan(&count)
	return count, err
}

// CountKeyOwners returns the number of distinct users owning keys that match
// the filters. The listing page heading reports this, not the key count.
func (r *PublicKeyRepository) CountKeyOwners(ctx context.Context, filters KeyListFilters) (int, error) {
	query := `
		SELECT COUNT(DISTINCT k.user_id)
		FROM public_keys k
		JOIN users u ON u.id = k.user_id
		WHERE u.enabled = $1
	`
	args := []interface{}{filters.Enabled}

	if filters.Fingerprint != "" {
		query += ` AND k.fingerprint = $2`
		args = append(args, filters.Fingerprint)
	}

	var count int
	err := r.db.QueryRowxContext(ctx, query, args...).Scan(&count)
	return count, err
}

// DeleteKey deletes a public key by ID
func (r *PublicKeyRepository) DeleteKey(ctx context.Context, keyID string) error {
	query := `DELETE FROM public_keys WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID)
	return err
}
