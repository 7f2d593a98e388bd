// request_repository.go implements RequestRepository, providing database queries
// for the membership request workflow: filing, listing, and resolution.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
)

// RequestRepository handles membership request database operations
type RequestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a new RequestRepository
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateRequest files a new membership request
func (r *RequestRepository) CreateRequest(ctx context.Context, req *models.MembershipRequest) error {
	req.ID = uuid.New().String()
	req.Status = models.RequestStatusPending
	req.CreatedAt = time.Now()
	req.UpdatedAt = time.Now()

	query := `
		INSERT INTO membership_requests (id, group_id, requester_id, requested_by_id, role, reason, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.GroupID,
		req.RequesterID,
		req.RequestedByID,
		req.Role,
		req.Reason,
		req.Status,
		req.ExpiresAt,
		req.CreatedAt,
		req.UpdatedAt,
	)

	return err
}

const requestJoinedQuery = `
	SELECT r.id, r.group_id, r.requester_id, r.requested_by_id, r.role, r.reason, r.status,
	       r.resolved_by_id, r.resolution_note, r.expires_at, r.created_at, r.updated_at, r.resolved_at,
	       g.name, u.username, rb.username
	FROM membership_requests r
	JOIN groups g ON g.id = r.group_id
	JOIN users u ON u.id = r.requester_id
	JOIN users rb ON rb.id = r.requested_by_id
`

func scanRequest(row interface {
	Scan(dest ...interface{}) error
}) (*models.MembershipRequest, error) {
	req := &models.MembershipRequest{}
	err := row.Scan(
		&req.ID,
		&req.GroupID,
		&req.RequesterID,
		&req.RequestedByID,
		&req.Role,
		&req.Reason,
		&req.Status,
		&req.ResolvedByID,
		&req.ResolutionNote,
		&req.ExpiresAt,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.ResolvedAt,
		&req.GroupName,
		&req.RequesterUsername,
		&req.RequestedByName,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetRequestByID retrieves a membership request by ID with names joined
func (r *RequestRepository) GetRequestByID(ctx context.Context, requestID string) (*models.MembershipRequest, error) {
	query := requestJoinedQuery + ` WHERE r.id = $1`
	return scanRequest(r.db.QueryRowContext(ctx, query, requestID))
}

// RequestFilters contains optional filters for listing membership requests
type RequestFilters struct {
	GroupID     *string
	RequesterID *string
	Status      *string
}

// ListRequests retrieves membership requests matching the filters, newest first
func (r *RequestRepository) ListRequests(ctx context.Context, filters RequestFilters, limit, offset int) ([]*models.MembershipRequest, error) {
	query := requestJoinedQuery + ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filters.GroupID != nil {
		query += fmt.Sprintf(" AND r.group_id = $%d", argIdx)
		args = append(args, *filters.GroupID)
		argIdx++
	}
	if filters.RequesterID != nil {
		query += fmt.Sprintf(" AND r.requester_id = $%d", argIdx)
		args = append(args, *filters.RequesterID)
		argIdx++
	}
	if filters.Status != nil {
		query += fmt.Sprintf(" AND r.status = $%d", argIdx)
		args = append(args, *filters.Status)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*models.MembershipRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// CountRequests returns the number of requests matching the filters
func (r *RequestRepository) CountRequests(ctx context.Context, filters RequestFilters) (int, error) {
	query := `SELECT COUNT(*) FROM membership_requests r WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filters.GroupID != nil {
		query += fmt.Sprintf(" AND r.group_id = $%d", argIdx)
		args = append(args, *filters.GroupID)
		argIdx++
	}
	if filters.RequesterID != nil {
		query += fmt.Sprintf(" AND r.requester_id = $%d", argIdx)
		args = append(args, *filters.RequesterID)
		argIdx++
	}
	if filters.Status != nil {
		query += fmt.Sprintf(" AND r.status = $%d", argIdx)
		args = append(args, *filters.Status)
	}

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// GetPendingRequest retrieves the pending request for a user in a group, if any.
// Used to reject duplicate filings.
func (r *RequestRepository) GetPendingRequest(ctx context.Context, groupID, requesterID string) (*models.MembershipRequest, error) {
	query := requestJoinedQuery + ` WHERE r.group_id = $1 AND r.requester_id = $2 AND r.status = 'pending'`
	return scanRequest(r.db.QueryRowContext(ctx, query, groupID, requesterID))
}

// ResolveRequest moves a pending request to a terminal status. It only
// updates rows still in pending state so concurrent resolutions cannot
// both succeed; the returned bool reports whether this call won.
func (r *RequestRepository) ResolveRequest(ctx context.Context, requestID, status, resolvedByID string, note *string) (bool, error) {
	now := time.Now()
	query := `
		UPDATE membership_requests
		SET status = $1, resolved_by_id = $2, resolution_note = $3, resolved_at = $4, updated_at = $4
		WHERE id = $5 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, status, resolvedByID, note, now, requestID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}
