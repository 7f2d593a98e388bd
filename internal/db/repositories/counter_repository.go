// counter_repository.go implements CounterRepository. Mutating handlers bump
// the "updates" counter; the graph refresher reads it as a cheap checkpoint
// before deciding whether to rebuild.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/groupkeeper/groupkeeper/internal/db/models"
)

// CounterRepository handles named counter database operations
type CounterRepository struct {
	db *sql.DB
}

// NewCounterRepository creates a new CounterRepository
func NewCounterRepository(db *sql.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// GetCounter retrieves a counter by name. Missing counters read as zero.
func (r *CounterRepository) GetCounter(ctx context.Context, name string) (*models.Counter, error) {
	query := `SELECT name, count, last_modified FROM counters WHERE name = $1`

	counter := &models.Counter{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&counter.Name, &counter.Count, &counter.LastModified)
	if err == sql.ErrNoRows {
		return &models.Counter{Name: name}, nil
	}
	if err != nil {
		return nil, err
	}
	return counter, nil
}

// IncrementCounter bumps a counter by one, creating it if needed
func (r *CounterRepository) IncrementCounter(ctx context.Context, name string) error {
	query := `
		INSERT INTO counters (name, count, last_modified)
		VALUES ($1, 1, $2)
		ON CONFLICT (name) DO UPDATE SET count = counters.count + 1, last_modified = $2
	`
	_, err := r.db.ExecContext(ctx, query, name, time.Now())
	return err
}
