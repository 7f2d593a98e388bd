// stats.go implements the dashboard statistics endpoint.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/graph"
	"github.com/jmoiron/sqlx"
)

// StatsHandlers serves aggregate counts for the dashboard
type StatsHandlers struct {
	db    *sqlx.DB
	graph *graph.Graph
}

// NewStatsHandlers creates a new StatsHandlers instance
func NewStatsHandlers(db *sqlx.DB, g *graph.Graph) *StatsHandlers {
	return &StatsHandlers{db: db, graph: g}
}

// DashboardStats is the response shape of the dashboard endpoint
type DashboardStats struct {
	Users           int   `db:"users" json:"users"`
	EnabledUsers    int   `db:"enabled_users" json:"enabled_users"`
	Groups          int   `db:"groups" json:"groups"`
	ActiveEdges     int   `db:"active_edges" json:"active_edges"`
	PendingRequests int   `db:"pending_requests" json:"pending_requests"`
	PublicKeys      int   `db:"public_keys" json:"public_keys"`
	APIKeys         int   `db:"api_keys" json:"api_keys"`
	Permissions     int   `db:"permissions" json:"permissions"`
	GraphCheckpoint int64 `db:"-" json:"graph_checkpoint"`
}

// loadStats runs the aggregate count query
func (h *StatsHandlers) loadStats(ctx context.Context) (*DashboardStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM users WHERE enabled) AS enabled_users,
			(SELECT COUNT(*) FROM groups WHERE enabled) AS groups,
			(SELECT COUNT(*) FROM group_edges WHERE active) AS active_edges,
			(SELECT COUNT(*) FROM membership_requests WHERE status = 'pending') AS pending_requests,
			(SELECT COUNT(*) FROM public_keys) AS public_keys,
			(SELECT COUNT(*) FROM api_keys) AS api_keys,
			(SELECT COUNT(*) FROM permissions WHERE enabled) AS permissions
	`

	var stats DashboardStats
	if err := h.db.GetContext(ctx, &stats, query); err != nil {
		return nil, err
	}
	return &stats, nil
}

// @Summary      Dashboard statistics
// @Description  Aggregate counts across users, groups, memberships, requests, and keys, plus the graph checkpoint the in-memory graph was last built from.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  DashboardStats
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/stats/dashboard [get]
// GetDashboardStats returns aggregate counts for the dashboard
// GET /api/v1/stats/dashboard
func (h *StatsHandlers) GetDashboardStats(c *gin.Context) {
	stats, err := h.loadStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load statistics",
		})
		return
	}

	stats.GraphCheckpoint = h.graph.Checkpoint()

	c.JSON(http.StatusOK, stats)
}
