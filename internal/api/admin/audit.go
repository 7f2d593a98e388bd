// audit.go implements the audit trail listing endpoint.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
)

// AuditHandlers handles audit log endpoints
type AuditHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(auditRepo *repositories.AuditRepository) *AuditHandlers {
	return &AuditHandlers{auditRepo: auditRepo}
}

// @Summary      List audit logs
// @Description  List audit log entries, newest first, with optional filters. Requires audit:read scope.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        actor          query  string  false  "Filter by actor (username or key prefix)"
// @Param        action         query  string  false  "Filter by action (e.g. request.approve)"
// @Param        resource_type  query  string  false  "Filter by resource type (e.g. group)"
// @Param        resource_id    query  string  false  "Filter by resource ID"
// @Param        start          query  string  false  "Only entries at or after this RFC3339 time"
// @Param        end            query  string  false  "Only entries at or before this RFC3339 time"
// @Param        page           query  int     false  "Page number (default 1)"
// @Param        per_page       query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "logs: []models.AuditLog, pagination: map"
// @Failure      400  {object}  map[string]interface{}  "Invalid time filter"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/audit [get]
// ListAuditLogsHandler lists audit log entries with filtering and pagination
// GET /api/v1/audit?actor=alice&resource_type=group&page=1
func (h *AuditHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		var filters repositories.AuditFilters
		if v := c.Query("actor"); v != "" {
			filters.Actor = &v
		}
		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("resource_type"); v != "" {
			filters.ResourceType = &v
		}
		if v := c.Query("resource_id"); v != "" {
			filters.ResourceID = &v
		}
		if v := c.Query("start"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid start: must be RFC3339",
				})
				return
			}
			filters.StartDate = &t
		}
		if v := c.Query("end"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid end: must be RFC3339",
				})
				return
			}
			filters.EndDate = &t
		}

		logs, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list audit logs",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}
