package keys

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/web"
)

// Listing page defaults. The limit caps the rows per page for provisioning
// scrapers that forget to paginate.
const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// parseKeyPageForm reads the listing page's query parameters into filters.
// The page uses offset/limit pagination, unlike the JSON API's page/per_page.
func parseKeyPageForm(c *gin.Context) repositories.KeyListFilters {
	filters := repositories.KeyListFilters{
		Enabled:     true,
		Fingerprint: c.Query("fingerprint"),
		SortBy:      "user",
		Limit:       defaultPageLimit,
	}

	if v := c.Query("enabled"); v == "false" || v == "0" {
		filters.Enabled = false
	}

	if v := c.Query("sort_by"); repositories.IsValidKeySort(v) {
		filters.SortBy = v
	}

	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		filters.Limit = v
		if filters.Limit > maxPageLimit {
			filters.Limit = maxPageLimit
		}
	}

	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		filters.Offset = v
	}

	return filters
}

// @Summary      Public keys page
// @Description  Server-rendered HTML table of SSH public keys of enabled (or, with enabled=false, disabled) users, with sortable columns and offset/limit pagination.
// @Tags         Keys
// @Produce      html
// @Param        enabled      query  bool    false  "Show keys of disabled users (default true)"
// @Param        fingerprint  query  string  false  "Exact fingerprint filter"
// @Param        sort_by      query  string  false  "Sort key: user, fingerprint, or created (default user)"
// @Param        limit        query  int     false  "Rows per page, max 1000 (default 100)"
// @Param        offset       query  int     false  "Row offset (default 0)"
// @Success      200  {string}  string  "HTML page"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /users/public-keys [get]
// UserKeysPageHandler renders the public keys listing page
// GET /users/public-keys
func (h *PublicKeyHandlers) UserKeysPageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := parseKeyPageForm(c)

		owners, err := h.keyRepo.CountKeyOwners(c.Request.Context(), filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load public keys",
			})
			return
		}

		totalKeys, err := h.keyRepo.CountKeys(c.Request.Context(), filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load public keys",
			})
			return
		}

		dbKeys, err := h.keyRepo.ListKeys(c.Request.Context(), filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load public keys",
			})
			return
		}

		page := web.UserKeysPage{
			Form: web.UserKeysForm{
				Enabled:     filters.Enabled,
				Limit:       filters.Limit,
				Offset:      filters.Offset,
				SortBy:      filters.SortBy,
				Fingerprint: filters.Fingerprint,
			},
			Total:     owners,
			TotalKeys: totalKeys,
			Keys:      make([]web.KeyRow, 0, len(dbKeys)),
		}

		for _, k := range dbKeys {
			page.Keys = append(page.Keys, web.KeyRow{
				Username:    k.Username,
				KeyType:     k.KeyType,
				KeySize:     k.KeySize,
				Fingerprint: k.Fingerprint,
				Comment:     k.Comment,
				CreatedAt:   k.CreatedAt,
			})
		}

		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := web.RenderUserKeys(c.Writer, page); err != nil {
			h.logger.Error("failed to render public keys page", "error", err)
		}
	}
}
