// Package permissions implements the HTTP handlers for named permissions
// and their grants to groups. A grant gives every user reachable through the
// group's membership graph the permission, except through np-owner edges.
package permissions

import (
	"database/sql"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
)

var permissionNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.:-]{0,254}$`)

// PermissionHandlers handles permission management endpoints
type PermissionHandlers struct {
	db          *sql.DB
	permRepo    *repositories.PermissionRepository
	groupRepo   *repositories.GroupRepository
	counterRepo *repositories.CounterRepository
}

// NewPermissionHandlers creates a new PermissionHandlers instance
func NewPermissionHandlers(db *sql.DB) *PermissionHandlers {
	return &PermissionHandlers{
		db:          db,
		permRepo:    repositories.NewPermissionRepository(db),
		groupRepo:   repositories.NewGroupRepository(db),
		counterRepo: repositories.NewCounterRepository(db),
	}
}

func (h *PermissionHandlers) bumpUpdates(c *gin.Context) {
	if err := h.counterRepo.IncrementCounter(c.Request.Context(), models.CounterUpdates); err != nil {
		c.Error(err) //nolint:errcheck
	}
}

// @Summary      List permissions
// @Description  List all named permissions ordered by name. Requires permissions:read scope.
// @Tags         Permissions
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "permissions: []models.Permission"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/permissions [get]
// ListPermissionsHandler lists all permissions
// GET /api/v1/permissions
func (h *PermissionHandlers) ListPermissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, err := h.permRepo.ListPermissions(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list permissions",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"permissions": perms,
		})
	}
}

// @Summary      Get permission
// @Description  Get a permission by name with all its grants. Requires permissions:read scope.
// @Tags         Permissions
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "Permission name"
// @Success      200  {object}  map[string]interface{}  "permission: models.Permission, grants: []models.PermissionGrant"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Permission not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/permissions/{name} [get]
// GetPermissionHandler retrieves a permission and its grants
// GET /api/v1/permissions/:name
func (h *PermissionHandlers) GetPermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		perm, ok := h.loadPermission(c)
		if !ok {
			return
		}

		grants, err := h.permRepo.ListGrantsForPermission(c.Request.Context(), perm.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list grants",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"permission": perm,
			"grants":     grants,
		})
	}
}

// CreatePermissionRequest represents the request to create a permission
type CreatePermissionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// @Summary      Create permission
// @Description  Create a new named permission. Requires permissions:write scope.
// @Tags         Permissions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreatePermissionRequest  true  "Permission creation request"
// @Success      201  {object}  map[string]interface{}  "permission: models.Permission"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or name"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Permission already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/permissions [post]
// CreatePermissionHandler creates a permission
// POST /api/v1/permissions
func (h *PermissionHandlers) CreatePermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if !permissionNameRe.MatchString(req.Name) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid permission name: letters, digits, '_', '.', ':', '-' only",
			})
			return
		}

		existing, err := h.permRepo.GetPermissionByName(c.Request.Context(), req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing permission",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Permission with this name already exists",
			})
			return
		}

		perm := &models.Permission{
			Name:        req.Name,
			Description: req.Description,
			Enabled:     true,
		}

		if err := h.permRepo.CreatePermission(c.Request.Context(), perm); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create permission",
			})
			return
		}

		h.bumpUpdates(c)

		c.JSON(http.StatusCreated, gin.H{
			"permission": perm,
		})
	}
}

// @Summary      Delete permission
// @Description  Delete a permission by name. All of its grants cascade. Requires admin.
// @Tags         Permissions
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "Permission name"
// @Success      200  {object}  map[string]interface{}  "message: Permission deleted"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Permission not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/permissions/{name} [delete]
// DeletePermissionHandler deletes a permission
// DELETE /api/v1/permissions/:name
func (h *PermissionHandlers) DeletePermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		perm, ok := h.loadPermission(c)
		if !ok {
			return
		}

		if err := h.permRepo.DeletePermission(c.Request.Context(), perm.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete permission",
			})
			return
		}

		h.bumpUpdates(c)

		c.JSON(http.StatusOK, gin.H{
			"message": "Permission deleted",
		})
	}
}

// CreateGrantRequest represents the request to grant a permission to a group
type CreateGrantRequest struct {
	Group    string `json:"group" binding:"required"`
	Argument string `json:"argument"` // free-form, e.g. a hostname pattern
}

// @Summary      Grant permission to group
// @Description  Grant a permission to a group, optionally with an argument. The same permission may be granted to a group several times with different arguments. Requires permissions:write scope.
// @Tags         Permissions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        name  path  string              true  "Permission name"
// @Param        body  body  CreateGrantRequest  true  "Grant request"
// @Success      201  {object}  map[string]interface{}  "grant: models.PermissionGrant"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Permission or group not found"
// @Failure      409  {object}  map[string]interface{}  "Grant already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/permissions/{name}/grants [post]
// CreateGrantHandler grants a permission to a group
// POST /api/v1/permissions/:name/grants
func (h *PermissionHandlers) CreateGrantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateGrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		perm, ok := h.loadPermission(c)
		if !ok {
			return
		}

		group, err := h.groupRepo.GetGroupByName(c.Request.Context(), req.Group)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve group",
			})
			return
		}
		if group == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Group not found",
			})
			return
		}

		existing, err := h.permRepo.ListGrantsForGroup(c.Request.Context(), group.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing grants",
			})
			return
		}
		for _, g := range existing {
			if g.PermissionID == perm.ID && g.Argument == req.Argument {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Grant already exists",
				})
				return
			}
		}

		grant := &models.PermissionGrant{
			PermissionID: perm.ID,
			GroupID:      group.ID,
			Argument:     req.Argument,
		}

		if err := h.permRepo.CreateGrant(c.Request.Context(), grant); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create grant",
			})
			return
		}

		grant.PermissionName = perm.Name
		grant.GroupName = group.Name
		h.bumpUpdates(c)

		c.JSON(http.StatusCreated, gin.H{
			"grant": grant,
		})
	}
}

// @Summary      List grants for group
// @Description  List all permissions granted directly to a group. Transitive grants via nesting are visible in the group's graph view instead. Requires permissions:read scope.
// @Tags         Permissions
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "Group name"
// @Success      200  {object}  map[string]interface{}  "grants: []models.PermissionGrant"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name}/grants [get]
// ListGroupGrantsHandler lists a group's direct grants
// GET /api/v1/groups/:name/grants
func (h *PermissionHandlers) ListGroupGrantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		group, err := h.groupRepo.GetGroupByName(c.Request.Context(), c.Param("name"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve group",
			})
			return
		}
		if group == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Group not found",
			})
			return
		}

		grants, err := h.permRepo.ListGrantsForGroup(c.Request.Context(), group.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list grants",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"grants": grants,
		})
	}
}

// @Summary      Revoke grant
// @Description  Delete a single grant of a permission. Requires permissions:write scope.
// @Tags         Permissions
// @Security     Bearer
// @Produce      json
// @Param        name      path  string  true  "Permission name"
// @Param        grant_id  path  string  true  "Grant ID"
// @Success      200  {object}  map[string]interface{}  "message: Grant revoked"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Permission or grant not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/permissions/{name}/grants/{grant_id} [delete]
// DeleteGrantHandler revokes one grant
// DELETE /api/v1/permissions/:name/grants/:grant_id
func (h *PermissionHandlers) DeleteGrantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		perm, ok := h.loadPermission(c)
		if !ok {
			return
		}

		grants, err := h.permRepo.ListGrantsForPermission(c.Request.Context(), perm.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list grants",
			})
			return
		}

		grantID := c.Param("grant_id")
		found := false
		for _, g := range grants {
			if g.ID == grantID {
				found = true
				break
			}
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Grant not found for this permission",
			})
			return
		}

		if err := h.permRepo.DeleteGrant(c.Request.Context(), grantID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to revoke grant",
			})
			return
		}

		h.bumpUpdates(c)

		c.JSON(http.StatusOK, gin.H{
			"message": "Grant revoked",
		})
	}
}

// loadPermission resolves the :name parameter, writing the error response
// itself on failure
func (h *PermissionHandlers) loadPermission(c *gin.Context) (*models.Permission, bool) {
	perm, err := h.permRepo.GetPermissionByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve permission",
		})
		return nil, false
	}
	if perm == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Permission not found",
		})
		return nil, false
	}
	return perm, true
}
