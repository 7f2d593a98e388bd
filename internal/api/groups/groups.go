// Package groups implements the HTTP handlers for group management:
// group CRUD, direct membership edges, the membership request workflow,
// and graph views resolved from the in-memory membership graph.
package groups

import (
	"database/sql"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/graph"
)

// groupNameRe constrains group names to what the page URLs and email deep
// links can carry without escaping.
var groupNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,254}$`)

// GroupHandlers handles group management endpoints
type GroupHandlers struct {
	db          *sql.DB
	groupRepo   *repositories.GroupRepository
	edgeRepo    *repositories.EdgeRepository
	userRepo    *repositories.UserRepository
	counterRepo *repositories.CounterRepository
	graph       *graph.Graph
}

// NewGroupHandlers creates a new GroupHandlers instance
func NewGroupHandlers(db *sql.DB, g *graph.Graph) *GroupHandlers {
	return &GroupHandlers{
		db:          db,
		groupRepo:   repositories.NewGroupRepository(db),
		edgeRepo:    repositories.NewEdgeRepository(db),
		userRepo:    repositories.NewUserRepository(db),
		counterRepo: repositories.NewCounterRepository(db),
		graph:       g,
	}
}

// bumpUpdates advances the graph checkpoint after a graph-relevant mutation.
// Failures are reported to the caller; the mutation itself already happened,
// so the refresh job will pick the change up on the next successful bump.
func (h *GroupHandlers) bumpUpdates(c *gin.Context) {
	if err := h.counterRepo.IncrementCounter(c.Request.Context(), models.CounterUpdates); err != nil {
		c.Error(err) //nolint:errcheck
	}
}

// parsePagination reads page/per_page query parameters with the usual clamps
func parsePagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return page, perPage, (page - 1) * perPage
}

// @Summary      List groups
// @Description  Get a paginated list of groups, optionally filtered by enabled state. Requires groups:read scope.
// @Tags         Groups
// @Security     Bearer
// @Produce      json
// @Param        page      query  int   false  "Page number (default 1)"
// @Param        per_page  query  int   false  "Items per page, max 100 (default 20)"
// @Param        enabled   query  bool  false  "Filter by enabled state"
// @Success      200  {object}  map[string]interface{}  "groups: []models.Group, pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups [get]
// ListGroupsHandler lists groups with pagination
// GET /api/v1/groups?page=1&per_page=20&enabled=true
func (h *GroupHandlers) ListGroupsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		var enabled *bool
		if v := c.Query("enabled"); v != "" {
			e := v == "true" || v == "1"
			enabled = &e
		}

		total, err := h.groupRepo.CountGroups(c.Request.Context(), enabled)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list groups",
			})
			return
		}

		groups, err := h.groupRepo.ListGroups(c.Request.Context(), enabled, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list groups",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"groups": groups,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get group
// @Description  Get a group by name with its direct membership edges. Requires groups:read scope.
// @Tags         Groups
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "Group name"
// @Success      200  {object}  map[string]interface{}  "group: models.Group, members: []models.GroupEdge"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name} [get]
// GetGroupHandler retrieves a group and its direct members
// GET /api/v1/groups/:name
func (h *GroupHandlers) GetGroupHandler() gin.HandlerFunc {
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

		edges, err := h.edgeRepo.ListEdgesForGroup(c.Request.Context(), group.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve group members",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"group":   group,
			"members": edges,
		})
	}
}

// CreateGroupRequest represents the request to create a new group
type CreateGroupRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Email       *string `json:"email"`
}

// @Summary      Create group
// @Description  Create a new group. The creator does not become a member automatically; add edges or go through the request workflow. Requires groups:write scope.
// @Tags         Groups
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateGroupRequest  true  "Group creation request"
// @Success      201  {object}  map[string]interface{}  "group: models.Group"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or group name"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Group already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups [post]
// CreateGroupHandler creates a new group
// POST /api/v1/groups
func (h *GroupHandlers) CreateGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if !groupNameRe.MatchString(req.Name) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid group name: letters, digits, '_', '.', '-' only",
			})
			return
		}

		existing, err := h.groupRepo.GetGroupByName(c.Request.Context(), req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing group",
			})
			return
		}

		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Group with this name already exists",
			})
			return
		}

		group := &models.Group{
			Name:        req.Name,
			Description: req.Description,
			Email:       req.Email,
			Enabled:     true,
		}

		if err := h.groupRepo.CreateGroup(c.Request.Context(), group); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create group",
			})
			return
		}

		h.bumpUpdates(c)

		c.JSON(http.StatusCreated, gin.H{
			"group": group,
		})
	}
}

// UpdateGroupRequest represents the request to update a group.
// Group names are immutable; they appear in email deep links and page URLs.
type UpdateGroupRequest struct {
	Description *string `json:"description,omitempty"`
	Email       *string `json:"email,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// @Summary      Update group
// @Description  Update a group's description, notification email, or enabled state. Disabling a group removes it (and everything reachable only through it) from the graph on the next refresh. Requires a manager role in the group, or admin.
// @Tags         Groups
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        name  path  string              true  "Group name"
// @Param        body  body  UpdateGroupRequest  true  "Group update request"
// @Success      200  {object}  map[string]interface{}  "group: models.Group"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name} [put]
// UpdateGroupHandler updates a group
// PUT /api/v1/groups/:name
func (h *GroupHandlers) UpdateGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

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

		if req.Description != nil {
			group.Description = *req.Description
		}
		if req.Email != nil {
			group.Email = req.Email
		}
		if req.Enabled != nil {
			group.Enabled = *req.Enabled
		}

		if err := h.groupRepo.UpdateGroup(c.Request.Context(), group); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update group",
			})
			return
		}

		h.bumpUpdates(c)

		c.JSON(http.StatusOK, gin.H{
			"group": group,
		})
	}
}

// @Summary      Delete group
// @Description  Delete a group by name. Cascading deletes remove its edges, requests, and grants. Requires an owner role in the group, or admin.
// @Tags         Groups
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "Group name"
// @Success      200  {object}  map[string]interface{}  "message: Group deleted successfully"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name} [delete]
// DeleteGroupHandler deletes a group
// DELETE /api/v1/groups/:name
func (h *GroupHandlers) DeleteGroupHandler() gin.HandlerFunc {
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

		if err := h.groupRepo.DeleteGroup(c.Request.Context(), group.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete group",
			})
			return
		}

		h.bumpUpdates(c)

		c.JSON(http.StatusOK, gin.H{
			"message": "Group deleted successfully",
		})
	}
}

// @Summary      Get group graph view
// @Description  Get a group's transitive membership resolved from the in-memory graph: every reachable user and subgroup with role, path, and distance, plus parents and permission grants. Requires groups:read scope.
// @Tags         Groups
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "Group name"
// @Success      200  {object}  map[string]interface{}  "graph.GroupDetails"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group not found or not in graph"
// @Router       /api/v1/groups/{name}/graph [get]
// GetGroupGraphHandler resolves a group's transitive membership from the graph
// GET /api/v1/groups/:name/graph
//
// Disabled groups are absent from the graph, so this returns 404 for them
// even though GET /groups/:name still succeeds.
func (h *GroupHandlers) GetGroupGraphHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		details := h.graph.GroupDetails(c.Param("name"))
		if details == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Group not present in membership graph",
			})
			return
		}

		c.JSON(http.StatusOK, details)
	}
}

// AddMemberRequest represents the request to add a direct membership edge.
// Exactly one of Username and Group must be set.
type AddMemberRequest struct {
	Username  string  `json:"username"`
	Group     string  `json:"group"`
	Role      string  `json:"role"`
	ExpiresAt *string `json:"expires_at"` // RFC3339 format; omit for a membership that never expires
}

// parseExpiry parses an optional RFC3339 expiry and rejects past times
func parseExpiry(raw *string) (*time.Time, string) {
	if raw == nil || *raw == "" {
		return nil, ""
	}
	parsed, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, "Invalid expires_at: must be RFC3339"
	}
	if parsed.Before(time.Now()) {
		return nil, "expires_at must be in the future"
	}
	return &parsed, ""
}

// @Summary      Add group member
// @Description  Add a direct membership edge for a user or a nested group, bypassing the request workflow. Subgroup edges always carry the member role for permission purposes. Requires a manager role in the group, or admin.
// @Tags         Groups
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        name  path  string            true  "Group name"
// @Param        body  body  AddMemberRequest  true  "Member to add"
// @Success      201  {object}  map[string]interface{}  "edge: models.GroupEdge"
// @Failure      400  {object}  map[string]interface{}  "Invalid request, role, or member"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group or member not found"
// @Failure      409  {object}  map[string]interface{}  "Member already has an active edge"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name}/members [post]
// AddMemberHandler adds a direct membership edge
// POST /api/v1/groups/:name/members
func (h *GroupHandlers) AddMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if (req.Username == "") == (req.Group == "") {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Exactly one of username and group must be set",
			})
			return
		}

		role := req.Role
		if role == "" {
			role = models.RoleMember
		}
		if !models.IsValidRole(role) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid role: must be one of member, manager, owner, np-owner",
			})
			return
		}
		if req.Group != "" && role != models.RoleMember {
			// Roles never propagate through nesting, so anything else on a
			// subgroup edge would be misleading.
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Subgroup edges must use the member role",
			})
			return
		}

		expiresAt, errMsg := parseExpiry(req.ExpiresAt)
		if errMsg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": errMsg})
			return
		}

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

		edge := &models.GroupEdge{
			GroupID:   group.ID,
			Role:      role,
			Active:    true,
			ExpiresAt: expiresAt,
		}

		if req.Username != "" {
			member, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to retrieve member user",
				})
				return
			}
			if member == nil {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Member user not found",
				})
				return
			}

			existing, err := h.edgeRepo.GetUserEdge(c.Request.Context(), group.ID, member.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to check existing membership",
				})
				return
			}
			if existing != nil && existing.Active {
				c.JSON(http.StatusConflict, gin.H{
					"error": "User is already a member of this group",
				})
				return
			}

			if existing != nil {
				// Revive the inactive edge instead of violating the unique
				// constraint with a second row.
				existing.Role = role
				existing.Active = true
				existing.ExpiresAt = expiresAt
				if err := h.edgeRepo.UpdateEdge(c.Request.Context(), existing); err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{
						"error": "Failed to add member",
					})
					return
				}
				h.bumpUpdates(c)
				c.JSON(http.StatusCreated, gin.H{"edge": existing})
				return
			}

			edge.MemberUserID = &member.ID
		} else {
			member, err := h.groupRepo.GetGroupByName(c.Request.Context(), req.Group)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to retrieve member group",
				})
				return
			}
			if member == nil {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Member group not found",
				})
				return
			}
			if member.ID == group.ID {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "A group cannot be a member of itself",
				})
				return
			}

			existing, err := h.edgeRepo.GetGroupEdge(c.Request.Context(), group.ID, member.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to check existing membership",
				})
				return
			}
			if existing != nil && existing.Active {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Group is already a member of this group",
				})
				return
			}

			if existing != nil {
				existing.Role = role
				existing.Active = true
				existing.ExpiresAt = expiresAt
				if err := h.edgeRepo.UpdateEdge(c.Request.Context(), existing); err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{
						"error": "Failed to add member",
					})
					return
				}
				h.bumpUpdates(c)
				c.JSON(http.StatusCreated, gin.H{"edge": existing})
				return
			}

			edge.MemberGroupID = &member.ID
		}

		if err := h.edgeRepo.CreateEdge(c.Request.Context(), edge); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to add member",
			})
			return
		}

		h.bumpUpdates(c)

		c.JSON(http.StatusCreated, gin.H{
			"edge": edge,
		})
	}
}

// UpdateMemberRequest represents the request to change an edge's role or expiry
type UpdateMemberRequest struct {
	Role      *string `json:"role,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"` // RFC3339; empty string clears the expiry
}

// @Summary      Update group member
// @Description  Change the role or expiry of a direct membership edge. Requires a manager role in the group, or admin.
// @Tags         Groups
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        name     path  string               true  "Group name"
// @Param        edge_id  path  string               true  "Edge ID"
// @Param        body     body  UpdateMemberRequest  true  "Fields to change"
// @Success      200  {object}  map[string]interface{}  "edge: models.GroupEdge"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or role"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group or edge not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name}/members/{edge_id} [put]
// UpdateMemberHandler changes a membership edge's role or expiry
// PUT /api/v1/groups/:name/members/:edge_id
func (h *GroupHandlers) UpdateMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		group, edge, ok := h.loadGroupEdge(c)
		if !ok {
			return
		}

		if req.Role != nil {
			if !models.IsValidRole(*req.Role) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid role: must be one of member, manager, owner, np-owner",
				})
				return
			}
			if !edge.IsUserEdge() && *req.Role != models.RoleMember {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Subgroup edges must use the member role",
				})
				return
			}
			edge.Role = *req.Role
		}

		if req.ExpiresAt != nil {
			if *req.ExpiresAt == "" {
				edge.ExpiresAt = nil
			} else {
				expiresAt, errMsg := parseExpiry(req.ExpiresAt)
				if errMsg != "" {
					c.JSON(http.StatusBadRequest, gin.H{"error": errMsg})
					return
				}
				edge.ExpiresAt = expiresAt
			}
		}

		if err := h.edgeRepo.UpdateEdge(c.Request.Context(), edge); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update member",
			})
			return
		}

		h.bumpUpdates(c)

		edge.GroupName = group.Name
		c.JSON(http.StatusOK, gin.H{
			"edge": edge,
		})
	}
}

// @Summary      Remove group member
// @Description  Deactivate a direct membership edge. The edge row is kept for history; the member disappears from the graph on the next refresh. Requires a manager role in the group, or admin.
// @Tags         Groups
// @Security     Bearer
// @Produce      json
// @Param        name     path  string  true  "Group name"
// @Param        edge_id  path  string  true  "Edge ID"
// @Success      200  {object}  map[string]interface{}  "message: Member removed"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group or edge not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name}/members/{edge_id} [delete]
// RemoveMemberHandler deactivates a membership edge
// DELETE /api/v1/groups/:name/members/:edge_id
func (h *GroupHandlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, edge, ok := h.loadGroupEdge(c)
		if !ok {
			return
		}

		won, err := h.edgeRepo.DeactivateEdge(c.Request.Context(), edge.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to remove member",
			})
			return
		}
		if !won {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Membership already removed",
			})
			return
		}

		h.bumpUpdates(c)

		c.JSON(http.StatusOK, gin.H{
			"message": "Member removed",
		})
	}
}

// loadGroupEdge resolves the :name and :edge_id parameters, writing the error
// response itself when either is missing or the edge belongs to another group.
func (h *GroupHandlers) loadGroupEdge(c *gin.Context) (*models.Group, *models.GroupEdge, bool) {
	group, err := h.groupRepo.GetGroupByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve group",
		})
		return nil, nil, false
	}

	if group == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Group not found",
		})
		return nil, nil, false
	}

	edge, err := h.edgeRepo.GetEdgeByID(c.Request.Context(), c.Param("edge_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve edge",
		})
		return nil, nil, false
	}

	if edge == nil || edge.GroupID != group.ID {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Edge not found in this group",
		})
		return nil, nil, false
	}

	return group, edge, true
}
