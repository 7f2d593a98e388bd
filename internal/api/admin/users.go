// users.go implements handlers for user account CRUD operations including listing, creating, updating, and deleting users.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/config"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/graph"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	cfg      *config.Config
	db       *sql.DB
	userRepo *repositories.UserRepository
	keyRepo  *repositories.PublicKeyRepository
	graph    *graph.Graph
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(cfg *config.Config, db *sql.DB, keyRepo *repositories.PublicKeyRepository, g *graph.Graph) *UserHandlers {
	return &UserHandlers{
		cfg:      cfg,
		db:       db,
		userRepo: repositories.NewUserRepository(db),
		keyRepo:  keyRepo,
		graph:    g,
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

// @Summary      List users
// @Description  Get a paginated list of users, optionally filtered by enabled state or account type. Requires users:read scope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page             query  int   false  "Page number (default 1)"
// @Param        per_page         query  int   false  "Items per page, max 100 (default 20)"
// @Param        enabled          query  bool  false  "Filter by enabled state"
// @Param        service_account  query  bool  false  "Filter by service account flag"
// @Success      200  {object}  map[string]interface{}  "users: []models.User, pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users [get]
// ListUsersHandler lists all users with pagination
// GET /api/v1/users?page=1&per_page=20&enabled=true
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		var filters repositories.UserFilters
		if v := c.Query("enabled"); v != "" {
			enabled := v == "true" || v == "1"
			filters.Enabled = &enabled
		}
		if v := c.Query("service_account"); v != "" {
			sa := v == "true" || v == "1"
			filters.IsServiceAccount = &sa
		}

		total, err := h.userRepo.CountUsers(c.Request.Context(), filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list users",
			})
			return
		}

		users, err := h.userRepo.ListUsers(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list users",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get user
// @Description  Get a user by ID along with their registered public keys. Requires users:read scope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user: models.User, public_keys: []models.PublicKey"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id} [get]
// GetUserHandler retrieves a specific user by ID
// GET /api/v1/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}

		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		keys, err := h.keyRepo.ListKeysByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user public keys",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":        user,
			"public_keys": keys,
		})
	}
}

// CreateUserRequest represents the request to create a new user
type CreateUserRequest struct {
	Username         string  `json:"username" binding:"required"`
	Email            string  `json:"email" binding:"required,email"`
	FullName         *string `json:"full_name"`
	Role             string  `json:"role"`
	IsServiceAccount bool    `json:"is_service_account"`
}

// @Summary      Create user
// @Description  Create a new user or service account. Typically interactive users are created via OIDC login; this endpoint is for admin provisioning. Requires users:write scope.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User creation request"
// @Success      201  {object}  map[string]interface{}  "user: models.User"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Username or email already taken"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users [post]
// CreateUserHandler creates a new user
// POST /api/v1/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if req.Role != "" && req.Role != models.SystemRoleUser && req.Role != models.SystemRoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid role: must be 'user' or 'admin'",
			})
			return
		}

		existing, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing user",
			})
			return
		}
		if existing == nil {
			existing, err = h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to check existing user",
				})
				return
			}
		}

		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "User with this username or email already exists",
			})
			return
		}

		user := &models.User{
			Username:         req.Username,
			Email:            req.Email,
			FullName:         req.FullName,
			Role:             req.Role,
			Enabled:          true,
			IsServiceAccount: req.IsServiceAccount,
		}

		if err := h.userRepo.CreateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create user",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user": user,
		})
	}
}

// UpdateUserRequest represents the request to update a user.
// Username is immutable; it is the identity the membership graph is keyed on.
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// @Summary      Update user
// @Description  Update a user's email, full name, system role, or enabled state. Disabling a user removes them from the membership graph on the next refresh. Requires users:write scope.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "User update request"
// @Success      200  {object}  map[string]interface{}  "user: models.User"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "Email already in use by another user"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id} [put]
// UpdateUserHandler updates a user
// PUT /api/v1/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if req.Role != nil && *req.Role != models.SystemRoleUser && *req.Role != models.SystemRoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid role: must be 'user' or 'admin'",
			})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}

		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		if req.Email != nil {
			existing, err := h.userRepo.GetUserByEmail(c.Request.Context(), *req.Email)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to check email availability",
				})
				return
			}

			if existing != nil && existing.ID != userID {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Email already in use by another user",
				})
				return
			}

			user.Email = *req.Email
		}
		if req.FullName != nil {
			user.FullName = req.FullName
		}
		if req.Role != nil {
			user.Role = *req.Role
		}
		if req.Enabled != nil {
			user.Enabled = *req.Enabled
		}

		if err := h.userRepo.UpdateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update user",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": user,
		})
	}
}

// @Summary      Delete user
// @Description  Delete a user by ID. Cascading deletes remove their edges, keys, requests, and API keys. Requires users:write scope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "message: User deleted successfully"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id} [delete]
// DeleteUserHandler deletes a user
// DELETE /api/v1/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}

		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		if err := h.userRepo.DeleteUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete user",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "User deleted successfully",
		})
	}
}

// @Summary      Search users
// @Description  Search users by username, email, or full name. Requires users:read scope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        q         query  string  true   "Search query"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users: []models.User, pagination: map"
// @Failure      400  {object}  map[string]interface{}  "Search query is required"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/search [get]
// SearchUsersHandler searches users by username, email, or full name
// GET /api/v1/users/search?q=query&page=1&per_page=20
func (h *UserHandlers) SearchUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Search query is required",
			})
			return
		}

		page, perPage, offset := parsePagination(c)

		users, err := h.userRepo.SearchUsers(c.Request.Context(), query, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to search users",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}

// @Summary      Get user graph view
// @Description  Get a user's transitive group memberships resolved from the in-memory membership graph, including role, path, distance, inherited permissions, and public keys. Requires users:read scope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "graph.UserDetails"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found or not in graph"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id}/graph [get]
// GetUserGraphHandler resolves a user's transitive memberships from the graph
// GET /api/v1/users/:id/graph
//
// Disabled users are absent from the graph, so this returns 404 for them even
// though GET /users/:id still succeeds.
func (h *UserHandlers) GetUserGraphHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}

		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		details := h.graph.UserDetails(user.Username)
		if details == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not present in membership graph",
			})
			return
		}

		c.JSON(http.StatusOK, details)
	}
}
