// Package admin implements the account-management HTTP handlers for
// groupkeeper: users, sessions, API keys, and the audit trail. These handlers
// require authentication and the appropriate RBAC scopes (see
// internal/middleware/rbac.go).
//
// apikeys.go implements self-service API key management. Users manage their
// own keys; admins may manage anyone's.
package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/auth"
	"github.com/groupkeeper/groupkeeper/internal/config"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
)

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	cfg        *config.Config
	db         *sql.DB
	apiKeyRepo *repositories.APIKeyRepository
	userRepo   *repositories.UserRepository
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(cfg *config.Config, db *sql.DB) *APIKeyHandlers {
	return &APIKeyHandlers{
		cfg:        cfg,
		db:         db,
		apiKeyRepo: repositories.NewAPIKeyRepository(db),
		userRepo:   repositories.NewUserRepository(db),
	}
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Name      string   `json:"name" binding:"required"`
	Scopes    []string `json:"scopes" binding:"required"`
	ExpiresAt *string  `json:"expires_at"` // RFC3339 format
	UserID    *string  `json:"user_id"`    // admin only: issue a key for another user (e.g. a service account)
}

// currentUser pulls the authenticated user out of the gin context
func currentUser(c *gin.Context) (*models.User, bool) {
	userVal, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := userVal.(*models.User)
	return user, ok
}

// sanitizeAPIKey maps a key to a JSON-friendly shape without the hash
func sanitizeAPIKey(k *models.APIKey) gin.H {
	var expiresAt, lastUsed interface{}
	if k.ExpiresAt != nil {
		expiresAt = k.ExpiresAt.Format(time.RFC3339)
	}
	if k.LastUsedAt != nil {
		lastUsed = k.LastUsedAt.Format(time.RFC3339)
	}

	return gin.H{
		"id":           k.ID,
		"user_id":      k.UserID,
		"username":     k.Username,
		"name":         k.Name,
		"key_prefix":   k.KeyPrefix,
		"scopes":       k.Scopes,
		"expires_at":   expiresAt,
		"last_used_at": lastUsed,
		"created_at":   k.CreatedAt.Format(time.RFC3339),
	}
}

// @Summary      List API keys
// @Description  List the authenticated user's API keys. Admins may pass user_id to list another user's keys.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        user_id  query  string  false  "List keys of this user (admin only)"
// @Success      200  {object}  map[string]interface{}  "keys: []"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Not allowed to list another user's keys"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys [get]
// ListAPIKeysHandler lists API keys
// GET /api/v1/apikeys?user_id=...
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		targetID := user.ID
		if requested := c.Query("user_id"); requested != "" && requested != user.ID {
			if !user.IsAdmin() {
				c.JSON(http.StatusForbidden, gin.H{
					"error": "Only admins may list another user's API keys",
				})
				return
			}
			targetID = requested
		}

		keys, err := h.apiKeyRepo.ListAPIKeysByUser(c.Request.Context(), targetID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list API keys",
			})
			return
		}

		resp := make([]gin.H, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, sanitizeAPIKey(k))
		}

		c.JSON(http.StatusOK, gin.H{
			"keys": resp,
		})
	}
}

// @Summary      Create API key
// @Description  Create a new API key. The full key is returned exactly once; only a bcrypt hash and a display prefix are stored. Requested scopes must be a subset of the caller's own scopes.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAPIKeyRequest  true  "API key creation request"
// @Success      201  {object}  map[string]interface{}  "key (full, shown once), id, key_prefix, scopes, expires_at"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or scopes"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Scope escalation or issuing for another user without admin"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys [post]
// CreateAPIKeyHandler creates a new API key
// POST /api/v1/apikeys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if err := auth.ValidateScopes(req.Scopes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid scopes: " + err.Error(),
			})
			return
		}

		// A key can never carry more privilege than the user creating it.
		callerScopes, _ := c.Get("scopes")
		have, _ := callerScopes.([]string)
		for _, s := range req.Scopes {
			if !auth.HasScope(have, auth.Scope(s)) {
				c.JSON(http.StatusForbidden, gin.H{
					"error": "Requested scope exceeds your own: " + s,
				})
				return
			}
		}

		targetID := user.ID
		if req.UserID != nil && *req.UserID != user.ID {
			if !user.IsAdmin() {
				c.JSON(http.StatusForbidden, gin.H{
					"error": "Only admins may create API keys for other users",
				})
				return
			}
			target, err := h.userRepo.GetUserByID(c.Request.Context(), *req.UserID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to look up target user",
				})
				return
			}
			if target == nil {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Target user not found",
				})
				return
			}
			targetID = target.ID
		}

		var expiresAt *time.Time
		if req.ExpiresAt != nil && *req.ExpiresAt != "" {
			parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid expires_at: must be RFC3339",
				})
				return
			}
			if parsed.Before(time.Now()) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "expires_at must be in the future",
				})
				return
			}
			expiresAt = &parsed
		}

		fullKey, hash, displayPrefix, err := auth.GenerateAPIKey(h.cfg.Auth.APIKeys.Prefix)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate API key",
			})
			return
		}

		apiKey := &models.APIKey{
			UserID:    targetID,
			Name:      req.Name,
			KeyHash:   hash,
			KeyPrefix: displayPrefix,
			Scopes:    req.Scopes,
			ExpiresAt: expiresAt,
		}

		if err := h.apiKeyRepo.CreateAPIKey(c.Request.Context(), apiKey); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create API key",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":         apiKey.ID,
			"name":       apiKey.Name,
			"key":        fullKey, // Only returned once
			"key_prefix": apiKey.KeyPrefix,
			"scopes":     apiKey.Scopes,
			"expires_at": apiKey.ExpiresAt,
			"created_at": apiKey.CreatedAt,
		})
	}
}

// @Summary      Get API key
// @Description  Get one API key by ID. Users can only read their own keys unless they are an admin.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}  "key metadata (never the secret)"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Not the key owner"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id} [get]
// GetAPIKeyHandler retrieves a single API key
// GET /api/v1/apikeys/:id
func (h *APIKeyHandlers) GetAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		apiKey, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve API key",
			})
			return
		}

		if apiKey == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "API key not found",
			})
			return
		}

		if apiKey.UserID != user.ID && !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Not the key owner",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"key": sanitizeAPIKey(apiKey),
		})
	}
}

// @Summary      Delete API key
// @Description  Revoke an API key by ID. Users can only delete their own keys unless they are an admin.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}  "message: API key deleted"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Not the key owner"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id} [delete]
// DeleteAPIKeyHandler revokes an API key
// DELETE /api/v1/apikeys/:id
func (h *APIKeyHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		apiKey, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve API key",
			})
			return
		}

		if apiKey == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "API key not found",
			})
			return
		}

		if apiKey.UserID != user.ID && !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Not the key owner",
			})
			return
		}

		if err := h.apiKeyRepo.DeleteAPIKey(c.Request.Context(), apiKey.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete API key",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "API key deleted",
		})
	}
}
