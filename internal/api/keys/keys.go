// Package keys implements the SSH public key endpoints: the per-user JSON
// API for uploading and removing keys, and the server-rendered listing page
// consumed by provisioning tooling.
package keys

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/sshkey"
)

// PublicKeyHandlers handles SSH public key endpoints
type PublicKeyHandlers struct {
	db          *sql.DB
	keyRepo     *repositories.PublicKeyRepository
	userRepo    *repositories.UserRepository
	counterRepo *repositories.CounterRepository
	auditRepo   *repositories.AuditRepository
	logger      *slog.Logger
}

// NewPublicKeyHandlers creates a new PublicKeyHandlers instance. The key
// repository is passed in because it runs on the sqlx handle.
func NewPublicKeyHandlers(db *sql.DB, keyRepo *repositories.PublicKeyRepository, logger *slog.Logger) *PublicKeyHandlers {
	return &PublicKeyHandlers{
		db:          db,
		keyRepo:     keyRepo,
		userRepo:    repositories.NewUserRepository(db),
		counterRepo: repositories.NewCounterRepository(db),
		auditRepo:   repositories.NewAuditRepository(db),
		logger:      logger,
	}
}

func currentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

func isAdmin(c *gin.Context) bool {
	v, ok := c.Get("scopes")
	if !ok {
		return false
	}
	scopes, ok := v.([]string)
	if !ok {
		return false
	}
	for _, s := range scopes {
		if s == "admin" {
			return true
		}
	}
	return false
}

func (h *PublicKeyHandlers) bumpUpdates(c *gin.Context) {
	if err := h.counterRepo.IncrementCounter(c.Request.Context(), models.CounterUpdates); err != nil {
		c.Error(err) //nolint:errcheck
	}
}

func (h *PublicKeyHandlers) audit(c *gin.Context, actor, action, keyID string, details map[string]interface{}) {
	entry := &models.AuditLog{
		Actor:        actor,
		Action:       action,
		ResourceType: "public_key",
		ResourceID:   keyID,
		Details:      details,
		IPAddress:    c.ClientIP(),
	}
	if err := h.auditRepo.CreateAuditLog(c.Request.Context(), entry); err != nil {
		h.logger.Error("failed to write audit log", "action", action, "error", err)
	}
	c.Set("audit_logged", true)
}

// loadTargetUser resolves the :id path parameter, writing the error
// response itself on failure
func (h *PublicKeyHandlers) loadTargetUser(c *gin.Context) (*models.User, bool) {
	user, err := h.userRepo.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve user",
		})
		return nil, false
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "User not found",
		})
		return nil, false
	}
	return user, true
}

// @Summary      List a user's public keys
// @Description  List a user's SSH public keys, oldest first. Requires keys:read scope.
// @Tags         Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "keys: []models.PublicKey"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id}/keys [get]
// ListUserKeysHandler lists a user's public keys
// GET /api/v1/users/:id/keys
func (h *PublicKeyHandlers) ListUserKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.loadTargetUser(c)
		if !ok {
			return
		}

		keys, err := h.keyRepo.ListKeysByUser(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list public keys",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"keys": keys,
		})
	}
}

// AddKeyRequest carries one public key line in authorized_keys format
type AddKeyRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
}

// @Summary      Add public key
// @Description  Upload an SSH public key for a user. The key line is parsed and normalized; options are stripped and the SHA256 fingerprint is stored. Users may only upload to their own account unless they are admin. Requires keys:write scope.
// @Tags         Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "User ID"
// @Param        body      body  AddKeyRequest  true  "Key upload"
// @Success      201  {object}  map[string]interface{}  "key: models.PublicKey"
// @Failure      400  {object}  map[string]interface{}  "Invalid or malformed public key"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Not your account"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "Key already uploaded"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id}/keys [post]
// AddKeyHandler uploads a public key
// POST /api/v1/users/:id/keys
func (h *PublicKeyHandlers) AddKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req AddKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		user, ok := h.loadTargetUser(c)
		if !ok {
			return
		}

		if actor.ID != user.ID && !isAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "You may only manage your own keys",
			})
			return
		}

		parsed, err := sshkey.Parse(req.PublicKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		existing, err := h.keyRepo.GetKeyByFingerprint(c.Request.Context(), user.ID, parsed.Fingerprint)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing keys",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Key with this fingerprint already uploaded",
			})
			return
		}

		key := &models.PublicKey{
			UserID:        user.ID,
			PublicKeyText: parsed.Normalized,
			Fingerprint:   parsed.Fingerprint,
			KeyType:       parsed.Type,
			KeySize:       parsed.Size,
			Comment:       parsed.Comment,
		}

		if err := h.keyRepo.CreateKey(c.Request.Context(), key); err != nil {
			// The fingerprint check above races with concurrent uploads;
			// the unique constraint is the authority.
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Key with this fingerprint already uploaded",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to store public key",
			})
			return
		}

		key.Username = user.Username
		h.bumpUpdates(c)

		h.audit(c, actor.Username, "key.add", key.ID, map[string]interface{}{
			"user":        user.Username,
			"fingerprint": key.Fingerprint,
			"key_type":    key.KeyType,
		})

		c.JSON(http.StatusCreated, gin.H{
			"key": key,
		})
	}
}

// @Summary      Delete public key
// @Description  Remove one of a user's SSH public keys. Users may only delete their own keys unless they are admin. Requires keys:write scope.
// @Tags         Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Param        key_id    path  string  true  "Key ID"
// @Success      200  {object}  map[string]interface{}  "message: Key deleted"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Not your account"
// @Failure      404  {object}  map[string]interface{}  "User or key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{id}/keys/{key_id} [delete]
// DeleteKeyHandler removes a public key
// DELETE /api/v1/users/:id/keys/:key_id
func (h *PublicKeyHandlers) DeleteKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		user, ok := h.loadTargetUser(c)
		if !ok {
			return
		}

		if actor.ID != user.ID && !isAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "You may only manage your own keys",
			})
			return
		}

		key, err := h.keyRepo.GetKeyByID(c.Request.Context(), c.Param("key_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve key",
			})
			return
		}
		if key == nil || key.UserID != user.ID {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Key not found for this user",
			})
			return
		}

		if err := h.keyRepo.DeleteKey(c.Request.Context(), key.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete key",
			})
			return
		}

		h.bumpUpdates(c)

		h.audit(c, actor.Username, "key.delete", key.ID, map[string]interface{}{
			"user":        user.Username,
			"fingerprint": key.Fingerprint,
		})

		c.JSON(http.StatusOK, gin.H{
			"message": "Key deleted",
		})
	}
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
