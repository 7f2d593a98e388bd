// audit.go provides Gin middleware that records authenticated write operations to the audit
// log, with optional shipping to external audit destinations.
package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/audit"
	"github.com/groupkeeper/groupkeeper/internal/config"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
)

// AuditMiddleware logs authenticated actions to the database only (backward compatible)
func AuditMiddleware(auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return AuditMiddlewareWithShipper(auditRepo, nil, nil)
}

// AuditMiddlewareWithShipper logs authenticated actions and ships to external destinations
func AuditMiddlewareWithShipper(auditRepo *repositories.AuditRepository, shipper audit.Shipper, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request first
		c.Next()

		// Skip OPTIONS always
		if c.Request.Method == "OPTIONS" {
			return
		}

		// Determine what to log based on config
		logReadOps := auditCfg != nil && auditCfg.LogReadOperations
		logFailedReqs := auditCfg != nil && auditCfg.LogFailedRequests

		isReadOp := c.Request.Method == "GET"
		isFailed := c.Writer.Status() >= 400

		// Default behavior: only log successful write operations
		if auditCfg == nil {
			if isReadOp || isFailed {
				return
			}
		} else {
			// With config: check specific settings
			if isReadOp && !logReadOps {
				return
			}
			if isFailed && !logFailedReqs && isReadOp {
				// Skip failed read operations if not configured to log them
				return
			}
		}

		authMethod, _ := c.Get("auth_method")
		actor := auditActor(c)
		ipAddress := c.ClientIP()
		action := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)

		// Handlers that write a more specific audit row themselves (request
		// approval, key registration) set "audit_logged" to suppress the
		// generic entry.
		if _, logged := c.Get("audit_logged"); logged {
			return
		}

		auditLog := &models.AuditLog{
			Actor:        actor,
			Action:       action,
			ResourceType: auditResourceType(c.Request.URL.Path),
			IPAddress:    ipAddress,
			CreatedAt:    time.Now(),
		}

		metadata := map[string]interface{}{
			"status_code": c.Writer.Status(),
		}
		if authMethod != nil {
			metadata["auth_method"] = authMethod
		}
		auditLog.Details = metadata

		// Async log creation (non-blocking)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// Write to database
			if auditRepo != nil {
				if err := auditRepo.CreateAuditLog(ctx, auditLog); err != nil {
					fmt.Printf("Failed to create audit log in database: %v\n", err)
				}
			}

			// Ship to external destinations
			if shipper != nil {
				authMethodStr := ""
				if am, ok := authMethod.(string); ok {
					authMethodStr = am
				}

				entry := &audit.LogEntry{
					Timestamp:    auditLog.CreatedAt,
					Action:       auditLog.Action,
					Actor:        actor,
					ResourceType: auditLog.ResourceType,
					IPAddress:    ipAddress,
					AuthMethod:   authMethodStr,
					StatusCode:   c.Writer.Status(),
					Metadata:     metadata,
				}

				if err := shipper.Ship(ctx, entry); err != nil {
					fmt.Printf("Failed to ship audit log: %v\n", err)
				}
			}
		}()
	}
}

// auditActor resolves the actor string: username when a user is authenticated,
// the API key display prefix otherwise.
func auditActor(c *gin.Context) string {
	if userVal, exists := c.Get("user"); exists {
		if user, ok := userVal.(*models.User); ok {
			return user.Username
		}
	}
	if keyVal, exists := c.Get("api_key"); exists {
		if key, ok := keyVal.(*models.APIKey); ok {
			return key.KeyPrefix
		}
	}
	return "anonymous"
}

// auditResourceType maps a request path to the resource type it touches
func auditResourceType(path string) string {
	switch {
	case strings.Contains(path, "/requests"):
		return "membership_request"
	case strings.Contains(path, "/members"):
		return "group_edge"
	case strings.Contains(path, "/groups"):
		return "group"
	case strings.Contains(path, "/keys") || strings.Contains(path, "/public-keys"):
		return "public_key"
	case strings.Contains(path, "/permissions"):
		return "permission"
	case strings.Contains(path, "/users"):
		return "user"
	case strings.Contains(path, "/apikeys"):
		return "api_key"
	default:
		return ""
	}
}
