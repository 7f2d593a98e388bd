// Package api wires together all HTTP routes for groupkeeper.
//
// Route grouping philosophy:
//   - The public keys page (/users/public-keys) is intentionally
//     unauthenticated. Provisioning tooling scrapes it to build
//     authorized_keys files before any credential exists on the target host.
//   - Everything under /api/v1 (except the OIDC login flow) requires
//     authentication and the appropriate RBAC scope. Group-scoped mutations
//     additionally require a role on the group itself, checked against the
//     in-memory membership graph.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/groupkeeper/groupkeeper/internal/api/admin"
	"github.com/groupkeeper/groupkeeper/internal/api/groups"
	"github.com/groupkeeper/groupkeeper/internal/api/keys"
	"github.com/groupkeeper/groupkeeper/internal/api/permissions"
	"github.com/groupkeeper/groupkeeper/internal/audit"
	"github.com/groupkeeper/groupkeeper/internal/auth"
	"github.com/groupkeeper/groupkeeper/internal/config"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/graph"
	"github.com/groupkeeper/groupkeeper/internal/jobs"
	"github.com/groupkeeper/groupkeeper/internal/mail"
	"github.com/groupkeeper/groupkeeper/internal/middleware"
	"github.com/groupkeeper/groupkeeper/internal/safego"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	edgeExpiryJob   *jobs.EdgeExpiryJob
	graphRefreshJob *jobs.GraphRefreshJob
	auditShipper    audit.Shipper
	rateLimiters    []middleware.Limiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.edgeExpiryJob != nil {
		bg.edgeExpiryJob.Stop()
	}
	if bg.graphRefreshJob != nil {
		bg.graphRefreshJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Error("failed to close audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	logger := slog.Default()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	edgeRepo := repositories.NewEdgeRepository(db)
	counterRepo := repositories.NewCounterRepository(db)

	// Wrap *sql.DB with sqlx for the public key and stats queries
	sqlxDB := sqlx.NewDb(db, "postgres")
	keyRepo := repositories.NewPublicKeyRepository(sqlxDB)
	graphRepo := repositories.NewGraphRepository(sqlxDB)

	// Build the in-memory membership graph. A failed initial load is not
	// fatal: the refresh job retries on its interval, and the readiness
	// probe stays red until the graph is populated.
	g := graph.New(graphRepo, logger)
	if _, err := g.RefreshFromDB(context.Background()); err != nil {
		slog.Error("initial membership graph load failed, refresh job will retry", "error", err)
	}

	// Mail sender for the request workflow and expiry notices
	var sender mail.Sender
	if cfg.Notifications.Enabled {
		sender = mail.NewSMTPSender(&cfg.Notifications, logger)
		log.Println("Email notifications enabled")
	}

	// Background jobs: graph refresh polling and membership expiry sweeps,
	// each a no-op when disabled by config
	var graphRefreshJob *jobs.GraphRefreshJob
	if cfg.Graph.RefreshEnabled {
		graphRefreshJob = jobs.NewGraphRefreshJob(g, cfg.Graph.RefreshInterval, logger)
		job := graphRefreshJob
		safego.Go(func() { job.Start(context.Background()) })
	} else {
		logger.Warn("graph refresh job disabled by config; membership changes will not be picked up")
	}

	var edgeExpiryJob *jobs.EdgeExpiryJob
	if cfg.Jobs.EdgeExpiryEnabled {
		edgeExpiryJob = jobs.NewEdgeExpiryJob(
			edgeRepo, counterRepo, auditRepo, g, sender,
			cfg.Server.GetPublicURL(), cfg.Jobs.EdgeExpiryInterval, logger,
		)
		job := edgeExpiryJob
		safego.Go(func() { job.Start(context.Background()) })
	} else {
		logger.Info("edge expiry job disabled by config")
	}

	// External audit shipping (file, webhook) configured alongside the
	// database audit trail
	auditShipper := buildAuditShipper(cfg)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint (includes membership graph probe)
	router.GET("/ready", readinessHandler(db, g))

	// API version
	router.GET("/version", versionHandler())

	// Initialize handlers
	authHandlers, err := admin.NewAuthHandlers(cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize auth handlers: %v", err)
	}
	apiKeyHandlers := admin.NewAPIKeyHandlers(cfg, db)
	userHandlers := admin.NewUserHandlers(cfg, db, keyRepo, g)
	auditHandlers := admin.NewAuditHandlers(auditRepo)
	statsHandlers := admin.NewStatsHandlers(sqlxDB, g)
	groupHandlers := groups.NewGroupHandlers(db, g)
	requestHandlers := groups.NewRequestHandlers(db, g, sender, cfg.Server.GetPublicURL(), logger)
	keyHandlers := keys.NewPublicKeyHandlers(db, keyRepo, logger)
	permissionHandlers := permissions.NewPermissionHandlers(db)

	// Initialize rate limiters. With redis.addr set the counters are shared
	// across replicas.
	authRateLimiter := middleware.NewLimiterFromConfig(middleware.AuthRateLimitConfig(), &cfg.Redis)
	generalRateLimiter := middleware.NewLimiterFromConfig(middleware.DefaultRateLimitConfig(), &cfg.Redis)
	writeRateLimiter := middleware.NewLimiterFromConfig(middleware.WriteRateLimitConfig(), &cfg.Redis)

	// Server-rendered public keys page (public, no auth; consumed by
	// provisioning tooling)
	router.GET("/users/public-keys",
		middleware.RateLimitMiddleware(generalRateLimiter),
		keyHandlers.UserKeysPageHandler())

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints (no auth required, but rate limited)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(authRateLimiter))
		{
			authGroup.GET("/login", authHandlers.LoginHandler())
			authGroup.GET("/callback", authHandlers.CallbackHandler())
			authGroup.GET("/logout", authHandlers.LogoutHandler())
		}

		// Authenticated-only endpoints
		authenticatedGroup := apiV1.Group("")
		authenticatedGroup.Use(middleware.AuthMiddleware(cfg, userRepo, apiKeyRepo))
		authenticatedGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		authenticatedGroup.Use(middleware.AuditMiddlewareWithShipper(auditRepo, auditShipper, &cfg.Audit))
		{
			// Session endpoints
			authenticatedGroup.POST("/auth/refresh", authHandlers.RefreshHandler())
			authenticatedGroup.GET("/auth/me", authHandlers.MeHandler())

			// Admin dashboard and audit trail
			authenticatedGroup.GET("/admin/stats/dashboard",
				middleware.RequireAdmin(),
				statsHandlers.GetDashboardStats)
			authenticatedGroup.GET("/admin/audit-logs",
				middleware.RequireScope(auth.ScopeAuditRead),
				auditHandlers.ListAuditLogsHandler())

			// Users management
			usersGroup := authenticatedGroup.Group("/users")
			usersGroup.Use(middleware.RequireScope(auth.ScopeUsersRead))
			{
				usersGroup.GET("", userHandlers.ListUsersHandler())
				usersGroup.GET("/search", userHandlers.SearchUsersHandler())
				usersGroup.GET("/:id", userHandlers.GetUserHandler())
				usersGroup.GET("/:id/graph", userHandlers.GetUserGraphHandler())
			}

			usersWriteGroup := authenticatedGroup.Group("/users")
			usersWriteGroup.Use(middleware.RequireScope(auth.ScopeUsersWrite))
			{
				usersWriteGroup.POST("", userHandlers.CreateUserHandler())
				usersWriteGroup.PUT("/:id", userHandlers.UpdateUserHandler())
				usersWriteGroup.DELETE("/:id", userHandlers.DeleteUserHandler())
			}

			// SSH public keys. Ownership (self-or-admin) is enforced by the
			// handlers.
			authenticatedGroup.GET("/users/:id/keys",
				middleware.RequireScope(auth.ScopeKeysRead),
				keyHandlers.ListUserKeysHandler())
			authenticatedGroup.POST("/users/:id/keys",
				middleware.RateLimitMiddleware(writeRateLimiter),
				middleware.RequireScope(auth.ScopeKeysWrite),
				keyHandlers.AddKeyHandler())
			authenticatedGroup.DELETE("/users/:id/keys/:key_id",
				middleware.RequireScope(auth.ScopeKeysWrite),
				keyHandlers.DeleteKeyHandler())

			// API Keys management - self-service for own keys; the handlers
			// verify ownership, admin may manage others' keys
			apiKeysGroup := authenticatedGroup.Group("/apikeys")
			{
				apiKeysGroup.GET("", apiKeyHandlers.ListAPIKeysHandler())
				apiKeysGroup.POST("", apiKeyHandlers.CreateAPIKeyHandler())
				apiKeysGroup.GET("/:id", apiKeyHandlers.GetAPIKeyHandler())
				apiKeysGroup.DELETE("/:id", apiKeyHandlers.DeleteAPIKeyHandler())
			}

			// Groups: reads need the scope, mutations additionally need a
			// role on the group (checked against the membership graph)
			groupsGroup := authenticatedGroup.Group("/groups")
			{
				groupsGroup.GET("",
					middleware.RequireScope(auth.ScopeGroupsRead),
					groupHandlers.ListGroupsHandler())
				groupsGroup.GET("/:name",
					middleware.RequireScope(auth.ScopeGroupsRead),
					groupHandlers.GetGroupHandler())
				groupsGroup.GET("/:name/graph",
					middleware.RequireScope(auth.ScopeGroupsRead),
					groupHandlers.GetGroupGraphHandler())
				groupsGroup.GET("/:name/grants",
					middleware.RequireScope(auth.ScopePermissionsRead),
					permissionHandlers.ListGroupGrantsHandler())

				groupsGroup.POST("",
					middleware.RateLimitMiddleware(writeRateLimiter),
					middleware.RequireScope(auth.ScopeGroupsWrite),
					groupHandlers.CreateGroupHandler())
				groupsGroup.PUT("/:name",
					middleware.RequireScope(auth.ScopeGroupsWrite),
					middleware.RequireGroupRole(g, "name", models.RoleManager, models.RoleOwner),
					groupHandlers.UpdateGroupHandler())
				groupsGroup.DELETE("/:name",
					middleware.RequireScope(auth.ScopeGroupsWrite),
					middleware.RequireGroupRole(g, "name", models.RoleOwner),
					groupHandlers.DeleteGroupHandler())

				// Direct membership edges (bypass the request workflow)
				groupsGroup.POST("/:name/members",
					middleware.RateLimitMiddleware(writeRateLimiter),
					middleware.RequireScope(auth.ScopeGroupsWrite),
					middleware.RequireGroupRole(g, "name", models.RoleManager, models.RoleOwner),
					groupHandlers.AddMemberHandler())
				groupsGroup.PUT("/:name/members/:edge_id",
					middleware.RequireScope(auth.ScopeGroupsWrite),
					middleware.RequireGroupRole(g, "name", models.RoleManager, models.RoleOwner),
					groupHandlers.UpdateMemberHandler())
				groupsGroup.DELETE("/:name/members/:edge_id",
					middleware.RequireScope(auth.ScopeGroupsWrite),
					middleware.RequireGroupRole(g, "name", models.RoleManager, models.RoleOwner),
					groupHandlers.RemoveMemberHandler())

				// Membership request workflow (per group)
				groupsGroup.POST("/:name/requests",
					middleware.RateLimitMiddleware(writeRateLimiter),
					middleware.RequireScope(auth.ScopeGroupsRead),
					requestHandlers.CreateRequestHandler())
				groupsGroup.GET("/:name/requests",
					middleware.RequireScope(auth.ScopeGroupsRead),
					requestHandlers.ListGroupRequestsHandler())
			}

			// Membership request workflow (by request ID). The approve/deny
			// handlers check the caller's group role against the graph; the
			// scope only gates the endpoint itself.
			requestsGroup := authenticatedGroup.Group("/requests")
			{
				requestsGroup.GET("", requestHandlers.ListMyRequestsHandler())
				requestsGroup.GET("/:id", requestHandlers.GetRequestHandler())
				requestsGroup.POST("/:id/approve",
					middleware.RequireScope(auth.ScopeRequestsApprove),
					requestHandlers.ApproveRequestHandler())
				requestsGroup.POST("/:id/deny",
					middleware.RequireScope(auth.ScopeRequestsApprove),
					requestHandlers.DenyRequestHandler())
				requestsGroup.POST("/:id/cancel", requestHandlers.CancelRequestHandler())
			}

			// Permissions and grants
			permsGroup := authenticatedGroup.Group("/permissions")
			{
				permsGroup.GET("",
					middleware.RequireScope(auth.ScopePermissionsRead),
					permissionHandlers.ListPermissionsHandler())
				permsGroup.GET("/:name",
					middleware.RequireScope(auth.ScopePermissionsRead),
					permissionHandlers.GetPermissionHandler())
				permsGroup.POST("",
					middleware.RateLimitMiddleware(writeRateLimiter),
					middleware.RequireScope(auth.ScopePermissionsWrite),
					permissionHandlers.CreatePermissionHandler())
				permsGroup.DELETE("/:name",
					middleware.RequireAdmin(),
					permissionHandlers.DeletePermissionHandler())
				permsGroup.POST("/:name/grants",
					middleware.RateLimitMiddleware(writeRateLimiter),
					middleware.RequireScope(auth.ScopePermissionsWrite),
					permissionHandlers.CreateGrantHandler())
				permsGroup.DELETE("/:name/grants/:grant_id",
					middleware.RequireScope(auth.ScopePermissionsWrite),
					permissionHandlers.DeleteGrantHandler())
			}
		}
	}

	bg := &BackgroundServices{
		edgeExpiryJob:   edgeExpiryJob,
		graphRefreshJob: graphRefreshJob,
		auditShipper:    auditShipper,
		rateLimiters:    []middleware.Limiter{authRateLimiter, generalRateLimiter, writeRateLimiter},
	}

	return router, bg
}

// buildAuditShipper assembles the external audit destinations from config.
// Returns nil when no shipper is enabled; a misconfigured shipper disables
// external shipping but never blocks startup (the database trail still runs).
func buildAuditShipper(cfg *config.Config) audit.Shipper {
	if !cfg.Audit.Enabled || len(cfg.Audit.Shippers) == 0 {
		return nil
	}

	shipperConfigs := make([]audit.ShipperConfig, 0, len(cfg.Audit.Shippers))
	for _, sc := range cfg.Audit.Shippers {
		out := audit.ShipperConfig{
			Enabled: sc.Enabled,
			Type:    sc.Type,
		}
		if sc.File != nil {
			out.File = &audit.FileConfig{Path: sc.File.Path}
		}
		if sc.Webhook != nil {
			out.Webhook = &audit.WebhookConfig{
				URL:     sc.Webhook.URL,
				Headers: sc.Webhook.Headers,
				Timeout: time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
			}
		}
		shipperConfigs = append(shipperConfigs, out)
	}

	shipper, err := audit.NewMultiShipper(shipperConfigs)
	if err != nil {
		slog.Error("failed to initialize audit shippers, external shipping disabled", "error", err)
		return nil
	}
	return shipper
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity and that the membership graph has loaded.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks: map, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: what is not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also requires the membership
// graph to be loaded so that approval and graph endpoints do not serve
// empty answers after a fresh start.
func readinessHandler(db *sql.DB, g *graph.Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// LoadedAt is the zero time only before the first successful load
		if g.LoadedAt().IsZero() {
			checks["graph"] = "loading"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "membership graph not loaded",
			})
			return
		}
		checks["graph"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
