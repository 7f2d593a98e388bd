// auth.go implements HTTP handlers for OIDC login, the OAuth callback, logout,
// token refresh, and the current-user endpoint.
package admin

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/auth"
	"github.com/groupkeeper/groupkeeper/internal/auth/oidc"
	"github.com/groupkeeper/groupkeeper/internal/config"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
)

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	cfg          *config.Config
	db           *sql.DB
	userRepo     *repositories.UserRepository
	oidcProvider *oidc.OIDCProvider

	mu           sync.Mutex
	sessionStore map[string]*SessionState // In-memory; one login flow per state value
}

// SessionState represents OAuth state during the authentication flow
type SessionState struct {
	State     string
	CreatedAt time.Time
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, db *sql.DB) (*AuthHandlers, error) {
	h := &AuthHandlers{
		cfg:          cfg,
		db:           db,
		userRepo:     repositories.NewUserRepository(db),
		sessionStore: make(map[string]*SessionState),
	}

	if cfg.Auth.OIDC.Enabled {
		prov, err := oidc.NewOIDCProvider(&cfg.Auth.OIDC)
		if err != nil {
			return nil, err
		}
		h.oidcProvider = prov
	}

	return h, nil
}

// sessionTTL returns the configured JWT lifetime, defaulting to 24 hours
func (h *AuthHandlers) sessionTTL() time.Duration {
	if h.cfg.Auth.SessionTTL > 0 {
		return h.cfg.Auth.SessionTTL
	}
	return 24 * time.Hour
}

// generateState generates a random state string for OAuth
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// @Summary      Initiate OIDC login
// @Description  Redirect the browser to the configured OIDC provider to begin the authorization code flow.
// @Tags         Authentication
// @Produce      json
// @Success      302  {object}  string  "Redirects to the provider's authorization URL"
// @Failure      400  {object}  map[string]interface{}  "OIDC provider not configured"
// @Failure      500  {object}  map[string]interface{}  "Failed to generate state"
// @Router       /api/v1/auth/login [get]
// LoginHandler initiates the OIDC login flow
// GET /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidcProvider == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "OIDC provider not configured",
			})
			return
		}

		// State for CSRF protection, valid for one callback
		state, err := generateState()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate state",
			})
			return
		}

		h.mu.Lock()
		h.sessionStore[state] = &SessionState{
			State:     state,
			CreatedAt: time.Now(),
		}
		h.mu.Unlock()

		c.Redirect(http.StatusFound, h.oidcProvider.GetAuthURL(state))
	}
}

// @Summary      OIDC callback handler
// @Description  Handles the callback from the OIDC provider after the user authorizes. Exchanges the authorization code for a JWT and redirects the browser to the frontend /auth/callback page with the token as a query parameter.
// @Tags         Authentication
// @Produce      json
// @Param        code   query  string  true  "Authorization code from the provider"
// @Param        state  query  string  true  "State parameter for CSRF validation"
// @Success      302  {object}  string  "Redirects to frontend /auth/callback?token=<jwt>"
// @Failure      400  {object}  map[string]interface{}  "Invalid state or authorization code"
// @Router       /api/v1/auth/callback [get]
// CallbackHandler handles the OIDC callback
// GET /api/v1/auth/callback?code=...&state=...
func (h *AuthHandlers) CallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		frontendBase := deriveFrontendURL(h.cfg)

		// callbackError redirects the browser to the frontend /auth/callback page
		// with error details as query parameters so the user lands on a page that
		// can explain what went wrong. Falls back to a plain JSON response when
		// no frontend URL can be derived.
		callbackError := func(errCode, description string) {
			if frontendBase == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": description})
				return
			}
			target := fmt.Sprintf(
				"%s/auth/callback?error=%s&error_description=%s",
				frontendBase,
				url.QueryEscape(errCode),
				url.QueryEscape(description),
			)
			c.Redirect(http.StatusFound, target)
		}

		if h.oidcProvider == nil {
			callbackError("provider_not_configured", "OIDC provider is not configured.")
			return
		}

		code := c.Query("code")
		state := c.Query("state")

		h.mu.Lock()
		sessionState, exists := h.sessionStore[state]
		if exists {
			// Delete state to prevent reuse
			delete(h.sessionStore, state)
		}
		h.mu.Unlock()

		if !exists {
			callbackError("invalid_state", "Invalid state parameter. Please try logging in again.")
			return
		}

		// State expires after 5 minutes
		if time.Since(sessionState.CreatedAt) > 5*time.Minute {
			callbackError("state_expired", "Login session expired. Please try logging in again.")
			return
		}

		ctx := c.Request.Context()

		token, err := h.oidcProvider.ExchangeCode(ctx, code)
		if err != nil {
			callbackError("token_exchange_failed", "Failed to exchange authorization code for token.")
			return
		}

		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok {
			callbackError("no_id_token", "The identity provider did not return an ID token.")
			return
		}

		idToken, err := h.oidcProvider.VerifyIDToken(ctx, rawIDToken)
		if err != nil {
			callbackError("id_token_invalid", "The ID token could not be verified.")
			return
		}

		sub, email, username, err := h.oidcProvider.ExtractUserInfo(idToken)
		if err != nil {
			callbackError("user_info_failed", "Failed to extract user information from the ID token.")
			return
		}

		user, err := h.getOrCreateUser(ctx, sub, email, username)
		if err != nil {
			callbackError("user_creation_failed", "Failed to look up or create your account.")
			return
		}

		if !user.Enabled {
			callbackError("account_disabled", "Your account is disabled.")
			return
		}

		if err := h.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
			slog.Warn("failed to record login time", "user_id", user.ID, "error", err)
		}

		jwtToken, err := auth.GenerateJWT(user.ID, user.Username, h.sessionTTL())
		if err != nil {
			callbackError("jwt_failed", "Failed to generate an authentication token.")
			return
		}

		// Hand the JWT to the frontend so it can store the session.
		redirectTarget := fmt.Sprintf("%s/auth/callback?token=%s", frontendBase, url.QueryEscape(jwtToken))
		c.Redirect(http.StatusFound, redirectTarget)
	}
}

// getOrCreateUser resolves an OIDC identity to a local user, creating the
// account on first login. Lookup is by username first, then email, so an
// account provisioned by an admin before the user's first login is matched
// rather than duplicated.
func (h *AuthHandlers) getOrCreateUser(ctx context.Context, sub, email, username string) (*models.User, error) {
	user, err := h.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = h.userRepo.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
	}
	if user != nil {
		return user, nil
	}

	user = &models.User{
		Username: username,
		Email:    email,
		Enabled:  true,
	}
	if err := h.userRepo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("created user from OIDC login", "username", username, "sub", sub)
	return user, nil
}

// @Summary      OIDC logout
// @Description  Redirects the browser to the provider's end_session_endpoint to terminate the SSO session, falling back to a plain redirect to the frontend when the provider does not advertise one.
// @Tags         Authentication
// @Produce      json
// @Success      302  {object}  string  "Redirects to the OIDC end_session_endpoint or the frontend"
// @Router       /api/v1/auth/logout [get]
// LogoutHandler terminates the OIDC SSO session by redirecting to the provider's end_session_endpoint.
// GET /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		frontendBase := deriveFrontendURL(h.cfg)
		postLogoutRedirect := frontendBase + "/"

		// Without the provider-side logout, clicking "Login" after logout
		// silently re-authenticates via the still-active IdP session cookie.
		if h.oidcProvider != nil {
			if endSessionURL := h.oidcProvider.GetEndSessionEndpoint(); endSessionURL != "" {
				logoutURL, err := url.Parse(endSessionURL)
				if err == nil {
					q := logoutURL.Query()
					q.Set("post_logout_redirect_uri", postLogoutRedirect)
					// Keycloak requires either id_token_hint or client_id when
					// post_logout_redirect_uri is set. client_id is public config
					// and needs nothing stored client-side.
					q.Set("client_id", h.cfg.Auth.OIDC.ClientID)
					logoutURL.RawQuery = q.Encode()
					c.Redirect(http.StatusFound, logoutURL.String())
					return
				}
			}
		}

		c.Redirect(http.StatusFound, postLogoutRedirect)
	}
}

// deriveFrontendURL returns the browser-facing base URL of the frontend.
// It tries (in order):
//  1. cfg.Server.PublicURL — set explicitly to the frontend's public address
//  2. The origin (scheme + host) of cfg.Auth.OIDC.RedirectURL — the registered
//     callback URL already points at the public address
//  3. cfg.Server.BaseURL — internal backend address, last resort.
func deriveFrontendURL(cfg *config.Config) string {
	if cfg.Server.PublicURL != "" {
		return strings.TrimRight(cfg.Server.PublicURL, "/")
	}
	if cfg.Auth.OIDC.RedirectURL != "" {
		if u, err := url.Parse(cfg.Auth.OIDC.RedirectURL); err == nil {
			return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
		}
	}
	return strings.TrimRight(cfg.Server.BaseURL, "/")
}

// @Summary      Refresh JWT token
// @Description  Exchange an existing valid JWT for a fresh one with extended expiration.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "token, expires_in"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal error during token generation"
// @Router       /api/v1/auth/refresh [post]
// RefreshHandler refreshes an existing JWT token
// POST /api/v1/auth/refresh
// Authorization: Bearer <existing_jwt>
func (h *AuthHandlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, exists := c.Get("user")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		user, ok := userVal.(*models.User)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Invalid user in context",
			})
			return
		}

		ttl := h.sessionTTL()
		newToken, err := auth.GenerateJWT(user.ID, user.Username, ttl)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate new token",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      newToken,
			"expires_in": int(ttl.Seconds()),
		})
	}
}

// @Summary      Get current user
// @Description  Retrieve the currently authenticated user along with the scopes in effect for this request.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user: models.User, scopes: []string, auth_method: string"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the current authenticated user and their effective scopes
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, exists := c.Get("user")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		user, ok := userVal.(*models.User)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Invalid user in context",
			})
			return
		}

		scopesVal, _ := c.Get("scopes")
		scopes, _ := scopesVal.([]string)
		authMethod, _ := c.Get("auth_method")

		c.JSON(http.StatusOK, gin.H{
			"user":        user,
			"scopes":      scopes,
			"auth_method": authMethod,
		})
	}
}
