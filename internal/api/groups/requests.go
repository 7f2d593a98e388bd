package groups

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupkeeper/groupkeeper/internal/db/models"
	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/graph"
	"github.com/groupkeeper/groupkeeper/internal/mail"
)

// RequestHandlers handles the membership request workflow
type RequestHandlers struct {
	db          *sql.DB
	requestRepo *repositories.RequestRepository
	groupRepo   *repositories.GroupRepository
	userRepo    *repositories.UserRepository
	edgeRepo    *repositories.EdgeRepository
	counterRepo *repositories.CounterRepository
	auditRepo   *repositories.AuditRepository
	graph       *graph.Graph
	sender      mail.Sender
	publicURL   string
	logger      *slog.Logger
}

// NewRequestHandlers creates a new RequestHandlers instance. sender may be
// nil when notifications are disabled.
func NewRequestHandlers(db *sql.DB, g *graph.Graph, sender mail.Sender, publicURL string, logger *slog.Logger) *RequestHandlers {
	return &RequestHandlers{
		db:          db,
		requestRepo: repositories.NewRequestRepository(db),
		groupRepo:   repositories.NewGroupRepository(db),
		userRepo:    repositories.NewUserRepository(db),
		edgeRepo:    repositories.NewEdgeRepository(db),
		counterRepo: repositories.NewCounterRepository(db),
		auditRepo:   repositories.NewAuditRepository(db),
		graph:       g,
		sender:      sender,
		publicURL:   publicURL,
		logger:      logger,
	}
}

func (h *RequestHandlers) bumpUpdates(c *gin.Context) {
	if err := h.counterRepo.IncrementCounter(c.Request.Context(), models.CounterUpdates); err != nil {
		c.Error(err) //nolint:errcheck
	}
}

// currentUser returns the authenticated user placed in the context by the
// auth middleware
func currentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// isAdmin reports whether the request carries the admin scope
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

// audit records a request-workflow audit entry and suppresses the generic
// middleware entry for this request
func (h *RequestHandlers) audit(c *gin.Context, actor, action, requestID string, details map[string]interface{}) {
	entry := &models.AuditLog{
		Actor:        actor,
		Action:       action,
		ResourceType: "membership_request",
		ResourceID:   requestID,
		Details:      details,
		IPAddress:    c.ClientIP(),
	}
	if err := h.auditRepo.CreateAuditLog(c.Request.Context(), entry); err != nil {
		h.logger.Error("failed to write audit log", "action", action, "error", err)
	}
	c.Set("audit_logged", true)
}

// CreateRequestRequest represents the request to file a membership request
type CreateRequestRequest struct {
	Role       string  `json:"role"`
	Reason     string  `json:"reason"`
	ExpiresAt  *string `json:"expires_at"`   // RFC3339; omit for a membership that never expires
	OnBehalfOf string  `json:"on_behalf_of"` // username; requires requests to be filed for someone else
}

// @Summary      Create membership request
// @Description  File a request to join a group, optionally on another user's behalf. Approvers are notified by email. Requires groups:read scope.
// @Tags         Requests
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        name  path  string                true  "Group name"
// @Param        body  body  CreateRequestRequest  true  "Membership request"
// @Success      201  {object}  map[string]interface{}  "request: models.MembershipRequest"
// @Failure      400  {object}  map[string]interface{}  "Invalid request, role, or expiry"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group or on_behalf_of user not found"
// @Failure      409  {object}  map[string]interface{}  "A pending request or active membership already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name}/requests [post]
// CreateRequestHandler files a membership request
// POST /api/v1/groups/:name/requests
func (h *RequestHandlers) CreateRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req CreateRequestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
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
		if group == nil || !group.Enabled {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Group not found",
			})
			return
		}

		requester := actor
		if req.OnBehalfOf != "" && req.OnBehalfOf != actor.Username {
			requester, err = h.userRepo.GetUserByUsername(c.Request.Context(), req.OnBehalfOf)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to retrieve on_behalf_of user",
				})
				return
			}
			if requester == nil {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "on_behalf_of user not found",
				})
				return
			}
		}

		// A direct active edge makes the request pointless.
		existingEdge, err := h.edgeRepo.GetUserEdge(c.Request.Context(), group.ID, requester.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check existing membership",
			})
			return
		}
		if existingEdge != nil && existingEdge.Active && !existingEdge.IsExpired() {
			c.JSON(http.StatusConflict, gin.H{
				"error": "User is already a direct member of this group",
			})
			return
		}

		pending, err := h.requestRepo.GetPendingRequest(c.Request.Context(), group.ID, requester.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check pending requests",
			})
			return
		}
		if pending != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "A pending request for this user and group already exists",
			})
			return
		}

		request := &models.MembershipRequest{
			GroupID:       group.ID,
			RequesterID:   requester.ID,
			RequestedByID: actor.ID,
			Role:          role,
			Reason:        req.Reason,
			ExpiresAt:     expiresAt,
		}

		if err := h.requestRepo.CreateRequest(c.Request.Context(), request); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create request",
			})
			return
		}

		request.GroupName = group.Name
		request.RequesterUsername = requester.Username
		request.RequestedByName = actor.Username

		h.notifyApprovers(group.Name, request)

		h.audit(c, actor.Username, "request.create", request.ID, map[string]interface{}{
			"group":     group.Name,
			"requester": requester.Username,
			"role":      role,
		})

		c.JSON(http.StatusCreated, gin.H{
			"request": request,
		})
	}
}

// notifyApprovers emails the group's approvers about a new pending request.
// Delivery failures are logged, never surfaced to the requester.
func (h *RequestHandlers) notifyApprovers(groupName string, request *models.MembershipRequest) {
	if h.sender == nil {
		return
	}

	to := h.graph.ApproverEmails(groupName)
	if len(to) == 0 {
		h.logger.Warn("no approver emails for group, request will sit unnoticed",
			"group", groupName, "request_id", request.ID)
		return
	}

	subject, body, err := mail.RenderMembershipRequest(mail.MembershipRequestData{
		Requester:   request.RequesterUsername,
		RequestedBy: request.RequestedByName,
		GroupName:   groupName,
		Role:        request.Role,
		Expiration:  request.ExpiresAt,
		Reason:      request.Reason,
		URL:         h.publicURL,
	})
	if err != nil {
		h.logger.Error("failed to render membership request email", "error", err)
		return
	}

	if err := h.sender.Send("membership_request", to, subject, body); err != nil {
		h.logger.Error("failed to send membership request email",
			"group", groupName, "recipients", len(to), "error", err)
	}
}

// @Summary      List membership requests
// @Description  List membership requests for a group, newest first, optionally filtered by status. Requires groups:read scope.
// @Tags         Requests
// @Security     Bearer
// @Produce      json
// @Param        name      path   string  true   "Group name"
// @Param        status    query  string  false  "Filter by status (pending, approved, denied, cancelled)"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "requests: []models.MembershipRequest, pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Group not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/groups/{name}/requests [get]
// ListGroupRequestsHandler lists a group's membership requests
// GET /api/v1/groups/:name/requests?status=pending
func (h *RequestHandlers) ListGroupRequestsHandler() gin.HandlerFunc {
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

		page, perPage, offset := parsePagination(c)

		filters := repositories.RequestFilters{GroupID: &group.ID}
		if status := c.Query("status"); status != "" {
			filters.Status = &status
		}

		total, err := h.requestRepo.CountRequests(c.Request.Context(), filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list requests",
			})
			return
		}

		requests, err := h.requestRepo.ListRequests(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list requests",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"requests": requests,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      List my membership requests
// @Description  List membership requests the authenticated user filed or is the subject of, newest first.
// @Tags         Requests
// @Security     Bearer
// @Produce      json
// @Param        status    query  string  false  "Filter by status"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "requests: []models.MembershipRequest, pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/requests [get]
// ListMyRequestsHandler lists the caller's own requests
// GET /api/v1/requests?status=pending
func (h *RequestHandlers) ListMyRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		page, perPage, offset := parsePagination(c)

		filters := repositories.RequestFilters{RequesterID: &user.ID}
		if status := c.Query("status"); status != "" {
			filters.Status = &status
		}

		total, err := h.requestRepo.CountRequests(c.Request.Context(), filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list requests",
			})
			return
		}

		requests, err := h.requestRepo.ListRequests(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list requests",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"requests": requests,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get membership request
// @Description  Get a single membership request by ID, including joined group and user names.
// @Tags         Requests
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Request ID"
// @Success      200  {object}  map[string]interface{}  "request: models.MembershipRequest"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/requests/{id} [get]
// GetRequestHandler retrieves a single request
// GET /api/v1/requests/:id
func (h *RequestHandlers) GetRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		request, err := h.requestRepo.GetRequestByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve request",
			})
			return
		}
		if request == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Request not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request": request,
		})
	}
}

// ResolveRequestRequest carries the optional note attached to an approval or
// denial
type ResolveRequestRequest struct {
	Note string `json:"note"`
}

// @Summary      Approve membership request
// @Description  Approve a pending request. The approver must hold manager, owner, or np-owner in the target group (admin bypasses). Creates or revives the membership edge and emails the requester.
// @Tags         Requests
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true   "Request ID"
// @Param        body  body  ResolveRequestRequest  false  "Optional resolution note"
// @Success      200  {object}  map[string]interface{}  "request: models.MembershipRequest, edge: models.GroupEdge"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Not an approver for this group"
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Failure      409  {object}  map[string]interface{}  "Request already resolved"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/requests/{id}/approve [post]
// ApproveRequestHandler approves a pending request and materializes the edge
// POST /api/v1/requests/:id/approve
func (h *RequestHandlers) ApproveRequestHandler() gin.HandlerFunc {
	return h.resolveHandler(models.RequestStatusApproved)
}

// @Summary      Deny membership request
// @Description  Deny a pending request. The approver must hold manager, owner, or np-owner in the target group (admin bypasses). Emails the requester.
// @Tags         Requests
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true   "Request ID"
// @Param        body  body  ResolveRequestRequest  false  "Optional resolution note"
// @Success      200  {object}  map[string]interface{}  "request: models.MembershipRequest"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Not an approver for this group"
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Failure      409  {object}  map[string]interface{}  "Request already resolved"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/requests/{id}/deny [post]
// DenyRequestHandler denies a pending request
// POST /api/v1/requests/:id/deny
func (h *RequestHandlers) DenyRequestHandler() gin.HandlerFunc {
	return h.resolveHandler(models.RequestStatusDenied)
}

// resolveHandler implements approve and deny; they differ only in the
// terminal status and whether an edge is materialized.
func (h *RequestHandlers) resolveHandler(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req ResolveRequestRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid request: " + err.Error(),
				})
				return
			}
		}

		request, err := h.requestRepo.GetRequestByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve request",
			})
			return
		}
		if request == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Request not found",
			})
			return
		}

		// The scope check at the route only proves the session may approve
		// in general; the group role is the real gate.
		if !isAdmin(c) && !h.graph.HasRole(actor.Username, request.GroupName,
			models.RoleManager, models.RoleOwner, models.RoleNpOwner) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "You are not an approver for this group",
			})
			return
		}

		if !request.IsPending() {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Request is already " + request.Status,
			})
			return
		}

		var note *string
		if req.Note != "" {
			note = &req.Note
		}

		won, err := h.requestRepo.ResolveRequest(c.Request.Context(), request.ID, status, actor.ID, note)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve request",
			})
			return
		}
		if !won {
			// Another approver got there first.
			c.JSON(http.StatusConflict, gin.H{
				"error": "Request was resolved concurrently",
			})
			return
		}

		var edge *models.GroupEdge
		if status == models.RequestStatusApproved {
			edge, err = h.materializeEdge(c, request)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Request approved but membership edge could not be written",
				})
				return
			}
			h.bumpUpdates(c)
		}

		request.Status = status
		request.ResolvedByID = &actor.ID
		request.ResolutionNote = note
		now := time.Now()
		request.ResolvedAt = &now

		h.sendResolvedEmail(c, request, actor.Username)

		h.audit(c, actor.Username, "request."+statusAction(status), request.ID, map[string]interface{}{
			"group":     request.GroupName,
			"requester": request.RequesterUsername,
			"role":      request.Role,
		})

		resp := gin.H{"request": request}
		if edge != nil {
			resp["edge"] = edge
		}
		c.JSON(http.StatusOK, resp)
	}
}

func statusAction(status string) string {
	if status == models.RequestStatusApproved {
		return "approve"
	}
	return "deny"
}

// materializeEdge creates the membership edge an approval stands for, or
// revives the requester's previous inactive edge
func (h *RequestHandlers) materializeEdge(c *gin.Context, request *models.MembershipRequest) (*models.GroupEdge, error) {
	existing, err := h.edgeRepo.GetUserEdge(c.Request.Context(), request.GroupID, request.RequesterID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		existing.Role = request.Role
		existing.Active = true
		existing.ExpiresAt = request.ExpiresAt
		if err := h.edgeRepo.UpdateEdge(c.Request.Context(), existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	edge := &models.GroupEdge{
		GroupID:      request.GroupID,
		MemberUserID: &request.RequesterID,
		Role:         request.Role,
		Active:       true,
		ExpiresAt:    request.ExpiresAt,
	}
	if err := h.edgeRepo.CreateEdge(c.Request.Context(), edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// sendResolvedEmail notifies the requester about the outcome. Failures are
// logged, never surfaced.
func (h *RequestHandlers) sendResolvedEmail(c *gin.Context, request *models.MembershipRequest, resolvedBy string) {
	if h.sender == nil {
		return
	}

	requester, err := h.userRepo.GetUserByID(c.Request.Context(), request.RequesterID)
	if err != nil || requester == nil || requester.Email == "" {
		h.logger.Warn("cannot email requester about resolution",
			"request_id", request.ID, "error", err)
		return
	}

	note := ""
	if request.ResolutionNote != nil {
		note = *request.ResolutionNote
	}

	subject, body, err := mail.RenderRequestResolved(mail.RequestResolvedData{
		Requester:  requester.Username,
		GroupName:  request.GroupName,
		Role:       request.Role,
		Status:     request.Status,
		ResolvedBy: resolvedBy,
		Note:       note,
		URL:        h.publicURL,
	})
	if err != nil {
		h.logger.Error("failed to render request resolved email", "error", err)
		return
	}

	if err := h.sender.Send("request_resolved", []string{requester.Email}, subject, body); err != nil {
		h.logger.Error("failed to send request resolved email",
			"request_id", request.ID, "error", err)
	}
}

// @Summary      Cancel membership request
// @Description  Cancel a pending request. Only the requester or the user who filed it may cancel (admin bypasses).
// @Tags         Requests
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Request ID"
// @Success      200  {object}  map[string]interface{}  "request: models.MembershipRequest"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Not the requester"
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Failure      409  {object}  map[string]interface{}  "Request already resolved"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/requests/{id}/cancel [post]
// CancelRequestHandler cancels a pending request
// POST /api/v1/requests/:id/cancel
func (h *RequestHandlers) CancelRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		request, err := h.requestRepo.GetRequestByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve request",
			})
			return
		}
		if request == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Request not found",
			})
			return
		}

		if actor.ID != request.RequesterID && actor.ID != request.RequestedByID && !isAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Only the requester may cancel a request",
			})
			return
		}

		if !request.IsPending() {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Request is already " + request.Status,
			})
			return
		}

		won, err := h.requestRepo.ResolveRequest(c.Request.Context(), request.ID, models.RequestStatusCancelled, actor.ID, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to cancel request",
			})
			return
		}
		if !won {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Request was resolved concurrently",
			})
			return
		}

		request.Status = models.RequestStatusCancelled
		request.ResolvedByID = &actor.ID
		now := time.Now()
		request.ResolvedAt = &now

		h.audit(c, actor.Username, "request.cancel", request.ID, map[string]interface{}{
			"group":     request.GroupName,
			"requester": request.RequesterUsername,
		})

		c.JSON(http.StatusOK, gin.H{
			"request": request,
		})
	}
}
