package audit

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/middleware"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/response"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Lister reads stored audit events.
type Lister interface {
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]models.AuditEvent, error)
}

// Authorizer checks a user's standing in an organization.
type Authorizer interface {
	Authorize(ctx context.Context, orgID, userID uuid.UUID, roles ...models.MembershipRole) (*models.Membership, error)
}

// Handler serves the audit trail to owners and board members.
type Handler struct {
	events Lister
	auth   Authorizer
}

// NewHandler creates an audit handler.
func NewHandler(events Lister, auth Authorizer) *Handler {
	return &Handler{events: events, auth: auth}
}

// List handles GET /organizations/:id/audit-events?limit=N.
func (h *Handler) List(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ctx := c.Request.Context()
	if _, err := h.auth.Authorize(ctx, orgID, userID, models.MemberRoleOwner, models.MemberRoleBoard); err != nil {
		middleware.WriteError(c, err)
		return
	}
	list, err := h.events.ListByOrganization(ctx, orgID, limit)
	if err != nil {
		middleware.WriteError(c, governance.Failed("list audit events", err))
		return
	}
	if list == nil {
		list = []models.AuditEvent{}
	}
	response.OK(c, list)
}

// Register mounts the audit routes on a JWT-protected group.
func (h *Handler) Register(api gin.IRoutes) {
	api.GET("/organizations/:id/audit-events", h.List)
}
