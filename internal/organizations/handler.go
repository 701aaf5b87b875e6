package organizations

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/middleware"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/response"
)

// Slug must be lowercase alphanumeric and hyphens only, 2–64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// Handler handles organization and membership HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an organizations handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name              string                 `json:"name" binding:"required"`
	Slug              string                 `json:"slug" binding:"required"`
	QuorumNumerator   *int                   `json:"quorum_numerator"`
	QuorumDenominator *int                   `json:"quorum_denominator"`
	QuorumRounding    *models.QuorumRounding `json:"quorum_rounding"`
	EarlyVotingDays   *int                   `json:"early_voting_days"`
}

// JoinOrganizationRequest is the body for POST /organizations/join.
type JoinOrganizationRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// ChangeStatusRequest is the body for PATCH /organizations/:id/members/:membershipId/status.
type ChangeStatusRequest struct {
	Status models.MembershipStatus `json:"status" binding:"required"`
}

// VotingBlockRequest is the body for PUT /organizations/:id/members/:membershipId/voting-block.
// A null or empty reason clears the block.
type VotingBlockRequest struct {
	Reason *string `json:"reason"`
}

func validQuorumSettings(req CreateOrganizationRequest) string {
	if (req.QuorumNumerator == nil) != (req.QuorumDenominator == nil) {
		return "quorum_numerator and quorum_denominator must be set together"
	}
	if req.QuorumNumerator != nil {
		n, d := *req.QuorumNumerator, *req.QuorumDenominator
		if d <= 0 || n <= 0 || n > d {
			return "quorum fraction must lie in (0, 1]"
		}
	}
	if req.QuorumRounding != nil && !req.QuorumRounding.Valid() {
		return "quorum_rounding must be CEIL or FLOOR"
	}
	if req.EarlyVotingDays != nil && *req.EarlyVotingDays < 0 {
		return "early_voting_days must not be negative"
	}
	return ""
}

// CreateOrganization handles POST /organizations. Creates org and adds current user as owner.
func (h *Handler) CreateOrganization(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and slug required")
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !slugRegex.MatchString(body.Slug) {
		response.BadRequest(c, "slug must be 2–64 chars, lowercase letters, numbers, hyphens only")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.BadRequest(c, "name must be 1–255 characters")
		return
	}
	if msg := validQuorumSettings(body); msg != "" {
		response.BadRequest(c, msg)
		return
	}
	org := &models.Organization{
		Name:              body.Name,
		Slug:              body.Slug,
		QuorumNumerator:   body.QuorumNumerator,
		QuorumDenominator: body.QuorumDenominator,
		QuorumRounding:    body.QuorumRounding,
		EarlyVotingDays:   body.EarlyVotingDays,
	}
	if _, err := h.svc.CreateOrganization(c.Request.Context(), org, userID); err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.Created(c, org)
}

// JoinOrganization handles POST /organizations/join. The membership starts
// PENDING until an owner or board member approves it.
func (h *Handler) JoinOrganization(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body JoinOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "slug required")
		return
	}
	slug := strings.ToLower(strings.TrimSpace(body.Slug))
	if slug == "" {
		response.BadRequest(c, "slug required")
		return
	}
	m, err := h.svc.Join(c.Request.Context(), slug, userID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.Created(c, m)
}

// ListMyOrganizations handles GET /organizations. Returns orgs the current user is a member of.
func (h *Handler) ListMyOrganizations(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	orgs, err := h.svc.ListOrganizations(c.Request.Context(), userID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	if orgs == nil {
		orgs = []models.Organization{}
	}
	response.OK(c, orgs)
}

// ListMembers handles GET /organizations/:id/members. Requires an active membership.
func (h *Handler) ListMembers(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.ListMembers(c.Request.Context(), orgID, userID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, list)
}

func membershipParams(c *gin.Context) (orgID, membershipID uuid.UUID, ok bool) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return uuid.Nil, uuid.Nil, false
	}
	membershipID, err = uuid.Parse(c.Param("membershipId"))
	if err != nil {
		response.BadRequest(c, "invalid membership id")
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, membershipID, true
}

// ApproveMember handles POST /organizations/:id/members/:membershipId/approve.
func (h *Handler) ApproveMember(c *gin.Context) {
	orgID, membershipID, ok := membershipParams(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	m, err := h.svc.Approve(c.Request.Context(), orgID, membershipID, userID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, m)
}

// ChangeMemberStatus handles PATCH /organizations/:id/members/:membershipId/status.
func (h *Handler) ChangeMemberStatus(c *gin.Context) {
	orgID, membershipID, ok := membershipParams(c)
	if !ok {
		return
	}
	var body ChangeStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "status required")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	m, err := h.svc.ChangeStatus(c.Request.Context(), orgID, membershipID, userID, body.Status)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, m)
}

// SetVotingBlock handles PUT /organizations/:id/members/:membershipId/voting-block.
func (h *Handler) SetVotingBlock(c *gin.Context) {
	orgID, membershipID, ok := membershipParams(c)
	if !ok {
		return
	}
	var body VotingBlockRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if body.Reason != nil && strings.TrimSpace(*body.Reason) == "" {
		body.Reason = nil
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	m, err := h.svc.SetVotingBlock(c.Request.Context(), orgID, membershipID, userID, body.Reason)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, m)
}

// Register mounts the organization routes on a JWT-protected group.
func (h *Handler) Register(api gin.IRoutes) {
	api.GET("/organizations", h.ListMyOrganizations)
	api.POST("/organizations", h.CreateOrganization)
	api.POST("/organizations/join", h.JoinOrganization)
	api.GET("/organizations/:id/members", h.ListMembers)
	api.POST("/organizations/:id/members/:membershipId/approve", h.ApproveMember)
	api.PATCH("/organizations/:id/members/:membershipId/status", h.ChangeMemberStatus)
	api.PUT("/organizations/:id/members/:membershipId/voting-block", h.SetVotingBlock)
}
