package votes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/middleware"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/response"
)

// Handler handles vote HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a votes handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// OpenVoteRequest is the body for POST /resolutions/:id/votes.
type OpenVoteRequest struct {
	Kind      models.VoteKind `json:"kind" binding:"required"`
	MeetingID *uuid.UUID      `json:"meeting_id"`
	OpensAt   *time.Time      `json:"opens_at"`
	ClosesAt  *time.Time      `json:"closes_at"`
}

// CastBallotRequest is the body for POST /votes/:id/ballots.
type CastBallotRequest struct {
	Choice  models.Choice  `json:"choice" binding:"required"`
	Channel models.Channel `json:"channel" binding:"required"`
}

func idParam(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

// Open handles POST /resolutions/:id/votes.
func (h *Handler) Open(c *gin.Context) {
	resID, ok := idParam(c, "resolution")
	if !ok {
		return
	}
	var body OpenVoteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "kind required")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	v, err := h.svc.Open(c.Request.Context(), userID, OpenInput{
		ResolutionID: resID,
		Kind:         body.Kind,
		MeetingID:    body.MeetingID,
		OpensAt:      body.OpensAt,
		ClosesAt:     body.ClosesAt,
	})
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.Created(c, v)
}

// Get handles GET /votes/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := idParam(c, "vote")
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	v, err := h.svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, v)
}

// ListByMeeting handles GET /meetings/:id/votes.
func (h *Handler) ListByMeeting(c *gin.Context) {
	id, ok := idParam(c, "meeting")
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.ListByMeeting(c.Request.Context(), userID, id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	if list == nil {
		list = []models.Vote{}
	}
	response.OK(c, list)
}

// Cast handles POST /votes/:id/ballots. The ballot is always cast for the
// authenticated user.
func (h *Handler) Cast(c *gin.Context) {
	id, ok := idParam(c, "vote")
	if !ok {
		return
	}
	var body CastBallotRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "choice and channel required")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	b, err := h.svc.Cast(c.Request.Context(), userID, id, body.Choice, body.Channel)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.Created(c, b)
}

// Close handles POST /votes/:id/close.
func (h *Handler) Close(c *gin.Context) {
	id, ok := idParam(c, "vote")
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	res, err := h.svc.Close(c.Request.Context(), userID, id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, res)
}

// Register mounts the vote routes on a JWT-protected group.
func (h *Handler) Register(api gin.IRoutes) {
	api.POST("/resolutions/:id/votes", h.Open)
	api.GET("/meetings/:id/votes", h.ListByMeeting)
	api.GET("/votes/:id", h.Get)
	api.POST("/votes/:id/ballots", h.Cast)
	api.POST("/votes/:id/close", h.Close)
}
