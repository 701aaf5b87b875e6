package meetings

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/middleware"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/response"
)

// Handler handles meeting HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a meetings handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateMeetingRequest is the body for POST /organizations/:id/meetings.
type CreateMeetingRequest struct {
	Type        models.MeetingType `json:"type" binding:"required"`
	Title       string             `json:"title" binding:"required"`
	ScheduledAt time.Time          `json:"scheduled_at" binding:"required"`
}

// StatusRequest is the body for PATCH /meetings/:id/status.
type StatusRequest struct {
	Status models.MeetingStatus `json:"status" binding:"required"`
}

// AgendaItemRequest is the body for POST /meetings/:id/agenda-items.
type AgendaItemRequest struct {
	ItemNo       int    `json:"item_no" binding:"required"`
	Title        string `json:"title" binding:"required"`
	IsProcedural bool   `json:"is_procedural"`
}

// ResolutionRequest is the body for POST /organizations/:id/resolutions.
type ResolutionRequest struct {
	MeetingID    *uuid.UUID `json:"meeting_id"`
	AgendaItemID *uuid.UUID `json:"agenda_item_id"`
	Title        string     `json:"title" binding:"required"`
}

// CheckInRequest is the optional body for POST /meetings/:id/attendance.
type CheckInRequest struct {
	MembershipID *uuid.UUID `json:"membership_id"`
}

func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

func actor(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

// Create handles POST /organizations/:id/meetings.
func (h *Handler) Create(c *gin.Context) {
	orgID, ok := pathID(c, "organization")
	if !ok {
		return
	}
	var body CreateMeetingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "type, title and scheduled_at required")
		return
	}
	m, err := h.svc.Create(c.Request.Context(), actor(c), CreateMeetingInput{
		OrganizationID: orgID,
		Type:           body.Type,
		Title:          body.Title,
		ScheduledAt:    body.ScheduledAt,
	})
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.Created(c, m)
}

// Get handles GET /meetings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	m, err := h.svc.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, m)
}

// SetStatus handles PATCH /meetings/:id/status (publish or cancel).
func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	var body StatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "status required")
		return
	}
	m, err := h.svc.SetStatus(c.Request.Context(), actor(c), id, body.Status)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, m)
}

// AddAgendaItem handles POST /meetings/:id/agenda-items.
func (h *Handler) AddAgendaItem(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	var body AgendaItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "item_no and title required")
		return
	}
	item, err := h.svc.AddAgendaItem(c.Request.Context(), actor(c), id, AgendaItemInput{
		ItemNo:       body.ItemNo,
		Title:        body.Title,
		IsProcedural: body.IsProcedural,
	})
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.Created(c, item)
}

// ListAgenda handles GET /meetings/:id/agenda-items.
func (h *Handler) ListAgenda(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	items, err := h.svc.ListAgenda(c.Request.Context(), actor(c), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	if items == nil {
		items = []models.AgendaItem{}
	}
	response.OK(c, items)
}

// CreateResolution handles POST /organizations/:id/resolutions.
func (h *Handler) CreateResolution(c *gin.Context) {
	orgID, ok := pathID(c, "organization")
	if !ok {
		return
	}
	var body ResolutionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "title required")
		return
	}
	res, err := h.svc.CreateResolution(c.Request.Context(), actor(c), ResolutionInput{
		OrganizationID: orgID,
		MeetingID:      body.MeetingID,
		AgendaItemID:   body.AgendaItemID,
		Title:          body.Title,
	})
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.Created(c, res)
}

// CheckIn handles POST /meetings/:id/attendance.
func (h *Handler) CheckIn(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	var body CheckInRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}
	if err := h.svc.CheckIn(c.Request.Context(), actor(c), id, body.MembershipID); err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.NoContent(c)
}

// Quorum handles GET /meetings/:id/quorum.
func (h *Handler) Quorum(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	snap, err := h.svc.Quorum(c.Request.Context(), actor(c), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, snap)
}

// Gate handles GET /meetings/:id/gate.
func (h *Handler) Gate(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	d, err := h.svc.Gate(c.Request.Context(), actor(c), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, d)
}

// Completion handles GET /meetings/:id/completion.
func (h *Handler) Completion(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	v, err := h.svc.Completion(c.Request.Context(), actor(c), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, v)
}

// Complete handles POST /meetings/:id/complete.
func (h *Handler) Complete(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	v, err := h.svc.Complete(c.Request.Context(), actor(c), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, v)
}

// CloseAllVotes handles POST /meetings/:id/votes/close-all.
func (h *Handler) CloseAllVotes(c *gin.Context) {
	id, ok := pathID(c, "meeting")
	if !ok {
		return
	}
	res, err := h.svc.CloseAllVotes(c.Request.Context(), actor(c), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, res)
}

// Register mounts the meeting routes on a JWT-protected group.
func (h *Handler) Register(api gin.IRoutes) {
	api.POST("/organizations/:id/meetings", h.Create)
	api.POST("/organizations/:id/resolutions", h.CreateResolution)
	api.GET("/meetings/:id", h.Get)
	api.PATCH("/meetings/:id/status", h.SetStatus)
	api.POST("/meetings/:id/agenda-items", h.AddAgendaItem)
	api.GET("/meetings/:id/agenda-items", h.ListAgenda)
	api.POST("/meetings/:id/attendance", h.CheckIn)
	api.GET("/meetings/:id/quorum", h.Quorum)
	api.GET("/meetings/:id/gate", h.Gate)
	api.GET("/meetings/:id/completion", h.Completion)
	api.POST("/meetings/:id/complete", h.Complete)
	api.POST("/meetings/:id/votes/close-all", h.CloseAllVotes)
}
