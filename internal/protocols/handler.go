package protocols

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/middleware"
	"github.com/civic-assembly/backend/pkg/response"
	"github.com/civic-assembly/backend/pkg/storage"
)

// Handler handles protocol HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a protocols handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// UploadURL handles POST /meetings/:id/protocol/upload-url.
func (h *Handler) UploadURL(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	target, err := h.svc.UploadURL(c.Request.Context(), userID, meetingID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, target)
}

// Upload handles PUT /meetings/:id/protocol with a multipart "file" field.
func (h *Handler) Upload(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxProtocolFileSize+1024*1024)
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file required")
		return
	}
	if !storage.ValidateProtocolFile(fh.Header.Get("Content-Type"), fh.Filename) {
		response.BadRequest(c, "protocol must be a PDF")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}
	defer f.Close()
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if err := h.svc.Upload(c.Request.Context(), userID, meetingID, f, fh.Size); err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.NoContent(c)
}

// Status handles GET /meetings/:id/protocol.
func (h *Handler) Status(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	st, err := h.svc.Status(c.Request.Context(), userID, meetingID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, st)
}

// Register mounts the protocol routes on a JWT-protected group.
func (h *Handler) Register(api gin.IRoutes) {
	api.POST("/meetings/:id/protocol/upload-url", h.UploadURL)
	api.PUT("/meetings/:id/protocol", h.Upload)
	api.GET("/meetings/:id/protocol", h.Status)
}
