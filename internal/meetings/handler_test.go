package meetings_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-assembly/backend/internal/meetings"
	"github.com/civic-assembly/backend/internal/middleware"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/response"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", func(c *gin.Context) {
		id, _ := uuid.Parse(c.GetHeader("X-User"))
		c.Set(middleware.ContextUserID, id)
		c.Next()
	})
	meetings.NewHandler(f.svc).Register(api)
	return r
}

func call(r http.Handler, method, path string, user uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var body struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.NoError(t, json.Unmarshal(body.Data, v))
}

func TestHandlerMeetingFlow(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	owner := f.owner.UserID

	w := call(r, http.MethodPost, "/api/v1/organizations/"+f.org.ID.String()+"/meetings", owner, map[string]string{
		"type":         "GA",
		"title":        "Spring assembly",
		"scheduled_at": "2026-05-04T18:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var m models.Meeting
	decodeData(t, w, &m)
	assert.Equal(t, models.MeetingDraft, m.Status)
	base := "/api/v1/meetings/" + m.ID.String()

	w = call(r, http.MethodPatch, base+"/status", owner, map[string]string{"status": "PUBLISHED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(r, http.MethodPost, base+"/agenda-items", owner, map[string]interface{}{"item_no": 1, "title": "Chair", "is_procedural": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = call(r, http.MethodPost, base+"/agenda-items", owner, map[string]interface{}{"item_no": 1, "title": "Chair again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = call(r, http.MethodGet, base+"/agenda-items", f.members[0].UserID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.AgendaItem
	decodeData(t, w, &items)
	assert.Len(t, items, 1)

	w = call(r, http.MethodPost, base+"/attendance", f.members[0].UserID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = call(r, http.MethodGet, base+"/quorum", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		LiveAttendees int `json:"live_attendees"`
	}
	decodeData(t, w, &snap)
	assert.Equal(t, 1, snap.LiveAttendees)
}

func TestHandlerCompleteReturnsMissing(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	m := f.meeting(t, models.MeetingPublished)

	w := call(r, http.MethodPost, "/api/v1/meetings/"+m.ID.String()+"/complete", f.owner.UserID, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INCOMPLETE_FOR_COMPLETION", body.Kind)
	assert.Contains(t, body.Missing, "signed protocol not uploaded")
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	m := f.meeting(t, models.MeetingPublished)

	w := call(r, http.MethodGet, "/api/v1/meetings/not-a-uuid", f.owner.UserID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodGet, "/api/v1/meetings/"+uuid.New().String(), f.owner.UserID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(r, http.MethodGet, "/api/v1/meetings/"+m.ID.String(), uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(r, http.MethodPost, "/api/v1/meetings/"+m.ID.String()+"/votes/close-all", f.members[0].UserID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
