package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-assembly/backend/internal/models"
)

type recordingEmitter struct{ got []models.AuditEventType }

func (r *recordingEmitter) Emit(ev models.AuditEvent) { r.got = append(r.got, ev.Type) }

func TestCountEventsForwards(t *testing.T) {
	m := New()
	next := &recordingEmitter{}
	em := m.CountEvents(next)

	em.Emit(models.AuditEvent{ID: uuid.New(), Type: models.AuditBallotCast})
	em.Emit(models.AuditEvent{ID: uuid.New(), Type: models.AuditBallotCast})
	em.Emit(models.AuditEvent{ID: uuid.New(), Type: models.AuditVoteClosed})

	assert.Equal(t, []models.AuditEventType{models.AuditBallotCast, models.AuditBallotCast, models.AuditVoteClosed}, next.got)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("BALLOT_CAST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("VOTE_CLOSED")))
}

func TestCountEventsWithoutNext(t *testing.T) {
	m := New()
	m.CountEvents(nil).Emit(models.AuditEvent{Type: models.AuditMeetingCompleted})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("MEETING_COMPLETED")))
}

func TestPipelineCounters(t *testing.T) {
	m := New()
	m.AuditDropped("buffer_full")
	m.AuditJob("stored")
	m.AuditJob("stored")
	m.ObserveRequest(http.MethodPost, "/votes/:id/ballots", http.StatusCreated, 12*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("buffer_full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobs.WithLabelValues("stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/votes/:id/ballots", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.AuditJob("retried")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `assembly_audit_jobs_total{result="retried"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
