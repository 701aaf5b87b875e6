package governance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/governance/memory"
	"github.com/civic-assembly/backend/internal/models"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *recordingEmitter) Emit(ev models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) types() []models.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditEventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	engine  *governance.Engine
	audit   *recordingEmitter
	clock   *clock
	mode    models.GAMode
	org     models.Organization
	meeting models.Meeting
}

func newFixture(t *testing.T, meetingType models.MeetingType) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(),
		audit: &recordingEmitter{},
		clock: &clock{now: time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)},
		mode:  models.GAModeProduction,
	}
	f.engine = f.newEngine(f.store)
	f.org = f.store.AddOrganization(models.Organization{Name: "Allotment Society", Slug: "allotments"})
	f.meeting = f.store.AddMeeting(models.Meeting{
		OrganizationID: f.org.ID,
		Type:           meetingType,
		Status:         models.MeetingPublished,
		Title:          "Annual General Assembly",
		ScheduledAt:    f.clock.Now(),
	})
	return f
}

// newEngine builds an engine over votes, keeping the fixture's other collaborators.
func (f *fixture) newEngine(votes governance.VoteStore) *governance.Engine {
	return governance.NewEngine(governance.Deps{
		Meetings:   f.store,
		Votes:      votes,
		Members:    f.store,
		Policy:     f.store,
		Attendance: f.store,
		Protocols:  f.store,
		Quorum:     f.store,
		Mode:       func() models.GAMode { return f.mode },
		Audit:      f.audit,
		Now:        f.clock.Now,
	}, nil)
}

func (f *fixture) members(n int, role models.MembershipRole) []models.Membership {
	out := make([]models.Membership, n)
	for i := range out {
		out[i] = f.store.AddMembership(models.Membership{
			OrganizationID: f.org.ID,
			Role:           role,
			Status:         models.MembershipActive,
		})
	}
	return out
}

func (f *fixture) item(no int, procedural bool, status *models.ResolutionStatus) (models.AgendaItem, models.Resolution) {
	return f.store.AddAgendaItem(models.AgendaItem{
		MeetingID:        f.meeting.ID,
		ItemNo:           no,
		Title:            "Item",
		IsProcedural:     procedural,
		ResolutionStatus: status,
	}, f.org.ID)
}

func (f *fixture) openVote(res models.Resolution) models.Vote {
	f.t.Helper()
	meetingID := f.meeting.ID
	v, err := f.engine.OpenVote(f.ctx, governance.OpenVoteInput{
		ResolutionID: res.ID,
		Kind:         models.VoteKindGA,
		MeetingID:    &meetingID,
	})
	require.NoError(f.t, err)
	return *v
}

func (f *fixture) cast(v models.Vote, m models.Membership, choice models.Choice, ch models.Channel) {
	f.t.Helper()
	_, err := f.engine.CastBallot(f.ctx, governance.CastBallotInput{VoteID: v.ID, UserID: m.UserID, Choice: choice, Channel: ch})
	require.NoError(f.t, err)
}

func statusPtr(s models.ResolutionStatus) *models.ResolutionStatus { return &s }

func ids(ms []models.Membership) []uuid.UUID {
	out := make([]uuid.UUID, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
