package meetings_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/governance/memory"
	"github.com/civic-assembly/backend/internal/meetings"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/internal/organizations"
)

// mapCache is an in-process QuorumCache that counts invalidations.
type mapCache struct {
	mu          sync.Mutex
	snaps       map[uuid.UUID]governance.QuorumSnapshot
	byOrg       map[uuid.UUID][]uuid.UUID
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{
		snaps: make(map[uuid.UUID]governance.QuorumSnapshot),
		byOrg: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (c *mapCache) Get(_ context.Context, id uuid.UUID) (*governance.QuorumSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snaps[id]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *mapCache) Set(_ context.Context, orgID uuid.UUID, snap *governance.QuorumSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.MeetingID] = *snap
	c.byOrg[orgID] = append(c.byOrg[orgID], snap.MeetingID)
}

func (c *mapCache) Invalidate(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, id)
	c.invalidated++
}

func (c *mapCache) InvalidateOrganization(_ context.Context, orgID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.byOrg[orgID] {
		delete(c.snaps, id)
	}
	delete(c.byOrg, orgID)
	c.invalidated++
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *recordingEmitter) Emit(ev models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) ofType(typ models.AuditEventType) []models.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditEvent
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	ctx     context.Context
	store   *memory.Store
	cache   *mapCache
	audit   *recordingEmitter
	orgs    *organizations.Service
	svc     *meetings.Service
	org     models.Organization
	owner   models.Membership
	members []models.Membership
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), store: memory.NewStore(), cache: newMapCache(), audit: &recordingEmitter{}}
	orgs := organizations.NewService(f.store, nil, nil, organizations.WithQuorumInvalidator(f.cache))
	f.orgs = orgs
	org := &models.Organization{Name: "Allotment Society", Slug: "allotments"}
	owner, err := orgs.CreateOrganization(f.ctx, org, uuid.New())
	require.NoError(t, err)
	f.org, f.owner = *org, *owner
	for i := 0; i < 3; i++ {
		f.members = append(f.members, f.store.AddMembership(models.Membership{
			OrganizationID: org.ID,
			Role:           models.MemberRoleMember,
			Status:         models.MembershipActive,
		}))
	}
	engine := governance.NewEngine(governance.Deps{
		Meetings:   f.store,
		Votes:      f.store,
		Members:    f.store,
		Policy:     f.store,
		Attendance: f.store,
		Protocols:  f.store,
		Quorum:     f.store,
		Mode:       governance.StaticMode(models.GAModeProduction),
	}, nil)
	f.svc = meetings.NewService(f.store, orgs, engine, f.cache, f.audit, nil)
	return f
}

func (f *fixture) meeting(t *testing.T, status models.MeetingStatus) *models.Meeting {
	t.Helper()
	m, err := f.svc.Create(f.ctx, f.owner.UserID, meetings.CreateMeetingInput{
		OrganizationID: f.org.ID,
		Type:           models.MeetingGA,
		Title:          "Annual General Assembly",
		ScheduledAt:    time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	if status == models.MeetingPublished {
		m, err = f.svc.SetStatus(f.ctx, f.owner.UserID, m.ID, models.MeetingPublished)
		require.NoError(t, err)
	}
	return m
}
