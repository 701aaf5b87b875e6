package organizations_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/governance/memory"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/internal/organizations"
)

type captured struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (c *captured) Emit(ev models.AuditEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type serviceFixture struct {
	ctx   context.Context
	store *memory.Store
	svc   *organizations.Service
	audit *captured
	clock *testClock
	org   *models.Organization
	owner uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		ctx:   context.Background(),
		store: memory.NewStore(),
		audit: &captured{},
		clock: &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		owner: uuid.New(),
	}
	f.svc = organizations.NewService(f.store, f.audit, nil,
		organizations.WithClock(f.clock.Now),
		organizations.WithConsentWindow(7*24*time.Hour))
	f.org = &models.Organization{Name: "Harbour Co-op", Slug: "harbour"}
	_, err := f.svc.CreateOrganization(f.ctx, f.org, f.owner)
	require.NoError(t, err)
	return f
}

func TestCreateOrganizationMakesOwner(t *testing.T) {
	f := newServiceFixture(t)

	assert.Equal(t, models.OrgStatusActive, f.org.Status)
	m, err := f.svc.Authorize(f.ctx, f.org.ID, f.owner, models.MemberRoleOwner)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, m.Status)

	_, err = f.svc.CreateOrganization(f.ctx, &models.Organization{Name: "Other", Slug: "harbour"}, uuid.New())
	assert.ErrorIs(t, err, governance.ErrConflict)
}

func TestJoinStaysPendingPastConsentDeadline(t *testing.T) {
	f := newServiceFixture(t)
	user := uuid.New()

	m, err := f.svc.Join(f.ctx, "harbour", user)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipPending, m.Status)
	require.NotNil(t, m.ConsentDeadline)
	assert.Equal(t, f.clock.now.Add(7*24*time.Hour), *m.ConsentDeadline)

	f.clock.now = f.clock.now.Add(30 * 24 * time.Hour)
	stored, err := f.store.GetMembership(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipPending, stored.Status)

	active, err := f.store.GetActiveMembership(f.ctx, f.org.ID, user)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = f.svc.Join(f.ctx, "harbour", user)
	assert.ErrorIs(t, err, governance.ErrConflict)
}

func TestApprove(t *testing.T) {
	f := newServiceFixture(t)
	user := uuid.New()
	m, err := f.svc.Join(f.ctx, "harbour", user)
	require.NoError(t, err)

	_, err = f.svc.Approve(f.ctx, f.org.ID, m.ID, user)
	assert.ErrorIs(t, err, governance.ErrNotAMember, "pending members cannot approve themselves")

	approved, err := f.svc.Approve(f.ctx, f.org.ID, m.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, f.owner, *approved.ApprovedBy)

	require.Len(t, f.audit.events, 1)
	ev := f.audit.events[0]
	assert.Equal(t, models.AuditMembershipApproved, ev.Type)
	assert.Equal(t, m.ID, ev.EntityID)

	_, err = f.svc.Approve(f.ctx, f.org.ID, m.ID, f.owner)
	assert.ErrorIs(t, err, governance.ErrInvalidInput)
}

func TestApproveRequiresBoardRole(t *testing.T) {
	f := newServiceFixture(t)
	member := f.store.AddMembership(models.Membership{OrganizationID: f.org.ID, Role: models.MemberRoleMember, Status: models.MembershipActive})
	pending, err := f.svc.Join(f.ctx, "harbour", uuid.New())
	require.NoError(t, err)

	_, err = f.svc.Approve(f.ctx, f.org.ID, pending.ID, member.UserID)
	assert.ErrorIs(t, err, governance.ErrForbidden)
}

func TestApproveRejectsMembershipOfOtherOrganization(t *testing.T) {
	f := newServiceFixture(t)
	other := &models.Organization{Name: "Other", Slug: "other"}
	_, err := f.svc.CreateOrganization(f.ctx, other, uuid.New())
	require.NoError(t, err)
	foreign, err := f.svc.Join(f.ctx, "other", uuid.New())
	require.NoError(t, err)

	_, err = f.svc.Approve(f.ctx, f.org.ID, foreign.ID, f.owner)
	assert.ErrorIs(t, err, governance.ErrNotFound)
}

func TestChangeStatus(t *testing.T) {
	f := newServiceFixture(t)
	m := f.store.AddMembership(models.Membership{OrganizationID: f.org.ID, Status: models.MembershipActive})

	suspended, err := f.svc.ChangeStatus(f.ctx, f.org.ID, m.ID, f.owner, models.MembershipSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipSuspended, suspended.Status)

	reinstated, err := f.svc.ChangeStatus(f.ctx, f.org.ID, m.ID, f.owner, models.MembershipActive)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, reinstated.Status)

	left, err := f.svc.ChangeStatus(f.ctx, f.org.ID, m.ID, f.owner, models.MembershipLeft)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipLeft, left.Status)

	_, err = f.svc.ChangeStatus(f.ctx, f.org.ID, m.ID, f.owner, models.MembershipActive)
	assert.ErrorIs(t, err, governance.ErrInvalidInput)
}

func TestChangeStatusCannotBypassApproval(t *testing.T) {
	f := newServiceFixture(t)
	pending, err := f.svc.Join(f.ctx, "harbour", uuid.New())
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(f.ctx, f.org.ID, pending.ID, f.owner, models.MembershipActive)
	assert.ErrorIs(t, err, governance.ErrInvalidInput)
}

func TestVotingBlockFeedsCanVote(t *testing.T) {
	f := newServiceFixture(t)
	m := f.store.AddMembership(models.Membership{OrganizationID: f.org.ID, Status: models.MembershipActive})

	reason := "membership fees unpaid"
	_, err := f.svc.SetVotingBlock(f.ctx, f.org.ID, m.ID, f.owner, &reason)
	require.NoError(t, err)

	perm, err := f.store.CanVote(f.ctx, f.org.ID, m.UserID)
	require.NoError(t, err)
	assert.False(t, perm.Allowed)
	assert.Equal(t, reason, perm.Reason)

	_, err = f.svc.SetVotingBlock(f.ctx, f.org.ID, m.ID, f.owner, nil)
	require.NoError(t, err)
	perm, err = f.store.CanVote(f.ctx, f.org.ID, m.UserID)
	require.NoError(t, err)
	assert.True(t, perm.Allowed)
}

func TestListMembersRequiresActiveMembership(t *testing.T) {
	f := newServiceFixture(t)

	list, err := f.svc.ListMembers(f.ctx, f.org.ID, f.owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListMembers(f.ctx, f.org.ID, uuid.New())
	assert.ErrorIs(t, err, governance.ErrNotAMember)
}

func (c *captured) ofType(typ models.AuditEventType) []models.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.AuditEvent
	for _, ev := range c.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestChangeStatusEmitsTransition(t *testing.T) {
	f := newServiceFixture(t)
	m := f.store.AddMembership(models.Membership{OrganizationID: f.org.ID, Status: models.MembershipActive})

	_, err := f.svc.ChangeStatus(f.ctx, f.org.ID, m.ID, f.owner, models.MembershipSuspended)
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(f.ctx, f.org.ID, m.ID, f.owner, models.MembershipLeft)
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(f.ctx, f.org.ID, m.ID, f.owner, models.MembershipActive)
	require.ErrorIs(t, err, governance.ErrInvalidInput)

	events := f.audit.ofType(models.AuditMembershipStatusChanged)
	require.Len(t, events, 2)
	assert.Equal(t, m.ID, events[0].EntityID)
	assert.Equal(t, f.org.ID, events[0].OrganizationID)
	require.NotNil(t, events[0].ActorUserID)
	assert.Equal(t, f.owner, *events[0].ActorUserID)
	assert.Equal(t, "ACTIVE", events[0].Data["from"])
	assert.Equal(t, "SUSPENDED", events[0].Data["to"])
	assert.Equal(t, "LEFT", events[1].Data["to"])
	assert.Equal(t, f.clock.now, events[1].OccurredAt)
}

func TestSetVotingBlockEmitsEvent(t *testing.T) {
	f := newServiceFixture(t)
	m := f.store.AddMembership(models.Membership{OrganizationID: f.org.ID, Status: models.MembershipActive})

	reason := "membership fees unpaid"
	_, err := f.svc.SetVotingBlock(f.ctx, f.org.ID, m.ID, f.owner, &reason)
	require.NoError(t, err)
	_, err = f.svc.SetVotingBlock(f.ctx, f.org.ID, m.ID, f.owner, nil)
	require.NoError(t, err)

	events := f.audit.ofType(models.AuditMembershipVotingBlockSet)
	require.Len(t, events, 2)
	assert.Equal(t, true, events[0].Data["blocked"])
	assert.Equal(t, reason, events[0].Data["reason"])
	assert.Equal(t, false, events[1].Data["blocked"])
	assert.NotContains(t, events[1].Data, "reason")
}

type invalidations struct {
	mu   sync.Mutex
	orgs []uuid.UUID
}

func (i *invalidations) InvalidateOrganization(_ context.Context, orgID uuid.UUID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.orgs = append(i.orgs, orgID)
}

func TestMembershipChangesInvalidateQuorum(t *testing.T) {
	f := newServiceFixture(t)
	inv := &invalidations{}
	svc := organizations.NewService(f.store, f.audit, nil,
		organizations.WithClock(f.clock.Now),
		organizations.WithQuorumInvalidator(inv))

	pending, err := svc.Join(f.ctx, "harbour", uuid.New())
	require.NoError(t, err)
	assert.Empty(t, inv.orgs, "pending members are not eligible")

	_, err = svc.Approve(f.ctx, f.org.ID, pending.ID, f.owner)
	require.NoError(t, err)
	_, err = svc.ChangeStatus(f.ctx, f.org.ID, pending.ID, f.owner, models.MembershipSuspended)
	require.NoError(t, err)
	reason := "under review"
	_, err = svc.SetVotingBlock(f.ctx, f.org.ID, pending.ID, f.owner, &reason)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{f.org.ID, f.org.ID}, inv.orgs)
}
