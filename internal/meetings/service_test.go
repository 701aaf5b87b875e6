package meetings_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/meetings"
	"github.com/civic-assembly/backend/internal/models"
)

func TestCreateMeeting(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingDraft)
	assert.Equal(t, models.MeetingDraft, m.Status)
	assert.NotEqual(t, uuid.Nil, m.ID)

	in := meetings.CreateMeetingInput{
		OrganizationID: f.org.ID,
		Type:           models.MeetingBoard,
		Title:          "Board",
		ScheduledAt:    time.Now(),
	}
	_, err := f.svc.Create(f.ctx, f.members[0].UserID, in)
	assert.ErrorIs(t, err, governance.ErrForbidden)

	_, err = f.svc.Create(f.ctx, uuid.New(), in)
	assert.ErrorIs(t, err, governance.ErrNotAMember)

	in.Type = "SOIREE"
	_, err = f.svc.Create(f.ctx, f.owner.UserID, in)
	assert.ErrorIs(t, err, governance.ErrInvalidInput)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)
	assert.Equal(t, models.MeetingPublished, m.Status)

	_, err := f.svc.SetStatus(f.ctx, f.owner.UserID, m.ID, models.MeetingDraft)
	assert.ErrorIs(t, err, governance.ErrInvalidInput)

	_, err = f.svc.SetStatus(f.ctx, f.owner.UserID, m.ID, models.MeetingCompleted)
	assert.ErrorIs(t, err, governance.ErrInvalidInput)

	cancelled, err := f.svc.SetStatus(f.ctx, f.owner.UserID, m.ID, models.MeetingCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingCancelled, cancelled.Status)

	stored, err := f.svc.Get(f.ctx, f.members[0].UserID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingCancelled, stored.Status)
}

func TestSetStatusEmitsTransition(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)
	_, err := f.svc.SetStatus(f.ctx, f.owner.UserID, m.ID, models.MeetingCancelled)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(f.ctx, f.owner.UserID, m.ID, models.MeetingPublished)
	require.ErrorIs(t, err, governance.ErrInvalidInput)

	events := f.audit.ofType(models.AuditMeetingStatusChanged)
	require.Len(t, events, 2)
	assert.Equal(t, "DRAFT", events[0].Data["from"])
	assert.Equal(t, "PUBLISHED", events[0].Data["to"])
	assert.Equal(t, "PUBLISHED", events[1].Data["from"])
	assert.Equal(t, "CANCELLED", events[1].Data["to"])
	assert.Equal(t, m.ID, events[1].EntityID)
	assert.Equal(t, f.org.ID, events[1].OrganizationID)
	require.NotNil(t, events[1].ActorUserID)
	assert.Equal(t, f.owner.UserID, *events[1].ActorUserID)
}

func TestAgenda(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)

	for _, no := range []int{3, 1, 2} {
		_, err := f.svc.AddAgendaItem(f.ctx, f.owner.UserID, m.ID, meetings.AgendaItemInput{ItemNo: no, Title: "Procedure", IsProcedural: true})
		require.NoError(t, err)
	}
	_, err := f.svc.AddAgendaItem(f.ctx, f.owner.UserID, m.ID, meetings.AgendaItemInput{ItemNo: 2, Title: "Again"})
	assert.ErrorIs(t, err, governance.ErrConflict)

	_, err = f.svc.AddAgendaItem(f.ctx, f.owner.UserID, m.ID, meetings.AgendaItemInput{ItemNo: 0, Title: "Zero"})
	assert.ErrorIs(t, err, governance.ErrInvalidInput)

	_, err = f.svc.AddAgendaItem(f.ctx, f.members[0].UserID, m.ID, meetings.AgendaItemInput{ItemNo: 4, Title: "Budget"})
	assert.ErrorIs(t, err, governance.ErrForbidden)

	items, err := f.svc.ListAgenda(f.ctx, f.members[0].UserID, m.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, i+1, it.ItemNo)
	}

	_, err = f.svc.SetStatus(f.ctx, f.owner.UserID, m.ID, models.MeetingCancelled)
	require.NoError(t, err)
	_, err = f.svc.AddAgendaItem(f.ctx, f.owner.UserID, m.ID, meetings.AgendaItemInput{ItemNo: 4, Title: "Budget"})
	assert.ErrorIs(t, err, governance.ErrInvalidInput)
}

func TestCreateResolutionLinksAgendaItem(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)
	item, err := f.svc.AddAgendaItem(f.ctx, f.owner.UserID, m.ID, meetings.AgendaItemInput{ItemNo: 1, Title: "Chair", IsProcedural: true})
	require.NoError(t, err)

	res, err := f.svc.CreateResolution(f.ctx, f.owner.UserID, meetings.ResolutionInput{
		OrganizationID: f.org.ID,
		AgendaItemID:   &item.ID,
		Title:          "Elect the chair",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionProposed, res.Status)
	require.NotNil(t, res.MeetingID)
	assert.Equal(t, m.ID, *res.MeetingID)

	items, err := f.svc.ListAgenda(f.ctx, f.owner.UserID, m.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].ResolutionID)
	assert.Equal(t, res.ID, *items[0].ResolutionID)
	require.NotNil(t, items[0].ResolutionStatus)
	assert.Equal(t, models.ResolutionProposed, *items[0].ResolutionStatus)

	gate, err := f.svc.Gate(f.ctx, f.owner.UserID, m.ID)
	require.NoError(t, err)
	assert.False(t, gate.Allowed)
	assert.Equal(t, []int{1}, gate.Pending)
}

func TestCreateResolutionRejectsForeignMeeting(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)
	other := f.store.AddOrganization(models.Organization{Name: "Other", Slug: "other"})

	_, err := f.svc.CreateResolution(f.ctx, f.owner.UserID, meetings.ResolutionInput{
		OrganizationID: other.ID,
		MeetingID:      &m.ID,
		Title:          "Sneaky",
	})
	assert.ErrorIs(t, err, governance.ErrInvalidInput)

	_, err = f.svc.CreateResolution(f.ctx, f.owner.UserID, meetings.ResolutionInput{OrganizationID: f.org.ID, Title: " "})
	assert.ErrorIs(t, err, governance.ErrInvalidInput)

	poll, err := f.svc.CreateResolution(f.ctx, f.owner.UserID, meetings.ResolutionInput{OrganizationID: f.org.ID, Title: "Opinion poll"})
	require.NoError(t, err)
	assert.Nil(t, poll.MeetingID)
}

func TestCheckInAndQuorum(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)

	snap, err := f.svc.Quorum(f.ctx, f.owner.UserID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.TotalMembers)
	assert.Equal(t, 2, snap.QuorumRequired)
	assert.False(t, snap.QuorumMet)

	require.NoError(t, f.svc.CheckIn(f.ctx, f.members[0].UserID, m.ID, nil))
	require.NoError(t, f.svc.CheckIn(f.ctx, f.members[0].UserID, m.ID, nil))
	assert.Equal(t, 2, f.cache.invalidated)

	other := f.members[1].ID
	err = f.svc.CheckIn(f.ctx, f.members[0].UserID, m.ID, &other)
	assert.ErrorIs(t, err, governance.ErrForbidden)

	require.NoError(t, f.svc.CheckIn(f.ctx, f.owner.UserID, m.ID, &other))

	snap, err = f.svc.Quorum(f.ctx, f.owner.UserID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.LiveAttendees)
	assert.Equal(t, 2, snap.TotalParticipants)
	assert.True(t, snap.QuorumMet)

	cached, ok := f.cache.Get(f.ctx, m.ID)
	require.True(t, ok)
	assert.Equal(t, snap.TotalParticipants, cached.TotalParticipants)
}

func TestCheckInForeignMembership(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)
	other := f.store.AddOrganization(models.Organization{Name: "Other", Slug: "other"})
	stranger := f.store.AddMembership(models.Membership{OrganizationID: other.ID, Status: models.MembershipActive})

	err := f.svc.CheckIn(f.ctx, f.owner.UserID, m.ID, &stranger.ID)
	assert.ErrorIs(t, err, governance.ErrNotFound)

	draft := f.meeting(t, models.MeetingDraft)
	_, err = f.svc.SetStatus(f.ctx, f.owner.UserID, draft.ID, models.MeetingCancelled)
	require.NoError(t, err)
	err = f.svc.CheckIn(f.ctx, f.owner.UserID, draft.ID, nil)
	assert.ErrorIs(t, err, governance.ErrInvalidInput)
}

func TestCompleteReportsMissingChecks(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)

	v, err := f.svc.Completion(f.ctx, f.members[0].UserID, m.ID)
	require.NoError(t, err)
	assert.False(t, v.Ready)
	assert.NotEmpty(t, v.Missing)

	_, err = f.svc.Complete(f.ctx, f.members[0].UserID, m.ID)
	assert.ErrorIs(t, err, governance.ErrForbidden)

	_, err = f.svc.Complete(f.ctx, f.owner.UserID, m.ID)
	var gerr *governance.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, governance.KindIncompleteForCompletion, gerr.Kind)
	assert.Contains(t, gerr.Missing, "signed protocol not uploaded")
}

func TestCloseAllVotesWithoutVotes(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)

	res, err := f.svc.CloseAllVotes(f.ctx, f.owner.UserID, m.ID)
	require.NoError(t, err)
	assert.Zero(t, res.ClosedCount)
	assert.Zero(t, res.FailedCount)
}

func TestMembershipChangeRefreshesCachedQuorum(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t, models.MeetingPublished)

	snap, err := f.svc.Quorum(f.ctx, f.owner.UserID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.TotalMembers)

	_, err = f.orgs.ChangeStatus(f.ctx, f.org.ID, f.members[0].ID, f.owner.UserID, models.MembershipSuspended)
	require.NoError(t, err)
	_, cached := f.cache.Get(f.ctx, m.ID)
	assert.False(t, cached)

	snap, err = f.svc.Quorum(f.ctx, f.owner.UserID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalMembers)
	assert.Equal(t, 2, snap.QuorumRequired)
}
