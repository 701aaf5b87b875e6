package governance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

func TestCloseVoteTalliesAndAppliesOutcome(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(7, models.MemberRoleMember)
	item, res := f.item(1, true, nil)
	v := f.openVote(res)

	choices := []models.Choice{
		models.ChoiceFor, models.ChoiceFor, models.ChoiceFor, models.ChoiceFor,
		models.ChoiceAgainst, models.ChoiceAbstain, models.ChoiceAbstain,
	}
	for i, c := range choices {
		f.cast(v, ms[i], c, models.ChannelInPerson)
	}

	out, err := f.engine.CloseVote(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, out.For)
	assert.Equal(t, 1, out.Against)
	assert.Equal(t, 2, out.Abstain)
	assert.Equal(t, models.ResolutionApproved, out.Outcome)

	closed, err := f.store.GetVote(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteClosed, closed.Status)
	require.NotNil(t, closed.ClosesAt)

	gotItem, err := f.store.GetAgendaItem(f.ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, gotItem.ResolutionStatus)
	assert.Equal(t, models.ResolutionApproved, *gotItem.ResolutionStatus)
	require.NotNil(t, gotItem.VoteID)
	assert.Equal(t, v.ID, *gotItem.VoteID)

	gotRes, err := f.store.GetResolution(f.ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionApproved, gotRes.Status)

	types := f.audit.types()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, []models.AuditEventType{models.AuditVoteClosed, models.AuditVoteOutcomeApplied}, types[len(types)-2:])
}

func TestCloseVoteTieIsRejected(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(3, models.MemberRoleMember)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)
	f.cast(v, ms[0], models.ChoiceFor, models.ChannelRemote)
	f.cast(v, ms[1], models.ChoiceAgainst, models.ChannelRemote)
	f.cast(v, ms[2], models.ChoiceAbstain, models.ChannelRemote)

	out, err := f.engine.CloseVote(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionRejected, out.Outcome)
}

func TestCloseVoteTwiceKeepsFirstClose(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)

	_, err := f.engine.CloseVote(f.ctx, v.ID)
	require.NoError(t, err)
	first, err := f.store.GetVote(f.ctx, v.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.engine.CloseVote(f.ctx, v.ID)
	require.ErrorIs(t, err, governance.ErrVoteAlreadyClosed)

	second, err := f.store.GetVote(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteClosed, second.Status)
	assert.Equal(t, *first.ClosesAt, *second.ClosesAt)
}

func TestCloseVoteConcurrentlyHasOneWinner(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(3, models.MemberRoleMember)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)
	for _, m := range ms {
		f.cast(v, m, models.ChoiceFor, models.ChannelRemote)
	}

	const closers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)
	for i := 0; i < closers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.CloseVote(context.Background(), v.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
				assert.Equal(t, 3, out.For)
			case errors.Is(err, governance.ErrVoteAlreadyClosed):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, closers-1, rejected)
}

func TestCastBallotConcurrentlyFromSameMembership(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(1, models.MemberRoleMember)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)

	const casters = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		already int
	)
	for i := 0; i < casters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CastBallot(context.Background(), governance.CastBallotInput{
				VoteID: v.ID, UserID: ms[0].UserID, Choice: models.ChoiceFor, Channel: models.ChannelRemote,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, governance.ErrAlreadyVoted):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
	assert.Equal(t, casters-1, already)
	assert.Len(t, f.store.Ballots(v.ID), 1)
}

func TestCastBallotRejectsSecondBallot(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(1, models.MemberRoleMember)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)
	f.cast(v, ms[0], models.ChoiceFor, models.ChannelInPerson)

	_, err := f.engine.CastBallot(f.ctx, governance.CastBallotInput{
		VoteID: v.ID, UserID: ms[0].UserID, Choice: models.ChoiceAgainst, Channel: models.ChannelInPerson,
	})
	require.ErrorIs(t, err, governance.ErrAlreadyVoted)

	ballots := f.store.Ballots(v.ID)
	require.Len(t, ballots, 1)
	assert.Equal(t, models.ChoiceFor, ballots[0].Choice)
}

func TestCastBallotMembershipChecks(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)
	pending := f.store.AddMembership(models.Membership{OrganizationID: f.org.ID, Status: models.MembershipPending})
	otherOrg := f.store.AddOrganization(models.Organization{Name: "Other", Slug: "other"})
	outsider := f.store.AddMembership(models.Membership{OrganizationID: otherOrg.ID, Status: models.MembershipActive})
	reason := "membership dues outstanding"
	blocked := f.store.AddMembership(models.Membership{
		OrganizationID: f.org.ID, Status: models.MembershipActive, VotingBlockReason: &reason,
	})

	tests := []struct {
		name   string
		userID uuid.UUID
		want   error
	}{
		{"pending membership", pending.UserID, governance.ErrNotAMember},
		{"member of another organization", outsider.UserID, governance.ErrNotAMember},
		{"unknown user", uuid.New(), governance.ErrNotAMember},
		{"blocked by policy", blocked.UserID, governance.ErrCanVoteBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CastBallot(f.ctx, governance.CastBallotInput{
				VoteID: v.ID, UserID: tt.userID, Choice: models.ChoiceFor, Channel: models.ChannelRemote,
			})
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.engine.CastBallot(f.ctx, governance.CastBallotInput{
		VoteID: v.ID, UserID: blocked.UserID, Choice: models.ChoiceFor, Channel: models.ChannelRemote,
	})
	var gerr *governance.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, reason, gerr.Reason)
	assert.Empty(t, f.store.Ballots(v.ID))
}

func TestCastBallotSuspendedOrganization(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(1, models.MemberRoleMember)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)
	f.org.Status = models.OrgStatusSuspended
	f.store.AddOrganization(f.org)

	_, err := f.engine.CastBallot(f.ctx, governance.CastBallotInput{
		VoteID: v.ID, UserID: ms[0].UserID, Choice: models.ChoiceFor, Channel: models.ChannelRemote,
	})
	require.ErrorIs(t, err, governance.ErrCanVoteBlocked)
}

func TestCastBallotRespectsVotingWindow(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(2, models.MemberRoleMember)
	_, res := f.item(1, true, nil)
	meetingID := f.meeting.ID
	opens := f.clock.Now().Add(time.Hour)
	closes := opens.Add(time.Hour)
	v, err := f.engine.OpenVote(f.ctx, governance.OpenVoteInput{
		ResolutionID: res.ID, Kind: models.VoteKindGA, MeetingID: &meetingID, OpensAt: opens, ClosesAt: &closes,
	})
	require.NoError(t, err)

	in := governance.CastBallotInput{VoteID: v.ID, UserID: ms[0].UserID, Choice: models.ChoiceFor, Channel: models.ChannelRemote}
	_, err = f.engine.CastBallot(f.ctx, in)
	require.ErrorIs(t, err, governance.ErrVoteNotYetOpen)

	f.clock.Advance(time.Hour)
	_, err = f.engine.CastBallot(f.ctx, in)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	in.UserID = ms[1].UserID
	_, err = f.engine.CastBallot(f.ctx, in)
	require.ErrorIs(t, err, governance.ErrVoteAlreadyClosed)

	out, err := f.engine.CloseVote(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, closes, out.ClosedAt)
}

func TestCloseVoteBeforeScheduleReportsActualClose(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	_, res := f.item(1, true, nil)
	meetingID := f.meeting.ID
	now := f.clock.Now()
	scheduled := now.Add(2 * time.Hour)
	v, err := f.engine.OpenVote(f.ctx, governance.OpenVoteInput{
		ResolutionID: res.ID, Kind: models.VoteKindGA, MeetingID: &meetingID, OpensAt: now, ClosesAt: &scheduled,
	})
	require.NoError(t, err)

	out, err := f.engine.CloseVote(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, now, out.ClosedAt)
	require.NotNil(t, out.ClosesAt)
	assert.Equal(t, scheduled, *out.ClosesAt)

	stored, err := f.store.GetVote(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteClosed, stored.Status)
	require.NotNil(t, stored.ClosesAt)
	assert.Equal(t, scheduled, *stored.ClosesAt)

	f.audit.mu.Lock()
	defer f.audit.mu.Unlock()
	var closedEvent *models.AuditEvent
	for i := range f.audit.events {
		if f.audit.events[i].Type == models.AuditVoteClosed {
			closedEvent = &f.audit.events[i]
		}
	}
	require.NotNil(t, closedEvent)
	assert.Equal(t, now, closedEvent.Data["closed_at"])
}

func TestCastBallotOnClosedVote(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(1, models.MemberRoleMember)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)
	_, err := f.engine.CloseVote(f.ctx, v.ID)
	require.NoError(t, err)

	_, err = f.engine.CastBallot(f.ctx, governance.CastBallotInput{
		VoteID: v.ID, UserID: ms[0].UserID, Choice: models.ChoiceFor, Channel: models.ChannelRemote,
	})
	require.ErrorIs(t, err, governance.ErrVoteAlreadyClosed)
}

func TestCastBallotValidatesInput(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	_, err := f.engine.CastBallot(f.ctx, governance.CastBallotInput{VoteID: uuid.New(), Choice: "MAYBE", Channel: models.ChannelRemote})
	require.ErrorIs(t, err, governance.ErrInvalidInput)

	_, err = f.engine.CastBallot(f.ctx, governance.CastBallotInput{VoteID: uuid.New(), Choice: models.ChoiceFor, Channel: models.ChannelRemote})
	require.ErrorIs(t, err, governance.ErrNotFound)
}

func TestOpenVoteRules(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	_, res := f.item(1, true, nil)

	_, err := f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: res.ID, Kind: models.VoteKindGA})
	require.NoError(t, err, "meeting is taken from the resolution")

	meetingID := f.meeting.ID
	_, err = f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: res.ID, Kind: models.VoteKindGA, MeetingID: &meetingID})
	require.ErrorIs(t, err, governance.ErrVoteAlreadyOpen)

	opinion := f.store.AddResolution(models.Resolution{OrganizationID: f.org.ID, Title: "Poll"})
	_, err = f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: opinion.ID, Kind: models.VoteKindGA})
	require.ErrorIs(t, err, governance.ErrInvalidInput)

	v, err := f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: opinion.ID, Kind: models.VoteKindOpinion})
	require.NoError(t, err)
	assert.Nil(t, v.MeetingID)

	_, err = f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: uuid.New(), Kind: models.VoteKindOpinion})
	require.ErrorIs(t, err, governance.ErrNotFound)

	_, err = f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: opinion.ID, Kind: "REFERENDUM"})
	require.ErrorIs(t, err, governance.ErrInvalidInput)
}

func TestOpenVoteAfterCloseAllowsNewVote(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)
	_, err := f.engine.CloseVote(f.ctx, v.ID)
	require.NoError(t, err)

	again := f.openVote(res)
	assert.NotEqual(t, v.ID, again.ID)
}

func TestOpenVoteRejectsCompletedMeeting(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	_, res := f.item(1, true, nil)
	f.meeting.Status = models.MeetingCompleted
	f.store.AddMeeting(f.meeting)

	_, err := f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: res.ID, Kind: models.VoteKindGA})
	require.ErrorIs(t, err, governance.ErrInvalidInput)
}

func TestOpenVoteSubstantiveItemIsGated(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	ms := f.members(3, models.MemberRoleMember)
	var procedural []models.Resolution
	for no := 1; no <= models.ProceduralItemCount; no++ {
		_, res := f.item(no, true, nil)
		procedural = append(procedural, res)
	}
	_, substantive := f.item(4, false, nil)

	_, err := f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: substantive.ID, Kind: models.VoteKindGA})
	require.ErrorIs(t, err, governance.ErrProceduralSequenceIncomplete)
	var gerr *governance.Error
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, gerr.Reason, "1, 2, 3")

	for _, res := range procedural {
		v := f.openVote(res)
		for _, m := range ms {
			f.cast(v, m, models.ChoiceFor, models.ChannelInPerson)
		}
		_, err := f.engine.CloseVote(f.ctx, v.ID)
		require.NoError(t, err)
	}

	_, err = f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: substantive.ID, Kind: models.VoteKindGA})
	require.NoError(t, err)
}

func TestOpenVoteBoardMeetingIsNotGated(t *testing.T) {
	f := newFixture(t, models.MeetingBoard)
	f.item(1, true, nil)
	_, substantive := f.item(2, false, nil)

	_, err := f.engine.OpenVote(f.ctx, governance.OpenVoteInput{ResolutionID: substantive.ID, Kind: models.VoteKindGA})
	require.NoError(t, err)
}

// flakyVotes fails CloseVote for the listed votes with a storage error.
type flakyVotes struct {
	governance.VoteStore
	failClose map[uuid.UUID]bool
}

func (f *flakyVotes) InTx(ctx context.Context, fn func(tx governance.VoteTx) error) error {
	return f.VoteStore.InTx(ctx, func(tx governance.VoteTx) error {
		return fn(&flakyTx{VoteTx: tx, failClose: f.failClose})
	})
}

type flakyTx struct {
	governance.VoteTx
	failClose map[uuid.UUID]bool
}

func (t *flakyTx) CloseVote(ctx context.Context, id uuid.UUID, at time.Time) (*models.Vote, bool, error) {
	if t.failClose[id] {
		return nil, false, errors.New("connection reset by peer")
	}
	return t.VoteTx.CloseVote(ctx, id, at)
}

func TestCloseAllOpenVotesReportsPartialFailure(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	var votes []models.Vote
	for no := 1; no <= 3; no++ {
		_, res := f.item(no, true, nil)
		votes = append(votes, f.openVote(res))
	}
	_, err := f.engine.CloseVote(f.ctx, votes[2].ID)
	require.NoError(t, err)

	flaky := &flakyVotes{VoteStore: f.store, failClose: map[uuid.UUID]bool{votes[0].ID: true}}
	engine := f.newEngine(flaky)

	out, err := engine.CloseAllOpenVotesForMeeting(f.ctx, f.meeting.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ClosedCount)
	assert.Equal(t, 1, out.FailedCount)
	require.Len(t, out.Votes, 2)

	byID := map[uuid.UUID]governance.VoteCloseReport{}
	for _, r := range out.Votes {
		byID[r.VoteID] = r
	}
	assert.False(t, byID[votes[0].ID].Closed)
	assert.Equal(t, governance.KindOperationFailed, byID[votes[0].ID].Kind)
	assert.True(t, byID[votes[1].ID].Closed)

	still, err := f.store.GetVote(f.ctx, votes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteOpen, still.Status)
}

func TestCloseVoteStorageFailureLeavesVoteOpen(t *testing.T) {
	f := newFixture(t, models.MeetingGA)
	_, res := f.item(1, true, nil)
	v := f.openVote(res)

	engine := f.newEngine(&failingApply{VoteStore: f.store})
	_, err := engine.CloseVote(f.ctx, v.ID)
	require.ErrorIs(t, err, governance.ErrOperationFailed)

	got, err := f.store.GetVote(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteOpen, got.Status)
	assert.Nil(t, got.ClosesAt)
}

// failingApply fails after the status flip so the whole close must roll back.
type failingApply struct {
	governance.VoteStore
}

func (f *failingApply) InTx(ctx context.Context, fn func(tx governance.VoteTx) error) error {
	return f.VoteStore.InTx(ctx, func(tx governance.VoteTx) error {
		return fn(&failingApplyTx{VoteTx: tx})
	})
}

type failingApplyTx struct {
	governance.VoteTx
}

func (t *failingApplyTx) ApplyOutcome(context.Context, uuid.UUID, models.ResolutionStatus) error {
	return errors.New("serialization failure")
}
