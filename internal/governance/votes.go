package governance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/models"
)

// BallotPolicyFirstVoteWins is the re-cast rule: a membership's first ballot
// in a vote stands and any later ballot is rejected with ALREADY_VOTED.
const BallotPolicyFirstVoteWins = "first_vote_wins"

// OpenVoteInput describes a vote to open. OpensAt is resolved by the caller
// (immediate or early-voting schedule); zero means now.
type OpenVoteInput struct {
	ResolutionID uuid.UUID
	Kind         models.VoteKind
	MeetingID    *uuid.UUID
	OpensAt      time.Time
	ClosesAt     *time.Time
}

// OpenVote opens a vote on a resolution. GA votes need a meeting, and a
// substantive item of a GA or extraordinary GA meeting only opens once the
// procedural gate allows it. At most one OPEN vote exists per resolution.
func (e *Engine) OpenVote(ctx context.Context, in OpenVoteInput) (*models.Vote, error) {
	if !in.Kind.Valid() {
		return nil, newError(KindInvalidInput, "unknown vote kind %q", in.Kind)
	}
	res, err := e.meetings.GetResolution(ctx, in.ResolutionID)
	if err != nil {
		return nil, operationFailed("load resolution", err)
	}

	var meeting *models.Meeting
	if in.MeetingID == nil && res.MeetingID != nil {
		in.MeetingID = res.MeetingID
	}
	if in.Kind == models.VoteKindGA && in.MeetingID == nil {
		return nil, newError(KindInvalidInput, "GA votes require a meeting")
	}
	if in.MeetingID != nil {
		if res.MeetingID != nil && *res.MeetingID != *in.MeetingID {
			return nil, newError(KindInvalidInput, "resolution %s belongs to another meeting", res.ID)
		}
		if meeting, err = e.loadMeeting(ctx, *in.MeetingID); err != nil {
			return nil, err
		}
		if meeting.OrganizationID != res.OrganizationID {
			return nil, newError(KindInvalidInput, "meeting %s belongs to another organization", meeting.ID)
		}
		switch meeting.Status {
		case models.MeetingDraft, models.MeetingPublished:
		case models.MeetingCompleted, models.MeetingCancelled:
			return nil, newError(KindInvalidInput, "meeting %s is %s", meeting.ID, meeting.Status)
		default:
			return nil, newError(KindInvalidInput, "meeting %s has unknown status %q", meeting.ID, meeting.Status)
		}
	}

	var item *models.AgendaItem
	if res.AgendaItemID != nil {
		if item, err = e.meetings.GetAgendaItem(ctx, *res.AgendaItemID); err != nil {
			return nil, operationFailed("load agenda item", err)
		}
	}

	if meeting != nil && meeting.Type.RequiresProceduralSequence() && (item == nil || !item.IsProcedural) {
		items, err := e.meetings.ListAgendaItems(ctx, meeting.ID)
		if err != nil {
			return nil, operationFailed("list agenda items", err)
		}
		if d := proceduralDecision(items); !d.Allowed {
			return nil, &Error{Kind: KindProceduralSequenceIncomplete, Reason: d.Reason}
		}
	}

	now := e.now()
	opensAt := in.OpensAt
	if opensAt.IsZero() {
		opensAt = now
	}
	if in.ClosesAt != nil && !in.ClosesAt.After(opensAt) {
		return nil, newError(KindInvalidInput, "closes_at must be after opens_at")
	}

	v := &models.Vote{
		ID:             uuid.New(),
		OrganizationID: res.OrganizationID,
		ResolutionID:   res.ID,
		Kind:           in.Kind,
		MeetingID:      in.MeetingID,
		Status:         models.VoteOpen,
		OpensAt:        opensAt.UTC(),
		ClosesAt:       in.ClosesAt,
		CreatedAt:      now.UTC(),
	}
	err = e.votes.InTx(ctx, func(tx VoteTx) error {
		open, err := tx.HasOpenVote(ctx, res.ID)
		if err != nil {
			return err
		}
		if open {
			return newError(KindVoteAlreadyOpen, "resolution %s already has an open vote", res.ID)
		}
		if err := tx.InsertVote(ctx, v); err != nil {
			return err
		}
		if item != nil {
			return tx.LinkAgendaItemVote(ctx, item.ID, v.ID)
		}
		return nil
	})
	if err != nil {
		return nil, operationFailed("open vote", err)
	}

	e.emit(ctx, models.AuditVoteOpened, v.OrganizationID, "vote", v.ID, map[string]interface{}{
		"resolution_id": v.ResolutionID,
		"kind":          v.Kind,
		"meeting_id":    v.MeetingID,
		"opens_at":      v.OpensAt,
	})
	e.logger.Info("vote opened", zap.String("vote_id", v.ID.String()), zap.String("resolution_id", v.ResolutionID.String()))
	return v, nil
}

// CastBallotInput identifies the voter by user; the engine resolves the
// user's ACTIVE membership in the vote's organization.
type CastBallotInput struct {
	VoteID  uuid.UUID
	UserID  uuid.UUID
	Choice  models.Choice
	Channel models.Channel
}

// CastBallot records one ballot. The vote must be OPEN and inside its window,
// the voter an ACTIVE member allowed by the governance policy. A second
// ballot from the same membership fails with ALREADY_VOTED.
func (e *Engine) CastBallot(ctx context.Context, in CastBallotInput) (*models.Ballot, error) {
	if !in.Choice.Valid() {
		return nil, newError(KindInvalidInput, "unknown choice %q", in.Choice)
	}
	if !in.Channel.Valid() {
		return nil, newError(KindInvalidInput, "unknown channel %q", in.Channel)
	}

	vote, err := e.votes.GetVote(ctx, in.VoteID)
	if err != nil {
		return nil, operationFailed("load vote", err)
	}
	if vote.Status != models.VoteOpen {
		return nil, newError(KindVoteAlreadyClosed, "vote %s is closed", vote.ID)
	}

	m, err := e.members.GetActiveMembership(ctx, vote.OrganizationID, in.UserID)
	if err != nil {
		return nil, operationFailed("load membership", err)
	}
	if !m.IsActive() || m.OrganizationID != vote.OrganizationID {
		return nil, newError(KindNotAMember, "user %s has no active membership", in.UserID)
	}
	perm, err := e.policy.CanVote(ctx, vote.OrganizationID, in.UserID)
	if err != nil {
		return nil, operationFailed("evaluate voting policy", err)
	}
	if !perm.Allowed {
		return nil, &Error{Kind: KindCanVoteBlocked, Reason: perm.Reason}
	}

	b := &models.Ballot{
		ID:           uuid.New(),
		VoteID:       vote.ID,
		MembershipID: m.ID,
		Choice:       in.Choice,
		Channel:      in.Channel,
	}
	err = e.votes.InTx(ctx, func(tx VoteTx) error {
		locked, err := tx.LockVote(ctx, vote.ID)
		if err != nil {
			return err
		}
		now := e.now()
		switch locked.Status {
		case models.VoteOpen:
		case models.VoteClosed:
			return newError(KindVoteAlreadyClosed, "vote %s is closed", locked.ID)
		default:
			return newError(KindInvalidInput, "vote %s has unknown status %q", locked.ID, locked.Status)
		}
		if now.Before(locked.OpensAt) {
			return newError(KindVoteNotYetOpen, "vote %s opens at %s", locked.ID, locked.OpensAt.Format(time.RFC3339))
		}
		if !locked.AcceptsBallotsAt(now) {
			return newError(KindVoteAlreadyClosed, "voting window of %s has ended", locked.ID)
		}
		b.CastAt = now.UTC()
		return tx.InsertBallot(ctx, b)
	})
	if err != nil {
		return nil, operationFailed("cast ballot", err)
	}

	e.emit(ctx, models.AuditBallotCast, vote.OrganizationID, "ballot", b.ID, map[string]interface{}{
		"vote_id":       b.VoteID,
		"membership_id": b.MembershipID,
		"channel":       b.Channel,
	})
	return b, nil
}

// CloseResult is the tally and outcome of a closed vote.
type CloseResult struct {
	VoteID       uuid.UUID `json:"vote_id"`
	ResolutionID uuid.UUID `json:"resolution_id"`
	models.Tally
	Outcome  models.ResolutionStatus `json:"outcome"`
	ClosedAt time.Time               `json:"closed_at"`
	// ClosesAt is the stored closes_at: the schedule when one was set,
	// otherwise ClosedAt.
	ClosesAt *time.Time              `json:"closes_at,omitempty"`
}

// CloseVote closes an OPEN vote. The status flip, tally and outcome write
// happen in one transaction, with ballots read after the flip. Exactly one
// of several concurrent closers succeeds; the others get VOTE_ALREADY_CLOSED.
func (e *Engine) CloseVote(ctx context.Context, voteID uuid.UUID) (*CloseResult, error) {
	var (
		result *CloseResult
		orgID  uuid.UUID
	)
	err := e.votes.InTx(ctx, func(tx VoteTx) error {
		at := e.now().UTC()
		v, ok, err := tx.CloseVote(ctx, voteID, at)
		if err != nil {
			return err
		}
		if !ok {
			return newError(KindVoteAlreadyClosed, "vote %s is already closed", voteID)
		}
		tally, err := tx.TallyBallots(ctx, voteID)
		if err != nil {
			return err
		}
		outcome := tally.Outcome()
		if err := tx.ApplyOutcome(ctx, v.ResolutionID, outcome); err != nil {
			return err
		}
		orgID = v.OrganizationID
		result = &CloseResult{
			VoteID:       v.ID,
			ResolutionID: v.ResolutionID,
			Tally:        tally,
			Outcome:      outcome,
			ClosedAt:     at,
			ClosesAt:     v.ClosesAt,
		}
		return nil
	})
	if err != nil {
		return nil, operationFailed("close vote", err)
	}

	e.emit(ctx, models.AuditVoteClosed, orgID, "vote", result.VoteID, map[string]interface{}{
		"votes_for":     result.For,
		"votes_against": result.Against,
		"votes_abstain": result.Abstain,
		"closed_at":     result.ClosedAt,
		"closes_at":     result.ClosesAt,
	})
	e.emit(ctx, models.AuditVoteOutcomeApplied, orgID, "resolution", result.ResolutionID, map[string]interface{}{
		"vote_id": result.VoteID,
		"outcome": result.Outcome,
	})
	e.logger.Info("vote closed",
		zap.String("vote_id", result.VoteID.String()),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("for", result.For),
		zap.Int("against", result.Against),
		zap.Int("abstain", result.Abstain))
	return result, nil
}

// VoteCloseReport is the per-vote entry of a batch close.
type VoteCloseReport struct {
	VoteID uuid.UUID    `json:"vote_id"`
	Closed bool         `json:"closed"`
	Result *CloseResult `json:"result,omitempty"`
	Kind   Kind         `json:"error_kind,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// CloseAllResult summarizes a batch close.
type CloseAllResult struct {
	ClosedCount int               `json:"closed_count"`
	FailedCount int               `json:"failed_count"`
	Votes       []VoteCloseReport `json:"votes"`
}

// CloseAllOpenVotesForMeeting closes every OPEN vote of a meeting, carrying on
// past individual failures and reporting each vote's fate.
func (e *Engine) CloseAllOpenVotesForMeeting(ctx context.Context, meetingID uuid.UUID) (*CloseAllResult, error) {
	if _, err := e.loadMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	votes, err := e.votes.ListVotesByMeeting(ctx, meetingID)
	if err != nil {
		return nil, operationFailed("list meeting votes", err)
	}

	out := &CloseAllResult{Votes: []VoteCloseReport{}}
	for _, v := range votes {
		if v.Status != models.VoteOpen {
			continue
		}
		res, err := e.CloseVote(ctx, v.ID)
		if err != nil {
			out.FailedCount++
			out.Votes = append(out.Votes, VoteCloseReport{VoteID: v.ID, Kind: KindOf(err), Error: err.Error()})
			e.logger.Warn("close vote in batch failed", zap.String("vote_id", v.ID.String()), zap.Error(err))
			continue
		}
		out.ClosedCount++
		out.Votes = append(out.Votes, VoteCloseReport{VoteID: v.ID, Closed: true, Result: res})
	}
	return out, nil
}
