package governance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/models"
)

// CompletionChecks are the independent readiness checks of a meeting.
type CompletionChecks struct {
	ProceduralItemsApproved bool `json:"procedural_items_approved"`
	AllVotesClosed          bool `json:"all_votes_closed"`
	QuorumMet               bool `json:"quorum_met"`
	ProtocolSigned          bool `json:"protocol_signed"`
}

// CompletionValidation is the readiness verdict for completing a meeting.
type CompletionValidation struct {
	MeetingID uuid.UUID        `json:"meeting_id"`
	Mode      models.GAMode    `json:"ga_mode"`
	Checks    CompletionChecks `json:"checks"`
	Missing   []string         `json:"missing"`
	Ready     bool             `json:"ready"`
	Quorum    *QuorumSnapshot  `json:"quorum,omitempty"`
}

// CompletionDetail carries the human-readable context for failed checks.
type CompletionDetail struct {
	GateReason     string
	OpenVotes      int
	Participants   int
	QuorumRequired int
}

// CanCompleteGA applies the mode gate. TEST mode is always ready; PRODUCTION
// requires every check and reports one missing entry per failed check.
func CanCompleteGA(mode models.GAMode, checks CompletionChecks, detail CompletionDetail) (bool, []string) {
	missing := []string{}
	switch mode {
	case models.GAModeTest:
		return true, missing
	case models.GAModeProduction:
	default:
		return false, []string{fmt.Sprintf("unknown GA mode %q", mode)}
	}
	if !checks.ProceduralItemsApproved {
		reason := detail.GateReason
		if reason == "" {
			reason = "procedural items not approved"
		}
		missing = append(missing, reason)
	}
	if !checks.AllVotesClosed {
		missing = append(missing, fmt.Sprintf("open votes remain: %d", detail.OpenVotes))
	}
	if !checks.QuorumMet {
		missing = append(missing, fmt.Sprintf("quorum not met: %d of %d required participants", detail.Participants, detail.QuorumRequired))
	}
	if !checks.ProtocolSigned {
		missing = append(missing, "signed protocol not uploaded")
	}
	return len(missing) == 0, missing
}

// ValidateCompletion computes the readiness of a meeting. It never changes
// the meeting; CompleteMeeting is the guarded write built on it.
func (e *Engine) ValidateCompletion(ctx context.Context, meetingID uuid.UUID) (*CompletionValidation, error) {
	if _, err := e.loadMeeting(ctx, meetingID); err != nil {
		return nil, err
	}

	items, err := e.meetings.ListAgendaItems(ctx, meetingID)
	if err != nil {
		return nil, operationFailed("list agenda items", err)
	}
	gate := proceduralDecision(items)

	votes, err := e.votes.ListVotesByMeeting(ctx, meetingID)
	if err != nil {
		return nil, operationFailed("list meeting votes", err)
	}
	open := 0
	for _, v := range votes {
		if v.Status == models.VoteOpen {
			open++
		}
	}

	quorum, err := e.ComputeQuorum(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	// TEST mode does not require the protocol, so a lookup failure only
	// leaves the check false there.
	mode := e.mode()
	signed, err := e.protocols.IsProtocolSigned(ctx, meetingID)
	if err != nil {
		if mode != models.GAModeTest {
			return nil, operationFailed("check protocol signature", err)
		}
		e.logger.Warn("protocol signature lookup failed",
			zap.String("meeting_id", meetingID.String()),
			zap.Error(err))
		signed = false
	}

	checks := CompletionChecks{
		ProceduralItemsApproved: gate.Allowed,
		AllVotesClosed:          open == 0,
		QuorumMet:               quorum.QuorumMet,
		ProtocolSigned:          signed,
	}
	ready, missing := CanCompleteGA(mode, checks, CompletionDetail{
		GateReason:     gate.Reason,
		OpenVotes:      open,
		Participants:   quorum.TotalParticipants,
		QuorumRequired: quorum.QuorumRequired,
	})
	return &CompletionValidation{
		MeetingID: meetingID,
		Mode:      mode,
		Checks:    checks,
		Missing:   missing,
		Ready:     ready,
		Quorum:    quorum,
	}, nil
}

// CompleteMeeting marks a PUBLISHED meeting COMPLETED after ValidateCompletion
// reports it ready. An unready meeting fails with INCOMPLETE_FOR_COMPLETION
// carrying the missing reasons.
func (e *Engine) CompleteMeeting(ctx context.Context, meetingID uuid.UUID) (*CompletionValidation, error) {
	meeting, err := e.loadMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if meeting.Status != models.MeetingPublished {
		return nil, newError(KindInvalidInput, "meeting %s is %s, only PUBLISHED meetings can be completed", meeting.ID, meeting.Status)
	}

	v, err := e.ValidateCompletion(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !v.Ready {
		return v, &Error{Kind: KindIncompleteForCompletion, Reason: "meeting is not ready for completion", Missing: v.Missing}
	}

	done, err := e.meetings.MarkMeetingCompleted(ctx, meetingID, e.now().UTC())
	if err != nil {
		return nil, operationFailed("complete meeting", err)
	}
	if !done {
		return nil, newError(KindInvalidInput, "meeting %s is no longer PUBLISHED", meetingID)
	}

	e.emit(ctx, models.AuditMeetingCompleted, meeting.OrganizationID, "meeting", meetingID, map[string]interface{}{
		"ga_mode": v.Mode,
		"checks":  v.Checks,
	})
	e.logger.Info("meeting completed", zap.String("meeting_id", meetingID.String()), zap.String("ga_mode", string(v.Mode)))
	return v, nil
}
