package governance

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/models"
)

// QuorumPolicy is an organization's quorum rule: Numerator/Denominator of
// eligible members, rounded to a head count.
type QuorumPolicy struct {
	Numerator   int                   `json:"numerator"`
	Denominator int                   `json:"denominator"`
	Rounding    models.QuorumRounding `json:"rounding"`
}

// DefaultQuorumPolicy is one half, rounded up.
func DefaultQuorumPolicy() QuorumPolicy {
	return QuorumPolicy{Numerator: 1, Denominator: 2, Rounding: models.RoundCeil}
}

// Valid reports whether the fraction lies in (0, 1] with a known rounding.
func (p QuorumPolicy) Valid() bool {
	return p.Denominator > 0 && p.Numerator > 0 && p.Numerator <= p.Denominator && p.Rounding.Valid()
}

// Required returns the participant count needed out of total eligible members.
func (p QuorumPolicy) Required(total int) int {
	if total <= 0 {
		return 0
	}
	if !p.Valid() {
		p = DefaultQuorumPolicy()
	}
	scaled := total * p.Numerator
	if p.Rounding == models.RoundFloor {
		return scaled / p.Denominator
	}
	return (scaled + p.Denominator - 1) / p.Denominator
}

// QuorumSnapshot is the computed quorum view of a meeting.
type QuorumSnapshot struct {
	MeetingID         uuid.UUID    `json:"meeting_id"`
	TotalMembers      int          `json:"total_members"`
	QuorumRequired    int          `json:"quorum_required"`
	RemoteVoters      int          `json:"remote_voters"`
	LiveAttendees     int          `json:"live_attendees"`
	TotalParticipants int          `json:"total_participants"`
	QuorumMet         bool         `json:"quorum_met"`
	Policy            QuorumPolicy `json:"policy"`
}

// ComputeQuorum evaluates a meeting's quorum against current membership
// standing. Participants are deduplicated by membership ID, so a member who
// voted remotely and also checked in counts once. Only a missing meeting is
// an error; no attendance yields a zero snapshot with QuorumMet false.
func (e *Engine) ComputeQuorum(ctx context.Context, meetingID uuid.UUID) (*QuorumSnapshot, error) {
	meeting, err := e.loadMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	members, err := e.members.ListActiveMemberships(ctx, meeting.OrganizationID)
	if err != nil {
		return nil, operationFailed("list active memberships", err)
	}
	eligible := NewMembershipSet()
	for _, m := range members {
		if !m.IsActive() {
			continue
		}
		if meeting.Type == models.MeetingBoard && !m.Role.BoardEligible() {
			continue
		}
		eligible.Add(m.ID)
	}

	policy := DefaultQuorumPolicy()
	if e.quorum != nil {
		p, err := e.quorum.QuorumPolicy(ctx, meeting.OrganizationID)
		if err != nil {
			return nil, operationFailed("load quorum policy", err)
		}
		if p.Valid() {
			policy = p
		} else {
			e.logger.Warn("invalid quorum policy, using default",
				zap.String("organization_id", meeting.OrganizationID.String()),
				zap.Int("numerator", p.Numerator),
				zap.Int("denominator", p.Denominator))
		}
	}

	att, err := e.attendance.GetAttendance(ctx, meetingID)
	if err != nil {
		return nil, operationFailed("load attendance", err)
	}
	remote := intersect(att.RemoteVoterMembershipIDs, eligible)
	live := intersect(att.LiveAttendeeMembershipIDs, eligible)
	participants := union(remote, live)

	snap := &QuorumSnapshot{
		MeetingID:         meetingID,
		TotalMembers:      len(eligible),
		QuorumRequired:    policy.Required(len(eligible)),
		RemoteVoters:      len(remote),
		LiveAttendees:     len(live),
		TotalParticipants: len(participants),
		Policy:            policy,
	}
	snap.QuorumMet = snap.TotalParticipants > 0 && snap.TotalParticipants >= snap.QuorumRequired
	return snap, nil
}

func intersect(a, b MembershipSet) MembershipSet {
	out := NewMembershipSet()
	for id := range a {
		if b.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

func union(a, b MembershipSet) MembershipSet {
	out := make(MembershipSet, len(a)+len(b))
	for id := range a {
		out.Add(id)
	}
	for id := range b {
		out.Add(id)
	}
	return out
}
