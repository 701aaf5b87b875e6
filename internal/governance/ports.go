package governance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/models"
)

// MeetingStore reads meetings, their agenda and resolutions. Lookups of
// absent rows return an error matching ErrNotFound.
type MeetingStore interface {
	GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	// ListAgendaItems returns the meeting's items ordered by item_no.
	ListAgendaItems(ctx context.Context, meetingID uuid.UUID) ([]models.AgendaItem, error)
	GetAgendaItem(ctx context.Context, id uuid.UUID) (*models.AgendaItem, error)
	GetResolution(ctx context.Context, id uuid.UUID) (*models.Resolution, error)
	// MarkMeetingCompleted flips PUBLISHED to COMPLETED and reports whether
	// this call performed the flip.
	MarkMeetingCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// VoteStore owns votes and ballots. Mutations run inside InTx so the
// check-then-write sequences of the lifecycle are atomic.
type VoteStore interface {
	GetVote(ctx context.Context, id uuid.UUID) (*models.Vote, error)
	ListVotesByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Vote, error)
	InTx(ctx context.Context, fn func(tx VoteTx) error) error
}

// VoteTx is the transactional view of a VoteStore.
type VoteTx interface {
	HasOpenVote(ctx context.Context, resolutionID uuid.UUID) (bool, error)
	// InsertVote fails with ErrVoteAlreadyOpen if the resolution already has an OPEN vote.
	InsertVote(ctx context.Context, v *models.Vote) error
	LinkAgendaItemVote(ctx context.Context, agendaItemID, voteID uuid.UUID) error
	// LockVote reads the vote and holds it until the transaction ends.
	LockVote(ctx context.Context, id uuid.UUID) (*models.Vote, error)
	// InsertBallot fails with ErrAlreadyVoted on a duplicate (vote, membership).
	InsertBallot(ctx context.Context, b *models.Ballot) error
	// CloseVote performs the OPEN -> CLOSED compare-and-swap. closes_at is
	// only written when unset. ok is false when the vote was not OPEN.
	CloseVote(ctx context.Context, id uuid.UUID, at time.Time) (v *models.Vote, ok bool, err error)
	TallyBallots(ctx context.Context, voteID uuid.UUID) (models.Tally, error)
	// ApplyOutcome writes status to the resolution and every agenda item linked to it.
	ApplyOutcome(ctx context.Context, resolutionID uuid.UUID, status models.ResolutionStatus) error
}

// MembershipRegistry is the read-only membership view the engine consumes.
type MembershipRegistry interface {
	// GetActiveMembership returns nil, nil when the user holds no ACTIVE membership.
	GetActiveMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error)
	ListActiveMemberships(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error)
}

// Permission is the verdict of the governance policy.
type Permission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// VotingPolicy decides whether a member may vote under the organization's rules.
type VotingPolicy interface {
	CanVote(ctx context.Context, orgID, userID uuid.UUID) (Permission, error)
}

// MembershipSet is a set of membership IDs.
type MembershipSet map[uuid.UUID]struct{}

// NewMembershipSet builds a set from ids.
func NewMembershipSet(ids ...uuid.UUID) MembershipSet {
	s := make(MembershipSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s MembershipSet) Add(id uuid.UUID) { s[id] = struct{}{} }

// Contains reports whether id is in the set.
func (s MembershipSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Attendance is the raw participation of a meeting.
type Attendance struct {
	RemoteVoterMembershipIDs  MembershipSet
	LiveAttendeeMembershipIDs MembershipSet
}

// AttendanceSource reports who took part in a meeting.
type AttendanceSource interface {
	GetAttendance(ctx context.Context, meetingID uuid.UUID) (Attendance, error)
}

// ProtocolSource reports whether the signed meeting protocol was provided.
type ProtocolSource interface {
	IsProtocolSigned(ctx context.Context, meetingID uuid.UUID) (bool, error)
}

// QuorumPolicySource resolves the organization's quorum rule.
type QuorumPolicySource interface {
	QuorumPolicy(ctx context.Context, orgID uuid.UUID) (QuorumPolicy, error)
}

// ModeSource returns the GA mode in force at call time.
type ModeSource func() models.GAMode

// StaticMode returns a ModeSource that always yields m.
func StaticMode(m models.GAMode) ModeSource {
	return func() models.GAMode { return m }
}

// Emitter receives audit events. Implementations must not block or fail the caller.
type Emitter interface {
	Emit(ev models.AuditEvent)
}

type nopEmitter struct{}

func (nopEmitter) Emit(models.AuditEvent) {}

type actorKey struct{}

// WithActor attaches the acting user to ctx for audit attribution.
func WithActor(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the acting user set by WithActor, if any.
func ActorFrom(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(actorKey{}).(uuid.UUID); ok {
		return &id
	}
	return nil
}
