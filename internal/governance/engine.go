// Package governance implements the voting decision engine: quorum, vote
// lifecycle, procedural gating and meeting completion.
package governance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/models"
)

// Deps are the collaborators of the engine. Meetings, Votes, Members, Policy,
// Attendance and Protocols are required; the rest fall back to defaults.
type Deps struct {
	Meetings   MeetingStore
	Votes      VoteStore
	Members    MembershipRegistry
	Policy     VotingPolicy
	Attendance AttendanceSource
	Protocols  ProtocolSource
	Quorum     QuorumPolicySource
	Mode       ModeSource
	Audit      Emitter
	Now        func() time.Time
}

// Engine exposes the governance operations to the application layer.
type Engine struct {
	meetings   MeetingStore
	votes      VoteStore
	members    MembershipRegistry
	policy     VotingPolicy
	attendance AttendanceSource
	protocols  ProtocolSource
	quorum     QuorumPolicySource
	mode       ModeSource
	audit      Emitter
	now        func() time.Time
	logger     *zap.Logger
}

// NewEngine creates an engine from deps.
func NewEngine(deps Deps, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		meetings:   deps.Meetings,
		votes:      deps.Votes,
		members:    deps.Members,
		policy:     deps.Policy,
		attendance: deps.Attendance,
		protocols:  deps.Protocols,
		quorum:     deps.Quorum,
		mode:       deps.Mode,
		audit:      deps.Audit,
		now:        deps.Now,
		logger:     logger,
	}
	if e.mode == nil {
		e.mode = StaticMode(models.GAModeProduction)
	}
	if e.audit == nil {
		e.audit = nopEmitter{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) emit(ctx context.Context, typ models.AuditEventType, orgID uuid.UUID, entityType string, entityID uuid.UUID, data map[string]interface{}) {
	e.audit.Emit(models.AuditEvent{
		ID:             uuid.New(),
		Type:           typ,
		OrganizationID: orgID,
		EntityType:     entityType,
		EntityID:       entityID,
		ActorUserID:    ActorFrom(ctx),
		Data:           data,
		OccurredAt:     e.now().UTC(),
	})
}

func (e *Engine) loadMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	m, err := e.meetings.GetMeeting(ctx, id)
	if err != nil {
		return nil, operationFailed("load meeting", err)
	}
	return m, nil
}
