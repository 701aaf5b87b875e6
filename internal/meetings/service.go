package meetings

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

var managers = []models.MembershipRole{models.MemberRoleOwner, models.MemberRoleBoard}

// Service runs meeting commands and queries on behalf of an acting user.
type Service struct {
	store  Store
	auth   Authorizer
	engine *governance.Engine
	cache  QuorumCache
	audit  governance.Emitter
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a meetings service. cache and audit may be nil.
func NewService(store Store, auth Authorizer, engine *governance.Engine, cache QuorumCache, audit governance.Emitter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NopQuorumCache{}
	}
	return &Service{store: store, auth: auth, engine: engine, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// CreateMeetingInput describes a new meeting.
type CreateMeetingInput struct {
	OrganizationID uuid.UUID
	Type           models.MeetingType
	Title          string
	ScheduledAt    time.Time
}

// Create stores a DRAFT meeting. Only owners and board members may schedule meetings.
func (s *Service) Create(ctx context.Context, actor uuid.UUID, in CreateMeetingInput) (*models.Meeting, error) {
	if !in.Type.Valid() {
		return nil, governance.Errorf(governance.KindInvalidInput, "unknown meeting type %q", in.Type)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || in.ScheduledAt.IsZero() {
		return nil, governance.Errorf(governance.KindInvalidInput, "title and scheduled_at are required")
	}
	if _, err := s.auth.Authorize(ctx, in.OrganizationID, actor, managers...); err != nil {
		return nil, err
	}
	m := &models.Meeting{
		OrganizationID: in.OrganizationID,
		Type:           in.Type,
		Status:         models.MeetingDraft,
		Title:          title,
		ScheduledAt:    in.ScheduledAt.UTC(),
	}
	if err := s.store.InsertMeeting(ctx, m); err != nil {
		return nil, governance.Failed("create meeting", err)
	}
	s.logger.Info("meeting created", zap.String("meeting_id", m.ID.String()), zap.String("type", string(m.Type)))
	return m, nil
}

// load returns the meeting after checking the actor's membership. With no
// roles any active member may read.
func (s *Service) load(ctx context.Context, actor, meetingID uuid.UUID, roles ...models.MembershipRole) (*models.Meeting, error) {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, governance.Failed("get meeting", err)
	}
	if _, err := s.auth.Authorize(ctx, m.OrganizationID, actor, roles...); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns a meeting to an active member of its organization.
func (s *Service) Get(ctx context.Context, actor, meetingID uuid.UUID) (*models.Meeting, error) {
	return s.load(ctx, actor, meetingID)
}

// SetStatus publishes or cancels a meeting. Completion goes through Complete.
func (s *Service) SetStatus(ctx context.Context, actor, meetingID uuid.UUID, to models.MeetingStatus) (*models.Meeting, error) {
	if to == models.MeetingCompleted {
		return nil, governance.Errorf(governance.KindInvalidInput, "meetings are completed through the completion command")
	}
	m, err := s.load(ctx, actor, meetingID, managers...)
	if err != nil {
		return nil, err
	}
	if !m.Status.CanTransitionTo(to) {
		return nil, governance.Errorf(governance.KindInvalidInput, "meeting cannot move from %s to %s", m.Status, to)
	}
	ok, err := s.store.SetMeetingStatus(ctx, meetingID, m.Status, to)
	if err != nil {
		return nil, governance.Failed("set meeting status", err)
	}
	if !ok {
		return nil, governance.Errorf(governance.KindConflict, "meeting %s changed concurrently", meetingID)
	}
	from := m.Status
	m.Status = to
	if s.audit != nil {
		s.audit.Emit(models.AuditEvent{
			ID:             uuid.New(),
			Type:           models.AuditMeetingStatusChanged,
			OrganizationID: m.OrganizationID,
			EntityType:     "meeting",
			EntityID:       m.ID,
			ActorUserID:    &actor,
			Data:           map[string]interface{}{"from": string(from), "to": string(to)},
			OccurredAt:     s.now().UTC(),
		})
	}
	s.logger.Info("meeting status changed",
		zap.String("meeting_id", m.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return m, nil
}

// AgendaItemInput describes a new agenda item.
type AgendaItemInput struct {
	ItemNo       int
	Title        string
	IsProcedural bool
}

// AddAgendaItem appends an item to a DRAFT or PUBLISHED meeting.
func (s *Service) AddAgendaItem(ctx context.Context, actor, meetingID uuid.UUID, in AgendaItemInput) (*models.AgendaItem, error) {
	if in.ItemNo <= 0 || strings.TrimSpace(in.Title) == "" {
		return nil, governance.Errorf(governance.KindInvalidInput, "item_no must be positive and title is required")
	}
	m, err := s.load(ctx, actor, meetingID, managers...)
	if err != nil {
		return nil, err
	}
	if !m.Status.Editable() {
		return nil, governance.Errorf(governance.KindInvalidInput, "meeting %s is %s", m.ID, m.Status)
	}
	item := &models.AgendaItem{MeetingID: meetingID, ItemNo: in.ItemNo, Title: strings.TrimSpace(in.Title), IsProcedural: in.IsProcedural}
	if err := s.store.InsertAgendaItem(ctx, item); err != nil {
		return nil, governance.Failed("add agenda item", err)
	}
	return item, nil
}

// ListAgenda returns the meeting's agenda in item order.
func (s *Service) ListAgenda(ctx context.Context, actor, meetingID uuid.UUID) ([]models.AgendaItem, error) {
	if _, err := s.load(ctx, actor, meetingID); err != nil {
		return nil, err
	}
	items, err := s.store.ListAgendaItems(ctx, meetingID)
	if err != nil {
		return nil, governance.Failed("list agenda items", err)
	}
	return items, nil
}

// ResolutionInput describes a new resolution. A resolution on an agenda item
// belongs to that item's meeting; one without is an opinion-poll motion.
type ResolutionInput struct {
	OrganizationID uuid.UUID
	MeetingID      *uuid.UUID
	AgendaItemID   *uuid.UUID
	Title          string
}

// CreateResolution stores a PROPOSED resolution.
func (s *Service) CreateResolution(ctx context.Context, actor uuid.UUID, in ResolutionInput) (*models.Resolution, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, governance.Errorf(governance.KindInvalidInput, "title is required")
	}
	if in.AgendaItemID != nil && in.MeetingID == nil {
		item, err := s.store.GetAgendaItem(ctx, *in.AgendaItemID)
		if err != nil {
			return nil, governance.Failed("get agenda item", err)
		}
		in.MeetingID = &item.MeetingID
	}
	if in.MeetingID != nil {
		m, err := s.store.GetMeeting(ctx, *in.MeetingID)
		if err != nil {
			return nil, governance.Failed("get meeting", err)
		}
		if m.OrganizationID != in.OrganizationID {
			return nil, governance.Errorf(governance.KindInvalidInput, "meeting %s belongs to another organization", m.ID)
		}
		if !m.Status.Editable() {
			return nil, governance.Errorf(governance.KindInvalidInput, "meeting %s is %s", m.ID, m.Status)
		}
	}
	if _, err := s.auth.Authorize(ctx, in.OrganizationID, actor, managers...); err != nil {
		return nil, err
	}
	res := &models.Resolution{
		OrganizationID: in.OrganizationID,
		MeetingID:      in.MeetingID,
		AgendaItemID:   in.AgendaItemID,
		Title:          strings.TrimSpace(in.Title),
		Status:         models.ResolutionProposed,
	}
	if err := s.store.InsertResolution(ctx, res); err != nil {
		return nil, governance.Failed("create resolution", err)
	}
	return res, nil
}

// CheckIn records live attendance. Members check themselves in; owners and
// board members may check in another membership of the organization.
func (s *Service) CheckIn(ctx context.Context, actor, meetingID uuid.UUID, membershipID *uuid.UUID) error {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return governance.Failed("get meeting", err)
	}
	if !m.Status.Editable() {
		return governance.Errorf(governance.KindInvalidInput, "meeting %s is %s", m.ID, m.Status)
	}
	self, err := s.auth.Authorize(ctx, m.OrganizationID, actor)
	if err != nil {
		return err
	}
	target := self.ID
	if membershipID != nil && *membershipID != self.ID {
		if !self.Role.BoardEligible() {
			return governance.Errorf(governance.KindForbidden, "only owners and board members may check in others")
		}
		other, err := s.auth.MembershipInOrg(ctx, m.OrganizationID, *membershipID)
		if err != nil {
			return err
		}
		target = other.ID
	}
	if err := s.store.RecordCheckIn(ctx, meetingID, target, s.now().UTC()); err != nil {
		return governance.Failed("record check-in", err)
	}
	s.cache.Invalidate(ctx, meetingID)
	return nil
}

// Quorum returns the meeting's quorum snapshot, served from cache when fresh.
func (s *Service) Quorum(ctx context.Context, actor, meetingID uuid.UUID) (*governance.QuorumSnapshot, error) {
	m, err := s.load(ctx, actor, meetingID)
	if err != nil {
		return nil, err
	}
	if snap, ok := s.cache.Get(ctx, meetingID); ok {
		return snap, nil
	}
	snap, err := s.engine.ComputeQuorum(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, m.OrganizationID, snap)
	return snap, nil
}

// Gate reports whether substantive votes may open.
func (s *Service) Gate(ctx context.Context, actor, meetingID uuid.UUID) (*governance.GateDecision, error) {
	if _, err := s.load(ctx, actor, meetingID); err != nil {
		return nil, err
	}
	return s.engine.CanOpenSubstantiveVote(ctx, meetingID)
}

// Completion reports the completion readiness without changing anything.
func (s *Service) Completion(ctx context.Context, actor, meetingID uuid.UUID) (*governance.CompletionValidation, error) {
	if _, err := s.load(ctx, actor, meetingID); err != nil {
		return nil, err
	}
	return s.engine.ValidateCompletion(ctx, meetingID)
}

// Complete runs the guarded completion command.
func (s *Service) Complete(ctx context.Context, actor, meetingID uuid.UUID) (*governance.CompletionValidation, error) {
	if _, err := s.load(ctx, actor, meetingID, managers...); err != nil {
		return nil, err
	}
	return s.engine.CompleteMeeting(governance.WithActor(ctx, actor), meetingID)
}

// CloseAllVotes closes every open vote of the meeting.
func (s *Service) CloseAllVotes(ctx context.Context, actor, meetingID uuid.UUID) (*governance.CloseAllResult, error) {
	if _, err := s.load(ctx, actor, meetingID, managers...); err != nil {
		return nil, err
	}
	return s.engine.CloseAllOpenVotesForMeeting(governance.WithActor(ctx, actor), meetingID)
}
