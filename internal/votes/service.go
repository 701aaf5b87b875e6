package votes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

var managers = []models.MembershipRole{models.MemberRoleOwner, models.MemberRoleBoard}

// Service runs vote commands on behalf of an acting user and resolves the
// opening time the engine takes as input.
type Service struct {
	store           Store
	catalog         Catalog
	orgs            Organizations
	auth            Authorizer
	engine          *governance.Engine
	cache           AttendanceInvalidator
	earlyVotingDays int
	logger          *zap.Logger
	now             func() time.Time
}

// Config carries the process-wide vote defaults. EarlyVotingDays opens
// meeting votes that many days before the meeting unless the organization
// sets its own value.
type Config struct {
	EarlyVotingDays int
	Now             func() time.Time
}

// NewService creates a votes service. cache may be nil.
func NewService(store Store, catalog Catalog, orgs Organizations, auth Authorizer, engine *governance.Engine, cache AttendanceInvalidator, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:           store,
		catalog:         catalog,
		orgs:            orgs,
		auth:            auth,
		engine:          engine,
		cache:           cache,
		earlyVotingDays: cfg.EarlyVotingDays,
		logger:          logger,
		now:             cfg.Now,
	}
}

// OpenInput describes a vote to open. A nil OpensAt resolves to the early
// voting start of the meeting, or now.
type OpenInput struct {
	ResolutionID uuid.UUID
	Kind         models.VoteKind
	MeetingID    *uuid.UUID
	OpensAt      *time.Time
	ClosesAt     *time.Time
}

// Open opens a vote on a resolution. Only owners and board members may open votes.
func (s *Service) Open(ctx context.Context, actor uuid.UUID, in OpenInput) (*models.Vote, error) {
	res, err := s.catalog.GetResolution(ctx, in.ResolutionID)
	if err != nil {
		return nil, governance.Failed("get resolution", err)
	}
	if _, err := s.auth.Authorize(ctx, res.OrganizationID, actor, managers...); err != nil {
		return nil, err
	}
	meetingID := in.MeetingID
	if meetingID == nil {
		meetingID = res.MeetingID
	}
	opensAt, err := s.resolveOpensAt(ctx, res.OrganizationID, meetingID, in.OpensAt)
	if err != nil {
		return nil, err
	}
	return s.engine.OpenVote(governance.WithActor(ctx, actor), governance.OpenVoteInput{
		ResolutionID: in.ResolutionID,
		Kind:         in.Kind,
		MeetingID:    in.MeetingID,
		OpensAt:      opensAt,
		ClosesAt:     in.ClosesAt,
	})
}

// resolveOpensAt picks the opening time: explicit, else the meeting date
// minus the early voting days, else zero (immediately). A computed start
// already in the past opens immediately.
func (s *Service) resolveOpensAt(ctx context.Context, orgID uuid.UUID, meetingID *uuid.UUID, explicit *time.Time) (time.Time, error) {
	if explicit != nil {
		return explicit.UTC(), nil
	}
	if meetingID == nil {
		return time.Time{}, nil
	}
	days := s.earlyVotingDays
	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return time.Time{}, governance.Failed("get organization", err)
	}
	if org.EarlyVotingDays != nil {
		days = *org.EarlyVotingDays
	}
	if days <= 0 {
		return time.Time{}, nil
	}
	m, err := s.catalog.GetMeeting(ctx, *meetingID)
	if err != nil {
		return time.Time{}, governance.Failed("get meeting", err)
	}
	start := m.ScheduledAt.AddDate(0, 0, -days)
	if !start.After(s.now()) {
		return time.Time{}, nil
	}
	return start.UTC(), nil
}

// VoteView is a vote with its participation count. The tally is only
// disclosed once the vote is closed.
type VoteView struct {
	*models.Vote
	BallotCount int           `json:"ballot_count"`
	Tally       *models.Tally `json:"tally,omitempty"`
}

// Get returns a vote to an active member of its organization.
func (s *Service) Get(ctx context.Context, actor, voteID uuid.UUID) (*VoteView, error) {
	v, err := s.load(ctx, actor, voteID)
	if err != nil {
		return nil, err
	}
	ballots, err := s.store.ListBallots(ctx, voteID)
	if err != nil {
		return nil, governance.Failed("list ballots", err)
	}
	view := &VoteView{Vote: v, BallotCount: len(ballots)}
	if v.Status == models.VoteClosed {
		var t models.Tally
		for _, b := range ballots {
			t.Add(b.Choice)
		}
		view.Tally = &t
	}
	return view, nil
}

// ListByMeeting returns the votes held in a meeting.
func (s *Service) ListByMeeting(ctx context.Context, actor, meetingID uuid.UUID) ([]models.Vote, error) {
	m, err := s.catalog.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, governance.Failed("get meeting", err)
	}
	if _, err := s.auth.Authorize(ctx, m.OrganizationID, actor); err != nil {
		return nil, err
	}
	list, err := s.store.ListVotesByMeeting(ctx, meetingID)
	if err != nil {
		return nil, governance.Failed("list votes", err)
	}
	return list, nil
}

// Cast records the actor's own ballot.
func (s *Service) Cast(ctx context.Context, actor, voteID uuid.UUID, choice models.Choice, channel models.Channel) (*models.Ballot, error) {
	v, err := s.store.GetVote(ctx, voteID)
	if err != nil {
		return nil, governance.Failed("get vote", err)
	}
	b, err := s.engine.CastBallot(governance.WithActor(ctx, actor), governance.CastBallotInput{
		VoteID:  voteID,
		UserID:  actor,
		Choice:  choice,
		Channel: channel,
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil && v.MeetingID != nil {
		s.cache.Invalidate(ctx, *v.MeetingID)
	}
	return b, nil
}

// Close closes a vote and applies its outcome. Only owners and board members may close votes.
func (s *Service) Close(ctx context.Context, actor, voteID uuid.UUID) (*governance.CloseResult, error) {
	if _, err := s.load(ctx, actor, voteID, managers...); err != nil {
		return nil, err
	}
	return s.engine.CloseVote(governance.WithActor(ctx, actor), voteID)
}

func (s *Service) load(ctx context.Context, actor, voteID uuid.UUID, roles ...models.MembershipRole) (*models.Vote, error) {
	v, err := s.store.GetVote(ctx, voteID)
	if err != nil {
		return nil, governance.Failed("get vote", err)
	}
	if _, err := s.auth.Authorize(ctx, v.OrganizationID, actor, roles...); err != nil {
		return nil, err
	}
	return v, nil
}
