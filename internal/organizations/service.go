package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

// DefaultConsentWindow is how long a new member has to consent before an
// approver is expected to act. Elapsing it does not change the membership.
const DefaultConsentWindow = 14 * 24 * time.Hour

// QuorumInvalidator drops cached quorum snapshots of an organization's
// meetings. Membership status changes move the eligible count.
type QuorumInvalidator interface {
	InvalidateOrganization(ctx context.Context, orgID uuid.UUID)
}

// Service runs the membership commands.
type Service struct {
	store         Store
	audit         governance.Emitter
	quorum        QuorumInvalidator
	logger        *zap.Logger
	now           func() time.Time
	consentWindow time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithConsentWindow sets the consent deadline offset for joins.
func WithConsentWindow(d time.Duration) Option {
	return func(s *Service) { s.consentWindow = d }
}

// WithQuorumInvalidator clears cached quorum snapshots when the eligible
// membership of an organization changes.
func WithQuorumInvalidator(q QuorumInvalidator) Option {
	return func(s *Service) { s.quorum = q }
}

// NewService creates a membership service. audit may be nil.
func NewService(store Store, audit governance.Emitter, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:         store,
		audit:         audit,
		logger:        logger,
		now:           time.Now,
		consentWindow: DefaultConsentWindow,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateOrganization creates an ACTIVE organization with the caller as its approved OWNER.
func (s *Service) CreateOrganization(ctx context.Context, org *models.Organization, ownerUserID uuid.UUID) (*models.Membership, error) {
	if org.Status == "" {
		org.Status = models.OrgStatusActive
	}
	if !org.Status.Valid() {
		return nil, governance.Errorf(governance.KindInvalidInput, "unknown organization status %q", org.Status)
	}
	now := s.now().UTC()
	owner := &models.Membership{
		UserID:     ownerUserID,
		Role:       models.MemberRoleOwner,
		Status:     models.MembershipActive,
		ApprovedAt: &now,
		ApprovedBy: &ownerUserID,
	}
	if err := s.store.CreateOrganization(ctx, org, owner); err != nil {
		return nil, governance.Failed("create organization", err)
	}
	s.logger.Info("organization created", zap.String("organization_id", org.ID.String()), zap.String("slug", org.Slug))
	return owner, nil
}

// Join files a PENDING MEMBER membership for the user in the organization
// identified by slug.
func (s *Service) Join(ctx context.Context, slug string, userID uuid.UUID) (*models.Membership, error) {
	org, err := s.store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, governance.Failed("get organization", err)
	}
	existing, err := s.store.FindMembership(ctx, org.ID, userID)
	if err != nil {
		return nil, governance.Failed("find membership", err)
	}
	if existing != nil {
		return nil, governance.Errorf(governance.KindConflict, "membership already exists with status %s", existing.Status)
	}
	deadline := s.now().UTC().Add(s.consentWindow)
	m := &models.Membership{
		OrganizationID:  org.ID,
		UserID:          userID,
		Role:            models.MemberRoleMember,
		Status:          models.MembershipPending,
		ConsentDeadline: &deadline,
	}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, governance.Failed("create membership", err)
	}
	return m, nil
}

// Authorize returns the caller's ACTIVE membership when it holds one of roles.
// With no roles any ACTIVE membership passes.
func (s *Service) Authorize(ctx context.Context, orgID, userID uuid.UUID, roles ...models.MembershipRole) (*models.Membership, error) {
	m, err := s.store.FindMembership(ctx, orgID, userID)
	if err != nil {
		return nil, governance.Failed("find membership", err)
	}
	if !m.IsActive() {
		return nil, governance.Errorf(governance.KindNotAMember, "user %s has no active membership in organization %s", userID, orgID)
	}
	if len(roles) == 0 {
		return m, nil
	}
	for _, r := range roles {
		if m.Role == r {
			return m, nil
		}
	}
	return nil, governance.Errorf(governance.KindForbidden, "role %s may not perform this action", m.Role)
}

// MembershipInOrg returns the membership when it belongs to orgID.
func (s *Service) MembershipInOrg(ctx context.Context, orgID, membershipID uuid.UUID) (*models.Membership, error) {
	return s.loadInOrg(ctx, orgID, membershipID)
}

func (s *Service) loadInOrg(ctx context.Context, orgID, membershipID uuid.UUID) (*models.Membership, error) {
	m, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, governance.Failed("get membership", err)
	}
	if m.OrganizationID != orgID {
		return nil, governance.NotFound("membership", membershipID)
	}
	return m, nil
}

// Approve moves a PENDING membership to ACTIVE. The approver must be an
// active OWNER or BOARD member of the same organization.
func (s *Service) Approve(ctx context.Context, orgID, membershipID, approverUserID uuid.UUID) (*models.Membership, error) {
	if _, err := s.Authorize(ctx, orgID, approverUserID, models.MemberRoleOwner, models.MemberRoleBoard); err != nil {
		return nil, err
	}
	m, err := s.loadInOrg(ctx, orgID, membershipID)
	if err != nil {
		return nil, err
	}
	from := m.Status
	if err := m.Approve(approverUserID, s.now().UTC()); err != nil {
		return nil, governance.Errorf(governance.KindInvalidInput, "%s", err.Error())
	}
	ok, err := s.store.UpdateMembership(ctx, m, from)
	if err != nil {
		return nil, governance.Failed("approve membership", err)
	}
	if !ok {
		return nil, governance.Errorf(governance.KindConflict, "membership %s changed concurrently", membershipID)
	}

	s.membershipChanged(ctx, orgID)
	s.emit(models.AuditMembershipApproved, m, approverUserID, *m.ApprovedAt,
		map[string]interface{}{"user_id": m.UserID.String(), "role": string(m.Role)})
	s.logger.Info("membership approved", zap.String("membership_id", m.ID.String()), zap.String("approved_by", approverUserID.String()))
	return m, nil
}

// ChangeStatus applies a non-approval transition such as suspension,
// reinstatement or leaving. PENDING memberships become ACTIVE only via Approve.
func (s *Service) ChangeStatus(ctx context.Context, orgID, membershipID, actorUserID uuid.UUID, to models.MembershipStatus) (*models.Membership, error) {
	if !to.Valid() {
		return nil, governance.Errorf(governance.KindInvalidInput, "unknown membership status %q", to)
	}
	if _, err := s.Authorize(ctx, orgID, actorUserID, models.MemberRoleOwner, models.MemberRoleBoard); err != nil {
		return nil, err
	}
	m, err := s.loadInOrg(ctx, orgID, membershipID)
	if err != nil {
		return nil, err
	}
	from := m.Status
	if from == models.MembershipPending && to == models.MembershipActive {
		return nil, governance.Errorf(governance.KindInvalidInput, "pending memberships are activated by approval")
	}
	if !from.CanTransitionTo(to) {
		return nil, governance.Errorf(governance.KindInvalidInput, "membership cannot move from %s to %s", from, to)
	}
	m.Status = to
	ok, err := s.store.UpdateMembership(ctx, m, from)
	if err != nil {
		return nil, governance.Failed("update membership", err)
	}
	if !ok {
		return nil, governance.Errorf(governance.KindConflict, "membership %s changed concurrently", membershipID)
	}
	s.membershipChanged(ctx, orgID)
	s.emit(models.AuditMembershipStatusChanged, m, actorUserID, s.now().UTC(),
		map[string]interface{}{"user_id": m.UserID.String(), "from": string(from), "to": string(to)})
	s.logger.Info("membership status changed",
		zap.String("membership_id", m.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return m, nil
}

// SetVotingBlock records or clears (reason nil) a voting block on a membership.
func (s *Service) SetVotingBlock(ctx context.Context, orgID, membershipID, actorUserID uuid.UUID, reason *string) (*models.Membership, error) {
	if _, err := s.Authorize(ctx, orgID, actorUserID, models.MemberRoleOwner, models.MemberRoleBoard); err != nil {
		return nil, err
	}
	m, err := s.loadInOrg(ctx, orgID, membershipID)
	if err != nil {
		return nil, err
	}
	m.VotingBlockReason = reason
	ok, err := s.store.UpdateMembership(ctx, m, m.Status)
	if err != nil {
		return nil, governance.Failed("update membership", err)
	}
	if !ok {
		return nil, governance.Errorf(governance.KindConflict, "membership %s changed concurrently", membershipID)
	}
	data := map[string]interface{}{"user_id": m.UserID.String(), "blocked": reason != nil}
	if reason != nil {
		data["reason"] = *reason
	}
	s.emit(models.AuditMembershipVotingBlockSet, m, actorUserID, s.now().UTC(), data)
	return m, nil
}

func (s *Service) emit(typ models.AuditEventType, m *models.Membership, actor uuid.UUID, at time.Time, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(models.AuditEvent{
		ID:             uuid.New(),
		Type:           typ,
		OrganizationID: m.OrganizationID,
		EntityType:     "membership",
		EntityID:       m.ID,
		ActorUserID:    &actor,
		Data:           data,
		OccurredAt:     at,
	})
}

func (s *Service) membershipChanged(ctx context.Context, orgID uuid.UUID) {
	if s.quorum != nil {
		s.quorum.InvalidateOrganization(ctx, orgID)
	}
}

// ListOrganizations returns the organizations the user belongs to.
func (s *Service) ListOrganizations(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	orgs, err := s.store.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, governance.Failed("list organizations", err)
	}
	return orgs, nil
}

// ListMembers returns every membership of the organization to an active member.
func (s *Service) ListMembers(ctx context.Context, orgID, userID uuid.UUID) ([]models.Membership, error) {
	if _, err := s.Authorize(ctx, orgID, userID); err != nil {
		return nil, err
	}
	list, err := s.store.ListMemberships(ctx, orgID)
	if err != nil {
		return nil, governance.Failed("list memberships", err)
	}
	return list, nil
}

// GetOrganization returns an organization.
func (s *Service) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, governance.Failed("get organization", err)
	}
	return org, nil
}
