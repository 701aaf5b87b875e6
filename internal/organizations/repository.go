package organizations

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/database"
)

const (
	orgColumns = `id, name, slug, status, quorum_numerator, quorum_denominator, quorum_rounding, early_voting_days, created_at, updated_at`

	membershipColumns = `id, organization_id, user_id, role, status, consent_deadline, voting_block_reason, approved_at, approved_by, created_at, updated_at`
)

// Repository is the Postgres membership registry. It also serves the
// engine's voting policy and quorum policy ports.
type Repository struct {
	pool          *pgxpool.Pool
	defaultQuorum governance.QuorumPolicy
}

// NewRepository creates a memberships repository. defaultQuorum applies to
// organizations without their own quorum settings.
func NewRepository(pool *pgxpool.Pool, defaultQuorum governance.QuorumPolicy) *Repository {
	if !defaultQuorum.Valid() {
		defaultQuorum = governance.DefaultQuorumPolicy()
	}
	return &Repository{pool: pool, defaultQuorum: defaultQuorum}
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Status, &o.QuorumNumerator, &o.QuorumDenominator, &o.QuorumRounding, &o.EarlyVotingDays, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	if err := row.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Status, &m.ConsentDeadline, &m.VotingBlockReason, &m.ApprovedAt, &m.ApprovedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateOrganization inserts the organization and its owner in one transaction.
func (r *Repository) CreateOrganization(ctx context.Context, org *models.Organization, owner *models.Membership) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const qOrg = `INSERT INTO organizations (name, slug, status, quorum_numerator, quorum_denominator, quorum_rounding, early_voting_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, qOrg, org.Name, org.Slug, org.Status, org.QuorumNumerator, org.QuorumDenominator, org.QuorumRounding, org.EarlyVotingDays).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return governance.Errorf(governance.KindConflict, "an organization with slug %q already exists", org.Slug)
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}

	owner.OrganizationID = org.ID
	if err := insertMembership(ctx, tx, owner); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetOrganization returns an organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	o, err := scanOrganization(r.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, governance.NotFound("organization", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

// GetOrganizationBySlug returns an organization by slug.
func (r *Repository) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	o, err := scanOrganization(r.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug))
	if database.IsNoRows(err) {
		return nil, governance.Errorf(governance.KindNotFound, "organization %q not found", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

// ListOrganizationsForUser returns organizations the user holds any membership in.
func (r *Repository) ListOrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	cols := "o." + strings.ReplaceAll(orgColumns, ", ", ", o.")
	q := `SELECT ` + cols + `
		FROM organizations o
		INNER JOIN memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.status <> 'LEFT'
		ORDER BY o.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()
	var list []models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertMembership(ctx context.Context, db execQuerier, m *models.Membership) error {
	const q = `INSERT INTO memberships (organization_id, user_id, role, status, consent_deadline, voting_block_reason, approved_at, approved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := db.QueryRow(ctx, q, m.OrganizationID, m.UserID, m.Role, m.Status, m.ConsentDeadline, m.VotingBlockReason, m.ApprovedAt, m.ApprovedBy).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return governance.Errorf(governance.KindConflict, "user %s already has a membership", m.UserID)
	}
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// CreateMembership inserts m.
func (r *Repository) CreateMembership(ctx context.Context, m *models.Membership) error {
	return insertMembership(ctx, r.pool, m)
}

// GetMembership returns a membership by ID.
func (r *Repository) GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	m, err := scanMembership(r.pool.QueryRow(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, governance.NotFound("membership", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// FindMembership returns the user's membership in the organization, or nil.
func (r *Repository) FindMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	const q = `SELECT ` + membershipColumns + ` FROM memberships WHERE organization_id = $1 AND user_id = $2`
	m, err := scanMembership(r.pool.QueryRow(ctx, q, orgID, userID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return m, nil
}

func (r *Repository) listMemberships(ctx context.Context, q string, args ...any) ([]models.Membership, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()
	var list []models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// ListMemberships returns every membership of the organization.
func (r *Repository) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	return r.listMemberships(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE organization_id = $1 ORDER BY created_at`, orgID)
}

// UpdateMembership writes the mutable fields of m guarded by its previous status.
func (r *Repository) UpdateMembership(ctx context.Context, m *models.Membership, from models.MembershipStatus) (bool, error) {
	const q = `UPDATE memberships
		SET role = $3, status = $4, voting_block_reason = $5, approved_at = $6, approved_by = $7, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, m.ID, from, m.Role, m.Status, m.VotingBlockReason, m.ApprovedAt, m.ApprovedBy).Scan(&m.UpdatedAt)
	if database.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update membership: %w", err)
	}
	return true, nil
}

// GetActiveMembership implements governance.MembershipRegistry.
func (r *Repository) GetActiveMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	m, err := r.FindMembership(ctx, orgID, userID)
	if err != nil || !m.IsActive() {
		return nil, err
	}
	return m, nil
}

// ListActiveMemberships implements governance.MembershipRegistry.
func (r *Repository) ListActiveMemberships(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	return r.listMemberships(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE organization_id = $1 AND status = 'ACTIVE'`, orgID)
}

// CanVote implements governance.VotingPolicy.
func (r *Repository) CanVote(ctx context.Context, orgID, userID uuid.UUID) (governance.Permission, error) {
	org, err := r.GetOrganization(ctx, orgID)
	if err != nil {
		return governance.Permission{}, err
	}
	m, err := r.FindMembership(ctx, orgID, userID)
	if err != nil {
		return governance.Permission{}, err
	}
	return Evaluate(org, m), nil
}

// QuorumPolicy implements governance.QuorumPolicySource.
func (r *Repository) QuorumPolicy(ctx context.Context, orgID uuid.UUID) (governance.QuorumPolicy, error) {
	org, err := r.GetOrganization(ctx, orgID)
	if err != nil {
		return r.defaultQuorum, err
	}
	return PolicyFor(org, r.defaultQuorum), nil
}
