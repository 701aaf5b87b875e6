// Package organizations manages organizations, their members and the voting
// policy derived from membership state.
package organizations

import (
	"context"

	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/models"
)

// Store persists organizations and memberships. Absent rows yield errors
// matching governance.ErrNotFound; duplicates yield governance.ErrConflict.
type Store interface {
	// CreateOrganization stores org together with its founding owner membership.
	CreateOrganization(ctx context.Context, org *models.Organization, owner *models.Membership) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)
	ListOrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error)

	CreateMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	// FindMembership returns the user's membership in any status, or nil, nil.
	FindMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error)
	ListMemberships(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error)
	// UpdateMembership writes m if its stored status is still from and
	// reports whether the write happened.
	UpdateMembership(ctx context.Context, m *models.Membership, from models.MembershipStatus) (bool, error)
}
