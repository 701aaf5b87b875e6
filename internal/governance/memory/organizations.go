package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

// The methods below implement organizations.Store.

func (s *Store) CreateOrganization(_ context.Context, org *models.Organization, owner *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orgs {
		if o.Slug == org.Slug {
			return governance.Errorf(governance.KindConflict, "an organization with slug %q already exists", org.Slug)
		}
	}
	now := time.Now().UTC()
	org.ID = uuid.New()
	org.CreatedAt, org.UpdatedAt = now, now
	s.orgs[org.ID] = *org

	owner.OrganizationID = org.ID
	s.insertMembership(owner, now)
	return nil
}

func (s *Store) GetOrganization(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, governance.NotFound("organization", id)
	}
	return &o, nil
}

func (s *Store) GetOrganizationBySlug(_ context.Context, slug string) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orgs {
		if o.Slug == slug {
			return &o, nil
		}
	}
	return nil, governance.Errorf(governance.KindNotFound, "organization %q not found", slug)
}

func (s *Store) ListOrganizationsForUser(_ context.Context, userID uuid.UUID) ([]models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Organization
	for _, m := range s.memberships {
		if m.UserID == userID && m.Status != models.MembershipLeft {
			if o, ok := s.orgs[m.OrganizationID]; ok {
				out = append(out, o)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateMembership(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findMembership(m.OrganizationID, m.UserID) != nil {
		return governance.Errorf(governance.KindConflict, "user %s already has a membership", m.UserID)
	}
	s.insertMembership(m, time.Now().UTC())
	return nil
}

func (s *Store) insertMembership(m *models.Membership, now time.Time) {
	m.ID = uuid.New()
	m.CreatedAt, m.UpdatedAt = now, now
	s.memberships[m.ID] = *m
}

func (s *Store) GetMembership(_ context.Context, id uuid.UUID) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok {
		return nil, governance.NotFound("membership", id)
	}
	return &m, nil
}

func (s *Store) FindMembership(_ context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findMembership(orgID, userID), nil
}

func (s *Store) findMembership(orgID, userID uuid.UUID) *models.Membership {
	for _, m := range s.memberships {
		if m.OrganizationID == orgID && m.UserID == userID {
			return &m
		}
	}
	return nil
}

func (s *Store) ListMemberships(_ context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Membership
	for _, m := range s.memberships {
		if m.OrganizationID == orgID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateMembership(_ context.Context, m *models.Membership, from models.MembershipStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.memberships[m.ID]
	if !ok {
		return false, governance.NotFound("membership", m.ID)
	}
	if cur.Status != from {
		return false, nil
	}
	m.UpdatedAt = time.Now().UTC()
	s.memberships[m.ID] = *m
	return true, nil
}
