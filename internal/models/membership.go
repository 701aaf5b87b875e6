package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MembershipRole is a member's standing role in an organization.
type MembershipRole string

const (
	MemberRoleOwner  MembershipRole = "OWNER"
	MemberRoleBoard  MembershipRole = "BOARD"
	MemberRoleMember MembershipRole = "MEMBER"
)

// Valid reports whether r is a known membership role.
func (r MembershipRole) Valid() bool {
	switch r {
	case MemberRoleOwner, MemberRoleBoard, MemberRoleMember:
		return true
	}
	return false
}

// BoardEligible reports whether the role counts toward board quorum.
func (r MembershipRole) BoardEligible() bool {
	return r == MemberRoleOwner || r == MemberRoleBoard
}

// MembershipStatus is the lifecycle state of a membership.
type MembershipStatus string

const (
	MembershipPending   MembershipStatus = "PENDING"
	MembershipActive    MembershipStatus = "ACTIVE"
	MembershipSuspended MembershipStatus = "SUSPENDED"
	MembershipLeft      MembershipStatus = "LEFT"
)

// membershipTransitions lists every allowed status change. PENDING only
// becomes ACTIVE through an explicit approval; there is no time-based edge.
var membershipTransitions = map[MembershipStatus][]MembershipStatus{
	MembershipPending:   {MembershipActive, MembershipLeft},
	MembershipActive:    {MembershipSuspended, MembershipLeft},
	MembershipSuspended: {MembershipActive, MembershipLeft},
	MembershipLeft:      nil,
}

// Valid reports whether s is a known membership status.
func (s MembershipStatus) Valid() bool {
	_, ok := membershipTransitions[s]
	return ok
}

// CanTransitionTo reports whether s may move to next.
func (s MembershipStatus) CanTransitionTo(next MembershipStatus) bool {
	for _, allowed := range membershipTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Membership is a user's standing in an organization.
type Membership struct {
	ID                uuid.UUID        `json:"id"`
	OrganizationID    uuid.UUID        `json:"organization_id"`
	UserID            uuid.UUID        `json:"user_id"`
	Role              MembershipRole   `json:"role"`
	Status            MembershipStatus `json:"status"`
	ConsentDeadline   *time.Time       `json:"consent_deadline,omitempty"`
	VotingBlockReason *string          `json:"voting_block_reason,omitempty"`
	ApprovedAt        *time.Time       `json:"approved_at,omitempty"`
	ApprovedBy        *uuid.UUID       `json:"approved_by,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// IsActive reports whether the membership may vote and count toward quorum.
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == MembershipActive
}

// Approve moves a PENDING membership to ACTIVE. The consent deadline plays
// no part: an elapsed window leaves the membership PENDING until this call.
func (m *Membership) Approve(approver uuid.UUID, at time.Time) error {
	if !m.Status.CanTransitionTo(MembershipActive) || m.Status != MembershipPending {
		return fmt.Errorf("membership %s cannot be approved from status %s", m.ID, m.Status)
	}
	m.Status = MembershipActive
	m.ApprovedAt = &at
	m.ApprovedBy = &approver
	m.UpdatedAt = at
	return nil
}
