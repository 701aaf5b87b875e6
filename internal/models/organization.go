package models

import (
	"time"

	"github.com/google/uuid"
)

// OrganizationStatus is the lifecycle state of a tenant.
type OrganizationStatus string

const (
	OrgStatusOnboarding OrganizationStatus = "ONBOARDING"
	OrgStatusActive     OrganizationStatus = "ACTIVE"
	OrgStatusSuspended  OrganizationStatus = "SUSPENDED"
)

// Valid reports whether s is a known organization status.
func (s OrganizationStatus) Valid() bool {
	switch s {
	case OrgStatusOnboarding, OrgStatusActive, OrgStatusSuspended:
		return true
	}
	return false
}

// QuorumRounding selects how a fractional quorum is rounded to a head count.
type QuorumRounding string

const (
	RoundCeil  QuorumRounding = "CEIL"
	RoundFloor QuorumRounding = "FLOOR"
)

// Valid reports whether r is a known rounding rule.
func (r QuorumRounding) Valid() bool {
	return r == RoundCeil || r == RoundFloor
}

// Organization represents a tenant (membership body).
type Organization struct {
	ID                uuid.UUID          `json:"id"`
	Name              string             `json:"name"`
	Slug              string             `json:"slug"`
	Status            OrganizationStatus `json:"status"`
	QuorumNumerator   *int               `json:"quorum_numerator,omitempty"`
	QuorumDenominator *int               `json:"quorum_denominator,omitempty"`
	QuorumRounding    *QuorumRounding    `json:"quorum_rounding,omitempty"`
	EarlyVotingDays   *int               `json:"early_voting_days,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}
