package organizations

import (
	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

// Evaluate applies the organization voting rules to a user's membership.
// Active standing is checked by the engine; this only covers the
// organization's status and explicit voting blocks.
func Evaluate(org *models.Organization, m *models.Membership) governance.Permission {
	if org.Status != models.OrgStatusActive {
		return governance.Permission{Reason: "organization is not active"}
	}
	if m != nil && m.VotingBlockReason != nil {
		return governance.Permission{Reason: *m.VotingBlockReason}
	}
	return governance.Permission{Allowed: true}
}

// PolicyFor returns the organization's quorum rule, filling unset parts from def.
func PolicyFor(org *models.Organization, def governance.QuorumPolicy) governance.QuorumPolicy {
	p := def
	if org.QuorumNumerator != nil && org.QuorumDenominator != nil {
		p.Numerator, p.Denominator = *org.QuorumNumerator, *org.QuorumDenominator
	}
	if org.QuorumRounding != nil {
		p.Rounding = *org.QuorumRounding
	}
	return p
}
