// Package votes opens, casts and closes votes over HTTP. The Postgres
// repository implements the engine's transactional vote port.
package votes

import (
	"context"

	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/models"
)

// Store reads votes and their ballots.
type Store interface {
	GetVote(ctx context.Context, id uuid.UUID) (*models.Vote, error)
	ListVotesByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Vote, error)
	ListBallots(ctx context.Context, voteID uuid.UUID) ([]models.Ballot, error)
}

// Catalog resolves the meeting and resolution a vote is about.
type Catalog interface {
	GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	GetResolution(ctx context.Context, id uuid.UUID) (*models.Resolution, error)
}

// Organizations looks up per-organization settings such as early voting.
type Organizations interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// Authorizer checks a user's standing in an organization.
type Authorizer interface {
	Authorize(ctx context.Context, orgID, userID uuid.UUID, roles ...models.MembershipRole) (*models.Membership, error)
}

// AttendanceInvalidator drops cached quorum state after a ballot.
type AttendanceInvalidator interface {
	Invalidate(ctx context.Context, meetingID uuid.UUID)
}
