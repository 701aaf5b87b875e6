// Package meetings manages meetings, their agenda, resolutions and
// attendance, and exposes the engine's meeting-level operations over HTTP.
package meetings

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

// Store persists meetings and everything hanging off them.
type Store interface {
	governance.MeetingStore
	governance.AttendanceSource

	InsertMeeting(ctx context.Context, m *models.Meeting) error
	// SetMeetingStatus moves the meeting from one status to another and
	// reports whether the stored status still was from.
	SetMeetingStatus(ctx context.Context, id uuid.UUID, from, to models.MeetingStatus) (bool, error)
	// InsertAgendaItem fails with governance.ErrConflict on a taken item_no.
	InsertAgendaItem(ctx context.Context, item *models.AgendaItem) error
	// InsertResolution stores r and links it to r.AgendaItemID when set.
	InsertResolution(ctx context.Context, r *models.Resolution) error
	// RecordCheckIn marks a membership as attending live. Repeats are no-ops.
	RecordCheckIn(ctx context.Context, meetingID, membershipID uuid.UUID, at time.Time) error
}

// Authorizer checks a user's standing in an organization.
type Authorizer interface {
	Authorize(ctx context.Context, orgID, userID uuid.UUID, roles ...models.MembershipRole) (*models.Membership, error)
	// MembershipInOrg returns the membership when it belongs to orgID.
	MembershipInOrg(ctx context.Context, orgID, membershipID uuid.UUID) (*models.Membership, error)
}
