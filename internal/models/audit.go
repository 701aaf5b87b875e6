package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType names a governance state transition.
type AuditEventType string

const (
	AuditVoteOpened               AuditEventType = "VOTE_OPENED"
	AuditBallotCast               AuditEventType = "BALLOT_CAST"
	AuditVoteClosed               AuditEventType = "VOTE_CLOSED"
	AuditVoteOutcomeApplied       AuditEventType = "VOTE_OUTCOME_APPLIED"
	AuditMeetingCompleted         AuditEventType = "MEETING_COMPLETED"
	AuditMeetingStatusChanged     AuditEventType = "MEETING_STATUS_CHANGED"
	AuditMembershipApproved       AuditEventType = "MEMBERSHIP_APPROVED"
	AuditMembershipStatusChanged  AuditEventType = "MEMBERSHIP_STATUS_CHANGED"
	AuditMembershipVotingBlockSet AuditEventType = "MEMBERSHIP_VOTING_BLOCK_SET"
)

// AuditEvent is a structured record of one state transition.
type AuditEvent struct {
	ID             uuid.UUID              `json:"id"`
	Type           AuditEventType         `json:"type"`
	OrganizationID uuid.UUID              `json:"organization_id"`
	EntityType     string                 `json:"entity_type"`
	EntityID       uuid.UUID              `json:"entity_id"`
	ActorUserID    *uuid.UUID             `json:"actor_user_id,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
}
