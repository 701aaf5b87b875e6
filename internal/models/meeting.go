package models

import (
	"time"

	"github.com/google/uuid"
)

// MeetingType distinguishes general assemblies from board sessions.
type MeetingType string

const (
	MeetingGA              MeetingType = "GA"
	MeetingGAExtraordinary MeetingType = "GA_EXTRAORDINARY"
	MeetingBoard           MeetingType = "BOARD"
)

// Valid reports whether t is a known meeting type.
func (t MeetingType) Valid() bool {
	switch t {
	case MeetingGA, MeetingGAExtraordinary, MeetingBoard:
		return true
	}
	return false
}

// RequiresProceduralSequence reports whether substantive votes in a meeting
// of this type are gated behind the procedural items.
func (t MeetingType) RequiresProceduralSequence() bool {
	switch t {
	case MeetingGA, MeetingGAExtraordinary:
		return true
	case MeetingBoard:
		return false
	}
	return false
}

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingDraft     MeetingStatus = "DRAFT"
	MeetingPublished MeetingStatus = "PUBLISHED"
	MeetingCompleted MeetingStatus = "COMPLETED"
	MeetingCancelled MeetingStatus = "CANCELLED"
)

// Valid reports whether s is a known meeting status.
func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingDraft, MeetingPublished, MeetingCompleted, MeetingCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next. COMPLETED is reached
// only through the completion command.
func (s MeetingStatus) CanTransitionTo(next MeetingStatus) bool {
	switch s {
	case MeetingDraft:
		return next == MeetingPublished || next == MeetingCancelled
	case MeetingPublished:
		return next == MeetingCompleted || next == MeetingCancelled
	}
	return false
}

// Editable reports whether agenda and votes of a meeting in s may change.
func (s MeetingStatus) Editable() bool {
	return s == MeetingDraft || s == MeetingPublished
}

// GAMode is the process-wide operating mode for completion validation.
type GAMode string

const (
	GAModeTest       GAMode = "TEST"
	GAModeProduction GAMode = "PRODUCTION"
)

// Valid reports whether m is a known GA mode.
func (m GAMode) Valid() bool {
	return m == GAModeTest || m == GAModeProduction
}

// Meeting is a scheduled governance session.
type Meeting struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	Type           MeetingType   `json:"type"`
	Status         MeetingStatus `json:"status"`
	Title          string        `json:"title"`
	ScheduledAt    time.Time     `json:"scheduled_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ProceduralItemCount is the conventional number of leading procedural items.
const ProceduralItemCount = 3

// ResolutionStatus is the state of a resolution (and of its agenda item).
type ResolutionStatus string

const (
	ResolutionDraft    ResolutionStatus = "DRAFT"
	ResolutionProposed ResolutionStatus = "PROPOSED"
	ResolutionApproved ResolutionStatus = "APPROVED"
	ResolutionRejected ResolutionStatus = "REJECTED"
)

// Valid reports whether s is a known resolution status.
func (s ResolutionStatus) Valid() bool {
	switch s {
	case ResolutionDraft, ResolutionProposed, ResolutionApproved, ResolutionRejected:
		return true
	}
	return false
}

// AgendaItem is one deliberation point of a meeting.
type AgendaItem struct {
	ID               uuid.UUID         `json:"id"`
	MeetingID        uuid.UUID         `json:"meeting_id"`
	ItemNo           int               `json:"item_no"`
	Title            string            `json:"title"`
	IsProcedural     bool              `json:"is_procedural"`
	ResolutionID     *uuid.UUID        `json:"resolution_id,omitempty"`
	ResolutionStatus *ResolutionStatus `json:"resolution_status,omitempty"`
	VoteID           *uuid.UUID        `json:"vote_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Approved reports whether the item's resolution was adopted.
func (a AgendaItem) Approved() bool {
	return a.ResolutionStatus != nil && *a.ResolutionStatus == ResolutionApproved
}

// Resolution is the motion a vote decides. AgendaItemID is nil for opinion
// polls held outside meetings.
type Resolution struct {
	ID             uuid.UUID        `json:"id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	MeetingID      *uuid.UUID       `json:"meeting_id,omitempty"`
	AgendaItemID   *uuid.UUID       `json:"agenda_item_id,omitempty"`
	Title          string           `json:"title"`
	Status         ResolutionStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
}
