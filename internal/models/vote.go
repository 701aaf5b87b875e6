package models

import (
	"time"

	"github.com/google/uuid"
)

// VoteKind separates binding assembly votes from advisory opinion polls.
type VoteKind string

const (
	VoteKindGA      VoteKind = "GA"
	VoteKindOpinion VoteKind = "OPINION"
)

// Valid reports whether k is a known vote kind.
func (k VoteKind) Valid() bool {
	return k == VoteKindGA || k == VoteKindOpinion
}

// VoteStatus is the state of a vote. The only transition is OPEN -> CLOSED.
type VoteStatus string

const (
	VoteOpen   VoteStatus = "OPEN"
	VoteClosed VoteStatus = "CLOSED"
)

// Valid reports whether s is a known vote status.
func (s VoteStatus) Valid() bool {
	return s == VoteOpen || s == VoteClosed
}

// CanTransitionTo reports whether s may move to next.
func (s VoteStatus) CanTransitionTo(next VoteStatus) bool {
	switch s {
	case VoteOpen:
		return next == VoteClosed
	case VoteClosed:
		return false
	}
	return false
}

// Vote is one ballot event for exactly one resolution.
type Vote struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ResolutionID   uuid.UUID  `json:"resolution_id"`
	Kind           VoteKind   `json:"kind"`
	MeetingID      *uuid.UUID `json:"meeting_id,omitempty"`
	Status         VoteStatus `json:"status"`
	OpensAt        time.Time  `json:"opens_at"`
	ClosesAt       *time.Time `json:"closes_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AcceptsBallotsAt reports whether the voting window contains t.
func (v *Vote) AcceptsBallotsAt(t time.Time) bool {
	if t.Before(v.OpensAt) {
		return false
	}
	return v.ClosesAt == nil || t.Before(*v.ClosesAt)
}

// Choice is a ballot's selection.
type Choice string

const (
	ChoiceFor     Choice = "FOR"
	ChoiceAgainst Choice = "AGAINST"
	ChoiceAbstain Choice = "ABSTAIN"
)

// Valid reports whether c is a known choice.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceFor, ChoiceAgainst, ChoiceAbstain:
		return true
	}
	return false
}

// Channel is how a ballot reached the vote.
type Channel string

const (
	ChannelInPerson Channel = "IN_PERSON"
	ChannelWritten  Channel = "WRITTEN"
	ChannelRemote   Channel = "REMOTE"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelInPerson, ChannelWritten, ChannelRemote:
		return true
	}
	return false
}

// IsRemote reports whether the channel counts the voter as a remote participant.
func (c Channel) IsRemote() bool {
	switch c {
	case ChannelWritten, ChannelRemote:
		return true
	case ChannelInPerson:
		return false
	}
	return false
}

// Ballot is one membership's choice in one vote.
type Ballot struct {
	ID           uuid.UUID `json:"id"`
	VoteID       uuid.UUID `json:"vote_id"`
	MembershipID uuid.UUID `json:"membership_id"`
	Choice       Choice    `json:"choice"`
	Channel      Channel   `json:"channel"`
	CastAt       time.Time `json:"cast_at"`
}

// Tally counts ballots per choice.
type Tally struct {
	For     int `json:"votes_for"`
	Against int `json:"votes_against"`
	Abstain int `json:"votes_abstain"`
}

// Add counts one ballot choice.
func (t *Tally) Add(c Choice) {
	switch c {
	case ChoiceFor:
		t.For++
	case ChoiceAgainst:
		t.Against++
	case ChoiceAbstain:
		t.Abstain++
	}
}

// Outcome applies simple majority: FOR must strictly exceed AGAINST.
// Abstentions and ties do not carry a resolution.
func (t Tally) Outcome() ResolutionStatus {
	if t.For > t.Against {
		return ResolutionApproved
	}
	return ResolutionRejected
}
