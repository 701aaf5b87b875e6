package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

// The methods below complete meetings.Store and votes.Store.

func (s *Store) InsertMeeting(_ context.Context, m *models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	m.ID = uuid.New()
	m.CreatedAt, m.UpdatedAt = now, now
	s.meetings[m.ID] = *m
	return nil
}

func (s *Store) SetMeetingStatus(_ context.Context, id uuid.UUID, from, to models.MeetingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return false, governance.NotFound("meeting", id)
	}
	if m.Status != from {
		return false, nil
	}
	m.Status = to
	m.UpdatedAt = time.Now().UTC()
	s.meetings[id] = m
	return true, nil
}

func (s *Store) InsertAgendaItem(_ context.Context, item *models.AgendaItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.MeetingID == item.MeetingID && it.ItemNo == item.ItemNo {
			return governance.Errorf(governance.KindConflict, "agenda item %d already exists", item.ItemNo)
		}
	}
	item.ID = uuid.New()
	item.CreatedAt = time.Now().UTC()
	s.items[item.ID] = *item
	return nil
}

func (s *Store) InsertResolution(_ context.Context, r *models.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	if r.AgendaItemID != nil {
		it, ok := s.items[*r.AgendaItemID]
		if !ok || (r.MeetingID != nil && it.MeetingID != *r.MeetingID) {
			return governance.NotFound("agenda item", *r.AgendaItemID)
		}
		id, st := r.ID, r.Status
		it.ResolutionID = &id
		it.ResolutionStatus = &st
		s.items[it.ID] = it
	}
	s.resolutions[r.ID] = *r
	return nil
}

func (s *Store) RecordCheckIn(_ context.Context, meetingID, membershipID uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[meetingID]; !ok {
		return governance.NotFound("meeting", meetingID)
	}
	set, ok := s.checkIns[meetingID]
	if !ok {
		set = governance.NewMembershipSet()
		s.checkIns[meetingID] = set
	}
	set.Add(membershipID)
	return nil
}

// ListBallots returns the ballots of a vote in cast order.
func (s *Store) ListBallots(_ context.Context, voteID uuid.UUID) ([]models.Ballot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Ballot(nil), s.ballots[voteID]...), nil
}
