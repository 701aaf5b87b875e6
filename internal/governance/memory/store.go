// Package memory is an in-process implementation of the governance ports.
// A single mutex serializes transactions; failed transactions are rolled
// back through an undo log.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/internal/organizations"
)

// Store holds every governance entity in maps.
type Store struct {
	mu          sync.Mutex
	orgs        map[uuid.UUID]models.Organization
	memberships map[uuid.UUID]models.Membership
	meetings    map[uuid.UUID]models.Meeting
	items       map[uuid.UUID]models.AgendaItem
	resolutions map[uuid.UUID]models.Resolution
	votes       map[uuid.UUID]models.Vote
	ballots     map[uuid.UUID][]models.Ballot
	checkIns    map[uuid.UUID]governance.MembershipSet
	signed      map[uuid.UUID]bool

	defaultQuorum governance.QuorumPolicy
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		orgs:        make(map[uuid.UUID]models.Organization),
		memberships: make(map[uuid.UUID]models.Membership),
		meetings:    make(map[uuid.UUID]models.Meeting),
		items:       make(map[uuid.UUID]models.AgendaItem),
		resolutions: make(map[uuid.UUID]models.Resolution),
		votes:       make(map[uuid.UUID]models.Vote),
		ballots:     make(map[uuid.UUID][]models.Ballot),
		checkIns:    make(map[uuid.UUID]governance.MembershipSet),
		signed:      make(map[uuid.UUID]bool),

		defaultQuorum: governance.DefaultQuorumPolicy(),
	}
}

// SetDefaultQuorum sets the rule for organizations without their own.
func (s *Store) SetDefaultQuorum(p governance.QuorumPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultQuorum = p
}

// AddOrganization stores org, assigning an ID when empty.
func (s *Store) AddOrganization(org models.Organization) models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if org.Status == "" {
		org.Status = models.OrgStatusActive
	}
	s.orgs[org.ID] = org
	return org
}

// AddMembership stores m, assigning IDs when empty.
func (s *Store) AddMembership(m models.Membership) models.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.UserID == uuid.Nil {
		m.UserID = uuid.New()
	}
	if m.Role == "" {
		m.Role = models.MemberRoleMember
	}
	s.memberships[m.ID] = m
	return m
}

// AddMeeting stores m, assigning an ID when empty.
func (s *Store) AddMeeting(m models.Meeting) models.Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.meetings[m.ID] = m
	return m
}

// AddAgendaItem stores an item together with its resolution, linking both.
func (s *Store) AddAgendaItem(item models.AgendaItem, orgID uuid.UUID) (models.AgendaItem, models.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	meetingID := item.MeetingID
	itemID := item.ID
	res := models.Resolution{
		ID:             uuid.New(),
		OrganizationID: orgID,
		MeetingID:      &meetingID,
		AgendaItemID:   &itemID,
		Title:          item.Title,
		Status:         models.ResolutionProposed,
	}
	if item.ResolutionStatus != nil {
		res.Status = *item.ResolutionStatus
	}
	item.ResolutionID = &res.ID
	s.items[item.ID] = item
	s.resolutions[res.ID] = res
	return item, res
}

// AddResolution stores a free-standing resolution.
func (s *Store) AddResolution(r models.Resolution) models.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = models.ResolutionProposed
	}
	s.resolutions[r.ID] = r
	return r
}

// CheckIn marks a membership physically present at a meeting.
func (s *Store) CheckIn(meetingID, membershipID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.checkIns[meetingID]
	if !ok {
		set = governance.NewMembershipSet()
		s.checkIns[meetingID] = set
	}
	set.Add(membershipID)
}

// SetProtocolSigned records the signed-protocol flag of a meeting.
func (s *Store) SetProtocolSigned(meetingID uuid.UUID, signed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signed[meetingID] = signed
}

// Ballots returns the ballots of a vote.
func (s *Store) Ballots(voteID uuid.UUID) []models.Ballot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Ballot(nil), s.ballots[voteID]...)
}

// GetMeeting implements governance.MeetingStore.
func (s *Store) GetMeeting(_ context.Context, id uuid.UUID) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, governance.NotFound("meeting", id)
	}
	return &m, nil
}

// ListAgendaItems implements governance.MeetingStore.
func (s *Store) ListAgendaItems(_ context.Context, meetingID uuid.UUID) ([]models.AgendaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AgendaItem
	for _, it := range s.items {
		if it.MeetingID == meetingID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemNo < out[j].ItemNo })
	return out, nil
}

// GetAgendaItem implements governance.MeetingStore.
func (s *Store) GetAgendaItem(_ context.Context, id uuid.UUID) (*models.AgendaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, governance.NotFound("agenda item", id)
	}
	return &it, nil
}

// GetResolution implements governance.MeetingStore.
func (s *Store) GetResolution(_ context.Context, id uuid.UUID) (*models.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resolutions[id]
	if !ok {
		return nil, governance.NotFound("resolution", id)
	}
	return &r, nil
}

// MarkMeetingCompleted implements governance.MeetingStore.
func (s *Store) MarkMeetingCompleted(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return false, governance.NotFound("meeting", id)
	}
	if m.Status != models.MeetingPublished {
		return false, nil
	}
	m.Status = models.MeetingCompleted
	m.CompletedAt = &at
	s.meetings[id] = m
	return true, nil
}

// GetVote implements governance.VoteStore.
func (s *Store) GetVote(_ context.Context, id uuid.UUID) (*models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[id]
	if !ok {
		return nil, governance.NotFound("vote", id)
	}
	return &v, nil
}

// ListVotesByMeeting implements governance.VoteStore.
func (s *Store) ListVotesByMeeting(_ context.Context, meetingID uuid.UUID) ([]models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Vote
	for _, v := range s.votes {
		if v.MeetingID != nil && *v.MeetingID == meetingID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// InTx implements governance.VoteStore. fn runs under the store lock and its
// writes are undone if it returns an error.
func (s *Store) InTx(ctx context.Context, fn func(tx governance.VoteTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// GetActiveMembership implements governance.MembershipRegistry.
func (s *Store) GetActiveMembership(_ context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.OrganizationID == orgID && m.UserID == userID && m.Status == models.MembershipActive {
			return &m, nil
		}
	}
	return nil, nil
}

// ListActiveMemberships implements governance.MembershipRegistry.
func (s *Store) ListActiveMemberships(_ context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Membership
	for _, m := range s.memberships {
		if m.OrganizationID == orgID && m.Status == models.MembershipActive {
			out = append(out, m)
		}
	}
	return out, nil
}

// CanVote implements governance.VotingPolicy.
func (s *Store) CanVote(_ context.Context, orgID, userID uuid.UUID) (governance.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return governance.Permission{}, governance.NotFound("organization", orgID)
	}
	return organizations.Evaluate(&org, s.findMembership(orgID, userID)), nil
}

// QuorumPolicy implements governance.QuorumPolicySource.
func (s *Store) QuorumPolicy(_ context.Context, orgID uuid.UUID) (governance.QuorumPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return s.defaultQuorum, nil
	}
	return organizations.PolicyFor(&org, s.defaultQuorum), nil
}

// GetAttendance implements governance.AttendanceSource: REMOTE and WRITTEN
// ballots make remote voters; IN_PERSON ballots and check-ins make live attendees.
func (s *Store) GetAttendance(_ context.Context, meetingID uuid.UUID) (governance.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	att := governance.Attendance{
		RemoteVoterMembershipIDs:  governance.NewMembershipSet(),
		LiveAttendeeMembershipIDs: governance.NewMembershipSet(),
	}
	for id := range s.checkIns[meetingID] {
		att.LiveAttendeeMembershipIDs.Add(id)
	}
	for _, v := range s.votes {
		if v.MeetingID == nil || *v.MeetingID != meetingID {
			continue
		}
		for _, b := range s.ballots[v.ID] {
			if b.Channel.IsRemote() {
				att.RemoteVoterMembershipIDs.Add(b.MembershipID)
			} else {
				att.LiveAttendeeMembershipIDs.Add(b.MembershipID)
			}
		}
	}
	return att, nil
}

// IsProtocolSigned implements governance.ProtocolSource.
func (s *Store) IsProtocolSigned(_ context.Context, meetingID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signed[meetingID], nil
}

type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) HasOpenVote(_ context.Context, resolutionID uuid.UUID) (bool, error) {
	for _, v := range t.s.votes {
		if v.ResolutionID == resolutionID && v.Status == models.VoteOpen {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertVote(ctx context.Context, v *models.Vote) error {
	open, _ := t.HasOpenVote(ctx, v.ResolutionID)
	if open {
		return governance.ErrVoteAlreadyOpen
	}
	id := v.ID
	t.s.votes[id] = *v
	t.undo = append(t.undo, func() { delete(t.s.votes, id) })
	return nil
}

func (t *memTx) LinkAgendaItemVote(_ context.Context, agendaItemID, voteID uuid.UUID) error {
	it, ok := t.s.items[agendaItemID]
	if !ok {
		return governance.NotFound("agenda item", agendaItemID)
	}
	prev := it
	it.VoteID = &voteID
	t.s.items[agendaItemID] = it
	t.undo = append(t.undo, func() { t.s.items[agendaItemID] = prev })
	return nil
}

func (t *memTx) LockVote(_ context.Context, id uuid.UUID) (*models.Vote, error) {
	v, ok := t.s.votes[id]
	if !ok {
		return nil, governance.NotFound("vote", id)
	}
	return &v, nil
}

func (t *memTx) InsertBallot(_ context.Context, b *models.Ballot) error {
	for _, existing := range t.s.ballots[b.VoteID] {
		if existing.MembershipID == b.MembershipID {
			return governance.ErrAlreadyVoted
		}
	}
	voteID := b.VoteID
	prev := t.s.ballots[voteID]
	t.s.ballots[voteID] = append(append([]models.Ballot(nil), prev...), *b)
	t.undo = append(t.undo, func() { t.s.ballots[voteID] = prev })
	return nil
}

func (t *memTx) CloseVote(_ context.Context, id uuid.UUID, at time.Time) (*models.Vote, bool, error) {
	v, ok := t.s.votes[id]
	if !ok {
		return nil, false, governance.NotFound("vote", id)
	}
	if v.Status != models.VoteOpen {
		return &v, false, nil
	}
	prev := v
	v.Status = models.VoteClosed
	if v.ClosesAt == nil {
		v.ClosesAt = &at
	}
	t.s.votes[id] = v
	t.undo = append(t.undo, func() { t.s.votes[id] = prev })
	return &v, true, nil
}

func (t *memTx) TallyBallots(_ context.Context, voteID uuid.UUID) (models.Tally, error) {
	var tally models.Tally
	for _, b := range t.s.ballots[voteID] {
		tally.Add(b.Choice)
	}
	return tally, nil
}

func (t *memTx) ApplyOutcome(_ context.Context, resolutionID uuid.UUID, status models.ResolutionStatus) error {
	r, ok := t.s.resolutions[resolutionID]
	if !ok {
		return governance.NotFound("resolution", resolutionID)
	}
	prevRes := r
	r.Status = status
	t.s.resolutions[resolutionID] = r
	t.undo = append(t.undo, func() { t.s.resolutions[resolutionID] = prevRes })
	for id, it := range t.s.items {
		if it.ResolutionID == nil || *it.ResolutionID != resolutionID {
			continue
		}
		prevItem, itemID := it, id
		st := status
		it.ResolutionStatus = &st
		t.s.items[id] = it
		t.undo = append(t.undo, func() { t.s.items[itemID] = prevItem })
	}
	return nil
}
