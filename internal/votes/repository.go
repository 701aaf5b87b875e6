package votes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/database"
)

const (
	constraintOpenVote    = "uq_votes_open_resolution"
	constraintBallotVoter = "ballots_vote_id_membership_id_key"
)

const voteColumns = `id, organization_id, resolution_id, kind, meeting_id, status, opens_at, closes_at, created_at`

// Repository is the Postgres governance.VoteStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a votes repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanVote(row pgx.Row) (*models.Vote, error) {
	var v models.Vote
	if err := row.Scan(&v.ID, &v.OrganizationID, &v.ResolutionID, &v.Kind, &v.MeetingID, &v.Status, &v.OpensAt, &v.ClosesAt, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVote returns a vote by ID.
func (r *Repository) GetVote(ctx context.Context, id uuid.UUID) (*models.Vote, error) {
	v, err := scanVote(r.pool.QueryRow(ctx, `SELECT `+voteColumns+` FROM votes WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, governance.NotFound("vote", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return v, nil
}

// ListVotesByMeeting returns the meeting's votes, oldest first.
func (r *Repository) ListVotesByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Vote, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+voteColumns+` FROM votes WHERE meeting_id = $1 ORDER BY created_at, id`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()
	var list []models.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// ListBallots returns the ballots of a vote in cast order.
func (r *Repository) ListBallots(ctx context.Context, voteID uuid.UUID) ([]models.Ballot, error) {
	const q = `SELECT id, vote_id, membership_id, choice, channel, cast_at
		FROM ballots WHERE vote_id = $1 ORDER BY cast_at, id`
	rows, err := r.pool.Query(ctx, q, voteID)
	if err != nil {
		return nil, fmt.Errorf("list ballots: %w", err)
	}
	defer rows.Close()
	var list []models.Ballot
	for rows.Next() {
		var b models.Ballot
		if err := rows.Scan(&b.ID, &b.VoteID, &b.MembershipID, &b.Choice, &b.Channel, &b.CastAt); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// InTx runs fn in a read-committed transaction, committing when fn returns nil.
func (r *Repository) InTx(ctx context.Context, fn func(tx governance.VoteTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&voteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type voteTx struct {
	tx pgx.Tx
}

func (t *voteTx) HasOpenVote(ctx context.Context, resolutionID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM votes WHERE resolution_id = $1 AND status = 'OPEN')`, resolutionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open vote: %w", err)
	}
	return exists, nil
}

func (t *voteTx) InsertVote(ctx context.Context, v *models.Vote) error {
	const q = `INSERT INTO votes (id, organization_id, resolution_id, kind, meeting_id, status, opens_at, closes_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err := t.tx.QueryRow(ctx, q, v.ID, v.OrganizationID, v.ResolutionID, v.Kind, v.MeetingID, v.Status, v.OpensAt, v.ClosesAt).Scan(&v.CreatedAt)
	if database.IsUniqueViolation(err, constraintOpenVote) {
		return governance.ErrVoteAlreadyOpen
	}
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (t *voteTx) LinkAgendaItemVote(ctx context.Context, agendaItemID, voteID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `UPDATE agenda_items SET vote_id = $2 WHERE id = $1`, agendaItemID, voteID)
	if err != nil {
		return fmt.Errorf("link agenda item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return governance.NotFound("agenda item", agendaItemID)
	}
	return nil
}

func (t *voteTx) LockVote(ctx context.Context, id uuid.UUID) (*models.Vote, error) {
	v, err := scanVote(t.tx.QueryRow(ctx, `SELECT `+voteColumns+` FROM votes WHERE id = $1 FOR UPDATE`, id))
	if database.IsNoRows(err) {
		return nil, governance.NotFound("vote", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock vote: %w", err)
	}
	return v, nil
}

func (t *voteTx) InsertBallot(ctx context.Context, b *models.Ballot) error {
	const q = `INSERT INTO ballots (id, vote_id, membership_id, choice, channel, cast_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := t.tx.Exec(ctx, q, b.ID, b.VoteID, b.MembershipID, b.Choice, b.Channel, b.CastAt)
	if database.IsUniqueViolation(err, constraintBallotVoter) {
		return governance.ErrAlreadyVoted
	}
	if err != nil {
		return fmt.Errorf("insert ballot: %w", err)
	}
	return nil
}

func (t *voteTx) CloseVote(ctx context.Context, id uuid.UUID, at time.Time) (*models.Vote, bool, error) {
	const q = `UPDATE votes SET status = 'CLOSED', closes_at = COALESCE(closes_at, $2)
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + voteColumns
	v, err := scanVote(t.tx.QueryRow(ctx, q, id, at))
	if err == nil {
		return v, true, nil
	}
	if !database.IsNoRows(err) {
		return nil, false, fmt.Errorf("close vote: %w", err)
	}
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM votes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, false, fmt.Errorf("check vote: %w", err)
	}
	if !exists {
		return nil, false, governance.NotFound("vote", id)
	}
	return nil, false, nil
}

func (t *voteTx) TallyBallots(ctx context.Context, voteID uuid.UUID) (models.Tally, error) {
	var tally models.Tally
	rows, err := t.tx.Query(ctx, `SELECT choice, COUNT(*) FROM ballots WHERE vote_id = $1 GROUP BY choice`, voteID)
	if err != nil {
		return tally, fmt.Errorf("tally ballots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var choice models.Choice
		var n int
		if err := rows.Scan(&choice, &n); err != nil {
			return tally, err
		}
		switch choice {
		case models.ChoiceFor:
			tally.For += n
		case models.ChoiceAgainst:
			tally.Against += n
		case models.ChoiceAbstain:
			tally.Abstain += n
		}
	}
	return tally, rows.Err()
}

// ApplyOutcome writes the resolution status. Agenda items read their status
// through resolution_id, so every linked item follows.
func (t *voteTx) ApplyOutcome(ctx context.Context, resolutionID uuid.UUID, status models.ResolutionStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE resolutions SET status = $2 WHERE id = $1`, resolutionID, status)
	if err != nil {
		return fmt.Errorf("apply outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return governance.NotFound("resolution", resolutionID)
	}
	return nil
}
