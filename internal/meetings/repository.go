package meetings

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

const meetingColumns = `id, organization_id, type, status, title, scheduled_at, completed_at, created_at, updated_at`

const agendaColumns = `a.id, a.meeting_id, a.item_no, a.title, a.is_procedural, a.resolution_id, r.status, a.vote_id, a.created_at`

const resolutionColumns = `id, organization_id, meeting_id, agenda_item_id, title, status, created_at`

// Repository is the Postgres meeting store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meetings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	if err := row.Scan(&m.ID, &m.OrganizationID, &m.Type, &m.Status, &m.Title, &m.ScheduledAt, &m.CompletedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanAgendaItem(row pgx.Row) (*models.AgendaItem, error) {
	var a models.AgendaItem
	if err := row.Scan(&a.ID, &a.MeetingID, &a.ItemNo, &a.Title, &a.IsProcedural, &a.ResolutionID, &a.ResolutionStatus, &a.VoteID, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertMeeting stores a new meeting.
func (r *Repository) InsertMeeting(ctx context.Context, m *models.Meeting) error {
	const q = `INSERT INTO meetings (organization_id, type, status, title, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, q, m.OrganizationID, m.Type, m.Status, m.Title, m.ScheduledAt).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

// GetMeeting implements governance.MeetingStore.
func (r *Repository) GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	m, err := scanMeeting(r.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, governance.NotFound("meeting", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return m, nil
}

// SetMeetingStatus performs a guarded status change.
func (r *Repository) SetMeetingStatus(ctx context.Context, id uuid.UUID, from, to models.MeetingStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE meetings SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("set meeting status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkMeetingCompleted implements governance.MeetingStore.
func (r *Repository) MarkMeetingCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const q = `UPDATE meetings SET status = 'COMPLETED', completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PUBLISHED'`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, fmt.Errorf("complete meeting: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertAgendaItem stores a new agenda item.
func (r *Repository) InsertAgendaItem(ctx context.Context, item *models.AgendaItem) error {
	const q = `INSERT INTO agenda_items (meeting_id, item_no, title, is_procedural)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, item.MeetingID, item.ItemNo, item.Title, item.IsProcedural).Scan(&item.ID, &item.CreatedAt)
	if database.IsUniqueViolation(err) {
		return governance.Errorf(governance.KindConflict, "agenda item %d already exists", item.ItemNo)
	}
	if err != nil {
		return fmt.Errorf("insert agenda item: %w", err)
	}
	return nil
}

// ListAgendaItems implements governance.MeetingStore. Item status is read
// through the linked resolution.
func (r *Repository) ListAgendaItems(ctx context.Context, meetingID uuid.UUID) ([]models.AgendaItem, error) {
	q := `SELECT ` + agendaColumns + `
		FROM agenda_items a
		LEFT JOIN resolutions r ON r.id = a.resolution_id
		WHERE a.meeting_id = $1
		ORDER BY a.item_no`
	rows, err := r.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list agenda items: %w", err)
	}
	defer rows.Close()
	var list []models.AgendaItem
	for rows.Next() {
		a, err := scanAgendaItem(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// GetAgendaItem implements governance.MeetingStore.
func (r *Repository) GetAgendaItem(ctx context.Context, id uuid.UUID) (*models.AgendaItem, error) {
	q := `SELECT ` + agendaColumns + `
		FROM agenda_items a
		LEFT JOIN resolutions r ON r.id = a.resolution_id
		WHERE a.id = $1`
	a, err := scanAgendaItem(r.pool.QueryRow(ctx, q, id))
	if database.IsNoRows(err) {
		return nil, governance.NotFound("agenda item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get agenda item: %w", err)
	}
	return a, nil
}

// InsertResolution stores r and links the agenda item in one transaction.
func (r *Repository) InsertResolution(ctx context.Context, res *models.Resolution) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const q = `INSERT INTO resolutions (organization_id, meeting_id, agenda_item_id, title, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, q, res.OrganizationID, res.MeetingID, res.AgendaItemID, res.Title, res.Status).Scan(&res.ID, &res.CreatedAt); err != nil {
		return fmt.Errorf("insert resolution: %w", err)
	}
	if res.AgendaItemID != nil {
		tag, err := tx.Exec(ctx, `UPDATE agenda_items SET resolution_id = $1 WHERE id = $2 AND meeting_id = $3`, res.ID, *res.AgendaItemID, res.MeetingID)
		if err != nil {
			return fmt.Errorf("link agenda item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return governance.NotFound("agenda item", *res.AgendaItemID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetResolution implements governance.MeetingStore.
func (r *Repository) GetResolution(ctx context.Context, id uuid.UUID) (*models.Resolution, error) {
	var res models.Resolution
	err := r.pool.QueryRow(ctx, `SELECT `+resolutionColumns+` FROM resolutions WHERE id = $1`, id).
		Scan(&res.ID, &res.OrganizationID, &res.MeetingID, &res.AgendaItemID, &res.Title, &res.Status, &res.CreatedAt)
	if database.IsNoRows(err) {
		return nil, governance.NotFound("resolution", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get resolution: %w", err)
	}
	return &res, nil
}

// RecordCheckIn stores a live attendance mark.
func (r *Repository) RecordCheckIn(ctx context.Context, meetingID, membershipID uuid.UUID, at time.Time) error {
	const q = `INSERT INTO meeting_attendance (meeting_id, membership_id, checked_in_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (meeting_id, membership_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, meetingID, membershipID, at); err != nil {
		return fmt.Errorf("record check-in: %w", err)
	}
	return nil
}

// GetAttendance implements governance.AttendanceSource. REMOTE and WRITTEN
// ballots make remote voters; IN_PERSON ballots and check-ins make live attendees.
func (r *Repository) GetAttendance(ctx context.Context, meetingID uuid.UUID) (governance.Attendance, error) {
	att := governance.Attendance{
		RemoteVoterMembershipIDs:  governance.NewMembershipSet(),
		LiveAttendeeMembershipIDs: governance.NewMembershipSet(),
	}

	const qBallots = `SELECT DISTINCT b.membership_id, b.channel
		FROM ballots b
		INNER JOIN votes v ON v.id = b.vote_id
		WHERE v.meeting_id = $1`
	rows, err := r.pool.Query(ctx, qBallots, meetingID)
	if err != nil {
		return att, fmt.Errorf("list ballot attendance: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		var ch models.Channel
		if err := rows.Scan(&id, &ch); err != nil {
			rows.Close()
			return att, err
		}
		if ch.IsRemote() {
			att.RemoteVoterMembershipIDs.Add(id)
		} else {
			att.LiveAttendeeMembershipIDs.Add(id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return att, err
	}

	rows, err = r.pool.Query(ctx, `SELECT membership_id FROM meeting_attendance WHERE meeting_id = $1`, meetingID)
	if err != nil {
		return att, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return att, err
		}
		att.LiveAttendeeMembershipIDs.Add(id)
	}
	return att, rows.Err()
}
