package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-assembly/backend/internal/models"
)

// Repository persists audit events to the audit_events table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores ev. Re-delivered events with a known id are ignored.
func (r *Repository) Insert(ctx context.Context, ev models.AuditEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal audit data: %w", err)
	}
	const q = `INSERT INTO audit_events (id, type, organization_id, entity_type, entity_id, actor_user_id, data, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, ev.ID, ev.Type, ev.OrganizationID, ev.EntityType, ev.EntityID, ev.ActorUserID, data, ev.OccurredAt); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByOrganization returns the newest events of an organization first.
func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]models.AuditEvent, error) {
	const q = `SELECT id, type, organization_id, entity_type, entity_id, actor_user_id, data, occurred_at
		FROM audit_events
		WHERE organization_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		var data []byte
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.OrganizationID, &ev.EntityType, &ev.EntityID, &ev.ActorUserID, &data, &ev.OccurredAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				return nil, fmt.Errorf("decode audit data: %w", err)
			}
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// RepositorySink writes events straight to Postgres, bypassing the queue.
type RepositorySink struct {
	repo *Repository
}

func NewRepositorySink(repo *Repository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Write(ctx context.Context, ev models.AuditEvent) error {
	return s.repo.Insert(ctx, ev)
}
