package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/queue"
)

// Enqueuer is the part of queue.Queue the QueueSink needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, typ queue.JobType, payload interface{}) error
}

// QueueSink forwards events to the Redis audit queue for the worker to persist.
type QueueSink struct {
	queue Enqueuer
}

func NewQueueSink(q Enqueuer) *QueueSink {
	return &QueueSink{queue: q}
}

func (s *QueueSink) Write(ctx context.Context, ev models.AuditEvent) error {
	return s.queue.Enqueue(ctx, queue.QueueAudit, queue.JobTypeAuditEvent, ev)
}

// LogSink writes events to the log only. Used when no queue is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(_ context.Context, ev models.AuditEvent) error {
	fields := []zap.Field{
		zap.String("event_id", ev.ID.String()),
		zap.String("type", string(ev.Type)),
		zap.String("organization_id", ev.OrganizationID.String()),
		zap.String("entity_type", ev.EntityType),
		zap.String("entity_id", ev.EntityID.String()),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.ActorUserID != nil {
		fields = append(fields, zap.String("actor_user_id", ev.ActorUserID.String()))
	}
	if len(ev.Data) > 0 {
		fields = append(fields, zap.Any("data", ev.Data))
	}
	s.logger.Info("audit event", fields...)
	return nil
}
