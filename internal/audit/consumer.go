package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/queue"
)

const dequeueWait = 5 * time.Second

// JobSource is the part of queue.Queue the Consumer reads from.
type JobSource interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// EventWriter stores a decoded audit event.
type EventWriter interface {
	Insert(ctx context.Context, ev models.AuditEvent) error
}

// Job results reported to the WithResultHook callback.
const (
	JobStored       = "stored"
	JobRetried      = "retried"
	JobDeadLettered = "dead_lettered"
	JobFailed       = "failed"
)

// Consumer drains the audit queue into durable storage.
type Consumer struct {
	source   JobSource
	store    EventWriter
	logger   *zap.Logger
	backoff  time.Duration
	onResult func(result string)
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithResultHook calls fn with the outcome of every dequeued job.
func WithResultHook(fn func(result string)) ConsumerOption {
	return func(c *Consumer) { c.onResult = fn }
}

// NewConsumer creates an audit queue consumer.
func NewConsumer(source JobSource, store EventWriter, logger *zap.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{source: source, store: store, logger: logger, backoff: queue.RetryBackoff, onResult: func(string) {}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Process stores the event carried by one job.
func (c *Consumer) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAuditEvent {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var ev models.AuditEvent
	if err := job.Decode(&ev); err != nil {
		return err
	}
	if err := c.store.Insert(ctx, ev); err != nil {
		return fmt.Errorf("store audit event %s: %w", ev.ID, err)
	}
	c.logger.Debug("audit event stored", zap.String("event_id", ev.ID.String()), zap.String("type", string(ev.Type)))
	return nil
}

// Run loops until ctx is done: dequeue, process, retry on error.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("audit consumer stopping")
			return
		default:
		}

		job, err := c.source.Dequeue(ctx, queue.QueueAudit, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("dequeue error", zap.Error(err))
			c.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		if err := c.Process(ctx, job); err != nil {
			c.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			dead, reErr := c.source.Retry(ctx, job)
			switch {
			case reErr != nil:
				c.logger.Error("retry enqueue failed", zap.Error(reErr))
				c.onResult(JobFailed)
			case dead:
				c.onResult(JobDeadLettered)
			default:
				c.onResult(JobRetried)
			}
			c.sleep(ctx)
			continue
		}
		c.onResult(JobStored)
	}
}

func (c *Consumer) sleep(ctx context.Context) {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
