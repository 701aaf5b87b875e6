package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueAudit is the Redis list key for governance audit events.
	QueueAudit = "worker:audit"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeAuditEvent JobType = "audit_event"
)

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJob wraps payload in a fresh envelope bound for the named queue.
func NewJob(queueName string, typ JobType, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Queue:     queueName,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", j.Type, err)
	}
	return nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// Enqueue pushes a job carrying payload onto the named queue.
func (q *Queue) Enqueue(ctx context.Context, queueName string, typ JobType, payload interface{}) error {
	job, err := NewJob(queueName, typ, payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, queueName, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("queue", queueName), zap.String("type", string(typ)))
	return nil
}

func (q *Queue) push(ctx context.Context, queueName string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, queueName, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", queueName, err)
	}
	return nil
}

// Dequeue blocks up to timeout until a job is available on the named queue.
// It returns a nil job when the wait times out or the entry cannot be decoded.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. Once the attempt reaches
// MaxRetries the job goes to the DLQ instead and dead is true.
func (q *Queue) Retry(ctx context.Context, job *Job) (dead bool, err error) {
	dest, dead := nextHop(job)
	if pushErr := q.push(ctx, dest, job); pushErr != nil {
		if dead {
			q.logger.Error("dlq push failed", zap.Error(pushErr), zap.String("job_id", job.ID))
		}
		return dead, pushErr
	}
	if dead {
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return true, nil
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.String("queue", job.Queue), zap.Int("attempt", job.Attempt))
	return false, nil
}

// nextHop counts the failed attempt and picks where the job goes next.
func nextHop(job *Job) (queueName string, dead bool) {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		return QueueDLQ, true
	}
	return job.Queue, false
}

// Len reports the number of pending jobs on the named queue.
func (q *Queue) Len(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// ReplayDead moves up to limit jobs from the DLQ back onto their queues with
// the attempt counter reset. limit <= 0 replays the whole DLQ. Entries that
// cannot be decoded are discarded and logged.
func (q *Queue) ReplayDead(ctx context.Context, limit int) (int, error) {
	n := 0
	for limit <= 0 || n < limit {
		raw, err := q.client.LPop(ctx, QueueDLQ).Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("lpop %s: %w", QueueDLQ, err)
		}
		job, err := revive(raw)
		if err != nil {
			q.logger.Warn("unreadable dead job discarded", zap.String("raw", raw), zap.Error(err))
			continue
		}
		if err := q.push(ctx, job.Queue, job); err != nil {
			if reErr := q.client.LPush(ctx, QueueDLQ, raw).Err(); reErr != nil {
				q.logger.Error("dead job lost", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func revive(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal dead job: %w", err)
	}
	if job.Queue == "" || job.Queue == QueueDLQ {
		job.Queue = QueueAudit
	}
	job.Attempt = 0
	return &job, nil
}
