// Package queue carries complainant notification jobs over a Redis stream so
// delivery happens outside the request that triggered it.
package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// NotificationJob asks a worker to notify the complainant of a transition.
type NotificationJob struct {
	ID          string
	ComplaintID int64
	RecordID    int64
	Status      domain.AssignmentStatus
	Attempt     int
	LastError   string
}

// Producer enqueues notification jobs.
type Producer interface {
	Enqueue(ctx context.Context, job NotificationJob) error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *zap.Logger) Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, job NotificationJob) error {
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: jobValues(job),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	p.logger.Debug("enqueued notification",
		zap.Int64("complaint_id", job.ComplaintID),
		zap.String("status", string(job.Status)),
		zap.Int("attempt", job.Attempt))
	return nil
}

func jobValues(job NotificationJob) map[string]any {
	values := map[string]any{
		"complaint_id": job.ComplaintID,
		"record_id":    job.RecordID,
		"status":       string(job.Status),
		"attempt":      job.Attempt,
	}
	if job.LastError != "" {
		values["last_error"] = job.LastError
	}
	return values
}
