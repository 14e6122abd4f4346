package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// ConsumerConfig describes the consumer group a worker reads through.
type ConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	DLQStream string
	BatchSize int64
	Block     time.Duration
	// MinIdle is how long an entry must sit unacked before Claim takes it
	// over from the consumer that read it.
	MinIdle time.Duration
}

// RedisConsumer reads notification jobs through a consumer group.
type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	logger *zap.Logger
}

func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig, logger *zap.Logger) (*RedisConsumer, error) {
	if cfg.DLQStream == "" {
		cfg.DLQStream = cfg.Stream + ":dead"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &RedisConsumer{client: client, cfg: cfg, logger: logger}
	// Start from "0" so jobs written before the group existed are not skipped.
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}
	return c, nil
}

// Read blocks up to the configured duration for new jobs. Malformed entries
// are acked and skipped.
func (c *RedisConsumer) Read(ctx context.Context) ([]NotificationJob, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var jobs []NotificationJob
	for _, stream := range streams {
		jobs = append(jobs, c.parse(ctx, stream.Messages)...)
	}
	return jobs, nil
}

// Claim takes over entries that another consumer read but never acked, for
// example because it crashed mid-delivery. Each claimed job's Attempt counts
// the deliveries that already happened.
func (c *RedisConsumer) Claim(ctx context.Context) ([]NotificationJob, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
	}
	msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.MinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim: %w", err)
	}

	jobs := c.parse(ctx, msgs)
	for i := range jobs {
		jobs[i].Attempt += int(deliveries[jobs[i].ID])
		c.logger.Info("reclaimed stale notification job",
			zap.String("message_id", jobs[i].ID),
			zap.Int("attempt", jobs[i].Attempt))
	}
	return jobs, nil
}

// parse decodes entries, acking and skipping the malformed ones.
func (c *RedisConsumer) parse(ctx context.Context, msgs []redis.XMessage) []NotificationJob {
	jobs := make([]NotificationJob, 0, len(msgs))
	for _, msg := range msgs {
		job, err := ParseJob(msg)
		if err != nil {
			c.logger.Error("dropping malformed notification job",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			_ = c.Ack(ctx, NotificationJob{ID: msg.ID})
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (c *RedisConsumer) Ack(ctx context.Context, job NotificationJob) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, job.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Requeue appends a copy with the next attempt number, then acks the
// original. If the ack fails the original stays pending and Claim picks it up.
func (c *RedisConsumer) Requeue(ctx context.Context, job NotificationJob, errMsg string) error {
	retry := job
	retry.Attempt++
	retry.LastError = errMsg
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: jobValues(retry),
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}
	if err := c.Ack(ctx, job); err != nil {
		return fmt.Errorf("acking requeued job: %w", err)
	}
	return nil
}

// DeadLetter copies the job onto the dead-letter stream, then acks it.
func (c *RedisConsumer) DeadLetter(ctx context.Context, job NotificationJob, errMsg string) error {
	parked := job
	parked.LastError = errMsg
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: jobValues(parked),
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}
	if err := c.Ack(ctx, job); err != nil {
		return fmt.Errorf("acking dead-lettered job: %w", err)
	}
	return nil
}

// ParseJob decodes a stream entry.
func ParseJob(msg redis.XMessage) (NotificationJob, error) {
	complaintID, err := parseInt64(msg.Values, "complaint_id")
	if err != nil {
		return NotificationJob{}, err
	}
	recordID, err := parseInt64(msg.Values, "record_id")
	if err != nil {
		return NotificationJob{}, err
	}
	status, ok := msg.Values["status"]
	if !ok {
		return NotificationJob{}, fmt.Errorf("missing status")
	}
	attempt := 1
	if raw, ok := msg.Values["attempt"]; ok {
		attempt, err = strconv.Atoi(fmt.Sprint(raw))
		if err != nil {
			return NotificationJob{}, fmt.Errorf("parsing attempt: %w", err)
		}
	}
	job := NotificationJob{
		ID:          msg.ID,
		ComplaintID: complaintID,
		RecordID:    recordID,
		Status:      domain.AssignmentStatus(fmt.Sprint(status)),
		Attempt:     attempt,
	}
	if raw, ok := msg.Values["last_error"]; ok {
		job.LastError = fmt.Sprint(raw)
	}
	return job, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}
