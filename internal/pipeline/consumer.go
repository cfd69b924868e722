package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"deepquery.app/engine/common/logger"
)

// ConsumerConfig configures the redis-stream consumer group this engine's
// workers read from.
type ConsumerConfig struct {
	Stream       string
	Group        string
	Consumer     string
	DLQStream    string
	BatchSize    int64
	Block        time.Duration
	MaxAttempts  int
	RequeueDelay time.Duration
}

// Consumer reads Jobs from a redis stream consumer group, acknowledging or
// requeuing them as the caller directs.
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig) (*Consumer, error) {
	c := &Consumer{client: client, cfg: cfg}
	if err := c.ensureGroup(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	// Start the group from "0" (not "$") so a restart doesn't lose jobs
	// that were queued before the group existed.
	if err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err(); err != nil &&
		err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// Read blocks for up to cfg.Block and returns any new Jobs delivered to
// this consumer. Messages that fail to parse are acked immediately (they
// can never succeed) and logged, matching the teacher's poison-message
// handling in queue.RedisConsumer.Read.
func (c *Consumer) Read(ctx context.Context) ([]Job, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "engine.pipeline.consumer"})

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

	var jobs []Job
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			job, parseErr := ParseMessage(msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse pipeline message", "error", parseErr, "message_id", msg.ID)
				_ = c.Ack(ctx, Job{Raw: msg})
				continue
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (c *Consumer) Ack(ctx context.Context, job Job) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, job.Raw.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Requeue resubmits job with its attempt count incremented, or routes it
// to the dead-letter stream once MaxAttempts is exceeded.
func (c *Consumer) Requeue(ctx context.Context, job Job, cause string) error {
	job.Attempt++
	if job.Attempt > c.cfg.MaxAttempts {
		slog.WarnContext(ctx, "pipeline job exceeded max attempts, moving to DLQ",
			"topic_id", job.TopicID, "document_id", job.DocumentID, "attempt", job.Attempt, "cause", cause)
		values := job.Values()
		values["error"] = cause
		if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.DLQStream, Values: values}).Err(); err != nil {
			return fmt.Errorf("moving job to DLQ: %w", err)
		}
		return c.Ack(ctx, job)
	}

	if c.cfg.RequeueDelay > 0 {
		time.Sleep(c.cfg.RequeueDelay)
	}
	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.Stream, Values: job.Values()}).Err(); err != nil {
		return fmt.Errorf("requeueing job: %w", err)
	}
	return c.Ack(ctx, job)
}

func (c *Consumer) Close() error {
	return c.client.Close()
}
