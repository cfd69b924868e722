package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"deepquery.app/engine/common/logger"
)

// Producer enqueues Jobs onto the pipeline's redis stream.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{client: client, stream: stream}
}

func (p *redisProducer) Enqueue(ctx context.Context, job Job) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TopicID:    &job.TopicID,
		DocumentID: &job.DocumentID,
		Component:  "engine.pipeline.producer",
	})

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: job.Values(),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job (stream=%s): %w", p.stream, err)
	}

	slog.InfoContext(ctx, "enqueued document for tree building",
		"topic_id", job.TopicID, "document_id", job.DocumentID)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
