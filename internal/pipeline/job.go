// Package pipeline implements the outer concurrent runner of spec.md §5:
// a Redis Stream of {topic_id, document_id} jobs consumed by N workers,
// each invoking the stateless, single-threaded-per-document orchestrator.
// "Across documents the core is embarrassingly parallel" is realized here
// as consumer-group fan-out.
//
// Grounded on the teacher's internal/queue package (XAdd/XReadGroup/XAck
// over a redis.Client, with a DLQ stream and bounded retries); the task
// shape is rebuilt for this domain (topic/document identifiers instead of
// issue/event identifiers).
package pipeline

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Job is one unit of work: build a reasoning tree for one document within
// a topic. TopicID and DocumentID together let the processor call the
// document loader and select the right Document from its result.
type Job struct {
	TopicID    string
	DocumentID string
	TreeID     int64
	Attempt    int
	Raw        redis.XMessage
}

// ParseMessage decodes a raw XMessage into a Job. Fields are stored as
// plain strings in the stream entry (redis stream values are
// string-keyed), matching the teacher's queue.ParseMessage shape.
func ParseMessage(msg redis.XMessage) (Job, error) {
	topicID, _ := msg.Values["topic_id"].(string)
	documentID, _ := msg.Values["document_id"].(string)
	if topicID == "" || documentID == "" {
		return Job{}, fmt.Errorf("pipeline: message %s missing topic_id/document_id", msg.ID)
	}

	job := Job{
		TopicID:    topicID,
		DocumentID: documentID,
		Raw:        msg,
	}

	if treeIDStr, ok := msg.Values["tree_id"].(string); ok && treeIDStr != "" {
		var treeID int64
		if _, err := fmt.Sscanf(treeIDStr, "%d", &treeID); err == nil {
			job.TreeID = treeID
		}
	}
	if attemptStr, ok := msg.Values["attempt"].(string); ok && attemptStr != "" {
		var attempt int
		if _, err := fmt.Sscanf(attemptStr, "%d", &attempt); err == nil {
			job.Attempt = attempt
		}
	}

	return job, nil
}

// Values renders a Job back into the string-keyed map a redis stream entry
// stores, for producing or requeuing.
func (j Job) Values() map[string]any {
	return map[string]any{
		"topic_id":    j.TopicID,
		"document_id": j.DocumentID,
		"tree_id":     fmt.Sprintf("%d", j.TreeID),
		"attempt":     fmt.Sprintf("%d", j.Attempt),
	}
}
