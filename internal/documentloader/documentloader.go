// Package documentloader defines the external collaborator boundary the
// core consumes (spec.md §6: iter_topic(topic_id) -> Document iterator) and
// ships a demo in-memory implementation with a simple value-scoring
// heuristic, so the repository is runnable end-to-end without a real
// content-quality classifier (explicitly out of scope per spec.md §1).
//
// Grounded on internal/brain/retriever.go's Loader-interface shape.
package documentloader

import (
	"context"
	"fmt"
	"strings"

	"deepquery.app/engine/internal/model"
)

// Loader delivers the documents for a topic. Implementations own
// cleaning/filtering; content handed to the core is assumed already UTF-8
// and free of markup.
type Loader interface {
	IterTopic(ctx context.Context, topicID string) ([]model.Document, error)
}

// InMemoryLoader is the demo implementation: a fixed corpus keyed by topic
// ID, scored by a simple heuristic (length and named-entity density) that
// stands in for the original prototype's document screener without
// reimplementing a content-quality classifier.
type InMemoryLoader struct {
	corpus map[string][]rawDocument
}

type rawDocument struct {
	docID   string
	content string
}

func NewInMemory() *InMemoryLoader {
	return &InMemoryLoader{corpus: make(map[string][]rawDocument)}
}

// Seed registers a document under topicID for later retrieval.
func (l *InMemoryLoader) Seed(topicID, docID, content string) {
	l.corpus[topicID] = append(l.corpus[topicID], rawDocument{docID: docID, content: content})
}

func (l *InMemoryLoader) IterTopic(ctx context.Context, topicID string) ([]model.Document, error) {
	raw, ok := l.corpus[topicID]
	if !ok {
		return nil, fmt.Errorf("documentloader: unknown topic %q", topicID)
	}

	out := make([]model.Document, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.Document{
			DocID:      r.docID,
			TopicID:    topicID,
			Content:    r.content,
			ValueScore: scoreValue(r.content),
		})
	}
	return out, nil
}

// scoreValue is a simple value-scoring heuristic: longer documents with a
// higher density of capitalized tokens (a crude proxy for named entities)
// score higher, floored and capped to [0,1].
func scoreValue(content string) float64 {
	words := strings.Fields(content)
	if len(words) == 0 {
		return 0
	}

	capitalized := 0
	for _, w := range words {
		if len(w) > 0 && w[0] >= 'A' && w[0] <= 'Z' {
			capitalized++
		}
	}

	lengthScore := float64(len(words)) / 500.0
	if lengthScore > 0.6 {
		lengthScore = 0.6
	}
	densityScore := float64(capitalized) / float64(len(words))
	if densityScore > 0.4 {
		densityScore = 0.4
	}

	score := lengthScore + densityScore
	if score > 1 {
		score = 1
	}
	return score
}
