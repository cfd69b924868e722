// Package searchgateway implements component B: query string -> ranked
// snippets with title/url/content.
//
// Grounded on the teacher's internal/retriever/code (a Retriever interface
// returning typed results over a typesense-backed source) but, unlike that
// mock, this wires the real github.com/typesense/typesense-go/v4 SDK
// against a pre-indexed web-snippet collection — a domain dependency the
// teacher's go.mod carried but its own code never called.
package searchgateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"

	"deepquery.app/engine/internal/errs"
	"deepquery.app/engine/internal/model"
)

const snippetContentCap = 1200

// Gateway exposes search(query, top_k) -> {results, latency_ms} per
// spec.md §4.B. Results are deduplicated by URL and truncated to an agreed
// character cap; ordering reflects the provider's relevance ranking only.
type Gateway interface {
	Search(ctx context.Context, query string, topK int) (Result, error)
}

type Result struct {
	Results   []model.SearchResult
	LatencyMS int64
}

type gateway struct {
	client     *typesense.Client
	collection string
}

func New(serverURL, apiKey, collection string) Gateway {
	client := typesense.NewClient(
		typesense.WithServer(serverURL),
		typesense.WithAPIKey(apiKey),
	)
	return &gateway{client: client, collection: collection}
}

func (g *gateway) Search(ctx context.Context, query string, topK int) (Result, error) {
	if topK <= 0 || topK > 5 {
		topK = 5
	}

	start := time.Now()

	perPage := topK * 2 // overfetch so URL dedup still leaves topK results
	params := &api.SearchCollectionParams{
		Q:       query,
		QueryBy: "title,content",
		PerPage: &perPage,
	}

	resp, err := g.client.Collection(g.collection).Documents().Search(ctx, params)
	if err != nil {
		return Result{}, errs.NewRetryable(fmt.Errorf("%w: typesense search: %v", errs.ErrBackend, err))
	}

	seen := make(map[string]bool)
	results := make([]model.SearchResult, 0, topK)

	if resp.Hits != nil {
		for rank, hit := range *resp.Hits {
			if hit.Document == nil {
				continue
			}
			doc := *hit.Document

			docURL, _ := doc["url"].(string)
			if docURL == "" || seen[docURL] {
				continue
			}
			seen[docURL] = true

			title, _ := doc["title"].(string)
			content, _ := doc["content"].(string)
			content = truncate(content, snippetContentCap)

			results = append(results, model.SearchResult{
				Title:   title,
				URL:     docURL,
				Content: content,
				Rank:    rank + 1,
			})

			if len(results) >= topK {
				break
			}
		}
	}

	latency := time.Since(start).Milliseconds()
	slog.DebugContext(ctx, "search gateway query completed",
		"query", query, "results", len(results), "latency_ms", latency)

	if len(results) == 0 {
		return Result{}, errs.NewRetryable(fmt.Errorf("%w: no snippets for query %q", errs.ErrBackend, query))
	}

	return Result{Results: results, LatencyMS: latency}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// EncodeDocID produces a stable typesense document id from a URL.
func EncodeDocID(rawURL string) string {
	return strconv.Itoa(int(hashURL(rawURL)))
}

func hashURL(rawURL string) uint32 {
	u, err := url.Parse(rawURL)
	if err != nil {
		rawURL = u.String()
	}
	var h uint32 = 2166136261
	for i := 0; i < len(rawURL); i++ {
		h ^= uint32(rawURL[i])
		h *= 16777619
	}
	return h
}
