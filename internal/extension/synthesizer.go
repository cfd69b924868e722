// Package extension implements component G: turn a target keyword into a
// search query biased by extension type, fetch snippets from the Search
// Gateway, and fuse them into a bounded-length synthesized context.
//
// Grounded on internal/retriever.go's query-then-summarize shape, adapted
// to call the searchgateway and llmgateway packages built for this domain.
package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"deepquery.app/engine/internal/errs"
	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
	"deepquery.app/engine/internal/searchgateway"
)

const (
	searchTopK        = 5
	synthesisMaxChars = 800
)

type Synthesizer struct {
	search  searchgateway.Gateway
	gateway llmgateway.Gateway
}

func New(search searchgateway.Gateway, gateway llmgateway.Gateway) *Synthesizer {
	return &Synthesizer{search: search, gateway: gateway}
}

type synthesisResponse struct {
	Text       string  `json:"synthesized_text"`
	Confidence float64 `json:"confidence"`
}

// Synthesize builds an ExtensionContext for targetKeyword, or returns
// (nil, nil) if the search returned no usable snippets (a soft failure per
// spec.md §4.G, not an error).
func (s *Synthesizer) Synthesize(ctx context.Context, targetKeyword, parentQuestion, parentAnswer string, extType model.ExtensionType) (*model.ExtensionContext, error) {
	query := buildQuery(targetKeyword, parentQuestion, extType)

	result, err := s.search.Search(ctx, query, searchTopK)
	if err != nil {
		if !errs.IsRetryable(err) {
			return nil, err
		}
		slog.WarnContext(ctx, "extension search returned no snippets", "keyword", targetKeyword, "error", err)
		return nil, nil
	}
	if len(result.Results) == 0 {
		return nil, nil
	}

	text, err := s.gateway.Generate(ctx, llmgateway.Request{
		SystemPrompt: synthesisSystemPrompt,
		Prompt:       buildSynthesisPrompt(targetKeyword, parentAnswer, result.Results),
		Temperature:  0.3,
		MaxTokens:    500,
	})
	if err != nil {
		return nil, errs.NewRetryable(fmt.Errorf("%w: extension synthesis: %v", errs.ErrBackend, err))
	}

	var resp synthesisResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, nil // ParseError degrades to a soft failure here; caller treats as no context
	}

	synthesized := truncate(resp.Text, synthesisMaxChars)
	confidence := min1(float64(len(result.Results))/5.0) * clamp01(resp.Confidence)

	return &model.ExtensionContext{
		TargetKeyword:   targetKeyword,
		SearchQuery:     query,
		Snippets:        result.Results,
		SynthesizedText: synthesized,
		Confidence:      confidence,
	}, nil
}

func buildQuery(targetKeyword, parentQuestion string, extType model.ExtensionType) string {
	topicNouns := extractNouns(parentQuestion)
	switch extType {
	case model.ExtensionParallel:
		return fmt.Sprintf("%s related aspects comparison", targetKeyword)
	default: // series, root fallback
		return strings.TrimSpace(fmt.Sprintf("%s %s", targetKeyword, topicNouns))
	}
}

// extractNouns is a coarse heuristic: capitalized words in the parent
// question, good enough to bias a search query toward the parent topic.
func extractNouns(question string) string {
	var nouns []string
	for _, w := range strings.Fields(question) {
		w = strings.Trim(w, ".,?!")
		if len(w) > 0 && w[0] >= 'A' && w[0] <= 'Z' {
			nouns = append(nouns, w)
		}
	}
	return strings.Join(nouns, " ")
}

func buildSynthesisPrompt(targetKeyword, parentAnswer string, snippets []model.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("## Target keyword\n" + targetKeyword + "\n\n## Snippets\n")
	for i, s := range snippets {
		sb.WriteString(fmt.Sprintf("%d. %s\n%s\n\n", i+1, s.Title, s.Content))
	}
	sb.WriteString(fmt.Sprintf("\nFuse the snippets above into a single synthesized paragraph about %q. "+
		"Retain novel facts. Do not include the literal text %q. "+
		"Return JSON: {\"synthesized_text\":..., \"confidence\":0-1}", targetKeyword, parentAnswer))
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const synthesisSystemPrompt = `You fuse short search snippets into a single coherent paragraph that introduces novel facts about a target keyword. You never restate a given answer's literal text. Output only JSON.`
