// Package shortanswer implements component C: from a document, propose up
// to 3 candidate short answers in priority order (proper noun, number,
// date, location, technical term).
//
// Grounded on internal/brain/keywords.go's extraction shape: a versioned
// system prompt, JSON-parsed LLM output, graceful degradation to an empty
// result rather than a raised error.
package shortanswer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
)

const maxShortAnswers = 3

var genericWords = map[string]bool{
	"system": true, "method": true, "approach": true, "process": true,
	"technology": true, "solution": true, "framework": true, "thing": true,
}

type Extractor struct {
	gateway llmgateway.Gateway
}

func New(gateway llmgateway.Gateway) *Extractor {
	return &Extractor{gateway: gateway}
}

type extractionResponse struct {
	Answers []candidateAnswer `json:"answers"`
}

type candidateAnswer struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	SourceSpan string  `json:"source_span"`
}

// Extract returns up to 3 ShortAnswers for doc, in priority order. It fails
// gracefully: any backend or parse error yields an empty slice rather than
// an error, per spec.md §4.C.
func (e *Extractor) Extract(ctx context.Context, doc model.Document) []model.ShortAnswer {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	text, err := e.gateway.Generate(ctx, llmgateway.Request{
		SystemPrompt: systemPrompt,
		Prompt:       buildPrompt(doc),
		Temperature:  0.1,
		MaxTokens:    600,
	})
	if err != nil {
		slog.WarnContext(ctx, "short answer extraction backend failure", "doc_id", doc.DocID, "error", err)
		return nil
	}

	var resp extractionResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		slog.WarnContext(ctx, "short answer extraction parse failure", "doc_id", doc.DocID, "error", err)
		return nil
	}

	rank := map[model.ShortAnswerType]int{
		model.ShortAnswerProperNoun: 0, model.ShortAnswerNumber: 1, model.ShortAnswerDate: 2,
		model.ShortAnswerLocation: 3, model.ShortAnswerTechnicalTerm: 4,
	}
	sort.SliceStable(resp.Answers, func(i, j int) bool {
		return rank[model.ShortAnswerType(resp.Answers[i].Type)] < rank[model.ShortAnswerType(resp.Answers[j].Type)]
	})

	out := make([]model.ShortAnswer, 0, maxShortAnswers)
	for _, c := range resp.Answers {
		if len(out) >= maxShortAnswers {
			break
		}
		if !accept(c, doc.Content) {
			continue
		}
		out = append(out, model.ShortAnswer{
			Text:       c.Text,
			Type:       model.ShortAnswerType(c.Type),
			Confidence: c.Confidence,
			SourceSpan: c.SourceSpan,
		})
	}

	return out
}

func accept(c candidateAnswer, sourceText string) bool {
	text := strings.TrimSpace(c.Text)
	if len(text) < 3 {
		return false
	}
	if genericWords[strings.ToLower(text)] {
		return false
	}
	if !strings.Contains(strings.ToLower(sourceText), strings.ToLower(text)) {
		return false
	}
	switch model.ShortAnswerType(c.Type) {
	case model.ShortAnswerProperNoun, model.ShortAnswerNumber, model.ShortAnswerDate,
		model.ShortAnswerLocation, model.ShortAnswerTechnicalTerm:
		return true
	default:
		return false
	}
}

func buildPrompt(doc model.Document) string {
	var sb strings.Builder
	sb.WriteString("## Document\n")
	sb.WriteString(doc.Content)
	sb.WriteString("\n\nReturn JSON: {\"answers\": [{\"text\":...,\"type\":...,\"confidence\":0-1,\"source_span\":...}]}")
	return sb.String()
}

const systemPrompt = `You propose atomic, objectively verifiable short answers from a document, for building research questions.

Selection priority (highest first):
1. proper_noun — named entities (people, organizations, products, places)
2. number — specific counts, quantities, measurements, years
3. date — explicit dates or years
4. location — place names
5. technical_term — precise technical vocabulary

Reject:
- subjective phrases ("a great achievement")
- fragments under 3 characters
- anything not literally present in the document
- generic words: system, method, approach, process, technology, solution, framework, thing

Return at most 3 candidates, each with a confidence in [0,1] and the exact source_span you drew it from.`
