// Package validator implements component E: the dual-model validator.
// Specificity is computed deterministically; validity and uniqueness each
// combine two independent LLM judgments (one per backing vendor) so a
// single model's blind spot cannot pass a question on its own.
//
// Grounded on internal/brain/action_validator.go's scored-checklist shape
// and keywords.go's two-client retry pattern, generalized to run both
// vendor gateways to produce genuinely independent second opinions.
package validator

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"deepquery.app/engine/internal/llmgateway"
)

type Thresholds struct {
	Validity   float64
	Uniqueness float64
	Overall    float64
}

type Result struct {
	Specificity float64  `json:"specificity"`
	Validity    float64  `json:"validity"`
	Uniqueness  float64  `json:"uniqueness"`
	Overall     float64  `json:"overall"`
	Passed      bool     `json:"passed"`
	Reasoning   string   `json:"reasoning"`
	Issues      []string `json:"issues,omitempty"`
}

// Validator runs the same question/answer/document triple past two
// independently-prompted gateways. PrimaryGateway and SecondaryGateway are
// expected to be backed by distinct vendors (e.g. OpenAI and Anthropic).
type Validator struct {
	primary    llmgateway.Gateway
	secondary  llmgateway.Gateway
	thresholds Thresholds
}

func New(primary, secondary llmgateway.Gateway, thresholds Thresholds) *Validator {
	return &Validator{primary: primary, secondary: secondary, thresholds: thresholds}
}

// Validate scores (question, answer) against documentContent and reports
// whether it passes spec.md §4.E's combined threshold.
func (v *Validator) Validate(ctx context.Context, question, answer, documentContent string) Result {
	var issues []string

	specificity := scoreSpecificity(question, answer)

	if strings.Contains(strings.ToLower(question), strings.ToLower(answer)) {
		issues = append(issues, "answer leaks into question text")
		return Result{Specificity: specificity, Issues: issues, Reasoning: "substring leakage short-circuit"}
	}

	validity, vIssues := v.scoreDualJudgment(ctx, validityPrompt(question, answer, documentContent), validitySystemPrompt)
	uniqueness, uIssues := v.scoreUniquenessDual(ctx, question, answer, documentContent)
	issues = append(issues, vIssues...)
	issues = append(issues, uIssues...)

	overall := 0.4*specificity + 0.3*validity + 0.3*uniqueness

	passed := specificity >= 0.6 &&
		meetsThresholdWithTieBreak(validity, uniqueness, v.thresholds.Validity, v.thresholds.Uniqueness) &&
		overall >= v.thresholds.Overall

	return Result{
		Specificity: specificity,
		Validity:    validity,
		Uniqueness:  uniqueness,
		Overall:     overall,
		Passed:      passed,
		Issues:      issues,
	}
}

// meetsThresholdWithTieBreak implements the tie-break rule: either both
// sub-scores clear their own threshold, or one is weak but the other is
// strong enough (>=0.75) while the weak one still clears a floor (>=0.5).
func meetsThresholdWithTieBreak(validity, uniqueness, tV, tU float64) bool {
	if validity >= tV && uniqueness >= tU {
		return true
	}
	if validity >= 0.75 && uniqueness >= 0.5 {
		return true
	}
	if uniqueness >= 0.75 && validity >= 0.5 {
		return true
	}
	return false
}

type judgmentResponse struct {
	SingleAnswer    float64  `json:"single_answer"`
	Solvable        float64  `json:"solvable"`
	Unambiguous     float64  `json:"unambiguous"`
	Verifiable      float64  `json:"verifiable"`
	NoAnswerLeakage float64  `json:"no_answer_leakage"`
	Distinctive     float64  `json:"distinctive"`
	NonAmbiguous    float64  `json:"non_ambiguous"`
	NotRepeated     float64  `json:"not_repeated"`
	Precise         float64  `json:"precise"`
	Ambiguous       float64  `json:"ambiguous"`
	Repeated        float64  `json:"repeated"`
	Generic         float64  `json:"generic"`
	Vague           float64  `json:"vague"`
	Issues          []string `json:"issues,omitempty"`
}

func validityFields(r judgmentResponse) []float64 {
	return []float64{r.SingleAnswer, r.Solvable, r.Unambiguous, r.Verifiable, r.NoAnswerLeakage}
}

func uniquenessPositiveFields(r judgmentResponse) []float64 {
	return []float64{r.Distinctive, r.NonAmbiguous, r.NotRepeated, r.Precise}
}

// uniquenessNegativeFields are the second uniqueness judge's indicators, per
// spec.md §4.E.3 ("negative indicators inverted on model 2"): the model
// scores how ambiguous/repeated/generic/vague the answer is, and the result
// is inverted (1-score) before combining with the first judge's direct score.
func uniquenessNegativeFields(r judgmentResponse) []float64 {
	return []float64{r.Ambiguous, r.Repeated, r.Generic, r.Vague}
}

func (v *Validator) scoreDualJudgment(ctx context.Context, prompt, systemPrompt string) (float64, []string) {
	scoreA, issuesA, _ := v.judge(ctx, v.primary, prompt, systemPrompt, 0.1, validityFields)
	scoreB, issuesB, _ := v.judge(ctx, v.secondary, prompt, systemPrompt, 0.5, validityFields)
	return (scoreA + scoreB) / 2, append(issuesA, issuesB...)
}

// scoreUniquenessDual asks the primary gateway to score uniqueness directly
// and the secondary gateway to score its negative indicators, inverting the
// secondary's score before averaging so the two judges are genuinely
// independent rather than identical prompts at different temperatures.
func (v *Validator) scoreUniquenessDual(ctx context.Context, question, answer, documentContent string) (float64, []string) {
	scoreA, issuesA, _ := v.judge(ctx, v.primary, uniquenessPrompt(question, answer, documentContent), uniquenessSystemPrompt, 0.1, uniquenessPositiveFields)
	negScoreB, issuesB, okB := v.judge(ctx, v.secondary, uniquenessNegativePrompt(question, answer, documentContent), uniquenessNegativeSystemPrompt, 0.5, uniquenessNegativeFields)

	scoreB := 0.0
	if okB {
		scoreB = 1 - negScoreB
	}
	return (scoreA + scoreB) / 2, append(issuesA, issuesB...)
}

// judge scores one gateway's judgment of prompt, averaging whichever of
// fieldsOf's values the response populated. The bool result is false on
// backend failure, parse failure, or an empty judgment — a signal distinct
// from a genuine score of 0.
func (v *Validator) judge(ctx context.Context, gw llmgateway.Gateway, prompt, systemPrompt string, temperature float64, fieldsOf func(judgmentResponse) []float64) (float64, []string, bool) {
	text, err := gw.Generate(ctx, llmgateway.Request{
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Temperature:  temperature,
		MaxTokens:    300,
	})
	if err != nil {
		slog.WarnContext(ctx, "validator judgment backend failure", "error", err)
		return 0, []string{"judgment backend failure"}, false
	}

	var resp judgmentResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		slog.WarnContext(ctx, "validator judgment parse failure", "error", err)
		return 0, []string{"judgment parse failure"}, false
	}

	var sum, n float64
	for _, f := range fieldsOf(resp) {
		if f != 0 {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0, append(resp.Issues, "empty judgment"), false
	}
	return sum / n, resp.Issues, true
}

var (
	properNounPattern = regexp.MustCompile(`^[A-Z][a-zA-Z'-]*(\s[A-Z][a-zA-Z'-]*)*$`)
	numberPattern     = regexp.MustCompile(`\d`)
	datePattern       = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

var genericNouns = map[string]bool{
	"thing": true, "stuff": true, "item": true, "part": true, "way": true, "area": true,
}

var commonGivenNames = map[string]bool{
	"john": true, "mary": true, "david": true, "sarah": true, "michael": true, "james": true,
}

// scoreSpecificity is deterministic per spec.md §4.E.1: a length floor,
// a single reward for the first matching proper-noun, number or date
// pattern, penalty for generic nouns and plain given names without
// institutional context. Locations and technical terms get no reward of
// their own.
func scoreSpecificity(question, answer string) float64 {
	score := 0.5

	runes := []rune(strings.TrimSpace(answer))
	if len(runes) < 2 {
		return 0
	}
	if len(runes) < 4 {
		score -= 0.2
	}

	switch {
	case properNounPattern.MatchString(answer):
		score += 0.3
	case numberPattern.MatchString(answer):
		score += 0.2
	case datePattern.MatchString(answer):
		score += 0.2
	}

	lower := strings.ToLower(answer)
	if genericNouns[lower] {
		score -= 0.3
	}

	words := strings.Fields(lower)
	if len(words) == 1 && commonGivenNames[words[0]] && !hasInstitutionalContext(question) {
		score -= 0.25
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func hasInstitutionalContext(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range []string{"university", "company", "organization", "institute", "agency", "team", "ministry"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func validityPrompt(question, answer, documentContent string) string {
	return "## Question\n" + question + "\n\n## Claimed answer\n" + answer + "\n\n## Source document\n" + truncate(documentContent, 3000) +
		"\n\nScore each of single_answer, solvable, unambiguous, verifiable, no_answer_leakage in [0,1]. Return JSON with those fields plus optional issues[]."
}

func uniquenessPrompt(question, answer, documentContent string) string {
	return "## Question\n" + question + "\n\n## Claimed answer\n" + answer + "\n\n## Source document\n" + truncate(documentContent, 3000) +
		"\n\nScore each of distinctive, non_ambiguous, not_repeated, precise in [0,1]. Return JSON with those fields plus optional issues[]."
}

// uniquenessNegativePrompt asks for the inverse indicators: how ambiguous,
// repeated, generic, and vague the claimed answer is. The caller inverts
// (1-score) to combine with the positive-indicator judge.
func uniquenessNegativePrompt(question, answer, documentContent string) string {
	return "## Question\n" + question + "\n\n## Claimed answer\n" + answer + "\n\n## Source document\n" + truncate(documentContent, 3000) +
		"\n\nScore each of ambiguous, repeated, generic, vague in [0,1] — how much that negative trait applies to the claimed answer. " +
		"Return JSON with those fields plus optional issues[]."
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for i := len(cut) - 1; i >= 0 && i > max-8; i-- {
		if unicode.IsSpace(rune(cut[i])) {
			return cut[:i]
		}
	}
	return cut
}

const validitySystemPrompt = `You are a strict grader of research questions. Score whether the question has a single correct answer, is solvable from the document, is unambiguous, is verifiable, and does not leak its own answer. Output only JSON.`

const uniquenessSystemPrompt = `You are a strict grader of research questions. Score whether the expected answer is distinctive, non-ambiguous, not a repeat of common knowledge, and precise. Output only JSON.`

const uniquenessNegativeSystemPrompt = `You are a strict grader of research questions. Score how ambiguous, repeated, generic, and vague the claimed answer is — high scores mean the answer fails to uniquely identify anything. Output only JSON.`
