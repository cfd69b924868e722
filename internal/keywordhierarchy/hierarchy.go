// Package keywordhierarchy implements component F: extracting the minimal
// keyword set that identifies a parent answer, checking which of those
// keywords are essential, validating that a child answer belongs to a
// parent keyword, and preventing shortcut questions that leak ancestor or
// sibling answers.
//
// Grounded on internal/brain/keywords.go (LLM-schema extraction with a
// regex fallback on parse failure) and common/slug.go (reused here for
// normalized-text matching in the hierarchy validator).
package keywordhierarchy

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"deepquery.app/engine/common"
	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
)

const maxKeywords = 5

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true, "at": true, "to": true,
	"and": true, "or": true, "is": true, "was": true, "were": true, "for": true, "with": true,
	"what": true, "which": true, "who": true, "when": true, "where": true, "how": true, "why": true,
}

// abbreviationPairs lists accepted abbreviation<->expansion variants for
// the child-answer hierarchy validator's rule 2.
var abbreviationPairs = map[string]string{
	"usa": "united states", "united states": "usa",
	"uk": "united kingdom", "united kingdom": "uk",
	"un": "united nations", "united nations": "un",
	"eu": "european union", "european union": "eu",
}

// technicalRelations is the small curated map backing rule 5: a diversity
// concession for closely related technical terms.
var technicalRelations = map[string][]string{
	"telescope":   {"optics", "lens", "mirror"},
	"satellite":   {"orbit", "launch vehicle", "payload"},
	"reactor":     {"fission", "coolant", "containment"},
	"algorithm":   {"complexity", "heuristic", "data structure"},
	"observatory": {"telescope", "detector", "instrument"},
}

type Manager struct {
	gateway llmgateway.Gateway
}

func New(gateway llmgateway.Gateway) *Manager {
	return &Manager{gateway: gateway}
}

type extractionResponse struct {
	Keywords []struct {
		Text       string  `json:"text"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"keywords"`
}

// Extract asks for the minimum keyword set identifying parentAnswer within
// parentQuestion (and optional docContext), post-filters stopwords,
// question words and duplicates, and returns at most 5 keywords.
func (m *Manager) Extract(ctx context.Context, parentQuestion, parentAnswer, docContext string) []model.Keyword {
	prompt := "## Parent question\n" + parentQuestion + "\n\n## Parent answer\n" + parentAnswer
	if docContext != "" {
		prompt += "\n\n## Context\n" + truncateText(docContext, 1500)
	}
	prompt += "\n\nReturn the minimum set of keywords (at most 5) such that together they uniquely identify the parent answer. JSON: {\"keywords\":[{\"text\":...,\"type\":...,\"confidence\":0-1}]}"

	text, err := m.gateway.Generate(ctx, llmgateway.Request{
		SystemPrompt: extractSystemPrompt,
		Prompt:       prompt,
		Temperature:  0.2,
		MaxTokens:    400,
	})
	if err != nil {
		slog.WarnContext(ctx, "keyword extraction backend failure", "error", err)
		return regexFallback(parentQuestion, parentAnswer)
	}

	var resp extractionResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		slog.WarnContext(ctx, "keyword extraction parse failure, using regex fallback", "error", err)
		return regexFallback(parentQuestion, parentAnswer)
	}

	seen := make(map[string]bool)
	out := make([]model.Keyword, 0, maxKeywords)
	for i, k := range resp.Keywords {
		if len(out) >= maxKeywords {
			break
		}
		norm := normalize(k.Text)
		if norm == "" || stopwords[norm] || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, model.Keyword{
			Text:             k.Text,
			ParentContext:    parentQuestion,
			KeywordType:      model.ShortAnswerType(k.Type),
			SpecificityScore: k.Confidence,
			Confidence:       k.Confidence,
			Position:         i,
		})
	}
	return out
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z'-]{2,}`)

func regexFallback(parentQuestion, parentAnswer string) []model.Keyword {
	words := wordPattern.FindAllString(parentQuestion, -1)
	out := make([]model.Keyword, 0, maxKeywords)
	seen := make(map[string]bool)
	for i, w := range words {
		if len(out) >= maxKeywords {
			break
		}
		norm := normalize(w)
		if norm == "" || stopwords[norm] || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, model.Keyword{
			Text:          w,
			ParentContext: parentQuestion,
			KeywordType:   model.ShortAnswerTechnicalTerm,
			Confidence:    0.3,
			Position:      i,
		})
	}
	return out
}

// MinimumKeywordCheck asks, for each keyword, whether the remaining set
// would still uniquely identify parentAnswer if k were hidden. It marks
// Essential on each keyword in place and returns the keywords passed.
//
// isEssential abstracts the actual "would removing k still work" judgment so
// callers can supply an LLM-backed implementation; this function only
// records the per-keyword flags. It does not compute or return whether the
// essential count falls within [1, n-1].
func MinimumKeywordCheck(keywords []model.Keyword, isEssential func(idx int) bool) []model.Keyword {
	n := len(keywords)
	if n == 0 {
		return keywords
	}
	essentialCount := 0
	for i := range keywords {
		keywords[i].Essential = isEssential(i)
		if keywords[i].Essential {
			essentialCount++
		}
	}
	_ = essentialCount // annotation only; does not itself reject per spec.md §4.F
	return keywords
}

// HierarchyMatch is the outcome of validating a child answer against a
// parent keyword set.
type HierarchyMatch struct {
	Matched    bool
	Keyword    string
	Confidence float64
	Rule       int
}

// ValidateChildAnswer implements the 5-rule child-answer hierarchy
// validation of spec.md §4.F.
func ValidateChildAnswer(childAnswer string, parentKeywords []model.Keyword) HierarchyMatch {
	normChild := normalize(childAnswer)

	for _, k := range parentKeywords {
		if normalize(k.Text) == normChild {
			return HierarchyMatch{Matched: true, Keyword: k.Text, Confidence: 1.0, Rule: 1}
		}
	}

	for _, k := range parentKeywords {
		if isAcceptableVariant(normChild, normalize(k.Text)) {
			return HierarchyMatch{Matched: true, Keyword: k.Text, Confidence: 0.9, Rule: 2}
		}
	}

	for _, k := range parentKeywords {
		if isProperNounExtension(normChild, normalize(k.Text)) {
			return HierarchyMatch{Matched: true, Keyword: k.Text, Confidence: 0.75, Rule: 3}
		}
	}

	best := HierarchyMatch{}
	for _, k := range parentKeywords {
		overlap := wordOverlap(normChild, normalize(k.Text)) * k.Confidence
		if overlap >= 0.5 && overlap > best.Confidence {
			best = HierarchyMatch{Matched: true, Keyword: k.Text, Confidence: overlap, Rule: 4}
		}
	}
	if best.Matched {
		return best
	}

	for _, k := range parentKeywords {
		norm := normalize(k.Text)
		if related, ok := technicalRelations[norm]; ok {
			for _, r := range related {
				if normalize(r) == normChild {
					return HierarchyMatch{Matched: true, Keyword: k.Text, Confidence: 0.5, Rule: 5}
				}
			}
		}
	}

	return HierarchyMatch{Matched: false}
}

func isAcceptableVariant(a, b string) bool {
	if a == b {
		return true
	}
	if strings.TrimSuffix(a, "s") == strings.TrimSuffix(b, "s") {
		return true
	}
	if abbreviationPairs[a] == b || abbreviationPairs[b] == a {
		return true
	}
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	return errA == nil && errB == nil && na == nb
}

func isProperNounExtension(child, parent string) bool {
	parentTokens := strings.Fields(parent)
	childTokens := strings.Fields(child)
	if len(childTokens) == 0 || len(parentTokens) == 0 {
		return false
	}
	parentSet := make(map[string]bool, len(parentTokens))
	for _, t := range parentTokens {
		parentSet[t] = true
	}
	added := 0
	for _, t := range childTokens {
		if !parentSet[t] {
			added++
		}
	}
	return added <= 3 && added < len(childTokens)
}

func wordOverlap(a, b string) float64 {
	aTokens := strings.Fields(a)
	bSet := make(map[string]bool)
	for _, t := range strings.Fields(b) {
		bSet[t] = true
	}
	if len(aTokens) == 0 || len(bSet) == 0 {
		return 0
	}
	matches := 0
	for _, t := range aTokens {
		if bSet[t] {
			matches++
		}
	}
	return float64(matches) / float64(len(aTokens))
}

// ShortcutCheck is the outcome of the shortcut-prevention check.
type ShortcutCheck struct {
	Passed     bool
	Confidence float64
	Issues     []string
}

const shortcutThreshold = 0.4

// CheckShortcut implements spec.md §4.F's shortcut prevention: a child
// question fails if it would let a solver infer an ancestor or sibling
// answer without solving the child, or if it lacks structural specificity.
func CheckShortcut(childQuestion, childAnswer string, ancestorAnswers, siblingAnswers []string) ShortcutCheck {
	var issues []string
	confidence := 1.0
	failed := false
	lower := strings.ToLower(childQuestion)

	for _, a := range ancestorAnswers {
		if a != "" && strings.Contains(lower, strings.ToLower(a)) {
			issues = append(issues, "question leaks ancestor answer")
			confidence -= 0.5
			failed = true
		}
	}
	for _, s := range siblingAnswers {
		if s != "" && s != childAnswer && strings.Contains(lower, strings.ToLower(s)) {
			issues = append(issues, "question leaks sibling answer")
			confidence -= 0.3
			failed = true
		}
	}

	words := strings.Fields(childQuestion)
	if len(words) < 5 {
		issues = append(issues, "question too short for structural specificity")
		confidence -= 0.3
		failed = true
	}
	for _, broad := range []string{"any", "some", "anything", "somewhere", "someone"} {
		if strings.Contains(lower, broad) {
			issues = append(issues, "question uses a broad quantifier")
			confidence -= 0.2
			break
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	return ShortcutCheck{Passed: !failed && confidence >= shortcutThreshold, Confidence: confidence, Issues: issues}
}

func normalize(s string) string {
	slug, err := common.Slugify(s, "")
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(slug, "-", " ")
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

const extractSystemPrompt = `You extract the smallest possible set of keywords (at most 5) that together uniquely identify a given answer within its question's context. Exclude stopwords, question words, and duplicates. Output only JSON.`
