// Package rootquestion implements component D: given a document and a
// candidate short answer, build a level-1 question whose unique answer is
// that short answer.
//
// Grounded on internal/brain/keywords.go's retry-with-different-template
// shape, generalized from a fixed keyword-extraction retry to template
// rotation.
package rootquestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
)

const maxAttempts = 4

var templates = []string{
	"Ask a %s question about a specific detail documented in the text.",
	"Ask a %s question that requires a close reading of the passage to answer.",
	"Ask a %s question framed around the surrounding context, not the answer itself.",
	"Ask a %s question a careful reader, but not a layperson, could answer from the text alone.",
}

var allowedQuestionWords = []model.QuestionType{
	model.QuestionWhat, model.QuestionWhich, model.QuestionWho, model.QuestionWhen, model.QuestionWhere,
}

type Generator struct {
	gateway llmgateway.Gateway
}

func New(gateway llmgateway.Gateway) *Generator {
	return &Generator{gateway: gateway}
}

type draftResponse struct {
	Text         string   `json:"text"`
	QuestionType string   `json:"question_type"`
	Keywords     []string `json:"keywords_used"`
}

// Generate returns a level-1 Question whose ExpectedAnswer is ans.Text, or
// nil if every template attempt fails the surface checks of spec.md §4.D.
func (g *Generator) Generate(ctx context.Context, doc model.Document, ans model.ShortAnswer) (*model.Question, error) {
	for attempt, tmpl := range templates {
		if attempt >= maxAttempts {
			break
		}

		prompt := buildPrompt(doc, ans, tmpl)
		text, err := g.gateway.Generate(ctx, llmgateway.Request{
			SystemPrompt: systemPrompt,
			Prompt:       prompt,
			Temperature:  0.4,
			MaxTokens:    300,
		})
		if err != nil {
			slog.WarnContext(ctx, "root question generation backend failure", "attempt", attempt+1, "error", err)
			continue
		}

		var draft draftResponse
		if err := json.Unmarshal([]byte(text), &draft); err != nil {
			slog.WarnContext(ctx, "root question generation parse failure", "attempt", attempt+1, "error", err)
			continue
		}

		q, ok := surfaceCheck(draft, ans, doc.Content)
		if ok {
			return q, nil
		}
		slog.DebugContext(ctx, "root question candidate failed surface check", "attempt", attempt+1)
	}

	return nil, nil
}

func surfaceCheck(draft draftResponse, ans model.ShortAnswer, docContent string) (*model.Question, bool) {
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return nil, false
	}
	if !strings.HasSuffix(text, "?") {
		text += "?"
	}

	qType := model.QuestionType(strings.ToLower(draft.QuestionType))
	if !isAllowed(qType) {
		return nil, false
	}
	if !startsWithQuestionWord(text) {
		return nil, false
	}

	if len(draft.Keywords) < 2 {
		return nil, false
	}
	for _, kw := range draft.Keywords {
		if !strings.Contains(strings.ToLower(docContent), strings.ToLower(kw)) {
			return nil, false
		}
	}

	lowerText := strings.ToLower(text)
	lowerAns := strings.ToLower(ans.Text)
	leakException := false
	if strings.Contains(lowerText, lowerAns) {
		if ans.Type == model.ShortAnswerProperNoun && isUnavoidableProperNounFragment(lowerText, lowerAns) {
			leakException = true
		} else {
			return nil, false
		}
	}

	return &model.Question{
		Text:                text,
		ExpectedAnswer:      ans.Text,
		QuestionType:        qType,
		AnswerType:          ans.Type,
		Level:               1,
		Keywords:            draft.Keywords,
		AnswerLeakException: leakException,
	}, true
}

func isUnavoidableProperNounFragment(questionText, answer string) bool {
	return strings.Count(questionText, answer) == 1 && len(answer) < len(questionText)/3
}

// startsWithQuestionWord reports whether text's leading token is one of the
// allowed wh-words (spec.md P3: q.text begins with an allowed question word,
// not merely self-reported as one via question_type).
func startsWithQuestionWord(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToLower(strings.Trim(fields[0], ".,;:!?\"'"))
	for _, a := range allowedQuestionWords {
		if string(a) == first {
			return true
		}
	}
	return false
}

func isAllowed(qt model.QuestionType) bool {
	for _, a := range allowedQuestionWords {
		if a == qt {
			return true
		}
	}
	return false
}

func buildPrompt(doc model.Document, ans model.ShortAnswer, templateHint string) string {
	return fmt.Sprintf(`## Document
%s

## Target answer
%q (type: %s)

%s

The question must:
- begin with one of: what, which, who, when, where
- reference at least two explicit keywords drawn verbatim from the document
- never contain the target answer as a substring, unless it is an unavoidable proper-noun fragment
- require reading the document to answer, not common sense

Return JSON: {"text":..., "question_type":..., "keywords_used":[...]}`, doc.Content, ans.Text, ans.Type, fmt.Sprintf(templateHint, "targeted"))
}

const systemPrompt = `You write single, well-formed research questions whose unique, unambiguous answer is a given target fact drawn from a document. You never use how or why. You never leak the answer into the question text. You write only valid JSON.`
