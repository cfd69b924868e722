// Package childquestion implements component H: given a parent question,
// parent answer, a target keyword, and its extension context, produce a
// question whose unique answer is the target keyword.
//
// Grounded on rootquestion's template-rotation pattern (itself grounded on
// internal/brain/keywords.go), adding parent-style-consistency selection
// per spec.md §4.H.
package childquestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
)

const maxAttempts = 3

// templatesByAnswerType mirrors the target keyword's answer type to a
// preferred question-word order per spec.md §4.H.
var templatesByAnswerType = map[model.ShortAnswerType][]model.QuestionType{
	model.ShortAnswerProperNoun:    {model.QuestionWhat, model.QuestionWhich, model.QuestionWho},
	model.ShortAnswerNumber:        {model.QuestionWhat, model.QuestionWhen},
	model.ShortAnswerDate:          {model.QuestionWhen},
	model.ShortAnswerLocation:      {model.QuestionWhere},
	model.ShortAnswerTechnicalTerm: {model.QuestionWhat, model.QuestionWhich},
}

type Generator struct {
	gateway llmgateway.Gateway
}

func New(gateway llmgateway.Gateway) *Generator {
	return &Generator{gateway: gateway}
}

type draftResponse struct {
	Text         string `json:"text"`
	QuestionType string `json:"question_type"`
}

// Generate returns a Question whose ExpectedAnswer is targetKeyword, or nil
// if all template attempts fail the surface checks.
func (g *Generator) Generate(ctx context.Context, parentQuestion model.Question, targetKeyword string, extCtx *model.ExtensionContext, extType model.ExtensionType, keywordType model.ShortAnswerType) (*model.Question, error) {
	preferred := preferredOrder(parentQuestion.QuestionType, keywordType)

	for attempt := 0; attempt < maxAttempts && attempt < len(preferred); attempt++ {
		qWord := preferred[attempt]

		prompt := buildPrompt(parentQuestion, targetKeyword, extCtx, qWord)
		text, err := g.gateway.Generate(ctx, llmgateway.Request{
			SystemPrompt: systemPrompt,
			Prompt:       prompt,
			Temperature:  0.4,
			MaxTokens:    300,
		})
		if err != nil {
			slog.WarnContext(ctx, "child question generation backend failure", "attempt", attempt+1, "error", err)
			continue
		}

		var draft draftResponse
		if err := json.Unmarshal([]byte(text), &draft); err != nil {
			slog.WarnContext(ctx, "child question generation parse failure", "attempt", attempt+1, "error", err)
			continue
		}

		q, ok := surfaceCheck(draft, targetKeyword, keywordType)
		if ok {
			q.Level = parentQuestion.Level + 1
			parentID := parentQuestion.QuestionID
			q.ParentID = &parentID
			return q, nil
		}
	}

	return nil, nil
}

// preferredOrder puts the template matching the parent's question word
// first (style consistency), then the remaining allowed templates for the
// keyword's answer type.
func preferredOrder(parentType model.QuestionType, keywordType model.ShortAnswerType) []model.QuestionType {
	allowed := templatesByAnswerType[keywordType]
	if len(allowed) == 0 {
		allowed = []model.QuestionType{model.QuestionWhat}
	}

	ordered := make([]model.QuestionType, 0, len(allowed))
	for _, t := range allowed {
		if t == parentType {
			ordered = append([]model.QuestionType{t}, ordered...)
		} else {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

func surfaceCheck(draft draftResponse, targetKeyword string, keywordType model.ShortAnswerType) (*model.Question, bool) {
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return nil, false
	}
	if !strings.HasSuffix(text, "?") {
		text += "?"
	}

	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "how") || strings.HasPrefix(lower, "why") {
		return nil, false
	}

	qType := model.QuestionType(strings.ToLower(draft.QuestionType))
	if qType == "how" || qType == "why" {
		return nil, false
	}

	if strings.Contains(lower, strings.ToLower(targetKeyword)) {
		return nil, false
	}

	return &model.Question{
		Text:           text,
		ExpectedAnswer: targetKeyword,
		QuestionType:   qType,
		AnswerType:     keywordType,
	}, true
}

func buildPrompt(parentQuestion model.Question, targetKeyword string, extCtx *model.ExtensionContext, qWord model.QuestionType) string {
	var sb strings.Builder
	sb.WriteString("## Parent question\n" + parentQuestion.Text + "\n\n## Parent answer\n" + parentQuestion.ExpectedAnswer + "\n\n")
	if extCtx != nil {
		sb.WriteString("## Extension context\n" + extCtx.SynthesizedText + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("## Target keyword\n%s\n\n", targetKeyword))
	sb.WriteString(fmt.Sprintf("Write one question beginning with %q whose unique answer is the target keyword. "+
		"Root the phrasing in the extension context, not the parent document. Never use how or why. "+
		"Never include the literal target keyword in the question. Return JSON: {\"text\":..., \"question_type\":%q}", qWord, qWord))
	return sb.String()
}

const systemPrompt = `You write single, well-formed follow-up questions that extend a research tree. Each question's unique answer is a given target keyword, and its phrasing should feel stylistically consistent with the parent question. You never use how or why. You write only valid JSON.`
