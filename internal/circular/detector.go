// Package circular implements component I: a per-document history of
// (question, answer) pairs checked against new candidates for exact
// reversal, substring collision, and template loops.
//
// Grounded on internal/brain/sanitize.go's deterministic, stateful
// rule-checking shape (no LLM calls; pure functions over accumulated
// state).
package circular

import (
	"strings"

	"deepquery.app/engine/internal/model"
)

type historyEntry struct {
	question     string
	answer       string
	questionType model.QuestionType
	answerType   model.ShortAnswerType
	keyword      string
}

// Detector maintains the per-document trajectory history the detector
// checks new candidates against. It is not safe for concurrent use; the
// orchestrator owns one per document, consistent with the single-threaded
// per-document construction order.
type Detector struct {
	history []historyEntry
}

func New() *Detector {
	return &Detector{}
}

type Result struct {
	IsCircular  bool
	Reason      string
	Suggestions []string
}

// Check evaluates a candidate (question, answer) against the accumulated
// history. It does not record the candidate; call Record once the
// candidate is accepted.
func (d *Detector) Check(question model.Question, targetKeyword string) Result {
	lowerQ := strings.ToLower(question.Text)

	for _, h := range d.history {
		if h.answer != "" && strings.EqualFold(strings.TrimSpace(h.answer), strings.TrimSpace(question.ExpectedAnswer)) {
			return Result{
				IsCircular:  true,
				Reason:      "exact reversal: candidate's expected answer already appears verbatim as an ancestor's answer",
				Suggestions: []string{"target a different keyword", "switch extension type"},
			}
		}
	}

	for _, h := range d.history {
		if h.answer == "" {
			continue
		}
		if containsUnavoidableToken(lowerQ, strings.ToLower(h.answer), question.AnswerType) {
			return Result{
				IsCircular:  true,
				Reason:      "substring collision: candidate question contains an ancestor answer",
				Suggestions: []string{"rephrase away from the ancestor's literal answer"},
			}
		}
	}

	for _, h := range d.history {
		if h.questionType == question.QuestionType && h.answerType == question.AnswerType && h.keyword == targetKeyword {
			return Result{
				IsCircular:  true,
				Reason:      "template loop: the same (question_type, answer_type, keyword) triple already produced a node",
				Suggestions: []string{"vary the question template", "pick a different target keyword"},
			}
		}
	}

	return Result{}
}

// containsUnavoidableToken reports a substring collision unless the
// overlap is an acceptable proper-noun fragment.
func containsUnavoidableToken(questionLower, ancestorAnswerLower string, answerType model.ShortAnswerType) bool {
	if !strings.Contains(questionLower, ancestorAnswerLower) {
		return false
	}
	if answerType == model.ShortAnswerProperNoun && len(ancestorAnswerLower) < len(questionLower)/3 {
		return false
	}
	return true
}

// Record appends an accepted (question, answer, keyword) to the history.
func (d *Detector) Record(question model.Question, targetKeyword string) {
	d.history = append(d.history, historyEntry{
		question:     question.Text,
		answer:       question.ExpectedAnswer,
		questionType: question.QuestionType,
		answerType:   question.AnswerType,
		keyword:      targetKeyword,
	})
}
