package childquestion

import (
	"context"
	"testing"

	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
)

type fakeGateway struct {
	fn    func(ctx context.Context, req llmgateway.Request) (string, error)
	calls int
}

func (f *fakeGateway) Generate(ctx context.Context, req llmgateway.Request) (string, error) {
	f.calls++
	return f.fn(ctx, req)
}

var parentQuestion = model.Question{
	QuestionID:   "root",
	Text:         "Which telescope launched in 2021?",
	QuestionType: model.QuestionWhich,
	Level:        1,
}

func TestGenerateReturnsChildQuestionWithParentLinkage(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"text":"What instrument observes in infrared aboard the spacecraft","question_type":"what"}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), parentQuestion, "NIRCam", nil, model.ExtensionParallel, model.ShortAnswerTechnicalTerm)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got == nil {
		t.Fatalf("expected a question, got nil")
	}
	if got.ExpectedAnswer != "NIRCam" || got.Level != 2 {
		t.Fatalf("unexpected question: %+v", got)
	}
	if got.ParentID == nil || *got.ParentID != parentQuestion.QuestionID {
		t.Fatalf("expected parent linkage to %q, got %v", parentQuestion.QuestionID, got.ParentID)
	}
}

func TestGenerateRejectsQuestionThatLeaksTargetKeyword(t *testing.T) {
	attempt := 0
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		attempt++
		if attempt == 1 {
			return `{"text":"What is NIRCam aboard the spacecraft","question_type":"what"}`, nil
		}
		return `{"text":"What instrument observes in infrared aboard the spacecraft","question_type":"what"}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), parentQuestion, "NIRCam", nil, model.ExtensionParallel, model.ShortAnswerTechnicalTerm)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got == nil {
		t.Fatalf("expected the second attempt to succeed after the leaking first attempt")
	}
	if gw.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", gw.calls)
	}
}

func TestGenerateRejectsHowAndWhy(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"text":"How does the instrument work","question_type":"how"}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), parentQuestion, "NIRCam", nil, model.ExtensionParallel, model.ShortAnswerTechnicalTerm)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after exhausting attempts on how/why, got %+v", got)
	}
}

func TestPreferredOrderPutsParentStyleFirst(t *testing.T) {
	got := preferredOrder(model.QuestionWhich, model.ShortAnswerProperNoun)
	if len(got) == 0 || got[0] != model.QuestionWhich {
		t.Fatalf("expected parent question type to be preferred first, got %v", got)
	}
}
