package rootquestion

import (
	"context"
	"errors"
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

var testDoc = model.Document{
	DocID:   "doc-1",
	Content: "The James Webb Space Telescope launched in 2021 and is operated by NASA.",
}

var testAnswer = model.ShortAnswer{Text: "James Webb Space Telescope", Type: model.ShortAnswerProperNoun}

func TestGenerateReturnsQuestionOnFirstValidAttempt(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"text":"Which telescope launched in 2021 and is operated by NASA","question_type":"which","keywords_used":["2021","NASA"]}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), testDoc, testAnswer)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got == nil {
		t.Fatalf("expected a question, got nil")
	}
	if got.ExpectedAnswer != testAnswer.Text || got.Level != 1 {
		t.Fatalf("unexpected question: %+v", got)
	}
	if gw.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", gw.calls)
	}
}

func TestGenerateRejectsAnswerLeakAndTriesNextTemplate(t *testing.T) {
	attempt := 0
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		attempt++
		if attempt == 1 {
			return `{"text":"What is the James Webb Space Telescope","question_type":"what","keywords_used":["2021","NASA"]}`, nil
		}
		return `{"text":"What launched in 2021 and is operated by NASA","question_type":"what","keywords_used":["2021","NASA"]}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), testDoc, testAnswer)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got == nil {
		t.Fatalf("expected the second attempt to succeed")
	}
	if gw.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", gw.calls)
	}
}

func TestGenerateRejectsDisallowedQuestionWord(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"text":"How did it launch in 2021 with NASA","question_type":"how","keywords_used":["2021","NASA"]}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), testDoc, testAnswer)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after exhausting attempts on disallowed question word, got %+v", got)
	}
	if gw.calls != maxAttempts {
		t.Fatalf("expected all %d attempts to be tried, got %d", maxAttempts, gw.calls)
	}
}

func TestGenerateRejectsQuestionTypeMismatchingLeadingWord(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"text":"The telescope launched when","question_type":"when","keywords_used":["2021","NASA"]}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), testDoc, testAnswer)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected rejection when text does not actually begin with the claimed question word, got %+v", got)
	}
	if gw.calls != maxAttempts {
		t.Fatalf("expected all %d attempts to be tried, got %d", maxAttempts, gw.calls)
	}
}

func TestGenerateRequiresAtLeastTwoVerifiedKeywords(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"text":"What launched in 2021","question_type":"what","keywords_used":["2021"]}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), testDoc, testAnswer)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected rejection for fewer than 2 verified keywords, got %+v", got)
	}
}

func TestGenerateSkipsAttemptOnBackendFailure(t *testing.T) {
	attempt := 0
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		attempt++
		if attempt == 1 {
			return "", errors.New("backend down")
		}
		return `{"text":"What launched in 2021 with NASA","question_type":"what","keywords_used":["2021","NASA"]}`, nil
	}}
	g := New(gw)

	got, err := g.Generate(context.Background(), testDoc, testAnswer)

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got == nil {
		t.Fatalf("expected the second attempt to recover from the first backend failure")
	}
}
