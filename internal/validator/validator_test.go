package validator

import (
	"context"
	"strings"
	"testing"

	"deepquery.app/engine/internal/llmgateway"
)

type fakeGateway struct {
	fn func(ctx context.Context, req llmgateway.Request) (string, error)
}

func (f *fakeGateway) Generate(ctx context.Context, req llmgateway.Request) (string, error) {
	return f.fn(ctx, req)
}

func strongJudgment() string {
	return `{"single_answer":0.9,"solvable":0.9,"unambiguous":0.9,"verifiable":0.9,"no_answer_leakage":0.9,
		"distinctive":0.9,"non_ambiguous":0.9,"not_repeated":0.9,"precise":0.9}`
}

func weakJudgment() string {
	return `{"single_answer":0.2,"solvable":0.2,"unambiguous":0.2,"verifiable":0.2,"no_answer_leakage":0.2,
		"distinctive":0.2,"non_ambiguous":0.2,"not_repeated":0.2,"precise":0.2}`
}

// strongNegativeJudgment is what the second uniqueness judge returns for a
// distinctive answer: low ambiguous/repeated/generic/vague scores, which the
// validator inverts (1-score) before averaging with the first judge.
func strongNegativeJudgment() string {
	return `{"ambiguous":0.1,"repeated":0.1,"generic":0.1,"vague":0.1}`
}

// isNegativeUniquenessPrompt reports whether req was the second uniqueness
// judge's negative-indicator prompt, so a test double can answer it
// differently from the validity/positive-uniqueness prompts it also serves.
func isNegativeUniquenessPrompt(prompt string) bool {
	return strings.Contains(prompt, "ambiguous, repeated, generic, vague")
}

func TestValidatePassesStrongCandidate(t *testing.T) {
	primary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return strongJudgment(), nil
	}}
	secondary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		if isNegativeUniquenessPrompt(req.Prompt) {
			return strongNegativeJudgment(), nil
		}
		return strongJudgment(), nil
	}}
	v := New(primary, secondary, Thresholds{Validity: 0.6, Uniqueness: 0.6, Overall: 0.6})

	got := v.Validate(context.Background(), "Which telescope launched in 2021?", "James Webb Space Telescope", "The James Webb Space Telescope launched in 2021.")

	if !got.Passed {
		t.Fatalf("expected a strong candidate to pass, got %+v", got)
	}
}

func TestValidateShortCircuitsOnAnswerLeakage(t *testing.T) {
	primary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		t.Fatalf("gateway should not be called when the answer leaks into the question")
		return "", nil
	}}
	v := New(primary, primary, Thresholds{Validity: 0.6, Uniqueness: 0.6, Overall: 0.6})

	got := v.Validate(context.Background(), "What is the James Webb Space Telescope?", "James Webb Space Telescope", "doc content")

	if got.Passed {
		t.Fatalf("expected leaking question to fail, got %+v", got)
	}
	if len(got.Issues) == 0 {
		t.Fatalf("expected an issue describing the leakage")
	}
}

func TestValidateRejectsWeakCandidate(t *testing.T) {
	primary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return weakJudgment(), nil
	}}
	v := New(primary, primary, Thresholds{Validity: 0.6, Uniqueness: 0.6, Overall: 0.6})

	got := v.Validate(context.Background(), "Which telescope launched in 2021?", "James Webb Space Telescope", "doc content")

	if got.Passed {
		t.Fatalf("expected weak candidate to fail, got %+v", got)
	}
}

func TestValidateDegradesToZeroOnBackendFailure(t *testing.T) {
	primary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return "", context.Canceled
	}}
	v := New(primary, primary, Thresholds{Validity: 0.6, Uniqueness: 0.6, Overall: 0.6})

	got := v.Validate(context.Background(), "Which telescope launched in 2021?", "James Webb Space Telescope", "doc content")

	if got.Passed {
		t.Fatalf("expected validation to fail when both judges fail, got %+v", got)
	}
	if got.Validity != 0 || got.Uniqueness != 0 {
		t.Fatalf("expected scores to degrade to 0, got validity=%v uniqueness=%v", got.Validity, got.Uniqueness)
	}
}

func TestValidateInvertsSecondUniquenessJudgesNegativeIndicators(t *testing.T) {
	primary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return strongJudgment(), nil
	}}
	secondary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		if isNegativeUniquenessPrompt(req.Prompt) {
			// high negative-indicator scores -> a low uniqueness contribution once inverted
			return `{"ambiguous":0.9,"repeated":0.9,"generic":0.9,"vague":0.9}`, nil
		}
		return strongJudgment(), nil
	}}
	v := New(primary, secondary, Thresholds{Validity: 0.6, Uniqueness: 0.6, Overall: 0.6})

	got := v.Validate(context.Background(), "Which telescope launched in 2021?", "James Webb Space Telescope", "The James Webb Space Telescope launched in 2021.")

	// primary's positive score (0.9) averaged with the inverted secondary score (1-0.9=0.1) -> 0.5
	if got.Uniqueness < 0.45 || got.Uniqueness > 0.55 {
		t.Fatalf("expected uniqueness near 0.5 once the secondary judge's negative indicators are inverted, got %v", got.Uniqueness)
	}
}

func TestValidateAveragesPrimaryAndSecondaryJudgments(t *testing.T) {
	primary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return strongJudgment(), nil
	}}
	secondary := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return weakJudgment(), nil
	}}
	v := New(primary, secondary, Thresholds{Validity: 0.6, Uniqueness: 0.6, Overall: 0.6})

	got := v.Validate(context.Background(), "Which telescope launched in 2021?", "James Webb Space Telescope", "doc content")

	if got.Validity <= 0.2 || got.Validity >= 0.9 {
		t.Fatalf("expected validity to be the average of a strong and weak judgment, got %v", got.Validity)
	}
}
