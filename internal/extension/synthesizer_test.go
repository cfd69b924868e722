package extension

import (
	"context"
	"testing"

	"deepquery.app/engine/internal/errs"
	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
	"deepquery.app/engine/internal/searchgateway"
)

type fakeGateway struct {
	fn func(ctx context.Context, req llmgateway.Request) (string, error)
}

func (f *fakeGateway) Generate(ctx context.Context, req llmgateway.Request) (string, error) {
	return f.fn(ctx, req)
}

type fakeSearch struct {
	fn func(ctx context.Context, query string, topK int) (searchgateway.Result, error)
}

func (f *fakeSearch) Search(ctx context.Context, query string, topK int) (searchgateway.Result, error) {
	return f.fn(ctx, query, topK)
}

func TestSynthesizeReturnsContextFromSnippets(t *testing.T) {
	search := &fakeSearch{fn: func(ctx context.Context, query string, topK int) (searchgateway.Result, error) {
		return searchgateway.Result{Results: []model.SearchResult{
			{Title: "Mirror segments", URL: "https://example.com/1", Content: "The primary mirror has 18 hexagonal segments.", Rank: 1},
		}}, nil
	}}
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"synthesized_text":"The primary mirror is built from 18 hexagonal segments.","confidence":0.8}`, nil
	}}
	s := New(search, gw)

	got, err := s.Synthesize(context.Background(), "mirror", "Which telescope launched in 2021?", "James Webb Space Telescope", model.ExtensionParallel)

	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got == nil {
		t.Fatalf("expected a context, got nil")
	}
	if got.TargetKeyword != "mirror" || got.SynthesizedText == "" {
		t.Fatalf("unexpected context: %+v", got)
	}
	if got.Confidence <= 0 || got.Confidence > 1 {
		t.Fatalf("expected confidence in (0,1], got %v", got.Confidence)
	}
}

func TestSynthesizeReturnsNoContextWhenSearchIsExhaustedRetryable(t *testing.T) {
	search := &fakeSearch{fn: func(ctx context.Context, query string, topK int) (searchgateway.Result, error) {
		return searchgateway.Result{}, errs.NewRetryable(errs.ErrBackend)
	}}
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		t.Fatalf("gateway should not be called when search fails")
		return "", nil
	}}
	s := New(search, gw)

	got, err := s.Synthesize(context.Background(), "mirror", "question", "answer", model.ExtensionSeries)

	if err != nil {
		t.Fatalf("expected a soft nil,nil failure, got error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil context, got %+v", got)
	}
}

func TestSynthesizePropagatesFatalSearchError(t *testing.T) {
	search := &fakeSearch{fn: func(ctx context.Context, query string, topK int) (searchgateway.Result, error) {
		return searchgateway.Result{}, errs.NewFatal(errs.ErrBackend)
	}}
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		t.Fatalf("gateway should not be called when search fails fatally")
		return "", nil
	}}
	s := New(search, gw)

	_, err := s.Synthesize(context.Background(), "mirror", "question", "answer", model.ExtensionSeries)

	if err == nil {
		t.Fatalf("expected the fatal search error to propagate")
	}
}

func TestSynthesizeDegradesOnParseFailure(t *testing.T) {
	search := &fakeSearch{fn: func(ctx context.Context, query string, topK int) (searchgateway.Result, error) {
		return searchgateway.Result{Results: []model.SearchResult{{Title: "t", Content: "c", Rank: 1}}}, nil
	}}
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return "not json", nil
	}}
	s := New(search, gw)

	got, err := s.Synthesize(context.Background(), "mirror", "question", "answer", model.ExtensionSeries)

	if err != nil {
		t.Fatalf("expected parse failure to degrade to nil,nil, got error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil context on parse failure, got %+v", got)
	}
}

func TestBuildQueryBiasesParallelTowardComparison(t *testing.T) {
	got := buildQuery("mirror", "Which telescope launched?", model.ExtensionParallel)
	if got != "mirror related aspects comparison" {
		t.Fatalf("unexpected parallel query: %q", got)
	}
}
