package shortanswer

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

func TestExtractReturnsAcceptedCandidatesInOrder(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"answers":[
			{"text":"James Webb Space Telescope","type":"proper_noun","confidence":0.9,"source_span":"James Webb Space Telescope"},
			{"text":"2021","type":"number","confidence":0.8,"source_span":"2021"}
		]}`, nil
	}}
	e := New(gw)
	doc := model.Document{DocID: "doc-1", Content: "The James Webb Space Telescope launched in 2021."}

	got := e.Extract(context.Background(), doc)

	if len(got) != 2 {
		t.Fatalf("expected 2 short answers, got %d: %+v", len(got), got)
	}
	if got[0].Text != "James Webb Space Telescope" || got[0].Type != model.ShortAnswerProperNoun {
		t.Fatalf("unexpected first answer: %+v", got[0])
	}
	if got[1].Text != "2021" || got[1].Type != model.ShortAnswerNumber {
		t.Fatalf("unexpected second answer: %+v", got[1])
	}
}

func TestExtractRejectsCandidateNotPresentInSource(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"answers":[{"text":"Hubble","type":"proper_noun","confidence":0.9,"source_span":"Hubble"}]}`, nil
	}}
	e := New(gw)
	doc := model.Document{DocID: "doc-1", Content: "The James Webb Space Telescope launched in 2021."}

	got := e.Extract(context.Background(), doc)

	if len(got) != 0 {
		t.Fatalf("expected candidate absent from source text to be rejected, got %+v", got)
	}
}

func TestExtractRejectsGenericWord(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"answers":[{"text":"system","type":"technical_term","confidence":0.9,"source_span":"system"}]}`, nil
	}}
	e := New(gw)
	doc := model.Document{DocID: "doc-1", Content: "The system was built."}

	got := e.Extract(context.Background(), doc)

	if len(got) != 0 {
		t.Fatalf("expected generic word to be rejected, got %+v", got)
	}
}

func TestExtractCapsAtThreeAnswers(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return `{"answers":[
			{"text":"Alpha","type":"proper_noun","confidence":0.9,"source_span":"Alpha"},
			{"text":"Beta","type":"proper_noun","confidence":0.9,"source_span":"Beta"},
			{"text":"Gamma","type":"proper_noun","confidence":0.9,"source_span":"Gamma"},
			{"text":"Delta","type":"proper_noun","confidence":0.9,"source_span":"Delta"}
		]}`, nil
	}}
	e := New(gw)
	doc := model.Document{DocID: "doc-1", Content: "Alpha Beta Gamma Delta were all observed."}

	got := e.Extract(context.Background(), doc)

	if len(got) != 3 {
		t.Fatalf("expected extraction to cap at 3 answers, got %d", len(got))
	}
}

func TestExtractReturnsEmptyOnBackendFailure(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return "", errors.New("backend down")
	}}
	e := New(gw)
	doc := model.Document{DocID: "doc-1", Content: "Some content."}

	got := e.Extract(context.Background(), doc)

	if got != nil {
		t.Fatalf("expected nil result on backend failure, got %+v", got)
	}
}

func TestExtractReturnsEmptyOnParseFailure(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		return "not json", nil
	}}
	e := New(gw)
	doc := model.Document{DocID: "doc-1", Content: "Some content."}

	got := e.Extract(context.Background(), doc)

	if got != nil {
		t.Fatalf("expected nil result on parse failure, got %+v", got)
	}
}

func TestExtractReturnsNilForBlankDocument(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, req llmgateway.Request) (string, error) {
		t.Fatalf("gateway should not be called for a blank document")
		return "", nil
	}}
	e := New(gw)

	got := e.Extract(context.Background(), model.Document{DocID: "doc-1", Content: "   "})

	if got != nil {
		t.Fatalf("expected nil result for blank document, got %+v", got)
	}
	if gw.calls != 0 {
		t.Fatalf("expected gateway not to be called, got %d calls", gw.calls)
	}
}
