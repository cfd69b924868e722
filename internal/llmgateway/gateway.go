// Package llmgateway implements component A: a uniform request interface to
// a chat model with temperature/max-token controls and bounded retries.
//
// Grounded on the teacher's common/llm.Client (structured OpenAI chat) and
// internal/brain/keywords.go's exponential-backoff retry loop.
package llmgateway

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"deepquery.app/engine/common/llm"
	"deepquery.app/engine/internal/errs"
)

// Gateway exposes generate(prompt, temperature, max_tokens) -> text per
// spec.md §4.A. Callers never see HTTP; they get a string or a typed error.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Request struct {
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

const (
	maxAttempts  = 3
	baseBackoff  = 500 * time.Millisecond
)

type gateway struct {
	client llm.Client
}

func New(client llm.Client) Gateway {
	return &gateway{client: client}
}

// textResult is the schema forced onto the underlying structured-output
// client: the gateway's contract is prompt-in/text-out, but both backing
// vendors (common/llm.client and the Anthropic tool-forced client) only
// speak structured JSON, so every gateway call asks for a single "text"
// field and unwraps it.
type textResult struct {
	Text string `json:"text" jsonschema_description:"The complete response text."`
}

var textSchema = llm.GenerateSchema[textResult]()

func (g *gateway) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
			select {
			case <-ctx.Done():
				return "", errs.NewFatal(fmt.Errorf("%w: %v", errs.ErrCancelled, ctx.Err()))
			case <-time.After(backoff):
			}
		}

		var result textResult
		temp := req.Temperature
		_, err := g.client.Chat(ctx, llm.Request{
			SystemPrompt: req.SystemPrompt,
			UserPrompt:   req.Prompt,
			SchemaName:   "text_result",
			Schema:       textSchema,
			MaxTokens:    req.MaxTokens,
			Temperature:  &temp,
		}, &result)

		if err == nil {
			return result.Text, nil
		}

		lastErr = err
		if !llm.IsRetryable(ctx, err) {
			slog.WarnContext(ctx, "llm gateway call failed, not retryable", "error", err, "attempt", attempt+1)
			return "", errs.NewFatal(fmt.Errorf("%w: %v", errs.ErrBackend, err))
		}

		slog.WarnContext(ctx, "llm gateway call failed, retrying", "error", err, "attempt", attempt+1)
	}

	return "", errs.NewRetryable(fmt.Errorf("%w: exhausted %d attempts: %v", errs.ErrRateLimit, maxAttempts, lastErr))
}
