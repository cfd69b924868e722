package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicClient implements Client by forcing a single tool call whose
// input schema is the caller's requested schema — Anthropic has no native
// "response_format: json_schema" the way OpenAI does, so a forced tool call
// is the structured-output equivalent. This is what makes NewAnthropic a
// genuinely independent second judge for the dual-model validator: a
// different vendor, not a second call to the same model.
type anthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates a structured-output Client backed by Anthropic.
func NewAnthropic(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &anthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}

func (c *anthropicClient) Chat(ctx context.Context, req Request, result any) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	schemaName := req.SchemaName
	if schemaName == "" {
		schemaName = "structured_response"
	}

	inputSchema := anthropic.ToolInputSchemaParam{Type: "object"}
	if req.Schema != nil {
		data, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		var schemaMap map[string]any
		if err := json.Unmarshal(data, &schemaMap); err != nil {
			return nil, fmt.Errorf("unmarshal schema: %w", err)
		}
		if props, ok := schemaMap["properties"]; ok {
			inputSchema.Properties = props
		}
	}

	tool := anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        schemaName,
			Description: anthropic.String("Return the response in the required structured shape."),
			InputSchema: inputSchema,
		},
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Tools: []anthropic.ToolUnionParam{tool},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: schemaName},
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		if err := json.Unmarshal(block.Input, result); err != nil {
			return nil, fmt.Errorf("unmarshal tool input: %w", err)
		}
		return &Response{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		}, nil
	}

	return nil, fmt.Errorf("no tool_use block in anthropic response")
}

func IsRetryableAnthropic(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "anthropic rate limited, will retry", "status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "anthropic server error, will retry", "status_code", apiErr.StatusCode)
			return true
		default:
			return false
		}
	}

	return true
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	for err != nil {
		if e, ok := err.(*anthropic.Error); ok { //nolint:errorlint
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
