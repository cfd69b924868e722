package llmgateway_test

import (
	"context"
	"encoding/json"
	"errors"

	"deepquery.app/engine/common/llm"
	"deepquery.app/engine/internal/errs"
	"deepquery.app/engine/internal/llmgateway"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockLLMClient struct {
	chatFn    func(ctx context.Context, req llm.Request, result any) (*llm.Response, error)
	callCount int
}

func (m *mockLLMClient) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.callCount++
	if m.chatFn != nil {
		return m.chatFn(ctx, req, result)
	}
	return nil, errors.New("mock not configured")
}

func (m *mockLLMClient) Model() string { return "test-model" }

func textReply(text string) func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	return func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
		data, _ := json.Marshal(map[string]string{"text": text})
		_ = json.Unmarshal(data, result)
		return &llm.Response{}, nil
	}
}

var _ = Describe("Gateway", func() {
	var (
		mock *mockLLMClient
		gw   llmgateway.Gateway
		ctx  context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = &mockLLMClient{}
		gw = llmgateway.New(mock)
	})

	Describe("Generate", func() {
		It("returns the text field on the first successful attempt", func() {
			mock.chatFn = textReply("hello world")

			got, err := gw.Generate(ctx, llmgateway.Request{Prompt: "hi", MaxTokens: 100})

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("hello world"))
			Expect(mock.callCount).To(Equal(1))
		})

		It("retries a transient network error and succeeds", func() {
			attempts := 0
			mock.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
				attempts++
				if attempts < 2 {
					return nil, errors.New("connection reset")
				}
				return textReply("recovered")(ctx, req, result)
			}

			got, err := gw.Generate(ctx, llmgateway.Request{Prompt: "hi"})

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("recovered"))
			Expect(mock.callCount).To(Equal(2))
		})

		It("fails immediately on a non-retryable error without retrying", func() {
			mock.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
				return nil, context.Canceled
			}

			_, err := gw.Generate(ctx, llmgateway.Request{Prompt: "hi"})

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, errs.ErrBackend)).To(BeTrue())
			Expect(mock.callCount).To(Equal(1))
		})

		It("returns a retryable rate-limit error once every attempt is exhausted", func() {
			mock.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
				return nil, errors.New("connection refused")
			}

			_, err := gw.Generate(ctx, llmgateway.Request{Prompt: "hi"})

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, errs.ErrRateLimit)).To(BeTrue())
			Expect(errs.IsRetryable(err)).To(BeTrue())
			Expect(mock.callCount).To(Equal(3))
		})
	})
})
