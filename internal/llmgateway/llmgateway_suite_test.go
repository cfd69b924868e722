package llmgateway_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLLMGateway(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LLM Gateway Suite")
}
