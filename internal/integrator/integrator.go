// Package integrator implements component K: collapse a complete
// ReasoningTree into a single composite deep question via hierarchical
// fusion, deepest nodes first.
//
// Grounded on internal/brain/spec_generator.go's bottom-up text-assembly
// shape, adapted from markdown-spec generation to natural-language
// question fusion.
package integrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
)

// Strategy selects one of the two integration approaches spec.md §6 and
// §4.K recognize.
type Strategy string

const (
	// StrategyHierarchicalFusion rewrites the chain into a single natural
	// paragraph, replacing each ancestor keyword with a paraphrase derived
	// from its child's question.
	StrategyHierarchicalFusion Strategy = "hierarchical_fusion"
	// StrategyKeywordReplacement builds the composite question by splicing
	// each child's question clause in place of the literal keyword it
	// targets, rather than re-paraphrasing the whole chain.
	StrategyKeywordReplacement Strategy = "keyword_replacement"
)

type Integrator struct {
	gateway  llmgateway.Gateway
	strategy Strategy
}

// New builds an Integrator using the hierarchical_fusion strategy, the
// default of spec.md §6.
func New(gateway llmgateway.Gateway) *Integrator {
	return &Integrator{gateway: gateway, strategy: StrategyHierarchicalFusion}
}

// NewWithStrategy builds an Integrator using an explicit INTEGRATION_STRATEGY
// value; an unrecognized value falls back to hierarchical_fusion.
func NewWithStrategy(gateway llmgateway.Gateway, strategy Strategy) *Integrator {
	if strategy != StrategyKeywordReplacement {
		strategy = StrategyHierarchicalFusion
	}
	return &Integrator{gateway: gateway, strategy: strategy}
}

type verificationResponse struct {
	Text              string  `json:"text"`
	SingleAnswer      bool    `json:"single_answer"`
	NoAnswerLeakage   bool    `json:"no_answer_leakage"`
	EncodesAllClauses bool    `json:"encodes_all_clauses"`
	Confidence        float64 `json:"confidence"`
}

// Integrate runs the Integrator's configured strategy over tree and returns the
// IntegratedQuery, or nil if LLM verification fails (the tree is still
// exported, just without an integrated query).
func (in *Integrator) Integrate(ctx context.Context, tree model.ReasoningTree) *model.IntegratedQuery {
	root, ok := tree.Nodes[tree.RootNodeID]
	if !ok {
		return nil
	}

	ordered := orderDeepestFirst(tree)
	if len(ordered) <= 1 {
		return nil // integrated_query is only populated when len(Nodes) > 1
	}

	reasoningPath := make([]string, 0, len(ordered))
	componentQuestions := make([]string, 0, len(ordered))
	confidence := 1.0
	for _, n := range ordered {
		reasoningPath = append(reasoningPath, describeStep(n))
		componentQuestions = append(componentQuestions, n.Question.Text)
		confidence *= overallNodeScore(n)
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	text, err := in.gateway.Generate(ctx, llmgateway.Request{
		SystemPrompt: systemPromptFor(in.strategy),
		Prompt:       buildPrompt(in.strategy, root, ordered),
		Temperature:  0.3,
		MaxTokens:    600,
	})
	if err != nil {
		slog.WarnContext(ctx, "integration backend failure", "tree_id", tree.TreeID, "error", err)
		return nil
	}

	var resp verificationResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		slog.WarnContext(ctx, "integration parse failure", "tree_id", tree.TreeID, "error", err)
		return nil
	}

	if !resp.SingleAnswer || !resp.NoAnswerLeakage || !resp.EncodesAllClauses {
		return nil
	}
	if strings.Contains(strings.ToLower(resp.Text), strings.ToLower(root.Question.ExpectedAnswer)) {
		return nil
	}

	return &model.IntegratedQuery{
		Text:               resp.Text,
		RootAnswer:         root.Question.ExpectedAnswer,
		ReasoningPath:      reasoningPath,
		ComponentQuestions: componentQuestions,
		Confidence:         confidence,
		ComplexityScore:    len(ordered) - 1, // number of extension nodes, excluding the root
	}
}

func orderDeepestFirst(tree model.ReasoningTree) []model.TreeNode {
	nodes := make([]model.TreeNode, 0, len(tree.Nodes))
	for _, n := range tree.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth > nodes[j].Depth
		}
		return nodes[i].NodeID < nodes[j].NodeID
	})
	return nodes
}

func describeStep(n model.TreeNode) string {
	return fmt.Sprintf("%s -> %s", n.Question.Text, n.Question.ExpectedAnswer)
}

func overallNodeScore(n model.TreeNode) float64 {
	s := n.ValidationScores
	score := (s.Hierarchy + s.Shortcut + s.DualModel) / 3
	if score <= 0 {
		return 1 // root has no validation scores yet; don't zero the product
	}
	return score
}

func buildPrompt(strategy Strategy, root model.TreeNode, ordered []model.TreeNode) string {
	var sb strings.Builder
	sb.WriteString("## Root question\n" + root.Question.Text + "\n\n## Root answer\n" + root.Question.ExpectedAnswer + "\n\n## Extension chain, deepest first\n")
	for _, n := range ordered {
		if n.NodeID == root.NodeID {
			continue
		}
		sb.WriteString(fmt.Sprintf("- (%s) %s => %s\n", n.ExtensionType, n.Question.Text, n.Question.ExpectedAnswer))
	}

	switch strategy {
	case StrategyKeywordReplacement:
		sb.WriteString("\nFor each extension, splice its question as a parenthetical clause directly in place of the literal " +
			"keyword it targets inside the root question, working outward from the deepest extension, instead of rewriting " +
			"the whole chain as new prose. The result must still read as one single question whose only correct answer is the " +
			"root answer. Do not include the root answer's literal text. Verify the result encodes every intermediate question's " +
			"constraint implicitly. " +
			"Return JSON: {\"text\":..., \"single_answer\":bool, \"no_answer_leakage\":bool, \"encodes_all_clauses\":bool, \"confidence\":0-1}")
	default:
		sb.WriteString("\nReplace each ancestor keyword with a natural-language paraphrase derived from its child's question, " +
			"producing one single paragraph whose only correct answer is the root answer. " +
			"Do not include the root answer's literal text. Verify the result encodes every intermediate question's constraint implicitly. " +
			"Return JSON: {\"text\":..., \"single_answer\":bool, \"no_answer_leakage\":bool, \"encodes_all_clauses\":bool, \"confidence\":0-1}")
	}
	return sb.String()
}

func systemPromptFor(strategy Strategy) string {
	if strategy == StrategyKeywordReplacement {
		return `You fuse a chain of nested research questions into a single, deeply layered question whose unique answer is the root answer, by splicing each extension's question in place of the keyword it replaces rather than re-paraphrasing the whole chain. You never leak the root answer's literal text. You write only valid JSON.`
	}
	return `You fuse a chain of nested research questions into a single, deeply layered question whose unique answer is the root answer. You never leak the root answer's literal text. You write only valid JSON.`
}
