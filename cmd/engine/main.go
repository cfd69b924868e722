// Command engine is the batch CLI of spec.md §5: process one topic
// end-to-end, in-process, with no redis/HTTP surface, and print the
// resulting tree(s) as JSON — useful for local iteration on prompts and
// thresholds without standing up the full pipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"deepquery.app/engine/common/id"
	"deepquery.app/engine/common/llm"
	"deepquery.app/engine/common/logger"
	"deepquery.app/engine/core/config"
	"deepquery.app/engine/internal/childquestion"
	"deepquery.app/engine/internal/documentloader"
	"deepquery.app/engine/internal/extension"
	"deepquery.app/engine/internal/integrator"
	"deepquery.app/engine/internal/keywordhierarchy"
	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/model"
	"deepquery.app/engine/internal/orchestrator"
	"deepquery.app/engine/internal/rootquestion"
	"deepquery.app/engine/internal/searchgateway"
	"deepquery.app/engine/internal/shortanswer"
	"deepquery.app/engine/internal/validator"
)

func main() {
	topicID := flag.String("topic", "space-telescopes", "topic id to process")
	docID := flag.String("doc", "doc-1", "document id within the topic to build a tree for")
	flag.Parse()

	ctx := context.Background()
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Setup(cfg)

	if err := id.Init(3); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	if cfg.LLM.OpenAIAPIKey == "" || cfg.LLM.AnthropicAPIKey == "" {
		slog.ErrorContext(ctx, "OPENAI_API_KEY and ANTHROPIC_API_KEY are both required")
		os.Exit(1)
	}

	openaiClient, err := llm.New(llm.Config{APIKey: cfg.LLM.OpenAIAPIKey, BaseURL: cfg.LLM.OpenAIBaseURL, Model: cfg.LLM.OpenAIModel})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create openai client", "error", err)
		os.Exit(1)
	}
	anthropicClient, err := llm.NewAnthropic(llm.Config{APIKey: cfg.LLM.AnthropicAPIKey, Model: cfg.LLM.AnthropicModel})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create anthropic client", "error", err)
		os.Exit(1)
	}

	primaryGateway := llmgateway.New(openaiClient)
	secondaryGateway := llmgateway.New(anthropicClient)
	searchGW := searchgateway.New(cfg.Search.TypesenseURL, cfg.Search.TypesenseAPIKey, cfg.Search.SnippetsCollection)

	orch := orchestrator.New(
		shortanswer.New(primaryGateway),
		rootquestion.New(primaryGateway),
		validator.New(primaryGateway, secondaryGateway, validator.Thresholds{
			Validity:   cfg.Tree.ValidityThreshold,
			Uniqueness: cfg.Tree.UniquenessThreshold,
			Overall:    cfg.Tree.OverallThreshold,
		}),
		keywordhierarchy.New(primaryGateway),
		extension.New(searchGW, primaryGateway),
		childquestion.New(primaryGateway),
		integrator.NewWithStrategy(primaryGateway, integrator.Strategy(cfg.Tree.IntegrationStrategy)),
	)

	budget := orchestrator.Budget{
		DepthMax:          cfg.Tree.DepthMax,
		BranchMax:         cfg.Tree.BranchMax,
		RetriesPerNode:    cfg.Tree.RetriesPerNode,
		LLMCallsPerDoc:    cfg.Tree.LLMCallsPerDoc,
		SearchCallsPerDoc: cfg.Tree.SearchCallsPerDoc,
		WallClockCap:      2 * time.Minute,
	}

	loader := documentloader.NewInMemory()
	loader.Seed("space-telescopes", "doc-1",
		"The James Webb Space Telescope succeeded Hubble and was launched in 2021 by NASA. "+
			"It observes in infrared and orbits near the second Lagrange point, roughly 1.5 million "+
			"kilometers from Earth, unlike Hubble's low Earth orbit.")

	docs, err := loader.IterTopic(ctx, *topicID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load topic", "topic_id", *topicID, "error", err)
		os.Exit(1)
	}

	var target *model.Document
	for i := range docs {
		if docs[i].DocID == *docID {
			target = &docs[i]
			break
		}
	}
	if target == nil {
		slog.ErrorContext(ctx, "document not found in topic", "topic_id", *topicID, "document_id", *docID)
		os.Exit(1)
	}

	treeID := id.New()
	tree, trajectory, err := orch.BuildTree(ctx, *target, budget, treeID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build tree", "error", err)
		os.Exit(1)
	}

	out := struct {
		Tree       any `json:"tree"`
		Trajectory any `json:"trajectory"`
	}{Tree: tree, Trajectory: trajectory}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.ErrorContext(ctx, "failed to encode output", "error", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "built tree %d: %d nodes, %d llm calls, %d web searches\n",
		tree.TreeID, len(tree.Nodes), tree.Stats.LLMCalls, tree.Stats.WebSearches)
}
