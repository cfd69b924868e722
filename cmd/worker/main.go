package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"deepquery.app/engine/common/arangodb"
	"deepquery.app/engine/common/id"
	"deepquery.app/engine/common/llm"
	"deepquery.app/engine/common/logger"
	"deepquery.app/engine/core/config"
	"deepquery.app/engine/core/db"
	"deepquery.app/engine/internal/childquestion"
	"deepquery.app/engine/internal/circular"
	"deepquery.app/engine/internal/documentloader"
	"deepquery.app/engine/internal/extension"
	"deepquery.app/engine/internal/integrator"
	"deepquery.app/engine/internal/keywordhierarchy"
	"deepquery.app/engine/internal/llmgateway"
	"deepquery.app/engine/internal/orchestrator"
	"deepquery.app/engine/internal/pipeline"
	"deepquery.app/engine/internal/rootquestion"
	"deepquery.app/engine/internal/searchgateway"
	"deepquery.app/engine/internal/shortanswer"
	"deepquery.app/engine/internal/store"
	"deepquery.app/engine/internal/validator"
)

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Setup(cfg)
	fmt.Printf("%s\n", banner)

	slog.InfoContext(ctx, "deepquery engine worker starting",
		"env", cfg.Env, "consumer_group", cfg.Pipeline.RedisGroup, "consumer_name", cfg.Pipeline.RedisConsumer)

	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	if err := database.Ensure(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	consumer, err := pipeline.NewConsumer(redisClient, pipeline.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.DLQStream,
		BatchSize:    1,
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if cfg.LLM.OpenAIAPIKey == "" {
		slog.ErrorContext(ctx, "OPENAI_API_KEY is required for pipeline processing")
		os.Exit(1)
	}
	openaiClient, err := llm.New(llm.Config{
		APIKey: cfg.LLM.OpenAIAPIKey,
		BaseURL: cfg.LLM.OpenAIBaseURL,
		Model:  cfg.LLM.OpenAIModel,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create openai client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "openai client initialized", "model", cfg.LLM.OpenAIModel)

	if cfg.LLM.AnthropicAPIKey == "" {
		slog.ErrorContext(ctx, "ANTHROPIC_API_KEY is required for pipeline processing")
		os.Exit(1)
	}
	anthropicClient, err := llm.NewAnthropic(llm.Config{
		APIKey: cfg.LLM.AnthropicAPIKey,
		Model:  cfg.LLM.AnthropicModel,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create anthropic client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "anthropic client initialized", "model", cfg.LLM.AnthropicModel)

	primaryGateway := llmgateway.New(openaiClient)
	secondaryGateway := llmgateway.New(anthropicClient)

	searchGW := searchgateway.New(cfg.Search.TypesenseURL, cfg.Search.TypesenseAPIKey, cfg.Search.SnippetsCollection)

	arangoClient, err := arangodb.New(ctx, arangodb.Config{
		URL:      cfg.Graph.URL,
		Username: cfg.Graph.Username,
		Password: cfg.Graph.Password,
		Database: cfg.Graph.Database,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create arangodb client", "error", err)
		os.Exit(1)
	}
	if err := arangoClient.EnsureDatabase(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb database", "error", err)
		os.Exit(1)
	}
	if err := arangoClient.EnsureCollections(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb collections", "error", err)
		os.Exit(1)
	}
	if err := arangoClient.EnsureGraph(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb graph", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "arangodb connected", "database", cfg.Graph.Database)

	trees := store.NewTreeStore(database, arangoClient)
	trajectories := store.NewTrajectoryStore(database)

	extractor := shortanswer.New(primaryGateway)
	rootGen := rootquestion.New(primaryGateway)
	validate := validator.New(primaryGateway, secondaryGateway, validator.Thresholds{
		Validity:   cfg.Tree.ValidityThreshold,
		Uniqueness: cfg.Tree.UniquenessThreshold,
		Overall:    cfg.Tree.OverallThreshold,
	})
	hierarchy := keywordhierarchy.New(primaryGateway)
	synthesizer := extension.New(searchGW, primaryGateway)
	childGen := childquestion.New(primaryGateway)
	integrate := integrator.NewWithStrategy(primaryGateway, integrator.Strategy(cfg.Tree.IntegrationStrategy))

	orch := orchestrator.New(extractor, rootGen, validate, hierarchy, synthesizer, childGen, integrate)

	budget := orchestrator.Budget{
		DepthMax:          cfg.Tree.DepthMax,
		BranchMax:         cfg.Tree.BranchMax,
		RetriesPerNode:    cfg.Tree.RetriesPerNode,
		LLMCallsPerDoc:    cfg.Tree.LLMCallsPerDoc,
		SearchCallsPerDoc: cfg.Tree.SearchCallsPerDoc,
		WallClockCap:      2 * time.Minute,
	}

	loader := documentloader.NewInMemory()
	seedDemoCorpus(loader)

	processor := pipeline.NewProcessor(loader, orch, budget, trees, trajectories)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go runLoop(ctx, &wg, consumer, processor)

	slog.InfoContext(ctx, "worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown...")
	cancel()

	shutdownComplete := make(chan struct{})
	go func() {
		wg.Wait()
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		slog.InfoContext(ctx, "graceful shutdown completed")
	case <-time.After(30 * time.Second):
		slog.WarnContext(ctx, "shutdown timeout exceeded, forcing exit")
	}

	if err := arangoClient.Close(); err != nil {
		slog.ErrorContext(ctx, "arangodb close error", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		slog.ErrorContext(ctx, "redis close error", "error", err)
	}

	slog.InfoContext(ctx, "shutdown complete")
}

func runLoop(ctx context.Context, wg *sync.WaitGroup, consumer *pipeline.Consumer, processor *pipeline.Processor) {
	defer wg.Done()

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "engine.worker.loop"})
	slog.InfoContext(ctx, "worker loop started")

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "worker loop stopping")
			return
		default:
			jobs, err := consumer.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.ErrorContext(ctx, "failed to read from stream", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for _, job := range jobs {
				if ctx.Err() != nil {
					return
				}
				processJobSafe(ctx, consumer, processor, job)
			}
		}
	}
}

func processJobSafe(ctx context.Context, consumer *pipeline.Consumer, processor *pipeline.Processor, job pipeline.Job) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic recovered while processing job",
				"panic", rec, "stack", string(debug.Stack()), "duration_ms", time.Since(start).Milliseconds())
			if err := consumer.Requeue(ctx, job, fmt.Sprintf("panic: %v", rec)); err != nil {
				slog.ErrorContext(ctx, "failed to requeue after panic", "error", err)
			}
		}
	}()

	if err := processor.Process(ctx, job); err != nil {
		slog.ErrorContext(ctx, "job processing failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		if requeueErr := consumer.Requeue(ctx, job, err.Error()); requeueErr != nil {
			slog.ErrorContext(ctx, "failed to requeue job", "error", requeueErr)
		}
		return
	}

	if err := consumer.Ack(ctx, job); err != nil {
		slog.WarnContext(ctx, "failed to ack job", "error", err)
	}
	slog.InfoContext(ctx, "job processed successfully", "duration_ms", time.Since(start).Milliseconds())
}

// seedDemoCorpus mirrors the server's demo seed so a standalone worker can
// process jobs submitted against the same in-memory topic without a real
// document loader backend wired up (out of scope per spec.md §1).
func seedDemoCorpus(loader *documentloader.InMemoryLoader) {
	loader.Seed("space-telescopes", "doc-1",
		"The James Webb Space Telescope succeeded Hubble and was launched in 2021 by NASA. "+
			"It observes in infrared and orbits near the second Lagrange point, roughly 1.5 million "+
			"kilometers from Earth, unlike Hubble's low Earth orbit.")
}

const banner = `
██████╗ ███████╗███████╗██████╗  ██████╗ ██╗   ██╗███████╗██████╗ ██╗   ██╗
██╔══██╗██╔════╝██╔════╝██╔══██╗██╔═══██╗██║   ██║██╔════╝██╔══██╗╚██╗ ██╔╝
██║  ██║█████╗  █████╗  ██████╔╝██║   ██║██║   ██║█████╗  ██████╔╝ ╚████╔╝
██║  ██║██╔══╝  ██╔══╝  ██╔═══╝ ██║▄▄ ██║██║   ██║██╔══╝  ██╔══██╗  ╚██╔╝
██████╔╝███████╗███████╗██║     ╚██████╔╝╚██████╔╝███████╗██║  ██║   ██║
╚═════╝ ╚══════╝╚══════╝╚═╝      ╚══▀▀═╝  ╚═════╝ ╚══════╝╚═╝  ╚═╝   ╚═╝
 worker
`
