package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration for the engine.
type Config struct {
	// Env is the environment name (development, staging, production)
	Env string

	// Port is the HTTP server port
	Port string

	// DB holds relational store configuration (trees, trajectories)
	DB DBConfig

	// Graph holds the ArangoDB graph store configuration (tree nodes/edges)
	Graph GraphConfig

	// Pipeline holds the redis-stream ingestion configuration
	Pipeline PipelineConfig

	// LLM holds the LLM gateway configuration (both vendors)
	LLM LLMConfig

	// Search holds the search gateway configuration
	Search SearchConfig

	// OTel holds tracing/logging export configuration
	OTel OTelConfig

	// Tree holds the tree-building budgets and thresholds (spec.md §6)
	Tree TreeConfig
}

// DBConfig configures the pgx pool backing the relational store.
type DBConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// GraphConfig configures the ArangoDB client backing the graph store.
type GraphConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

// PipelineConfig configures the redis-stream consumer that drives the orchestrator.
type PipelineConfig struct {
	RedisURL        string
	RedisStream     string
	RedisGroup      string
	RedisConsumer   string
	DLQStream       string
	TraceHeaderName string
}

// LLMConfig configures both LLM Gateway backends.
type LLMConfig struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
}

// SearchConfig configures the Search Gateway's typesense-backed snippet store.
type SearchConfig struct {
	TypesenseURL        string
	TypesenseAPIKey     string
	SnippetsCollection string
}

// OTelConfig configures the OTLP exporters.
//
// The teacher's own source referenced config.OTelConfig from common/otel and
// common/logger without ever defining it — we finish wiring it here the way
// the rest of the teacher's config surface is shaped.
type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// TreeConfig holds the budgets and thresholds from spec.md §6.
type TreeConfig struct {
	DepthMax             int
	BranchMax            int
	RetriesPerNode       int
	LLMCallsPerDoc       int
	SearchCallsPerDoc    int
	ValidityThreshold    float64
	UniquenessThreshold  float64
	OverallThreshold     float64
	QuestionTypesAllowed []string
	IntegrationStrategy  string
	MinAnswerLen         int
	MaxAnswerLen         int
}

// Load loads configuration from environment variables, with sensible
// development defaults.
func Load() Config {
	return Config{
		Env:  getEnv("ENGINE_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: DBConfig{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Graph: GraphConfig{
			URL:      getEnv("ARANGO_URL", "http://localhost:8529"),
			Username: getEnv("ARANGO_USERNAME", "root"),
			Password: getEnv("ARANGO_PASSWORD", ""),
			Database: getEnv("ARANGO_DATABASE", "deepquery"),
		},
		Pipeline: PipelineConfig{
			RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisStream:     getEnv("REDIS_STREAM", "deepquery:documents"),
			RedisGroup:      getEnv("REDIS_GROUP", "engine-workers"),
			RedisConsumer:   getEnv("REDIS_CONSUMER", hostnameOrDefault()),
			DLQStream:       getEnv("REDIS_DLQ_STREAM", "deepquery:documents:dlq"),
			TraceHeaderName: getEnv("TRACE_HEADER_NAME", "X-Trace-Id"),
		},
		LLM: LLMConfig{
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250514"),
		},
		Search: SearchConfig{
			TypesenseURL:       getEnv("TYPESENSE_URL", "http://localhost:8108"),
			TypesenseAPIKey:    getEnv("TYPESENSE_API_KEY", ""),
			SnippetsCollection: getEnv("TYPESENSE_SNIPPETS_COLLECTION", "web_snippets"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "deepquery-engine"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Tree: TreeConfig{
			DepthMax:             getEnvInt("DEPTH_MAX", 3),
			BranchMax:            getEnvInt("BRANCH_MAX", 2),
			RetriesPerNode:       getEnvInt("RETRIES_PER_NODE", 2),
			LLMCallsPerDoc:       getEnvInt("LLM_CALLS_PER_DOC", 60),
			SearchCallsPerDoc:    getEnvInt("SEARCH_CALLS_PER_DOC", 10),
			ValidityThreshold:    getEnvFloat("VALIDITY_THRESHOLD", 0.6),
			UniquenessThreshold:  getEnvFloat("UNIQUENESS_THRESHOLD", 0.6),
			OverallThreshold:     getEnvFloat("OVERALL_THRESHOLD", 0.65),
			QuestionTypesAllowed: getEnvList("QUESTION_TYPES_ALLOWED", []string{"what", "which", "who", "when", "where"}),
			IntegrationStrategy:  getEnv("INTEGRATION_STRATEGY", "hierarchical_fusion"),
			MinAnswerLen:         getEnvInt("MIN_ANSWER_LEN", 2),
			MaxAnswerLen:         getEnvInt("MAX_ANSWER_LEN", 50),
		},
	}
}

// buildDSN constructs the relational store connection string from individual env vars.
func buildDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "deepquery")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "worker-1"
	}
	return h
}
