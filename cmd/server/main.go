package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"deepquery.app/engine/common/id"
	"deepquery.app/engine/common/logger"
	"deepquery.app/engine/common/otel"
	"deepquery.app/engine/core/config"
	"deepquery.app/engine/core/db"
	"deepquery.app/engine/internal/documentloader"
	"deepquery.app/engine/internal/httpapi"
	"deepquery.app/engine/internal/pipeline"
	"deepquery.app/engine/internal/store"
)

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg := config.Load()

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)
	fmt.Printf("%s\n", banner)

	slog.InfoContext(ctx, "deepquery engine server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
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
	slog.InfoContext(ctx, "database connected")

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

	producer := pipeline.NewProducer(redisClient, cfg.Pipeline.RedisStream)
	defer producer.Close()

	trees := store.NewTreeStore(database, nil)
	trajectories := store.NewTrajectoryStore(database)

	loader := documentloader.NewInMemory()
	seedDemoCorpus(loader)

	handler := httpapi.NewHandler(loader, producer, trees, trajectories)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		slog.ErrorContext(shutdownCtx, "redis close error", "error", err)
	}
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, handler *httpapi.Handler) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span -> Recovery catches panics.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(gin.Recovery())

	httpapi.SetupRoutes(router, handler)

	return router
}

// seedDemoCorpus registers the worked example from spec.md §8 scenario 1 so
// the server is runnable end-to-end without a real document loader wired
// up (that collaborator is out of scope per spec.md §1).
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
`
