package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/lectern-ai/lectern/internal/adapters/duckdb"
	"github.com/lectern-ai/lectern/internal/adapters/index"
	"github.com/lectern-ai/lectern/internal/adapters/providers"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/core/domain"
	"github.com/lectern-ai/lectern/internal/core/services"
	"github.com/lectern-ai/lectern/pkg/kernel"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting lectern kernel")

	if err := run(logger); err != nil {
		logger.Error("kernel startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgPath := os.Getenv("LECTERN_CONFIG")
	if cfgPath == "" {
		cfgPath = "lectern.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := duckdb.NewRepository(cfg.Trace.DBPath)
	if err != nil {
		return fmt.Errorf("init trace repository: %w", err)
	}
	defer repo.Close()

	llmProvider, embedder, err := providers.Build(cfg.Provider)
	if err != nil {
		return fmt.Errorf("init providers: %w", err)
	}

	// A missing index is a configuration error; fail before serving.
	store := index.NewStore(cfg.Index.IndexPath(), cfg.Index.MetaPath(), logger)
	if err := store.Load(); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	retriever := services.NewRetriever(logger, embedder, store, cfg.Index.QueryPrefix)

	registry := domain.NewToolRegistry()
	if err := services.RegisterRetrieveTool(registry, retriever, logger); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	agent := services.NewRAGAgent(
		logger,
		services.NewPlanner(logger, llmProvider, registry),
		registry,
		services.NewGenerator(logger, llmProvider),
		services.NewTraceCollector(logger, repo),
		cfg.Agent.MaxToolCalls,
	)

	server := kernel.NewServer(logger, agent, repo, kernel.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultTopK:    cfg.Agent.DefaultTopK,
	})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
