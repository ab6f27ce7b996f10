package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nkosler/opsdesk/internal/agent"
	"github.com/nkosler/opsdesk/internal/config"
	"github.com/nkosler/opsdesk/internal/index"
	"github.com/nkosler/opsdesk/internal/llm"
	"github.com/nkosler/opsdesk/internal/tools"
	"github.com/nkosler/opsdesk/internal/validate"
	"github.com/nkosler/opsdesk/internal/workflow"
)

// app bundles the wired components shared by the serve, query, and index
// commands.
type app struct {
	cfg      config.Config
	client   *llm.Client
	manager  *index.Manager
	executor *workflow.Executor
}

// embedder binds the embedding model and bounds every backend call with the
// configured timeout.
type embedder struct {
	client  *llm.Client
	model   string
	timeout time.Duration
}

func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.client.Embed(ctx, e.model, texts)
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func setupLogging(cfg config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func buildApp(cfg config.Config) *app {
	client := llm.New(cfg.LLM.BaseURL)

	manager := index.NewManager(
		&embedder{client: client, model: cfg.LLM.EmbedModel, timeout: cfg.Index.EmbedTimeout},
		index.Options{
			Sources:        index.DefaultSources(cfg.Documents.ITPath, cfg.Documents.FinancePath),
			CacheDir:       cfg.Index.CacheDir,
			ChunkSize:      cfg.Index.ChunkSize,
			ChunkOverlap:   cfg.Index.ChunkOverlap,
			MinChunkChars:  cfg.Index.MinChunkChars,
			EmbedBatchSize: cfg.Index.EmbedBatchSize,
			EmbedBatchGap:  cfg.Index.EmbedBatchGap,
			TopK:           cfg.Index.TopK,
			ContextBudget:  cfg.Index.ContextBudget,
		},
	)

	registry := tools.NewRegistry(
		tools.NewRAGSearchTool(manager, cfg.Index.TopK, cfg.Index.ContextBudget),
		tools.NewWebSearchTool(cfg.Tools.WebSearch.Enabled, cfg.Tools.WebSearch.BaseURL, cfg.Tools.WebSearch.MaxResults, cfg.Tools.WebSearch.Timeout),
	)

	supervisor := agent.NewSupervisor(client, cfg.LLM.ChatModel)
	it := agent.NewITSpecialist(client, cfg.LLM.ChatModel, registry)
	finance := agent.NewFinanceSpecialist(client, cfg.LLM.ChatModel, registry)

	validator := validate.New(cfg.Validation.MinQueryLength, cfg.Validation.MaxQueryLength, cfg.Validation.AllowedChars)
	executor := workflow.NewExecutor(validator, supervisor, it, finance)

	return &app{cfg: cfg, client: client, manager: manager, executor: executor}
}
