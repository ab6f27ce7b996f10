package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nkosler/opsdesk/internal/api"
	"github.com/nkosler/opsdesk/internal/index"
	"github.com/nkosler/opsdesk/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the opsdesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "opsdesk version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := buildApp(cfg)

	if !app.client.IsRunning(ctx) {
		printWarning("LLM backend not reachable at %s; queries will fail until it is up", cfg.LLM.BaseURL)
	}

	// Warm the indexes in the background so the first query does not pay the
	// full build cost. Failures degrade to lazy initialization on demand.
	go func() {
		if err := app.manager.EnsureAll(ctx); err != nil {
			slog.Warn("index warm-up failed", "error", err)
		}
	}()

	if cfg.Documents.Watch {
		w := watch.New(app.manager, map[index.Domain]string{
			index.DomainIT:      cfg.Documents.ITPath,
			index.DomainFinance: cfg.Documents.FinancePath,
		}, 2*time.Second)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("document watcher stopped", "error", err)
			}
		}()
	}

	deps := api.Deps{
		Processor: app.executor,
		Index:     app.manager,
		Token:     cfg.Server.Token,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// MCP over streamable HTTP on its own port.
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	mcpSrv := server.NewStreamableHTTPServer(api.NewMCPServer(deps))
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpSrv.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("MCP server error", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "opsdesk listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}
