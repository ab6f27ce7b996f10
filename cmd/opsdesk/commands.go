package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nkosler/opsdesk/internal/index"
)

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a support query and print the answer",
	Long: `Run a support query through the routing workflow and print the answer.

Examples:
  opsdesk query "How do I reset my password?"
  opsdesk query --json "What is the expense report deadline?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		query := strings.Join(args, " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app := buildApp(cfg)
		if !app.client.IsRunning(ctx) {
			printWarning("LLM backend not reachable at %s", cfg.LLM.BaseURL)
		}

		out := app.executor.Process(ctx, query)

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Println(out.Response)

		if path, ok := out.Metadata["processing_path"].([]string); ok {
			printStatus("Path", "%s", strings.Join(path, " → "))
		}
		if routing, ok := out.Metadata["routing_decision"].(string); ok && routing != "" {
			printStatus("Routing", "%s", routing)
		}
		if !out.Success {
			printError("query failed: %s", out.Error)
			return fmt.Errorf("query failed")
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().Bool("json", false, "print the full outcome as JSON")
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the document indexes",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build any missing domain indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ctx, err := indexApp()
		if err != nil {
			return err
		}

		printStep("Building indexes...")
		if err := app.manager.EnsureAll(ctx); err != nil {
			return fmt.Errorf("building indexes: %w", err)
		}
		printIndexStatus(app)
		printSuccess("Indexes ready")
		return nil
	},
}

var indexRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild indexes from the source documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		domainFlag, _ := cmd.Flags().GetString("domain")

		app, ctx, err := indexApp()
		if err != nil {
			return err
		}

		switch domainFlag {
		case "", "both":
			printStep("Refreshing all indexes...")
			err = app.manager.RefreshAll(ctx)
		default:
			domain := index.Domain(domainFlag)
			if !domain.Valid() {
				return fmt.Errorf("unsupported domain %q (want %q, %q, or %q)",
					domainFlag, index.DomainIT, index.DomainFinance, "both")
			}
			printStep("Refreshing %s index...", domain)
			err = app.manager.Refresh(ctx, domain)
		}
		if err != nil {
			return fmt.Errorf("refreshing indexes: %w", err)
		}

		printIndexStatus(app)
		printSuccess("Refresh complete")
		return nil
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-domain index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := indexApp()
		if err != nil {
			return err
		}
		printIndexStatus(app)
		return nil
	},
}

func init() {
	indexRefreshCmd.Flags().String("domain", "both", "domain to refresh: it, finance, or both")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexRefreshCmd)
	indexCmd.AddCommand(indexStatusCmd)
}

func indexApp() (*app, context.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	_ = stop // released on process exit

	return buildApp(cfg), ctx, nil
}

func printIndexStatus(a *app) {
	for _, st := range a.manager.AllStatus() {
		detail := fmt.Sprintf("%s (%d chunks)", st.State, st.Chunks)
		if st.Degraded {
			detail += ", degraded"
		}
		printStatus(string(st.Domain), "%s", detail)
	}
}
