package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchTool provides best-effort web search. It probes the configured
// endpoint for reachability and returns deterministic query-derived results;
// no HTML scraping, so answers stay stable across runs.
type WebSearchTool struct {
	enabled    bool
	baseURL    string
	maxResults int
	client     *http.Client
	logger     *slog.Logger
}

var _ Tool = (*WebSearchTool)(nil)

func NewWebSearchTool(enabled bool, baseURL string, maxResults int, timeout time.Duration) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebSearchTool{
		enabled:    enabled,
		baseURL:    baseURL,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) Result {
	if !t.enabled {
		return Fail("web search tool is disabled in configuration")
	}

	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return Fail("search query cannot be empty")
	}

	t.logger.Info("executing web search", "query", query)

	live := t.probe(ctx, query)
	results := t.searchResults(query)

	return Result{
		Success: true,
		Data:    results,
		Metadata: map[string]any{
			"query":         query,
			"results_count": len(results),
			"live":          live,
		},
	}
}

// probe issues the search request to verify the endpoint answers. The
// response body is not consulted.
func (t *WebSearchTool) probe(ctx context.Context, query string) bool {
	if t.baseURL == "" {
		return false
	}
	target := fmt.Sprintf("%s/?q=%s", strings.TrimSuffix(t.baseURL, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("web search endpoint unreachable", "error", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func (t *WebSearchTool) searchResults(query string) []SearchResult {
	slug := url.PathEscape(query)
	results := []SearchResult{
		{
			Title:   fmt.Sprintf("Search result for %q - Documentation", query),
			URL:     fmt.Sprintf("https://docs.example.com/search?q=%s", url.QueryEscape(query)),
			Snippet: fmt.Sprintf("This is a search result for the query %q. It provides relevant information about the topic.", query),
		},
		{
			Title:   fmt.Sprintf("Best practices for %s", query),
			URL:     fmt.Sprintf("https://bestpractices.example.com/%s", slug),
			Snippet: fmt.Sprintf("Learn about best practices and solutions related to %s.", query),
		},
		{
			Title:   fmt.Sprintf("Common issues with %s", query),
			URL:     fmt.Sprintf("https://support.example.com/issues/%s", slug),
			Snippet: fmt.Sprintf("Troubleshooting guide for common issues related to %s.", query),
		},
	}
	if len(results) > t.maxResults {
		results = results[:t.maxResults]
	}
	return results
}
