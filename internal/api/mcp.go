package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nkosler/opsdesk/internal/index"
)

// NewMCPServer creates an MCP server exposing the support workflow and the
// document indexes as tools.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"opsdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("opsdesk: IT and Finance support desk backed by internal documentation."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("support_query",
			mcp.WithDescription("Answer an IT or Finance support question. The query is routed to the right specialist and grounded in internal documentation."),
			mcp.WithString("query", mcp.Description("The support question"), mcp.Required()),
		),
		mcpSupportQuery(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search one domain's internal documents and return matching chunks with similarity scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("domain", mcp.Description("Document domain: \"it\" or \"finance\""), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("refresh_index",
			mcp.WithDescription("Rebuild the document index for one domain, or both when no domain is given."),
			mcp.WithString("domain", mcp.Description("Document domain: \"it\", \"finance\", or \"both\"")),
		),
		mcpRefreshIndex(deps),
	)

	return s
}

func mcpSupportQuery(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		out := deps.Processor.Process(ctx, query)
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal outcome: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		domainArg, err := req.RequireString("domain")
		if err != nil {
			return mcpError("domain is required"), nil
		}
		domain := index.Domain(domainArg)
		if !domain.Valid() {
			return mcpError(fmt.Sprintf("unsupported domain %q", domainArg)), nil
		}

		topK := req.GetInt("top_k", 5)
		if topK <= 0 {
			topK = 5
		}
		if topK > 50 {
			topK = 50
		}

		chunks, err := deps.Index.Search(ctx, domain, query, topK)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID     string  `json:"id"`
			Source string  `json:"source"`
			Text   string  `json:"text"`
			Score  float32 `json:"score"`
		}
		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{ID: c.ID, Source: c.Source, Text: c.Text, Score: c.Score}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRefreshIndex(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		domainArg := req.GetString("domain", "both")

		switch domainArg {
		case "", "both":
			if err := deps.Index.RefreshAll(ctx); err != nil {
				return mcpError(fmt.Sprintf("refresh failed: %v", err)), nil
			}
			return mcpText("Refreshed both domain indexes"), nil
		default:
			domain := index.Domain(domainArg)
			if !domain.Valid() {
				return mcpError(fmt.Sprintf("unsupported domain %q", domainArg)), nil
			}
			if err := deps.Index.Refresh(ctx, domain); err != nil {
				return mcpError(fmt.Sprintf("refresh failed: %v", err)), nil
			}
			return mcpText(fmt.Sprintf("Refreshed %s domain index", domain)), nil
		}
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
