package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nkosler/opsdesk/internal/index"
	"github.com/nkosler/opsdesk/internal/llm"
	"github.com/nkosler/opsdesk/internal/tools"
)

// Specialist answers queries for one domain: it gathers retrieval context
// through the tool layer, then asks the LLM for a grounded answer.
type Specialist struct {
	name     string
	domain   index.Domain
	system   string
	failure  string
	llm      Generator
	model    string
	registry ToolExecutor
	logger   *slog.Logger
}

func NewITSpecialist(gen Generator, model string, registry ToolExecutor) *Specialist {
	return &Specialist{
		name:     "IT Agent",
		domain:   index.DomainIT,
		system:   itSystemPrompt,
		failure:  "I'm experiencing technical difficulties with processing your IT query. Please try again later.",
		llm:      gen,
		model:    model,
		registry: registry,
		logger:   slog.Default(),
	}
}

func NewFinanceSpecialist(gen Generator, model string, registry ToolExecutor) *Specialist {
	return &Specialist{
		name:     "Finance Agent",
		domain:   index.DomainFinance,
		system:   financeSystemPrompt,
		failure:  "I'm experiencing technical difficulties with processing your finance query. Please try again later.",
		llm:      gen,
		model:    model,
		registry: registry,
		logger:   slog.Default(),
	}
}

func (s *Specialist) Name() string { return s.name }

// Process answers a domain query. Both tool calls are attempted independently
// and recorded whether they succeed or not; only an LLM failure makes the
// response unsuccessful.
func (s *Specialist) Process(ctx context.Context, query string) Response {
	s.logger.Info("specialist processing query", "agent", s.name, "query", query)

	var toolCalls []ToolCall
	var contextBuf strings.Builder

	rag := s.registry.Execute(ctx, "rag_search", map[string]any{"query": query, "domain": string(s.domain)})
	if rag.Success {
		text, _ := rag.Data.(string)
		fmt.Fprintf(&contextBuf, "Internal %s Documentation:\n%s\n\n", strings.TrimSuffix(s.name, " Agent"), text)

		sources, _ := rag.Metadata["sources"].([]string)
		chunksFound, _ := rag.Metadata["chunks_found"].(int)
		scores, _ := rag.Metadata["similarity_scores"].([]float32)
		toolCalls = append(toolCalls, ToolCall{
			Tool:    "rag_search",
			Success: true,
			Result:  fmt.Sprintf("Found %d relevant sections from %d documents", chunksFound, len(sources)),
			Sources: sources,
			Scores:  scores,
		})
	} else {
		toolCalls = append(toolCalls, ToolCall{
			Tool:    "rag_search",
			Success: false,
			Result:  fmt.Sprintf("Document search failed: %s", rag.Error),
		})
	}

	web := s.registry.Execute(ctx, "web_search", map[string]any{"query": query})
	if web.Success {
		results, _ := web.Data.([]tools.SearchResult)
		contextBuf.WriteString("External Resources:\n")
		contextBuf.WriteString(formatWebResults(results))
		contextBuf.WriteString("\n")
		toolCalls = append(toolCalls, ToolCall{
			Tool:    "web_search",
			Success: true,
			Result:  fmt.Sprintf("Found %d relevant web results", len(results)),
		})
	} else {
		toolCalls = append(toolCalls, ToolCall{
			Tool:    "web_search",
			Success: false,
			Result:  fmt.Sprintf("Web search failed: %s", web.Error),
		})
	}

	succeeded := 0
	for _, tc := range toolCalls {
		if tc.Success {
			succeeded++
		}
	}
	gathered := contextBuf.String()

	meta := map[string]any{
		"domain":          string(s.domain),
		"tools_used":      len(toolCalls),
		"tools_succeeded": succeeded,
		"context_chars":   len(gathered),
	}

	user := fmt.Sprintf(`User Query: %s

Relevant Context from Internal Documents:
%s
Please provide a comprehensive support response based on the retrieved documents.
If you reference specific procedures or policies, mention the source document name.`, query, gathered)

	answer, err := s.llm.Chat(ctx, s.model, []llm.Message{
		{Role: llm.RoleSystem, Content: s.system},
		{Role: llm.RoleUser, Content: user},
	})
	if err != nil {
		s.logger.Error("specialist LLM call failed", "agent", s.name, "error", err)
		return Response{
			Success:   false,
			Message:   s.failure,
			AgentName: s.name,
			ToolCalls: toolCalls,
			Metadata:  meta,
		}
	}

	s.logger.Info("specialist completed query", "agent", s.name, "tools_succeeded", succeeded)
	return Response{
		Success:   true,
		Message:   answer,
		AgentName: s.name,
		ToolCalls: toolCalls,
		Metadata:  meta,
	}
}

func formatWebResults(results []tools.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   URL: %s\n\n", i+1, r.Title, r.Snippet, r.URL)
	}
	return b.String()
}
