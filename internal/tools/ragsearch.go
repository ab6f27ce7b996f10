package tools

import (
	"context"
	"log/slog"

	"github.com/nkosler/opsdesk/internal/docs"
	"github.com/nkosler/opsdesk/internal/index"
)

// DocumentSearcher is the slice of the index manager the RAG tool needs.
type DocumentSearcher interface {
	ContextFor(ctx context.Context, domain index.Domain, query string, budget int) (string, error)
	Search(ctx context.Context, domain index.Domain, query string, topK int) ([]docs.Chunk, error)
	Degraded(domain index.Domain) bool
}

// RAGSearchTool retrieves supporting context from a domain document index.
type RAGSearchTool struct {
	searcher DocumentSearcher
	topK     int
	budget   int
	logger   *slog.Logger
}

var _ Tool = (*RAGSearchTool)(nil)

func NewRAGSearchTool(searcher DocumentSearcher, topK, contextBudget int) *RAGSearchTool {
	return &RAGSearchTool{
		searcher: searcher,
		topK:     topK,
		budget:   contextBudget,
		logger:   slog.Default(),
	}
}

func (t *RAGSearchTool) Name() string { return "rag_search" }

// Execute runs a semantic search for args["query"] within args["domain"].
// Data carries the assembled context text; metadata carries the matched
// chunks' sources and similarity scores.
func (t *RAGSearchTool) Execute(ctx context.Context, args map[string]any) Result {
	query := stringArg(args, "query")
	if query == "" {
		return Fail("search query cannot be empty")
	}

	domain := index.Domain(stringArg(args, "domain"))
	if !domain.Valid() {
		return Fail("rag_search supports %q and %q domains only", index.DomainFinance, index.DomainIT)
	}

	t.logger.Info("executing document search", "domain", domain, "query", query)

	retrieved, err := t.searcher.ContextFor(ctx, domain, query, t.budget)
	if err != nil {
		t.logger.Error("document search failed", "domain", domain, "error", err)
		return Fail("document search failed: %v", err)
	}
	if retrieved == "" {
		return Fail("no relevant documents found for the query")
	}

	chunks, err := t.searcher.Search(ctx, domain, query, t.topK)
	if err != nil {
		return Fail("document search failed: %v", err)
	}

	sources := make([]string, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	scores := make([]float32, 0, len(chunks))
	for _, c := range chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
		scores = append(scores, c.Score)
	}

	meta := map[string]any{
		"query":             query,
		"domain":            string(domain),
		"chunks_found":      len(chunks),
		"sources":           sources,
		"similarity_scores": scores,
	}
	if t.searcher.Degraded(domain) {
		// Zero-vector substitutes are present; scores are unreliable.
		meta["degraded"] = true
	}

	t.logger.Info("document search found relevant chunks", "domain", domain, "chunks", len(chunks))
	return Result{Success: true, Data: retrieved, Metadata: meta}
}
