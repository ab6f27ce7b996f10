// Package api exposes the support workflow over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nkosler/opsdesk/internal/docs"
	"github.com/nkosler/opsdesk/internal/index"
	"github.com/nkosler/opsdesk/internal/workflow"
)

const maxRequestBodySize = 1 << 20 // 1MB

// QueryProcessor runs one query through the support workflow.
type QueryProcessor interface {
	Process(ctx context.Context, raw string) workflow.Outcome
}

// IndexAdmin is the index maintenance surface the API exposes.
type IndexAdmin interface {
	Refresh(ctx context.Context, domain index.Domain) error
	RefreshAll(ctx context.Context) error
	AllStatus() []index.Status
	Search(ctx context.Context, domain index.Domain, query string, topK int) ([]docs.Chunk, error)
}

// Deps holds the handler dependencies.
type Deps struct {
	Processor QueryProcessor
	Index     IndexAdmin
	Token     string // empty disables authentication
}

// NewHandler returns the HTTP API. Query and index routes require the bearer
// token when one is configured; health stays open.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/query", handleQuery(deps.Processor))
		r.Post("/index/refresh", handleRefresh(deps.Index))
		r.Get("/index/status", handleStatus(deps.Index))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleQuery(p QueryProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		out := p.Process(r.Context(), req.Query)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleRefresh(admin IndexAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Domain string `json:"domain"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var err error
		switch req.Domain {
		case "", "both":
			err = admin.RefreshAll(r.Context())
		default:
			domain := index.Domain(req.Domain)
			if !domain.Valid() {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported domain %q", req.Domain)
				return
			}
			err = admin.Refresh(r.Context(), domain)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "refresh failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "refreshed",
			"domains": admin.AllStatus(),
		})
	}
}

func handleStatus(admin IndexAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"domains": admin.AllStatus(),
		})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
