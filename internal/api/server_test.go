package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nkosler/opsdesk/internal/docs"
	"github.com/nkosler/opsdesk/internal/index"
	"github.com/nkosler/opsdesk/internal/workflow"
)

// --- mocks ---

type mockProcessor struct {
	processFn func(ctx context.Context, raw string) workflow.Outcome
}

func (m *mockProcessor) Process(ctx context.Context, raw string) workflow.Outcome {
	return m.processFn(ctx, raw)
}

type mockIndexAdmin struct {
	refreshFn    func(ctx context.Context, domain index.Domain) error
	refreshAllFn func(ctx context.Context) error
	statusFn     func() []index.Status
	searchFn     func(ctx context.Context, domain index.Domain, query string, topK int) ([]docs.Chunk, error)
}

func (m *mockIndexAdmin) Refresh(ctx context.Context, domain index.Domain) error {
	return m.refreshFn(ctx, domain)
}

func (m *mockIndexAdmin) RefreshAll(ctx context.Context) error {
	return m.refreshAllFn(ctx)
}

func (m *mockIndexAdmin) AllStatus() []index.Status {
	if m.statusFn == nil {
		return nil
	}
	return m.statusFn()
}

func (m *mockIndexAdmin) Search(ctx context.Context, domain index.Domain, query string, topK int) ([]docs.Chunk, error) {
	return m.searchFn(ctx, domain, query, topK)
}

func echoProcessor() *mockProcessor {
	return &mockProcessor{processFn: func(_ context.Context, raw string) workflow.Outcome {
		return workflow.Outcome{
			Query:    raw,
			Response: "answer for: " + raw,
			Success:  true,
			Metadata: map[string]any{"routing_decision": "IT"},
		}
	}}
}

// --- tests ---

func TestHealthIsOpen(t *testing.T) {
	h := NewHandler(Deps{Processor: echoProcessor(), Index: &mockIndexAdmin{}, Token: "secret"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestBearerAuthRequired(t *testing.T) {
	h := NewHandler(Deps{Processor: echoProcessor(), Index: &mockIndexAdmin{}, Token: "secret"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"reset my password"}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"reset my password"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"reset my password"}`))
	req.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", rec.Code)
	}
}

func TestQueryEndpoint(t *testing.T) {
	h := NewHandler(Deps{Processor: echoProcessor(), Index: &mockIndexAdmin{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"reset my password"}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out workflow.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !out.Success || out.Response != "answer for: reset my password" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestQueryEndpointRejectsBadBody(t *testing.T) {
	h := NewHandler(Deps{Processor: echoProcessor(), Index: &mockIndexAdmin{}})

	for _, body := range []string{`not json`, `{}`, `{"query":""}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestRefreshEndpoint(t *testing.T) {
	var refreshed []index.Domain
	allRefreshed := false
	admin := &mockIndexAdmin{
		refreshFn: func(_ context.Context, domain index.Domain) error {
			refreshed = append(refreshed, domain)
			return nil
		},
		refreshAllFn: func(context.Context) error {
			allRefreshed = true
			return nil
		},
		statusFn: func() []index.Status {
			return []index.Status{{Domain: index.DomainIT, State: "ready", Chunks: 12}}
		},
	}
	h := NewHandler(Deps{Processor: echoProcessor(), Index: admin})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index/refresh", strings.NewReader(`{"domain":"it"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(refreshed) != 1 || refreshed[0] != index.DomainIT {
		t.Errorf("refreshed = %v", refreshed)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index/refresh", strings.NewReader(`{"domain":"both"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("both status = %d", rec.Code)
	}
	if !allRefreshed {
		t.Error("refresh all not invoked for \"both\"")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index/refresh", strings.NewReader(`{"domain":"legal"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported domain status = %d, want 400", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	admin := &mockIndexAdmin{statusFn: func() []index.Status {
		return []index.Status{
			{Domain: index.DomainIT, State: "ready", Chunks: 42},
			{Domain: index.DomainFinance, State: "uninitialized"},
		}
	}}
	h := NewHandler(Deps{Processor: echoProcessor(), Index: admin})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Domains []index.Status `json:"domains"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Domains) != 2 || resp.Domains[0].Chunks != 42 {
		t.Errorf("domains = %+v", resp.Domains)
	}
}
