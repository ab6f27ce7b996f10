// Package agent implements the supervisor and domain specialists: routing a
// query, answering it with retrieval-grounded LLM calls, and refining the
// specialist output into one final answer.
package agent

import (
	"context"

	"github.com/nkosler/opsdesk/internal/llm"
	"github.com/nkosler/opsdesk/internal/tools"
)

// Routing is the supervisor's classification of a query.
type Routing string

const (
	RoutingIT      Routing = "IT"
	RoutingFinance Routing = "Finance"
	RoutingBoth    Routing = "Both"
	RoutingUnclear Routing = "Unclear"
)

// Response is the outcome of one agent call.
type Response struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	AgentName string         `json:"agent_name"`
	Routing   Routing        `json:"routing_decision,omitempty"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToolCall records one tool invocation made while answering a query. Failed
// calls are recorded too; they are never fatal to the agent.
type ToolCall struct {
	Tool    string    `json:"tool"`
	Success bool      `json:"success"`
	Result  string    `json:"result"`
	Sources []string  `json:"sources,omitempty"`
	Scores  []float32 `json:"similarity_scores,omitempty"`
}

// Generator is the LLM capability agents depend on.
type Generator interface {
	Chat(ctx context.Context, model string, messages []llm.Message) (string, error)
}

// ToolExecutor dispatches named tool calls.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) tools.Result
}
