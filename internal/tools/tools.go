// Package tools provides the specialist-facing tool layer: document retrieval
// and web search behind a uniform registry.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Result is the outcome of one tool execution. Failures are values, not
// errors: a specialist records a failed Result and keeps going.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Fail builds a failed Result with a formatted error message.
func Fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Tool executes one named capability with loosely-typed arguments.
type Tool interface {
	Name() string
	Execute(ctx context.Context, args map[string]any) Result
}

// Registry dispatches tool executions by name.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools:  make(map[string]Tool, len(tools)),
		logger: slog.Default(),
	}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Execute runs the named tool. An unknown name yields a failed Result, not an
// error, so callers handle it like any other tool failure.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Result {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return Fail("tool %q not found", name)
	}
	res := t.Execute(ctx, args)
	r.logger.Debug("tool executed", "tool", name, "success", res.Success)
	return res
}

// List returns the registered tool names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stringArg extracts a string argument, empty when absent or mistyped.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
