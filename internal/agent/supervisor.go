package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nkosler/opsdesk/internal/llm"
)

const supervisorName = "Supervisor"

// unclearGuidance is returned when a query cannot be routed to a domain.
const unclearGuidance = "I can only help with IT or Finance related queries. Please rephrase your question to be more specific about the domain."

// Supervisor routes queries to specialists and refines their answers into one
// final response. Routing and evaluation are independent operations with
// separate prompts.
type Supervisor struct {
	llm    Generator
	model  string
	logger *slog.Logger
}

func NewSupervisor(gen Generator, model string) *Supervisor {
	return &Supervisor{llm: gen, model: model, logger: slog.Default()}
}

// Route classifies the query into IT, Finance, Both, or Unclear. Unclear
// yields an unsuccessful response carrying guidance for the user.
func (s *Supervisor) Route(ctx context.Context, query string) Response {
	s.logger.Info("supervisor routing query", "query", query)

	text, err := s.llm.Chat(ctx, s.model, []llm.Message{
		{Role: llm.RoleSystem, Content: routingPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Route this query: %s", query)},
	})
	if err != nil {
		s.logger.Error("routing LLM call failed", "error", err)
		return Response{
			Success:   false,
			Message:   "I'm experiencing technical difficulties. Please try again later.",
			AgentName: supervisorName,
		}
	}

	routing := s.parseRouting(text)
	if routing == RoutingUnclear {
		return Response{
			Success:   false,
			Message:   unclearGuidance,
			AgentName: supervisorName,
			Routing:   routing,
		}
	}

	s.logger.Info("query routed", "decision", routing)
	return Response{
		Success:   true,
		Message:   fmt.Sprintf("Query routed to %s specialist", routing),
		AgentName: supervisorName,
		Routing:   routing,
		Metadata:  map[string]any{"original_query": query},
	}
}

// Finance is checked before IT in the fallback scan: "IT" as a bare word is a
// likelier false positive inside longer text.
var routingFallbacks = []struct {
	re      *regexp.Regexp
	routing Routing
}{
	{regexp.MustCompile(`(?i)\bfinance\b`), RoutingFinance},
	{regexp.MustCompile(`(?i)\bit\b`), RoutingIT},
	{regexp.MustCompile(`(?i)\bboth\b`), RoutingBoth},
	{regexp.MustCompile(`(?i)\bunclear\b`), RoutingUnclear},
}

// parseRouting extracts the routing label from an LLM response. The first
// whitespace-delimited token wins when it is exactly one of the four labels;
// otherwise a word-boundary scan decides, and anything else is Unclear.
func (s *Supervisor) parseRouting(text string) Routing {
	if fields := strings.Fields(text); len(fields) > 0 {
		switch first := strings.ToLower(fields[0]); first {
		case "it":
			return RoutingIT
		case "finance":
			return RoutingFinance
		case "both":
			return RoutingBoth
		case "unclear":
			return RoutingUnclear
		}
	}

	for _, fb := range routingFallbacks {
		if fb.re.MatchString(text) {
			return fb.routing
		}
	}

	s.logger.Warn("could not parse routing decision, defaulting to unclear", "response", text)
	return RoutingUnclear
}

// Evaluate refines one or two specialist responses into a single answer. An
// LLM failure degrades to a composition of the raw specialist messages; the
// underlying content is never dropped.
func (s *Supervisor) Evaluate(ctx context.Context, query string, responses []Response, routing Routing) Response {
	s.logger.Info("supervisor evaluating responses", "specialists", len(responses), "routing", routing)

	var block strings.Builder
	names := make([]string, 0, len(responses))
	totalTools := 0
	var allCalls []ToolCall
	for _, r := range responses {
		names = append(names, r.AgentName)
		totalTools += len(r.ToolCalls)
		allCalls = append(allCalls, r.ToolCalls...)
		fmt.Fprintf(&block, "Specialist: %s\nSucceeded: %t\nTools used: %d\nResponse:\n%s\n\n", r.AgentName, r.Success, len(r.ToolCalls), r.Message)
	}

	user := fmt.Sprintf(`Original User Query: %s

Specialist Responses:
%s
Produce the final answer for the user.`, query, block.String())

	refined, err := s.llm.Chat(ctx, s.model, []llm.Message{
		{Role: llm.RoleSystem, Content: evaluationPrompt},
		{Role: llm.RoleUser, Content: user},
	})
	if err != nil {
		s.logger.Error("evaluation LLM call failed, composing raw specialist output", "error", err)
		return s.composeFallback(responses, routing, err)
	}

	return Response{
		Success:   true,
		Message:   refined,
		AgentName: supervisorName,
		Routing:   routing,
		ToolCalls: allCalls,
		Metadata: map[string]any{
			"evaluated":            true,
			"original_specialists": names,
			"routing_decision":     string(routing),
			"total_tools_used":     totalTools,
			"evaluation_success":   true,
		},
	}
}

// composeFallback preserves specialist content verbatim when evaluation
// fails: a single response passes through unchanged, two responses become
// labeled sections.
func (s *Supervisor) composeFallback(responses []Response, routing Routing, evalErr error) Response {
	if len(responses) == 1 {
		r := responses[0]
		meta := make(map[string]any, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta["evaluation_failed"] = true
		meta["evaluation_error"] = evalErr.Error()
		r.Metadata = meta
		return r
	}

	sections := make([]string, 0, len(responses))
	var allCalls []ToolCall
	for _, r := range responses {
		sections = append(sections, fmt.Sprintf("**%s:** %s", r.AgentName, r.Message))
		allCalls = append(allCalls, r.ToolCalls...)
	}

	return Response{
		Success:   true,
		Message:   strings.Join(sections, "\n\n"),
		AgentName: supervisorName,
		Routing:   routing,
		ToolCalls: allCalls,
		Metadata: map[string]any{
			"evaluated":         false,
			"evaluation_failed": true,
			"evaluation_error":  evalErr.Error(),
			"routing_decision":  string(routing),
		},
	}
}
