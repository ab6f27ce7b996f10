// Package workflow wires the query pipeline: validate input, route with the
// supervisor, run the specialist(s), evaluate, and format the final response.
// Every node converts its own failures into state; Process never returns an
// error to the caller.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nkosler/opsdesk/internal/agent"
	"github.com/nkosler/opsdesk/internal/validate"
)

// Outcome is the single externally visible result of one query run. Success
// means no error was recorded anywhere in the pipeline.
type Outcome struct {
	Query    string         `json:"query"`
	Response string         `json:"response"`
	Metadata map[string]any `json:"metadata"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
}

// Validator checks and sanitizes raw query text.
type Validator interface {
	ValidateQuery(raw string) validate.Result
}

// Supervisor routes queries and evaluates specialist output.
type Supervisor interface {
	Route(ctx context.Context, query string) agent.Response
	Evaluate(ctx context.Context, query string, responses []agent.Response, routing agent.Routing) agent.Response
}

// Specialist answers queries for one domain.
type Specialist interface {
	Name() string
	Process(ctx context.Context, query string) agent.Response
}

// Executor runs the workflow state machine. One Executor serves unbounded
// concurrent queries; all per-query state lives in the local run record.
type Executor struct {
	validator  Validator
	supervisor Supervisor
	it         Specialist
	finance    Specialist
	logger     *slog.Logger
}

func NewExecutor(v Validator, sup Supervisor, it, finance Specialist) *Executor {
	return &Executor{
		validator:  v,
		supervisor: sup,
		it:         it,
		finance:    finance,
		logger:     slog.Default(),
	}
}

// run is the mutable state threaded through one query's node sequence.
type run struct {
	requestID  string
	query      string
	routing    agent.Routing
	supervisor agent.Response
	specialist agent.Response
	individual []agent.Response
	final      string
	metadata   map[string]any
	err        string
}

// Process executes the full pipeline for one raw query. It always returns a
// well-formed Outcome; internal failures surface in the Error field.
func (e *Executor) Process(ctx context.Context, raw string) (out Outcome) {
	st := &run{requestID: uuid.NewString()}
	e.logger.Info("processing query", "request_id", st.requestID)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("workflow panic recovered", "request_id", st.requestID, "panic", r)
			out = Outcome{
				Query:    st.query,
				Response: "I apologize, but I'm experiencing technical difficulties. Please try again later.",
				Metadata: map[string]any{"request_id": st.requestID, "error": "internal error"},
				Success:  false,
				Error:    "internal error",
			}
		}
	}()

	if !e.validateInput(st, raw) {
		e.handleError(st)
		return e.outcome(st)
	}

	if !e.supervisorRoute(ctx, st) {
		e.handleError(st)
		return e.outcome(st)
	}

	switch st.routing {
	case agent.RoutingIT:
		e.singleSpecialist(ctx, st, e.it)
	case agent.RoutingFinance:
		e.singleSpecialist(ctx, st, e.finance)
	case agent.RoutingBoth:
		e.bothSpecialists(ctx, st)
	}

	e.formatResponse(ctx, st)
	return e.outcome(st)
}

func (e *Executor) outcome(st *run) Outcome {
	if st.metadata == nil {
		st.metadata = map[string]any{}
	}
	st.metadata["request_id"] = st.requestID
	return Outcome{
		Query:    st.query,
		Response: st.final,
		Metadata: st.metadata,
		Success:  st.err == "",
		Error:    st.err,
	}
}

// validateInput sanitizes the raw query. On success the sanitized text
// replaces the working query.
func (e *Executor) validateInput(st *run, raw string) bool {
	res := e.validator.ValidateQuery(raw)
	if !res.IsValid {
		st.err = res.Err
		e.logger.Warn("input validation failed", "request_id", st.requestID, "error", res.Err)
		return false
	}
	st.query = res.Sanitized
	return true
}

func (e *Executor) supervisorRoute(ctx context.Context, st *run) bool {
	st.supervisor = e.supervisor.Route(ctx, st.query)
	st.routing = st.supervisor.Routing
	if !st.supervisor.Success {
		st.err = st.supervisor.Message
		return false
	}
	return true
}

func (e *Executor) singleSpecialist(ctx context.Context, st *run, sp Specialist) {
	resp := sp.Process(ctx, st.query)
	st.specialist = resp
	st.individual = []agent.Response{resp}
	if !resp.Success {
		st.err = resp.Message
	}
}

// bothSpecialists fans out to IT and Finance concurrently. Both branches are
// always awaited; combined success is the AND of the two.
func (e *Executor) bothSpecialists(ctx context.Context, st *run) {
	e.logger.Info("processing query with both specialists", "request_id", st.requestID)

	var itResp, finResp agent.Response
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		itResp = e.it.Process(gctx, st.query)
		return nil
	})
	g.Go(func() error {
		finResp = e.finance.Process(gctx, st.query)
		return nil
	})
	g.Wait()

	st.individual = []agent.Response{itResp, finResp}
	combinedSuccess := itResp.Success && finResp.Success

	var msg strings.Builder
	if combinedSuccess {
		fmt.Fprintf(&msg, "## IT Support Response:\n%s\n\n---\n\n## Finance Support Response:\n%s\n\n---\n\n", itResp.Message, finResp.Message)
		msg.WriteString("**Note:** This response covers both IT and Finance aspects of your query. If you need more specific help with either domain, please feel free to ask focused questions.")
	} else {
		msg.WriteString("I encountered some issues processing your multi-domain query:\n\n")
		if itResp.Success {
			fmt.Fprintf(&msg, "## IT Support Response:\n%s\n\n", itResp.Message)
		} else {
			fmt.Fprintf(&msg, "## IT Support Issue:\n%s\n\n", itResp.Message)
		}
		if finResp.Success {
			fmt.Fprintf(&msg, "## Finance Support Response:\n%s\n\n", finResp.Message)
		} else {
			fmt.Fprintf(&msg, "## Finance Support Issue:\n%s\n\n", finResp.Message)
		}
	}

	combinedCalls := append(append([]agent.ToolCall{}, itResp.ToolCalls...), finResp.ToolCalls...)
	st.specialist = agent.Response{
		Success:   combinedSuccess,
		Message:   strings.TrimRight(msg.String(), "\n"),
		AgentName: "IT & Finance Agents",
		ToolCalls: combinedCalls,
		Metadata: map[string]any{
			"domains":          []string{"IT", "Finance"},
			"it_success":       itResp.Success,
			"finance_success":  finResp.Success,
			"total_tools_used": len(combinedCalls),
		},
	}

	if !combinedSuccess {
		st.err = "Partial success in multi-domain processing"
	}
	e.logger.Info("both specialists completed", "request_id", st.requestID, "it_success", itResp.Success, "finance_success", finResp.Success)
}

// formatResponse produces the final answer. A successful specialist stage
// goes through supervisor evaluation; a failed stage skips it and surfaces
// the raw specialist message.
func (e *Executor) formatResponse(ctx context.Context, st *run) {
	path := []string{"Supervisor Agent (Routing)"}
	switch st.routing {
	case agent.RoutingFinance:
		path = append(path, "Finance Agent")
	case agent.RoutingIT:
		path = append(path, "IT Agent")
	case agent.RoutingBoth:
		path = append(path, "IT Agent", "Finance Agent")
	}

	if st.specialist.Success {
		evaluated := e.supervisor.Evaluate(ctx, st.query, st.individual, st.routing)
		path = append(path, "Supervisor Agent (Evaluation)")

		st.final = evaluated.Message
		st.metadata = map[string]any{
			"processing_path":        path,
			"routing_decision":       string(st.routing),
			"specialist_agents":      evaluated.Metadata["original_specialists"],
			"tools_used":             len(evaluated.ToolCalls),
			"evaluated":              evaluated.Metadata["evaluated"],
			"evaluation_success":     evaluated.Metadata["evaluation_success"],
			"total_processing_steps": len(path),
		}
		e.logger.Info("response evaluated and formatted", "request_id", st.requestID, "steps", len(path))
		return
	}

	path = append(path, "Error Handler")
	st.final = st.specialist.Message
	if st.final == "" {
		st.final = "No response generated"
	}
	st.metadata = map[string]any{
		"processing_path":        path,
		"routing_decision":       string(st.routing),
		"specialist_agents":      []string{},
		"tools_used":             0,
		"evaluated":              false,
		"evaluation_success":     false,
		"total_processing_steps": len(path),
		"error":                  st.err,
	}
}

// unclearGuidance invites the user to rephrase into a routable question.
const unclearGuidance = `I'm not sure how to help with that query.

I specialize in IT and Finance support. Here are some examples of what I can help with:

**IT Support:**
- Password resets and account issues
- Computer and network troubleshooting
- Software installation and updates
- Email configuration problems
- Security-related questions

**Finance Support:**
- Expense report submissions
- Budget and payment processes
- Financial policies and procedures
- Vendor payments and approvals
- Accounting questions

Try asking something like:
- "How do I reset my password?"
- "My computer won't start - what should I do?"
- "How do I submit an expense report?"
- "What's the budget approval process?"

Please rephrase your question to be more specific about whether it's an IT or Finance issue.`

// handleError renders validation and routing failures. Unclear routing gets
// capability guidance; everything else gets a generic apology carrying the
// error.
func (e *Executor) handleError(st *run) {
	errMsg := st.err
	if errMsg == "" {
		errMsg = "An unexpected error occurred"
	}

	routing := "Error"
	if st.supervisor.AgentName != "" && !st.supervisor.Success && st.routing == agent.RoutingUnclear {
		st.final = unclearGuidance
		routing = string(agent.RoutingUnclear)
	} else {
		st.final = fmt.Sprintf("I apologize, but I encountered an issue: %s. Please try again or contact support if the problem persists.", errMsg)
	}

	st.metadata = map[string]any{
		"agent_used":         "Error Handler",
		"tools_used":         0,
		"routing_decision":   routing,
		"evaluated":          false,
		"evaluation_success": false,
		"error":              errMsg,
	}
	e.logger.Error("workflow error handled", "request_id", st.requestID, "error", errMsg)
}
