package workflow

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nkosler/opsdesk/internal/agent"
	"github.com/nkosler/opsdesk/internal/validate"
)

const testCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 .!?'-,"

type mockSupervisor struct {
	routeFn    func(ctx context.Context, query string) agent.Response
	evaluateFn func(ctx context.Context, query string, responses []agent.Response, routing agent.Routing) agent.Response
}

func (m *mockSupervisor) Route(ctx context.Context, query string) agent.Response {
	return m.routeFn(ctx, query)
}

func (m *mockSupervisor) Evaluate(ctx context.Context, query string, responses []agent.Response, routing agent.Routing) agent.Response {
	return m.evaluateFn(ctx, query, responses, routing)
}

type mockSpecialist struct {
	name      string
	processFn func(ctx context.Context, query string) agent.Response
}

func (m *mockSpecialist) Name() string { return m.name }

func (m *mockSpecialist) Process(ctx context.Context, query string) agent.Response {
	return m.processFn(ctx, query)
}

func routeTo(routing agent.Routing) func(context.Context, string) agent.Response {
	return func(context.Context, string) agent.Response {
		if routing == agent.RoutingUnclear {
			return agent.Response{Success: false, Message: "I can only help with IT or Finance related queries.", AgentName: "Supervisor", Routing: routing}
		}
		return agent.Response{Success: true, Message: "routed", AgentName: "Supervisor", Routing: routing}
	}
}

func passthroughEvaluate(ctx context.Context, query string, responses []agent.Response, routing agent.Routing) agent.Response {
	var calls []agent.ToolCall
	names := make([]string, 0, len(responses))
	for _, r := range responses {
		calls = append(calls, r.ToolCalls...)
		names = append(names, r.AgentName)
	}
	return agent.Response{
		Success:   true,
		Message:   "refined answer",
		AgentName: "Supervisor",
		Routing:   routing,
		ToolCalls: calls,
		Metadata: map[string]any{
			"evaluated":            true,
			"original_specialists": names,
			"evaluation_success":   true,
		},
	}
}

func answering(name, message string) *mockSpecialist {
	return &mockSpecialist{name: name, processFn: func(context.Context, string) agent.Response {
		return agent.Response{
			Success:   true,
			Message:   message,
			AgentName: name,
			ToolCalls: []agent.ToolCall{{Tool: "rag_search", Success: true}},
		}
	}}
}

func newTestExecutor(sup Supervisor, it, finance Specialist) *Executor {
	return NewExecutor(validate.New(5, 1000, testCharset), sup, it, finance)
}

func TestProcess_ITQueryEndToEnd(t *testing.T) {
	sup := &mockSupervisor{routeFn: routeTo(agent.RoutingIT), evaluateFn: passthroughEvaluate}
	ex := newTestExecutor(sup, answering("IT Agent", "reset steps"), answering("Finance Agent", "unused"))

	out := ex.Process(context.Background(), "How do I reset my password?")
	if !out.Success {
		t.Fatalf("Process failed: %s", out.Error)
	}
	if out.Response != "refined answer" {
		t.Errorf("response = %q", out.Response)
	}

	want := []string{"Supervisor Agent (Routing)", "IT Agent", "Supervisor Agent (Evaluation)"}
	if got := out.Metadata["processing_path"].([]string); !reflect.DeepEqual(got, want) {
		t.Errorf("processing_path = %v, want %v", got, want)
	}
	if out.Metadata["routing_decision"] != "IT" {
		t.Errorf("routing_decision = %v", out.Metadata["routing_decision"])
	}
	if out.Metadata["request_id"] == "" {
		t.Error("request_id missing")
	}
}

func TestProcess_TooShortQuery(t *testing.T) {
	sup := &mockSupervisor{routeFn: func(context.Context, string) agent.Response {
		t.Fatal("supervisor invoked for invalid input")
		return agent.Response{}
	}}
	ex := newTestExecutor(sup, answering("IT Agent", "x"), answering("Finance Agent", "x"))

	out := ex.Process(context.Background(), "Hi")
	if out.Success {
		t.Fatal("short query reported success")
	}
	if !strings.Contains(out.Error, "at least 5 characters") {
		t.Errorf("error = %q, want minimum-length message", out.Error)
	}
	if out.Response == "" {
		t.Error("no user-facing message for invalid input")
	}
}

func TestProcess_UnclearQuery(t *testing.T) {
	specialistCalled := false
	sp := &mockSpecialist{name: "IT Agent", processFn: func(context.Context, string) agent.Response {
		specialistCalled = true
		return agent.Response{Success: true, AgentName: "IT Agent"}
	}}
	sup := &mockSupervisor{routeFn: routeTo(agent.RoutingUnclear)}
	ex := newTestExecutor(sup, sp, sp)

	out := ex.Process(context.Background(), "What's the weather today?")
	if out.Success {
		t.Fatal("unclear query reported success")
	}
	if specialistCalled {
		t.Error("specialist invoked despite unclear routing")
	}
	if !strings.Contains(out.Response, "rephrase") {
		t.Errorf("response = %q, want rephrase guidance", out.Response)
	}
	if !strings.Contains(out.Response, "IT") || !strings.Contains(out.Response, "Finance") {
		t.Error("guidance does not name the supported domains")
	}
	if out.Metadata["routing_decision"] != "Unclear" {
		t.Errorf("routing_decision = %v", out.Metadata["routing_decision"])
	}
}

func TestProcess_BothSpecialistsConcurrent(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	track := func(name, message string) *mockSpecialist {
		return &mockSpecialist{name: name, processFn: func(context.Context, string) agent.Response {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return agent.Response{Success: true, Message: message, AgentName: name}
		}}
	}

	sup := &mockSupervisor{routeFn: routeTo(agent.RoutingBoth), evaluateFn: passthroughEvaluate}
	ex := newTestExecutor(sup, track("IT Agent", "it section"), track("Finance Agent", "finance section"))

	out := ex.Process(context.Background(), "My laptop is broken and I need to file an expense report")
	if !out.Success {
		t.Fatalf("Process failed: %s", out.Error)
	}

	mu.Lock()
	concurrent := maxInFlight
	mu.Unlock()
	if concurrent < 2 {
		t.Error("specialists did not run concurrently")
	}

	want := []string{"Supervisor Agent (Routing)", "IT Agent", "Finance Agent", "Supervisor Agent (Evaluation)"}
	if got := out.Metadata["processing_path"].([]string); !reflect.DeepEqual(got, want) {
		t.Errorf("processing_path = %v, want %v", got, want)
	}
}

func TestProcess_BothCombinedMessageSections(t *testing.T) {
	// Evaluation falls back to the pre-combined message so the section layout
	// is observable.
	sup := &mockSupervisor{
		routeFn: routeTo(agent.RoutingBoth),
		evaluateFn: func(_ context.Context, _ string, responses []agent.Response, routing agent.Routing) agent.Response {
			sections := make([]string, 0, len(responses))
			for _, r := range responses {
				sections = append(sections, "**"+r.AgentName+":** "+r.Message)
			}
			return agent.Response{Success: true, Message: strings.Join(sections, "\n\n"), Routing: routing}
		},
	}
	ex := newTestExecutor(sup, answering("IT Agent", "it fix"), answering("Finance Agent", "finance fix"))

	out := ex.Process(context.Background(), "Broken computer and an expense report question")
	if !out.Success {
		t.Fatalf("Process failed: %s", out.Error)
	}
	itIdx := strings.Index(out.Response, "IT Agent")
	finIdx := strings.Index(out.Response, "Finance Agent")
	if itIdx < 0 || finIdx < 0 {
		t.Fatalf("response missing labeled sections: %q", out.Response)
	}
	if itIdx > finIdx {
		t.Error("IT section does not precede Finance section")
	}
}

func TestProcess_BothPartialFailure(t *testing.T) {
	failing := &mockSpecialist{name: "Finance Agent", processFn: func(context.Context, string) agent.Response {
		return agent.Response{Success: false, Message: "finance backend unavailable", AgentName: "Finance Agent"}
	}}
	sup := &mockSupervisor{
		routeFn: routeTo(agent.RoutingBoth),
		evaluateFn: func(context.Context, string, []agent.Response, agent.Routing) agent.Response {
			t.Fatal("evaluation invoked for failed specialist stage")
			return agent.Response{}
		},
	}
	ex := newTestExecutor(sup, answering("IT Agent", "it ok"), failing)

	out := ex.Process(context.Background(), "Laptop and expense trouble together")
	if out.Success {
		t.Fatal("partial failure reported success")
	}
	if !strings.Contains(out.Response, "Finance Support Issue") {
		t.Errorf("failed domain not attributed: %q", out.Response)
	}
	if !strings.Contains(out.Response, "IT Support Response") {
		t.Errorf("successful domain dropped: %q", out.Response)
	}

	path := out.Metadata["processing_path"].([]string)
	if path[len(path)-1] != "Error Handler" {
		t.Errorf("processing_path = %v, want Error Handler terminal", path)
	}
}

func TestProcess_SpecialistFailureSkipsEvaluation(t *testing.T) {
	failing := &mockSpecialist{name: "IT Agent", processFn: func(context.Context, string) agent.Response {
		return agent.Response{Success: false, Message: "I'm experiencing technical difficulties.", AgentName: "IT Agent"}
	}}
	sup := &mockSupervisor{
		routeFn: routeTo(agent.RoutingIT),
		evaluateFn: func(context.Context, string, []agent.Response, agent.Routing) agent.Response {
			t.Fatal("evaluation invoked for failed specialist")
			return agent.Response{}
		},
	}
	ex := newTestExecutor(sup, failing, answering("Finance Agent", "x"))

	out := ex.Process(context.Background(), "printer will not print")
	if out.Success {
		t.Fatal("failed specialist reported success")
	}
	if out.Response != "I'm experiencing technical difficulties." {
		t.Errorf("response = %q, want raw specialist message", out.Response)
	}
}

func TestProcess_PanicRecovered(t *testing.T) {
	panicking := &mockSpecialist{name: "IT Agent", processFn: func(context.Context, string) agent.Response {
		panic("broken invariant")
	}}
	sup := &mockSupervisor{routeFn: routeTo(agent.RoutingIT), evaluateFn: passthroughEvaluate}
	ex := newTestExecutor(sup, panicking, answering("Finance Agent", "x"))

	out := ex.Process(context.Background(), "anything valid here")
	if out.Success {
		t.Fatal("panicking run reported success")
	}
	if out.Response == "" || out.Error == "" {
		t.Errorf("outcome not well-formed: %+v", out)
	}
}
