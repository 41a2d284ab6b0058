package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/tools"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		title, desc string
		want        Class
		project     string
	}{
		{"Scaffold a project named demo-app", "", ClassScaffold, "demo-app"},
		{"Create a simple react project", "", ClassScaffold, ""},
		{"Generate a new project called shop", "Use the fullstack template", ClassScaffold, "shop"},
		{"Add a GET /users route, return 404 if not found", "", ClassCustomize, ""},
		{"Scaffold a project with a POST /login endpoint", "", ClassGeneral, ""},
		{"Update server.js to log requests", "", ClassCustomize, ""},
		{"Add authentication to the existing project", "", ClassCustomize, ""},
		{"Research caching strategies", "", ClassGeneral, ""},
	}
	for _, tt := range tests {
		got := Classify(tt.title, tt.desc)
		if got.Class != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.title, got.Class, tt.want)
		}
		if got.ProjectName != tt.project {
			t.Errorf("Classify(%q) project = %q, want %q", tt.title, got.ProjectName, tt.project)
		}
	}
}

func TestCheckEvidence(t *testing.T) {
	gen := Metrics{Total: 1, ByTool: map[string]int{tools.ToolGenerateProject: 1}, Successes: 1}
	write := Metrics{Total: 2, ByTool: map[string]int{tools.ToolWriteFile: 1, "read_file": 1}, Successes: 2}
	read := Metrics{Total: 1, ByTool: map[string]int{"read_file": 1}, Successes: 1}
	none := Metrics{ByTool: map[string]int{}}

	tests := []struct {
		class Class
		m     Metrics
		ok    bool
	}{
		{ClassScaffold, gen, true},
		{ClassScaffold, write, false},
		{ClassScaffold, none, false},
		{ClassCustomize, write, true},
		{ClassCustomize, read, false},
		{ClassGeneral, read, true},
		{ClassGeneral, none, false},
	}
	for _, tt := range tests {
		err := CheckEvidence(tt.class, tt.m)
		if (err == nil) != tt.ok {
			t.Errorf("%s with %v: expected ok=%v, got %v", tt.class, tt.m.ByTool, tt.ok, err)
		}
		var ie *InsufficientEvidenceError
		if err != nil && !errors.As(err, &ie) {
			t.Errorf("expected InsufficientEvidenceError, got %T", err)
		}
	}
}

func TestCheckOutcome(t *testing.T) {
	ok := Metrics{Total: 1, Successes: 1}
	failed := Metrics{Total: 1, Failures: 1}

	if err := CheckOutcome("I might have missed an edge case, but the route is added.", ok); err != nil {
		t.Errorf("hedging with a successful call should pass: %v", err)
	}
	if err := CheckOutcome("Error: permission denied writing file", ok); err == nil {
		t.Error("hard failure marker should fail")
	}
	if err := CheckOutcome("Tests ran.\nVERDICT: FAIL: 2 tests failing", ok); err == nil {
		t.Error("failing verdict should fail")
	}
	if err := CheckOutcome("I was unable to write the file", failed); err == nil {
		t.Error("soft failure without a successful call should fail")
	}
	if err := CheckOutcome("Done", failed); err == nil {
		t.Error("no successful call should fail")
	}
}

type scriptedProvider struct {
	*llm.MockProvider
	requests []llm.ChatRequest
}

// newScripted returns a provider that answers each request with the next
// response produced by fn(round).
func newScripted(fn func(round int, req llm.ChatRequest) *llm.ChatResponse) *scriptedProvider {
	p := &scriptedProvider{MockProvider: llm.NewMockProvider()}
	p.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		p.requests = append(p.requests, req)
		return fn(len(p.requests), req), nil
	}
	return p
}

func builtinRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(tools.Builtins(tools.Workspace{Root: t.TempDir()})...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestWorker_ScaffoldForcedFirstAttempt(t *testing.T) {
	provider := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		if round == 1 {
			return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{
				ID:   "tc1",
				Name: tools.ToolGenerateProject,
				Args: map[string]interface{}{"projectName": "demo-app"},
			}}}
		}
		return &llm.ChatResponse{Content: "Generated demo-app"}
	})

	w := New(Config{Role: tools.RoleGeneral, Provider: provider, Tools: builtinRegistry(t)})
	res := w.Execute(context.Background(), task.New(task.KindImplement, "Scaffold a project named demo-app", ""))

	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	first := provider.requests[0]
	if len(first.Tools) != 1 || first.Tools[0].Name != tools.ToolGenerateProject {
		t.Errorf("first attempt should offer only generate_project, got %d tools", len(first.Tools))
	}
	prompt := first.Messages[len(first.Messages)-1].Content
	if !strings.Contains(prompt, `projectName="demo-app"`) {
		t.Errorf("prompt should steer projectName, got:\n%s", prompt)
	}
}

func TestWorker_ScaffoldWithoutGenerationIsRejected(t *testing.T) {
	// Always answers with a confident description and never calls a tool.
	provider := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		return &llm.ChatResponse{Content: "I have created the project demo-app with React and Express."}
	})

	w := New(Config{Role: tools.RoleGeneral, Provider: provider, Tools: builtinRegistry(t)})
	res := w.Execute(context.Background(), task.New(task.KindImplement, "Scaffold a project named demo-app", ""))

	if res.Success {
		t.Fatal("description-only attempts must not succeed")
	}
	if res.Attempts != MaxAttempts {
		t.Errorf("expected %d attempts, got %d", MaxAttempts, res.Attempts)
	}
	if len(provider.requests) != MaxAttempts {
		t.Errorf("expected %d completion requests, got %d", MaxAttempts, len(provider.requests))
	}
	want := (&InsufficientEvidenceError{Class: ClassScaffold, Required: tools.ToolGenerateProject}).Error()
	if res.Error != want {
		t.Errorf("expected error %q, got %q", want, res.Error)
	}
	retry := provider.requests[1].Messages[len(provider.requests[1].Messages)-1].Content
	if !strings.Contains(retry, "rejected") || !strings.Contains(retry, tools.ToolGenerateProject) {
		t.Errorf("retry prompt should restate the reason, got:\n%s", retry)
	}
}

func TestWorker_CustomizeRequiresWrite(t *testing.T) {
	provider := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		switch round {
		case 1:
			// Describes the change without making it.
			return &llm.ChatResponse{Content: "Add app.get('/users/:id') returning 404 when missing."}
		case 2:
			return &llm.ChatResponse{Content: FormatCall(tools.ToolWriteFile, map[string]interface{}{
				"path":    "server.js",
				"content": "app.get('/users/:id', ...)",
			})}
		default:
			return &llm.ChatResponse{Content: "Added the route to server.js"}
		}
	})

	w := New(Config{Role: tools.RoleBackend, Provider: provider, Tools: builtinRegistry(t)})
	res := w.Execute(context.Background(), task.New(task.KindImplement, "Add a GET /users route, return 404 if not found", ""))

	if res.Classification.Class != ClassCustomize {
		t.Fatalf("expected customize, got %s", res.Classification.Class)
	}
	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	if res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Attempts)
	}
	if res.Metrics.Count(tools.ToolWriteFile) != 1 {
		t.Errorf("metrics should reflect only the final attempt: %+v", res.Metrics)
	}
}

func TestWorker_MetricsResetPerAttempt(t *testing.T) {
	// Attempt 1 reads a file (not enough for customize), attempt 2 writes.
	provider := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		switch round {
		case 1:
			return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{ID: "a", Name: "list_files"}}}
		case 2:
			return &llm.ChatResponse{Content: "Looked around."}
		case 3:
			return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{ID: "b", Name: tools.ToolWriteFile,
				Args: map[string]interface{}{"path": "a.js", "content": "x"}}}}
		default:
			return &llm.ChatResponse{Content: "Wrote a.js"}
		}
	})

	w := New(Config{Role: tools.RoleBackend, Provider: provider, Tools: builtinRegistry(t)})
	res := w.Execute(context.Background(), task.New(task.KindImplement, "Update a.js in the existing project", ""))
	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	if res.Metrics.Total != 1 || res.Metrics.Count("list_files") != 0 {
		t.Errorf("expected only the final attempt's call, got %+v", res.Metrics)
	}
}

func TestWorker_ProviderErrorIsRetried(t *testing.T) {
	calls := 0
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		if calls == 2 {
			return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{ID: "a", Name: "list_files"}}}, nil
		}
		return &llm.ChatResponse{Content: "Listed files"}, nil
	}

	w := New(Config{Role: tools.RoleGeneral, Provider: provider, Tools: builtinRegistry(t)})
	res := w.Execute(context.Background(), task.New(task.KindReview, "Review the repository layout", ""))
	if !res.Success || res.Attempts != 2 {
		t.Errorf("expected success on attempt 2, got %+v", res)
	}
}

func TestWorker_TaskMaxAttemptsLowersBudget(t *testing.T) {
	provider := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		return &llm.ChatResponse{Content: "Thinking about it."}
	})
	tk := task.New(task.KindImplement, "Research caching strategies", "")
	tk.MaxAttempts = 1

	w := New(Config{Provider: provider, Tools: builtinRegistry(t)})
	res := w.Execute(context.Background(), tk)
	if res.Success || res.Attempts != 1 {
		t.Errorf("expected a single failed attempt, got %+v", res)
	}
}

func TestWorker_OutcomeFailureIsNotRetried(t *testing.T) {
	provider := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		if round == 1 {
			return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{ID: "a", Name: "run_command",
				Args: map[string]interface{}{"command": "true"}}}}
		}
		return &llm.ChatResponse{Content: "Ran the suite.\nVERDICT: FAIL: GET /users returns 500"}
	})

	w := New(Config{Role: tools.RoleQA, Provider: provider, Tools: builtinRegistry(t)})
	res := w.Execute(context.Background(), task.New(task.KindTest, "Verify the users endpoint", ""))
	if res.Success {
		t.Fatal("failing verdict should fail the task")
	}
	if res.Attempts != 1 {
		t.Errorf("genuine failures should not be retried, got %d attempts", res.Attempts)
	}
	if !strings.Contains(res.Output, "returns 500") {
		t.Errorf("output should carry the verdict, got %q", res.Output)
	}
}

func TestWorker_RoleScopedTools(t *testing.T) {
	w := New(Config{Role: tools.RoleQA, Provider: llm.NewMockProvider(), Tools: builtinRegistry(t)})
	for _, tool := range w.Tools() {
		if tool.Name == tools.ToolGenerateProject {
			t.Error("qa worker should not see generate_project")
		}
	}
}

func TestClassifyTask_VerificationIsGeneral(t *testing.T) {
	v := task.New(task.KindTest, "Verify Add a GET /users route", "Check the route returns users")
	if c := ClassifyTask(v); c.Class != ClassGeneral {
		t.Errorf("expected general, got %s", c.Class)
	}
	impl := task.New(task.KindImplement, "Add a GET /users route", "")
	if c := ClassifyTask(impl); c.Class != ClassCustomize {
		t.Errorf("expected customize, got %s", c.Class)
	}
}
