package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/crew/internal/decision"
	"github.com/vinayprograms/crew/internal/planning"
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/team"
	"github.com/vinayprograms/crew/internal/tools"
	"github.com/vinayprograms/crew/internal/worker"
)

// fakeTeam returns scripted workflow results by project title.
type fakeTeam struct {
	name    string
	mu      sync.Mutex
	ran     []string
	outcome func(title string) *team.WorkflowResult
}

func (f *fakeTeam) Name() string        { return f.name }
func (f *fakeTeam) Roles() []tools.Role { return []tools.Role{tools.RoleGeneral} }

func (f *fakeTeam) Run(ctx context.Context, parent *task.Task) *team.WorkflowResult {
	f.mu.Lock()
	f.ran = append(f.ran, parent.Title)
	f.mu.Unlock()
	if f.outcome == nil {
		return &team.WorkflowResult{Success: true, Parent: parent, Iterations: 1}
	}
	res := f.outcome(parent.Title)
	if res != nil {
		res.Parent = parent
	}
	return res
}

func (f *fakeTeam) RunBreakdown(ctx context.Context, bd *task.Breakdown) *team.WorkflowResult {
	return f.Run(ctx, bd.Parent)
}

// fakePlanner returns fixed plans and counts calls.
type fakePlanner struct {
	projects    []planning.ProjectSpec
	assignments []planning.Assignment
	calls       int
}

func (p *fakePlanner) Projects(ctx context.Context, goal string) []planning.ProjectSpec {
	p.calls++
	if len(p.projects) == 0 {
		return []planning.ProjectSpec{planning.FallbackProject(goal)}
	}
	return p.projects
}

func (p *fakePlanner) Assign(ctx context.Context, goal string, teams []string, describe func(string) string) []planning.Assignment {
	p.calls++
	return p.assignments
}

type fixedResolver struct {
	resolution decision.Resolution
	calls      int
}

func (r *fixedResolver) Resolve(ctx context.Context, project, reason string) (decision.Resolution, string) {
	r.calls++
	return r.resolution, "handled"
}

func specs(titles ...string) []planning.ProjectSpec {
	out := make([]planning.ProjectSpec, len(titles))
	for i, t := range titles {
		out[i] = planning.ProjectSpec{Title: t, Priority: task.PriorityMedium, Description: t}
	}
	return out
}

func escalated(reason string) *team.WorkflowResult {
	return &team.WorkflowResult{Escalated: true, Kind: team.EscalationIterationBudget, Reason: reason}
}

func newCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func TestCoordinator_SingleTeamSequential(t *testing.T) {
	tm := &fakeTeam{name: "core"}
	planner := &fakePlanner{projects: specs("Auth", "Dashboard", "Docs")}
	c := newCoordinator(t, Config{Teams: []Runner{tm}, Planner: planner})

	res := c.Run(context.Background(), "Build a product with auth and a dashboard")
	if !res.Success || res.Total != 3 || res.Succeeded != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if strings.Join(tm.ran, ",") != "Auth,Dashboard,Docs" {
		t.Errorf("projects should run in order, got %v", tm.ran)
	}
	for _, p := range c.Projects() {
		if p.Status != ProjectCompleted || p.Result == nil {
			t.Errorf("project %s: status %s", p.Title, p.Status)
		}
	}
	if len(c.ActiveProjects()) != 0 {
		t.Error("no project should be active after the run")
	}
}

func TestCoordinator_ScaffoldSkipsPlanning(t *testing.T) {
	tm := &fakeTeam{name: "core"}
	planner := &fakePlanner{}
	c := newCoordinator(t, Config{Teams: []Runner{tm}, Planner: planner})

	projects := c.Plan(context.Background(), "Scaffold a project named demo-app")
	if planner.calls != 0 {
		t.Errorf("expected no planning calls, got %d", planner.calls)
	}
	if len(projects) != 1 || !projects[0].Scaffold {
		t.Fatalf("expected one scaffold project, got %+v", projects)
	}

	projects = c.Plan(context.Background(), "Scaffold a project named demo-app with a GET /users endpoint")
	if planner.calls != 1 || projects[0].Scaffold {
		t.Error("concrete requirements need the planner")
	}
}

func TestCoordinator_EscalationConfirmedStopsTeam(t *testing.T) {
	tm := &fakeTeam{name: "core", outcome: func(title string) *team.WorkflowResult {
		if title == "B" {
			return escalated("budget exhausted")
		}
		return &team.WorkflowResult{Success: true}
	}}
	var events []string
	c := newCoordinator(t, Config{
		Teams:   []Runner{tm},
		Planner: &fakePlanner{projects: specs("A", "B", "C")},
		OnEscalation: func(reason string, p Project) {
			events = append(events, p.Title+": "+reason)
		},
	})

	res := c.Run(context.Background(), "goal")
	if !res.Escalated || res.Reason != "budget exhausted" {
		t.Fatalf("expected escalation, got %+v", res)
	}
	if len(events) != 1 || events[0] != "B: budget exhausted" {
		t.Errorf("expected exactly one escalation event, got %v", events)
	}
	if strings.Join(tm.ran, ",") != "A,B" {
		t.Errorf("C should not run after escalation, got %v", tm.ran)
	}
	if res.Succeeded != 1 || res.Failed != 2 || res.Total != 3 {
		t.Errorf("unexpected counts: %+v", res)
	}
	ps := c.Projects()
	if ps[1].Status != ProjectBlocked || ps[2].Status != ProjectBlocked {
		t.Errorf("unexpected statuses: %s, %s", ps[1].Status, ps[2].Status)
	}
}

func TestCoordinator_EscalationResolvedLocally(t *testing.T) {
	tm := &fakeTeam{name: "core", outcome: func(title string) *team.WorkflowResult {
		if title == "A" {
			return escalated("flaky tests")
		}
		return &team.WorkflowResult{Success: true}
	}}
	resolver := &fixedResolver{resolution: decision.ResolveLocally}
	notified := 0
	c := newCoordinator(t, Config{
		Teams:        []Runner{tm},
		Planner:      &fakePlanner{projects: specs("A", "B")},
		Resolver:     resolver,
		OnEscalation: func(string, Project) { notified++ },
	})

	res := c.Run(context.Background(), "goal")
	if res.Escalated || notified != 0 {
		t.Errorf("resolved escalations should not reach a human: %+v", res)
	}
	if resolver.calls != 1 {
		t.Errorf("expected one resolver call, got %d", resolver.calls)
	}
	if len(tm.ran) != 2 {
		t.Errorf("B should still run, got %v", tm.ran)
	}
	p := c.Projects()[0]
	if p.Status != ProjectFailed || !strings.Contains(p.Reason, "resolved: handled") {
		t.Errorf("unexpected project state: %s %q", p.Status, p.Reason)
	}
}

func TestCoordinator_PanicBecomesEscalation(t *testing.T) {
	tm := &fakeTeam{name: "core", outcome: func(title string) *team.WorkflowResult {
		panic("disk full")
	}}
	var reason string
	c := newCoordinator(t, Config{
		Teams:        []Runner{tm},
		Planner:      &fakePlanner{projects: specs("A")},
		OnEscalation: func(r string, p Project) { reason = r },
	})

	res := c.Run(context.Background(), "goal")
	if !res.Escalated || !strings.Contains(res.Reason, "disk full") {
		t.Fatalf("expected escalation carrying the panic, got %+v", res)
	}
	if reason != res.Reason {
		t.Errorf("callback reason %q, want %q", reason, res.Reason)
	}
	if p := c.Projects()[0]; p.Result == nil || p.Result.Kind != team.EscalationExecution {
		t.Errorf("unexpected result: %+v", p.Result)
	}
}

func TestCoordinator_NilResultBecomesEscalation(t *testing.T) {
	tm := &fakeTeam{name: "core", outcome: func(title string) *team.WorkflowResult { return nil }}
	c := newCoordinator(t, Config{Teams: []Runner{tm}, Planner: &fakePlanner{projects: specs("A")}})
	if res := c.Run(context.Background(), "goal"); !res.Escalated {
		t.Errorf("expected escalation, got %+v", res)
	}
}

func TestCoordinator_MultiTeamFanOut(t *testing.T) {
	alpha := &fakeTeam{name: "alpha"}
	beta := &fakeTeam{name: "beta", outcome: func(title string) *team.WorkflowResult {
		if title == "B2" {
			return &team.WorkflowResult{Reason: "sub-tasks failed"}
		}
		return &team.WorkflowResult{Success: true}
	}}
	gamma := &fakeTeam{name: "gamma", outcome: func(title string) *team.WorkflowResult {
		return escalated("gamma is stuck")
	}}
	planner := &fakePlanner{assignments: []planning.Assignment{
		{Team: "alpha", Projects: specs("A1", "A2")},
		{Team: "beta", Projects: specs("B1", "B2", "B3")},
		{Team: "gamma", Projects: specs("G1", "G2")},
	}}
	c := newCoordinator(t, Config{Teams: []Runner{alpha, beta, gamma}, Planner: planner})

	res := c.Run(context.Background(), "big goal")
	if planner.calls != 1 {
		t.Errorf("expected one assignment call, got %d", planner.calls)
	}
	if res.Total != 7 || res.Succeeded != 4 || res.Failed != 3 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if !res.Escalated || res.Reason != "gamma is stuck" {
		t.Errorf("expected gamma's escalation, got %+v", res)
	}
	if strings.Join(beta.ran, ",") != "B1,B2,B3" {
		t.Errorf("beta should keep running after a failure in order, got %v", beta.ran)
	}
	if strings.Join(alpha.ran, ",") != "A1,A2" {
		t.Errorf("alpha should be unaffected, got %v", alpha.ran)
	}
	if len(gamma.ran) != 1 {
		t.Errorf("gamma should stop after escalation, got %v", gamma.ran)
	}
}

func TestCoordinator_AssignmentTeamNames(t *testing.T) {
	alpha := &fakeTeam{name: "alpha"}
	beta := &fakeTeam{name: "beta"}
	planner := &fakePlanner{assignments: []planning.Assignment{
		{Team: "ALPHA", Projects: specs("A1")},
		{Team: "Gamma", Projects: specs("G1")},
		{Team: "beta", Projects: specs("B1")},
	}}
	c := newCoordinator(t, Config{Teams: []Runner{alpha, beta}, Planner: planner})

	res := c.Run(context.Background(), "big goal")
	if res.Total != 2 || res.Succeeded != 2 {
		t.Fatalf("unknown team should be dropped, got %+v", res)
	}
	if strings.Join(alpha.ran, ",") != "A1" || strings.Join(beta.ran, ",") != "B1" {
		t.Errorf("unexpected runs: alpha=%v beta=%v", alpha.ran, beta.ran)
	}
	for _, p := range c.Projects() {
		if p.Team != "alpha" && p.Team != "beta" {
			t.Errorf("project %s should carry a registered team name, got %q", p.Title, p.Team)
		}
	}
}

func TestCoordinator_AssignmentFallsBackToFirstTeam(t *testing.T) {
	alpha := &fakeTeam{name: "alpha"}
	beta := &fakeTeam{name: "beta"}
	planner := &fakePlanner{
		projects:    specs("P1", "P2"),
		assignments: []planning.Assignment{{Team: "gamma", Projects: specs("G1")}},
	}
	c := newCoordinator(t, Config{Teams: []Runner{alpha, beta}, Planner: planner})

	res := c.Run(context.Background(), "big goal")
	if res.Total != 2 || !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
	if strings.Join(alpha.ran, ",") != "P1,P2" || len(beta.ran) != 0 {
		t.Errorf("projects should fall back to the first team: alpha=%v beta=%v", alpha.ran, beta.ran)
	}
}

func TestAggregate_SumsTeams(t *testing.T) {
	// Every combination of per-team outcomes sums to the aggregate.
	for mask := 0; mask < 1<<6; mask++ {
		var results []TeamResult
		wantDone := 0
		for i := 0; i < 3; i++ {
			tr := TeamResult{
				Team:      fmt.Sprintf("t%d", i),
				Succeeded: (mask >> (2 * i)) & 1,
				Failed:    (mask >> (2*i + 1)) & 1 * 2,
			}
			tr.Escalated = tr.Failed > 0 && i == 2
			wantDone += tr.Succeeded + tr.Failed
			results = append(results, tr)
		}
		res := aggregate(results)
		if res.Succeeded+res.Failed != wantDone || res.Total != wantDone {
			t.Errorf("mask %b: got %d+%d, want %d", mask, res.Succeeded, res.Failed, wantDone)
		}
		if res.Success && (res.Failed > 0 || res.Escalated) {
			t.Errorf("mask %b: success with failures", mask)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Planner: &fakePlanner{}}); err == nil {
		t.Error("expected error for no teams")
	}
	if _, err := New(Config{Teams: []Runner{&fakeTeam{name: "a"}}}); err == nil {
		t.Error("expected error for no planner")
	}
	if _, err := New(Config{Teams: []Runner{&fakeTeam{name: "a"}, &fakeTeam{name: "a"}}, Planner: &fakePlanner{}}); err == nil {
		t.Error("expected error for duplicate team")
	}
}

// scripted answers each request with fn(round) and records the requests.
type scripted struct {
	*llm.MockProvider
	mu       sync.Mutex
	requests []llm.ChatRequest
}

func newScripted(fn func(round int, req llm.ChatRequest) *llm.ChatResponse) *scripted {
	p := &scripted{MockProvider: llm.NewMockProvider()}
	p.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		p.mu.Lock()
		p.requests = append(p.requests, req)
		round := len(p.requests)
		p.mu.Unlock()
		return fn(round, req), nil
	}
	return p
}

func call(name string, args map[string]interface{}) *llm.ChatResponse {
	return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{ID: "tc-" + name, Name: name, Args: args}}}
}

func TestEndToEnd_Scaffold(t *testing.T) {
	root := t.TempDir()
	registry, err := tools.NewRegistry(tools.Builtins(tools.Workspace{Root: root})...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	planningCalls := 0
	plannerLLM := llm.NewMockProvider()
	plannerLLM.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		planningCalls++
		return &llm.ChatResponse{Content: "PROJECTS:\n1. [Other] | [High] | Something else"}, nil
	}
	planner := planning.New(plannerLLM)

	workerLLM := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		if round == 1 {
			return call(tools.ToolGenerateProject, map[string]interface{}{"projectName": "demo-app"})
		}
		return &llm.ChatResponse{Content: "Generated demo-app."}
	})
	w := worker.New(worker.Config{Role: tools.RoleGeneral, Provider: workerLLM, Tools: registry})
	tm, err := team.New(team.Config{Name: "core", Workers: []team.Executor{w}, Planner: planner})
	if err != nil {
		t.Fatalf("team: %v", err)
	}
	c := newCoordinator(t, Config{Teams: []Runner{tm}, Planner: planner})

	res := c.Run(context.Background(), "Scaffold a project named demo-app")
	if !res.Success || res.Total != 1 {
		t.Fatalf("expected success, got %+v", res)
	}
	if planningCalls != 0 {
		t.Errorf("expected zero planning calls, got %d", planningCalls)
	}
	first := workerLLM.requests[0]
	if len(first.Tools) != 1 || first.Tools[0].Name != tools.ToolGenerateProject {
		t.Errorf("first attempt should be steered to %s, got %v", tools.ToolGenerateProject, first.Tools)
	}
	if !strings.Contains(first.Messages[len(first.Messages)-1].Content, `projectName="demo-app"`) {
		t.Error("first attempt should name the project")
	}
	if _, err := os.Stat(filepath.Join(root, "demo-app")); err != nil {
		t.Errorf("project not generated: %v", err)
	}
	if p := c.Projects()[0]; p.Result.Implementation[0].Result.Attempts != 1 {
		t.Errorf("expected one attempt, got %d", p.Result.Implementation[0].Result.Attempts)
	}
}

func TestEndToEnd_CustomizeRequiresWrite(t *testing.T) {
	root := t.TempDir()
	registry, err := tools.NewRegistry(tools.Builtins(tools.Workspace{Root: root})...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	// Unstructured planner answers fall back to one project and one
	// implementation plus verification pair.
	plannerLLM := llm.NewMockProvider()
	plannerLLM.SetResponse("Sounds like a small change.")
	planner := planning.New(plannerLLM)

	devLLM := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		switch round {
		case 1:
			return &llm.ChatResponse{Content: "I would add a /users route to server.js that returns 404."}
		case 2:
			return call("write_file", map[string]interface{}{
				"path":    "server.js",
				"content": "app.get('/users/:id', (req, res) => res.status(404).end())\n",
			})
		default:
			return &llm.ChatResponse{Content: "Added the route."}
		}
	})
	qaLLM := newScripted(func(round int, req llm.ChatRequest) *llm.ChatResponse {
		if round == 1 {
			return call("read_file", map[string]interface{}{"path": "server.js"})
		}
		return &llm.ChatResponse{Content: "VERDICT: PASS"}
	})
	dev := worker.New(worker.Config{Role: tools.RoleBackend, Provider: devLLM, Tools: registry})
	qa := worker.New(worker.Config{Role: tools.RoleQA, Provider: qaLLM, Tools: registry})
	tm, err := team.New(team.Config{Name: "core", Workers: []team.Executor{dev, qa}, Planner: planner})
	if err != nil {
		t.Fatalf("team: %v", err)
	}
	c := newCoordinator(t, Config{Teams: []Runner{tm}, Planner: planner})

	goal := "Add a GET /users route, return 404 if not found"
	if p := c.Plan(context.Background(), goal); p[0].Scaffold {
		t.Fatal("goal with concrete requirements must not take the scaffold path")
	}

	res := c.Run(context.Background(), goal)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(devLLM.requests) != 3 {
		t.Errorf("expected a rejected description then a write, got %d requests", len(devLLM.requests))
	}
	retry := devLLM.requests[1].Messages[len(devLLM.requests[1].Messages)-1].Content
	if !strings.Contains(retry, "write_file") {
		t.Errorf("retry prompt should demand write_file, got %q", retry)
	}
	data, err := os.ReadFile(filepath.Join(root, "server.js"))
	if err != nil || !strings.Contains(string(data), "404") {
		t.Errorf("route not written: %v", err)
	}

	var impl *team.Outcome
	for _, p := range c.Projects() {
		if p.Result != nil && p.Result.Success {
			impl = &p.Result.Implementation[0]
		}
	}
	if impl == nil || impl.Result.Classification.Class != worker.ClassCustomize || impl.Result.Attempts != 2 {
		t.Errorf("unexpected implementation outcome: %+v", impl)
	}
}
