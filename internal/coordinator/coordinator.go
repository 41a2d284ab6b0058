// Package coordinator turns a strategic goal into projects, runs them on
// one or more teams and aggregates the outcome.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/crew/internal/decision"
	"github.com/vinayprograms/crew/internal/planning"
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/team"
	"github.com/vinayprograms/crew/internal/tools"
	"github.com/vinayprograms/crew/internal/worker"
)

// Runner executes project workflows. *team.Team implements it.
type Runner interface {
	Name() string
	Roles() []tools.Role
	Run(ctx context.Context, parent *task.Task) *team.WorkflowResult
	RunBreakdown(ctx context.Context, bd *task.Breakdown) *team.WorkflowResult
}

// Planner plans projects. *planning.Planner implements it.
type Planner interface {
	Projects(ctx context.Context, goal string) []planning.ProjectSpec
	Assign(ctx context.Context, goal string, teams []string, describe func(team string) string) []planning.Assignment
}

// Resolver decides whether a team escalation needs a human.
// *decision.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, project, reason string) (decision.Resolution, string)
}

// Config configures a coordinator.
type Config struct {
	Teams    []Runner
	Planner  Planner
	Resolver Resolver // nil sends every escalation to a human

	// OnEscalation is called once per escalation confirmed for a human.
	OnEscalation func(reason string, p Project)

	// OnProject is called after every project status change.
	OnProject func(p Project)
}

// Coordinator schedules projects across teams.
type Coordinator struct {
	teams        []Runner
	byName       map[string]Runner
	planner      Planner
	resolver     Resolver
	onEscalation func(string, Project)
	onProject    func(Project)
	projects     *registry
	logger       *logging.Logger
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if len(cfg.Teams) == 0 {
		return nil, fmt.Errorf("no teams configured")
	}
	if cfg.Planner == nil {
		return nil, fmt.Errorf("no planner configured")
	}
	c := &Coordinator{
		teams:        cfg.Teams,
		byName:       make(map[string]Runner, len(cfg.Teams)),
		planner:      cfg.Planner,
		resolver:     cfg.Resolver,
		onEscalation: cfg.OnEscalation,
		onProject:    cfg.OnProject,
		projects:     newRegistry(),
		logger:       logging.New().WithComponent("coordinator"),
	}
	for _, t := range cfg.Teams {
		if _, dup := c.byName[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate team %q", t.Name())
		}
		c.byName[t.Name()] = t
	}
	return c, nil
}

// TeamNames returns the registered team names in registration order.
func (c *Coordinator) TeamNames() []string {
	names := make([]string, len(c.teams))
	for i, t := range c.teams {
		names[i] = t.Name()
	}
	return names
}

// Project returns a copy of a tracked project.
func (c *Coordinator) Project(id string) (Project, bool) { return c.projects.get(id) }

// Projects returns copies of every tracked project.
func (c *Coordinator) Projects() []Project { return c.projects.list(nil) }

// ActiveProjects returns copies of the projects currently executing.
func (c *Coordinator) ActiveProjects() []Project {
	return c.projects.list(func(p *Project) bool { return p.Status == ProjectInProgress })
}

// Plan turns goal into projects without executing them. With one team a
// bare scaffold request becomes a single project without consulting the
// planner; otherwise the planner splits the goal. With several teams the
// planner assigns projects to teams.
func (c *Coordinator) Plan(ctx context.Context, goal string) []*Project {
	var out []*Project
	if len(c.teams) == 1 {
		name := c.teams[0].Name()
		if worker.IsScaffoldRequest(goal) {
			p := newProject(goal, goal, task.PriorityMedium, name)
			p.Scaffold = true
			out = append(out, p)
			c.logger.Info("scaffold_fast_path", map[string]interface{}{"team": name})
		} else {
			for _, spec := range c.planner.Projects(ctx, goal) {
				out = append(out, newProject(spec.Title, spec.Description, spec.Priority, name))
			}
		}
	} else {
		for _, a := range c.planner.Assign(ctx, goal, c.TeamNames(), c.describe) {
			t := c.team(a.Team)
			if t == nil {
				c.logger.Warn("unknown_team_assignment", map[string]interface{}{"team": a.Team, "projects": len(a.Projects)})
				continue
			}
			for _, spec := range a.Projects {
				out = append(out, newProject(spec.Title, spec.Description, spec.Priority, t.Name()))
			}
		}
		if len(out) == 0 {
			name := c.teams[0].Name()
			for _, spec := range c.planner.Projects(ctx, goal) {
				out = append(out, newProject(spec.Title, spec.Description, spec.Priority, name))
			}
			c.logger.Warn("assignment_fallback", map[string]interface{}{"team": name, "projects": len(out)})
		}
	}
	for _, p := range out {
		c.projects.add(p)
	}
	c.logger.Info("goal_planned", map[string]interface{}{"projects": len(out), "teams": len(c.teams)})
	return out
}

// team looks a team up by name, ignoring case when there is no exact match.
func (c *Coordinator) team(name string) Runner {
	if t, ok := c.byName[name]; ok {
		return t
	}
	for _, t := range c.teams {
		if strings.EqualFold(t.Name(), name) {
			return t
		}
	}
	return nil
}

func (c *Coordinator) describe(name string) string {
	t, ok := c.byName[name]
	if !ok {
		return ""
	}
	roles := make([]string, 0, len(t.Roles()))
	for _, r := range t.Roles() {
		roles = append(roles, string(r))
	}
	return "workers: " + strings.Join(roles, ", ")
}

// Run plans goal and executes its projects. A single team runs its projects
// in order; several teams run concurrently, each in its own order. Run never
// panics and never returns an error: the outcome is in the result.
func (c *Coordinator) Run(ctx context.Context, goal string) *RunResult {
	ctx, span := startRunSpan(ctx, goal, len(c.teams))
	projects := c.Plan(ctx, goal)

	var groups []teamProjects
	index := map[string]int{}
	for _, p := range projects {
		t := c.team(p.Team)
		if t == nil {
			t = c.teams[0]
			p.Team = t.Name()
		}
		i, ok := index[p.Team]
		if !ok {
			i = len(groups)
			index[p.Team] = i
			groups = append(groups, teamProjects{team: t})
		}
		groups[i].projects = append(groups[i].projects, p)
	}

	var results []TeamResult
	if len(groups) == 1 {
		results = append(results, c.runTeam(ctx, groups[0].team, groups[0].projects))
	} else {
		results = c.fanOut(ctx, groups)
	}

	res := aggregate(results)
	c.logger.Info("run_complete", map[string]interface{}{
		"total":     res.Total,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
		"escalated": res.Escalated,
	})
	endRunSpan(span, res)
	return res
}

type teamProjects struct {
	team     Runner
	projects []*Project
}

// fanOut runs one pipeline per team concurrently and joins them.
func (c *Coordinator) fanOut(ctx context.Context, groups []teamProjects) []TeamResult {
	ch := make(chan TeamResult, len(groups))
	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g teamProjects) {
			defer wg.Done()
			ch <- c.runTeam(ctx, g.team, g.projects)
		}(g)
	}
	wg.Wait()
	close(ch)

	results := make([]TeamResult, 0, len(groups))
	for r := range ch {
		results = append(results, r)
	}
	return results
}

// runTeam executes projects strictly in order. A confirmed escalation stops
// the remaining projects of this team only.
func (c *Coordinator) runTeam(ctx context.Context, t Runner, projects []*Project) TeamResult {
	tr := TeamResult{Team: t.Name()}
	for _, p := range projects {
		tr.Projects = append(tr.Projects, p)
		if tr.Escalated {
			c.setStatus(p, ProjectBlocked, "not started: team escalated", nil)
			tr.Failed++
			continue
		}

		res := c.runProject(ctx, t, p)
		switch {
		case res.Success:
			c.setStatus(p, ProjectCompleted, "", res)
			tr.Succeeded++
		case res.Escalated:
			tr.Failed++
			if c.escalate(ctx, p, res) {
				tr.Escalated = true
				tr.Reason = res.Reason
			}
		default:
			c.setStatus(p, ProjectFailed, res.Reason, res)
			tr.Failed++
		}
	}
	return tr
}

// runProject executes one project, converting panics into an escalation.
func (c *Coordinator) runProject(ctx context.Context, t Runner, p *Project) (res *team.WorkflowResult) {
	c.setStatus(p, ProjectInProgress, "", nil)
	c.logger.Info("project_start", map[string]interface{}{
		"project": p.ID,
		"team":    t.Name(),
		"title":   p.Title,
	})
	defer func() {
		if rec := recover(); rec != nil {
			res = team.NewEscalation(p.Task, team.EscalationExecution, fmt.Sprintf("project %q failed: %v", p.Title, rec))
			c.logger.Error("project_panic", map[string]interface{}{"project": p.ID, "error": fmt.Sprint(rec)})
		}
		if res == nil {
			res = team.NewEscalation(p.Task, team.EscalationExecution, fmt.Sprintf("project %q produced no result", p.Title))
		}
	}()

	if p.Scaffold {
		return t.RunBreakdown(ctx, scaffoldBreakdown(p.Task))
	}
	return t.Run(ctx, p.Task)
}

// scaffoldBreakdown is the plan of a bare scaffold request: one step.
func scaffoldBreakdown(parent *task.Task) *task.Breakdown {
	bd := &task.Breakdown{Parent: parent}
	st := task.NewChild(parent, task.KindImplement, parent.Title, parent.Description)
	st.Set(task.CtxRole, string(tools.RoleGeneral))
	bd.AddImplementation(st)
	return bd
}

// escalate consults the resolver. It reports true when a human must decide.
func (c *Coordinator) escalate(ctx context.Context, p *Project, res *team.WorkflowResult) bool {
	resolution, note := decision.ConfirmHuman, res.Reason
	if c.resolver != nil {
		resolution, note = c.resolver.Resolve(ctx, p.Title, res.Reason)
	}

	if resolution == decision.ResolveLocally {
		reason := res.Reason
		if note != "" {
			reason += " (resolved: " + note + ")"
		}
		c.setStatus(p, ProjectFailed, reason, res)
		c.logger.Info("escalation_resolved", map[string]interface{}{"project": p.ID, "note": note})
		return false
	}

	snapshot := c.setStatus(p, ProjectBlocked, res.Reason, res)
	c.logger.Warn("escalation_confirmed", map[string]interface{}{
		"project": p.ID,
		"team":    p.Team,
		"kind":    string(res.Kind),
		"reason":  res.Reason,
	})
	if c.onEscalation != nil {
		c.onEscalation(res.Reason, snapshot)
	}
	return true
}

func (c *Coordinator) setStatus(p *Project, status ProjectStatus, reason string, res *team.WorkflowResult) Project {
	snapshot := c.projects.update(p, status, reason, res)
	if c.onProject != nil {
		c.onProject(snapshot)
	}
	return snapshot
}
