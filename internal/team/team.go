// Package team runs the plan, execute, verify and fix workflow for one
// high-level task.
package team

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/crew/internal/decision"
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/tools"
	"github.com/vinayprograms/crew/internal/worker"
)

// DefaultMaxIterations bounds the execute/verify/fix cycle.
const DefaultMaxIterations = 5

// Executor runs sub-tasks for one role.
type Executor interface {
	Name() string
	Role() tools.Role
	Execute(ctx context.Context, t *task.Task) *worker.TaskResult
}

// Planner breaks a parent task into implementation and verification sub-tasks.
type Planner interface {
	Breakdown(ctx context.Context, parent *task.Task) (*task.Breakdown, error)
}

// Decider judges a sub-task outcome.
type Decider interface {
	Decide(ctx context.Context, t *task.Task, res *worker.TaskResult) (decision.Decision, error)
}

// Config configures a team.
type Config struct {
	Name          string
	Workers       []Executor
	Planner       Planner
	Decider       Decider // nil proceeds on every outcome
	MaxIterations int

	// OnOutcome is called after every sub-task execution.
	OnOutcome func(iteration int, o Outcome)
}

// Team executes workflows. A team runs one workflow at a time.
type Team struct {
	name          string
	workers       map[tools.Role]Executor
	fallback      Executor
	planner       Planner
	decider       Decider
	maxIterations int
	registry      *task.Registry
	onOutcome     func(int, Outcome)
	logger        *logging.Logger
}

// New creates a team.
func New(cfg Config) (*Team, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	if len(cfg.Workers) == 0 {
		return nil, fmt.Errorf("team %s has no workers", cfg.Name)
	}
	if cfg.Planner == nil {
		return nil, fmt.Errorf("team %s has no planner", cfg.Name)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	t := &Team{
		name:          cfg.Name,
		workers:       make(map[tools.Role]Executor, len(cfg.Workers)),
		fallback:      cfg.Workers[0],
		planner:       cfg.Planner,
		decider:       cfg.Decider,
		maxIterations: cfg.MaxIterations,
		registry:      task.NewRegistry(),
		onOutcome:     cfg.OnOutcome,
		logger:        logging.New().WithComponent("team." + cfg.Name),
	}
	for _, w := range cfg.Workers {
		if _, dup := t.workers[w.Role()]; !dup {
			t.workers[w.Role()] = w
		}
	}
	if g, ok := t.workers[tools.RoleGeneral]; ok {
		t.fallback = g
	}
	return t, nil
}

// Name returns the team name.
func (t *Team) Name() string { return t.name }

// Roles returns the roles the team has workers for.
func (t *Team) Roles() []tools.Role {
	var out []tools.Role
	for _, r := range tools.Roles {
		if _, ok := t.workers[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Tasks returns every task the team has tracked.
func (t *Team) Tasks() []*task.Task { return t.registry.All() }

// run holds the state of one workflow.
type run struct {
	parent    *task.Task
	breakdown *task.Breakdown
	result    *WorkflowResult
	last      map[string]*worker.TaskResult
}

// Run executes the workflow for parent.
func (t *Team) Run(ctx context.Context, parent *task.Task) *WorkflowResult {
	ctx, span := t.startWorkflowSpan(ctx, parent)
	res := t.run(ctx, parent, nil)
	t.endWorkflowSpan(span, res)
	return res
}

// RunBreakdown executes a workflow whose plan is already known. The
// planner is not consulted.
func (t *Team) RunBreakdown(ctx context.Context, bd *task.Breakdown) *WorkflowResult {
	ctx, span := t.startWorkflowSpan(ctx, bd.Parent)
	res := t.run(ctx, bd.Parent, bd)
	t.endWorkflowSpan(span, res)
	return res
}

func (t *Team) run(ctx context.Context, parent *task.Task, bd *task.Breakdown) *WorkflowResult {
	t.registry.Add(parent)
	parent.Start()
	t.logger.Info("workflow_start", map[string]interface{}{
		"task":    parent.ID,
		"title":   parent.Title,
		"planned": bd != nil,
	})

	if bd == nil || len(bd.Order) == 0 {
		var err error
		if bd, err = t.plan(ctx, parent); err != nil {
			parent.Block()
			res := &WorkflowResult{Parent: parent}
			res.escalate(EscalationPlanningFailed, fmt.Sprintf("planning failed: %v", err))
			t.logger.Warn("team_escalated", map[string]interface{}{"task": parent.ID, "kind": string(res.Kind), "reason": res.Reason})
			return res
		}
	}

	r := &run{
		parent:    parent,
		breakdown: bd,
		result:    &WorkflowResult{Parent: parent, Breakdown: bd},
		last:      make(map[string]*worker.TaskResult),
	}
	for _, st := range bd.Tasks() {
		st.ParentID = parent.ID
		t.registry.Add(st)
	}

	for r.result.Iterations < t.maxIterations {
		r.result.Iterations++
		iteration := r.result.Iterations
		t.logger.Info("workflow_iteration", map[string]interface{}{
			"task":      parent.ID,
			"iteration": iteration,
			"steps":     len(bd.Order),
		})

		if stop := t.pass(ctx, r, iteration); stop {
			parent.Block()
			t.logger.Warn("team_escalated", map[string]interface{}{"task": parent.ID, "kind": string(r.result.Kind), "reason": r.result.Reason})
			return r.result
		}

		failed := failedVerifications(bd)
		if len(failed) == 0 || r.result.Iterations >= t.maxIterations {
			break
		}
		for _, v := range failed {
			t.injectFix(r, v)
		}
	}

	return t.finish(r)
}

// plan obtains and validates the breakdown.
func (t *Team) plan(ctx context.Context, parent *task.Task) (bd *task.Breakdown, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("planner panicked: %v", rec)
		}
	}()
	bd, err = t.planner.Breakdown(ctx, parent)
	if err != nil {
		return nil, err
	}
	if bd == nil || len(bd.Order) == 0 {
		return nil, fmt.Errorf("empty breakdown")
	}
	bd.Parent = parent
	return bd, nil
}

// pass walks the execution order once. It reports true when a decision
// escalated.
func (t *Team) pass(ctx context.Context, r *run, iteration int) bool {
	ran := make(map[string]bool)
	// Fix entries are appended only between passes.
	for _, step := range r.breakdown.Order {
		st, ok := t.registry.Get(step.TaskID)
		if !ok || st.Status == task.StatusCompleted || ran[st.ID] {
			continue
		}
		if fixID := st.Get(task.CtxAwaitingFix); fixID != "" {
			if fix, ok := t.registry.Get(fixID); ok && (fix.Status == task.StatusPending || fix.Status == task.StatusInProgress) {
				continue
			}
			st.Unset(task.CtxAwaitingFix)
		}
		ran[st.ID] = true

		res := t.execute(ctx, r, iteration, step.Role, st)
		dec := t.decide(ctx, st, res)
		if dec.Action == decision.ActionRetry && st.Status != task.StatusCompleted {
			prior := res.Error
			if prior == "" {
				prior = res.Output
			}
			st.Set(task.CtxPreviousError, prior)
			if dec.Feedback != "" {
				st.Set(task.CtxFeedback, dec.Feedback)
			}
			st.Requeue()
			res = t.execute(ctx, r, iteration, step.Role, st)
			dec = t.decide(ctx, st, res)
		}
		if dec.Action == decision.ActionEscalate {
			reason := dec.Feedback
			if reason == "" {
				reason = res.Error
			}
			r.result.escalate(EscalationDecision, fmt.Sprintf("sub-task %q escalated: %s", st.Title, reason))
			return true
		}
	}
	return false
}

// execute runs one sub-task on the matching worker and records the outcome.
func (t *Team) execute(ctx context.Context, r *run, iteration int, role task.StepRole, st *task.Task) *worker.TaskResult {
	if st.Status.Terminal() {
		st.Requeue()
	}
	st.Start()

	w := t.workerFor(role, st)
	res := safeExecute(ctx, w, st)
	if res.Success {
		st.Complete()
		st.Unset(task.CtxPreviousError)
	} else {
		st.Fail()
	}
	r.last[st.ID] = res

	o := Outcome{Task: st, Worker: w.Name(), Result: res}
	if role == task.RoleQA {
		r.result.Verification = append(r.result.Verification, o)
	} else {
		r.result.Implementation = append(r.result.Implementation, o)
	}
	t.logger.Info("subtask_outcome", map[string]interface{}{
		"task":      st.ID,
		"role":      string(role),
		"worker":    w.Name(),
		"success":   res.Success,
		"attempts":  res.Attempts,
		"iteration": iteration,
	})
	if t.onOutcome != nil {
		t.onOutcome(iteration, o)
	}
	return res
}

func safeExecute(ctx context.Context, w Executor, st *task.Task) (res *worker.TaskResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = &worker.TaskResult{Error: fmt.Sprintf("worker %s panicked: %v", w.Name(), rec)}
		}
	}()
	res = w.Execute(ctx, st)
	if res == nil {
		res = &worker.TaskResult{Error: fmt.Sprintf("worker %s returned no result", w.Name())}
	}
	return res
}

func (t *Team) decide(ctx context.Context, st *task.Task, res *worker.TaskResult) decision.Decision {
	if t.decider == nil {
		return decision.Decision{Action: decision.ActionProceed}
	}
	dec, err := t.decider.Decide(ctx, st, res)
	if err != nil {
		t.logger.Warn("decision_failed", map[string]interface{}{"task": st.ID, "error": err.Error()})
		return decision.Fallback(res)
	}
	return dec
}

// injectFix appends a fix task for the failed verification v and resets v.
func (t *Team) injectFix(r *run, v *task.Task) {
	feedback := ""
	if res := r.last[v.ID]; res != nil {
		feedback = res.Output
		if feedback == "" {
			feedback = res.Error
		}
	}

	fix := task.NewChild(r.parent, task.KindFix, "Fix: "+strings.TrimPrefix(v.Title, "Verify "), v.Description)
	fix.Set(task.CtxFeedback, feedback)
	fix.Set(task.CtxVerifies, v.ID)
	if implID := v.Get(task.CtxVerifies); implID != "" {
		if impl, ok := t.registry.Get(implID); ok {
			for _, k := range []string{task.CtxFiles, task.CtxRole, task.CtxContract} {
				if val := impl.Get(k); val != "" {
					fix.Set(k, val)
				}
			}
		}
	}

	r.breakdown.AppendFix(fix, v)
	t.registry.Add(fix)
	v.Reset()
	v.Set(task.CtxAwaitingFix, fix.ID)

	t.logger.Info("fix_task_injected", map[string]interface{}{
		"task":     fix.ID,
		"verifies": v.ID,
	})
}

func failedVerifications(bd *task.Breakdown) []*task.Task {
	var out []*task.Task
	for _, v := range bd.Verification {
		if v.Status == task.StatusFailed {
			out = append(out, v)
		}
	}
	return out
}

// finish applies the completion check.
func (t *Team) finish(r *run) *WorkflowResult {
	res := r.result
	complete := true
	for _, st := range t.registry.Tree(r.parent.ID)[1:] {
		if st.Status != task.StatusCompleted {
			complete = false
			break
		}
	}

	switch {
	case complete:
		r.parent.Complete()
		res.Success = true
		t.logger.Info("workflow_complete", map[string]interface{}{"task": r.parent.ID, "iterations": res.Iterations})
	case res.Iterations >= t.maxIterations:
		r.parent.Block()
		res.escalate(EscalationIterationBudget, fmt.Sprintf("iteration budget of %d exhausted with incomplete sub-tasks", t.maxIterations))
		t.logger.Warn("team_escalated", map[string]interface{}{"task": r.parent.ID, "kind": string(res.Kind), "reason": res.Reason})
	default:
		r.parent.Fail()
		res.Reason = "sub-tasks failed: " + strings.Join(incomplete(t.registry.Tree(r.parent.ID)[1:]), ", ")
		t.logger.Info("workflow_failed", map[string]interface{}{"task": r.parent.ID, "reason": res.Reason})
	}
	return res
}

func incomplete(list []*task.Task) []string {
	var out []string
	for _, st := range list {
		if st.Status != task.StatusCompleted {
			out = append(out, st.Title)
		}
	}
	return out
}
