package team

import (
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/worker"
)

// EscalationKind names why a workflow escalated.
type EscalationKind string

const (
	EscalationPlanningFailed  EscalationKind = "planning_failed"
	EscalationDecision        EscalationKind = "decision_escalated"
	EscalationIterationBudget EscalationKind = "iteration_budget"
	EscalationExecution       EscalationKind = "execution_error"
)

// EscalationError is a workflow escalation.
type EscalationError struct {
	Kind   EscalationKind
	Reason string
}

func (e *EscalationError) Error() string {
	return string(e.Kind) + ": " + e.Reason
}

// Outcome pairs a sub-task with the result of one execution.
type Outcome struct {
	Task   *task.Task
	Worker string
	Result *worker.TaskResult
}

// WorkflowResult is the outcome of one workflow. Do not modify it once returned.
type WorkflowResult struct {
	Success        bool
	Parent         *task.Task
	Breakdown      *task.Breakdown
	Implementation []Outcome
	Verification   []Outcome
	Iterations     int
	Escalated      bool
	Kind           EscalationKind
	Reason         string
}

// NewEscalation builds the result of a workflow that could not run at all.
func NewEscalation(parent *task.Task, kind EscalationKind, reason string) *WorkflowResult {
	r := &WorkflowResult{Parent: parent}
	r.escalate(kind, reason)
	return r
}

func (r *WorkflowResult) escalate(kind EscalationKind, reason string) {
	r.Success = false
	r.Escalated = true
	r.Kind = kind
	r.Reason = reason
}

// Err returns the escalation as an error, or nil.
func (r *WorkflowResult) Err() error {
	if !r.Escalated {
		return nil
	}
	return &EscalationError{Kind: r.Kind, Reason: r.Reason}
}
