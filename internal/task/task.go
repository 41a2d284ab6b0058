// Package task defines the units of work the orchestration engine plans,
// executes and verifies.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies what a task asks for.
type Kind string

const (
	KindImplement Kind = "implement"
	KindFix       Kind = "fix"
	KindTest      Kind = "test"
	KindReview    Kind = "review"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// Terminal reports whether no further transition is allowed without a reset.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusBlocked
}

// Priority orders tasks and projects.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps free text onto a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "[]"))
	s = strings.TrimSpace(strings.TrimPrefix(s, "priority:"))
	switch {
	case strings.HasPrefix(s, "crit"):
		return PriorityCritical
	case strings.HasPrefix(s, "high"):
		return PriorityHigh
	case strings.HasPrefix(s, "low"):
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Context bag keys understood by the engine.
const (
	CtxFeedback      = "feedback"
	CtxPreviousError = "previous_error"
	CtxRole          = "role"
	CtxFiles         = "files"
	CtxContract      = "contract"
	CtxVerifies      = "verifies"
	CtxAwaitingFix   = "awaiting_fix"
)

// DefaultMaxAttempts is the attempt bound for a task when none is given.
const DefaultMaxAttempts = 3

// ErrInvalidTransition is returned when a status change would resurrect a
// finished task.
var ErrInvalidTransition = errors.New("invalid status transition")

// Task is a unit of work.
type Task struct {
	ID          string
	Kind        Kind
	Title       string
	Description string
	Status      Status
	Priority    Priority
	Author      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Attempts    int
	MaxAttempts int
	ParentID    string
	Context     map[string]string
}

// New creates a pending task with a fresh identifier.
func New(kind Kind, title, description string) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.New().String(),
		Kind:        kind,
		Title:       title,
		Description: description,
		Status:      StatusPending,
		Priority:    PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
		MaxAttempts: DefaultMaxAttempts,
		Context:     map[string]string{},
	}
}

// NewChild creates a sub-task of parent. Author and priority are inherited.
func NewChild(parent *Task, kind Kind, title, description string) *Task {
	t := New(kind, title, description)
	if parent != nil {
		t.ParentID = parent.ID
		t.Author = parent.Author
		t.Priority = parent.Priority
	}
	return t
}

// Get returns a context value.
func (t *Task) Get(key string) string {
	if t.Context == nil {
		return ""
	}
	return t.Context[key]
}

// Set stores a context value.
func (t *Task) Set(key, value string) {
	if t.Context == nil {
		t.Context = map[string]string{}
	}
	t.Context[key] = value
	t.UpdatedAt = time.Now()
}

// Unset removes a context value.
func (t *Task) Unset(key string) {
	delete(t.Context, key)
}

// Prompt renders the task as an instruction for a worker.
func (t *Task) Prompt() string {
	var sb strings.Builder
	sb.WriteString(t.Title)
	if t.Description != "" && t.Description != t.Title {
		sb.WriteString("\n\n")
		sb.WriteString(t.Description)
	}
	if files := t.Get(CtxFiles); files != "" {
		sb.WriteString("\n\nFiles: " + files)
	}
	if contract := t.Get(CtxContract); contract != "" {
		sb.WriteString("\n\nContract:\n" + contract)
	}
	if fb := t.Get(CtxFeedback); fb != "" {
		sb.WriteString("\n\nVerification feedback to address:\n" + fb)
	}
	if prev := t.Get(CtxPreviousError); prev != "" {
		sb.WriteString("\n\nThe previous attempt failed with:\n" + prev)
	}
	return sb.String()
}

// Start moves a pending task to in_progress and counts an attempt.
// Starting a task that is already in progress is a no-op.
func (t *Task) Start() error {
	switch t.Status {
	case StatusInProgress:
		return nil
	case StatusPending:
		t.Status = StatusInProgress
		t.Attempts++
		t.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusInProgress)
	}
}

// Complete marks the task completed. Re-completing is a no-op.
func (t *Task) Complete() error { return t.finish(StatusCompleted) }

// Fail marks the task failed. Re-failing is a no-op.
func (t *Task) Fail() error { return t.finish(StatusFailed) }

// Block marks the task blocked. Re-blocking is a no-op.
func (t *Task) Block() error { return t.finish(StatusBlocked) }

func (t *Task) finish(to Status) error {
	if t.Status == to {
		return nil
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

// Requeue returns a finished, not completed, task to pending for another
// run. The attempt counter is kept.
func (t *Task) Requeue() error {
	switch t.Status {
	case StatusPending, StatusInProgress:
		return nil
	case StatusFailed, StatusBlocked:
		t.Status = StatusPending
		t.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusPending)
	}
}

// Reset returns the task to pending and clears its attempt counter.
func (t *Task) Reset() {
	t.Status = StatusPending
	t.Attempts = 0
	t.UpdatedAt = time.Now()
}
