// Package worker runs tasks against the completion backend: the tool-invocation
// loop, its wire protocol, and the verification and retry loop around it.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/tools"
)

// MaxAttempts is the attempt budget of the verification loop.
const MaxAttempts = 3

// defaultProjectName is used when a scaffold request names no project.
const defaultProjectName = "app"

// TaskResult is the outcome of executing one task.
type TaskResult struct {
	Success        bool
	Output         string
	Error          string
	Attempts       int
	Metrics        Metrics // calls made by the final attempt
	Classification Classification
}

// Config configures a worker.
type Config struct {
	Name          string
	Role          tools.Role
	Provider      llm.Provider
	Tools         *tools.Registry // filtered to Role by New
	SystemPrompt  string
	MaxIterations int
	MaxAttempts   int
}

// Worker executes tasks for one role. A worker runs one task at a time.
type Worker struct {
	name          string
	role          tools.Role
	provider      llm.Provider
	registry      *tools.Registry
	systemPrompt  string
	maxIterations int
	maxAttempts   int
	metrics       *Metrics
	logger        *logging.Logger

	// OnToolCall is called after each tool call of every attempt.
	OnToolCall func(tool string, res tools.Result, duration time.Duration)

	// OnAttempt is called after each attempt. err is nil for a successful attempt.
	OnAttempt func(t *task.Task, attempt int, err error)
}

// New creates a worker.
func New(cfg Config) *Worker {
	if cfg.Role == "" {
		cfg.Role = tools.RoleGeneral
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Role)
	}
	if cfg.MaxAttempts <= 0 || cfg.MaxAttempts > MaxAttempts {
		cfg.MaxAttempts = MaxAttempts
	}
	registry := cfg.Tools.ForRole(cfg.Role)
	if registry == nil {
		registry, _ = tools.NewRegistry()
	}
	return &Worker{
		name:          cfg.Name,
		role:          cfg.Role,
		provider:      cfg.Provider,
		registry:      registry,
		systemPrompt:  cfg.SystemPrompt,
		maxIterations: cfg.MaxIterations,
		maxAttempts:   cfg.MaxAttempts,
		metrics:       newMetrics(),
		logger:        logging.New().WithComponent("worker." + cfg.Name),
	}
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// Role returns the worker role.
func (w *Worker) Role() tools.Role { return w.role }

// Tools returns the tools visible to this worker.
func (w *Worker) Tools() []tools.Tool { return w.registry.List() }

// Metrics returns a snapshot of the current attempt's counters.
func (w *Worker) Metrics() Metrics { return w.metrics.Snapshot() }

// Execute runs t until an attempt produces the evidence its classification
// requires, or the attempt budget is spent.
func (w *Worker) Execute(ctx context.Context, t *task.Task) *TaskResult {
	class := ClassifyTask(t)
	budget := w.maxAttempts
	if t.MaxAttempts > 0 && t.MaxAttempts < budget {
		budget = t.MaxAttempts
	}

	ctx, span := w.startTaskSpan(ctx, t, class)
	result := &TaskResult{Classification: class}
	var reason error

	for attempt := 1; attempt <= budget; attempt++ {
		if err := ctx.Err(); err != nil {
			reason = err
			break
		}
		w.metrics.Reset()
		result.Attempts = attempt

		loop := NewLoop(w.provider, w.registry, w.maxIterations, w.metrics)
		loop.OnToolCall = w.OnToolCall
		out, err := loop.Run(ctx, w.exchange(t, class, attempt, reason))
		result.Metrics = w.metrics.Snapshot()
		if out != nil {
			result.Output = out.Output
		}

		if err == nil {
			err = CheckEvidence(class.Class, result.Metrics)
		}
		if err != nil {
			reason = err
			w.logger.Warn("task_attempt_rejected", map[string]interface{}{
				"task":    t.ID,
				"attempt": attempt,
				"class":   string(class.Class),
				"calls":   result.Metrics.Total,
				"reason":  err.Error(),
			})
			w.attemptDone(t, attempt, err)
			continue
		}

		if err := CheckOutcome(result.Output, result.Metrics); err != nil {
			result.Error = err.Error()
			w.logger.Info("task_attempt_failed", map[string]interface{}{
				"task":    t.ID,
				"attempt": attempt,
				"reason":  result.Error,
			})
			w.attemptDone(t, attempt, err)
			w.endTaskSpan(span, result)
			return result
		}

		result.Success = true
		w.logger.Info("task_attempt_succeeded", map[string]interface{}{
			"task":    t.ID,
			"attempt": attempt,
			"calls":   result.Metrics.Total,
		})
		w.attemptDone(t, attempt, nil)
		w.endTaskSpan(span, result)
		return result
	}

	if reason != nil {
		result.Error = reason.Error()
	}
	w.endTaskSpan(span, result)
	return result
}

func (w *Worker) attemptDone(t *task.Task, attempt int, err error) {
	if w.OnAttempt != nil {
		w.OnAttempt(t, attempt, err)
	}
}

// exchange builds the instruction for one attempt.
func (w *Worker) exchange(t *task.Task, class Classification, attempt int, reason error) Exchange {
	ex := Exchange{
		System: w.systemPrompt,
		Prompt: t.Prompt(),
	}
	if ex.System == "" {
		ex.System = defaultSystemPrompt(w.role)
	}

	if attempt == 1 && class.Class == ClassScaffold {
		if gen, ok := w.registry.Get(tools.ToolGenerateProject); ok {
			ex.Tools = []llm.ToolDef{{Name: gen.Name, Description: gen.Description, Parameters: gen.Schema()}}
			ex.Prompt += "\n\n" + scaffoldInstruction(class)
		}
	}

	if reason != nil {
		ex.Prompt = retryPrompt(t, class, reason)
	}
	return ex
}

func scaffoldInstruction(class Classification) string {
	name := class.ProjectName
	if name == "" {
		name = defaultProjectName
	}
	s := fmt.Sprintf("Call the %s tool now with projectName=%q", tools.ToolGenerateProject, name)
	if class.Template != "" {
		s += fmt.Sprintf(" and template=%q", class.Template)
	}
	return s + ". Do not describe the project; generate it."
}

func retryPrompt(t *task.Task, class Classification, reason error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your previous attempt was rejected: %s\n\n", reason.Error())
	sb.WriteString("Do not describe what you would do. Perform the work now by ")
	if required := RequiredTool(class.Class); required != "" {
		fmt.Fprintf(&sb, "calling the %s tool", required)
	} else {
		sb.WriteString("calling the tools you need")
	}
	sb.WriteString(", then summarize what changed.\n\n")
	if class.Class == ClassScaffold {
		sb.WriteString(scaffoldInstruction(class))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Task:\n")
	sb.WriteString(t.Prompt())
	return sb.String()
}

func defaultSystemPrompt(role tools.Role) string {
	switch role {
	case tools.RoleQA:
		return "You are a QA engineer. Verify the work by reading files and running tests. " +
			"End your reply with a line 'VERDICT: PASS' or 'VERDICT: FAIL: <reason>'."
	case tools.RoleFrontend:
		return "You are a frontend engineer. Make changes by calling tools, not by describing them."
	case tools.RoleBackend:
		return "You are a backend engineer. Make changes by calling tools, not by describing them."
	case tools.RoleDevOps:
		return "You are a devops engineer. Make changes by calling tools, not by describing them."
	default:
		return "You are a software engineer. Make changes by calling tools, not by describing them."
	}
}
