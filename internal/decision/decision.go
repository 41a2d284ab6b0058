// Package decision provides the collaborators that judge sub-task outcomes
// and team escalations.
package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/worker"
)

// Action is what to do after a sub-task outcome.
type Action string

const (
	ActionProceed  Action = "PROCEED"
	ActionRetry    Action = "RETRY"
	ActionEscalate Action = "ESCALATE"
)

// Decision is a judged outcome.
type Decision struct {
	Action   Action
	Feedback string
}

// Fallback is the decision used when no decider answers: proceed on
// success, retry on failure.
func Fallback(res *worker.TaskResult) Decision {
	if res != nil && res.Success {
		return Decision{Action: ActionProceed}
	}
	return Decision{Action: ActionRetry}
}

// Decider judges sub-task outcomes with a language model.
type Decider struct {
	provider llm.Provider
	logger   *logging.Logger
}

// NewDecider creates a decider.
func NewDecider(provider llm.Provider) *Decider {
	return &Decider{
		provider: provider,
		logger:   logging.New().WithComponent("decider"),
	}
}

// Decide judges one outcome. Successful outcomes proceed without a model call.
func (d *Decider) Decide(ctx context.Context, t *task.Task, res *worker.TaskResult) (Decision, error) {
	if res != nil && res.Success {
		return Decision{Action: ActionProceed}, nil
	}

	resp, err := d.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: deciderSystemPrompt},
			{Role: "user", Content: buildDecisionPrompt(t, res)},
		},
	})
	if err != nil {
		d.logger.Error("decider_llm_error", map[string]interface{}{"error": err.Error()})
		return Decision{}, fmt.Errorf("decider LLM error: %w", err)
	}

	dec := ParseDecision(resp.Content)
	d.logger.Info("decision", map[string]interface{}{
		"task":   t.ID,
		"action": string(dec.Action),
	})
	return dec, nil
}

func buildDecisionPrompt(t *task.Task, res *worker.TaskResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SUB-TASK: %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(&sb, "DESCRIPTION: %s\n", t.Description)
	}
	fmt.Fprintf(&sb, "KIND: %s\n", t.Kind)
	fmt.Fprintf(&sb, "TEAM ATTEMPTS: %d\n\n", t.Attempts)
	if res != nil {
		fmt.Fprintf(&sb, "WORKER ATTEMPTS: %d\n", res.Attempts)
		fmt.Fprintf(&sb, "TOOL CALLS: %d (%d failed)\n", res.Metrics.Total, res.Metrics.Failures)
		if res.Error != "" {
			fmt.Fprintf(&sb, "ERROR: %s\n", res.Error)
		}
		if res.Output != "" {
			fmt.Fprintf(&sb, "OUTPUT:\n%s\n", res.Output)
		}
	}
	sb.WriteString(`
Respond with ONE of:
- PROCEED: the failure is acceptable or will be handled later
- RETRY: "<guidance for the next attempt>"
- ESCALATE: "<why a human is needed>"`)
	return sb.String()
}

// ParseDecision reads the first action line of a response. Unclear
// responses proceed.
func ParseDecision(content string) Decision {
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*# "))
		upper := strings.ToUpper(line)
		for _, a := range []Action{ActionProceed, ActionRetry, ActionEscalate} {
			if strings.HasPrefix(upper, string(a)) || strings.HasPrefix(upper, "DECISION: "+string(a)) {
				return Decision{Action: a, Feedback: afterColon(line, string(a))}
			}
		}
	}
	return Decision{Action: ActionProceed}
}

func afterColon(line, keyword string) string {
	idx := strings.Index(strings.ToUpper(line), keyword)
	rest := line[idx+len(keyword):]
	if i := strings.Index(rest, ":"); i != -1 {
		return strings.Trim(strings.TrimSpace(rest[i+1:]), `"`)
	}
	return ""
}

const deciderSystemPrompt = `You are a technical lead reviewing the outcome of a sub-task in a software team.

Be pragmatic:
- Transient or fixable failures deserve one more attempt (RETRY) with concrete guidance
- Failures a later verification step will catch can PROCEED
- Only ESCALATE when the work cannot succeed without a human decision

Respond with exactly one action: PROCEED, RETRY or ESCALATE.`
