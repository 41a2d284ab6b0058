// Package planning turns goals and tasks into plans using a language model.
// Unparsable answers degrade to a single synthesized unit of work.
package planning

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/crew/internal/task"
)

// Planner is the planning collaborator.
type Planner struct {
	provider llm.Provider
	logger   *logging.Logger

	// OnCall is called before every completion request.
	OnCall func(kind string)
}

// New creates a planner.
func New(provider llm.Provider) *Planner {
	return &Planner{
		provider: provider,
		logger:   logging.New().WithComponent("planner"),
	}
}

func (p *Planner) ask(ctx context.Context, kind, system, prompt string) (string, error) {
	if p.OnCall != nil {
		p.OnCall(kind)
	}
	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		p.logger.Error("planner_llm_error", map[string]interface{}{"kind": kind, "error": err.Error()})
		return "", fmt.Errorf("planner LLM error: %w", err)
	}
	return resp.Content, nil
}

// Breakdown plans implementation and verification sub-tasks for parent.
// Backend errors are returned; unparsable answers fall back to one
// implementation and one verification task.
func (p *Planner) Breakdown(ctx context.Context, parent *task.Task) (*task.Breakdown, error) {
	content, err := p.ask(ctx, "breakdown", breakdownSystemPrompt, parent.Prompt())
	if err != nil {
		return nil, err
	}
	if bd, ok := ParseBreakdown(parent, content); ok {
		p.logger.Info("breakdown_planned", map[string]interface{}{
			"task":           parent.ID,
			"implementation": len(bd.Implementation),
			"verification":   len(bd.Verification),
		})
		return bd, nil
	}
	p.logger.Warn("breakdown_fallback", map[string]interface{}{"task": parent.ID})
	return FallbackBreakdown(parent), nil
}

// Projects plans the projects for a goal. It never fails: errors and
// unparsable answers yield one project wrapping the whole goal.
func (p *Planner) Projects(ctx context.Context, goal string) []ProjectSpec {
	content, err := p.ask(ctx, "projects", projectsSystemPrompt, goal)
	if err == nil {
		if specs := ParseProjects(content); len(specs) > 0 {
			p.logger.Info("projects_planned", map[string]interface{}{"count": len(specs)})
			return specs
		}
	}
	p.logger.Warn("projects_fallback", nil)
	return []ProjectSpec{FallbackProject(goal)}
}

// Assign distributes a goal's projects across teams. Errors and unparsable
// answers assign the whole goal to the first team.
func (p *Planner) Assign(ctx context.Context, goal string, teams []string, describe func(team string) string) []Assignment {
	if len(teams) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("GOAL:\n")
	sb.WriteString(goal)
	sb.WriteString("\n\nTEAMS:\n")
	for _, t := range teams {
		sb.WriteString("- " + t)
		if describe != nil {
			if d := describe(t); d != "" {
				sb.WriteString(": " + d)
			}
		}
		sb.WriteString("\n")
	}

	content, err := p.ask(ctx, "assign", assignSystemPrompt, sb.String())
	if err == nil {
		if as := ParseAssignments(content, teams); len(as) > 0 {
			p.logger.Info("teams_assigned", map[string]interface{}{"teams": len(as)})
			return as
		}
	}
	p.logger.Warn("assign_fallback", map[string]interface{}{"team": teams[0]})
	return []Assignment{{Team: teams[0], Projects: []ProjectSpec{FallbackProject(goal)}}}
}

const breakdownSystemPrompt = `You are a tech lead breaking a task into sub-tasks for developers and QA.

Respond in exactly this format:

IMPLEMENTATION:
1. [Title] | description | files: a.js, b.js | role: frontend|backend|general
2. ...

VERIFICATION:
1. [Title] | what to check and how | verifies: <implementation number>

Keep implementation steps in dependency order. Every implementation step
should have a verification step.`

const projectsSystemPrompt = `You are a program manager splitting a goal into independent projects.

Respond in exactly this format:

PROJECTS:
1. [Title] | [Priority: low|medium|high|critical] | Description

Use a single project when the goal is small.`

const assignSystemPrompt = `You are a program manager assigning projects to teams.
Only use the team names given.

Respond in exactly this format, one block per team that has work:

TEAM: <team name>
1. [Title] | [Priority] | Description

TEAM: <team name>
1. [Title] | [Priority] | Description`
