// Package main defines the CLI structure using kong.
package main

import "strings"

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Plan and execute a goal"`
	Plan    PlanCmd    `cmd:"" help:"Show the project plan for a goal without executing it"`
	Tools   ToolsCmd   `cmd:"" help:"List the tools visible to a worker role"`
	Replay  ReplayCmd  `cmd:"" help:"Replay a run journal"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// RunCmd plans a goal and executes its projects.
type RunCmd struct {
	Goal      []string `arg:"" help:"Goal to accomplish"`
	Team      []string `short:"t" help:"Team to use (repeatable, default: every configured team)"`
	Config    string   `short:"c" help:"Config file path (default: ./crew.toml)"`
	Workspace string   `short:"w" help:"Workspace directory (overrides config)"`
	JSON      bool     `help:"Print the result as JSON"`
	NoJournal bool     `help:"Do not record a run journal"`
}

// PlanCmd prints the project plan for a goal.
type PlanCmd struct {
	Goal   []string `arg:"" help:"Goal to plan"`
	Team   []string `short:"t" help:"Team to plan for (repeatable, default: every configured team)"`
	Config string   `short:"c" help:"Config file path (default: ./crew.toml)"`
}

// ToolsCmd lists tools after capability filtering.
type ToolsCmd struct {
	Role      string `short:"r" default:"general" enum:"frontend,backend,general,qa,devops" help:"Worker role"`
	Workspace string `short:"w" default:"." help:"Workspace directory"`
}

// ReplayCmd renders a run journal.
type ReplayCmd struct {
	Journal string `arg:"" help:"Path to a run journal (.jsonl)" type:"existingfile"`
	Verbose bool   `short:"v" help:"Show successful tool calls"`
	Follow  bool   `short:"f" help:"Open a live pager that updates as the journal grows"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func joinGoal(words []string) string {
	return strings.TrimSpace(strings.Join(words, " "))
}
