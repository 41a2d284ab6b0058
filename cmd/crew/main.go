// Package main is the entry point for the crew CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/crew/internal/config"
	"github.com/vinayprograms/crew/internal/replay"
	"github.com/vinayprograms/crew/internal/tools"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// globalCreds holds loaded credentials (file > env fallback happens in apiKey)
var globalCreds *credentials.Credentials

func init() {
	// Priority: credentials.toml > env vars
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		globalCreds = creds
	}

	// Load .env for any additional env vars
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("crew"),
		kong.Description("Plan, build and verify software with teams of LLM workers."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// loadConfig loads the given file, or crew.toml from the current directory,
// or the defaults when neither exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Run executes the run command.
func (c *RunCmd) Run() error {
	goal := joinGoal(c.Goal)
	if goal == "" {
		return fmt.Errorf("goal is required")
	}
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Workspace != "" {
		cfg.Workspace.Root = c.Workspace
	}
	if c.NoJournal {
		cfg.Storage.Journal = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rt := newRuntime(cfg, globalCreds, os.Stdout)
	defer rt.cleanup()
	if err := rt.setup(goal, c.Team); err != nil {
		return err
	}

	res := rt.coordinator.Run(ctx, goal)
	rt.finish(res)

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newRunReport(goal, rt.journal.Path(), res)); err != nil {
			return err
		}
	} else {
		renderResult(os.Stdout, res, rt.journal.Path(), terminalWidth())
	}
	if !res.Success {
		return fmt.Errorf("goal not achieved: %s", res.Reason)
	}
	return nil
}

// Run executes the plan command.
func (c *PlanCmd) Run() error {
	goal := joinGoal(c.Goal)
	if goal == "" {
		return fmt.Errorf("goal is required")
	}
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	cfg.Storage.Journal = false

	rt := newRuntime(cfg, globalCreds, os.Stdout)
	defer rt.cleanup()
	if err := rt.setup(goal, c.Team); err != nil {
		return err
	}
	renderPlan(os.Stdout, rt.coordinator.Plan(context.Background(), goal), terminalWidth())
	return nil
}

// Run executes the tools command.
func (c *ToolsCmd) Run() error {
	role, ok := tools.ParseRole(c.Role)
	if !ok {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	registry, err := tools.NewRegistry(tools.Builtins(tools.Workspace{Root: c.Workspace})...)
	if err != nil {
		return err
	}
	renderTools(os.Stdout, role, tools.Filter(registry.List(), role), terminalWidth())
	return nil
}

// Run executes the replay command.
func (c *ReplayCmd) Run() error {
	if !c.Follow {
		return replay.New(os.Stdout, c.Verbose).ReplayFile(c.Journal)
	}
	render := func() (string, error) { return replay.Render(c.Journal, c.Verbose) }
	return replay.NewPager("crew replay "+filepath.Base(c.Journal), render).Follow(c.Journal)
}

// Run executes the version command.
func (c *VersionCmd) Run() error {
	fmt.Printf("crew version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
