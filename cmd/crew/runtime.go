package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/crew/internal/config"
	"github.com/vinayprograms/crew/internal/coordinator"
	"github.com/vinayprograms/crew/internal/decision"
	"github.com/vinayprograms/crew/internal/escalation"
	"github.com/vinayprograms/crew/internal/persona"
	"github.com/vinayprograms/crew/internal/planning"
	"github.com/vinayprograms/crew/internal/session"
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/team"
	"github.com/vinayprograms/crew/internal/tools"
	"github.com/vinayprograms/crew/internal/worker"
)

// runtime holds all the components needed to run a goal.
type runtime struct {
	cfg   *config.Config
	creds *credentials.Credentials
	out   io.Writer

	// Components
	provider    llm.Provider // workers
	smallLLM    llm.Provider // planner, decider, resolver
	registry    *tools.Registry
	personas    persona.Set
	planner     *planning.Planner
	decider     *decision.Decider
	resolver    *decision.Resolver
	notifier    *escalation.Notifier
	nc          *nats.Conn
	journal     *session.Journal
	teams       []coordinator.Runner
	coordinator *coordinator.Coordinator
	logger      *logging.Logger

	closers []func()
}

// newRuntime creates a new runtime.
func newRuntime(cfg *config.Config, creds *credentials.Credentials, out io.Writer) *runtime {
	return &runtime{
		cfg:    cfg,
		creds:  creds,
		out:    out,
		logger: logging.New().WithComponent("crew"),
	}
}

// setup initializes every component for goal. Providers already set are
// kept.
func (rt *runtime) setup(goal string, teamNames []string) error {
	if err := rt.createProviders(); err != nil {
		return err
	}
	if err := rt.setupRegistry(); err != nil {
		return err
	}
	if err := rt.setupPersonas(); err != nil {
		return err
	}
	teams, err := rt.selectTeams(teamNames)
	if err != nil {
		return err
	}
	rt.setupEscalation()
	if err := rt.setupJournal(goal, teams); err != nil {
		return err
	}
	if err := rt.setupTeams(teams); err != nil {
		return err
	}
	return rt.setupCoordinator()
}

// addCloser registers a cleanup function, run in reverse order.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// cleanup releases resources.
func (rt *runtime) cleanup() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// apiKey prefers credentials.toml over the configured environment variable.
func (rt *runtime) apiKey(provider string, cfg config.LLMConfig) string {
	if rt.creds != nil {
		if key := rt.creds.GetAPIKey(provider); key != "" {
			return key
		}
	}
	return cfg.GetAPIKey()
}

func (rt *runtime) newProvider(cfg config.LLMConfig) (llm.Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("LLM model not configured")
	}
	name := cfg.Provider
	if name == "" {
		name = llm.InferProviderFromModel(cfg.Model)
	}
	return llm.NewProvider(llm.ProviderConfig{
		Provider:    name,
		Model:       cfg.Model,
		APIKey:      rt.apiKey(name, cfg),
		MaxTokens:   cfg.MaxTokens,
		BaseURL:     cfg.BaseURL,
		Thinking:    llm.ThinkingConfig{Level: llm.ThinkingLevel(cfg.Thinking)},
		RetryConfig: parseRetryConfig(cfg.MaxRetries, cfg.RetryBackoff),
	})
}

// createProviders creates the worker and planner providers.
func (rt *runtime) createProviders() error {
	var err error
	if rt.provider == nil {
		if rt.provider, err = rt.newProvider(rt.cfg.LLM); err != nil {
			return fmt.Errorf("creating LLM provider: %w", err)
		}
	}
	if rt.smallLLM == nil {
		if rt.cfg.SmallLLM.Model == "" {
			rt.smallLLM = rt.provider
			return nil
		}
		if rt.smallLLM, err = rt.newProvider(rt.cfg.Small()); err != nil {
			// The worker model can plan too.
			rt.logger.Warn("small_llm_unavailable", map[string]interface{}{"error": err.Error()})
			rt.smallLLM = rt.provider
		}
	}
	return nil
}

// parseRetryConfig builds the backend retry policy.
func parseRetryConfig(maxRetries int, backoff string) llm.RetryConfig {
	cfg := llm.RetryConfig{MaxRetries: maxRetries}
	if backoff != "" {
		if d, err := time.ParseDuration(backoff); err == nil {
			cfg.MaxBackoff = d
		}
	}
	return cfg
}

// setupRegistry creates the built-in tool registry.
func (rt *runtime) setupRegistry() error {
	ws := tools.Workspace{
		Root:           config.ExpandPath(rt.cfg.Workspace.Root),
		CommandTimeout: rt.cfg.CommandTimeout(),
		DeniedCommands: rt.cfg.Workspace.DeniedCommands,
	}
	var err error
	rt.registry, err = tools.NewRegistry(tools.Builtins(ws)...)
	if err != nil {
		return fmt.Errorf("creating tool registry: %w", err)
	}
	return nil
}

// setupPersonas loads persona overrides for worker prompts.
func (rt *runtime) setupPersonas() error {
	dirs := make([]string, len(rt.cfg.Personas.Paths))
	for i, p := range rt.cfg.Personas.Paths {
		dirs[i] = config.ExpandPath(p)
	}
	set, err := persona.Discover(dirs...)
	if err != nil {
		return fmt.Errorf("loading personas: %w", err)
	}
	rt.personas = set
	return nil
}

// selectTeams resolves team names against the config.
func (rt *runtime) selectTeams(names []string) ([]config.TeamConfig, error) {
	all := rt.cfg.Teams
	if len(all) == 0 {
		all = []config.TeamConfig{config.DefaultTeam()}
	}
	if len(names) == 0 {
		return all, nil
	}
	var out []config.TeamConfig
	for _, n := range names {
		t, ok := rt.cfg.Team(n)
		if !ok {
			return nil, fmt.Errorf("unknown team %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

// setupEscalation starts the notifier with a console observer and, when
// configured, a NATS observer.
func (rt *runtime) setupEscalation() {
	warn := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	observers := []escalation.Observer{func(e escalation.Event) {
		fmt.Fprintf(rt.out, "%s %s: %s\n", warn.Render("escalation"), e.Subject, e.Reason)
	}}

	if url := rt.cfg.Escalation.NATSURL; url != "" {
		nc, err := escalation.Connect(url)
		if err != nil {
			rt.logger.Warn("nats_unavailable", map[string]interface{}{"url": url, "error": err.Error()})
		} else {
			rt.nc = nc
			observers = append(observers, escalation.NATSObserver(nc, rt.cfg.Escalation.Subject))
		}
	}

	rt.notifier = escalation.New(rt.cfg.Escalation.Buffer, observers...)
	// Closers run in reverse: drain the notifier before the connection.
	if rt.nc != nil {
		nc := rt.nc
		rt.addCloser(func() { nc.Drain() })
	}
	rt.addCloser(rt.notifier.Close)
}

// setupJournal opens the run journal.
func (rt *runtime) setupJournal(goal string, teams []config.TeamConfig) error {
	if !rt.cfg.Storage.Journal {
		return nil
	}
	names := make([]string, len(teams))
	for i, t := range teams {
		names[i] = t.Name
	}
	j, err := session.Open(rt.cfg.StoragePath(), goal, names)
	if err != nil {
		return fmt.Errorf("opening run journal: %w", err)
	}
	rt.journal = j
	rt.journal.Add(session.Event{Type: session.EventRunStart, Content: goal})
	rt.addCloser(func() { rt.journal.Close(session.StatusFailed, "interrupted") })
	return nil
}

// setupTeams builds one team per config entry, each with its own workers.
func (rt *runtime) setupTeams(teams []config.TeamConfig) error {
	rt.planner = planning.New(rt.smallLLM)
	rt.decider = decision.NewDecider(rt.smallLLM)
	rt.resolver = decision.NewResolver(rt.smallLLM)

	for _, tc := range teams {
		var workers []team.Executor
		for _, role := range tc.Roles() {
			workers = append(workers, rt.newWorker(tc.Name, role))
		}
		t, err := team.New(team.Config{
			Name:          tc.Name,
			Workers:       workers,
			Planner:       rt.planner,
			Decider:       rt.decider,
			MaxIterations: rt.cfg.Limits.TeamIterations,
		})
		if err != nil {
			return err
		}
		rt.teams = append(rt.teams, t)
	}
	return nil
}

func (rt *runtime) newWorker(teamName string, role tools.Role) *worker.Worker {
	name := teamName + "." + string(role)
	w := worker.New(worker.Config{
		Name:          name,
		Role:          role,
		Provider:      rt.provider,
		Tools:         rt.registry,
		SystemPrompt:  rt.personas.SystemPrompt(role),
		MaxIterations: rt.cfg.Limits.ToolIterations,
		MaxAttempts:   rt.cfg.Limits.TaskAttempts,
	})
	w.OnToolCall = func(tool string, res tools.Result, d time.Duration) {
		rt.journal.Add(session.Event{
			Type:       session.EventToolCall,
			Team:       teamName,
			Worker:     name,
			Tool:       tool,
			Success:    session.Bool(res.Success),
			Error:      res.Error,
			DurationMs: d.Milliseconds(),
		})
	}
	w.OnAttempt = func(t *task.Task, attempt int, err error) {
		e := session.Event{
			Type:    session.EventTaskAttempt,
			Team:    teamName,
			Worker:  name,
			Task:    t.Title,
			Attempt: attempt,
			Success: session.Bool(err == nil),
		}
		if err != nil {
			e.Error = err.Error()
		}
		rt.journal.Add(e)
	}
	return w
}

// setupCoordinator wires the coordinator to the journal and notifier.
func (rt *runtime) setupCoordinator() error {
	c, err := coordinator.New(coordinator.Config{
		Teams:    rt.teams,
		Planner:  rt.planner,
		Resolver: rt.resolver,
		OnProject: func(p coordinator.Project) {
			e := session.Event{Team: p.Team, Project: p.Title, Error: p.Reason}
			if p.Status == coordinator.ProjectInProgress {
				e.Type = session.EventProjectStart
			} else {
				e.Type = session.EventProjectEnd
				e.Content = string(p.Status)
				e.Success = session.Bool(p.Status == coordinator.ProjectCompleted)
			}
			rt.journal.Add(e)
		},
		OnEscalation: func(reason string, p coordinator.Project) {
			rt.journal.Add(session.Event{
				Type:    session.EventEscalation,
				Team:    p.Team,
				Project: p.Title,
				Error:   reason,
			})
			rt.notifier.Publish(escalation.Event{
				Reason:    reason,
				Subject:   p.Title,
				SubjectID: p.ID,
				Team:      p.Team,
			})
		},
	})
	if err != nil {
		return err
	}
	rt.coordinator = c
	return nil
}

// finish records the outcome in the journal.
func (rt *runtime) finish(res *coordinator.RunResult) {
	status := session.StatusComplete
	switch {
	case res.Escalated:
		status = session.StatusEscalated
	case !res.Success:
		status = session.StatusFailed
	}
	rt.journal.Add(session.Event{
		Type:    session.EventRunEnd,
		Content: fmt.Sprintf("%d/%d projects succeeded", res.Succeeded, res.Total),
		Success: session.Bool(res.Success),
		Error:   res.Reason,
	})
	if err := rt.journal.Close(status, strings.TrimSpace(res.Reason)); err != nil {
		rt.logger.Warn("journal_close_failed", map[string]interface{}{"error": err.Error()})
	}
}
