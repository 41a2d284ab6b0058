package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
)

// Resolution is the verdict on a team escalation.
type Resolution string

const (
	ResolveLocally Resolution = "RESOLVE"
	ConfirmHuman   Resolution = "ESCALATE"
)

// Resolver decides whether a team escalation needs a human.
type Resolver struct {
	provider llm.Provider
	logger   *logging.Logger
}

// NewResolver creates a resolver.
func NewResolver(provider llm.Provider) *Resolver {
	return &Resolver{
		provider: provider,
		logger:   logging.New().WithComponent("escalation-resolver"),
	}
}

// Resolve judges an escalation raised while working on project. Errors and
// unclear answers confirm human escalation.
func (r *Resolver) Resolve(ctx context.Context, project, reason string) (Resolution, string) {
	prompt := fmt.Sprintf(`PROJECT: %s

The team escalated with this reason:
%s

Can this be handled by marking the project failed and continuing with the
remaining projects, or does a human need to decide?

Respond with ONE of:
- RESOLVE: "<note>"
- ESCALATE: "<question for the human>"`, project, reason)

	resp, err := r.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You triage escalations from autonomous software teams. Escalate anything that risks data loss, security or cost."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		r.logger.Warn("resolver_llm_error", map[string]interface{}{"error": err.Error()})
		return ConfirmHuman, reason
	}
	res, note := ParseResolution(resp.Content)
	if note == "" {
		note = reason
	}
	r.logger.Info("escalation_resolved", map[string]interface{}{
		"project":    project,
		"resolution": string(res),
	})
	return res, note
}

// ParseResolution reads a RESOLVE/ESCALATE answer. Anything else confirms
// human escalation.
func ParseResolution(content string) (Resolution, string) {
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*# "))
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, string(ResolveLocally)):
			return ResolveLocally, afterColon(line, string(ResolveLocally))
		case strings.HasPrefix(upper, string(ConfirmHuman)):
			return ConfirmHuman, afterColon(line, string(ConfirmHuman))
		}
	}
	return ConfirmHuman, ""
}
