// Package replay renders run journals as a readable timeline.
package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/crew/internal/session"
)

// Replayer reads and formats run journals.
type Replayer struct {
	output         io.Writer
	verbose        bool // include successful tool calls
	maxContentSize int  // Maximum size for Content fields (0 = unlimited)
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithMaxContentSize limits the size of event content shown.
func WithMaxContentSize(size int) ReplayerOption {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// New creates a new Replayer.
func New(output io.Writer, verbose bool, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		output:         output,
		verbose:        verbose,
		maxContentSize: 200,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads and replays a journal file.
func (r *Replayer) ReplayFile(path string) error {
	run, err := session.Load(path)
	if err != nil {
		return err
	}
	return r.Replay(run)
}

// Replay outputs a formatted timeline of run events.
func (r *Replayer) Replay(run *session.Run) error {
	r.printHeader(run)
	r.printTimeline(run)
	r.printSummary(run)
	return nil
}

func (r *Replayer) printHeader(run *session.Run) {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("RUN"), valueStyle.Render(run.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Goal:   "), valueStyle.Render(run.Goal))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Teams:  "), valueStyle.Render(strings.Join(run.Teams, ", ")))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status: "), statusStyle(run.Status).Render(run.Status))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created:"), valueStyle.Render(run.CreatedAt.Format(time.RFC3339)))
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(run *session.Run) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(run.Events))))
	fmt.Fprintln(r.output, divider)

	var lastProject string
	for i := range run.Events {
		r.formatEvent(&run.Events[i], &lastProject)
	}
}

func (r *Replayer) printSummary(run *session.Run) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)

	switch run.Status {
	case session.StatusComplete:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
	case session.StatusFailed:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("FAILED:"), valueStyle.Render(run.Result))
	case session.StatusEscalated:
		fmt.Fprintf(r.output, "%s %s\n", warnStyle.Render("ESCALATED:"), valueStyle.Render(run.Result))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}

	PrintStats(r.output, ComputeStats(run))
}

// statusStyle returns the style for a run status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case session.StatusComplete:
		return successStyle
	case session.StatusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}

func (r *Replayer) truncate(s string) string {
	if r.maxContentSize <= 0 {
		return s
	}
	return truncateContent(s, r.maxContentSize)
}

// truncateContent flattens s to one line of at most maxLen bytes.
func truncateContent(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
