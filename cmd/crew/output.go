package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/vinayprograms/crew/internal/coordinator"
	"github.com/vinayprograms/crew/internal/tools"
)

// Styles for terminal output
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - headers

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - labels

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")) // Green

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow
)

// terminalWidth returns $COLUMNS, or 100.
func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 20 {
		return n
	}
	return 100
}

// wrap word-wraps s to width and indents continuation lines by pad spaces.
func wrap(s string, width, pad int) string {
	w := width - pad
	if w < 20 {
		w = 20
	}
	wrapped := wordwrap.String(strings.TrimSpace(s), w)
	if pad == 0 {
		return wrapped
	}
	return strings.TrimLeft(indent.String(wrapped, uint(pad)), " ")
}

func statusStyle(status coordinator.ProjectStatus) lipgloss.Style {
	switch status {
	case coordinator.ProjectCompleted:
		return okStyle
	case coordinator.ProjectFailed:
		return failStyle
	case coordinator.ProjectBlocked:
		return warnStyle
	default:
		return labelStyle
	}
}

// renderResult prints a run summary.
func renderResult(w io.Writer, res *coordinator.RunResult, journal string, width int) {
	for _, tr := range res.Teams {
		fmt.Fprintf(w, "%s %s\n", titleStyle.Render("TEAM"), tr.Team)
		for _, p := range tr.Projects {
			fmt.Fprintf(w, "  %-12s %s\n", statusStyle(p.Status).Render(string(p.Status)), p.Title)
			if p.Reason != "" && p.Status != coordinator.ProjectCompleted {
				fmt.Fprintf(w, "               %s\n", labelStyle.Render(wrap(p.Reason, width, 15)))
			}
		}
	}

	summary := fmt.Sprintf("%d/%d projects succeeded", res.Succeeded, res.Total)
	switch {
	case res.Success:
		fmt.Fprintf(w, "\n%s %s\n", okStyle.Render("SUCCESS"), summary)
	case res.Escalated:
		fmt.Fprintf(w, "\n%s %s\n", warnStyle.Render("ESCALATED"), summary)
	default:
		fmt.Fprintf(w, "\n%s %s\n", failStyle.Render("FAILED"), summary)
	}
	if !res.Success && res.Reason != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("reason:"), wrap(res.Reason, width, 8))
	}
	if journal != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("journal:"), journal)
	}
}

// renderPlan prints planned projects in execution order.
func renderPlan(w io.Writer, projects []*coordinator.Project, width int) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects planned.")
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("PLAN (%d projects)", len(projects))))
	for i, p := range projects {
		fmt.Fprintf(w, "%2d. [%s] %s %s\n", i+1, p.Team, p.Title, labelStyle.Render("("+string(p.Priority)+")"))
		if p.Description != "" && p.Description != p.Title {
			fmt.Fprintf(w, "    %s\n", wrap(p.Description, width, 4))
		}
	}
}

// renderTools prints the tools visible to role.
func renderTools(w io.Writer, role tools.Role, list []tools.Tool, width int) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("TOOLS for"), role)
	for _, t := range list {
		var params []string
		for _, p := range t.Params {
			name := p.Name
			if !p.Required {
				name += "?"
			}
			params = append(params, name)
		}
		fmt.Fprintf(w, "  %s(%s)\n", t.Name, strings.Join(params, ", "))
		fmt.Fprintf(w, "    %s\n", labelStyle.Render(wrap(t.Description, width, 4)))
	}
}

// runReport is the --json form of a run result.
type runReport struct {
	Goal      string          `json:"goal"`
	Success   bool            `json:"success"`
	Escalated bool            `json:"escalated"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Reason    string          `json:"reason,omitempty"`
	Journal   string          `json:"journal,omitempty"`
	Projects  []projectReport `json:"projects"`
}

type projectReport struct {
	ID       string `json:"id"`
	Team     string `json:"team"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

func newRunReport(goal, journal string, res *coordinator.RunResult) runReport {
	r := runReport{
		Goal:      goal,
		Success:   res.Success,
		Escalated: res.Escalated,
		Total:     res.Total,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Reason:    res.Reason,
		Journal:   journal,
		Projects:  []projectReport{},
	}
	if res.Success {
		r.Reason = ""
	}
	for _, tr := range res.Teams {
		for _, p := range tr.Projects {
			r.Projects = append(r.Projects, projectReport{
				ID:       p.ID,
				Team:     p.Team,
				Title:    p.Title,
				Priority: string(p.Priority),
				Status:   string(p.Status),
				Reason:   p.Reason,
			})
		}
	}
	return r
}
