package replay

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/crew/internal/session"
)

// Stats holds aggregate statistics for a run.
type Stats struct {
	// Wall time between the first and last event
	TotalDurationMs int64

	Projects         int
	ProjectsOK       int
	Escalations      int
	Attempts         int
	FailedAttempts   int
	ToolCalls        int
	ToolFailures     int
	ToolTotalMs      int64
	ToolCallsByName  map[string]int
	AttemptsByWorker map[string]int
}

// ComputeStats calculates aggregate statistics from run events.
func ComputeStats(run *session.Run) *Stats {
	stats := &Stats{
		ToolCallsByName:  make(map[string]int),
		AttemptsByWorker: make(map[string]int),
	}

	var firstEvent, lastEvent time.Time
	for i := range run.Events {
		event := &run.Events[i]
		if firstEvent.IsZero() || event.Timestamp.Before(firstEvent) {
			firstEvent = event.Timestamp
		}
		if lastEvent.IsZero() || event.Timestamp.After(lastEvent) {
			lastEvent = event.Timestamp
		}

		switch event.Type {
		case session.EventProjectEnd:
			stats.Projects++
			if succeeded(event) {
				stats.ProjectsOK++
			}
		case session.EventEscalation:
			stats.Escalations++
		case session.EventTaskAttempt:
			stats.Attempts++
			stats.AttemptsByWorker[event.Worker]++
			if !succeeded(event) {
				stats.FailedAttempts++
			}
		case session.EventToolCall:
			stats.ToolCalls++
			stats.ToolCallsByName[event.Tool]++
			stats.ToolTotalMs += event.DurationMs
			if !succeeded(event) {
				stats.ToolFailures++
			}
		}
	}
	if !firstEvent.IsZero() {
		stats.TotalDurationMs = lastEvent.Sub(firstEvent).Milliseconds()
	}
	return stats
}

// PrintStats outputs formatted statistics.
func PrintStats(w io.Writer, stats *Stats) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("RUN STATISTICS"))
	fmt.Fprintln(w, divider)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Total Duration:"), valueStyle.Render(formatDuration(stats.TotalDurationMs)))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Projects:      "), valueStyle.Render(fmt.Sprintf("%d/%d succeeded", stats.ProjectsOK, stats.Projects)))
	if stats.Escalations > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Escalations:   "), warnStyle.Render(fmt.Sprintf("%d", stats.Escalations)))
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Task Attempts: "), valueStyle.Render(fmt.Sprintf("%d (%d failed)", stats.Attempts, stats.FailedAttempts)))

	if stats.ToolCalls > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Tool Calls:"))
		for _, name := range sortedKeys(stats.ToolCallsByName) {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(name+":"), valueStyle.Render(fmt.Sprintf("%d", stats.ToolCallsByName[name])))
		}
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("failures:"), valueStyle.Render(fmt.Sprintf("%d", stats.ToolFailures)))
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("avg:"), valueStyle.Render(formatDuration(stats.ToolTotalMs/int64(stats.ToolCalls))))
	}

	if len(stats.AttemptsByWorker) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Attempts by Worker:"))
		for _, name := range sortedKeys(stats.AttemptsByWorker) {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(name+":"), valueStyle.Render(fmt.Sprintf("%d", stats.AttemptsByWorker[name])))
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatDuration formats milliseconds as a human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dm%ds", ms/60000, (ms%60000)/1000)
}
