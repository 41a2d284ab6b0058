package replay

import (
	"fmt"

	"github.com/vinayprograms/crew/internal/session"
)

// formatEvent formats a single event for display.
func (r *Replayer) formatEvent(event *session.Event, lastProject *string) {
	// Show project transitions
	if event.Project != "" && event.Project != *lastProject {
		fmt.Fprintln(r.output)
		fmt.Fprintf(r.output, "%s %s %s\n", projectStyle.Render("PROJECT:"), valueStyle.Render(event.Project), dimStyle.Render("["+event.Team+"]"))
		fmt.Fprintln(r.output)
		*lastProject = event.Project
	}

	ts := timeStyle.Render(event.Timestamp.Format("15:04:05"))
	seqNum := seqStyle.Render(fmt.Sprintf("%d", event.SeqID))

	switch event.Type {
	case session.EventRunStart:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, titleStyle.Render("RUN START"))
	case session.EventRunEnd:
		r.fmtRunEnd(seqNum, ts, event)
	case session.EventProjectStart:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, projectStyle.Render("PROJECT START"))
	case session.EventProjectEnd:
		r.fmtProjectEnd(seqNum, ts, event)
	case session.EventTaskAttempt:
		r.fmtTaskAttempt(seqNum, ts, event)
	case session.EventToolCall:
		r.fmtToolCall(seqNum, ts, event)
	case session.EventEscalation:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts, warnStyle.Render("ESCALATION:"), valueStyle.Render(r.truncate(event.Error)))
	default:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, dimStyle.Render(event.Type))
	}
}

func (r *Replayer) fmtRunEnd(seqNum, ts string, event *session.Event) {
	status := successStyle.Render("RUN END")
	if !succeeded(event) {
		status = errorStyle.Render("RUN END")
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts, status, dimStyle.Render(event.Content))
}

func (r *Replayer) fmtProjectEnd(seqNum, ts string, event *session.Event) {
	style := successStyle
	if !succeeded(event) {
		style = errorStyle
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts, projectStyle.Render("PROJECT END:"), style.Render(event.Content))
	if event.Error != "" {
		fmt.Fprintf(r.output, "      │          │   %s\n", errorStyle.Render(r.truncate(event.Error)))
	}
}

func (r *Replayer) fmtTaskAttempt(seqNum, ts string, event *session.Event) {
	result := successStyle.Render("ok")
	if !succeeded(event) {
		result = errorStyle.Render("failed")
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s %s\n", seqNum, ts,
		workerStyle.Render(event.Worker),
		valueStyle.Render(r.truncate(event.Task)),
		dimStyle.Render(fmt.Sprintf("attempt %d", event.Attempt)),
		result)
	if event.Error != "" {
		fmt.Fprintf(r.output, "      │          │   %s\n", errorStyle.Render(r.truncate(event.Error)))
	}
}

func (r *Replayer) fmtToolCall(seqNum, ts string, event *session.Event) {
	ok := succeeded(event)
	if ok && !r.verbose {
		return
	}
	name := toolStyle.Render(event.Tool)
	if !ok {
		name = errorStyle.Render(event.Tool + " FAILED")
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
		toolStyle.Render("TOOL:"), name,
		dimStyle.Render(fmt.Sprintf("(%dms)", event.DurationMs)))
	if event.Error != "" {
		fmt.Fprintf(r.output, "      │          │   %s\n", errorStyle.Render(r.truncate(event.Error)))
	}
}

func succeeded(event *session.Event) bool {
	return event.Success != nil && *event.Success
}
