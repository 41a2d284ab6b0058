package planning

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vinayprograms/crew/internal/task"
)

// ProjectSpec is a planned unit of work for a team.
type ProjectSpec struct {
	Title       string
	Priority    task.Priority
	Description string
}

// Assignment is the list of projects planned for one team.
type Assignment struct {
	Team     string
	Projects []ProjectSpec
}

var (
	itemPattern    = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s*(.+)$`)
	teamPattern    = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?TEAM\s*:\s*(.+?)\s*$`)
	sectionPattern = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?\**\s*(IMPLEMENTATION|VERIFICATION|PROJECTS)\b[^:]*:\**\s*$`)
)

// fields splits a "[Title] | a | b" item into trimmed parts.
func fields(item string) []string {
	parts := strings.Split(item, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) > 0 {
		parts[0] = strings.TrimSpace(strings.Trim(parts[0], "[]*"))
	}
	return parts
}

// keyValue parses "key: value" segments.
func keyValue(part string) (string, string, bool) {
	k, v, ok := strings.Cut(part, ":")
	if !ok {
		return "", "", false
	}
	k = strings.ToLower(strings.TrimSpace(k))
	if strings.ContainsAny(k, " \t") {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}

func section(line string) string {
	if m := sectionPattern.FindStringSubmatch(line); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// ParseBreakdown reads IMPLEMENTATION: and VERIFICATION: sections of
// "N. [Title] | description | key: value ..." items. ok is false when no
// implementation item was found.
func ParseBreakdown(parent *task.Task, text string) (*task.Breakdown, bool) {
	bd := &task.Breakdown{Parent: parent}
	var verifies []string
	current := ""
	for _, line := range strings.Split(text, "\n") {
		if s := section(line); s != "" {
			current = s
			continue
		}
		m := itemPattern.FindStringSubmatch(line)
		if m == nil || current == "" {
			continue
		}
		parts := fields(m[1])
		if parts[0] == "" {
			continue
		}

		kind := task.KindImplement
		if current == "VERIFICATION" {
			kind = task.KindTest
		}
		st := task.NewChild(parent, kind, parts[0], "")
		ref := ""
		for _, p := range parts[1:] {
			k, v, ok := keyValue(p)
			switch {
			case ok && (k == "files" || k == "file"):
				st.Set(task.CtxFiles, v)
			case ok && k == "role":
				st.Set(task.CtxRole, v)
			case ok && k == "contract":
				st.Set(task.CtxContract, v)
			case ok && k == "verifies":
				ref = v
			case st.Description == "":
				st.Description = p
			default:
				st.Description += " " + p
			}
		}
		if st.Description == "" {
			st.Description = st.Title
		}

		switch current {
		case "IMPLEMENTATION":
			bd.AddImplementation(st)
		case "VERIFICATION":
			bd.AddVerification(st)
			verifies = append(verifies, ref)
		}
	}
	if len(bd.Implementation) == 0 {
		return nil, false
	}

	for i, v := range bd.Verification {
		ref := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(verifies[i]), "#"))
		n, err := strconv.Atoi(ref)
		if err != nil || n < 1 || n > len(bd.Implementation) {
			// Unreferenced checks verify the last implementation step.
			n = len(bd.Implementation)
		}
		v.Set(task.CtxVerifies, bd.Implementation[n-1].ID)
	}
	return bd, true
}

// FallbackBreakdown is one implementation task for the whole parent plus
// one verification task for it.
func FallbackBreakdown(parent *task.Task) *task.Breakdown {
	bd := &task.Breakdown{Parent: parent}
	impl := task.NewChild(parent, task.KindImplement, parent.Title, parent.Description)
	for _, k := range []string{task.CtxFiles, task.CtxRole, task.CtxContract} {
		if v := parent.Get(k); v != "" {
			impl.Set(k, v)
		}
	}
	bd.AddImplementation(impl)
	v := task.NewChild(parent, task.KindTest, "Verify "+parent.Title, "Check that the work is complete and correct: "+parent.Title)
	v.Set(task.CtxVerifies, impl.ID)
	bd.AddVerification(v)
	return bd
}

// parseProject reads "[Title] | [Priority] | Description". A missing
// priority column is tolerated.
func parseProject(item string) (ProjectSpec, bool) {
	parts := fields(item)
	if parts[0] == "" {
		return ProjectSpec{}, false
	}
	p := ProjectSpec{Title: parts[0], Priority: task.PriorityMedium}
	switch len(parts) {
	case 1:
	case 2:
		p.Description = parts[1]
	default:
		p.Priority = task.ParsePriority(parts[1])
		p.Description = strings.Join(parts[2:], " | ")
	}
	if p.Description == "" {
		p.Description = p.Title
	}
	return p, true
}

// ParseProjects reads a PROJECTS: block.
func ParseProjects(text string) []ProjectSpec {
	var out []ProjectSpec
	in := false
	for _, line := range strings.Split(text, "\n") {
		if s := section(line); s != "" {
			in = s == "PROJECTS"
			continue
		}
		if !in {
			continue
		}
		if m := itemPattern.FindStringSubmatch(line); m != nil {
			if p, ok := parseProject(m[1]); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

// ParseAssignments reads "TEAM: name" headers each followed by project
// items. Team names match registered names case-insensitively; other teams
// are discarded. Assignments keep the order teams first appear.
func ParseAssignments(text string, teams []string) []Assignment {
	canonical := make(map[string]string, len(teams))
	for _, t := range teams {
		canonical[strings.ToLower(t)] = t
	}

	var out []Assignment
	index := map[string]int{}
	current := -1
	for _, line := range strings.Split(text, "\n") {
		if m := teamPattern.FindStringSubmatch(line); m != nil {
			name := strings.ToLower(strings.Trim(m[1], "[]*` "))
			team, ok := canonical[name]
			if !ok {
				current = -1
				continue
			}
			i, seen := index[team]
			if !seen {
				i = len(out)
				index[team] = i
				out = append(out, Assignment{Team: team})
			}
			current = i
			continue
		}
		if current < 0 {
			continue
		}
		if m := itemPattern.FindStringSubmatch(line); m != nil {
			if p, ok := parseProject(m[1]); ok {
				out[current].Projects = append(out[current].Projects, p)
			}
		}
	}

	kept := out[:0]
	for _, a := range out {
		if len(a.Projects) > 0 {
			kept = append(kept, a)
		}
	}
	return kept
}

// FallbackProject wraps the whole goal in one project.
func FallbackProject(goal string) ProjectSpec {
	title := goal
	if i := strings.IndexByte(title, '\n'); i > 0 {
		title = title[:i]
	}
	if utf8.RuneCountInString(title) > 80 {
		title = string([]rune(title)[:80])
	}
	return ProjectSpec{Title: strings.TrimRight(strings.TrimSpace(title), "."), Priority: task.PriorityMedium, Description: goal}
}
