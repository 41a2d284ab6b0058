package worker

import (
	"regexp"
	"strings"

	"github.com/vinayprograms/crew/internal/task"
)

// Class is the kind of evidence a task must produce.
type Class string

const (
	ClassScaffold  Class = "scaffold"
	ClassCustomize Class = "customize"
	ClassGeneral   Class = "general"
)

// Classification is the result of inspecting a task's text.
type Classification struct {
	Class       Class
	ProjectName string // scaffold only, empty when not stated
	Template    string // scaffold only, empty when not stated
}

var scaffoldKeywords = []string{
	"scaffold",
	"boilerplate",
	"template",
	"skeleton",
	"starter project",
	"starter app",
	"generate a project",
	"generate project",
	"generate a new project",
	"bootstrap a",
	"new project named",
	"new project called",
}

var scaffoldPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcreate\s+(?:a|an|the)?\s*(?:simple|basic|new|minimal)?\s*(?:fullstack|full-stack|react|api|express|node)\s+(?:project|app|application)\b`),
	regexp.MustCompile(`(?i)\b(?:generate|create|set\s*up)\s+(?:a|an)?\s*(?:new\s+)?(?:project|app)\s+(?:named|called)\b`),
}

var requirementKeywords = []string{
	"endpoint",
	"route",
	"component",
	"model",
	"schema",
	"database",
	"crud",
	"authentication",
	"login",
	"validation",
	"requirement",
	"must ",
	"should ",
	"with the following",
	"that returns",
	"return 404",
}

var requirementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)\s+/\S*`),
	regexp.MustCompile(`(?:^|\s)/[A-Za-z0-9_:{}\-]+(?:/[A-Za-z0-9_:{}\-]+)*`),
	regexp.MustCompile(`(?i)\b[\w\-/]+\.(?:js|jsx|ts|tsx|go|py|json|html|css|scss|md|ya?ml|sql|toml)\b`),
	regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+\.)\s+\S+`),
}

var customizeKeywords = []string{
	"add route",
	"add a route",
	"add endpoint",
	"add an endpoint",
	"add a page",
	"add a component",
	"add a field",
	"existing project",
	"existing app",
	"existing code",
	"existing file",
	"modify",
	"refactor",
}

var customizePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:add|update|modify|edit|change|extend|implement|fix)\b.{0,60}?\b(?:routes?|endpoints?|pages?|components?|fields?|handlers?|tests?|files?)\b`),
	regexp.MustCompile(`(?i)\b(?:update|modify|edit|change|patch)\s+\S+\.[A-Za-z]{1,5}\b`),
}

var (
	projectNamePattern = regexp.MustCompile("(?i)\\b(?:named|called)\\s+[\"'`]?([A-Za-z0-9][A-Za-z0-9._-]*)")
	templatePattern    = regexp.MustCompile(`(?i)\b(fullstack|full-stack|react|api)\b`)
)

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// IsScaffoldRequest reports whether text asks for bare project generation
// with no concrete requirements.
func IsScaffoldRequest(text string) bool {
	lower := strings.ToLower(text)
	scaffold := containsAny(lower, scaffoldKeywords) || matchesAny(text, scaffoldPatterns)
	if !scaffold {
		return false
	}
	return !HasConcreteRequirements(text)
}

// HasConcreteRequirements reports whether text names endpoints, paths,
// files or explicit component and requirement lists.
func HasConcreteRequirements(text string) bool {
	// Project names like demo-app.js style must not count as files.
	stripped := projectNamePattern.ReplaceAllString(text, "named x")
	return containsAny(strings.ToLower(stripped), requirementKeywords) || matchesAny(stripped, requirementPatterns)
}

// Classify inspects a task title and description.
func Classify(title, description string) Classification {
	text := strings.TrimSpace(title + "\n" + description)
	if IsScaffoldRequest(text) {
		c := Classification{Class: ClassScaffold}
		if m := projectNamePattern.FindStringSubmatch(text); m != nil {
			c.ProjectName = strings.TrimRight(m[1], ".")
		}
		if m := templatePattern.FindStringSubmatch(text); m != nil {
			c.Template = strings.ReplaceAll(strings.ToLower(m[1]), "-", "")
		}
		return c
	}
	if containsAny(strings.ToLower(text), customizeKeywords) || matchesAny(text, customizePatterns) {
		return Classification{Class: ClassCustomize}
	}
	return Classification{Class: ClassGeneral}
}

// ClassifyTask classifies t. Test and review tasks inspect work rather than
// produce it, so any tool call is evidence for them.
func ClassifyTask(t *task.Task) Classification {
	if t.Kind == task.KindTest || t.Kind == task.KindReview {
		return Classification{Class: ClassGeneral}
	}
	return Classify(t.Title, t.Description)
}
