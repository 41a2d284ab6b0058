package worker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vinayprograms/crew/internal/tools"
)

// InsufficientEvidenceError reports an attempt that described work instead
// of doing it.
type InsufficientEvidenceError struct {
	Class    Class
	Required string // tool name that was required, empty for any tool
	Calls    int
}

func (e *InsufficientEvidenceError) Error() string {
	switch e.Class {
	case ClassScaffold, ClassCustomize:
		return fmt.Sprintf("insufficient evidence: %s task made no call to %s (%d other tool calls)", e.Class, e.Required, e.Calls)
	default:
		return "insufficient evidence: no tool calls were made, the work was described but not performed"
	}
}

// RequiredTool returns the tool whose use proves an attempt of class c.
// The empty string means any tool.
func RequiredTool(c Class) string {
	switch c {
	case ClassScaffold:
		return tools.ToolGenerateProject
	case ClassCustomize:
		return tools.ToolWriteFile
	default:
		return ""
	}
}

// CheckEvidence applies the required-evidence rule to an attempt's metrics.
func CheckEvidence(c Class, m Metrics) error {
	required := RequiredTool(c)
	if required == "" {
		if m.Total == 0 {
			return &InsufficientEvidenceError{Class: c}
		}
		return nil
	}
	if m.ByTool[required] == 0 {
		return &InsufficientEvidenceError{Class: c, Required: required, Calls: m.Total}
	}
	return nil
}

var hardFailurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\berror:`),
	regexp.MustCompile(`(?i)\b(?:unhandled|uncaught|fatal)\s+exception\b`),
	regexp.MustCompile(`(?i)\bexception:`),
	regexp.MustCompile(`(?i)\bpermission denied\b`),
	regexp.MustCompile(`(?i)\bfatal error\b`),
	regexp.MustCompile(`(?im)^\s*verdict:\s*fail`),
}

var softFailurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcould not\b`),
	regexp.MustCompile(`(?i)\bcouldn't\b`),
	regexp.MustCompile(`(?i)\bunable to\b`),
	regexp.MustCompile(`(?i)\bfailed to\b`),
}

// CheckOutcome decides whether an attempt with sufficient evidence succeeded.
// A successful tool call with no hard-failure marker is a success even when
// the text hedges.
func CheckOutcome(output string, m Metrics) error {
	if m.Successes > 0 {
		if matchesAny(output, hardFailurePatterns) {
			return fmt.Errorf("task reported a failure: %s", firstLine(output))
		}
		return nil
	}
	if matchesAny(output, softFailurePatterns) {
		return fmt.Errorf("task could not be completed: %s", firstLine(output))
	}
	return fmt.Errorf("no tool call succeeded (%d failed)", m.Failures)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
