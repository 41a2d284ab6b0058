// Package tools provides the tool registry, capability filtering and built-in tools.
package tools

import (
	"context"
	"fmt"

	"github.com/vinayprograms/agentkit/llm"
)

// Role is a worker role. Tools may be tagged with the roles allowed to see them.
type Role string

const (
	RoleFrontend Role = "frontend"
	RoleBackend  Role = "backend"
	RoleGeneral  Role = "general"
	RoleQA       Role = "qa"
	RoleDevOps   Role = "devops"
)

// Roles lists every known role in a stable order.
var Roles = []Role{RoleFrontend, RoleBackend, RoleGeneral, RoleQA, RoleDevOps}

// ParseRole converts a string to a Role. ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	switch s {
	case "fullstack", "developer", "dev":
		return RoleGeneral, true
	case "tester", "verifier":
		return RoleQA, true
	}
	return "", false
}

// Well-known tool names the task verification loop looks for.
const (
	ToolGenerateProject = "generate_project"
	ToolWriteFile       = "write_file"
)

// ParamType is the primitive type tag of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param describes one tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
}

// Result is the outcome of a tool execution.
type Result struct {
	Success bool
	Output  string
	Error   string
}

// Failure builds a failed Result.
func Failure(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// ExecFunc executes a tool with a loosely-typed parameter bag.
type ExecFunc func(ctx context.Context, params map[string]interface{}) Result

// Tool is a named, described, optionally role-tagged executable.
// A tool with no Roles is visible to every role.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Roles       []Role
	Exec        ExecFunc
}

// VisibleTo reports whether the tool may be used by the given role.
func (t Tool) VisibleTo(role Role) bool {
	if len(t.Roles) == 0 {
		return true
	}
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Schema returns the JSON schema for the tool parameters.
func (t Tool) Schema() map[string]interface{} {
	props := make(map[string]interface{}, len(t.Params))
	required := []string{}
	for _, p := range t.Params {
		props[p.Name] = map[string]interface{}{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Filter returns the tools visible to role, preserving their order.
// The input slice is never modified.
func Filter(list []Tool, role Role) []Tool {
	out := make([]Tool, 0, len(list))
	for _, t := range list {
		if t.VisibleTo(role) {
			out = append(out, t)
		}
	}
	return out
}

// Registry is an immutable, ordered set of tools.
type Registry struct {
	tools []Tool
	index map[string]int
}

// NewRegistry creates a registry. Tool names must be unique and non-empty.
func NewRegistry(list ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make([]Tool, 0, len(list)),
		index: make(map[string]int, len(list)),
	}
	for _, t := range list {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := r.index[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool: %s", t.Name)
		}
		if t.Exec == nil {
			return nil, fmt.Errorf("tool %s has no execution entry point", t.Name)
		}
		r.index[t.Name] = len(r.tools)
		r.tools = append(r.tools, t)
	}
	return r, nil
}

// ForRole returns a registry restricted to the tools visible to role.
func (r *Registry) ForRole(role Role) *Registry {
	if r == nil {
		return nil
	}
	filtered, _ := NewRegistry(Filter(r.tools, role)...)
	return filtered
}

// List returns a copy of the registered tools in registration order.
func (r *Registry) List() []Tool {
	if r == nil {
		return nil
	}
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Execute runs the named tool. Unknown tools and panics are reported as
// failed results, never as errors.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (res Result) {
	t, ok := r.Get(name)
	if !ok {
		return Failure("unknown tool: %s", name)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	for _, p := range t.Params {
		if _, present := params[p.Name]; p.Required && !present {
			return Failure("missing required parameter %q for tool %s", p.Name, name)
		}
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = Failure("tool %s panicked: %v", name, rec)
		}
	}()
	return t.Exec(ctx, params)
}

// Definitions returns LLM-facing definitions for the registered tools.
func (r *Registry) Definitions() []llm.ToolDef {
	if r == nil {
		return nil
	}
	defs := make([]llm.ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema(),
		})
	}
	return defs
}
