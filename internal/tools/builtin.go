package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/policy"
	kit "github.com/vinayprograms/agentkit/tools"
)

// Workspace confines the built-in tools to a root directory.
type Workspace struct {
	Root           string
	CommandTimeout time.Duration
	// DeniedCommands are blocked by the bash checker on top of its built-in denylist.
	DeniedCommands []string
}

// Policy returns the agentkit policy that scopes file tools to the workspace.
func (w Workspace) Policy() *policy.Policy {
	root, err := filepath.Abs(w.Root)
	if err != nil {
		root = w.Root
	}
	pol := policy.New()
	pol.Workspace = root
	for _, name := range []string{"read", "write", "ls"} {
		pol.Tools[name] = &policy.ToolPolicy{Enabled: true, Allow: []string{"$WORKSPACE/**"}}
	}
	pol.Tools["bash"] = &policy.ToolPolicy{Enabled: true, Denylist: w.DeniedCommands}
	return pol
}

// backend is the agentkit registry the crew built-ins delegate to.
type backend struct {
	pol *policy.Policy
	reg *kit.Registry
}

func newBackend(ws Workspace) *backend {
	pol := ws.Policy()
	reg := kit.NewRegistry(pol)
	reg.EnableBash()

	bashPolicy := pol.GetToolPolicy("bash")
	allowedDirs := bashPolicy.AllowedDirs
	if len(allowedDirs) == 0 {
		allowedDirs = []string{pol.Workspace}
	}
	reg.SetBashChecker(policy.NewBashChecker(pol.Workspace, allowedDirs, bashPolicy.Denylist))

	return &backend{pol: pol, reg: reg}
}

// path maps a tool-supplied path onto the workspace root.
func (b *backend) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.pol.Workspace, p)
}

func (b *backend) exec(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool := b.reg.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("tool not available: %s", name)
	}
	return tool.Execute(ctx, args)
}

func stringParam(params map[string]interface{}, name string) string {
	s, _ := params[name].(string)
	return s
}

// toResult converts an agentkit tool return value into a Result.
func toResult(v interface{}, err error) Result {
	if err != nil {
		return Failure("%v", err)
	}
	switch out := v.(type) {
	case string:
		return Result{Success: true, Output: out}
	case *kit.ExecResult:
		combined := out.Stdout + out.Stderr
		if out.ExitCode != 0 {
			return Result{Output: combined, Error: fmt.Sprintf("exit code %d", out.ExitCode)}
		}
		return Result{Success: true, Output: combined}
	case nil:
		return Result{Success: true}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Result{Success: true, Output: fmt.Sprintf("%v", v)}
	}
	return Result{Success: true, Output: string(data)}
}

// Builtins returns the built-in tools bound to the workspace, in a stable order.
func Builtins(ws Workspace) []Tool {
	b := newBackend(ws)
	return []Tool{
		readFileTool(b),
		writeFileTool(b),
		listFilesTool(b),
		runCommandTool(b, ws.CommandTimeout),
		generateProjectTool(b),
	}
}

func readFileTool(b *backend) Tool {
	return Tool{
		Name:        "read_file",
		Description: "Read the contents of a file in the workspace.",
		Params: []Param{
			{Name: "path", Type: TypeString, Required: true, Description: "Path relative to the workspace root"},
		},
		Exec: func(ctx context.Context, params map[string]interface{}) Result {
			return toResult(b.exec(ctx, "read", map[string]interface{}{
				"path": b.path(stringParam(params, "path")),
			}))
		},
	}
}

func writeFileTool(b *backend) Tool {
	return Tool{
		Name:        ToolWriteFile,
		Description: "Write content to a file in the workspace. Creates parent directories if needed.",
		Params: []Param{
			{Name: "path", Type: TypeString, Required: true, Description: "Path relative to the workspace root"},
			{Name: "content", Type: TypeString, Required: true, Description: "Full file content"},
		},
		Exec: func(ctx context.Context, params map[string]interface{}) Result {
			path := stringParam(params, "path")
			res := toResult(b.exec(ctx, "write", map[string]interface{}{
				"path":    b.path(path),
				"content": params["content"],
			}))
			if res.Success {
				content, _ := params["content"].(string)
				res.Output = fmt.Sprintf("wrote %d bytes to %s", len(content), path)
			}
			return res
		},
	}
}

func listFilesTool(b *backend) Tool {
	return Tool{
		Name:        "list_files",
		Description: "List files under a workspace directory, recursively.",
		Params: []Param{
			{Name: "path", Type: TypeString, Description: "Directory relative to the workspace root (default: root)"},
		},
		Exec: func(ctx context.Context, params map[string]interface{}) Result {
			dir := stringParam(params, "path")
			if dir == "" {
				dir = "."
			}
			root := filepath.Clean(b.path(dir))
			if ok, reason := b.pol.CheckPath("ls", root); !ok {
				return Failure("policy denied: %s", reason)
			}

			var files []string
			queue := []string{root}
			for len(queue) > 0 {
				current := queue[0]
				queue = queue[1:]
				v, err := b.exec(ctx, "ls", map[string]interface{}{"path": current})
				if err != nil {
					return Failure("failed to list files: %v", err)
				}
				entries, _ := v.([]kit.DirEntry)
				for _, e := range entries {
					full := filepath.Join(current, e.Name)
					if e.IsDir {
						if e.Name != "node_modules" && e.Name != ".git" {
							queue = append(queue, full)
						}
						continue
					}
					rel, _ := filepath.Rel(root, full)
					files = append(files, rel)
				}
			}
			sort.Strings(files)
			return Result{Success: true, Output: strings.Join(files, "\n")}
		},
	}
}

func runCommandTool(b *backend, timeout time.Duration) Tool {
	return Tool{
		Name:        "run_command",
		Description: "Run a shell command in the workspace root and return its combined output.",
		Params: []Param{
			{Name: "command", Type: TypeString, Required: true, Description: "Shell command to run"},
		},
		Roles: []Role{RoleBackend, RoleGeneral, RoleQA, RoleDevOps},
		Exec: func(ctx context.Context, params map[string]interface{}) Result {
			command := stringParam(params, "command")
			if command == "" {
				return Failure("command is required")
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return toResult(b.exec(ctx, "bash", map[string]interface{}{"command": command}))
		},
	}
}
