package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var projectNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// templates maps a template name to relative file paths and contents.
// "{{name}}" is replaced with the project name.
var templates = map[string]map[string]string{
	"react": {
		"package.json": `{"name": "{{name}}", "private": true, "scripts": {"dev": "vite", "build": "vite build"}, "dependencies": {"react": "^18.3.0", "react-dom": "^18.3.0"}, "devDependencies": {"vite": "^5.4.0"}}` + "\n",
		"index.html":   "<!doctype html>\n<html>\n<head><title>{{name}}</title></head>\n<body><div id=\"root\"></div><script type=\"module\" src=\"/src/main.jsx\"></script></body>\n</html>\n",
		"src/main.jsx": "import React from 'react'\nimport { createRoot } from 'react-dom/client'\nimport App from './App.jsx'\n\ncreateRoot(document.getElementById('root')).render(<App />)\n",
		"src/App.jsx":  "export default function App() {\n  return <h1>{{name}}</h1>\n}\n",
		"README.md":    "# {{name}}\n",
	},
	"api": {
		"package.json": `{"name": "{{name}}", "private": true, "main": "server.js", "scripts": {"start": "node server.js"}, "dependencies": {"express": "^4.19.0"}}` + "\n",
		"server.js":    "const express = require('express')\nconst app = express()\napp.use(express.json())\n\napp.get('/health', (req, res) => res.json({ status: 'ok' }))\n\napp.listen(process.env.PORT || 3000)\n",
		"README.md":    "# {{name}}\n",
	},
}

func init() {
	full := map[string]string{"README.md": "# {{name}}\n"}
	for path, body := range templates["react"] {
		if path != "README.md" {
			full["client/"+path] = body
		}
	}
	for path, body := range templates["api"] {
		if path != "README.md" {
			full["server/"+path] = body
		}
	}
	templates["fullstack"] = full
}

// TemplateNames returns the available project templates.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func generateProjectTool(b *backend) Tool {
	return Tool{
		Name:        ToolGenerateProject,
		Description: "Generate a new project skeleton from a template (" + strings.Join(TemplateNames(), ", ") + ").",
		Params: []Param{
			{Name: "projectName", Type: TypeString, Required: true, Description: "Directory name of the new project"},
			{Name: "template", Type: TypeString, Description: "Template name (default: fullstack)"},
		},
		Roles: []Role{RoleFrontend, RoleBackend, RoleGeneral},
		Exec: func(ctx context.Context, params map[string]interface{}) Result {
			name := stringParam(params, "projectName")
			if !projectNamePattern.MatchString(name) {
				return Failure("invalid projectName %q", name)
			}
			tmpl := stringParam(params, "template")
			if tmpl == "" {
				tmpl = "fullstack"
			}
			files, ok := templates[tmpl]
			if !ok {
				return Failure("unknown template %q (available: %s)", tmpl, strings.Join(TemplateNames(), ", "))
			}
			root := b.path(name)
			if _, err := os.Stat(root); err == nil {
				return Failure("project directory %s already exists", name)
			}

			paths := make([]string, 0, len(files))
			for p := range files {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				body := strings.ReplaceAll(files[p], "{{name}}", name)
				_, err := b.exec(ctx, "write", map[string]interface{}{
					"path":    filepath.Join(root, filepath.FromSlash(p)),
					"content": body,
				})
				if err != nil {
					return Failure("failed to write %s: %v", p, err)
				}
			}
			return Result{
				Success: true,
				Output:  fmt.Sprintf("generated %s project %s with %d files:\n%s", tmpl, name, len(paths), strings.Join(paths, "\n")),
			}
		},
	}
}
