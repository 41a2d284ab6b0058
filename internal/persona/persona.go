// Package persona loads worker personas. A persona is a folder containing
// PERSONA.md: YAML frontmatter naming the role, followed by the system
// prompt for workers of that role.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vinayprograms/crew/internal/tools"
	"gopkg.in/yaml.v3"
)

// FileName is the persona file inside a persona folder.
const FileName = "PERSONA.md"

// Persona is a loaded worker persona.
type Persona struct {
	// From frontmatter
	Name        string `yaml:"name"`
	Role        string `yaml:"role"`
	Description string `yaml:"description"`

	// From content
	Instructions string `yaml:"-"`

	// Location
	Path string `yaml:"-"`
}

// Load loads a persona from a directory.
func Load(dir string) (*Persona, error) {
	content, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	p, err := Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	p.Path = dir
	return p, nil
}

// Parse parses PERSONA.md content.
func Parse(content string) (*Persona, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	p := &Persona{}
	if err := yaml.Unmarshal([]byte(frontmatter), p); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	if _, ok := tools.ParseRole(strings.ToLower(p.Role)); !ok {
		return nil, fmt.Errorf("unknown role %q", p.Role)
	}
	p.Instructions = strings.TrimSpace(body)
	if p.Instructions == "" {
		return nil, fmt.Errorf("persona %s has no instructions", p.Name)
	}
	return p, nil
}

// WorkerRole returns the parsed role.
func (p *Persona) WorkerRole() tools.Role {
	r, _ := tools.ParseRole(strings.ToLower(p.Role))
	return r
}

// splitFrontmatter extracts YAML frontmatter from markdown.
func splitFrontmatter(content string) (frontmatter, body string, err error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", fmt.Errorf("missing frontmatter delimiter")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", fmt.Errorf("unclosed frontmatter")
}

// Set maps roles to personas.
type Set map[tools.Role]*Persona

// Discover loads every persona folder under the given directories. Later
// directories override earlier ones for the same role; within a directory
// folders are read in name order. Missing directories are skipped.
func Discover(dirs ...string) (Set, error) {
	set := Set{}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if _, err := os.Stat(filepath.Join(path, FileName)); os.IsNotExist(err) {
				continue
			}
			p, err := Load(path)
			if err != nil {
				return nil, err
			}
			set[p.WorkerRole()] = p
		}
	}
	return set, nil
}

// SystemPrompt returns the persona prompt for role, or "" so the worker
// uses its built-in prompt.
func (s Set) SystemPrompt(role tools.Role) string {
	if p, ok := s[role]; ok {
		return p.Instructions
	}
	return ""
}
