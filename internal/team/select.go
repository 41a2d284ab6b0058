package team

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/tools"
)

var frontendVocabulary = map[string]bool{
	"frontend": true, "ui": true, "ux": true, "component": true, "components": true,
	"page": true, "pages": true, "react": true, "vue": true, "css": true,
	"style": true, "styles": true, "styling": true, "layout": true, "button": true,
	"form": true, "forms": true, "html": true, "view": true, "views": true,
	"client": true, "browser": true, "tailwind": true, "navbar": true, "modal": true,
}

var backendVocabulary = map[string]bool{
	"backend": true, "api": true, "endpoint": true, "endpoints": true, "route": true,
	"routes": true, "server": true, "database": true, "db": true, "schema": true,
	"model": true, "models": true, "migration": true, "auth": true, "express": true,
	"handler": true, "handlers": true, "query": true, "sql": true, "rest": true,
	"middleware": true, "get": true, "post": true, "put": true, "delete": true,
}

var frontendExtensions = map[string]bool{
	".jsx": true, ".tsx": true, ".css": true, ".scss": true, ".html": true, ".vue": true, ".svelte": true,
}

var backendExtensions = map[string]bool{
	".go": true, ".py": true, ".sql": true, ".rb": true, ".java": true, ".prisma": true,
}

// extensionBoost is added per file hint matching a side.
const extensionBoost = 2

// minRoleScore is the score a side needs to win.
const minRoleScore = 2

// SelectRole picks the worker role for an implementation sub-task.
func SelectRole(st *task.Task) tools.Role {
	if r, ok := tools.ParseRole(strings.ToLower(strings.TrimSpace(st.Get(task.CtxRole)))); ok {
		return r
	}

	fe, be := 0, 0
	words := strings.FieldsFunc(strings.ToLower(st.Title+" "+st.Description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if frontendVocabulary[w] {
			fe++
		}
		if backendVocabulary[w] {
			be++
		}
	}
	for _, f := range strings.Split(st.Get(task.CtxFiles), ",") {
		ext := strings.ToLower(filepath.Ext(strings.TrimSpace(f)))
		if frontendExtensions[ext] {
			fe += extensionBoost
		}
		if backendExtensions[ext] {
			be += extensionBoost
		}
	}

	switch {
	case fe > be && fe >= minRoleScore:
		return tools.RoleFrontend
	case be > fe && be >= minRoleScore:
		return tools.RoleBackend
	default:
		return tools.RoleGeneral
	}
}

// workerFor returns the worker for a step, falling back to the general worker.
func (t *Team) workerFor(role task.StepRole, st *task.Task) Executor {
	want := tools.RoleQA
	if role != task.RoleQA {
		want = SelectRole(st)
	}
	if w, ok := t.workers[want]; ok {
		return w
	}
	return t.fallback
}
