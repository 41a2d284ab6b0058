package coordinator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/crew/internal/task"
	"github.com/vinayprograms/crew/internal/team"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "pending"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectFailed     ProjectStatus = "failed" // failed, resolved without a human
	ProjectBlocked    ProjectStatus = "blocked"
)

// Project wraps one high-level task assigned to a team.
type Project struct {
	ID          string
	Title       string
	Description string
	Priority    task.Priority
	Team        string
	Status      ProjectStatus
	Reason      string
	Scaffold    bool // planned without the planner
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Task   *task.Task
	Result *team.WorkflowResult
}

func newProject(title, description string, priority task.Priority, teamName string) *Project {
	now := time.Now()
	p := &Project{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Team:        teamName,
		Status:      ProjectPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Task = task.New(task.KindImplement, title, description)
	p.Task.Priority = priority
	p.Task.Author = "coordinator"
	return p
}

// registry tracks every project of the coordinator's lifetime. Each project
// is only updated by the pipeline of its own team.
type registry struct {
	mu       sync.RWMutex
	projects map[string]*Project
	order    []string
}

func newRegistry() *registry {
	return &registry{projects: make(map[string]*Project)}
}

func (r *registry) add(p *Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.projects[p.ID] = p
}

func (r *registry) update(p *Project, status ProjectStatus, reason string, res *team.WorkflowResult) Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Status = status
	p.Reason = reason
	if res != nil {
		p.Result = res
	}
	p.UpdatedAt = time.Now()
	return *p
}

func (r *registry) get(id string) (Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return Project{}, false
	}
	return *p, true
}

// list returns copies in insertion order.
func (r *registry) list(filter func(*Project) bool) []Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Project
	for _, id := range r.order {
		p := r.projects[id]
		if filter == nil || filter(p) {
			out = append(out, *p)
		}
	}
	return out
}
