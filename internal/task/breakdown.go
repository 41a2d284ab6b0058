package task

import "sync"

// StepRole is the role that executes a step of a breakdown.
type StepRole string

const (
	RoleDeveloper StepRole = "developer"
	RoleQA        StepRole = "qa"
)

// Step is one entry in a breakdown's execution order.
type Step struct {
	Role   StepRole
	TaskID string
}

// Breakdown is the plan for one parent task. Entries may be appended but
// never reordered or removed.
type Breakdown struct {
	Parent         *Task
	Implementation []*Task
	Verification   []*Task
	Order          []Step
}

// AddImplementation appends an implementation sub-task and its order entry.
func (b *Breakdown) AddImplementation(t *Task) {
	b.Implementation = append(b.Implementation, t)
	b.Order = append(b.Order, Step{Role: RoleDeveloper, TaskID: t.ID})
}

// AddVerification appends a verification sub-task and its order entry.
func (b *Breakdown) AddVerification(t *Task) {
	b.Verification = append(b.Verification, t)
	b.Order = append(b.Order, Step{Role: RoleQA, TaskID: t.ID})
}

// AppendFix appends a fix sub-task for the verification task v, followed by
// a fresh order entry that re-runs v after the fix.
func (b *Breakdown) AppendFix(fix, v *Task) {
	b.AddImplementation(fix)
	b.Order = append(b.Order, Step{Role: RoleQA, TaskID: v.ID})
}

// Tasks returns every sub-task, implementation first.
func (b *Breakdown) Tasks() []*Task {
	out := make([]*Task, 0, len(b.Implementation)+len(b.Verification))
	out = append(out, b.Implementation...)
	out = append(out, b.Verification...)
	return out
}

// Registry tracks tasks by identifier. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Add registers a task. Re-adding the same identifier replaces the entry
// but keeps its original position.
func (r *Registry) Add(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		r.order = append(r.order, t.ID)
	}
	r.tasks[t.ID] = t
}

// Get returns a task by identifier.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// All returns every task in insertion order.
func (r *Registry) All() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

// Children returns the tasks whose parent is id, in insertion order.
func (r *Registry) Children(id string) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Task
	for _, tid := range r.order {
		if t := r.tasks[tid]; t.ParentID == id {
			out = append(out, t)
		}
	}
	return out
}

// Tree returns the task with id plus all of its descendants.
func (r *Registry) Tree(id string) []*Task {
	root, ok := r.Get(id)
	if !ok {
		return nil
	}
	out := []*Task{root}
	for i := 0; i < len(out); i++ {
		out = append(out, r.Children(out[i].ID)...)
	}
	return out
}
