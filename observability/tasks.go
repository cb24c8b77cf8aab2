package observability

import (
	"sync"
	"time"

	"github.com/hazyhaar/quizd/idgen"
)

// TaskState is the lifecycle state of one solve task.
type TaskState string

const (
	TaskProcessing TaskState = "processing"
	TaskSolving    TaskState = "solving"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// Task is the externally visible record of one solve request.
type Task struct {
	ID         string     `json:"task_id"`
	URL        string     `json:"url"`
	State      TaskState  `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Tasks is the solve task registry. Each task is written by exactly one
// chain goroutine; reads come from the status endpoints. Terminal tasks are
// kept for a retention window so callers can observe the outcome, then
// dropped by Sweep.
type Tasks struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	newID     idgen.Generator
	retention time.Duration
}

// TasksOption configures a Tasks registry.
type TasksOption func(*Tasks)

// WithTaskIDGenerator sets a custom ID generator for task IDs.
func WithTaskIDGenerator(gen idgen.Generator) TasksOption {
	return func(t *Tasks) { t.newID = gen }
}

// WithRetention sets how long terminal tasks remain visible. Default: 5m.
func WithRetention(d time.Duration) TasksOption {
	return func(t *Tasks) { t.retention = d }
}

// NewTasks creates an empty registry.
func NewTasks(opts ...TasksOption) *Tasks {
	t := &Tasks{
		tasks:     make(map[string]*Task),
		newID:     idgen.Prefixed("task_", idgen.Default),
		retention: 5 * time.Minute,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Create registers a new processing task for url and returns its ID.
func (t *Tasks) Create(url string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.newID()
	t.tasks[id] = &Task{
		ID:        id,
		URL:       url,
		State:     TaskProcessing,
		StartedAt: time.Now(),
	}
	return id
}

// SetState moves a task to the given state. Unknown IDs are ignored (the
// task may have been swept).
func (t *Tasks) SetState(id string, state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return
	}
	task.State = state
	if state == TaskCompleted || state == TaskFailed {
		now := time.Now()
		task.FinishedAt = &now
	}
}

// Fail marks a task failed with a human-readable message.
func (t *Tasks) Fail(id, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return
	}
	task.State = TaskFailed
	task.Error = msg
	now := time.Now()
	task.FinishedAt = &now
}

// Get returns a copy of the task, or false if unknown.
func (t *Tasks) Get(id string) (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Snapshot returns copies of all current tasks keyed by ID.
func (t *Tasks) Snapshot() map[string]Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Task, len(t.tasks))
	for id, task := range t.tasks {
		out[id] = *task
	}
	return out
}

// Sweep drops terminal tasks older than the retention window. Call it
// periodically from the owner.
func (t *Tasks) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-t.retention)
	for id, task := range t.tasks {
		if task.FinishedAt != nil && task.FinishedAt.Before(cutoff) {
			delete(t.tasks, id)
		}
	}
}
