// Package tasks tracks in-flight and recently finished analysis runs. The
// registry is the pipeline's status/log sink and the HTTP layer's read side.
package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/nextraction/insight-engine/internal/pipeline"
)

// Defaults for registry capacity and retention.
const (
	DefaultMaxTasks = 1000
	DefaultTTL      = 24 * time.Hour
	eventBufferSize = 256
)

// EventType distinguishes status transitions from log lines.
type EventType string

const (
	EventStatus EventType = "status"
	EventLog    EventType = "log"
)

// Event is one status or log update delivered to stream subscribers.
type Event struct {
	TaskID    string          `json:"task_id"`
	Type      EventType       `json:"type"`
	Status    pipeline.Status `json:"status,omitempty"`
	DataKey   string          `json:"data_key,omitempty"`
	Data      any             `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// task is the registry's internal record for one run.
type task struct {
	id        string
	status    pipeline.Status
	data      map[string]any
	logs      []string
	createdAt time.Time
	updatedAt time.Time
	events    chan Event
	closed    bool
}

// closeEvents ends the task's stream. Safe to call more than once.
func (t *task) closeEvents() {
	if !t.closed {
		t.closed = true
		close(t.events)
	}
}

// Snapshot is a copy of a task's current state, safe to hand out.
type Snapshot struct {
	ID        string          `json:"task_id"`
	Status    pipeline.Status `json:"status"`
	Data      map[string]any  `json:"data,omitempty"`
	Logs      []string        `json:"logs"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Registry is a bounded, TTL-evicting store of task state. It implements
// pipeline.Reporter; deliveries to slow subscribers are dropped rather than
// ever blocking the pipeline.
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]*task
	maxTasks int
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxTasks bounds how many tasks the registry retains.
func WithMaxTasks(n int) Option {
	return func(r *Registry) { r.maxTasks = n }
}

// WithTTL sets how long finished tasks are retained after their last update.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a task registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tasks:    make(map[string]*task),
		maxTasks: DefaultMaxTasks,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new pending task. Stale and excess tasks are evicted
// first so the registry never grows without bound.
func (r *Registry) Create(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[taskID]; exists {
		return fmt.Errorf("task %s already exists", taskID)
	}

	r.evictLocked()

	now := r.now()
	r.tasks[taskID] = &task{
		id:        taskID,
		status:    pipeline.StatusPending,
		data:      make(map[string]any),
		createdAt: now,
		updatedAt: now,
		events:    make(chan Event, eventBufferSize),
	}
	return nil
}

// evictLocked removes expired tasks, then the oldest tasks past capacity.
// Finished runs are evicted before live ones; a live run only goes when no
// finished task remains to make room.
func (r *Registry) evictLocked() {
	now := r.now()
	for id, t := range r.tasks {
		if now.Sub(t.updatedAt) > r.ttl {
			t.closeEvents()
			delete(r.tasks, id)
		}
	}

	for len(r.tasks) >= r.maxTasks {
		victim := r.oldestLocked(true)
		if victim == "" {
			victim = r.oldestLocked(false)
		}
		if victim == "" {
			return
		}
		r.tasks[victim].closeEvents()
		delete(r.tasks, victim)
	}
}

// oldestLocked returns the least recently updated task ID, optionally
// restricted to tasks whose run has already finished.
func (r *Registry) oldestLocked(terminalOnly bool) string {
	oldestID := ""
	var oldest time.Time
	for id, t := range r.tasks {
		if terminalOnly && !isTerminal(t.status) {
			continue
		}
		if oldestID == "" || t.updatedAt.Before(oldest) {
			oldestID = id
			oldest = t.updatedAt
		}
	}
	return oldestID
}

// isTerminal reports whether a status ends the run.
func isTerminal(status pipeline.Status) bool {
	return status == pipeline.StatusPersonasReady || status == pipeline.StatusFailed
}

// ReportStatus records a status transition, with optional attached data,
// and delivers it to subscribers. Unknown task IDs are ignored.
func (r *Registry) ReportStatus(taskID string, status pipeline.Status, dataKey string, dataValue any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return
	}

	now := r.now()
	t.status = status
	t.updatedAt = now
	if dataKey != "" {
		t.data[dataKey] = dataValue
	}

	t.deliver(Event{
		TaskID:    taskID,
		Type:      EventStatus,
		Status:    status,
		DataKey:   dataKey,
		Data:      dataValue,
		Timestamp: now,
	})

	// Terminal statuses end the event stream
	if isTerminal(status) {
		t.closeEvents()
	}
}

// Log appends a log line to the task and delivers it to subscribers.
func (r *Registry) Log(taskID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return
	}

	now := r.now()
	t.logs = append(t.logs, message)
	t.updatedAt = now

	t.deliver(Event{
		TaskID:    taskID,
		Type:      EventLog,
		Message:   message,
		Timestamp: now,
	})
}

// deliver sends without blocking; a full buffer or a closed stream drops
// the event. Task state is always updated regardless.
func (t *task) deliver(event Event) {
	if t.closed {
		return
	}
	select {
	case t.events <- event:
	default:
	}
}

// Get returns a snapshot of a task's state.
func (r *Registry) Get(taskID string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return Snapshot{}, false
	}

	data := make(map[string]any, len(t.data))
	for k, v := range t.data {
		data[k] = v
	}
	logs := make([]string, len(t.logs))
	copy(logs, t.logs)

	return Snapshot{
		ID:        t.id,
		Status:    t.status,
		Data:      data,
		Logs:      logs,
		CreatedAt: t.createdAt,
		UpdatedAt: t.updatedAt,
	}, true
}

// Events returns the task's event stream, or nil for an unknown task. The
// channel is closed when the run reaches a terminal status or the task is
// evicted; buffered events remain readable after close.
func (r *Registry) Events(taskID string) <-chan Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil
	}
	return t.events
}

// Len reports how many tasks the registry currently retains.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
