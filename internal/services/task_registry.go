package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"recall/internal/models"

	"github.com/google/uuid"
)

// TaskEventChannel is the Redis channel task lifecycle events publish to
const TaskEventChannel = "recall:tasks"

// trackedWorkTimeout bounds a single background unit of work. Independent
// of the request deadline: scheduled work is never cancelled by the
// request that scheduled it.
const trackedWorkTimeout = 2 * time.Minute

// TaskHandle is the explicit future for one tracked unit of work. Done is
// closed when the work reaches a terminal status; the outcome itself is
// only observable through the registry.
type TaskHandle struct {
	ID   string
	Done <-chan struct{}
}

// taskEventPublisher sends task lifecycle events to a broker
type taskEventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// TaskRegistry tracks asynchronous background operations. Process-wide
// shared state: writes to a task are last-writer-wins, status transitions
// are forward-only, and failures never propagate to the scheduling caller.
// Events publish outside the registry lock so a slow broker never blocks
// readers.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*models.BackgroundTask

	publisher taskEventPublisher // optional, for cross-instance task events
}

// NewTaskRegistry creates a new task registry. redis may be nil.
func NewTaskRegistry(redis *RedisService) *TaskRegistry {
	r := &TaskRegistry{
		tasks: make(map[string]*models.BackgroundTask),
	}
	if redis != nil {
		r.publisher = redis
	}
	return r
}

// Create registers a new pending task and returns its ID
func (r *TaskRegistry) Create(taskType, userID string) string {
	task := &models.BackgroundTask{
		ID:              uuid.NewString(),
		TaskType:        taskType,
		UserID:          userID,
		Status:          models.TaskStatusPending,
		Progress:        0,
		ProgressMessage: "Starting...",
		CreatedAt:       time.Now(),
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	snapshot := *task
	r.mu.Unlock()

	log.Printf("📋 [TASKS] Created %s task %s for user %s", taskType, task.ID, userID)
	r.publish(&snapshot)
	return task.ID
}

// Get returns a copy of the task, or ErrNotFound
func (r *TaskRegistry) Get(taskID string) (*models.BackgroundTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	copied := *task
	return &copied, nil
}

// TasksForUser returns copies of all tasks owned by the user
func (r *TaskRegistry) TasksForUser(userID string) []models.BackgroundTask {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.BackgroundTask
	for _, task := range r.tasks {
		if task.UserID == userID {
			out = append(out, *task)
		}
	}
	return out
}

// UpdateProgress records task progress. The first progress update flips a
// pending task to running and stamps its start time. No-op once terminal.
func (r *TaskRegistry) UpdateProgress(taskID string, percent int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if task.IsTerminal() {
		return nil
	}

	if task.Status == models.TaskStatusPending {
		now := time.Now()
		task.Status = models.TaskStatusRunning
		task.StartedAt = &now
	}

	task.Progress = percent
	if message != "" {
		task.ProgressMessage = message
	}
	return nil
}

// RunTracked executes the unit of work on a detached context so the
// request that scheduled it can expire without cancelling it. The work's
// error is recorded on the task, never returned to the launch site.
func (r *TaskRegistry) RunTracked(taskID string, work func(ctx context.Context) (map[string]interface{}, error)) *TaskHandle {
	done := make(chan struct{})
	handle := &TaskHandle{ID: taskID, Done: done}

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), trackedWorkTimeout)
		defer cancel()

		r.markStarted(taskID)

		result, err := work(ctx)
		if err != nil {
			r.markFailed(taskID, err)
			return
		}
		r.markCompleted(taskID, result)
	}()

	return handle
}

// Cleanup removes tasks created before now−maxAge, regardless of status,
// and returns how many were removed.
func (r *TaskRegistry) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, task := range r.tasks {
		if task.CreatedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}

	if removed > 0 {
		log.Printf("🧹 [TASKS] Cleaned up %d tasks older than %v", removed, maxAge)
	}
	return removed
}

func (r *TaskRegistry) markStarted(taskID string) {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok || task.IsTerminal() {
		r.mu.Unlock()
		return
	}

	now := time.Now()
	task.Status = models.TaskStatusRunning
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	snapshot := *task
	r.mu.Unlock()

	r.publish(&snapshot)
}

func (r *TaskRegistry) markCompleted(taskID string, result map[string]interface{}) {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok || task.IsTerminal() {
		r.mu.Unlock()
		return
	}

	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	task.Progress = 100
	task.ProgressMessage = "Completed"
	task.Result = result
	snapshot := *task
	r.mu.Unlock()

	log.Printf("✅ [TASKS] Task %s completed", taskID)
	r.publish(&snapshot)
}

func (r *TaskRegistry) markFailed(taskID string, err error) {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok || task.IsTerminal() {
		r.mu.Unlock()
		return
	}

	now := time.Now()
	task.Status = models.TaskStatusFailed
	task.CompletedAt = &now
	task.Error = err.Error()
	snapshot := *task
	r.mu.Unlock()

	log.Printf("❌ [TASKS] Task %s failed: %v", taskID, err)
	r.publish(&snapshot)
}

// publish sends a task lifecycle event when a broker is configured.
// Takes a snapshot, never a live registry entry; the registry lock must
// not be held across the broker call.
func (r *TaskRegistry) publish(task *models.BackgroundTask) {
	if r.publisher == nil {
		return
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.publisher.Publish(ctx, TaskEventChannel, payload); err != nil {
		log.Printf("⚠️  [TASKS] Failed to publish task event for %s: %v", task.ID, err)
	}
}
