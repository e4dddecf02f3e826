package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"recall/internal/models"
)

func TestTaskRegistryCreateAndGet(t *testing.T) {
	registry := NewTaskRegistry(nil)

	taskID := registry.Create(models.TaskTypeIngest, "user1")
	if taskID == "" {
		t.Fatal("Expected non-empty task ID")
	}

	task, err := registry.Get(taskID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("Status = %q, want pending", task.Status)
	}
	if task.UserID != "user1" {
		t.Errorf("UserID = %q, want user1", task.UserID)
	}
	if task.ProgressMessage != "Starting..." {
		t.Errorf("ProgressMessage = %q, want Starting...", task.ProgressMessage)
	}
}

func TestTaskRegistryGetUnknown(t *testing.T) {
	registry := NewTaskRegistry(nil)

	if _, err := registry.Get("no-such-task"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTaskRegistryGetReturnsCopy(t *testing.T) {
	registry := NewTaskRegistry(nil)

	taskID := registry.Create(models.TaskTypeIngest, "user1")
	task, _ := registry.Get(taskID)
	task.Status = models.TaskStatusFailed

	fresh, _ := registry.Get(taskID)
	if fresh.Status != models.TaskStatusPending {
		t.Error("Mutating a returned task must not affect registry state")
	}
}

func TestTaskRegistryProgressFlipsPendingToRunning(t *testing.T) {
	registry := NewTaskRegistry(nil)

	taskID := registry.Create(models.TaskTypeIngest, "user1")
	if err := registry.UpdateProgress(taskID, 40, "Working"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	task, _ := registry.Get(taskID)
	if task.Status != models.TaskStatusRunning {
		t.Errorf("Status = %q, want running after first progress update", task.Status)
	}
	if task.StartedAt == nil {
		t.Error("Expected StartedAt to be stamped")
	}
	if task.Progress != 40 {
		t.Errorf("Progress = %d, want 40", task.Progress)
	}
	if task.ProgressMessage != "Working" {
		t.Errorf("ProgressMessage = %q, want Working", task.ProgressMessage)
	}
}

func TestTaskRegistryRunTrackedSuccess(t *testing.T) {
	registry := NewTaskRegistry(nil)

	taskID := registry.Create(models.TaskTypeIngest, "user1")
	handle := registry.RunTracked(taskID, func(ctx context.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"fact_id": "abc"}, nil
	})

	select {
	case <-handle.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("Tracked work did not finish")
	}

	task, _ := registry.Get(taskID)
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", task.Status)
	}
	if task.Progress != 100 {
		t.Errorf("Progress = %d, want 100 on completion", task.Progress)
	}
	if task.CompletedAt == nil {
		t.Error("Expected CompletedAt to be stamped")
	}
	if task.Result["fact_id"] != "abc" {
		t.Errorf("Result = %v, want fact_id abc", task.Result)
	}
}

func TestTaskRegistryRunTrackedFailure(t *testing.T) {
	registry := NewTaskRegistry(nil)

	taskID := registry.Create(models.TaskTypeIngest, "user1")
	handle := registry.RunTracked(taskID, func(ctx context.Context) (map[string]interface{}, error) {
		return nil, errors.New("llm exploded")
	})

	select {
	case <-handle.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("Tracked work did not finish")
	}

	task, _ := registry.Get(taskID)
	if task.Status != models.TaskStatusFailed {
		t.Errorf("Status = %q, want failed", task.Status)
	}
	if task.Error == "" {
		t.Error("Expected failure to record a non-empty error")
	}
	if task.CompletedAt == nil {
		t.Error("Expected CompletedAt to be stamped on failure")
	}
}

func TestTaskRegistryTerminalIsFinal(t *testing.T) {
	registry := NewTaskRegistry(nil)

	taskID := registry.Create(models.TaskTypeIngest, "user1")
	handle := registry.RunTracked(taskID, func(ctx context.Context) (map[string]interface{}, error) {
		return nil, nil
	})
	<-handle.Done

	// Progress updates after completion are ignored
	if err := registry.UpdateProgress(taskID, 10, "too late"); err != nil {
		t.Fatalf("UpdateProgress on terminal task should be a no-op, got %v", err)
	}

	task, _ := registry.Get(taskID)
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed to stick", task.Status)
	}
	if task.Progress != 100 {
		t.Errorf("Progress = %d, want 100 to stick", task.Progress)
	}
}

func TestTaskRegistryTasksForUser(t *testing.T) {
	registry := NewTaskRegistry(nil)

	registry.Create(models.TaskTypeIngest, "user1")
	registry.Create(models.TaskTypeIngest, "user1")
	registry.Create(models.TaskTypeIngest, "user2")

	if got := len(registry.TasksForUser("user1")); got != 2 {
		t.Errorf("TasksForUser(user1) = %d tasks, want 2", got)
	}
	if got := len(registry.TasksForUser("user3")); got != 0 {
		t.Errorf("TasksForUser(user3) = %d tasks, want 0", got)
	}
}

// blockingPublisher stalls Publish until released
type blockingPublisher struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	return nil
}

func TestTaskRegistryPublishDoesNotBlockReaders(t *testing.T) {
	registry := NewTaskRegistry(nil)
	taskID := registry.Create(models.TaskTypeIngest, "user1")

	pub := &blockingPublisher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	registry.publisher = pub

	handle := registry.RunTracked(taskID, func(ctx context.Context) (map[string]interface{}, error) {
		return nil, nil
	})

	select {
	case <-pub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Publisher was never invoked")
	}

	// A publish is in flight; the registry must still serve reads
	got := make(chan error, 1)
	go func() {
		_, err := registry.Get(taskID)
		got <- err
	}()
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Get blocked while a task event publish was in flight")
	}

	close(pub.release)
	select {
	case <-handle.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("Tracked work did not finish")
	}
}

func TestTaskRegistryCleanup(t *testing.T) {
	registry := NewTaskRegistry(nil)

	oldID := registry.Create(models.TaskTypeIngest, "user1")
	freshID := registry.Create(models.TaskTypeIngest, "user1")

	// Age the first task past the retention window
	registry.mu.Lock()
	registry.tasks[oldID].CreatedAt = time.Now().Add(-25 * time.Hour)
	registry.mu.Unlock()

	removed := registry.Cleanup(24 * time.Hour)
	if removed != 1 {
		t.Errorf("Cleanup removed %d tasks, want 1", removed)
	}

	if _, err := registry.Get(oldID); !errors.Is(err, ErrNotFound) {
		t.Error("Expected aged task to be removed")
	}
	if _, err := registry.Get(freshID); err != nil {
		t.Errorf("Expected fresh task to survive cleanup, got %v", err)
	}
}

func TestTaskRegistryCleanupRemovesNonTerminal(t *testing.T) {
	registry := NewTaskRegistry(nil)

	taskID := registry.Create(models.TaskTypeIngest, "user1")
	registry.UpdateProgress(taskID, 50, "stuck")

	registry.mu.Lock()
	registry.tasks[taskID].CreatedAt = time.Now().Add(-48 * time.Hour)
	registry.mu.Unlock()

	// Cleanup is age-based, not status-based: a wedged running task goes too
	if removed := registry.Cleanup(24 * time.Hour); removed != 1 {
		t.Errorf("Cleanup removed %d tasks, want 1", removed)
	}
}
