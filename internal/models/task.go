package models

import "time"

// TaskStatus constants. Transitions are forward-only:
// pending → running → completed|failed.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Task type tags
const (
	TaskTypeIngest = "ingest"
)

// BackgroundTask tracks one asynchronous unit of work. Failures are
// recorded here instead of propagating to whoever scheduled the task.
type BackgroundTask struct {
	ID       string `bson:"_id" json:"task_id"`
	TaskType string `bson:"taskType" json:"task_type"`
	UserID   string `bson:"userId" json:"user_id"`

	Status          string `bson:"status" json:"status"`
	Progress        int    `bson:"progress" json:"progress"`
	ProgressMessage string `bson:"progressMessage" json:"progress_message"`

	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
	StartedAt   *time.Time `bson:"startedAt,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completed_at,omitempty"`

	Result map[string]interface{} `bson:"result,omitempty" json:"result,omitempty"`
	Error  string                 `bson:"error,omitempty" json:"error,omitempty"`
}

// IsTerminal reports whether the task has finished (successfully or not)
func (t *BackgroundTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
