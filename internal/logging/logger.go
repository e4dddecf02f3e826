package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithSession returns a logger with orchestration session fields attached.
// Use this for all logging within a single context-engineering request.
func WithSession(userID, clientID string) *slog.Logger {
	return slog.With(
		"user_id", userID,
		"client_id", clientID,
	)
}

// WithTask returns a logger scoped to a background task.
func WithTask(logger *slog.Logger, taskID, taskType string) *slog.Logger {
	return logger.With(
		"task_id", taskID,
		"task_type", taskType,
	)
}
