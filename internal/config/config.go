package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Gemini configuration (classifier + planner + memorability analysis)
	GeminiAPIKey string
	GeminiModel  string

	// Context engineering budget before the façade falls back
	ContextDeadline time.Duration

	// Background task retention
	TaskMaxAge time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		ContextDeadline: getDurationEnv("CONTEXT_DEADLINE_SECONDS", 25) * time.Second,
		TaskMaxAge:      getDurationEnv("TASK_MAX_AGE_HOURS", 24) * time.Hour,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed > 0 {
			return time.Duration(parsed)
		}
	}
	return time.Duration(defaultValue)
}
