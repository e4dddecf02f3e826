package models

import "time"

// Context engineering strategies chosen by the planner LLM
const (
	StrategyDeepUnderstanding = "deep_understanding"
	StrategyRelevantContext   = "relevant_context"
)

// ContextPlan is the structured output of the planning LLM call: a small,
// targeted retrieval spec instead of a blanket fetch.
type ContextPlan struct {
	Strategy         string   `json:"context_strategy"`
	SearchQueries    []string `json:"search_queries"`
	ShouldSaveMemory bool     `json:"should_save_memory"`
	MemorableContent string   `json:"memorable_content,omitempty"`
}

// MemoryAnalysis is the structured output of the memorability LLM call
// made by background ingestion.
type MemoryAnalysis struct {
	ShouldSave bool     `json:"should_save"`
	Content    string   `json:"memorable_content"`
	Categories []string `json:"categories,omitempty"`
}

// ContextCacheEntry is one session's previously engineered context. An
// entry is valid only while now − InsertedAt is under the cache TTL.
type ContextCacheEntry struct {
	Payload    string
	UserID     string
	InsertedAt time.Time
}
