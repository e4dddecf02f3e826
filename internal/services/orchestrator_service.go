package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"recall/internal/logging"
	"recall/internal/models"
)

const (
	defaultContextDeadline = 25 * time.Second
	fallbackSearchTimeout  = 5 * time.Second
	fallbackSearchLimit    = 5

	degradedPrefix  = "I had trouble with my advanced context analysis, but here are some relevant memories I found:"
	apologyFallback = "My apologies, I had trouble processing your request and the fallback search also failed."
)

// contextPipeline is the planner surface the orchestrator drives
type contextPipeline interface {
	BuildContext(ctx context.Context, message, userID, appID string, isNewHint bool) (string, *models.ContextPlan, error)
}

// ingestScheduler schedules background persistence of memorable content
type ingestScheduler interface {
	ScheduleIngest(userID, appID, content string) *TaskHandle
}

// ContextOrchestrator is the single entry point for context engineering.
// Orchestrate never returns an error and never returns an empty string:
// every failure path degrades to a best-effort textual response so the
// conversational caller always has something to work with.
type ContextOrchestrator struct {
	planner   contextPipeline
	retriever Retriever
	cache     *ContextCacheService
	access    accessResolver
	ingest    ingestScheduler
	metrics   *Metrics

	deadline time.Duration
}

// NewContextOrchestrator creates the orchestration façade. metrics may be
// nil. deadline <= 0 means the default 25 second budget.
func NewContextOrchestrator(planner contextPipeline, retriever Retriever, cache *ContextCacheService, access accessResolver, ingest ingestScheduler, metrics *Metrics, deadline time.Duration) *ContextOrchestrator {
	if deadline <= 0 {
		deadline = defaultContextDeadline
	}
	return &ContextOrchestrator{
		planner:   planner,
		retriever: retriever,
		cache:     cache,
		access:    access,
		ingest:    ingest,
		metrics:   metrics,
		deadline:  deadline,
	}
}

// Orchestrate engineers context for one user message. The whole pipeline
// runs under a hard deadline; on expiry it degrades to a plain similarity
// search, and if that also fails it returns a fixed apology.
func (o *ContextOrchestrator) Orchestrate(ctx context.Context, message, userID, clientID string, isNew bool) string {
	start := time.Now()
	o.metrics.ObserveRequest()

	logger := logging.WithSession(userID, clientID)
	logger.Debug("context request received", "is_new", isNew)

	sessionKey := SessionKey(userID, clientID)
	if _, ok := o.cache.Get(sessionKey); ok {
		// Cache hit is advisory only: the session is warm, but context is
		// still engineered per message.
		o.metrics.ObserveCacheHit()
		log.Printf("⚡ [ORCHESTRATOR] Warm session %s", sessionKey)
	} else {
		o.metrics.ObserveCacheMiss()
	}

	octx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	payload, plan, err := o.planner.BuildContext(octx, message, userID, clientID, isNew)
	if err == nil {
		o.cache.Put(sessionKey, payload, userID)

		if plan != nil && plan.ShouldSaveMemory && plan.MemorableContent != "" && o.ingest != nil {
			handle := o.ingest.ScheduleIngest(userID, clientID, plan.MemorableContent)
			log.Printf("💾 [ORCHESTRATOR] Scheduled ingest task %s for user %s", handle.ID, userID)
		}

		o.metrics.ObserveLatency(time.Since(start))
		return payload
	}

	if errors.Is(err, context.DeadlineExceeded) {
		log.Printf("⏰ [ORCHESTRATOR] Context pipeline exceeded %v for user %s, degrading", o.deadline, userID)
		o.metrics.ObserveDegraded()
		o.metrics.ObserveLatency(time.Since(start))
		return o.fallbackSearch(message, userID, clientID)
	}

	log.Printf("❌ [ORCHESTRATOR] Context pipeline failed for user %s: %v", userID, err)
	o.metrics.ObserveDegraded()
	o.metrics.ObserveLatency(time.Since(start))
	return fmt.Sprintf("I had trouble processing your message: %v", err)
}

// fallbackSearch is the degraded path: a plain limit-5 similarity search
// on a fresh short budget, independent of the expired request context.
func (o *ContextOrchestrator) fallbackSearch(message, userID, clientID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), fallbackSearchTimeout)
	defer cancel()

	visible, err := o.access.AccessibleFacts(ctx, clientID)
	if err != nil {
		log.Printf("❌ [ORCHESTRATOR] Fallback access resolution failed for user %s: %v", userID, err)
		return apologyFallback
	}

	results, err := o.retriever.Search(ctx, message, userID, fallbackSearchLimit, visible)
	if err != nil {
		log.Printf("❌ [ORCHESTRATOR] Fallback search failed for user %s: %v", userID, err)
		return apologyFallback
	}

	out := degradedPrefix + "\n"
	if len(results) == 0 {
		out += "- (no memories matched)\n"
		return out
	}
	for _, res := range results {
		out += "- " + res.Content + "\n"
	}
	return out
}
