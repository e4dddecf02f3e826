package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"recall/internal/models"
)

// stubPipeline is a scriptable contextPipeline
type stubPipeline struct {
	payload string
	plan    *models.ContextPlan
	err     error
	block   bool // wait for ctx expiry, then return its error
}

func (s *stubPipeline) BuildContext(ctx context.Context, message, userID, appID string, isNewHint bool) (string, *models.ContextPlan, error) {
	if s.block {
		<-ctx.Done()
		return "", nil, ctx.Err()
	}
	return s.payload, s.plan, s.err
}

// stubScheduler records scheduled ingests
type stubScheduler struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubScheduler) ScheduleIngest(userID, appID, content string) *TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, content)

	done := make(chan struct{})
	close(done)
	return &TaskHandle{ID: "task-1", Done: done}
}

func (s *stubScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestOrchestrator(pipeline contextPipeline, retriever Retriever, scheduler ingestScheduler, deadline time.Duration) (*ContextOrchestrator, *ContextCacheService) {
	cache := NewContextCacheService()
	orch := NewContextOrchestrator(pipeline, retriever, cache, openAccess(), scheduler, nil, deadline)
	return orch, cache
}

func TestOrchestrateSuccessCachesAndSchedulesIngest(t *testing.T) {
	pipeline := &stubPipeline{
		payload: "--- Relevant Memories ---\n- User likes tea\n",
		plan: &models.ContextPlan{
			Strategy:         models.StrategyRelevantContext,
			SearchQueries:    []string{"tea"},
			ShouldSaveMemory: true,
			MemorableContent: "User likes tea",
		},
	}
	scheduler := &stubScheduler{}
	orch, cache := newTestOrchestrator(pipeline, &stubRetriever{}, scheduler, time.Second)

	result := orch.Orchestrate(context.Background(), "I like tea", "user1", "chatgpt", false)

	if result != pipeline.payload {
		t.Errorf("Orchestrate = %q, want pipeline payload", result)
	}
	if scheduler.count() != 1 {
		t.Errorf("Scheduled %d ingests, want exactly 1", scheduler.count())
	}

	entry, ok := cache.Get(SessionKey("user1", "chatgpt"))
	if !ok {
		t.Fatal("Expected session cache entry after success")
	}
	if entry.Payload != pipeline.payload {
		t.Errorf("Cached payload = %q, want the engineered context", entry.Payload)
	}
}

func TestOrchestrateNoIngestWithoutMemorableContent(t *testing.T) {
	pipeline := &stubPipeline{
		payload: "context",
		plan:    &models.ContextPlan{Strategy: models.StrategyRelevantContext, SearchQueries: []string{"q"}},
	}
	scheduler := &stubScheduler{}
	orch, _ := newTestOrchestrator(pipeline, &stubRetriever{}, scheduler, time.Second)

	orch.Orchestrate(context.Background(), "what's up?", "user1", "chatgpt", false)

	if scheduler.count() != 0 {
		t.Errorf("Scheduled %d ingests, want 0 when nothing is memorable", scheduler.count())
	}
}

func TestOrchestrateDeadlineFallsBackToSearch(t *testing.T) {
	retriever := &stubRetriever{results: []SearchResult{
		{FactID: "f1", Content: "User works at a bakery", Score: 0.9},
	}}
	scheduler := &stubScheduler{}
	orch, cache := newTestOrchestrator(&stubPipeline{block: true}, retriever, scheduler, 50*time.Millisecond)

	result := orch.Orchestrate(context.Background(), "tell me about work", "user1", "chatgpt", false)

	if !strings.HasPrefix(result, degradedPrefix) {
		t.Errorf("Expected degraded prefix, got %q", result)
	}
	if !strings.Contains(result, "User works at a bakery") {
		t.Errorf("Expected fallback search results in output, got %q", result)
	}
	if scheduler.count() != 0 {
		t.Error("Degraded path must not schedule ingestion")
	}
	if _, ok := cache.Get(SessionKey("user1", "chatgpt")); ok {
		t.Error("Degraded path must not populate the session cache")
	}
}

func TestOrchestrateFallbackFailureReturnsApology(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("index offline")}
	orch, _ := newTestOrchestrator(&stubPipeline{block: true}, retriever, &stubScheduler{}, 50*time.Millisecond)

	result := orch.Orchestrate(context.Background(), "hello", "user1", "chatgpt", false)

	if result != apologyFallback {
		t.Errorf("Orchestrate = %q, want the fixed apology", result)
	}
}

func TestOrchestrateNonDeadlineErrorReturnsMessage(t *testing.T) {
	pipeline := &stubPipeline{err: errors.New("access store unreachable")}
	orch, _ := newTestOrchestrator(pipeline, &stubRetriever{}, &stubScheduler{}, time.Second)

	result := orch.Orchestrate(context.Background(), "hello", "user1", "chatgpt", false)

	if !strings.HasPrefix(result, "I had trouble processing your message:") {
		t.Errorf("Expected trouble message, got %q", result)
	}
	if result == "" {
		t.Error("Orchestrate must never return an empty string")
	}
}

func TestOrchestrateConcurrentSameSession(t *testing.T) {
	pipeline := &stubPipeline{
		payload: "context",
		plan:    &models.ContextPlan{Strategy: models.StrategyRelevantContext, SearchQueries: []string{"q"}},
	}
	orch, cache := newTestOrchestrator(pipeline, &stubRetriever{}, &stubScheduler{}, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := orch.Orchestrate(context.Background(), "hello", "user1", "chatgpt", false); got == "" {
				t.Error("Orchestrate returned empty string")
			}
		}()
	}
	wg.Wait()

	// Last writer wins; exactly one live entry for the session
	if _, ok := cache.Get(SessionKey("user1", "chatgpt")); !ok {
		t.Error("Expected a cache entry after concurrent orchestration")
	}
	if cache.Count() != 1 {
		t.Errorf("Count = %d, want 1 entry for one session", cache.Count())
	}
}
