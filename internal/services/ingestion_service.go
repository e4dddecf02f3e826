package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"recall/internal/logging"
	"recall/internal/models"

	"github.com/google/uuid"
)

const (
	analysisTimeout = 8 * time.Second

	ingestLockPrefix = "recall:ingest:"
	ingestLockTTL    = 60 * time.Second
)

// factCreator is the slice of FactService ingestion needs
type factCreator interface {
	CreateFact(ctx context.Context, userID, appID, content string, metadata map[string]interface{}) (*models.Fact, error)
}

// factIndexer adds persisted facts to the similarity index
type factIndexer interface {
	Index(ctx context.Context, fact *models.Fact) error
}

// IngestionService persists memorable content in the background. Work is
// scheduled through the task registry so callers get a task ID back
// immediately and failures never surface on the request path.
type IngestionService struct {
	tasks   *TaskRegistry
	llm     TextGenerator
	facts   factCreator
	indexer factIndexer
	redis   *RedisService // optional, for per-user ingest locks
	metrics *Metrics
}

// NewIngestionService creates the background ingestion service. redis and
// metrics may be nil.
func NewIngestionService(tasks *TaskRegistry, llm TextGenerator, facts factCreator, indexer factIndexer, redis *RedisService, metrics *Metrics) *IngestionService {
	return &IngestionService{
		tasks:   tasks,
		llm:     llm,
		facts:   facts,
		indexer: indexer,
		redis:   redis,
		metrics: metrics,
	}
}

// ScheduleIngest registers an ingest task and starts it on a detached
// context. The returned handle lets tests wait for completion; production
// callers only use the task ID.
func (s *IngestionService) ScheduleIngest(userID, appID, content string) *TaskHandle {
	taskID := s.tasks.Create(models.TaskTypeIngest, userID)
	s.metrics.ObserveTaskStatus(string(models.TaskStatusPending))

	return s.tasks.RunTracked(taskID, func(ctx context.Context) (map[string]interface{}, error) {
		result, err := s.ingest(ctx, taskID, userID, appID, content)
		if err != nil {
			s.metrics.ObserveTaskStatus(string(models.TaskStatusFailed))
			return nil, err
		}
		s.metrics.ObserveTaskStatus(string(models.TaskStatusCompleted))
		return result, nil
	})
}

func (s *IngestionService) ingest(ctx context.Context, taskID, userID, appID, content string) (map[string]interface{}, error) {
	logger := logging.WithTask(slog.Default(), taskID, models.TaskTypeIngest)
	logger.Debug("ingest started", "user_id", userID)

	unlock, err := s.acquireUserLock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.tasks.UpdateProgress(taskID, 20, "Analyzing content")

	analysis := s.analyze(ctx, content)
	if !analysis.ShouldSave {
		log.Printf("🤔 [INGEST] Content for user %s judged not memorable, skipping", userID)
		return map[string]interface{}{"saved": false}, nil
	}

	s.tasks.UpdateProgress(taskID, 60, "Persisting fact")

	metadata := map[string]interface{}{"source": "conversation"}
	if len(analysis.Categories) > 0 {
		metadata["categories"] = analysis.Categories
	}

	fact, err := s.facts.CreateFact(ctx, userID, appID, analysis.Content, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to persist fact: %w", err)
	}

	s.tasks.UpdateProgress(taskID, 80, "Indexing fact")

	if err := s.indexer.Index(ctx, fact); err != nil {
		// The fact is durable; losing the index entry only costs recall
		// until the next reindex.
		log.Printf("⚠️  [INGEST] Failed to index fact %s: %v", fact.ID.Hex(), err)
	}

	return map[string]interface{}{
		"saved":   true,
		"fact_id": fact.ID.Hex(),
	}, nil
}

// acquireUserLock serializes ingestion per user across instances when
// Redis is configured. Returns an error if another ingest holds the lock.
func (s *IngestionService) acquireUserLock(ctx context.Context, userID string) (func(), error) {
	if s.redis == nil {
		return func() {}, nil
	}

	lockKey := ingestLockPrefix + userID
	lockValue := uuid.NewString()

	acquired, err := s.redis.AcquireLock(ctx, lockKey, lockValue, ingestLockTTL)
	if err != nil {
		// Redis trouble must not block persistence
		log.Printf("⚠️  [INGEST] Lock acquisition failed for user %s, proceeding unlocked: %v", userID, err)
		return func() {}, nil
	}
	if !acquired {
		return nil, fmt.Errorf("ingestion already in progress for user %s", userID)
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := s.redis.ReleaseLock(rctx, lockKey, lockValue); err != nil {
			log.Printf("⚠️  [INGEST] Failed to release lock for user %s: %v", userID, err)
		}
	}, nil
}

// analyze asks the model whether the content is worth persisting and in
// what form. Falls back to the keyword heuristic on any failure.
func (s *IngestionService) analyze(ctx context.Context, content string) *models.MemoryAnalysis {
	actx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`Decide whether this user statement contains a durable personal fact worth remembering long-term.

Statement: %q

Respond with JSON only:
{
  "should_save": true or false,
  "memorable_content": "the fact restated concisely, or empty string",
  "categories": ["optional category tags"]
}`, content)

	response, err := s.llm.GenerateText(actx, prompt, 256)
	if err != nil {
		log.Printf("⚠️  [INGEST] Memorability analysis failed, using heuristic: %v", err)
		return fallbackAnalysis(content)
	}

	var analysis models.MemoryAnalysis
	if err := json.Unmarshal([]byte(extractJSON(response)), &analysis); err != nil {
		log.Printf("⚠️  [INGEST] Analysis response was not valid JSON, using heuristic: %v", err)
		return fallbackAnalysis(content)
	}

	if analysis.ShouldSave && analysis.Content == "" {
		analysis.Content = content
	}
	return &analysis
}

// fallbackAnalysis mirrors the planner's memorability heuristic
func fallbackAnalysis(content string) *models.MemoryAnalysis {
	lower := strings.ToLower(content)
	for _, kw := range memorableKeywords {
		if strings.Contains(lower, kw) {
			return &models.MemoryAnalysis{ShouldSave: true, Content: content}
		}
	}
	return &models.MemoryAnalysis{ShouldSave: false}
}
