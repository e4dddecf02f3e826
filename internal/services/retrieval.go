package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"recall/internal/models"

	chromem "github.com/philippgille/chromem-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SearchResult is one fact returned by similarity search
type SearchResult struct {
	FactID  string  `json:"fact_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Retriever is the similarity-search collaborator. Implementations may be
// slow or unavailable; callers bound every Search with a context deadline
// and degrade on error instead of crashing.
type Retriever interface {
	Search(ctx context.Context, query, userID string, limit int, visible AccessSet) ([]SearchResult, error)
}

// ChromemRetriever is an embedded vector store over chromem-go with one
// collection per user for namespace isolation.
type ChromemRetriever struct {
	db        *chromem.DB
	embedding chromem.EmbeddingFunc
	mu        sync.RWMutex
}

// NewChromemRetriever creates a retriever. embedding may be nil, in which
// case chromem's default embedding function (OpenAI, OPENAI_API_KEY) is
// used.
func NewChromemRetriever(embedding chromem.EmbeddingFunc) *ChromemRetriever {
	if embedding == nil {
		embedding = chromem.NewEmbeddingFuncDefault()
	}
	return &ChromemRetriever{
		db:        chromem.NewDB(),
		embedding: embedding,
	}
}

// collection returns the user's collection, creating it if needed
func (r *ChromemRetriever) collection(userID string) (*chromem.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := "user_" + userID
	col, err := r.db.GetOrCreateCollection(name, nil, r.embedding)
	if err != nil {
		return nil, fmt.Errorf("get collection for user %s: %w", userID, err)
	}
	return col, nil
}

// Index adds or replaces a fact in the user's collection
func (r *ChromemRetriever) Index(ctx context.Context, fact *models.Fact) error {
	col, err := r.collection(fact.UserID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:      fact.ID.Hex(),
		Content: fact.Content,
		Metadata: map[string]string{
			"user_id": fact.UserID,
			"app_id":  fact.AppID,
			"state":   string(fact.State),
		},
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	log.Printf("🧠 [RETRIEVAL] Indexed fact %s for user %s", fact.ID.Hex(), fact.UserID)
	return nil
}

// Remove deletes a fact from the user's collection (used when a fact
// transitions to deleted).
func (r *ChromemRetriever) Remove(ctx context.Context, userID string, factID primitive.ObjectID) error {
	col, err := r.collection(userID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, factID.Hex()); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Search runs a similarity query filtered through the app's visible set.
// chromem requires nResults <= collection size, so the limit is clamped.
func (r *ChromemRetriever) Search(ctx context.Context, query, userID string, limit int, visible AccessSet) ([]SearchResult, error) {
	if visible.Empty() {
		return nil, nil
	}

	col, err := r.collection(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", ErrCollaboratorUnavailable, err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, res := range results {
		factID, err := primitive.ObjectIDFromHex(res.ID)
		if err != nil {
			continue
		}
		if !visible.Allows(factID) {
			continue
		}
		// Deleted facts stay indexed until the removal hook runs; never
		// surface them.
		if res.Metadata["state"] == string(models.FactStateDeleted) {
			continue
		}
		out = append(out, SearchResult{
			FactID:  res.ID,
			Content: res.Content,
			Score:   float64(res.Similarity),
		})
	}

	return out, nil
}
