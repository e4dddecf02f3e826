package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"recall/internal/database"
	"recall/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FactService owns facts and their lifecycle audit trail. Every state
// transition appends exactly one history record; history is append-only.
type FactService struct {
	mongodb *database.MongoDB
	facts   *mongo.Collection
	history *mongo.Collection
}

// NewFactService creates a new fact service
func NewFactService(mongodb *database.MongoDB) *FactService {
	return &FactService{
		mongodb: mongodb,
		facts:   mongodb.Collection(database.CollectionFacts),
		history: mongodb.Collection(database.CollectionFactStateHistory),
	}
}

// CreateFact stores a new fact in the active state
func (s *FactService) CreateFact(ctx context.Context, userID, appID, content string, metadata map[string]interface{}) (*models.Fact, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required: %w", ErrValidation)
	}
	if content == "" {
		return nil, fmt.Errorf("fact content is required: %w", ErrValidation)
	}

	now := time.Now()
	fact := &models.Fact{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		AppID:     appID,
		Content:   content,
		Metadata:  metadata,
		State:     models.FactStateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.facts.InsertOne(ctx, fact); err != nil {
		return nil, fmt.Errorf("failed to insert fact: %w", err)
	}

	log.Printf("✅ [FACT-STORE] Created fact %s for user %s (app: %s)", fact.ID.Hex(), userID, appID)
	return fact, nil
}

// TransitionFact moves a fact owned by userID to newState and appends one
// audit record. The update and its audit row share a transaction, so a
// history failure rolls the state change back. The state machine itself
// allows any state from any other state; policy about which transitions
// are meaningful belongs to callers. Re-requesting the current state is
// idempotent in effect but still audited.
func (s *FactService) TransitionFact(ctx context.Context, userID string, factID primitive.ObjectID, newState models.FactState, actorID string) (*models.Fact, error) {
	if !models.IsValidFactState(newState) {
		return nil, fmt.Errorf("unknown fact state %q: %w", newState, ErrValidation)
	}
	if userID == "" {
		return nil, fmt.Errorf("user ID is required: %w", ErrValidation)
	}
	if actorID == "" {
		return nil, fmt.Errorf("actor ID is required: %w", ErrValidation)
	}

	now := time.Now()
	set := bson.M{
		"state":     newState,
		"updatedAt": now,
	}
	switch newState {
	case models.FactStateArchived:
		set["archivedAt"] = now
	case models.FactStateDeleted:
		set["deletedAt"] = now
	}

	var before models.Fact
	err := s.mongodb.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		// Returning the pre-update document gives us the old state in the
		// same round trip, which keeps per-fact audit ordering aligned
		// with the update order.
		result := s.facts.FindOneAndUpdate(
			sessCtx,
			bson.M{"_id": factID, "userId": userID},
			bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		)
		if err := result.Decode(&before); err != nil {
			if err == mongo.ErrNoDocuments {
				return fmt.Errorf("fact %s: %w", factID.Hex(), ErrNotFound)
			}
			return fmt.Errorf("failed to transition fact: %w", err)
		}

		transition := &models.FactStateTransition{
			ID:        primitive.NewObjectID(),
			FactID:    factID,
			ChangedBy: actorID,
			OldState:  before.State,
			NewState:  newState,
			ChangedAt: now,
		}
		if _, err := s.history.InsertOne(sessCtx, transition); err != nil {
			return fmt.Errorf("failed to append state history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	after := before
	after.State = newState
	after.UpdatedAt = now
	switch newState {
	case models.FactStateArchived:
		after.ArchivedAt = &now
	case models.FactStateDeleted:
		after.DeletedAt = &now
	}

	log.Printf("🔄 [FACT-STORE] Fact %s: %s → %s (by %s)", factID.Hex(), before.State, newState, actorID)
	return &after, nil
}

// GetFact retrieves a single fact owned by the user
func (s *FactService) GetFact(ctx context.Context, userID string, factID primitive.ObjectID) (*models.Fact, error) {
	var fact models.Fact
	err := s.facts.FindOne(ctx, bson.M{"_id": factID, "userId": userID}).Decode(&fact)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("fact %s: %w", factID.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get fact: %w", err)
	}
	return &fact, nil
}

// ListFacts retrieves facts with optional state filter and pagination
func (s *FactService) ListFacts(ctx context.Context, userID string, state models.FactState, page, pageSize int) ([]models.Fact, int64, error) {
	filter := bson.M{"userId": userID}
	if state != "" {
		filter["state"] = state
	} else {
		// Deleted facts stay out of listings unless asked for explicitly
		filter["state"] = bson.M{"$ne": models.FactStateDeleted}
	}

	total, err := s.facts.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count facts: %w", err)
	}

	skip := (page - 1) * pageSize
	findOptions := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(pageSize))

	cursor, err := s.facts.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find facts: %w", err)
	}
	defer cursor.Close(ctx)

	var facts []models.Fact
	if err := cursor.All(ctx, &facts); err != nil {
		return nil, 0, fmt.Errorf("failed to decode facts: %w", err)
	}

	return facts, total, nil
}

// ListRecentFacts returns the user's most recent active facts, newest
// first. Feeds the planner's new-conversation primer.
func (s *FactService) ListRecentFacts(ctx context.Context, userID string, limit int) ([]models.Fact, error) {
	filter := bson.M{
		"userId": userID,
		"state":  models.FactStateActive,
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.facts.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent facts: %w", err)
	}
	defer cursor.Close(ctx)

	var facts []models.Fact
	if err := cursor.All(ctx, &facts); err != nil {
		return nil, fmt.Errorf("failed to decode recent facts: %w", err)
	}

	return facts, nil
}

// History returns the fact's audit trail in transition order. The trail
// is as private as the fact itself, so ownership is verified first.
func (s *FactService) History(ctx context.Context, userID string, factID primitive.ObjectID) ([]models.FactStateTransition, error) {
	if err := s.facts.FindOne(ctx, bson.M{"_id": factID, "userId": userID}).Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("fact %s: %w", factID.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to verify fact ownership: %w", err)
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "changedAt", Value: 1}})

	cursor, err := s.history.Find(ctx, bson.M{"factId": factID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find state history: %w", err)
	}
	defer cursor.Close(ctx)

	var transitions []models.FactStateTransition
	if err := cursor.All(ctx, &transitions); err != nil {
		return nil, fmt.Errorf("failed to decode state history: %w", err)
	}

	return transitions, nil
}
