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

// AccessSet is the resolved visibility of facts for one application.
// All=true means every fact of the owning user is visible, except any id
// in Denied; a specific deny always overrides a wildcard allow.
type AccessSet struct {
	All     bool
	IDs     map[primitive.ObjectID]struct{}
	Denied  map[primitive.ObjectID]struct{}
	NoRules bool // no app-level rules configured at all
}

// Allows reports whether the given fact is visible under this set
func (a AccessSet) Allows(factID primitive.ObjectID) bool {
	if _, denied := a.Denied[factID]; denied {
		return false
	}
	if a.All {
		return true
	}
	_, ok := a.IDs[factID]
	return ok
}

// Empty reports whether nothing is visible
func (a AccessSet) Empty() bool {
	return !a.All && len(a.IDs) == 0
}

// ResolveRules evaluates app-level access rules into an AccessSet. Pure
// function over the rule slice:
//   - no rules            → everything visible (no restriction configured)
//   - wildcard deny       → nothing visible
//   - wildcard allow      → everything visible minus specific denies
//   - otherwise           → specific allows minus specific denies
func ResolveRules(rules []models.AccessRule) AccessSet {
	if len(rules) == 0 {
		return AccessSet{All: true, NoRules: true}
	}

	allowed := make(map[primitive.ObjectID]struct{})
	denied := make(map[primitive.ObjectID]struct{})
	wildcardAllow := false

	for _, rule := range rules {
		switch rule.Effect {
		case models.AccessEffectAllow:
			if rule.IsWildcard() {
				wildcardAllow = true
			} else {
				allowed[*rule.ObjectID] = struct{}{}
			}
		case models.AccessEffectDeny:
			if rule.IsWildcard() {
				// Wildcard deny wins outright
				return AccessSet{}
			}
			denied[*rule.ObjectID] = struct{}{}
		}
	}

	if wildcardAllow {
		return AccessSet{All: true, Denied: denied}
	}

	for id := range denied {
		delete(allowed, id)
	}
	return AccessSet{IDs: allowed, Denied: denied}
}

// AccessService resolves per-application fact visibility. It holds no
// mutable state of its own; every query reads the rule collection.
type AccessService struct {
	collection *mongo.Collection
}

// NewAccessService creates a new access service
func NewAccessService(mongodb *database.MongoDB) *AccessService {
	return &AccessService{
		collection: mongodb.Collection(database.CollectionAccessRules),
	}
}

// AccessibleFacts computes the set of fact IDs visible to the application
func (s *AccessService) AccessibleFacts(ctx context.Context, appID string) (AccessSet, error) {
	cursor, err := s.collection.Find(ctx, bson.M{
		"subjectType": models.AccessSubjectApp,
		"subjectId":   appID,
		"objectType":  models.AccessObjectFact,
	})
	if err != nil {
		return AccessSet{}, fmt.Errorf("failed to query access rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []models.AccessRule
	if err := cursor.All(ctx, &rules); err != nil {
		return AccessSet{}, fmt.Errorf("failed to decode access rules: %w", err)
	}

	return ResolveRules(rules), nil
}

// CreateRule validates and stores a new access rule
func (s *AccessService) CreateRule(ctx context.Context, rule *models.AccessRule) (*models.AccessRule, error) {
	if rule.SubjectID == "" {
		return nil, fmt.Errorf("subject ID is required: %w", ErrValidation)
	}
	if rule.Effect != models.AccessEffectAllow && rule.Effect != models.AccessEffectDeny {
		return nil, fmt.Errorf("effect must be %q or %q: %w", models.AccessEffectAllow, models.AccessEffectDeny, ErrValidation)
	}
	if rule.SubjectType == "" {
		rule.SubjectType = models.AccessSubjectApp
	}
	if rule.ObjectType == "" {
		rule.ObjectType = models.AccessObjectFact
	}
	if rule.ObjectType != models.AccessObjectFact {
		return nil, fmt.Errorf("unsupported object type %q: %w", rule.ObjectType, ErrValidation)
	}

	rule.ID = primitive.NewObjectID()
	rule.CreatedAt = time.Now()

	if _, err := s.collection.InsertOne(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to insert access rule: %w", err)
	}

	object := "*"
	if rule.ObjectID != nil {
		object = rule.ObjectID.Hex()
	}
	log.Printf("🔐 [ACCESS] Rule created: app %s %s fact %s", rule.SubjectID, rule.Effect, object)
	return rule, nil
}

// ListRules returns all rules configured for the application
func (s *AccessService) ListRules(ctx context.Context, appID string) ([]models.AccessRule, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{
		"subjectType": models.AccessSubjectApp,
		"subjectId":   appID,
	}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to query access rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []models.AccessRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode access rules: %w", err)
	}

	return rules, nil
}
