package services

import (
	"testing"

	"recall/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func allowRule(id *primitive.ObjectID) models.AccessRule {
	return models.AccessRule{
		SubjectType: models.AccessSubjectApp,
		SubjectID:   "app1",
		ObjectType:  models.AccessObjectFact,
		ObjectID:    id,
		Effect:      models.AccessEffectAllow,
	}
}

func denyRule(id *primitive.ObjectID) models.AccessRule {
	rule := allowRule(id)
	rule.Effect = models.AccessEffectDeny
	return rule
}

func TestResolveRulesNoRules(t *testing.T) {
	set := ResolveRules(nil)

	if !set.All {
		t.Error("Expected everything visible when no rules are configured")
	}
	if !set.NoRules {
		t.Error("Expected NoRules flag to be set")
	}
	if !set.Allows(primitive.NewObjectID()) {
		t.Error("Expected arbitrary fact to be visible")
	}
}

func TestResolveRulesWildcardDeny(t *testing.T) {
	factA := primitive.NewObjectID()

	// Wildcard deny wins even against explicit allows
	set := ResolveRules([]models.AccessRule{
		allowRule(&factA),
		denyRule(nil),
	})

	if !set.Empty() {
		t.Error("Expected empty set under wildcard deny")
	}
	if set.Allows(factA) {
		t.Error("Expected explicitly allowed fact to be hidden under wildcard deny")
	}
}

func TestResolveRulesWildcardAllowWithSpecificDeny(t *testing.T) {
	denied := primitive.NewObjectID()
	other := primitive.NewObjectID()

	set := ResolveRules([]models.AccessRule{
		allowRule(nil),
		denyRule(&denied),
	})

	if !set.All {
		t.Error("Expected All under wildcard allow")
	}
	if set.Allows(denied) {
		t.Error("Expected specific deny to override wildcard allow")
	}
	if !set.Allows(other) {
		t.Error("Expected undenied fact to be visible under wildcard allow")
	}
}

func TestResolveRulesSpecificAllowMinusDeny(t *testing.T) {
	factA := primitive.NewObjectID()
	factB := primitive.NewObjectID()
	factC := primitive.NewObjectID()

	set := ResolveRules([]models.AccessRule{
		allowRule(&factA),
		allowRule(&factB),
		denyRule(&factB),
	})

	if set.All {
		t.Error("Expected restricted set, not All")
	}
	if !set.Allows(factA) {
		t.Error("Expected allowed fact A to be visible")
	}
	if set.Allows(factB) {
		t.Error("Expected fact B to be hidden: deny overrides allow")
	}
	if set.Allows(factC) {
		t.Error("Expected unlisted fact C to be hidden")
	}
}

func TestResolveRulesDenyOnly(t *testing.T) {
	denied := primitive.NewObjectID()

	set := ResolveRules([]models.AccessRule{
		denyRule(&denied),
	})

	if set.Allows(denied) {
		t.Error("Expected denied fact to be hidden")
	}
	if !set.Empty() {
		t.Error("Expected set with only denies and no allows to be empty")
	}
}

func TestResolveRulesIdempotent(t *testing.T) {
	factA := primitive.NewObjectID()
	factB := primitive.NewObjectID()
	rules := []models.AccessRule{
		allowRule(nil),
		allowRule(&factA),
		denyRule(&factB),
	}

	first := ResolveRules(rules)
	second := ResolveRules(rules)

	ids := []primitive.ObjectID{factA, factB, primitive.NewObjectID()}
	for _, id := range ids {
		if first.Allows(id) != second.Allows(id) {
			t.Errorf("Expected identical visibility for %s across resolutions", id.Hex())
		}
	}
}

func TestAccessSetEmpty(t *testing.T) {
	tests := []struct {
		name  string
		set   AccessSet
		empty bool
	}{
		{"zero value", AccessSet{}, true},
		{"all visible", AccessSet{All: true}, false},
		{"specific ids", AccessSet{IDs: map[primitive.ObjectID]struct{}{primitive.NewObjectID(): {}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.Empty(); got != tt.empty {
				t.Errorf("Empty() = %v, want %v", got, tt.empty)
			}
		})
	}
}
