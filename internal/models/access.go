package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccessRule effect constants
const (
	AccessEffectAllow = "allow"
	AccessEffectDeny  = "deny"
)

// AccessRule subject/object type constants. Only app→fact rules exist
// today; the types are stored explicitly so new rule kinds can be added
// without a migration.
const (
	AccessSubjectApp = "app"
	AccessObjectFact = "fact"
)

// AccessRule grants or revokes an application's visibility of facts.
// A nil ObjectID means the rule applies to all facts (wildcard).
type AccessRule struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SubjectType string              `bson:"subjectType" json:"subject_type"`
	SubjectID   string              `bson:"subjectId" json:"subject_id"`
	ObjectType  string              `bson:"objectType" json:"object_type"`
	ObjectID    *primitive.ObjectID `bson:"objectId,omitempty" json:"object_id,omitempty"`
	Effect      string              `bson:"effect" json:"effect"`
	CreatedAt   time.Time           `bson:"createdAt" json:"created_at"`
}

// IsWildcard reports whether the rule applies to every fact
func (r *AccessRule) IsWildcard() bool {
	return r.ObjectID == nil
}
