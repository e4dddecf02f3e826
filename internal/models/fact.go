package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FactState describes a fact's lifecycle/visibility status
type FactState string

// Fact lifecycle states
const (
	FactStateActive   FactState = "active"
	FactStatePaused   FactState = "paused"
	FactStateArchived FactState = "archived"
	FactStateDeleted  FactState = "deleted"
)

// IsValidFactState reports whether s is a known lifecycle state
func IsValidFactState(s FactState) bool {
	switch s {
	case FactStateActive, FactStatePaused, FactStateArchived, FactStateDeleted:
		return true
	}
	return false
}

// Fact represents a single unit of stored user knowledge
type Fact struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"` // Owning user, immutable after creation
	AppID  string             `bson:"appId,omitempty" json:"app_id,omitempty"`

	Content  string                 `bson:"content" json:"content"`
	Metadata map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`

	State FactState `bson:"state" json:"state"`

	// Timestamps
	CreatedAt  time.Time  `bson:"createdAt" json:"created_at"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updated_at"`
	ArchivedAt *time.Time `bson:"archivedAt,omitempty" json:"archived_at,omitempty"`
	DeletedAt  *time.Time `bson:"deletedAt,omitempty" json:"deleted_at,omitempty"`
}

// FactStateTransition is one immutable audit record of a lifecycle change.
// Exactly one is appended per transition request; records are never
// updated or deleted afterwards.
type FactStateTransition struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FactID    primitive.ObjectID `bson:"factId" json:"fact_id"`
	ChangedBy string             `bson:"changedBy" json:"changed_by"`
	OldState  FactState          `bson:"oldState" json:"old_state"`
	NewState  FactState          `bson:"newState" json:"new_state"`
	ChangedAt time.Time          `bson:"changedAt" json:"changed_at"`
}
