package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Well-known system event types.
const (
	EventSubscriptionCreated   = "subscription_created"
	EventSubscriptionUpdated   = "subscription_updated"
	EventSubscriptionCancelled = "subscription_cancelled"
	EventCustomerLinked        = "customer_linked"
)

// Actors for changes not initiated by a user.
const (
	ActorStripe = "stripe"
	ActorSync   = "sync"
)

// SystemEvent is an immutable audit record. Rows are only ever appended.
type SystemEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	EventType   string            `gorm:"type:text;not null;index" json:"event_type"`
	UserID      *snowflake.ID     `gorm:"index" json:"user_id,omitempty"`
	ActorID     string            `gorm:"type:text;not null" json:"actor_id"`
	EntityType  string            `gorm:"type:text;not null" json:"entity_type"`
	EntityID    *string           `gorm:"type:text" json:"entity_id,omitempty"`
	Properties  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"properties"`
	Description string            `gorm:"type:text;not null;default:''" json:"description"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (SystemEvent) TableName() string { return "system_events" }
