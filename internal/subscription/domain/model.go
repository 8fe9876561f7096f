package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier is the subscription level of a user. The free tier is never
// persisted: absence of a row means free.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium:
		return true
	default:
		return false
	}
}

// Subscription stores the paid tier for a single user.
type Subscription struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex" json:"user_id"`
	Tier      Tier         `gorm:"type:text;not null" json:"tier"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
