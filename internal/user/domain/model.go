package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User mirrors the account record owned by the main application. This
// service only reads it and maintains the payment-provider join key.
type User struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	Email              string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	ExternalCustomerID *string      `gorm:"type:text" json:"external_customer_id,omitempty"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
