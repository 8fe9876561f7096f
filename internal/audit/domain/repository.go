package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	UserID    snowflake.ID
	EventType string
	StartAt   *time.Time
	EndAt     *time.Time
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *SystemEvent) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*SystemEvent, error)
}
