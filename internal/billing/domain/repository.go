package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent persists a new billing event. It reports false without
	// error when a row with the same external event id already exists,
	// relying on the storage layer's uniqueness constraint so that
	// concurrent deliveries of the same id cannot both insert.
	InsertEvent(ctx context.Context, db *gorm.DB, event *BillingEvent) (bool, error)
	FindByExternalEventID(ctx context.Context, db *gorm.DB, externalEventID string) (*BillingEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time, message string) error
}
