package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fourpaws/billing/internal/billing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

// Provide constructs the billing event repository.
func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.BillingEvent) (bool, error) {
	if event == nil || strings.TrimSpace(event.ExternalEventID) == "" {
		return false, domain.ErrInvalidEvent
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindByExternalEventID(ctx context.Context, db *gorm.DB, externalEventID string) (*domain.BillingEvent, error) {
	externalEventID = strings.TrimSpace(externalEventID)
	if externalEventID == "" {
		return nil, domain.ErrInvalidEvent
	}
	var event domain.BillingEvent
	err := db.WithContext(ctx).Where("external_event_id = ?", externalEventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_events
		 SET status = ?, processed_at = ?, error = NULL
		 WHERE id = ?`,
		domain.StatusProcessed,
		processedAt,
		id,
	).Error
}

func (r *repository) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time, message string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_events
		 SET status = ?, processed_at = ?, error = ?
		 WHERE id = ?`,
		domain.StatusFailed,
		processedAt,
		message,
		id,
	).Error
}
