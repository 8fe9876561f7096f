package repository

import (
	"context"

	"github.com/fourpaws/billing/internal/audit/domain"
	"gorm.io/gorm"
)

type repository struct{}

// Provide constructs the system event repository.
func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, event *domain.SystemEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repository) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.SystemEvent, error) {
	query := db.WithContext(ctx).Model(&domain.SystemEvent{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.StartAt != nil {
		query = query.Where("created_at >= ?", *filter.StartAt)
	}
	if filter.EndAt != nil {
		query = query.Where("created_at < ?", *filter.EndAt)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []*domain.SystemEvent
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
