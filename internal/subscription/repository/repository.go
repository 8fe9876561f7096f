package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fourpaws/billing/internal/subscription/domain"
	"gorm.io/gorm"
)

type repository struct{}

// Provide constructs the subscription repository.
func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) Create(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET tier = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Tier,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repository) DeleteByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM subscriptions WHERE user_id = ?`,
		userID,
	).Error
}
