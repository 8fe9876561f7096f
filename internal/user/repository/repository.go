package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fourpaws/billing/internal/user/domain"
	"gorm.io/gorm"
)

type repository struct{}

// Provide constructs the user repository.
func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	if id == 0 {
		return nil, domain.ErrInvalidUserID
	}
	var user domain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByExternalCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.User, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	var user domain.User
	err := db.WithContext(ctx).Where("external_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdateExternalCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string) error {
	if id == 0 {
		return domain.ErrInvalidUserID
	}
	return db.WithContext(ctx).Exec(
		`UPDATE users
		 SET external_customer_id = ?, updated_at = ?
		 WHERE id = ?`,
		strings.TrimSpace(customerID),
		time.Now().UTC(),
		id,
	).Error
}
