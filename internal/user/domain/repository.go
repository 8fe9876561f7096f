package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByExternalCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*User, error)
	UpdateExternalCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string) error
}

var (
	ErrUserNotFound  = errors.New("user_not_found")
	ErrInvalidUserID = errors.New("invalid_user_id")
)
