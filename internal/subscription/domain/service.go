package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service owns the translation between tiers and persisted rows and
// records every transition in the system event log.
type Service interface {
	// GetTier returns the user's current tier. A user without a
	// subscription row is on the free tier; this is never an error.
	GetTier(ctx context.Context, userID snowflake.ID) (Tier, error)

	// SetTier moves the user to the target tier. Setting the free tier
	// deletes any stored row; setting premium creates or updates one.
	// Reapplying the current tier is a no-op and logs nothing. The
	// actor identifies who caused the change ("stripe", "sync", or a
	// user id); when empty it defaults to the user themselves.
	SetTier(ctx context.Context, userID snowflake.ID, tier Tier, actor string) error
}

var (
	ErrInvalidUser = errors.New("invalid_user")
	ErrInvalidTier = errors.New("invalid_tier")
)
