package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/fourpaws/billing/internal/subscription/domain"
)

// Service reconciles asynchronously delivered provider events into the
// local subscription tier, and exposes the provider-side collaborator
// operations the application needs around it.
type Service interface {
	// ProcessEvent applies one webhook delivery. Redelivery of an
	// already processed event returns ErrEventAlreadyProcessed and has
	// no side effects. A handler fault marks the stored event failed
	// and is returned so the transport can signal the provider to
	// redeliver.
	ProcessEvent(ctx context.Context, event *Event) error

	// SyncUserSubscription re-derives the user's tier from the
	// provider's live subscription list, bypassing the event log.
	SyncUserSubscription(ctx context.Context, userID snowflake.ID) (subscriptiondomain.Tier, error)

	CreateCheckoutSession(ctx context.Context, userID snowflake.ID) (string, error)
	CreatePortalSession(ctx context.Context, userID snowflake.ID) (string, error)
}

var (
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrUnknownUser           = errors.New("unknown_user")
	ErrUserNotFound          = errors.New("user_not_found")
	ErrPremiumNotConfigured  = errors.New("premium_product_not_configured")
)
