package domain

import (
	"context"
	"errors"
	"strings"
)

// ProviderSubscription is the provider-side view of a subscription,
// fetched when an event does not carry enough detail on its own.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	ProductIDs        []string
	Metadata          map[string]string
}

// HasProduct reports whether the subscription includes the given product.
func (s *ProviderSubscription) HasProduct(productID string) bool {
	if s == nil || strings.TrimSpace(productID) == "" {
		return false
	}
	for _, id := range s.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// CheckoutParams configures a hosted checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	UserID     string
}

// ProviderClient is the outbound surface to the payment provider.
type ProviderClient interface {
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]ProviderSubscription, error)
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

var ErrProviderSubscriptionNotFound = errors.New("provider_subscription_not_found")
