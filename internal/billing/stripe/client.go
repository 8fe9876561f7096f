package stripe

import (
	"context"
	"errors"

	"github.com/fourpaws/billing/internal/billing/domain"
	"github.com/fourpaws/billing/internal/config"
	"github.com/stripe/stripe-go/v83"
	portalsession "github.com/stripe/stripe-go/v83/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/subscription"
	"go.uber.org/zap"
)

// Client talks to Stripe through the SDK's global-key API.
type Client struct {
	log           *zap.Logger
	webhookSecret string
}

// NewClient configures the Stripe SDK and returns the provider client.
func NewClient(cfg config.Config, log *zap.Logger) *Client {
	stripe.Key = cfg.StripeSecretKey
	return &Client{
		log:           log.Named("billing.stripe"),
		webhookSecret: cfg.StripeWebhookSecret,
	}
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*domain.ProviderSubscription, error) {
	if id == "" {
		return nil, domain.ErrProviderSubscriptionNotFound
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, domain.ErrProviderSubscriptionNotFound
		}
		return nil, err
	}
	return mapSubscription(sub), nil
}

func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]domain.ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []domain.ProviderSubscription
	iter := subscription.List(params)
	for iter.Next() {
		out = append(out, *mapSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata(domain.MetadataUserIDKey, userID)

	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}
	c.log.Info("stripe customer created",
		zap.String("customer_id", cust.ID),
		zap.String("user_id", userID),
	)
	return cust.ID, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p domain.CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(p.CustomerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				domain.MetadataUserIDKey: p.UserID,
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(domain.MetadataUserIDKey, p.UserID)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func mapSubscription(sub *stripe.Subscription) *domain.ProviderSubscription {
	out := &domain.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price != nil && item.Price.Product != nil {
				out.ProductIDs = append(out.ProductIDs, item.Price.Product.ID)
			}
		}
	}
	return out
}
