package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fourpaws/billing/internal/audit/domain"
	"github.com/fourpaws/billing/internal/billing/domain"
	subscriptiondomain "github.com/fourpaws/billing/internal/subscription/domain"
	"go.uber.org/zap"
)

// dispatch routes an event to its handler. It reports handled=false for
// event types outside the closed set below so the caller can leave the
// stored row pending.
func (s *Service) dispatch(ctx context.Context, event *domain.Event, userID *snowflake.ID) (bool, error) {
	switch event.Type {
	case domain.EventCustomerCreated:
		return true, s.handleCustomerCreated(ctx, event, userID)
	case domain.EventSubscriptionCreated:
		return true, s.handleSubscriptionCreated(ctx, event, userID)
	case domain.EventSubscriptionUpdated:
		return true, s.handleSubscriptionUpdated(ctx, event, userID)
	case domain.EventSubscriptionDeleted:
		return true, s.handleSubscriptionDeleted(ctx, event, userID)
	case domain.EventInvoicePaid, domain.EventInvoicePaymentSucceeded:
		return true, s.handleInvoicePaid(ctx, event, userID)
	case domain.EventInvoicePaymentFailed:
		return true, s.handleInvoicePaymentFailed(ctx, event, userID)
	case domain.EventInvoiceActionRequired:
		return true, s.handleInvoiceActionRequired(ctx, event, userID)
	case domain.EventPaymentIntentSucceeded:
		return true, s.handlePaymentIntentSucceeded(ctx, event, userID)
	case domain.EventPaymentIntentFailed:
		return true, s.handlePaymentIntentFailed(ctx, event, userID)
	case domain.EventCustomerUpdated,
		domain.EventSubscriptionTrialWillEnd,
		domain.EventCheckoutCompleted,
		domain.EventInvoiceCreated,
		domain.EventInvoiceFinalized,
		domain.EventInvoiceUpdated,
		domain.EventPaymentIntentCreated,
		domain.EventChargeSucceeded,
		domain.EventPaymentMethodAttached:
		// Recorded for audit; tier changes are driven by the
		// subscription and invoice events above.
		return true, nil
	default:
		return false, nil
	}
}

// handleCustomerCreated attaches the provider customer id to the local
// user named in the event metadata, if that user is not linked yet.
func (s *Service) handleCustomerCreated(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	customer := event.Customer
	if customer == nil || customer.ID == "" {
		return domain.ErrInvalidPayload
	}
	if userID == nil {
		// Customers created outside this service carry no user metadata.
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, s.db, *userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrUserNotFound
	}
	if user.ExternalCustomerID != nil && *user.ExternalCustomerID != "" {
		return nil
	}

	if err := s.userRepo.UpdateExternalCustomerID(ctx, s.db, *userID, customer.ID); err != nil {
		return err
	}
	return s.recordCustomerLinked(ctx, *userID, customer.ID, auditdomain.ActorStripe)
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	sub := event.Subscription
	if sub == nil {
		return domain.ErrInvalidPayload
	}
	if sub.Status != domain.SubscriptionStatusActive || !sub.HasProduct(s.premiumProduct) {
		return nil
	}
	return s.setTier(ctx, userID, subscriptiondomain.TierPremium)
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	sub := event.Subscription
	if sub == nil {
		return domain.ErrInvalidPayload
	}

	switch sub.Status {
	case domain.SubscriptionStatusActive:
		if sub.CancelAtPeriodEnd {
			// Cancellation is scheduled but the period is paid for; the
			// user keeps their current tier until the deletion event.
			return nil
		}
		if !sub.HasProduct(s.premiumProduct) {
			return nil
		}
		return s.setTier(ctx, userID, subscriptiondomain.TierPremium)
	case domain.SubscriptionStatusPastDue:
		// Grace period while the provider retries payment.
		return nil
	case domain.SubscriptionStatusCanceled, domain.SubscriptionStatusUnpaid:
		return s.setTier(ctx, userID, subscriptiondomain.TierFree)
	default:
		return nil
	}
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	sub := event.Subscription
	if sub == nil {
		return domain.ErrInvalidPayload
	}
	if !sub.HasProduct(s.premiumProduct) {
		return nil
	}
	return s.setTier(ctx, userID, subscriptiondomain.TierFree)
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	invoice := event.Invoice
	if invoice == nil {
		return domain.ErrInvalidPayload
	}
	if invoice.SubscriptionID == "" {
		// One-off invoices do not influence the tier.
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, invoice.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == domain.SubscriptionStatusActive && sub.HasProduct(s.premiumProduct) {
		return s.setTier(ctx, userID, subscriptiondomain.TierPremium)
	}
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	invoice := event.Invoice
	if invoice == nil {
		return domain.ErrInvalidPayload
	}
	if invoice.SubscriptionID == "" {
		return nil
	}
	if invoice.NextPaymentAttempt != nil {
		// The provider will retry; keep the user's tier until the final
		// attempt fails.
		s.log.Info("invoice payment failed, retry scheduled",
			zap.String("invoice_id", invoice.ID),
			zap.Time("next_attempt", *invoice.NextPaymentAttempt),
		)
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, invoice.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.HasProduct(s.premiumProduct) {
		return s.setTier(ctx, userID, subscriptiondomain.TierFree)
	}
	return nil
}

func (s *Service) handleInvoiceActionRequired(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	invoice := event.Invoice
	if invoice == nil {
		return domain.ErrInvalidPayload
	}
	if invoice.SubscriptionID == "" {
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, invoice.SubscriptionID)
	if err != nil {
		return err
	}
	// Requiring action is not a failure; never downgrade here.
	if sub.Status == domain.SubscriptionStatusActive && sub.HasProduct(s.premiumProduct) {
		return s.setTier(ctx, userID, subscriptiondomain.TierPremium)
	}
	return nil
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	intent := event.PaymentIntent
	if intent == nil {
		return domain.ErrInvalidPayload
	}
	subscriptionID := intent.Metadata[domain.MetadataSubscriptionIDKey]
	if subscriptionID == "" {
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == domain.SubscriptionStatusActive && sub.HasProduct(s.premiumProduct) {
		return s.setTier(ctx, userID, subscriptiondomain.TierPremium)
	}
	return nil
}

func (s *Service) handlePaymentIntentFailed(ctx context.Context, event *domain.Event, userID *snowflake.ID) error {
	intent := event.PaymentIntent
	if intent == nil {
		return domain.ErrInvalidPayload
	}
	subscriptionID := intent.Metadata[domain.MetadataSubscriptionIDKey]
	if subscriptionID == "" {
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == domain.SubscriptionStatusActive && sub.HasProduct(s.premiumProduct) {
		return s.setTier(ctx, userID, subscriptiondomain.TierFree)
	}
	return nil
}

// setTier applies a provider-driven tier change. Events that should
// change a tier but cannot be tied to a user fail so the provider
// redelivers once the customer mapping exists.
func (s *Service) setTier(ctx context.Context, userID *snowflake.ID, tier subscriptiondomain.Tier) error {
	if userID == nil {
		return domain.ErrUnknownUser
	}
	return s.subSvc.SetTier(ctx, *userID, tier, auditdomain.ActorStripe)
}
