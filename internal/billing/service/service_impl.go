package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fourpaws/billing/internal/audit/domain"
	"github.com/fourpaws/billing/internal/billing/domain"
	"github.com/fourpaws/billing/internal/clock"
	"github.com/fourpaws/billing/internal/config"
	"github.com/fourpaws/billing/internal/observability/metrics"
	subscriptiondomain "github.com/fourpaws/billing/internal/subscription/domain"
	userdomain "github.com/fourpaws/billing/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Repo     domain.Repository
	UserRepo userdomain.Repository
	SubSvc   subscriptiondomain.Service
	AuditSvc auditdomain.Service
	Provider domain.ProviderClient
	Metrics  *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	userRepo userdomain.Repository
	subSvc   subscriptiondomain.Service
	auditSvc auditdomain.Service
	provider domain.ProviderClient
	metrics  *metrics.BillingMetrics

	premiumProduct string
	premiumPrice   string
	successURL     string
	cancelURL      string
	returnURL      string
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billing.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		userRepo: p.UserRepo,
		subSvc:   p.SubSvc,
		auditSvc: p.AuditSvc,
		provider: p.Provider,
		metrics:  p.Metrics,

		premiumProduct: strings.TrimSpace(p.Cfg.StripePremiumProduct),
		premiumPrice:   strings.TrimSpace(p.Cfg.StripePremiumPrice),
		successURL:     p.Cfg.CheckoutSuccessURL,
		cancelURL:      p.Cfg.CheckoutCancelURL,
		returnURL:      p.Cfg.PortalReturnURL,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	externalID := strings.TrimSpace(event.ExternalID)
	if externalID == "" || strings.TrimSpace(string(event.Type)) == "" {
		return domain.ErrInvalidEvent
	}

	userID, customerID := s.resolveUser(ctx, event)

	record := &domain.BillingEvent{
		ID:                 s.genID.Generate(),
		ExternalEventID:    externalID,
		UserID:             userID,
		ExternalCustomerID: customerID,
		EventType:          string(event.Type),
		Status:             domain.StatusPending,
		Payload:            datatypes.JSON(event.Payload),
		CreatedAt:          s.now(),
	}
	if !event.CreatedAt.IsZero() {
		createdAt := event.CreatedAt.UTC()
		record.ExternalCreatedAt = &createdAt
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := s.repo.FindByExternalEventID(ctx, s.db, externalID)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.Status == domain.StatusProcessed {
			s.log.Debug("duplicate event skipped",
				zap.String("external_event_id", externalID),
				zap.String("event_type", string(event.Type)),
			)
			return domain.ErrEventAlreadyProcessed
		}
		// A pending or failed row means an earlier delivery never
		// finished; re-run the handler against the existing row.
		record = stored
		if record.UserID == nil {
			record.UserID = userID
		}
	}

	handled, err := s.dispatch(ctx, event, record.UserID)
	if err != nil {
		s.metrics.ObserveEvent(string(event.Type), string(domain.StatusFailed))
		s.log.Error("event handler failed",
			zap.String("external_event_id", externalID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		if markErr := s.repo.MarkFailed(ctx, s.db, record.ID, s.now(), err.Error()); markErr != nil {
			s.log.Error("failed to mark event failed", zap.Error(markErr))
		}
		return err
	}
	if !handled {
		// Unknown types are kept pending for audit; this is not a failure.
		s.log.Info("unhandled event type recorded",
			zap.String("external_event_id", externalID),
			zap.String("event_type", string(event.Type)),
		)
		return nil
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.now()); err != nil {
		return err
	}
	s.metrics.ObserveEvent(string(event.Type), string(domain.StatusProcessed))
	return nil
}

// resolveUser identifies the local user an event belongs to: explicit
// metadata first, then the customer join key, else unknown.
func (s *Service) resolveUser(ctx context.Context, event *domain.Event) (*snowflake.ID, *string) {
	var customerID *string
	if raw := strings.TrimSpace(event.CustomerID()); raw != "" {
		customerID = &raw
	}

	if raw := event.MetadataUserID(); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && parsed != 0 {
			id := snowflake.ID(parsed)
			return &id, customerID
		}
		s.log.Warn("event metadata carries malformed user id", zap.String("user_id", raw))
	}

	if customerID != nil {
		user, err := s.userRepo.FindByExternalCustomerID(ctx, s.db, *customerID)
		if err != nil {
			s.log.Warn("user lookup by customer failed", zap.Error(err))
			return nil, customerID
		}
		if user != nil {
			id := user.ID
			return &id, customerID
		}
	}

	return nil, customerID
}

func (s *Service) SyncUserSubscription(ctx context.Context, userID snowflake.ID) (subscriptiondomain.Tier, error) {
	if userID == 0 {
		return subscriptiondomain.TierFree, domain.ErrUnknownUser
	}
	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return subscriptiondomain.TierFree, err
	}
	if user == nil {
		return subscriptiondomain.TierFree, domain.ErrUserNotFound
	}

	tier := subscriptiondomain.TierFree
	if user.ExternalCustomerID != nil && strings.TrimSpace(*user.ExternalCustomerID) != "" {
		subscriptions, err := s.provider.ListSubscriptions(ctx, *user.ExternalCustomerID)
		if err != nil {
			return subscriptiondomain.TierFree, err
		}
		for i := range subscriptions {
			sub := &subscriptions[i]
			if sub.Status == domain.SubscriptionStatusActive && sub.HasProduct(s.premiumProduct) {
				tier = subscriptiondomain.TierPremium
				break
			}
		}
	}

	if err := s.subSvc.SetTier(ctx, userID, tier, auditdomain.ActorSync); err != nil {
		return subscriptiondomain.TierFree, err
	}

	s.log.Info("subscription synced from provider",
		zap.String("user_id", userID.String()),
		zap.String("tier", string(tier)),
	)
	return tier, nil
}

func (s *Service) CreateCheckoutSession(ctx context.Context, userID snowflake.ID) (string, error) {
	if s.premiumPrice == "" {
		return "", domain.ErrPremiumNotConfigured
	}
	customerID, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	return s.provider.CreateCheckoutSession(ctx, domain.CheckoutParams{
		CustomerID: customerID,
		PriceID:    s.premiumPrice,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
		UserID:     userID.String(),
	})
}

func (s *Service) CreatePortalSession(ctx context.Context, userID snowflake.ID) (string, error) {
	customerID, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.provider.CreatePortalSession(ctx, customerID, s.returnURL)
}

// ensureCustomer returns the user's provider customer id, creating the
// provider customer on first use.
func (s *Service) ensureCustomer(ctx context.Context, userID snowflake.ID) (string, error) {
	if userID == 0 {
		return "", domain.ErrUnknownUser
	}
	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", domain.ErrUserNotFound
	}
	if user.ExternalCustomerID != nil && strings.TrimSpace(*user.ExternalCustomerID) != "" {
		return *user.ExternalCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, user.Email, userID.String())
	if err != nil {
		return "", err
	}
	if err := s.userRepo.UpdateExternalCustomerID(ctx, s.db, userID, customerID); err != nil {
		return "", err
	}
	if err := s.recordCustomerLinked(ctx, userID, customerID, userID.String()); err != nil {
		s.log.Warn("failed to record customer link", zap.Error(err))
	}
	return customerID, nil
}

func (s *Service) recordCustomerLinked(ctx context.Context, userID snowflake.ID, customerID, actor string) error {
	entityID := customerID
	return s.auditSvc.Record(ctx, auditdomain.Entry{
		EventType:  auditdomain.EventCustomerLinked,
		UserID:     &userID,
		ActorID:    actor,
		EntityType: "customer",
		EntityID:   &entityID,
		Properties: map[string]any{
			"externalCustomerId": customerID,
		},
		Description: "payment provider customer attached to user",
	})
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}
