package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fourpaws/billing/internal/audit/domain"
	"github.com/fourpaws/billing/internal/clock"
	"github.com/fourpaws/billing/internal/observability/metrics"
	"github.com/fourpaws/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	Metrics  *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
	metrics  *metrics.BillingMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) GetTier(ctx context.Context, userID snowflake.ID) (domain.Tier, error) {
	if userID == 0 {
		return domain.TierFree, domain.ErrInvalidUser
	}
	subscription, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.TierFree, err
	}
	if subscription == nil {
		return domain.TierFree, nil
	}
	return subscription.Tier, nil
}

func (s *Service) SetTier(ctx context.Context, userID snowflake.ID, tier domain.Tier, actor string) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if !tier.Valid() {
		return domain.ErrInvalidTier
	}
	if actor == "" {
		actor = userID.String()
	}

	existing, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return err
	}

	if tier == domain.TierFree {
		return s.downgrade(ctx, userID, existing, actor)
	}
	return s.upgrade(ctx, userID, tier, existing, actor)
}

// downgrade removes the stored row; a user with no row is already free
// and nothing is logged.
func (s *Service) downgrade(ctx context.Context, userID snowflake.ID, existing *domain.Subscription, actor string) error {
	if existing == nil {
		return nil
	}
	if err := s.repo.DeleteByUserID(ctx, s.db, userID); err != nil {
		return err
	}

	s.log.Info("subscription cancelled",
		zap.String("user_id", userID.String()),
		zap.String("actor", actor),
		zap.String("previous_tier", string(existing.Tier)),
	)
	s.metrics.ObserveTierChange(string(domain.TierFree), actor)

	entityID := existing.ID.String()
	return s.auditSvc.Record(ctx, auditdomain.Entry{
		EventType:  auditdomain.EventSubscriptionCancelled,
		UserID:     &userID,
		ActorID:    actor,
		EntityType: "subscription",
		EntityID:   &entityID,
		Properties: map[string]any{
			"previousTier": string(existing.Tier),
			"newTier":      string(domain.TierFree),
		},
		Description: "subscription cancelled, user moved to free tier",
	})
}

func (s *Service) upgrade(ctx context.Context, userID snowflake.ID, tier domain.Tier, existing *domain.Subscription, actor string) error {
	now := s.now()

	if existing == nil {
		subscription := &domain.Subscription{
			ID:        s.genID.Generate(),
			UserID:    userID,
			Tier:      tier,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, s.db, subscription); err != nil {
			return err
		}

		s.log.Info("subscription created",
			zap.String("user_id", userID.String()),
			zap.String("actor", actor),
			zap.String("tier", string(tier)),
		)
		s.metrics.ObserveTierChange(string(tier), actor)

		entityID := subscription.ID.String()
		return s.auditSvc.Record(ctx, auditdomain.Entry{
			EventType:  auditdomain.EventSubscriptionCreated,
			UserID:     &userID,
			ActorID:    actor,
			EntityType: "subscription",
			EntityID:   &entityID,
			Properties: map[string]any{
				"tier": string(tier),
			},
			Description: "subscription created",
		})
	}

	if existing.Tier == tier {
		return nil
	}

	previous := existing.Tier
	existing.Tier = tier
	existing.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, existing); err != nil {
		return err
	}

	s.log.Info("subscription updated",
		zap.String("user_id", userID.String()),
		zap.String("actor", actor),
		zap.String("previous_tier", string(previous)),
		zap.String("tier", string(tier)),
	)
	s.metrics.ObserveTierChange(string(tier), actor)

	entityID := existing.ID.String()
	return s.auditSvc.Record(ctx, auditdomain.Entry{
		EventType:  auditdomain.EventSubscriptionUpdated,
		UserID:     &userID,
		ActorID:    actor,
		EntityType: "subscription",
		EntityID:   &entityID,
		Properties: map[string]any{
			"previousTier": string(previous),
			"newTier":      string(tier),
		},
		Description: "subscription tier changed",
	})
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}
