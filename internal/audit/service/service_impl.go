package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fourpaws/billing/internal/audit/domain"
	"github.com/fourpaws/billing/internal/clock"
	obscontext "github.com/fourpaws/billing/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry domain.Entry) error {
	eventType := strings.TrimSpace(entry.EventType)
	if eventType == "" {
		return domain.ErrMissingEventType
	}
	entityType := strings.TrimSpace(entry.EntityType)
	if entityType == "" {
		return domain.ErrMissingEntityType
	}

	actor := strings.TrimSpace(entry.ActorID)
	if actor == "" {
		actor = obscontext.ActorFromContext(ctx)
	}

	properties := datatypes.JSONMap{}
	for key, value := range entry.Properties {
		if strings.TrimSpace(key) == "" {
			continue
		}
		properties[key] = value
	}

	event := &domain.SystemEvent{
		ID:          s.genID.Generate(),
		EventType:   eventType,
		UserID:      entry.UserID,
		ActorID:     actor,
		EntityType:  entityType,
		EntityID:    entry.EntityID,
		Properties:  properties,
		Description: strings.TrimSpace(entry.Description),
		CreatedAt:   s.now(),
	}

	return s.repo.Insert(ctx, s.db, event)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]*domain.SystemEvent, error) {
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}
