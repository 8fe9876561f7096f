package billing

import (
	"github.com/fourpaws/billing/internal/billing/domain"
	"github.com/fourpaws/billing/internal/billing/repository"
	"github.com/fourpaws/billing/internal/billing/service"
	"github.com/fourpaws/billing/internal/billing/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.NewClient),
	fx.Provide(func(c *stripe.Client) domain.ProviderClient { return c }),
	fx.Provide(service.NewService),
)
