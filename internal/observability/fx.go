package observability

import (
	"github.com/fourpaws/billing/internal/config"
	"github.com/fourpaws/billing/internal/observability/logger"
	"github.com/fourpaws/billing/internal/observability/metrics"
	"github.com/fourpaws/billing/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(logger.New),
	fx.Provide(func(cfg config.Config) tracing.Config {
		return tracing.Config{
			Enabled:          cfg.TracingEnabled,
			ServiceName:      cfg.ServiceName,
			ServiceVersion:   cfg.ServiceVersion,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.ExporterEndpoint,
			ExporterProtocol: cfg.ExporterProtocol,
			SamplingRatio:    cfg.SamplingRatio,
		}
	}),
	fx.Provide(tracing.NewProvider),
	fx.Provide(func(cfg config.Config) metrics.Config {
		return metrics.Config{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
		}
	}),
	fx.Provide(func(cfg metrics.Config) (*metrics.HTTPMetrics, error) {
		return metrics.NewHTTPMetrics(cfg, otel.GetMeterProvider())
	}),
	fx.Provide(metrics.BillingWithConfig),
)
