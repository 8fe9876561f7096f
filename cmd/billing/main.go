// @title           4Paws Billing API
// @version         1.0
// @description     Stripe webhook reconciliation and subscription tiers

// @host      localhost:8080
// @BasePath  /api
// @Schemes 	http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fourpaws/billing/internal/clock"
	"github.com/fourpaws/billing/internal/config"
	"github.com/fourpaws/billing/internal/billing/monitor"
	"github.com/fourpaws/billing/internal/migration"
	"github.com/fourpaws/billing/internal/observability"
	"github.com/fourpaws/billing/internal/seed"
	"github.com/fourpaws/billing/internal/server"
	"github.com/fourpaws/billing/pkg/db"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if cfg.SeedDemoUser && !cfg.IsProduction() {
				return seed.EnsureDemoUser(conn, node, cfg.SeedUserEmail)
			}
			return nil
		}),
		fx.Invoke(func(*trace.TracerProvider) {}),

		server.Module,
		monitor.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
