package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fourpaws/billing/internal/audit"
	auditdomain "github.com/fourpaws/billing/internal/audit/domain"
	"github.com/fourpaws/billing/internal/billing"
	billingdomain "github.com/fourpaws/billing/internal/billing/domain"
	"github.com/fourpaws/billing/internal/billing/stripe"
	"github.com/fourpaws/billing/internal/cache"
	"github.com/fourpaws/billing/internal/config"
	"github.com/fourpaws/billing/internal/observability/logger"
	"github.com/fourpaws/billing/internal/observability/metrics"
	"github.com/fourpaws/billing/internal/subscription"
	subscriptiondomain "github.com/fourpaws/billing/internal/subscription/domain"
	"github.com/fourpaws/billing/internal/user"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// processedEventTTL bounds the in-memory fast path for duplicate
	// webhook deliveries; the database uniqueness check remains the
	// source of truth.
	processedEventTTL = 15 * time.Minute

	syncRateLimit  = 5
	syncRateWindow = time.Minute
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	BillingSvc billingdomain.Service
	SubSvc     subscriptiondomain.Service
	AuditSvc   auditdomain.Service
	Stripe     *stripe.Client
}

// Server holds the HTTP handler dependencies.
type Server struct {
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	billingSvc billingdomain.Service
	subSvc     subscriptiondomain.Service
	auditSvc   auditdomain.Service
	stripe     *stripe.Client

	processedEvents cache.Cache[string, struct{}]
	syncLimiter     *rateLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		db:         p.DB,
		billingSvc: p.BillingSvc,
		subSvc:     p.SubSvc,
		auditSvc:   p.AuditSvc,
		stripe:     p.Stripe,

		processedEvents: cache.NewTTLCache[string, struct{}](),
		syncLimiter:     newRateLimiter(syncRateLimit, syncRateWindow),
	}
}

// NewEngine builds the gin engine with the shared middleware chain.
func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		Logger:    log,
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	engine.Use(metrics.GinMiddleware(httpMetrics))
	return engine
}

// RegisterRoutes attaches every handler to the engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.POST("/webhooks/stripe", s.HandleStripeWebhook)

	billingGroup := api.Group("/billing")
	billingGroup.POST("/checkout", s.CreateCheckoutSession)
	billingGroup.POST("/portal", s.CreatePortalSession)
	billingGroup.GET("/subscription", s.GetSubscriptionTier)
	billingGroup.GET("/events", s.AdminRequired(), s.ListSystemEvents)
	billingGroup.POST("/sync", s.AdminRequired(), s.SyncSubscription)
}

// RunHTTP starts the HTTP listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	user.Module,
	subscription.Module,
	audit.Module,
	billing.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server, engine *gin.Engine) {
		s.RegisterRoutes(engine)
	}),
	fx.Invoke(RunHTTP),
)
