package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/fourpaws/billing/internal/billing/domain"
	"github.com/fourpaws/billing/internal/clock"
	"github.com/fourpaws/billing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.BillingMetrics `optional:"true"`
	Config  Config                  `optional:"true"`
}

// Worker periodically surveys the stored webhook events and exports the
// pending and failed backlog. Unknown event types legitimately stay
// pending, so the backlog gauge is the operator's view of how much of
// the stream the engine is not reconciling.
type Worker struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.BillingMetrics
	cfg     Config
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:      p.DB,
		log:     p.Log.Named("billing.monitor"),
		clock:   p.Clock,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("backlog survey failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) error {
	if w.db == nil {
		return errors.New("monitor_unavailable")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	counts, err := w.countByStatus(ctx)
	if err != nil {
		return err
	}
	for _, status := range []domain.EventStatus{domain.StatusPending, domain.StatusFailed} {
		w.metrics.SetEventBacklog(string(status), counts[status])
	}

	stale, err := w.countStalePending(ctx)
	if err != nil {
		return err
	}
	if stale > 0 {
		w.log.Warn("pending events exceed staleness threshold",
			zap.Int64("count", stale),
			zap.Duration("stale_after", w.cfg.StaleAfter),
		)
	}
	return nil
}

func (w *Worker) countByStatus(ctx context.Context) (map[domain.EventStatus]int64, error) {
	var rows []struct {
		Status domain.EventStatus `gorm:"column:status"`
		Count  int64              `gorm:"column:count"`
	}
	err := w.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count
		 FROM billing_events
		 WHERE status <> ?
		 GROUP BY status`,
		domain.StatusProcessed,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.EventStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (w *Worker) countStalePending(ctx context.Context) (int64, error) {
	cutoff := w.clock.Now().Add(-w.cfg.StaleAfter)

	var count int64
	err := w.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM billing_events WHERE status = ? AND created_at < ?`,
		domain.StatusPending,
		cutoff,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
