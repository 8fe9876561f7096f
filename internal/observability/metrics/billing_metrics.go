package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics counts webhook reconciliation outcomes and tier changes.
type BillingMetrics struct {
	eventsTotal      *prometheus.CounterVec
	tierChangesTotal *prometheus.CounterVec
	eventBacklog     *prometheus.GaugeVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the process-wide billing metrics set.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig registers billing metrics on the default registerer.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest clears the singleton between test runs.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fourpaws-billing"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "billing_webhook_events_total",
			Help:        "Webhook events by type and terminal status.",
			ConstLabels: constLabels,
		},
		[]string{"event_type", "status"},
	)
	tierChangesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "billing_tier_changes_total",
			Help:        "Subscription tier transitions by target tier and actor.",
			ConstLabels: constLabels,
		},
		[]string{"tier", "actor"},
	)

	eventBacklog := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "billing_event_backlog",
			Help:        "Stored webhook events that are not processed, by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	registerer.MustRegister(eventsTotal, tierChangesTotal, eventBacklog)

	return &BillingMetrics{
		eventsTotal:      eventsTotal,
		tierChangesTotal: tierChangesTotal,
		eventBacklog:     eventBacklog,
	}
}

// ObserveEvent records a processed or failed webhook event.
func (m *BillingMetrics) ObserveEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType, status).Inc()
}

// SetEventBacklog records the current count of events in a given status.
func (m *BillingMetrics) SetEventBacklog(status string, count int64) {
	if m == nil {
		return
	}
	m.eventBacklog.WithLabelValues(status).Set(float64(count))
}

// ObserveTierChange records a tier transition.
func (m *BillingMetrics) ObserveTierChange(tier, actor string) {
	if m == nil {
		return
	}
	m.tierChangesTotal.WithLabelValues(tier, actor).Inc()
}
