package obs

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/backend-pdv/internal/events"
)

var (
	domainOnce sync.Once

	// SalesRecordedTotal counts sales committed by payment mode.
	SalesRecordedTotal *prometheus.CounterVec
	// SaleAmount records sale totals in the branch currency.
	SaleAmount prometheus.Histogram
	// CheckoutFailuresTotal counts rejected checkouts by error code.
	CheckoutFailuresTotal *prometheus.CounterVec
	// CreditAdjustmentsTotal counts second-phase credit outcomes by state.
	CreditAdjustmentsTotal *prometheus.CounterVec
	// SalesReversedTotal counts reversed sales.
	SalesReversedTotal prometheus.Counter
	// OutboxPublishedTotal counts events relayed to the broker by topic.
	OutboxPublishedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises the sale and credit collectors once per process.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SalesRecordedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_recorded_total",
			Help:      "Count of recorded sales by payment mode.",
		}, []string{"mode"}))
		SaleAmount = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_amount",
			Help:      "Distribution of sale totals.",
			Buckets:   []float64{10, 25, 50, 100, 200, 500, 1000, 2500, 5000},
		}))
		CheckoutFailuresTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_failures_total",
			Help:      "Count of rejected checkouts by error code.",
		}, []string{"code"}))
		CreditAdjustmentsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_adjustments_total",
			Help:      "Count of store credit adjustment outcomes.",
		}, []string{"state"}))
		SalesReversedTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_reversed_total",
			Help:      "Number of reversed sales.",
		}))
		OutboxPublishedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Count of outbox events delivered to the broker.",
		}, []string{"topic"}))
	})
}

// OutboxNotifier counts relayed events. It satisfies events.Notifier.
type OutboxNotifier struct{}

// Notify increments the per-topic counter.
func (OutboxNotifier) Notify(_ context.Context, ev events.Event) error {
	if OutboxPublishedTotal != nil {
		OutboxPublishedTotal.WithLabelValues(ev.Topic).Inc()
	}
	return nil
}
