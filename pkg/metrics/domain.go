package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics counts order and group-order outcomes. A nil receiver or one
// built without a registerer is a no-op.
type DomainMetrics struct {
	ordersCreated      *prometheus.CounterVec
	orderTransitions   *prometheus.CounterVec
	groupTransitions   *prometheus.CounterVec
	settlementFailures prometheus.Counter
	stockRejections    *prometheus.CounterVec
}

// NewDomainMetrics registers the domain counters on reg.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mandi_orders_created_total",
			Help: "Orders created, by source (cart or settlement).",
		}, []string{"source"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mandi_order_status_transitions_total",
			Help: "Accepted order status transitions.",
		}, []string{"from", "to"}),
		groupTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mandi_group_order_transitions_total",
			Help: "Group orders leaving the active state, by new status.",
		}, []string{"status"}),
		settlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mandi_group_order_settlement_failures_total",
			Help: "Completed group orders whose settlement failed.",
		}),
		stockRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mandi_stock_rejections_total",
			Help: "Requests rejected for insufficient or negative stock.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.ordersCreated, m.orderTransitions, m.groupTransitions, m.settlementFailures, m.stockRejections)
	return m
}

func (m *DomainMetrics) OrderCreated(source string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *DomainMetrics) OrderTransition(from, to string) {
	if m == nil || m.orderTransitions == nil {
		return
	}
	m.orderTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *DomainMetrics) GroupOrderTransition(status string) {
	if m == nil || m.groupTransitions == nil {
		return
	}
	m.groupTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *DomainMetrics) SettlementFailed() {
	if m == nil || m.settlementFailures == nil {
		return
	}
	m.settlementFailures.Inc()
}

func (m *DomainMetrics) StockRejected(reason string) {
	if m == nil || m.stockRejections == nil {
		return
	}
	m.stockRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}
