package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "comanda"

// DomainMetrics counts business events of the order core. A nil receiver or a
// metrics value built without a registerer is a no-op.
type DomainMetrics struct {
	transitions     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	stockMovements  *prometheus.CounterVec
	lowStock        *prometheus.CounterVec
	loyaltyPoints   *prometheus.CounterVec
	couponUsages    prometheus.Counter
	decodeFallbacks *prometheus.CounterVec
	quotaRejections *prometheus.CounterVec
	outboxPending   prometheus.Gauge
	outboxPurged    prometheus.Counter
	outboxPublish   *prometheus.CounterVec
	outboxDead      prometheus.Gauge
}

// NewDomainMetrics registers the domain collectors on reg.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Committed order status transitions.",
		}, []string{"from", "to"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "rejections_total",
			Help:      "Order operations rejected by a business rule.",
		}, []string{"operation", "code"}),
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "movements_total",
			Help:      "Stock ledger rows written.",
		}, []string{"subject", "type"}),
		lowStock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "low_stock_alerts_total",
			Help:      "Low-stock notifications queued.",
		}, []string{"subject"}),
		loyaltyPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loyalty",
			Name:      "points_total",
			Help:      "Loyalty points moved, by entry type.",
		}, []string{"type"}),
		couponUsages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coupons",
			Name:      "usages_total",
			Help:      "Coupon usages recorded.",
		}),
		decodeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "decode_fallbacks_total",
			Help:      "Encrypted fields returned raw because decryption failed.",
		}, []string{"field"}),
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "rejections_total",
			Help:      "Creations blocked by the tenant quota guard.",
		}, []string{"resource"}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pending_events",
			Help:      "Outbox rows waiting to be published.",
		}),
		outboxPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "purged_events_total",
			Help:      "Published outbox rows removed by retention.",
		}),
		outboxPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_total",
			Help:      "Outbox dispatch attempts by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		outboxDead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dead_letters",
			Help:      "Rows in the outbox dead-letter table.",
		}),
	}
	reg.MustRegister(
		m.transitions,
		m.rejections,
		m.stockMovements,
		m.lowStock,
		m.loyaltyPoints,
		m.couponUsages,
		m.decodeFallbacks,
		m.quotaRejections,
		m.outboxPending,
		m.outboxPurged,
		m.outboxPublish,
		m.outboxDead,
	)
	return m
}

func (m *DomainMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *DomainMetrics) IncRejection(operation, code string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

func (m *DomainMetrics) AddStockMovements(subject, movementType string, count int) {
	if m == nil || m.stockMovements == nil || count <= 0 {
		return
	}
	m.stockMovements.WithLabelValues(normalizeLabel(subject), normalizeLabel(movementType)).Add(float64(count))
}

func (m *DomainMetrics) IncLowStock(subject string) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.WithLabelValues(normalizeLabel(subject)).Inc()
}

func (m *DomainMetrics) AddLoyaltyPoints(entryType string, points int) {
	if m == nil || m.loyaltyPoints == nil || points <= 0 {
		return
	}
	m.loyaltyPoints.WithLabelValues(normalizeLabel(entryType)).Add(float64(points))
}

func (m *DomainMetrics) IncCouponUsage() {
	if m == nil || m.couponUsages == nil {
		return
	}
	m.couponUsages.Inc()
}

func (m *DomainMetrics) IncDecodeFallback(field string) {
	if m == nil || m.decodeFallbacks == nil {
		return
	}
	m.decodeFallbacks.WithLabelValues(normalizeLabel(field)).Inc()
}

func (m *DomainMetrics) IncQuotaRejection(resource string) {
	if m == nil || m.quotaRejections == nil {
		return
	}
	m.quotaRejections.WithLabelValues(normalizeLabel(resource)).Inc()
}

func (m *DomainMetrics) SetOutboxPending(count int64) {
	if m == nil || m.outboxPending == nil {
		return
	}
	m.outboxPending.Set(float64(count))
}

func (m *DomainMetrics) AddOutboxPurged(count int64) {
	if m == nil || m.outboxPurged == nil || count <= 0 {
		return
	}
	m.outboxPurged.Add(float64(count))
}

// ObserveOutboxPublish counts one dispatch result for eventType.
func (m *DomainMetrics) ObserveOutboxPublish(eventType, outcome string) {
	if m == nil || m.outboxPublish == nil {
		return
	}
	m.outboxPublish.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) SetOutboxDeadLetters(count int64) {
	if m == nil || m.outboxDead == nil {
		return
	}
	m.outboxDead.Set(float64(count))
}
