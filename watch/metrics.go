package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics are the run's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	active        prometheus.Gauge
	cycles        *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	outcomes      *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "price_watch_monitors_active",
			Help: "Monitors that have started and not yet finished.",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_watch_poll_cycles_total",
			Help: "Refresh cycles per item.",
		}, []string{"item"}),
		lastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "price_watch_last_price",
			Help: "Most recent price read per item.",
		}, []string{"item"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_watch_monitor_outcomes_total",
			Help: "Monitors by terminal state.",
		}, []string{"state"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_watch_notifications_total",
			Help: "Alerts by result (sent, failed, skipped).",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.active, m.cycles, m.lastPrice, m.outcomes, m.notifications)
	}
	return m
}

func (m *Metrics) started() {
	if m != nil {
		m.active.Inc()
	}
}

func (m *Metrics) finished(s State) {
	if m != nil {
		m.active.Dec()
		m.outcomes.WithLabelValues(s.String()).Inc()
	}
}

func (m *Metrics) cycle(item string) {
	if m != nil {
		m.cycles.WithLabelValues(item).Inc()
	}
}

func (m *Metrics) price(item string, d decimal.Decimal) {
	if m != nil {
		f, _ := d.Float64()
		m.lastPrice.WithLabelValues(item).Set(f)
	}
}

func (m *Metrics) notification(result string) {
	if m != nil {
		m.notifications.WithLabelValues(result).Inc()
	}
}
