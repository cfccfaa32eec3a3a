// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "freshair"

// Metrics holds every collector the bridge exports.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	connects        *prometheus.CounterVec

	refreshes *prometheus.CounterVec
	cache     *prometheus.CounterVec
	patches   prometheus.Counter

	gauges *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
// Registration errors are returned so tests can use a fresh registry each time.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modbus",
			Name:      "requests_total",
			Help:      "Modbus requests by operation and result.",
		}, []string{"op", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "modbus",
			Name:      "request_duration_seconds",
			Help:      "Modbus request round-trip time.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modbus",
			Name:      "connect_attempts_total",
			Help:      "TCP connect attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refreshes_total",
			Help:      "Full register span reads by result.",
		}, []string{"result"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by outcome (hit, miss).",
		}, []string{"outcome"}),
		patches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "patches_total",
			Help:      "Single-slot cache patches after confirmed writes.",
		}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "value",
			Help:      "Last decoded device value by property.",
		}, []string{"device", "property"}),
	}

	for _, c := range []prometheus.Collector{
		m.requests, m.requestDuration, m.connects,
		m.refreshes, m.cache, m.patches, m.gauges,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ---- transport ----

func (m *Metrics) ObserveRequest(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.requests.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) ConnectAttempt(outcome string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(outcome).Inc()
}

// ---- cache ----

func (m *Metrics) Refresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cache.WithLabelValues("hit").Inc()
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}

func (m *Metrics) Patch() {
	if m == nil {
		return
	}
	m.patches.Inc()
}

// ---- device values ----

// SetValue records a decoded property value.
func (m *Metrics) SetValue(device, property string, v float64) {
	if m == nil {
		return
	}
	m.gauges.WithLabelValues(device, property).Set(v)
}

// ClearValues drops every gauge of a device so unknown values are not exported as stale numbers.
func (m *Metrics) ClearValues(device string) {
	if m == nil {
		return
	}
	m.gauges.DeletePartialMatch(prometheus.Labels{"device": device})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
