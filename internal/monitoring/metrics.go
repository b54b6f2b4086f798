// Package monitoring exposes the ambient Prometheus counters/gauges for
// the field-I/O pipeline: GPIO reconnects and heartbeat age, bottle
// counter increments, and auto-pause opens/closes. Grounded on the
// teacher's internal/monitoring/metrics.go collector shape
// (promauto-registered CounterVec/GaugeVec fields behind a thin
// Record* API), scoped down to this domain.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus instruments the control core updates.
type Collector struct {
	gpioReconnects     prometheus.Counter
	gpioHeartbeatAge   prometheus.Gauge
	bottleIncrements   *prometheus.CounterVec
	autoPauseOpens     *prometheus.CounterVec
	autoPauseCloses    *prometheus.CounterVec
}

// New registers and returns a Collector. Safe to call once per process;
// fx's singleton scope guarantees that for the wired instance.
func New() *Collector {
	return &Collector{
		gpioReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cremer_gpio_reconnects_total",
			Help: "Total number of GPIO link reconnect attempts (dead heartbeat or socket close).",
		}),
		gpioHeartbeatAge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cremer_gpio_heartbeat_age_seconds",
			Help: "Seconds since the GPIO link last received any message.",
		}),
		bottleIncrements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cremer_bottle_counter_increments_total",
			Help: "Total number of falling-edge bottle counter increments, by order id.",
		}, []string{"id_order"}),
		autoPauseOpens: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cremer_autopause_opens_total",
			Help: "Total number of automatic pauses opened, by signal.",
		}, []string{"signal"}),
		autoPauseCloses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cremer_autopause_closes_total",
			Help: "Total number of automatic pauses closed, by signal.",
		}, []string{"signal"}),
	}
}

// RecordGPIOReconnect increments the reconnect counter.
func (c *Collector) RecordGPIOReconnect() {
	c.gpioReconnects.Inc()
}

// SetGPIOHeartbeatAge records the time elapsed since the last GPIO message.
func (c *Collector) SetGPIOHeartbeatAge(age time.Duration) {
	c.gpioHeartbeatAge.Set(age.Seconds())
}

// RecordBottleCounterIncrement increments the per-order counter.
func (c *Collector) RecordBottleCounterIncrement(idOrder string) {
	c.bottleIncrements.WithLabelValues(idOrder).Inc()
}

// RecordAutoPauseOpen increments the open counter for signal.
func (c *Collector) RecordAutoPauseOpen(signal string) {
	c.autoPauseOpens.WithLabelValues(signal).Inc()
}

// RecordAutoPauseClose increments the close counter for signal.
func (c *Collector) RecordAutoPauseClose(signal string) {
	c.autoPauseCloses.WithLabelValues(signal).Inc()
}
