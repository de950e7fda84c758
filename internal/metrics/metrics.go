// Package metrics collects Prometheus metrics for the federation engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by Collector. Components accept a Recorder so
// tests can pass Discard.
type Recorder interface {
	// RecordDelivery counts one delivery attempt to a recipient.
	// result is one of "ok", "failed", "skipped", "queued" or "local".
	RecordDelivery(protocol, result string)
	// RecordClaimLost counts delivery tasks claimed by another worker.
	RecordClaimLost()
	// RecordResolve counts one resolution and whether it was served from cache.
	RecordResolve(protocol string, cached bool)
	// RecordReconciled counts items written by the conversation reconciler.
	RecordReconciled(count int)
}

type Collector struct {
	deliveries *prometheus.CounterVec
	claimLost  prometheus.Counter
	resolves   *prometheus.CounterVec
	reconciled prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedinode_deliveries_total",
			Help: "Delivery attempts by protocol and result.",
		}, []string{"protocol", "result"}),
		claimLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedinode_delivery_claims_lost_total",
			Help: "Delivery tasks already claimed by another worker.",
		}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedinode_resolves_total",
			Help: "Identity resolutions by protocol and cache outcome.",
		}, []string{"protocol", "cached"}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedinode_reconciled_items_total",
			Help: "Items stored by the conversation reconciler.",
		}),
	}
	reg.MustRegister(c.deliveries, c.claimLost, c.resolves, c.reconciled)
	return c
}

func (c *Collector) RecordDelivery(protocol, result string) {
	c.deliveries.WithLabelValues(protocol, result).Inc()
}

func (c *Collector) RecordClaimLost() {
	c.claimLost.Inc()
}

func (c *Collector) RecordResolve(protocol string, cached bool) {
	label := "miss"
	if cached {
		label = "hit"
	}
	c.resolves.WithLabelValues(protocol, label).Inc()
}

func (c *Collector) RecordReconciled(count int) {
	c.reconciled.Add(float64(count))
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type discard struct{}

func (discard) RecordDelivery(string, string) {}
func (discard) RecordClaimLost()              {}
func (discard) RecordResolve(string, bool)    {}
func (discard) RecordReconciled(int)          {}

// Discard is a Recorder which records nothing.
var Discard Recorder = discard{}
