// Package metrics exposes Prometheus counters for redemptions, grants,
// library syncs and calls to the external media server API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "welcomarr"

// Collector is safe for concurrent use.
type Collector struct {
	redemptions      *prometheus.CounterVec
	grants           *prometheus.CounterVec
	syncs            *prometheus.CounterVec
	syncedLibraries  prometheus.Gauge
	externalRequests *prometheus.CounterVec
	externalLatency  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewCollector registers all metrics on reg. Passing nil uses a fresh
// registry, which is what tests want.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Redemption attempts by outcome.",
		}, []string{"outcome"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grants_total",
			Help:      "Library share requests by grant status.",
		}, []string{"status"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "library_syncs_total",
			Help:      "Library catalog syncs by result.",
		}, []string{"result"}),
		syncedLibraries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "libraries",
			Help:      "Libraries in the cached catalog after the last successful sync.",
		}),
		externalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_requests_total",
			Help:      "Requests to the media server API by operation and result.",
		}, []string{"op", "result"}),
		externalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_request_duration_seconds",
			Help:      "Latency of requests to the media server API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.redemptions,
		c.grants,
		c.syncs,
		c.syncedLibraries,
		c.externalRequests,
		c.externalLatency,
	)

	return c
}

func (c *Collector) RecordRedemption(outcome string) {
	c.redemptions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordGrant(status string) {
	c.grants.WithLabelValues(status).Inc()
}

func (c *Collector) RecordSync(success bool, libraries int) {
	if !success {
		c.syncs.WithLabelValues("failure").Inc()
		return
	}
	c.syncs.WithLabelValues("success").Inc()
	c.syncedLibraries.Set(float64(libraries))
}

// ObserveExternalRequest implements plex.Observer.
func (c *Collector) ObserveExternalRequest(op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.externalRequests.WithLabelValues(op, result).Inc()
	c.externalLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
