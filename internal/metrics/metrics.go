// Package metrics exposes Prometheus metrics for upstream calls and identity persistence.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream call outcomes
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

// Recorder is the metrics surface used by the provider client and the subscription service
type Recorder interface {
	RecordUpstream(provider, operation, outcome string, latency time.Duration)
	RecordWhitelistBypass(operation string)
	RecordIdentitySaveAttempt()
	RecordIdentitySaveExhausted()
}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	upstreamRequests      *prometheus.CounterVec
	upstreamLatency       *prometheus.HistogramVec
	whitelistBypass       *prometheus.CounterVec
	identitySaveAttempts  prometheus.Counter
	identitySaveExhausted prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subgate_upstream_requests_total",
			Help: "Upstream provider calls by provider, operation and outcome",
		}, []string{"provider", "operation", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subgate_upstream_latency_seconds",
			Help:    "Upstream provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		whitelistBypass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subgate_whitelist_bypass_total",
			Help: "Operations answered with canned responses for whitelisted subscribers",
		}, []string{"operation"}),
		identitySaveAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subgate_identity_save_attempts_total",
			Help: "Attempts to persist a verified subscriber identity",
		}),
		identitySaveExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subgate_identity_save_exhausted_total",
			Help: "Verified subscribers whose identity could not be persisted",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.whitelistBypass,
		c.identitySaveAttempts,
		c.identitySaveExhausted,
	)
	return c
}

// RecordUpstream counts one provider call and observes its latency
func (c *Collector) RecordUpstream(provider, operation, outcome string, latency time.Duration) {
	c.upstreamRequests.WithLabelValues(provider, operation, outcome).Inc()
	c.upstreamLatency.WithLabelValues(provider, operation).Observe(latency.Seconds())
}

func (c *Collector) RecordWhitelistBypass(operation string) {
	c.whitelistBypass.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordIdentitySaveAttempt() {
	c.identitySaveAttempts.Inc()
}

func (c *Collector) RecordIdentitySaveExhausted() {
	c.identitySaveExhausted.Inc()
}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards all observations
type Nop struct{}

func (Nop) RecordUpstream(string, string, string, time.Duration) {}
func (Nop) RecordWhitelistBypass(string)                          {}
func (Nop) RecordIdentitySaveAttempt()                            {}
func (Nop) RecordIdentitySaveExhausted()                          {}
