package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arb"

// Collector holds the pipeline's Prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry             *prometheus.Registry
	detections           *prometheus.CounterVec
	routeEvaluations     *prometheus.CounterVec
	cacheLookups         *prometheus.CounterVec
	optimizations        *prometheus.CounterVec
	optimizationDuration prometheus.Histogram
	quoteFailures        *prometheus.CounterVec
	feeFallbacks         prometheus.Counter
}

// NewCollector registers the instruments on reg. A nil reg gets a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: reg,
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Opportunities detected, by profitability.",
		}, []string{"profitable"}),
		routeEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_evaluations_total",
			Help:      "Routes evaluated, by validity.",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_cache_lookups_total",
			Help:      "Route cache lookups, by outcome.",
		}, []string{"outcome"}),
		optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizations_total",
			Help:      "Optimization attempts, by terminal state.",
		}, []string{"state"}),
		optimizationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimization_duration_seconds",
			Help:      "Time to run one optimization plan.",
			Buckets:   prometheus.DefBuckets,
		}),
		quoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_failures_total",
			Help:      "Venue quote failures, including timeouts and open breakers.",
		}, []string{"venue"}),
		feeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_fallbacks_total",
			Help:      "Fee predictions that fell back to fixed constants.",
		}),
	}
	reg.MustRegister(
		c.detections,
		c.routeEvaluations,
		c.cacheLookups,
		c.optimizations,
		c.optimizationDuration,
		c.quoteFailures,
		c.feeFallbacks,
	)
	return c
}

// Registry returns the registry the instruments live on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func (c *Collector) RecordDetection(profitable bool) {
	if c == nil {
		return
	}
	c.detections.WithLabelValues(boolLabel(profitable)).Inc()
}

func (c *Collector) RecordRouteEvaluation(valid bool) {
	if c == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	c.routeEvaluations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordCacheLookup(hit bool) {
	if c == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.cacheLookups.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordQuoteFailure(venueID string) {
	if c == nil {
		return
	}
	c.quoteFailures.WithLabelValues(venueID).Inc()
}

func (c *Collector) RecordFeeFallback() {
	if c == nil {
		return
	}
	c.feeFallbacks.Inc()
}

// RecordOptimization counts one finished attempt and observes its duration.
func (c *Collector) RecordOptimization(fallback bool, duration time.Duration) {
	if c == nil {
		return
	}
	state := "completed"
	if fallback {
		state = "fallback"
	}
	c.optimizations.WithLabelValues(state).Inc()
	c.optimizationDuration.Observe(duration.Seconds())
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
