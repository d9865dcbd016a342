package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payment_routing"

// Metrics holds the routing service's Prometheus instruments
type Metrics struct {
	registry *prometheus.Registry

	Decisions         *prometheus.CounterVec
	Fallbacks         *prometheus.CounterVec
	DecisionDuration  prometheus.Histogram
	EstimatedFees     *prometheus.HistogramVec
	VolumeAlerts      *prometheus.CounterVec
	ChargeAttempts    *prometheus.CounterVec
	ProviderDuration  *prometheus.HistogramVec
	HTTPRequestMillis *prometheus.HistogramVec
}

// New creates the instruments on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Provider selections by mode, strategy and selected provider",
		}, []string{"mode", "strategy", "provider"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Selections that degraded to cost-only ranking, by reason",
		}, []string{"reason"}),
		DecisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time taken to select a provider",
			Buckets:   prometheus.DefBuckets,
		}),
		EstimatedFees: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimated_fee",
			Help:      "Estimated fee of the selected provider",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"provider"}),
		VolumeAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_alerts_total",
			Help:      "Volume threshold alerts published, by kind",
		}, []string{"kind"}),
		ChargeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charge_attempts_total",
			Help:      "Charge attempts against providers, by outcome",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_payment_provider_duration_seconds",
			Help:      "Duration of external payment provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		HTTPRequestMillis: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_server_duration_milliseconds",
			Help:      "HTTP server request duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"http_method", "http_route", "http_status_code"}),
	}

	m.registry.MustRegister(
		m.Decisions,
		m.Fallbacks,
		m.DecisionDuration,
		m.EstimatedFees,
		m.VolumeAlerts,
		m.ChargeAttempts,
		m.ProviderDuration,
		m.HTTPRequestMillis,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records HTTP request metrics
func (m *Metrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		m.HTTPRequestMillis.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(float64(time.Since(start).Milliseconds()))
	}
}
