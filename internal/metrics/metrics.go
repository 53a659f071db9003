// Package metrics provides Prometheus instrumentation for the PayPilot engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paypilot",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paypilot",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EvaluationsTotal counts risk evaluations by final decision.
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paypilot",
			Name:      "evaluations_total",
			Help:      "Total risk evaluations by final decision.",
		},
		[]string{"decision"},
	)

	// DegradedEvaluationsTotal counts evaluations that fell back to the
	// degraded WARN decision because the policy authority was unavailable.
	DegradedEvaluationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "paypilot",
			Name:      "evaluations_degraded_total",
			Help:      "Total evaluations served with the degraded fallback decision.",
		},
	)

	// OverridesTotal counts recorded overrides by the decision overridden.
	OverridesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paypilot",
			Name:      "overrides_total",
			Help:      "Total recorded overrides by overridden decision.",
		},
		[]string{"decision"},
	)

	// TrustRecoveriesTotal counts trust score recoveries after quiet periods.
	TrustRecoveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "paypilot",
			Name:      "trust_recoveries_total",
			Help:      "Total trust score recoveries applied.",
		},
	)

	// PolicyFailuresTotal counts decision authority failures.
	PolicyFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "paypilot",
			Name:      "policy_failures_total",
			Help:      "Total decision authority call failures.",
		},
	)

	// ExplainerFallbacksTotal counts explanations replaced by the static fallback.
	ExplainerFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "paypilot",
			Name:      "explainer_fallbacks_total",
			Help:      "Total explanations replaced by the static fallback text.",
		},
	)

	// ActiveFeedClients tracks connected live-feed WebSocket clients.
	ActiveFeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "paypilot",
			Name:      "active_feed_clients",
			Help:      "Number of currently connected live-feed clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paypilot", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paypilot", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paypilot", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paypilot", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EvaluationsTotal,
		DegradedEvaluationsTotal,
		OverridesTotal,
		TrustRecoveriesTotal,
		PolicyFailuresTotal,
		ExplainerFallbacksTotal,
		ActiveFeedClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// Middleware returns a Gin middleware that records request counts and latency.
// Uses the route pattern (c.FullPath) rather than the raw URL to bound cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		status := statusLabel(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func statusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// StartDBStatsCollector periodically exports database pool stats and the
// goroutine count. Pass a nil db to export runtime stats only.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				GoroutineCount.Set(float64(runtime.NumGoroutine()))
				if db != nil {
					stats := db.Stats()
					DBOpenConnections.Set(float64(stats.OpenConnections))
					DBIdleConnections.Set(float64(stats.Idle))
					DBInUseConnections.Set(float64(stats.InUse))
				}
			}
		}
	}()
}
