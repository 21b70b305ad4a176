// Package metrics provides Prometheus instrumentation for the HTTP
// surface and the database pool. Domain subsystems register their own
// collectors in their packages.
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
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boostpanel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status class.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boostpanel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	dbOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "boostpanel", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	dbIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "boostpanel", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	dbInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "boostpanel", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	goroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "boostpanel", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		dbOpenConnections,
		dbIdleConnections,
		dbInUseConnections,
		goroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and the
// goroutine count into gauges. Call in a goroutine; exits when ctx is
// done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			dbOpenConnections.Set(float64(stats.OpenConnections))
			dbIdleConnections.Set(float64(stats.Idle))
			dbInUseConnections.Set(float64(stats.InUse))
			goroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not raw path, to cap cardinality
		))

		c.Next()

		timer.ObserveDuration()
		httpRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
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
