package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "app056",
			Subsystem: "generation",
			Name:      "jobs_submitted_total",
			Help:      "Generation jobs accepted by the backend, by mode.",
		},
		[]string{"mode"},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "app056",
			Subsystem: "generation",
			Name:      "jobs_finished_total",
			Help:      "Generation jobs that left the polling state, by outcome.",
		},
		[]string{"outcome"},
	)

	pollRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "app056",
			Subsystem: "generation",
			Name:      "poll_requests_total",
			Help:      "Status polls issued, by result.",
		},
		[]string{"result"},
	)

	activePollers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "app056",
			Subsystem: "generation",
			Name:      "active_pollers",
			Help:      "Jobs currently being polled.",
		},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "app056",
			Subsystem: "image_cache",
			Name:      "lookups_total",
			Help:      "Image cache lookups, by hit or miss.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "app056",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "app056",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		jobsSubmitted,
		jobsFinished,
		pollRequests,
		activePollers,
		cacheLookups,
		httpRequests,
		httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func JobSubmitted(mode string) { jobsSubmitted.WithLabelValues(mode).Inc() }

func JobFinished(outcome string) { jobsFinished.WithLabelValues(outcome).Inc() }

func PollRequest(ok bool) {
	if ok {
		pollRequests.WithLabelValues("ok").Inc()
		return
	}
	pollRequests.WithLabelValues("error").Inc()
}

func PollerStarted() { activePollers.Inc() }

func PollerStopped() { activePollers.Dec() }

func CacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// GinMiddleware records request counts and latency by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if path == "/metrics" {
			return
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
