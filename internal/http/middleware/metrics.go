package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels stay bounded: path is the registered route, never the raw URL,
// except for unmatched requests.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 5 << 10, 25 << 10,
				100 << 10, 500 << 10, 1 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)

	// replies counts message exchanges by integration mode and outcome
	// (reply, pending, failed).
	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_chat_replies_total",
			Help: "Message exchanges by reply mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_chat_reply_callbacks_total",
			Help: "Reply callbacks received, by result.",
		},
		[]string{"result"},
	)

	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_chat_exports_total",
			Help: "Conversation exports by format.",
		},
		[]string{"format"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, replies, callbacks, exports)
}

// ObserveReply records the outcome of one message exchange.
func ObserveReply(mode, outcome string) { replies.WithLabelValues(mode, outcome).Inc() }

// ObserveCallback records a reply callback result (accepted, rejected,
// unauthorized).
func ObserveCallback(result string) { callbacks.WithLabelValues(result).Inc() }

// ObserveExport records a served export.
func ObserveExport(format string) { exports.WithLabelValues(format).Inc() }

// Metrics instruments every request: a counter by method, route and status,
// a latency histogram, an in-flight gauge and a response size histogram.
// Mount /metrics with promhttp next to it.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
