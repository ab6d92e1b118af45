package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MessagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted and fanned out.",
		},
	)

	MessagesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_rejected_total",
			Help: "Send attempts that failed, by error kind.",
		},
		[]string{"kind"},
	)

	FanoutDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_deliveries_total",
			Help: "Events pushed to live sessions, by result.",
		},
		[]string{"result"},
	)

	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_live_sessions",
			Help: "Currently registered realtime sessions.",
		},
	)

	PresenceTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_presence_transitions_total",
			Help: "Users going online or offline.",
		},
		[]string{"state"},
	)

	ChatSummaryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_summary_failures_total",
			Help: "Chat summary upserts that failed after the message was stored.",
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		MessagesSentTotal,
		MessagesRejectedTotal,
		FanoutDeliveriesTotal,
		LiveSessions,
		PresenceTransitionsTotal,
		ChatSummaryFailuresTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records count and latency per route template, so path
// parameters do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDurationSeconds.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
