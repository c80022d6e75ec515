package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket lifecycle and inbound events.",
		},
		[]string{"event"},
	)
	wsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_rejected_events_total",
			Help: "Total number of inbound events rejected before or during dispatch.",
		},
		[]string{"event", "reason"},
	)
	wsDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_deliveries_total",
			Help: "Total number of outbound events queued to connections.",
		},
		[]string{"event"},
	)
	wsEventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_ws_event_duration_seconds",
			Help:    "Inbound event processing latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)
	onlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_presence_online_users",
			Help: "Number of users with at least one live connection.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		wsRejectedTotal,
		wsDeliveriesTotal,
		wsEventDuration,
		onlineUsers,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncWSRejected(event, reason string) {
	wsRejectedTotal.WithLabelValues(event, reason).Inc()
}

func AddWSDeliveries(event string, n int) {
	if n <= 0 {
		return
	}
	wsDeliveriesTotal.WithLabelValues(event).Add(float64(n))
}

func ObserveWSEvent(event string, since time.Time) {
	wsEventDuration.WithLabelValues(event).Observe(time.Since(since).Seconds())
}

func SetOnlineUsers(n int) {
	onlineUsers.Set(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
