package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modpod_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modpod_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LinkRedirects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modpod_link_redirects_total",
			Help: "Short link redirects, split by whether the client was a crawler",
		},
		[]string{"crawler"},
	)

	AuditDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modpod_audit_deliveries_total",
			Help: "Audit webhook deliveries by outcome",
		},
		[]string{"outcome"}, // "sent", "ratelimited", "failed", "dropped"
	)

	DiscordRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modpod_discord_requests_total",
			Help: "Upstream Discord API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	CalendarOccurrences = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modpod_calendar_occurrences",
			Help:    "Occurrences returned per calendar expansion",
			Buckets: []float64{0, 1, 5, 10, 25, 50},
		},
	)
)

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordRedirect(crawler bool) {
	LinkRedirects.WithLabelValues(strconv.FormatBool(crawler)).Inc()
}
