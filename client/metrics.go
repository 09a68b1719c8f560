package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mybusiness_client_requests_total",
	Help: "MyBusiness API requests, by HTTP method and outcome",
}, []string{"method", "status"})

var apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mybusiness_client_request_duration_seconds",
	Help:    "Time to complete a MyBusiness API request",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 20),
}, []string{"method", "status"})

var authExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mybusiness_client_auth_exchanges_total",
	Help: "MyBusiness credential exchanges (login and refresh), by outcome",
}, []string{"op", "status"})

// Label value for request outcome metrics: HTTP status code class, or "transport" when no response was received.
func statusLabel(statusCode int) string {
	switch {
	case statusCode <= 0:
		return "transport"
	case statusCode < 300:
		return "2xx"
	case statusCode < 400:
		return "3xx"
	case statusCode < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
