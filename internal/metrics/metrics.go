// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLMBuckets covers upstream latencies from 100ms to two minutes.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts inbound requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohere_bridge_requests_total",
			Help: "Inbound requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records inbound request duration, streams included.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohere_bridge_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// UpstreamRequestsTotal counts upstream chat calls by mode and status code.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohere_bridge_upstream_requests_total",
			Help: "Upstream chat requests",
		},
		[]string{"mode", "status"},
	)

	// UpstreamLatency records the time until upstream response headers arrive.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohere_bridge_upstream_latency_seconds",
			Help:    "Upstream time to first byte",
			Buckets: LLMBuckets,
		},
		[]string{"mode"},
	)

	// StreamingConnections tracks streams currently being translated.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cohere_bridge_streaming_connections_active",
			Help: "Active streaming translations",
		},
	)

	// StreamEventsTotal counts decoded upstream events by type.
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohere_bridge_stream_events_total",
			Help: "Upstream stream events",
		},
		[]string{"event_type"},
	)

	// StreamChunksTotal counts chunks written downstream.
	StreamChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cohere_bridge_stream_chunks_total",
			Help: "Downstream chunks written",
		},
	)

	// DroppedFramesTotal counts upstream frames skipped as malformed.
	DroppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cohere_bridge_stream_dropped_frames_total",
			Help: "Malformed upstream frames",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		UpstreamRequestsTotal,
		UpstreamLatency,
		StreamingConnections,
		StreamEventsTotal,
		StreamChunksTotal,
		DroppedFramesTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records RequestsTotal and RequestDuration. Handler errors are
// committed through the echo error handler here, so the recorded status is
// the one the client received and the error is not handled again upstream.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			method := c.Request().Method
			RequestsTotal.WithLabelValues(method, StatusClass(c.Response().Status)).Inc()
			RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// StatusClass renders a status code as "2xx", "4xx" and so on.
func StatusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
