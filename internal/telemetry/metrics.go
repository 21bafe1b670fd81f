package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "courier",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// GatewayCallDuration tracks outbound message-gateway API call latency.
var GatewayCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "courier",
		Subsystem: "gateway",
		Name:      "call_duration_seconds",
		Help:      "Message-gateway API call duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation", "outcome"},
)

// MessagesSentTotal counts outbound messages accepted by the gateway.
var MessagesSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "messaging",
		Name:      "messages_sent_total",
		Help:      "Outbound messages accepted by the gateway.",
	},
	[]string{"tenant"},
)

// RateLimitedTotal counts sends rejected by the per-tenant rate limiter.
var RateLimitedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "messaging",
		Name:      "rate_limited_total",
		Help:      "Sends rejected by the per-tenant rate limiter.",
	},
	[]string{"tenant"},
)

// WebhookDeliveriesTotal counts webhook dispatch attempts by outcome.
var WebhookDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "courier",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Webhook dispatch attempts by outcome (delivered, failed, skipped).",
	},
	[]string{"outcome"},
)

// NewMetricsRegistry creates a Prometheus registry with default and custom collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		GatewayCallDuration,
		MessagesSentTotal,
		RateLimitedTotal,
		WebhookDeliveriesTotal,
	)
	return reg
}
