package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botfleet_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "endpoint", "status"})

	APIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_api_errors_total",
		Help: "API errors by error code",
	}, []string{"code"})

	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_sync_cycles_total",
		Help: "Account state synchronization cycles by outcome",
	}, []string{"status"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "botfleet_sync_duration_seconds",
		Help:    "Duration of a full account state synchronization cycle",
		Buckets: prometheus.DefBuckets,
	})

	ConnectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_connector_failures_total",
		Help: "Connector errors isolated during synchronization",
	}, []string{"connector", "phase"})

	HistoryDumps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_history_dumps_total",
		Help: "Account state history records written",
	}, []string{"sink", "status"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botfleet_active_workers",
		Help: "Worker containers currently tracked by the orchestrator",
	})

	TelemetryMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_telemetry_messages_total",
		Help: "Telemetry messages received from workers",
	}, []string{"kind"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botfleet_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botfleet_audit_dropped_total",
		Help: "Audit entries dropped because the write buffer was full",
	})
)
