package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // AssignmentOutcomes counts assignment transitions by resulting status
    AssignmentOutcomes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "assignment_outcomes_total", Help: "Assignment transitions by resulting status."},
        []string{"status"},
    )
    // BatchesCreated counts carrier batches by trigger
    BatchesCreated = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "assignment_batches_total", Help: "Carrier batches created by trigger."},
        []string{"trigger"},
    )
    // NotificationDeliveries counts carrier notification outcomes by event type and status
    NotificationDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "carrier_notifications_total", Help: "Carrier notification deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // NotificationLatency tracks carrier notification latencies in milliseconds
    NotificationLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "carrier_notification_latency_ms", Help: "Carrier notification latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
    // QuoteLatency tracks per-carrier quote latencies in milliseconds
    QuoteLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "carrier_quote_latency_ms", Help: "Per-carrier quote latency in ms.", Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000}},
        []string{"outcome"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(AssignmentOutcomes)
        Registry.MustRegister(BatchesCreated)
        Registry.MustRegister(NotificationDeliveries)
        Registry.MustRegister(NotificationLatency)
        Registry.MustRegister(QuoteLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
