package main

import (
    "log"
    "net/http"
    "os"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "shipflow/internal/api"
    "shipflow/internal/metrics"
)

func main() {
    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Orders & workflows
    mux.HandleFunc("/v1/orders", srvDeps.OrdersHandler)
    mux.HandleFunc("/v1/orders/", srvDeps.OrderByIDHandler) // includes /assignments, /quotes

    // Assignments
    mux.HandleFunc("/v1/assignments/", srvDeps.AssignmentByIDHandler) // includes /accept, /reject, /busy

    // Carriers
    mux.HandleFunc("/v1/carriers", srvDeps.CarriersHandler)
    mux.HandleFunc("/v1/carriers/availability", srvDeps.CarrierAvailabilityHandler)
    mux.HandleFunc("/v1/carriers/", srvDeps.CarrierByIDHandler)

    // Shipments
    mux.HandleFunc("/v1/shipments/", srvDeps.ShipmentByOrderHandler)

    // Warehouses
    mux.HandleFunc("/v1/warehouses", srvDeps.WarehousesHandler)

    // Order event stream
    mux.HandleFunc("/v1/events/ws", srvDeps.EventsWSHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // Ops
    mux.HandleFunc("/debug", srvDeps.DebugJSON)
    mux.HandleFunc("/openapi.yaml", srvDeps.OpenAPIHandler)
    mux.HandleFunc("/docs", srvDeps.DocsHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(metricsMiddleware(mux)),
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API listening on %s", addr)
    // Start the carrier notification worker and the assignment sweeps
    srvDeps.NewNotifier().Start()
    srvDeps.NewScheduler().Start()
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (sr *statusRecorder) WriteHeader(code int) {
    sr.status = code
    sr.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        // WebSocket upgrades need the raw ResponseWriter (http.Hijacker)
        if r.URL.Path == "/v1/events/ws" {
            next.ServeHTTP(w, r)
            return
        }
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        st := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, st).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, st).Observe(time.Since(start).Seconds())
    })
}
