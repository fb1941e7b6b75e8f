package assign

import (
    "bytes"
    "context"
    "net/http"
    "time"

    "golang.org/x/time/rate"
    "shipflow/internal/config"
    "shipflow/internal/metrics"
    "shipflow/internal/store"
)

// Notifier drains the durable carrier notification queue. Outbound
// calls are rate limited across all carriers so a large batch cannot
// flood anyone's webhook endpoint.
type Notifier struct {
    Store       store.Store
    HTTP        *http.Client
    Stop        chan struct{}
    MaxAttempts int
    Interval    time.Duration
    Limiter     *rate.Limiter
}

func NewNotifier(s store.Store, cfg config.Config) *Notifier {
    return &Notifier{
        Store:       s,
        HTTP:        &http.Client{Timeout: 5 * time.Second},
        Stop:        make(chan struct{}),
        MaxAttempts: cfg.Notifier.MaxAttempts,
        Interval:    cfg.Notifier.Interval,
        Limiter:     rate.NewLimiter(rate.Limit(cfg.Notifier.RateRPS), cfg.Notifier.RateBurst),
    }
}

func (n *Notifier) Start() {
    go func() {
        ticker := time.NewTicker(n.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-n.Stop:
                return
            case <-ticker.C:
                n.processOnce()
            }
        }
    }()
}

func (n *Notifier) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()
    items, err := n.Store.FetchDueNotifications(ctx, 50)
    if err != nil || len(items) == 0 { return }
    for _, it := range items {
        if err := n.Limiter.Wait(ctx); err != nil { return }
        success := false
        next := time.Now().Add(nextBackoff(it.Attempts))
        req, _ := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Event-Type", it.EventType)
        if it.AssignmentID != "" {
            req.Header.Set("X-Assignment-Id", it.AssignmentID)
        }
        if it.Secret != "" {
            req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
        }
        start := time.Now()
        resp, err := n.HTTP.Do(req)
        latency := int(time.Since(start).Milliseconds())
        code := 0
        if err == nil && resp != nil {
            code = resp.StatusCode
            if resp.Body != nil { _ = resp.Body.Close() }
            if code >= 200 && code < 300 { success = true }
        }
        lastErr := ""
        if !success && err != nil { lastErr = err.Error() }
        status := "retry"
        if success { status = "delivered" }
        if !success && it.Attempts+1 >= n.MaxAttempts {
            status = "failed"
            _ = n.Store.FailNotification(ctx, it.ID, lastErr, code, latency)
        } else {
            _ = n.Store.MarkNotification(ctx, it.ID, success, &next, lastErr, code, latency)
        }
        metrics.NotificationDeliveries.WithLabelValues(it.EventType, status).Inc()
        metrics.NotificationLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
    }
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
