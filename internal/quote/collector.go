package quote

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"

    "shipflow/internal/config"
    "shipflow/internal/metrics"
    "shipflow/internal/model"
    "shipflow/internal/payload"
    "shipflow/internal/store"
)

// NoQuotesError is the hard failure when zero carriers accepted even
// after the retry pass. The rejection list rides along for diagnosis.
type NoQuotesError struct {
    Rejections []model.Quote
}

func (e *NoQuotesError) Error() string { return "no carriers available to ship this order" }

// Collector fans a quote request out to every active carrier with an
// endpoint, races each call against a per-carrier timeout and picks a
// winner through the selection policy.
type Collector struct {
    Store   store.Store
    Builder *payload.Builder
    API     CarrierAPI
    Locker  Locker
    Policy  SelectionPolicy
    Timeout time.Duration
    LockTTL time.Duration
}

func NewCollector(s store.Store, b *payload.Builder, api CarrierAPI, l Locker, cfg config.Config) *Collector {
    return &Collector{
        Store:   s,
        Builder: b,
        API:     api,
        Locker:  l,
        Policy:  LowestPrice{},
        Timeout: cfg.Quote.CarrierTimeout,
        LockTTL: cfg.Quote.LockTTL,
    }
}

// Result is the synchronous outcome of one collection run.
type Result struct {
    OrderID  string        `json:"orderId"`
    Quotes   []model.Quote `json:"quotes"`
    Selected model.Quote   `json:"selected"`
}

// CollectQuotes runs the full workflow: lock the order, fan out, run
// the minimum-quote retry pass, select, persist, reserve. The caller
// only returns once the timeout/retry window has fully played out.
func (c *Collector) CollectQuotes(ctx context.Context, tenantID, orderID string) (Result, error) {
    order, err := c.Store.GetOrder(ctx, tenantID, orderID)
    if err != nil { return Result{}, err }

    release, err := c.Locker.Acquire(ctx, tenantID+"|"+orderID, c.LockTTL)
    if err != nil { return Result{}, err }
    defer release()

    all, err := c.Store.ListCarriers(ctx, tenantID)
    if err != nil { return Result{}, err }
    carriers := make([]model.Carrier, 0, len(all))
    reliability := map[string]float64{}
    for _, cr := range all {
        if !cr.IsActive || cr.Endpoint == "" || !cr.Serves(order.Priority) { continue }
        carriers = append(carriers, cr)
        reliability[cr.ID] = cr.ReliabilityScore
    }
    if len(carriers) == 0 {
        return Result{}, &NoQuotesError{}
    }

    wh, err := c.Store.GetWarehouse(ctx, tenantID, order.WarehouseID)
    if err != nil { wh = model.Warehouse{} }

    quotes := c.fanOut(ctx, order, wh, carriers, false)

    // Minimum-quote guarantee: with exactly one accept, the failures
    // get one more chance at the same timeout.
    if countAccepted(quotes) == 1 {
        var failedIdx []int
        var failed []model.Carrier
        for i, q := range quotes {
            if !q.Accepted {
                failedIdx = append(failedIdx, i)
                failed = append(failed, carriers[i])
            }
        }
        if len(failed) > 0 {
            retried := c.fanOut(ctx, order, wh, failed, true)
            for i, q := range retried {
                quotes[failedIdx[i]] = q
            }
        }
    }

    if countAccepted(quotes) == 0 {
        return Result{}, &NoQuotesError{Rejections: quotes}
    }

    winner, reason := c.Policy.Select(quotes, reliability)
    quotes[winner].Selected = true
    quotes[winner].SelectionReason = reason

    if err := c.Store.SaveQuoteRun(ctx, tenantID, orderID, quotes); err != nil {
        return Result{}, err
    }
    c.reserveCapacity(ctx, tenantID, order, carriers, quotes[winner])

    return Result{OrderID: orderID, Quotes: quotes, Selected: quotes[winner]}, nil
}

func countAccepted(quotes []model.Quote) int {
    n := 0
    for _, q := range quotes {
        if q.Accepted { n++ }
    }
    return n
}

// fanOut queries all carriers concurrently. Results keep carrier order.
func (c *Collector) fanOut(ctx context.Context, order model.Order, wh model.Warehouse, carriers []model.Carrier, retried bool) []model.Quote {
    out := make([]model.Quote, len(carriers))
    var wg sync.WaitGroup
    for i, cr := range carriers {
        wg.Add(1)
        go func(i int, cr model.Carrier) {
            defer wg.Done()
            req := c.Builder.BuildRequestPayload(ctx, order, wh, cr, order.Priority, time.Now())
            out[i] = c.fetchOne(ctx, cr, req, retried)
        }(i, cr)
    }
    wg.Wait()
    return out
}

// fetchOne races one carrier call against the per-carrier timeout.
// When the timer wins we stop waiting; the abandoned call's eventual
// result lands in the buffered channel and is discarded.
func (c *Collector) fetchOne(ctx context.Context, carrier model.Carrier, req payload.RequestPayload, retried bool) model.Quote {
    ch := make(chan model.Quote, 1)
    go func() {
        start := time.Now()
        resp, err := c.API.RequestQuote(ctx, carrier, req)
        q := model.Quote{
            CarrierID:   carrier.ID,
            CarrierName: carrier.Name,
            WasRetried:  retried,
            LatencyMs:   int(time.Since(start).Milliseconds()),
        }
        if err != nil {
            q.Reason = err.Error()
        } else if resp.Accepted {
            q.Accepted = true
            q.Price = resp.Price
            q.Currency = resp.Currency
            q.EstimatedDays = resp.EstimatedDays
        } else {
            q.Reason = resp.Reason
        }
        ch <- q
    }()
    timer := time.NewTimer(c.Timeout)
    defer timer.Stop()
    select {
    case q := <-ch:
        metrics.QuoteLatency.WithLabelValues(quoteOutcome(q)).Observe(float64(q.LatencyMs))
        return q
    case <-timer.C:
        q := model.Quote{
            CarrierID:   carrier.ID,
            CarrierName: carrier.Name,
            TimedOut:    true,
            Reason:      "timeout",
            WasRetried:  retried,
            LatencyMs:   int(c.Timeout.Milliseconds()),
        }
        metrics.QuoteLatency.WithLabelValues("timeout").Observe(float64(q.LatencyMs))
        return q
    }
}

func quoteOutcome(q model.Quote) string {
    if q.Accepted { return "accepted" }
    return "rejected"
}

// reserveCapacity notifies the winning carrier through the durable
// queue. Failures are logged; the saved quote run is the source of
// truth either way.
func (c *Collector) reserveCapacity(ctx context.Context, tenantID string, order model.Order, carriers []model.Carrier, winner model.Quote) {
    var target model.Carrier
    for _, cr := range carriers {
        if cr.ID == winner.CarrierID { target = cr; break }
    }
    if target.Endpoint == "" { return }
    body, _ := json.Marshal(map[string]any{
        "orderId":         order.ID,
        "price":           winner.Price,
        "currency":        winner.Currency,
        "estimatedDays":   winner.EstimatedDays,
        "selectionReason": winner.SelectionReason,
    })
    _, err := c.Store.EnqueueNotification(ctx, store.CarrierNotification{
        TenantID:  tenantID,
        CarrierID: target.ID,
        EventType: "quote.selected",
        URL:       target.Endpoint,
        Secret:    target.Secret,
        Payload:   body,
    })
    if err != nil {
        log.Printf("quote: reserve capacity with carrier %s: %v", target.ID, err)
    }
}
