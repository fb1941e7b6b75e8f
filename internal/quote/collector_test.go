package quote

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "shipflow/internal/config"
    "shipflow/internal/model"
    "shipflow/internal/payload"
    "shipflow/internal/pricing"
    "shipflow/internal/store"
)

// fakeAPI scripts per-carrier behavior. calls counts attempts per
// carrier so retry semantics are observable.
type fakeAPI struct {
    mu      sync.Mutex
    calls   map[string]int
    respond func(carrierID string, attempt int) (QuoteResponse, error)
    delay   map[string]time.Duration
}

func newFakeAPI(respond func(carrierID string, attempt int) (QuoteResponse, error)) *fakeAPI {
    return &fakeAPI{calls: map[string]int{}, respond: respond, delay: map[string]time.Duration{}}
}

func (f *fakeAPI) RequestQuote(ctx context.Context, carrier model.Carrier, req payload.RequestPayload) (QuoteResponse, error) {
    f.mu.Lock()
    f.calls[carrier.ID]++
    attempt := f.calls[carrier.ID]
    d := f.delay[carrier.ID]
    f.mu.Unlock()
    if d > 0 {
        select {
        case <-time.After(d):
        case <-ctx.Done():
            return QuoteResponse{}, ctx.Err()
        }
    }
    return f.respond(carrier.ID, attempt)
}

func newTestCollector(t *testing.T, api CarrierAPI) (*Collector, *store.Memory) {
    t.Helper()
    m := store.NewMemory()
    cfg := config.Default()
    b := payload.NewBuilder(pricing.NewEngine(cfg), nil, cfg.Assignment.PendingExpiry)
    c := NewCollector(m, b, api, NewMemoryLocker(), cfg)
    c.Timeout = 100 * time.Millisecond
    return c, m
}

func seedQuoteOrder(t *testing.T, m *store.Memory) {
    t.Helper()
    err := m.CreateOrder(context.Background(), model.Order{
        ID: "o1", TenantID: "t1", Priority: model.ServiceStandard, Status: model.OrderCreated,
        ShippingAddress: model.Address{Line1: "1 Main St", City: "Pune", PostalCode: "411001"},
        Items:           []model.Item{{SKU: "A", Quantity: 1, WeightKg: 2}},
    })
    if err != nil { t.Fatalf("order: %v", err) }
}

func seedQuoteCarrier(t *testing.T, m *store.Memory, id string, score float64) {
    t.Helper()
    err := m.UpsertCarrier(context.Background(), model.Carrier{
        ID: id, TenantID: "t1", Code: "C-" + id, Name: "Carrier " + id, ServiceType: "all",
        IsActive: true, Availability: model.CarrierAvailable, ReliabilityScore: score,
        Endpoint: "https://" + id + ".example/quotes",
    })
    if err != nil { t.Fatalf("carrier: %v", err) }
}

func TestRetryMinimumQuoting(t *testing.T) {
    api := newFakeAPI(func(id string, attempt int) (QuoteResponse, error) {
        switch id {
        case "c1":
            return QuoteResponse{Accepted: true, Price: 300, Currency: "INR", EstimatedDays: 4}, nil
        case "c2":
            if attempt >= 2 {
                return QuoteResponse{Accepted: true, Price: 250, Currency: "INR", EstimatedDays: 5}, nil
            }
            return QuoteResponse{Reason: "at capacity"}, nil
        default:
            return QuoteResponse{Reason: "no coverage"}, nil
        }
    })
    c, m := newTestCollector(t, api)
    seedQuoteOrder(t, m)
    seedQuoteCarrier(t, m, "c1", 4.0)
    seedQuoteCarrier(t, m, "c2", 4.5)
    seedQuoteCarrier(t, m, "c3", 3.0)

    res, err := c.CollectQuotes(context.Background(), "t1", "o1")
    if err != nil { t.Fatalf("collect: %v", err) }
    if n := countAccepted(res.Quotes); n != 2 {
        t.Fatalf("accepted = %d, want 2", n)
    }
    var c2 model.Quote
    for _, q := range res.Quotes {
        if q.CarrierID == "c2" { c2 = q }
    }
    if !c2.Accepted || !c2.WasRetried {
        t.Fatalf("retried quote: %+v", c2)
    }
    // c1 won its quote on the first pass and is never retried.
    if api.calls["c1"] != 1 || api.calls["c2"] != 2 {
        t.Fatalf("call counts: %+v", api.calls)
    }
}

func TestZeroAcceptsIsHardFailure(t *testing.T) {
    api := newFakeAPI(func(id string, attempt int) (QuoteResponse, error) {
        return QuoteResponse{Reason: "no coverage"}, nil
    })
    c, m := newTestCollector(t, api)
    seedQuoteOrder(t, m)
    seedQuoteCarrier(t, m, "c1", 4.0)
    seedQuoteCarrier(t, m, "c2", 4.5)

    _, err := c.CollectQuotes(context.Background(), "t1", "o1")
    var nq *NoQuotesError
    if !errors.As(err, &nq) {
        t.Fatalf("want NoQuotesError, got %v", err)
    }
    if len(nq.Rejections) != 2 {
        t.Fatalf("rejection list: %+v", nq.Rejections)
    }
    // Nothing persisted on hard failure.
    saved, _ := m.ListQuoteRuns(context.Background(), "t1", "o1")
    if len(saved) != 0 {
        t.Fatalf("quotes saved on failure: %+v", saved)
    }
}

func TestTimeoutRecordedDistinctFromRejection(t *testing.T) {
    api := newFakeAPI(func(id string, attempt int) (QuoteResponse, error) {
        if id == "c1" {
            return QuoteResponse{Accepted: true, Price: 100, EstimatedDays: 3}, nil
        }
        return QuoteResponse{Reason: "no coverage"}, nil
    })
    api.delay["c2"] = 500 * time.Millisecond // beyond the per-carrier timeout
    c, m := newTestCollector(t, api)
    seedQuoteOrder(t, m)
    seedQuoteCarrier(t, m, "c1", 4.0)
    seedQuoteCarrier(t, m, "c2", 4.5)
    seedQuoteCarrier(t, m, "c3", 3.0)

    res, err := c.CollectQuotes(context.Background(), "t1", "o1")
    if err != nil { t.Fatalf("collect: %v", err) }
    for _, q := range res.Quotes {
        switch q.CarrierID {
        case "c2":
            if !q.TimedOut {
                t.Fatalf("c2 must be a timeout: %+v", q)
            }
        case "c3":
            if q.TimedOut || q.Reason != "no coverage" {
                t.Fatalf("c3 must be a plain rejection: %+v", q)
            }
        }
    }
}

func TestLockConflict(t *testing.T) {
    api := newFakeAPI(func(id string, attempt int) (QuoteResponse, error) {
        return QuoteResponse{Accepted: true, Price: 100}, nil
    })
    c, m := newTestCollector(t, api)
    seedQuoteOrder(t, m)
    seedQuoteCarrier(t, m, "c1", 4.0)

    release, err := c.Locker.Acquire(context.Background(), "t1|o1", time.Minute)
    if err != nil { t.Fatalf("pre-lock: %v", err) }
    defer release()

    if _, err := c.CollectQuotes(context.Background(), "t1", "o1"); !errors.Is(err, ErrLockHeld) {
        t.Fatalf("want ErrLockHeld, got %v", err)
    }
}

func TestSelectionLowestPriceReliabilityTieBreak(t *testing.T) {
    api := newFakeAPI(func(id string, attempt int) (QuoteResponse, error) {
        switch id {
        case "c1":
            return QuoteResponse{Accepted: true, Price: 200, EstimatedDays: 3}, nil
        case "c2":
            return QuoteResponse{Accepted: true, Price: 200, EstimatedDays: 5}, nil
        default:
            return QuoteResponse{Accepted: true, Price: 350, EstimatedDays: 2}, nil
        }
    })
    c, m := newTestCollector(t, api)
    seedQuoteOrder(t, m)
    seedQuoteCarrier(t, m, "c1", 3.9)
    seedQuoteCarrier(t, m, "c2", 4.7)
    seedQuoteCarrier(t, m, "c3", 5.0)

    res, err := c.CollectQuotes(context.Background(), "t1", "o1")
    if err != nil { t.Fatalf("collect: %v", err) }
    if res.Selected.CarrierID != "c2" || res.Selected.SelectionReason != "lowest_price" {
        t.Fatalf("selected: %+v", res.Selected)
    }

    saved, _ := m.ListQuoteRuns(context.Background(), "t1", "o1")
    if len(saved) != 3 {
        t.Fatalf("want full run persisted, got %d", len(saved))
    }
    selected := 0
    for _, q := range saved {
        if q.Selected { selected++ }
    }
    if selected != 1 {
        t.Fatalf("exactly one quote must be marked selected, got %d", selected)
    }
    // Winner reservation rides the notification queue.
    due, _ := m.FetchDueNotifications(context.Background(), 10)
    if len(due) != 1 || due[0].EventType != "quote.selected" || due[0].CarrierID != "c2" {
        t.Fatalf("reservation notification: %+v", due)
    }
}

func TestOnlyOptionReason(t *testing.T) {
    api := newFakeAPI(func(id string, attempt int) (QuoteResponse, error) {
        if id == "c1" {
            return QuoteResponse{Accepted: true, Price: 400, EstimatedDays: 6}, nil
        }
        return QuoteResponse{Reason: "no coverage"}, nil
    })
    c, m := newTestCollector(t, api)
    seedQuoteOrder(t, m)
    seedQuoteCarrier(t, m, "c1", 4.0)
    seedQuoteCarrier(t, m, "c2", 4.5)

    res, err := c.CollectQuotes(context.Background(), "t1", "o1")
    if err != nil { t.Fatalf("collect: %v", err) }
    if res.Selected.CarrierID != "c1" || res.Selected.SelectionReason != "only_option" {
        t.Fatalf("selected: %+v", res.Selected)
    }
}
