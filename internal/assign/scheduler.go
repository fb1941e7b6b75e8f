package assign

import (
    "context"
    "errors"
    "log"
    "time"

    "shipflow/internal/config"
    "shipflow/internal/metrics"
    "shipflow/internal/model"
    "shipflow/internal/store"
)

// Scheduler runs three independent, idempotent sweeps against the
// persisted assignment rows. It keeps no state between runs, so
// overlapping invocations only cost wasted conditional updates.
type Scheduler struct {
    Store store.Store
    Orch  *Orchestrator
    Cfg   config.Config
    Stop  chan struct{}
    // Publish, when set, receives order-scoped lifecycle events from
    // the sweeps (the handlers publish their own).
    Publish func(orderID, eventType string, data map[string]any)
    now     func() time.Time
}

func NewScheduler(s store.Store, o *Orchestrator, cfg config.Config) *Scheduler {
    return &Scheduler{Store: s, Orch: o, Cfg: cfg, Stop: make(chan struct{}), now: time.Now}
}

func (s *Scheduler) publish(orderID, eventType string, data map[string]any) {
    if s.Publish != nil {
        s.Publish(orderID, eventType, data)
    }
}

func (s *Scheduler) Start() {
    go func() {
        ticker := time.NewTicker(s.Cfg.Sweep.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-s.Stop:
                return
            case <-ticker.C:
                s.RunOnce()
            }
        }
    }()
}

// RunOnce executes all three sweeps. A failing sweep never blocks the
// others.
func (s *Scheduler) RunOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
    defer cancel()
    if n, err := s.ProcessExpiredAssignments(ctx); err != nil {
        log.Printf("sweep: expired assignments: %v", err)
    } else if n > 0 {
        log.Printf("sweep: expired %d assignments", n)
    }
    if n, err := s.RetryBusyAssignments(ctx); err != nil {
        log.Printf("sweep: busy retries: %v", err)
    } else if n > 0 {
        log.Printf("sweep: reset %d busy assignments", n)
    }
    if n, err := s.ProcessAllRejectedOrders(ctx); err != nil {
        log.Printf("sweep: rejected orders: %v", err)
    } else if n > 0 {
        log.Printf("sweep: re-batched %d orders", n)
    }
}

// ProcessExpiredAssignments marks overdue pending rows expired and
// requests a fresh batch per affected order. An order at the ceiling
// goes on hold inside the batch request instead.
func (s *Scheduler) ProcessExpiredAssignments(ctx context.Context) (int, error) {
    items, err := s.Store.ExpiredPendingAssignments(ctx, s.now(), 200)
    if err != nil { return 0, err }
    expired := 0
    orders := map[store.OrderRef]bool{}
    for _, a := range items {
        _, err := s.Store.TransitionAssignment(ctx, a.TenantID, a.ID, model.AssignmentPending, model.AssignmentExpired, store.AssignmentUpdate{})
        if errors.Is(err, store.ErrStatusConflict) {
            continue // decided while we were sweeping
        }
        if err != nil {
            log.Printf("sweep: expire assignment %s: %v", a.ID, err)
            continue
        }
        expired++
        metrics.AssignmentOutcomes.WithLabelValues(string(model.AssignmentExpired)).Inc()
        s.publish(a.OrderID, "assignment.expired", map[string]any{"assignmentId": a.ID, "carrierId": a.CarrierID})
        orders[store.OrderRef{TenantID: a.TenantID, OrderID: a.OrderID}] = true
    }
    for ref := range orders {
        _, err := s.Orch.RequestCarrierAssignment(ctx, ref.TenantID, ref.OrderID, "expiry")
        if err != nil && !errors.Is(err, ErrMaxAttempts) {
            log.Printf("sweep: re-batch order %s after expiry: %v", ref.OrderID, err)
        }
    }
    return expired, nil
}

// RetryBusyAssignments hands assignments back to carriers that came
// online recently. At most BusyResetLimit rows per carrier move back
// to pending in one sweep, oldest first, with a fresh expiry window.
func (s *Scheduler) RetryBusyAssignments(ctx context.Context) (int, error) {
    since := s.now().Add(-s.Cfg.Sweep.BusyWindow)
    carriers, err := s.Store.CarriersAvailableSince(ctx, since)
    if err != nil { return 0, err }
    reset := 0
    for _, c := range carriers {
        busy, err := s.Store.BusyAssignmentsForCarrier(ctx, c.ID, s.Cfg.Sweep.BusyResetLimit)
        if err != nil {
            log.Printf("sweep: list busy for carrier %s: %v", c.ID, err)
            continue
        }
        for _, a := range busy {
            exp := s.now().Add(s.Cfg.Assignment.PendingExpiry)
            _, err := s.Store.TransitionAssignment(ctx, a.TenantID, a.ID, model.AssignmentBusy, model.AssignmentPending, store.AssignmentUpdate{ExpiresAt: &exp})
            if err != nil {
                if !errors.Is(err, store.ErrStatusConflict) {
                    log.Printf("sweep: reset busy assignment %s: %v", a.ID, err)
                }
                continue
            }
            reset++
        }
    }
    return reset, nil
}

// ProcessAllRejectedOrders re-batches active orders whose every
// assignment ended in a terminal failure. Per-order errors are
// isolated so one bad order cannot starve the rest of the sweep.
func (s *Scheduler) ProcessAllRejectedOrders(ctx context.Context) (int, error) {
    refs, err := s.Store.OrdersAwaitingRetry(ctx, 100)
    if err != nil { return 0, err }
    batched := 0
    for _, ref := range refs {
        res, err := s.Orch.RequestCarrierAssignment(ctx, ref.TenantID, ref.OrderID, "rejected-sweep")
        if err != nil {
            if !errors.Is(err, ErrMaxAttempts) {
                log.Printf("sweep: re-batch rejected order %s: %v", ref.OrderID, err)
            }
            continue
        }
        if len(res.Assignments) > 0 { batched++ }
    }
    return batched, nil
}
