package assign

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "strings"
    "time"

    "github.com/google/uuid"
    "shipflow/internal/config"
    "shipflow/internal/metrics"
    "shipflow/internal/model"
    "shipflow/internal/payload"
    "shipflow/internal/store"
)

// Orchestrator drives the carrier assignment state machine. One
// instance is constructed at process start and shared by the API
// handlers and the retry scheduler.
type Orchestrator struct {
    Store   store.Store
    Builder *payload.Builder
    Cfg     config.Config
    now     func() time.Time
}

func NewOrchestrator(s store.Store, b *payload.Builder, cfg config.Config) *Orchestrator {
    return &Orchestrator{Store: s, Builder: b, Cfg: cfg, now: time.Now}
}

// BatchResult is the synchronous answer to a batch request: which
// carriers were contacted, never the outcome of those contacts.
type BatchResult struct {
    OrderID           string                    `json:"orderId"`
    Assignments       []model.CarrierAssignment `json:"assignments"`
    PendingAcceptance int                       `json:"pendingAcceptance"`
}

// RequestCarrierAssignment creates a batch of pending assignments for
// the order. The whole batch persists in one transaction or not at
// all. Zero eligible carriers is not an error; the order keeps its
// status and a later sweep re-attempts. Once the distinct-carrier
// ceiling is reached the order goes on hold and ErrMaxAttempts is
// returned. The trigger label feeds metrics ("request", "expiry",
// "rejected-sweep").
func (o *Orchestrator) RequestCarrierAssignment(ctx context.Context, tenantID, orderID, trigger string) (BatchResult, error) {
    order, err := o.Store.GetOrder(ctx, tenantID, orderID)
    if err != nil { return BatchResult{}, err }
    if !order.Status.Active() { return BatchResult{}, ErrOrderInactive }

    tried, triedIDs, err := o.Store.DistinctCarriersTried(ctx, tenantID, orderID)
    if err != nil { return BatchResult{}, err }
    if tried >= o.Cfg.Assignment.MaxCarriers {
        note := fmt.Sprintf("carrier assignment ceiling reached: %d carriers tried", tried)
        if err := o.Store.SetOrderStatus(ctx, tenantID, orderID, model.OrderOnHold, note); err != nil {
            return BatchResult{}, err
        }
        return BatchResult{}, ErrMaxAttempts
    }

    // A batch never pushes the distinct-carrier count past the ceiling.
    limit := o.Cfg.Assignment.BatchSize
    if room := o.Cfg.Assignment.MaxCarriers - tried; room < limit { limit = room }
    carriers, err := o.Store.EligibleCarriers(ctx, tenantID, order.Priority, triedIDs, limit)
    if err != nil { return BatchResult{}, err }
    if len(carriers) == 0 {
        // Wait-for-capacity policy: leave the order alone.
        return BatchResult{OrderID: orderID}, nil
    }

    wh, err := o.Store.GetWarehouse(ctx, tenantID, order.WarehouseID)
    if err != nil { wh = model.Warehouse{} } // builder falls back to the default pickup

    now := o.now()
    batch := make([]model.CarrierAssignment, 0, len(carriers))
    requests := make([][]byte, 0, len(carriers))
    for _, c := range carriers {
        req := o.Builder.BuildRequestPayload(ctx, order, wh, c, order.Priority, now)
        a := model.CarrierAssignment{
            ID:             uuid.New().String(),
            TenantID:       tenantID,
            OrderID:        orderID,
            CarrierID:      c.ID,
            CarrierName:    c.Name,
            ServiceType:    order.Priority,
            Status:         model.AssignmentPending,
            Pickup:         req.Pickup,
            Delivery:       req.Delivery,
            IdempotencyKey: uuid.New().String(),
            ExpiresAt:      req.ExpiresAt,
            CreatedAt:      now,
        }
        req.AssignmentID = a.ID
        body, _ := json.Marshal(req)
        a.RequestPayload = body
        batch = append(batch, a)
        requests = append(requests, body)
    }

    if err := o.Store.CreateAssignmentBatch(ctx, tenantID, orderID, batch, model.OrderPendingCarrier); err != nil {
        return BatchResult{}, err
    }
    metrics.BatchesCreated.WithLabelValues(trigger).Inc()

    // Post-commit, fire-and-forget: the assignment rows are durable, so
    // a failed enqueue is logged and the carrier falls back to polling.
    for i, c := range carriers {
        if c.Endpoint == "" { continue }
        _, err := o.Store.EnqueueNotification(ctx, store.CarrierNotification{
            TenantID:     tenantID,
            CarrierID:    c.ID,
            AssignmentID: batch[i].ID,
            EventType:    "assignment.requested",
            URL:          c.Endpoint,
            Secret:       c.Secret,
            Payload:      requests[i],
        })
        if err != nil {
            log.Printf("assign: enqueue notification for carrier %s failed: %v", c.ID, err)
        }
    }

    return BatchResult{OrderID: orderID, Assignments: batch, PendingAcceptance: len(batch)}, nil
}

// AcceptAssignment records a carrier's acceptance. The id and carrier
// must both match; a mismatch names the real owner rather than hiding
// behind a 404. Exactly one shipment per order is created here.
func (o *Orchestrator) AcceptAssignment(ctx context.Context, tenantID, assignmentID, carrierID string, body []byte) (model.CarrierAssignment, model.Shipment, error) {
    a, err := o.Store.GetAssignment(ctx, tenantID, assignmentID)
    if err != nil { return model.CarrierAssignment{}, model.Shipment{}, err }

    order, err := o.Store.GetOrder(ctx, tenantID, a.OrderID)
    if err != nil { return model.CarrierAssignment{}, model.Shipment{}, err }

    acc := payload.ParseAcceptance(body)
    shipment := o.buildShipment(order, a, carrierID, acc.Tracking)

    // The raw carrier response is kept verbatim as the acceptance
    // payload; the normalized form is derived on read.
    updated, created, err := o.Store.AcceptAssignment(ctx, tenantID, assignmentID, carrierID, body, shipment)
    if err != nil { return updated, model.Shipment{}, err }
    metrics.AssignmentOutcomes.WithLabelValues(string(model.AssignmentAccepted)).Inc()
    return updated, created, nil
}

// RejectAssignment records a carrier's rejection with its reason. A
// rejection never triggers a new batch inline; the sweep does that.
func (o *Orchestrator) RejectAssignment(ctx context.Context, tenantID, assignmentID, carrierID string, body []byte) (model.CarrierAssignment, error) {
    a, err := o.Store.GetAssignment(ctx, tenantID, assignmentID)
    if err != nil { return model.CarrierAssignment{}, err }
    if a.CarrierID != carrierID {
        return a, &store.OwnershipError{AssignmentID: assignmentID, OwnerID: a.CarrierID, OwnerName: a.CarrierName}
    }
    rej := payload.ParseRejection(body)
    updated, err := o.Store.TransitionAssignment(ctx, tenantID, assignmentID, model.AssignmentPending, model.AssignmentRejected, store.AssignmentUpdate{RejectReason: rej.Reason})
    if err != nil { return updated, err }
    metrics.AssignmentOutcomes.WithLabelValues(string(model.AssignmentRejected)).Inc()
    return updated, nil
}

// MarkBusy flags a pending assignment as busy so the busy sweep can
// hand it back once the carrier reports availability.
func (o *Orchestrator) MarkBusy(ctx context.Context, tenantID, assignmentID, carrierID string) (model.CarrierAssignment, error) {
    a, err := o.Store.GetAssignment(ctx, tenantID, assignmentID)
    if err != nil { return model.CarrierAssignment{}, err }
    if a.CarrierID != carrierID {
        return a, &store.OwnershipError{AssignmentID: assignmentID, OwnerID: a.CarrierID, OwnerName: a.CarrierName}
    }
    updated, err := o.Store.TransitionAssignment(ctx, tenantID, assignmentID, model.AssignmentPending, model.AssignmentBusy, store.AssignmentUpdate{})
    if err != nil { return updated, err }
    metrics.AssignmentOutcomes.WithLabelValues(string(model.AssignmentBusy)).Inc()
    return updated, nil
}

// PendingAssignments lists a carrier's open assignments, oldest first.
// Carriers without a callback endpoint poll this.
func (o *Orchestrator) PendingAssignments(ctx context.Context, tenantID, carrierID string) ([]model.CarrierAssignment, error) {
    return o.Store.PendingAssignmentsForCarrier(ctx, tenantID, carrierID)
}

// NotifyCarrierOfPendingAssignments handles a carrier's
// became-available signal: flips its availability and returns how many
// assignments are still pending for it. Informational; nothing is
// resent.
func (o *Orchestrator) NotifyCarrierOfPendingAssignments(ctx context.Context, tenantID, code string) (model.Carrier, int, error) {
    c, err := o.Store.SetCarrierAvailability(ctx, tenantID, code, model.CarrierAvailable, o.now())
    if err != nil { return model.Carrier{}, 0, err }
    pending, err := o.Store.PendingAssignmentsForCarrier(ctx, tenantID, c.ID)
    if err != nil { return c, 0, err }
    return c, len(pending), nil
}

// buildShipment aggregates the order's items into the single shipment
// row born at acceptance.
func (o *Orchestrator) buildShipment(order model.Order, a model.CarrierAssignment, carrierID, tracking string) model.Shipment {
    var fragile, hazardous, perishable, cold bool
    for _, it := range order.Items {
        fragile = fragile || it.Fragile
        hazardous = hazardous || it.Hazardous
        perishable = perishable || it.Perishable
        cold = cold || it.ColdStorage
    }
    if tracking == "" {
        tracking = "TRK-" + strings.ToUpper(uuid.New().String()[:8])
    }
    wb := o.Builder.Pricing.CalculateWeight(order.Items)
    return model.Shipment{
        ID:             uuid.New().String(),
        TenantID:       order.TenantID,
        OrderID:        order.ID,
        AssignmentID:   a.ID,
        CarrierID:      carrierID,
        TrackingNumber: tracking,
        ItemType:       itemType(fragile, hazardous, perishable, cold),
        TotalWeightKg:  wb.ChargeableWeight,
        Fragile:        fragile,
        Hazardous:      hazardous,
        Perishable:     perishable,
        ColdStorage:    cold,
        Status:         "created",
    }
}

// itemType picks the most restrictive handling class across the items.
func itemType(fragile, hazardous, perishable, cold bool) string {
    switch {
    case hazardous:
        return "hazardous"
    case cold:
        return "cold_storage"
    case perishable:
        return "perishable"
    case fragile:
        return "fragile"
    }
    return "standard"
}
