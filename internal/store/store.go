package store

import (
    "context"
    "errors"
    "fmt"
    "time"

    "shipflow/internal/model"
)

// Store is the persistence boundary used by the orchestrator, the
// retry scheduler, the quote collector and the API server.
type Store interface {
    // Orders & warehouses
    CreateOrder(ctx context.Context, o model.Order) error
    GetOrder(ctx context.Context, tenantID, orderID string) (model.Order, error)
    SetOrderStatus(ctx context.Context, tenantID, orderID string, status model.OrderStatus, note string) error
    GetWarehouse(ctx context.Context, tenantID, id string) (model.Warehouse, error)
    UpsertWarehouse(ctx context.Context, tenantID string, w model.Warehouse) error

    // Carriers
    ListCarriers(ctx context.Context, tenantID string) ([]model.Carrier, error)
    UpsertCarrier(ctx context.Context, c model.Carrier) error
    // EligibleCarriers returns active, available carriers matching the
    // service type (or 'all'), excluding given ids, reliability desc.
    EligibleCarriers(ctx context.Context, tenantID string, serviceType model.ServiceType, exclude []string, limit int) ([]model.Carrier, error)
    SetCarrierAvailability(ctx context.Context, tenantID, code string, st model.CarrierAvailability, at time.Time) (model.Carrier, error)
    // CarriersAvailableSince lists carriers (any tenant) that flipped
    // to available after the given time. Used by the busy sweep.
    CarriersAvailableSince(ctx context.Context, since time.Time) ([]model.Carrier, error)

    // Assignments
    // CreateAssignmentBatch persists the whole batch and the order
    // status move in one transaction; partial batches never persist.
    CreateAssignmentBatch(ctx context.Context, tenantID, orderID string, assignments []model.CarrierAssignment, orderStatus model.OrderStatus) error
    GetAssignment(ctx context.Context, tenantID, id string) (model.CarrierAssignment, error)
    // DistinctCarriersTried counts carriers ever assigned to the order
    // and returns their ids.
    DistinctCarriersTried(ctx context.Context, tenantID, orderID string) (int, []string, error)
    // TransitionAssignment performs a conditional status move. The row
    // only changes when its current status equals from; a lost race or
    // illegal move returns ErrStatusConflict.
    TransitionAssignment(ctx context.Context, tenantID, id string, from, to model.AssignmentStatus, upd AssignmentUpdate) (model.CarrierAssignment, error)
    // AcceptAssignment is the single place a shipment row is born:
    // ownership check, pending->accepted move, shipment insert and
    // order update happen in one transaction.
    AcceptAssignment(ctx context.Context, tenantID, assignmentID, carrierID string, acceptance []byte, shipment model.Shipment) (model.CarrierAssignment, model.Shipment, error)
    PendingAssignmentsForCarrier(ctx context.Context, tenantID, carrierID string) ([]model.CarrierAssignment, error)
    // ExpiredPendingAssignments lists pending rows past their expiry
    // for orders that are still active. Cross-tenant; sweep scope.
    ExpiredPendingAssignments(ctx context.Context, now time.Time, limit int) ([]model.CarrierAssignment, error)
    // BusyAssignmentsForCarrier lists busy rows for active orders,
    // oldest first.
    BusyAssignmentsForCarrier(ctx context.Context, carrierID string, limit int) ([]model.CarrierAssignment, error)
    // OrdersAwaitingRetry lists active orders whose assignments are all
    // in terminal-failure states (no pending, no accepted, at least one
    // rejected/expired/busy).
    OrdersAwaitingRetry(ctx context.Context, limit int) ([]OrderRef, error)

    // Shipments
    GetShipmentByOrder(ctx context.Context, tenantID, orderID string) (model.Shipment, error)

    // Carrier notifications (durable outbound queue)
    EnqueueNotification(ctx context.Context, n CarrierNotification) (string, error)
    FetchDueNotifications(ctx context.Context, limit int) ([]CarrierNotification, error)
    MarkNotification(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
    FailNotification(ctx context.Context, id, lastError string, responseCode, latencyMs int) error

    // Quotes
    SaveQuoteRun(ctx context.Context, tenantID, orderID string, quotes []model.Quote) error
    ListQuoteRuns(ctx context.Context, tenantID, orderID string) ([]model.Quote, error)
}

// AssignmentUpdate carries optional fields applied with a transition.
type AssignmentUpdate struct {
    RejectReason string
    ExpiresAt    *time.Time
}

// OrderRef identifies an order across tenants for sweep work.
type OrderRef struct {
    TenantID string
    OrderID  string
}

// CarrierNotification is a queued outbound call to a carrier endpoint.
type CarrierNotification struct {
    ID           string
    TenantID     string
    CarrierID    string
    AssignmentID string
    EventType    string
    URL          string
    Secret       string
    Payload      []byte
    Status       string
    Attempts     int
}

var ErrNotFound = errors.New("not found")

// ErrStatusConflict means a conditional transition found the row in a
// different status (lost race or illegal move).
var ErrStatusConflict = errors.New("status conflict")

// ErrAlreadyDecided means the assignment already left pending; the
// second accept of the same row maps here.
var ErrAlreadyDecided = errors.New("assignment already decided")

// OwnershipError reports an accept/reject by the wrong carrier. The
// real owner is named to aid carrier-side debugging.
type OwnershipError struct {
    AssignmentID string
    OwnerID      string
    OwnerName    string
}

func (e *OwnershipError) Error() string {
    return fmt.Sprintf("assignment %s belongs to carrier %s (%s)", e.AssignmentID, e.OwnerName, e.OwnerID)
}
