package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "shipflow/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set and
// throughout the test suite.
type Memory struct {
    mu          sync.Mutex
    orders      map[string]model.Order             // id -> order
    orderNotes  map[string][]string                // id -> audit notes
    warehouses  map[string]model.Warehouse         // id -> warehouse
    carriers    map[string]model.Carrier           // id -> carrier
    carrierCode map[string]string                  // tenant|code -> id
    assignments map[string]model.CarrierAssignment // id -> assignment
    idemKeys    map[string]bool                    // idempotency keys seen
    shipments   map[string]model.Shipment          // orderKey -> shipment
    queue       map[string]*memNotification        // id -> notification
    quotes      map[string][]model.Quote           // orderKey -> saved quotes
    now         func() time.Time
}

type memNotification struct {
    CarrierNotification
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
}

func NewMemory() *Memory {
    return &Memory{
        orders:      map[string]model.Order{},
        orderNotes:  map[string][]string{},
        warehouses:  map[string]model.Warehouse{},
        carriers:    map[string]model.Carrier{},
        carrierCode: map[string]string{},
        assignments: map[string]model.CarrierAssignment{},
        idemKeys:    map[string]bool{},
        shipments:   map[string]model.Shipment{},
        queue:       map[string]*memNotification{},
        quotes:      map[string][]model.Quote{},
        now:         time.Now,
    }
}

func orderKey(tenantID, orderID string) string { return tenantID + "|" + orderID }

func (m *Memory) CreateOrder(ctx context.Context, o model.Order) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if o.ID == "" { o.ID = uuid.New().String() }
    if o.Status == "" { o.Status = model.OrderCreated }
    m.orders[orderKey(o.TenantID, o.ID)] = o
    return nil
}

func (m *Memory) GetOrder(ctx context.Context, tenantID, orderID string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderKey(tenantID, orderID)]
    if !ok { return model.Order{}, ErrNotFound }
    return o, nil
}

func (m *Memory) SetOrderStatus(ctx context.Context, tenantID, orderID string, status model.OrderStatus, note string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    k := orderKey(tenantID, orderID)
    o, ok := m.orders[k]
    if !ok { return ErrNotFound }
    o.Status = status
    m.orders[k] = o
    if note != "" { m.orderNotes[k] = append(m.orderNotes[k], note) }
    return nil
}

func (m *Memory) GetWarehouse(ctx context.Context, tenantID, id string) (model.Warehouse, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    w, ok := m.warehouses[tenantID+"|"+id]
    if !ok { return model.Warehouse{}, ErrNotFound }
    return w, nil
}

func (m *Memory) UpsertWarehouse(ctx context.Context, tenantID string, w model.Warehouse) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if w.ID == "" { w.ID = uuid.New().String() }
    m.warehouses[tenantID+"|"+w.ID] = w
    return nil
}

func (m *Memory) ListCarriers(ctx context.Context, tenantID string) ([]model.Carrier, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Carrier{}
    for _, c := range m.carriers {
        if c.TenantID == tenantID { out = append(out, c) }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ReliabilityScore > out[j].ReliabilityScore })
    return out, nil
}

func (m *Memory) UpsertCarrier(ctx context.Context, c model.Carrier) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if c.ID == "" { c.ID = uuid.New().String() }
    m.carriers[c.ID] = c
    m.carrierCode[c.TenantID+"|"+c.Code] = c.ID
    return nil
}

func (m *Memory) EligibleCarriers(ctx context.Context, tenantID string, serviceType model.ServiceType, exclude []string, limit int) ([]model.Carrier, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    skip := map[string]bool{}
    for _, id := range exclude { skip[id] = true }
    out := []model.Carrier{}
    for _, c := range m.carriers {
        if c.TenantID != tenantID || !c.IsActive || c.Availability != model.CarrierAvailable { continue }
        if skip[c.ID] || !c.Serves(serviceType) { continue }
        out = append(out, c)
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].ReliabilityScore != out[j].ReliabilityScore {
            return out[i].ReliabilityScore > out[j].ReliabilityScore
        }
        return out[i].ID < out[j].ID
    })
    if limit > 0 && len(out) > limit { out = out[:limit] }
    return out, nil
}

func (m *Memory) SetCarrierAvailability(ctx context.Context, tenantID, code string, st model.CarrierAvailability, at time.Time) (model.Carrier, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id, ok := m.carrierCode[tenantID+"|"+code]
    if !ok { return model.Carrier{}, ErrNotFound }
    c := m.carriers[id]
    c.Availability = st
    if st == model.CarrierAvailable {
        t := at
        c.AvailableSince = &t
    }
    m.carriers[id] = c
    return c, nil
}

func (m *Memory) CarriersAvailableSince(ctx context.Context, since time.Time) ([]model.Carrier, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Carrier{}
    for _, c := range m.carriers {
        if c.Availability == model.CarrierAvailable && c.AvailableSince != nil && c.AvailableSince.After(since) {
            out = append(out, c)
        }
    }
    return out, nil
}

func (m *Memory) CreateAssignmentBatch(ctx context.Context, tenantID, orderID string, assignments []model.CarrierAssignment, orderStatus model.OrderStatus) error {
    m.mu.Lock(); defer m.mu.Unlock()
    k := orderKey(tenantID, orderID)
    o, ok := m.orders[k]
    if !ok { return ErrNotFound }
    // All-or-nothing: validate keys before touching state.
    for _, a := range assignments {
        if m.idemKeys[a.IdempotencyKey] { return ErrStatusConflict }
    }
    for _, a := range assignments {
        m.assignments[a.ID] = a
        m.idemKeys[a.IdempotencyKey] = true
    }
    o.Status = orderStatus
    m.orders[k] = o
    return nil
}

func (m *Memory) GetAssignment(ctx context.Context, tenantID, id string) (model.CarrierAssignment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    a, ok := m.assignments[id]
    if !ok || a.TenantID != tenantID { return model.CarrierAssignment{}, ErrNotFound }
    return a, nil
}

func (m *Memory) DistinctCarriersTried(ctx context.Context, tenantID, orderID string) (int, []string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    seen := map[string]bool{}
    ids := []string{}
    for _, a := range m.assignments {
        if a.TenantID == tenantID && a.OrderID == orderID && !seen[a.CarrierID] {
            seen[a.CarrierID] = true
            ids = append(ids, a.CarrierID)
        }
    }
    sort.Strings(ids)
    return len(ids), ids, nil
}

func (m *Memory) TransitionAssignment(ctx context.Context, tenantID, id string, from, to model.AssignmentStatus, upd AssignmentUpdate) (model.CarrierAssignment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    a, ok := m.assignments[id]
    if !ok || a.TenantID != tenantID { return model.CarrierAssignment{}, ErrNotFound }
    if a.Status != from || !from.CanTransition(to) { return a, ErrStatusConflict }
    a.Status = to
    a.UpdatedAt = m.now()
    if upd.RejectReason != "" { a.RejectReason = upd.RejectReason }
    if upd.ExpiresAt != nil { a.ExpiresAt = *upd.ExpiresAt }
    m.assignments[id] = a
    return a, nil
}

func (m *Memory) AcceptAssignment(ctx context.Context, tenantID, assignmentID, carrierID string, acceptance []byte, shipment model.Shipment) (model.CarrierAssignment, model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    a, ok := m.assignments[assignmentID]
    if !ok || a.TenantID != tenantID {
        return model.CarrierAssignment{}, model.Shipment{}, ErrNotFound
    }
    if a.CarrierID != carrierID {
        owner := m.carriers[a.CarrierID]
        return a, model.Shipment{}, &OwnershipError{AssignmentID: assignmentID, OwnerID: a.CarrierID, OwnerName: owner.Name}
    }
    if a.Status != model.AssignmentPending {
        return a, model.Shipment{}, ErrAlreadyDecided
    }
    a.Status = model.AssignmentAccepted
    a.AcceptancePayload = acceptance
    a.UpdatedAt = m.now()
    m.assignments[assignmentID] = a

    sk := orderKey(tenantID, a.OrderID)
    if existing, ok := m.shipments[sk]; ok {
        // One shipment per order; keep the first.
        return a, existing, nil
    }
    if shipment.ID == "" { shipment.ID = uuid.New().String() }
    m.shipments[sk] = shipment

    o := m.orders[sk]
    o.Status = model.OrderReadyToShip
    o.CarrierID = carrierID
    m.orders[sk] = o
    return a, shipment, nil
}

func (m *Memory) PendingAssignmentsForCarrier(ctx context.Context, tenantID, carrierID string) ([]model.CarrierAssignment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.CarrierAssignment{}
    for _, a := range m.assignments {
        if a.TenantID == tenantID && a.CarrierID == carrierID && a.Status == model.AssignmentPending {
            out = append(out, a)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
    return out, nil
}

func (m *Memory) ExpiredPendingAssignments(ctx context.Context, now time.Time, limit int) ([]model.CarrierAssignment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.CarrierAssignment{}
    for _, a := range m.assignments {
        if a.Status != model.AssignmentPending || !a.ExpiresAt.Before(now) { continue }
        o, ok := m.orders[orderKey(a.TenantID, a.OrderID)]
        if !ok || !o.Status.Active() { continue }
        out = append(out, a)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
    if limit > 0 && len(out) > limit { out = out[:limit] }
    return out, nil
}

func (m *Memory) BusyAssignmentsForCarrier(ctx context.Context, carrierID string, limit int) ([]model.CarrierAssignment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.CarrierAssignment{}
    for _, a := range m.assignments {
        if a.CarrierID != carrierID || a.Status != model.AssignmentBusy { continue }
        o, ok := m.orders[orderKey(a.TenantID, a.OrderID)]
        if !ok || !o.Status.Active() { continue }
        out = append(out, a)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
    if limit > 0 && len(out) > limit { out = out[:limit] }
    return out, nil
}

func (m *Memory) OrdersAwaitingRetry(ctx context.Context, limit int) ([]OrderRef, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    type tally struct {
        live   bool
        failed bool
    }
    byOrder := map[OrderRef]*tally{}
    for _, a := range m.assignments {
        ref := OrderRef{TenantID: a.TenantID, OrderID: a.OrderID}
        t := byOrder[ref]
        if t == nil { t = &tally{}; byOrder[ref] = t }
        switch a.Status {
        case model.AssignmentPending, model.AssignmentAccepted:
            t.live = true
        case model.AssignmentRejected, model.AssignmentExpired, model.AssignmentBusy:
            t.failed = true
        }
    }
    out := []OrderRef{}
    for ref, t := range byOrder {
        if t.live || !t.failed { continue }
        o, ok := m.orders[orderKey(ref.TenantID, ref.OrderID)]
        if !ok || !o.Status.Active() || o.Status == model.OrderOnHold { continue }
        out = append(out, ref)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
    if limit > 0 && len(out) > limit { out = out[:limit] }
    return out, nil
}

func (m *Memory) GetShipmentByOrder(ctx context.Context, tenantID, orderID string) (model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.shipments[orderKey(tenantID, orderID)]
    if !ok { return model.Shipment{}, ErrNotFound }
    return s, nil
}

func (m *Memory) EnqueueNotification(ctx context.Context, n CarrierNotification) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if n.ID == "" { n.ID = uuid.New().String() }
    n.Status = "pending"
    m.queue[n.ID] = &memNotification{CarrierNotification: n, NextAttemptAt: m.now()}
    return n.ID, nil
}

func (m *Memory) FetchDueNotifications(ctx context.Context, limit int) ([]CarrierNotification, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := m.now()
    out := []CarrierNotification{}
    for _, n := range m.queue {
        if (n.Status == "pending" || n.Status == "retry") && !n.NextAttemptAt.After(now) {
            out = append(out, n.CarrierNotification)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    if limit > 0 && len(out) > limit { out = out[:limit] }
    return out, nil
}

func (m *Memory) MarkNotification(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    n, ok := m.queue[id]
    if !ok { return ErrNotFound }
    n.Attempts++
    n.LastError = lastError
    n.ResponseCode = responseCode
    n.LatencyMs = latencyMs
    if success {
        n.Status = "delivered"
    } else {
        n.Status = "retry"
        if nextAttemptAt != nil { n.NextAttemptAt = *nextAttemptAt }
    }
    return nil
}

func (m *Memory) FailNotification(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    n, ok := m.queue[id]
    if !ok { return ErrNotFound }
    n.Attempts++
    n.Status = "failed"
    n.LastError = lastError
    n.ResponseCode = responseCode
    n.LatencyMs = latencyMs
    return nil
}

func (m *Memory) SaveQuoteRun(ctx context.Context, tenantID, orderID string, quotes []model.Quote) error {
    m.mu.Lock(); defer m.mu.Unlock()
    k := orderKey(tenantID, orderID)
    m.quotes[k] = append(m.quotes[k], quotes...)
    return nil
}

func (m *Memory) ListQuoteRuns(ctx context.Context, tenantID, orderID string) ([]model.Quote, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    return append([]model.Quote(nil), m.quotes[orderKey(tenantID, orderID)]...), nil
}

// OrderNotes returns audit notes recorded against an order. Test hook.
func (m *Memory) OrderNotes(tenantID, orderID string) []string {
    m.mu.Lock(); defer m.mu.Unlock()
    return append([]string(nil), m.orderNotes[orderKey(tenantID, orderID)]...)
}
