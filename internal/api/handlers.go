package api

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"

    "shipflow/internal/assign"
    "shipflow/internal/model"
    "shipflow/internal/quote"
    "shipflow/internal/store"
)

// writeDomainErr maps the domain error taxonomy onto problem responses.
func writeDomainErr(w http.ResponseWriter, r *http.Request, err error, title string) {
    var oe *store.OwnershipError
    var nq *quote.NoQuotesError
    switch {
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
    case errors.As(err, &oe):
        writeProblem(w, http.StatusForbidden, "Forbidden", oe.Error(), r.URL.Path)
    case errors.Is(err, store.ErrAlreadyDecided):
        writeProblem(w, http.StatusConflict, "Already decided", err.Error(), r.URL.Path)
    case errors.Is(err, store.ErrStatusConflict):
        writeProblem(w, http.StatusConflict, "Status conflict", err.Error(), r.URL.Path)
    case errors.Is(err, assign.ErrMaxAttempts):
        writeProblem(w, http.StatusUnprocessableEntity, "Max attempts exceeded", err.Error(), r.URL.Path)
    case errors.Is(err, assign.ErrOrderInactive):
        writeProblem(w, http.StatusConflict, "Order inactive", err.Error(), r.URL.Path)
    case errors.Is(err, quote.ErrLockHeld):
        writeProblem(w, http.StatusConflict, "Conflict", err.Error(), r.URL.Path)
    case errors.As(err, &nq):
        writeJSON(w, http.StatusServiceUnavailable, map[string]any{
            "type":       "about:blank",
            "title":      "No carriers available",
            "status":     http.StatusServiceUnavailable,
            "detail":     err.Error(),
            "instance":   r.URL.Path,
            "rejections": nq.Rejections,
        })
    default:
        writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
    }
}

// OrdersHandler handles POST /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    _, tenant := s.withTenant(r)
    var o model.Order
    if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOrderIn(&o); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
        return
    }
    o.TenantID = tenant
    if o.ID == "" { o.ID = uuid.New().String() }
    if o.Priority == "" { o.Priority = model.ServiceStandard }
    if o.Status == "" { o.Status = model.OrderCreated }
    if err := s.Store.CreateOrder(r.Context(), o); err != nil {
        writeDomainErr(w, r, err, "Create order failed")
        return
    }
    writeJSON(w, http.StatusCreated, o)
}

// OrderByIDHandler handles /v1/orders/{id} and its subresources:
//   GET  /v1/orders/{id}
//   POST /v1/orders/{id}/assignments
//   POST /v1/orders/{id}/quotes
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
    parts := strings.Split(rest, "/")
    id := parts[0]
    if id == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    _, tenant := s.withTenant(r)
    if len(parts) == 1 {
        if r.Method != http.MethodGet {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        o, err := s.Store.GetOrder(r.Context(), tenant, id)
        if err != nil {
            writeDomainErr(w, r, err, "Get order failed")
            return
        }
        writeJSON(w, http.StatusOK, o)
        return
    }
    switch parts[1] {
    case "assignments":
        s.requestAssignments(w, r, tenant, id)
    case "quotes":
        s.collectQuotes(w, r, tenant, id)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

func (s *Server) requestAssignments(w http.ResponseWriter, r *http.Request, tenant, orderID string) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    res, err := s.Orch.RequestCarrierAssignment(r.Context(), tenant, orderID, "request")
    if err != nil {
        writeDomainErr(w, r, err, "Request assignments failed")
        return
    }
    for _, a := range res.Assignments {
        s.Broker.Publish(orderID, Event{Type: "assignment.requested", Data: map[string]any{
            "assignmentId": a.ID, "carrierId": a.CarrierID, "carrierName": a.CarrierName, "expiresAt": a.ExpiresAt,
        }})
    }
    writeJSON(w, http.StatusCreated, res)
}

// collectQuotes runs the synchronous quote workflow; the response only
// lands after the full timeout/retry window.
func (s *Server) collectQuotes(w http.ResponseWriter, r *http.Request, tenant, orderID string) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    res, err := s.Collector.CollectQuotes(r.Context(), tenant, orderID)
    if err != nil {
        writeDomainErr(w, r, err, "Quote collection failed")
        return
    }
    s.Broker.Publish(orderID, Event{Type: "quote.selected", Data: map[string]any{
        "carrierId": res.Selected.CarrierID, "price": res.Selected.Price, "reason": res.Selected.SelectionReason,
    }})
    writeJSON(w, http.StatusOK, res)
}

// AssignmentByIDHandler handles /v1/assignments/{id} and its actions:
//   GET  /v1/assignments/{id}
//   POST /v1/assignments/{id}/accept
//   POST /v1/assignments/{id}/reject
//   POST /v1/assignments/{id}/busy
func (s *Server) AssignmentByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/assignments/")
    parts := strings.Split(rest, "/")
    id := parts[0]
    if id == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    p := s.getPrincipal(r)
    _, tenant := s.withTenant(r)
    if len(parts) == 1 {
        if r.Method != http.MethodGet {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        a, err := s.Store.GetAssignment(r.Context(), tenant, id)
        if err != nil {
            writeDomainErr(w, r, err, "Get assignment failed")
            return
        }
        writeJSON(w, http.StatusOK, a)
        return
    }
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
    carrierID := p.carrierFor(carrierFromBody(body))
    if carrierID == "" {
        writeProblem(w, http.StatusBadRequest, "Carrier required", "carrier identity missing; send a carrier token or carrierId", r.URL.Path)
        return
    }
    switch parts[1] {
    case "accept":
        a, sh, err := s.Orch.AcceptAssignment(r.Context(), tenant, id, carrierID, body)
        if err != nil {
            writeDomainErr(w, r, err, "Accept failed")
            return
        }
        s.Broker.Publish(a.OrderID, Event{Type: "assignment.accepted", Data: map[string]any{
            "assignmentId": a.ID, "carrierId": carrierID, "trackingNumber": sh.TrackingNumber,
        }})
        writeJSON(w, http.StatusOK, map[string]any{"assignment": a, "shipment": sh})
    case "reject":
        a, err := s.Orch.RejectAssignment(r.Context(), tenant, id, carrierID, body)
        if err != nil {
            writeDomainErr(w, r, err, "Reject failed")
            return
        }
        s.Broker.Publish(a.OrderID, Event{Type: "assignment.rejected", Data: map[string]any{
            "assignmentId": a.ID, "carrierId": carrierID, "reason": a.RejectReason,
        }})
        writeJSON(w, http.StatusOK, a)
    case "busy":
        a, err := s.Orch.MarkBusy(r.Context(), tenant, id, carrierID)
        if err != nil {
            writeDomainErr(w, r, err, "Mark busy failed")
            return
        }
        s.Broker.Publish(a.OrderID, Event{Type: "assignment.busy", Data: map[string]any{
            "assignmentId": a.ID, "carrierId": carrierID,
        }})
        writeJSON(w, http.StatusOK, a)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

// carrierFromBody pulls an explicit carrierId out of an action body so
// operator tooling can act on a carrier's behalf.
func carrierFromBody(body []byte) string {
    var in struct {
        CarrierID string `json:"carrierId"`
    }
    _ = json.Unmarshal(body, &in)
    return in.CarrierID
}

// CarriersHandler handles GET/POST /v1/carriers
func (s *Server) CarriersHandler(w http.ResponseWriter, r *http.Request) {
    _, tenant := s.withTenant(r)
    switch r.Method {
    case http.MethodGet:
        items, err := s.Store.ListCarriers(r.Context(), tenant)
        if err != nil {
            writeDomainErr(w, r, err, "List carriers failed")
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsAdmin() {
            writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
            return
        }
        var c model.Carrier
        if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateCarrierIn(&c); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid carrier", err.Error(), r.URL.Path)
            return
        }
        c.TenantID = tenant
        if c.ID == "" { c.ID = uuid.New().String() }
        if c.ServiceType == "" { c.ServiceType = "all" }
        if c.Availability == "" { c.Availability = model.CarrierAvailable }
        c.IsActive = true
        if err := s.Store.UpsertCarrier(r.Context(), c); err != nil {
            writeDomainErr(w, r, err, "Upsert carrier failed")
            return
        }
        writeJSON(w, http.StatusCreated, c)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// CarrierAvailabilityHandler handles the inbound availability webhook:
// POST /v1/carriers/availability with {code, status}.
func (s *Server) CarrierAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    _, tenant := s.withTenant(r)
    var upd model.CarrierAvailabilityUpdate
    if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateAvailabilityUpdate(&upd); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid availability update", err.Error(), r.URL.Path)
        return
    }
    if upd.Status == model.CarrierAvailable {
        c, pending, err := s.Orch.NotifyCarrierOfPendingAssignments(r.Context(), tenant, upd.Code)
        if err != nil {
            writeDomainErr(w, r, err, "Availability update failed")
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"carrier": c, "pendingAssignments": pending})
        return
    }
    c, err := s.Store.SetCarrierAvailability(r.Context(), tenant, upd.Code, upd.Status, time.Now())
    if err != nil {
        writeDomainErr(w, r, err, "Availability update failed")
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"carrier": c})
}

// CarrierByIDHandler handles GET /v1/carriers/{id}/assignments
func (s *Server) CarrierByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/carriers/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[1] != "assignments" || parts[0] == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    _, tenant := s.withTenant(r)
    items, err := s.Orch.PendingAssignments(r.Context(), tenant, parts[0])
    if err != nil {
        writeDomainErr(w, r, err, "List pending assignments failed")
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ShipmentByOrderHandler handles GET /v1/shipments/{orderId}
func (s *Server) ShipmentByOrderHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    orderID := strings.TrimPrefix(r.URL.Path, "/v1/shipments/")
    if orderID == "" || strings.Contains(orderID, "/") {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    _, tenant := s.withTenant(r)
    sh, err := s.Store.GetShipmentByOrder(r.Context(), tenant, orderID)
    if err != nil {
        writeDomainErr(w, r, err, "Get shipment failed")
        return
    }
    writeJSON(w, http.StatusOK, sh)
}

// WarehousesHandler handles POST /v1/warehouses
func (s *Server) WarehousesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
        return
    }
    _, tenant := s.withTenant(r)
    var wh model.Warehouse
    if err := json.NewDecoder(r.Body).Decode(&wh); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := s.Store.UpsertWarehouse(r.Context(), tenant, wh); err != nil {
        writeDomainErr(w, r, err, "Upsert warehouse failed")
        return
    }
    writeJSON(w, http.StatusCreated, wh)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
