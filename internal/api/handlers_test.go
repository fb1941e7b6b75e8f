package api

import (
    "bytes"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"

    "shipflow/internal/model"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
    t.Helper()
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(method, path, bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    for k, v := range hdr { req.Header.Set(k, v) }
    h(rr, req)
    return rr
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func seedCarrier(t *testing.T, s *Server, id string, reliability float64) {
    t.Helper()
    body := []byte(`{"id":"` + id + `","code":"C-` + id + `","name":"Carrier ` + id + `","serviceType":"all","reliabilityScore":` + jsonFloat(reliability) + `}`)
    rr := doJSON(t, s.CarriersHandler, http.MethodPost, "/v1/carriers", body, nil)
    if rr.Code != http.StatusCreated { t.Fatalf("carrier upsert: got %d body=%s", rr.Code, rr.Body.String()) }
}

func jsonFloat(f float64) string {
    b, _ := json.Marshal(f)
    return string(b)
}

func seedOrder(t *testing.T, s *Server, id string) {
    t.Helper()
    body := []byte(`{"id":"` + id + `","priority":"standard","shippingAddress":{"line1":"1 Main St","city":"Springfield","postalCode":"62701"},"items":[{"sku":"SKU-1","quantity":2,"weightKg":3}]}`)
    rr := doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", body, nil)
    if rr.Code != http.StatusCreated { t.Fatalf("order create: got %d body=%s", rr.Code, rr.Body.String()) }
}

func TestOrderValidation(t *testing.T) {
    s := newTestServer(t)
    rr := doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", []byte(`{"items":[]}`), nil)
    if rr.Code != http.StatusBadRequest { t.Fatalf("empty items: got %d", rr.Code) }
    rr = doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders",
        []byte(`{"shippingAddress":{"line1":"x","city":"y"},"items":[{"sku":"A","quantity":1,"weightKg":1}],"priority":"sameday"}`), nil)
    if rr.Code != http.StatusBadRequest { t.Fatalf("bad priority: got %d", rr.Code) }
}

func TestAssignmentLifecycleOverHTTP(t *testing.T) {
    s := newTestServer(t)
    seedCarrier(t, s, "c1", 4.8)
    seedCarrier(t, s, "c2", 3.1)
    seedOrder(t, s, "o1")

    // Request a batch
    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/o1/assignments", nil, nil)
    if rr.Code != http.StatusCreated { t.Fatalf("request batch: got %d body=%s", rr.Code, rr.Body.String()) }
    var batch struct {
        Assignments []model.CarrierAssignment `json:"assignments"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &batch); err != nil { t.Fatal(err) }
    if len(batch.Assignments) != 2 { t.Fatalf("want 2 assignments, got %d", len(batch.Assignments)) }
    if batch.Assignments[0].CarrierID != "c1" { t.Fatalf("highest reliability first, got %s", batch.Assignments[0].CarrierID) }

    // Wrong carrier accept is forbidden and names the owner
    a := batch.Assignments[0]
    rr = doJSON(t, s.AssignmentByIDHandler, http.MethodPost, "/v1/assignments/"+a.ID+"/accept", []byte(`{}`),
        map[string]string{"X-Carrier-Id": "c2", "X-Role": "carrier"})
    if rr.Code != http.StatusForbidden { t.Fatalf("wrong carrier: got %d body=%s", rr.Code, rr.Body.String()) }
    if !bytes.Contains(rr.Body.Bytes(), []byte("Carrier c1")) {
        t.Fatalf("owner not named: %s", rr.Body.String())
    }

    // Owner accepts; shipment comes back
    rr = doJSON(t, s.AssignmentByIDHandler, http.MethodPost, "/v1/assignments/"+a.ID+"/accept",
        []byte(`{"tracking":"TRK-XYZ"}`), map[string]string{"X-Carrier-Id": "c1", "X-Role": "carrier"})
    if rr.Code != http.StatusOK { t.Fatalf("accept: got %d body=%s", rr.Code, rr.Body.String()) }
    var acc struct {
        Shipment model.Shipment `json:"shipment"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &acc); err != nil { t.Fatal(err) }
    if acc.Shipment.TrackingNumber != "TRK-XYZ" { t.Fatalf("tracking: got %s", acc.Shipment.TrackingNumber) }

    // Second accept of the same assignment conflicts
    rr = doJSON(t, s.AssignmentByIDHandler, http.MethodPost, "/v1/assignments/"+a.ID+"/accept",
        []byte(`{}`), map[string]string{"X-Carrier-Id": "c1", "X-Role": "carrier"})
    if rr.Code != http.StatusConflict { t.Fatalf("re-accept: got %d", rr.Code) }

    // Shipment lookup by order
    rr = doJSON(t, s.ShipmentByOrderHandler, http.MethodGet, "/v1/shipments/o1", nil, nil)
    if rr.Code != http.StatusOK { t.Fatalf("shipment: got %d", rr.Code) }
}

func TestRejectAndCarrierPoll(t *testing.T) {
    s := newTestServer(t)
    seedCarrier(t, s, "c1", 4.0)
    seedOrder(t, s, "o1")
    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/o1/assignments", nil, nil)
    if rr.Code != http.StatusCreated { t.Fatalf("request batch: got %d", rr.Code) }

    // Carrier sees its pending assignment
    rr = doJSON(t, s.CarrierByIDHandler, http.MethodGet, "/v1/carriers/c1/assignments", nil, nil)
    if rr.Code != http.StatusOK { t.Fatalf("poll: got %d", rr.Code) }
    var poll struct {
        Items []model.CarrierAssignment `json:"items"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &poll); err != nil { t.Fatal(err) }
    if len(poll.Items) != 1 { t.Fatalf("want 1 pending, got %d", len(poll.Items)) }

    // Operator rejects on the carrier's behalf via the body
    a := poll.Items[0]
    rr = doJSON(t, s.AssignmentByIDHandler, http.MethodPost, "/v1/assignments/"+a.ID+"/reject",
        []byte(`{"carrierId":"c1","reason":"no capacity"}`), nil)
    if rr.Code != http.StatusOK { t.Fatalf("reject: got %d body=%s", rr.Code, rr.Body.String()) }
    var rej model.CarrierAssignment
    if err := json.Unmarshal(rr.Body.Bytes(), &rej); err != nil { t.Fatal(err) }
    if rej.Status != model.AssignmentRejected || rej.RejectReason != "no capacity" {
        t.Fatalf("got %s / %q", rej.Status, rej.RejectReason)
    }
}

func TestAvailabilityWebhookReportsPending(t *testing.T) {
    s := newTestServer(t)
    seedCarrier(t, s, "c1", 4.0)
    seedOrder(t, s, "o1")
    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/o1/assignments", nil, nil)
    if rr.Code != http.StatusCreated { t.Fatalf("request batch: got %d", rr.Code) }

    rr = doJSON(t, s.CarrierAvailabilityHandler, http.MethodPost, "/v1/carriers/availability",
        []byte(`{"code":"C-c1","status":"available"}`), nil)
    if rr.Code != http.StatusOK { t.Fatalf("availability: got %d body=%s", rr.Code, rr.Body.String()) }
    var out struct {
        Pending int `json:"pendingAssignments"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil { t.Fatal(err) }
    if out.Pending != 1 { t.Fatalf("pending: got %d", out.Pending) }

    rr = doJSON(t, s.CarrierAvailabilityHandler, http.MethodPost, "/v1/carriers/availability",
        []byte(`{"code":"C-c1","status":"paused"}`), nil)
    if rr.Code != http.StatusBadRequest { t.Fatalf("bad status: got %d", rr.Code) }
}

func TestQuotesWithoutReachableCarriers(t *testing.T) {
    s := newTestServer(t)
    // Carrier without an endpoint cannot quote
    seedCarrier(t, s, "c1", 4.0)
    seedOrder(t, s, "o1")
    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/o1/quotes", nil, nil)
    if rr.Code != http.StatusServiceUnavailable { t.Fatalf("quotes: got %d body=%s", rr.Code, rr.Body.String()) }
    if !bytes.Contains(rr.Body.Bytes(), []byte("no carriers available")) {
        t.Fatalf("detail missing: %s", rr.Body.String())
    }
}

func TestAssignmentBatchForMissingOrder(t *testing.T) {
    s := newTestServer(t)
    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/nope/assignments", nil, nil)
    if rr.Code != http.StatusNotFound { t.Fatalf("missing order: got %d", rr.Code) }
}

func TestCarrierUpsertRequiresAdmin(t *testing.T) {
    s := newTestServer(t)
    rr := doJSON(t, s.CarriersHandler, http.MethodPost, "/v1/carriers",
        []byte(`{"code":"C-X","name":"X"}`), map[string]string{"X-Role": "carrier", "X-Carrier-Id": "cx"})
    if rr.Code != http.StatusForbidden { t.Fatalf("non-admin upsert: got %d", rr.Code) }
}
