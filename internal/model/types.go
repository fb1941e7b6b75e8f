package model

import (
    "encoding/json"
    "time"
)

// Order lifecycle. Only the orchestrator and the retry scheduler advance it.
type OrderStatus string

const (
    OrderCreated        OrderStatus = "created"
    OrderPendingCarrier OrderStatus = "pending_carrier_assignment"
    OrderReadyToShip    OrderStatus = "ready_to_ship"
    OrderOnHold         OrderStatus = "on_hold"
    OrderShipped        OrderStatus = "shipped"
    OrderDelivered      OrderStatus = "delivered"
    OrderCancelled      OrderStatus = "cancelled"
)

// Active reports whether the order can still receive carrier batches.
func (s OrderStatus) Active() bool {
    switch s {
    case OrderShipped, OrderDelivered, OrderCancelled:
        return false
    }
    return true
}

type ServiceType string

const (
    ServiceExpress  ServiceType = "express"
    ServiceStandard ServiceType = "standard"
    ServiceBulk     ServiceType = "bulk"
)

// AssignmentStatus is the per-assignment state machine.
// pending -> accepted | rejected | busy | expired | cancelled
// busy    -> pending (carrier came back online)
// Everything else is terminal.
type AssignmentStatus string

const (
    AssignmentPending   AssignmentStatus = "pending"
    AssignmentAccepted  AssignmentStatus = "accepted"
    AssignmentRejected  AssignmentStatus = "rejected"
    AssignmentBusy      AssignmentStatus = "busy"
    AssignmentExpired   AssignmentStatus = "expired"
    AssignmentCancelled AssignmentStatus = "cancelled"
)

var assignmentTransitions = map[AssignmentStatus]map[AssignmentStatus]bool{
    AssignmentPending: {
        AssignmentAccepted:  true,
        AssignmentRejected:  true,
        AssignmentBusy:      true,
        AssignmentExpired:   true,
        AssignmentCancelled: true,
    },
    AssignmentBusy: {
        AssignmentPending: true,
    },
}

// CanTransition reports whether s -> to is a legal move.
func (s AssignmentStatus) CanTransition(to AssignmentStatus) bool {
    return assignmentTransitions[s][to]
}

// Terminal reports whether the assignment can never change again.
func (s AssignmentStatus) Terminal() bool {
    return len(assignmentTransitions[s]) == 0
}

type CarrierAvailability string

const (
    CarrierAvailable CarrierAvailability = "available"
    CarrierIsBusy    CarrierAvailability = "busy"
    CarrierOffline   CarrierAvailability = "offline"
)

type Address struct {
    Name       string  `json:"name,omitempty"`
    Line1      string  `json:"line1"`
    Line2      string  `json:"line2,omitempty"`
    City       string  `json:"city"`
    State      string  `json:"state,omitempty"`
    PostalCode string  `json:"postalCode"`
    Country    string  `json:"country,omitempty"`
    Phone      string  `json:"phone,omitempty"`
    Lat        float64 `json:"lat,omitempty"`
    Lng        float64 `json:"lng,omitempty"`
}

type Item struct {
    SKU           string  `json:"sku"`
    Quantity      int     `json:"quantity"`
    WeightKg      float64 `json:"weightKg"`
    LengthCm      float64 `json:"lengthCm,omitempty"`
    WidthCm       float64 `json:"widthCm,omitempty"`
    HeightCm      float64 `json:"heightCm,omitempty"`
    UnitValue     float64 `json:"unitValue,omitempty"`
    DeclaredValue float64 `json:"declaredValue,omitempty"`
    Fragile       bool    `json:"fragile,omitempty"`
    Hazardous     bool    `json:"hazardous,omitempty"`
    Perishable    bool    `json:"perishable,omitempty"`
    ColdStorage   bool    `json:"coldStorage,omitempty"`
    Insured       bool    `json:"insured,omitempty"`
}

type Order struct {
    ID              string      `json:"id"`
    TenantID        string      `json:"tenantId"`
    Priority        ServiceType `json:"priority"`
    Status          OrderStatus `json:"status"`
    WarehouseID     string      `json:"warehouseId,omitempty"`
    CarrierID       string      `json:"carrierId,omitempty"`
    ShippingAddress Address     `json:"shippingAddress"`
    Items           []Item      `json:"items"`
    Notes           string      `json:"notes,omitempty"`
}

type Warehouse struct {
    ID      string  `json:"id"`
    Code    string  `json:"code"`
    Name    string  `json:"name"`
    Address Address `json:"address"`
}

type Carrier struct {
    ID               string              `json:"id"`
    TenantID         string              `json:"tenantId"`
    Code             string              `json:"code"`
    Name             string              `json:"name"`
    ServiceType      string              `json:"serviceType"` // express|standard|bulk|all
    IsActive         bool                `json:"isActive"`
    Availability     CarrierAvailability `json:"availabilityStatus"`
    ReliabilityScore float64             `json:"reliabilityScore"`
    Endpoint         string              `json:"apiEndpoint,omitempty"`
    Secret           string              `json:"-"`
    AvailableSince   *time.Time          `json:"availableSince,omitempty"`
}

// Serves reports whether the carrier can take orders of the given priority.
func (c Carrier) Serves(st ServiceType) bool {
    return c.ServiceType == "all" || c.ServiceType == string(st)
}

type CarrierAssignment struct {
    ID                string           `json:"id"`
    TenantID          string           `json:"tenantId"`
    OrderID           string           `json:"orderId"`
    CarrierID         string           `json:"carrierId"`
    CarrierName       string           `json:"carrierName,omitempty"`
    ServiceType       ServiceType      `json:"serviceType"`
    Status            AssignmentStatus `json:"status"`
    Pickup            Address          `json:"pickup"`
    Delivery          Address          `json:"delivery"`
    RequestPayload    json.RawMessage  `json:"requestPayload,omitempty"`
    AcceptancePayload json.RawMessage  `json:"acceptancePayload,omitempty"`
    RejectReason      string           `json:"rejectReason,omitempty"`
    IdempotencyKey    string           `json:"idempotencyKey"`
    ExpiresAt         time.Time        `json:"expiresAt"`
    CreatedAt         time.Time        `json:"createdAt"`
    UpdatedAt         time.Time        `json:"updatedAt,omitempty"`
}

// Shipment is created exactly once per order, at acceptance time.
type Shipment struct {
    ID             string  `json:"id"`
    TenantID       string  `json:"tenantId"`
    OrderID        string  `json:"orderId"`
    AssignmentID   string  `json:"assignmentId"`
    CarrierID      string  `json:"carrierId"`
    TrackingNumber string  `json:"trackingNumber"`
    ItemType       string  `json:"itemType"` // most restrictive handling class across items
    TotalWeightKg  float64 `json:"totalWeightKg"`
    Fragile        bool    `json:"fragile,omitempty"`
    Hazardous      bool    `json:"hazardous,omitempty"`
    Perishable     bool    `json:"perishable,omitempty"`
    ColdStorage    bool    `json:"coldStorage,omitempty"`
    Status         string  `json:"status"`
}

// Quote is the per-carrier result of one quote-collection run.
type Quote struct {
    CarrierID       string  `json:"carrierId"`
    CarrierName     string  `json:"carrierName,omitempty"`
    Price           float64 `json:"price,omitempty"`
    Currency        string  `json:"currency,omitempty"`
    EstimatedDays   int     `json:"estimatedDays,omitempty"`
    Accepted        bool    `json:"accepted"`
    TimedOut        bool    `json:"timedOut,omitempty"`
    Reason          string  `json:"reason,omitempty"`
    WasRetried      bool    `json:"wasRetried,omitempty"`
    LatencyMs       int     `json:"latencyMs,omitempty"`
    Selected        bool    `json:"selected,omitempty"`
    SelectionReason string  `json:"selectionReason,omitempty"`
}

// CarrierAvailabilityUpdate is the inbound availability webhook body.
type CarrierAvailabilityUpdate struct {
    Code   string              `json:"code"`
    Status CarrierAvailability `json:"status"`
}
