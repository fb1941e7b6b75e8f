package payload

import (
    "context"
    "encoding/json"
    "time"

    "shipflow/internal/geo"
    "shipflow/internal/model"
    "shipflow/internal/pricing"
)

// Builder assembles the wire payload sent to a carrier and normalizes
// carrier responses.
type Builder struct {
    Pricing *pricing.Engine
    Geo     geo.Provider
    Expiry  time.Duration
}

func NewBuilder(p *pricing.Engine, g geo.Provider, expiry time.Duration) *Builder {
    if expiry <= 0 {
        expiry = 10 * time.Minute
    }
    return &Builder{Pricing: p, Geo: g, Expiry: expiry}
}

// defaultWarehouse is used when the order's warehouse cannot resolve an
// address. Availability over strictness: a request with a stand-in
// pickup is better than no request at all.
var defaultWarehouse = model.Warehouse{
    ID:   "wh_default",
    Code: "WH-MAIN",
    Name: "Main Fulfillment Center",
    Address: model.Address{
        Line1:      "Plot 12, Logistics Park",
        City:       "Gurugram",
        State:      "HR",
        PostalCode: "122001",
        Country:    "IN",
        Lat:        28.4595,
        Lng:        77.0266,
    },
}

// RequestPayload is the structured assignment request a carrier consumes.
type RequestPayload struct {
    AssignmentID string        `json:"assignmentId,omitempty"`
    OrderID      string        `json:"orderId"`
    ServiceType  model.ServiceType `json:"serviceType"`
    Pickup       model.Address `json:"pickup"`
    Delivery     model.Address `json:"delivery"`
    Shipment     ShipmentInfo  `json:"shipment"`
    Estimate     pricing.CostBreakdown `json:"estimate"`
    ExpiresAt    time.Time     `json:"expiresAt"`
    // Fields the carrier must echo back on acceptance.
    ResponseRequired []string `json:"responseRequired"`
}

type ShipmentInfo struct {
    Pieces           int      `json:"pieces"`
    TotalWeightKg    float64  `json:"totalWeightKg"`
    ChargeableKg     float64  `json:"chargeableKg"`
    DeclaredValue    float64  `json:"declaredValue,omitempty"`
    Fragile          bool     `json:"fragile,omitempty"`
    Hazardous        bool     `json:"hazardous,omitempty"`
    Perishable       bool     `json:"perishable,omitempty"`
    ColdStorage      bool     `json:"coldStorage,omitempty"`
    SpecialHandling  []string `json:"specialHandling,omitempty"`
}

// Acceptance is the normalized shape of a carrier's acceptance.
type Acceptance struct {
    Accepted      bool           `json:"accepted"`
    Pricing       map[string]any `json:"pricing,omitempty"`
    Delivery      map[string]any `json:"delivery,omitempty"`
    Tracking      string         `json:"tracking,omitempty"`
    Driver        map[string]any `json:"driver,omitempty"`
    TermsAccepted bool           `json:"termsAccepted"`
}

// Rejection is the normalized shape of a carrier's rejection.
type Rejection struct {
    Accepted           bool     `json:"accepted"`
    Reason             string   `json:"reason"`
    ReasonCode         string   `json:"reasonCode,omitempty"`
    Message            string   `json:"message,omitempty"`
    AlternativeOptions []string `json:"alternativeOptions,omitempty"`
}

// BuildRequestPayload aggregates order items into shipment totals,
// prices an estimate and stamps the expiry window.
func (b *Builder) BuildRequestPayload(ctx context.Context, order model.Order, wh model.Warehouse, carrier model.Carrier, serviceType model.ServiceType, now time.Time) RequestPayload {
    if wh.Address.Line1 == "" || wh.Address.PostalCode == "" {
        wh = defaultWarehouse
    }

    pieces := 0
    declared := 0.0
    var fragile, hazardous, perishable, cold bool
    handling := []string{}
    for _, it := range order.Items {
        qty := it.Quantity
        if qty <= 0 {
            qty = 1
        }
        pieces += qty
        declared += it.DeclaredValue
        if it.Fragile && !fragile {
            fragile = true
            handling = append(handling, "Handle with care: fragile contents")
        }
        if it.Hazardous && !hazardous {
            hazardous = true
            handling = append(handling, "Hazardous materials: certified handling required")
        }
        if it.Perishable && !perishable {
            perishable = true
            handling = append(handling, "Perishable goods: prioritize transit time")
        }
        if it.ColdStorage && !cold {
            cold = true
            handling = append(handling, "Cold chain: refrigerated transport required")
        }
    }

    distKm := geo.Resolve(ctx, b.Geo, wh.Address.Lat, wh.Address.Lng, order.ShippingAddress.Lat, order.ShippingAddress.Lng)
    estimate := b.Pricing.CalculateShippingCost(carrier.ID, order.Items, distKm, serviceType)
    wb := estimate.Weight

    return RequestPayload{
        OrderID:     order.ID,
        ServiceType: serviceType,
        Pickup:      wh.Address,
        Delivery:    order.ShippingAddress,
        Shipment: ShipmentInfo{
            Pieces:          pieces,
            TotalWeightKg:   wb.ActualWeight,
            ChargeableKg:    wb.ChargeableWeight,
            DeclaredValue:   declared,
            Fragile:         fragile,
            Hazardous:       hazardous,
            Perishable:      perishable,
            ColdStorage:     cold,
            SpecialHandling: handling,
        },
        Estimate:  estimate,
        ExpiresAt: now.Add(b.Expiry),
        ResponseRequired: []string{
            "pricing.totalAmount",
            "delivery.estimatedDays",
            "tracking",
            "termsAccepted",
        },
    }
}

// ParseAcceptance normalizes arbitrary carrier JSON. Optional fields
// are tolerated; driver stays nil when absent.
func ParseAcceptance(data []byte) Acceptance {
    var raw map[string]json.RawMessage
    _ = json.Unmarshal(data, &raw)
    acc := Acceptance{Accepted: true}
    if v, ok := raw["pricing"]; ok {
        _ = json.Unmarshal(v, &acc.Pricing)
    }
    if v, ok := raw["delivery"]; ok {
        _ = json.Unmarshal(v, &acc.Delivery)
    }
    if v, ok := raw["tracking"]; ok {
        _ = json.Unmarshal(v, &acc.Tracking)
    }
    if v, ok := raw["trackingNumber"]; ok && acc.Tracking == "" {
        _ = json.Unmarshal(v, &acc.Tracking)
    }
    if v, ok := raw["driver"]; ok {
        _ = json.Unmarshal(v, &acc.Driver)
    }
    if v, ok := raw["termsAccepted"]; ok {
        _ = json.Unmarshal(v, &acc.TermsAccepted)
    }
    return acc
}

// ParseRejection normalizes a carrier rejection body.
func ParseRejection(data []byte) Rejection {
    var raw struct {
        Reason             string   `json:"reason"`
        ReasonCode         string   `json:"reasonCode"`
        Code               string   `json:"code"`
        Message            string   `json:"message"`
        AlternativeOptions []string `json:"alternativeOptions"`
    }
    _ = json.Unmarshal(data, &raw)
    rej := Rejection{
        Accepted:           false,
        Reason:             raw.Reason,
        ReasonCode:         raw.ReasonCode,
        Message:            raw.Message,
        AlternativeOptions: raw.AlternativeOptions,
    }
    if rej.ReasonCode == "" {
        rej.ReasonCode = raw.Code
    }
    if rej.Reason == "" {
        rej.Reason = "unspecified"
    }
    return rej
}
