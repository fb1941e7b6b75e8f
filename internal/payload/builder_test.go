package payload

import (
    "context"
    "testing"
    "time"

    "shipflow/internal/config"
    "shipflow/internal/model"
    "shipflow/internal/pricing"
)

func testBuilder() *Builder {
    return NewBuilder(pricing.NewEngine(config.Default()), nil, 10*time.Minute)
}

func sampleOrder() model.Order {
    return model.Order{
        ID:       "ord_1",
        TenantID: "t_test",
        Priority: model.ServiceStandard,
        ShippingAddress: model.Address{
            Line1: "14 Park St", City: "Kolkata", PostalCode: "700016", Lat: 22.55, Lng: 88.35,
        },
        Items: []model.Item{
            {SKU: "A", Quantity: 2, WeightKg: 3, LengthCm: 20, WidthCm: 20, HeightCm: 20, Fragile: true, DeclaredValue: 200},
            {SKU: "B", Quantity: 1, WeightKg: 1, ColdStorage: true},
        },
    }
}

func sampleWarehouse() model.Warehouse {
    return model.Warehouse{
        ID: "wh_1", Code: "WH-KOL",
        Address: model.Address{Line1: "Dock 3", City: "Kolkata", PostalCode: "700088", Lat: 22.52, Lng: 88.30},
    }
}

func TestBuildRequestPayloadAggregates(t *testing.T) {
    b := testBuilder()
    now := time.Now()
    p := b.BuildRequestPayload(context.Background(), sampleOrder(), sampleWarehouse(), model.Carrier{ID: "car_1"}, model.ServiceStandard, now)

    if p.Shipment.Pieces != 3 {
        t.Fatalf("pieces: want 3, got %d", p.Shipment.Pieces)
    }
    if !p.Shipment.Fragile || !p.Shipment.ColdStorage {
        t.Fatalf("handling flags not OR'd: %+v", p.Shipment)
    }
    if p.Shipment.Hazardous {
        t.Fatalf("hazardous should be false")
    }
    if len(p.Shipment.SpecialHandling) != 2 {
        t.Fatalf("handling strings: want 2, got %v", p.Shipment.SpecialHandling)
    }
    if p.Shipment.TotalWeightKg != 7 {
        t.Fatalf("total weight: want 7, got %v", p.Shipment.TotalWeightKg)
    }
    if p.Estimate.Total <= 0 {
        t.Fatalf("estimate missing: %+v", p.Estimate)
    }
    if got := p.ExpiresAt.Sub(now); got != 10*time.Minute {
        t.Fatalf("expiry: want 10m, got %v", got)
    }
    if len(p.ResponseRequired) == 0 {
        t.Fatalf("responseRequired must be declared")
    }
}

func TestBuildRequestPayloadDefaultWarehouse(t *testing.T) {
    b := testBuilder()
    p := b.BuildRequestPayload(context.Background(), sampleOrder(), model.Warehouse{}, model.Carrier{}, model.ServiceStandard, time.Now())
    if p.Pickup.Line1 == "" || p.Pickup.PostalCode == "" {
        t.Fatalf("default warehouse not applied: %+v", p.Pickup)
    }
}

func TestParseAcceptanceTolerant(t *testing.T) {
    acc := ParseAcceptance([]byte(`{"pricing":{"totalAmount":420.5},"tracking":"TRK123","termsAccepted":true}`))
    if !acc.Accepted || !acc.TermsAccepted {
        t.Fatalf("flags: %+v", acc)
    }
    if acc.Tracking != "TRK123" {
        t.Fatalf("tracking: got %q", acc.Tracking)
    }
    if acc.Driver != nil {
        t.Fatalf("driver should stay nil when absent")
    }
    if acc.Pricing["totalAmount"].(float64) != 420.5 {
        t.Fatalf("pricing: %+v", acc.Pricing)
    }
}

func TestParseAcceptanceAltTrackingField(t *testing.T) {
    acc := ParseAcceptance([]byte(`{"trackingNumber":"TN-9"}`))
    if acc.Tracking != "TN-9" {
        t.Fatalf("tracking: got %q", acc.Tracking)
    }
}

func TestParseRejectionDefaults(t *testing.T) {
    rej := ParseRejection([]byte(`{}`))
    if rej.Accepted {
        t.Fatalf("accepted must be false")
    }
    if rej.Reason != "unspecified" {
        t.Fatalf("reason default: got %q", rej.Reason)
    }
    rej = ParseRejection([]byte(`{"reason":"capacity","code":"CAP_FULL","alternativeOptions":["tomorrow"]}`))
    if rej.ReasonCode != "CAP_FULL" || len(rej.AlternativeOptions) != 1 {
        t.Fatalf("rejection: %+v", rej)
    }
}
