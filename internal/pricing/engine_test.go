package pricing

import (
    "math"
    "testing"

    "shipflow/internal/config"
    "shipflow/internal/model"
)

func newEngine() *Engine {
    return NewEngine(config.Default())
}

func TestCalculateWeightVolumetricWins(t *testing.T) {
    e := newEngine()
    items := []model.Item{{SKU: "A", Quantity: 2, WeightKg: 5, LengthCm: 50, WidthCm: 40, HeightCm: 30}}
    wb := e.CalculateWeight(items)
    if wb.ActualWeight != 10 {
        t.Fatalf("actual: want 10, got %v", wb.ActualWeight)
    }
    if wb.VolumetricWeight != 240 {
        t.Fatalf("volumetric: want 240, got %v", wb.VolumetricWeight)
    }
    if wb.ChargeableWeight != 240 {
        t.Fatalf("chargeable: want 240, got %v", wb.ChargeableWeight)
    }
}

func TestCalculateWeightMissingDims(t *testing.T) {
    e := newEngine()
    wb := e.CalculateWeight([]model.Item{{SKU: "A", Quantity: 3, WeightKg: 2}})
    if wb.VolumetricWeight != 0 {
        t.Fatalf("volumetric: want 0, got %v", wb.VolumetricWeight)
    }
    if wb.ChargeableWeight != 6 {
        t.Fatalf("chargeable: want 6, got %v", wb.ChargeableWeight)
    }
}

func TestDetermineZoneThresholds(t *testing.T) {
    e := newEngine()
    cases := []struct {
        km   float64
        want Zone
    }{
        {0, ZoneLocal},
        {100.0, ZoneLocal},
        {100.01, ZoneRegional},
        {300, ZoneRegional},
        {1000, ZoneMetro},
        {2000, ZoneNational},
        {2000.01, ZoneExpress},
    }
    for _, c := range cases {
        if got := e.DetermineZone(c.km); got != c.want {
            t.Fatalf("zone(%v): want %s, got %s", c.km, c.want, got)
        }
    }
}

func TestGetBaseRateDefaults(t *testing.T) {
    e := newEngine()
    r := e.GetBaseRate("carrier-without-rates", ZoneLocal, model.ServiceExpress)
    if r.PerKg != 15 || r.FuelPct != 0.15 || r.MinCharge != 100 {
        t.Fatalf("express default mismatch: %+v", r)
    }
    r = e.GetBaseRate("x", ZoneMetro, model.ServiceBulk)
    if r.PerKg != 7 || r.MinCharge != 30 {
        t.Fatalf("bulk default mismatch: %+v", r)
    }
}

func TestGetBaseRateCarrierOverride(t *testing.T) {
    cfg := config.Default()
    cfg.CarrierRates = map[string]map[string]config.Rate{
        "car_1": {"local/express": {PerKg: 12, FuelPct: 0.1, MinCharge: 80}},
    }
    e := NewEngine(cfg)
    r := e.GetBaseRate("car_1", ZoneLocal, model.ServiceExpress)
    if r.PerKg != 12 {
        t.Fatalf("override not applied: %+v", r)
    }
    // Other zone falls back to the default card.
    r = e.GetBaseRate("car_1", ZoneMetro, model.ServiceExpress)
    if r.PerKg != 15 {
        t.Fatalf("fallback not applied: %+v", r)
    }
}

func TestSurchargesAdditive(t *testing.T) {
    e := newEngine()
    // Fragile and hazardous both apply: 10% + 25% + 50 flat.
    items := []model.Item{{SKU: "A", Quantity: 1, UnitValue: 100, Fragile: true, Hazardous: true}}
    got := e.CalculateSurcharges(items)
    want := 100*0.10 + 100*0.25 + 50
    if got != want {
        t.Fatalf("surcharges: want %v, got %v", want, got)
    }
}

func TestSurchargeInsuranceUsesDeclaredValue(t *testing.T) {
    e := newEngine()
    items := []model.Item{{SKU: "A", Quantity: 1, UnitValue: 100, DeclaredValue: 500, Insured: true}}
    if got := e.CalculateSurcharges(items); got != 10 {
        t.Fatalf("insurance: want 10, got %v", got)
    }
}

func TestCalculateShippingCostBreakdown(t *testing.T) {
    e := newEngine()
    items := []model.Item{{SKU: "A", Quantity: 1, WeightKg: 10}}
    cb := e.CalculateShippingCost("", items, 50, model.ServiceStandard)
    if cb.Zone != ZoneLocal {
        t.Fatalf("zone: got %s", cb.Zone)
    }
    // 10kg * 10/kg = 100, above min 50.
    if cb.WeightCharge != 100 {
        t.Fatalf("weightCharge: want 100, got %v", cb.WeightCharge)
    }
    wantFuel := 100 * 0.12
    if cb.FuelSurcharge != wantFuel {
        t.Fatalf("fuel: want %v, got %v", wantFuel, cb.FuelSurcharge)
    }
    wantTax := round2((100 + wantFuel) * 0.18)
    if cb.Tax != wantTax {
        t.Fatalf("tax: want %v, got %v", wantTax, cb.Tax)
    }
    wantTotal := round2(100 + wantFuel + wantTax)
    if math.Abs(cb.Total-wantTotal) > 1e-9 {
        t.Fatalf("total: want %v, got %v", wantTotal, cb.Total)
    }
    if cb.EstimatedDays != 2 {
        t.Fatalf("days: want 2, got %d", cb.EstimatedDays)
    }
}

func TestMinimumChargeApplies(t *testing.T) {
    e := newEngine()
    items := []model.Item{{SKU: "A", Quantity: 1, WeightKg: 1}}
    cb := e.CalculateShippingCost("", items, 10, model.ServiceStandard)
    if cb.WeightCharge != 50 {
        t.Fatalf("min charge: want 50, got %v", cb.WeightCharge)
    }
}

func TestEstimatedDeliveryDaysTable(t *testing.T) {
    if d := EstimatedDeliveryDays(model.ServiceExpress, ZoneLocal); d != 1 {
        t.Fatalf("express/local: want 1, got %d", d)
    }
    if d := EstimatedDeliveryDays(model.ServiceStandard, ZoneNational); d != 7 {
        t.Fatalf("standard/national: want 7, got %d", d)
    }
    if d := EstimatedDeliveryDays(model.ServiceBulk, ZoneExpress); d != 15 {
        t.Fatalf("bulk/express: want 15, got %d", d)
    }
}
