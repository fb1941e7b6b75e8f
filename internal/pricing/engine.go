package pricing

import (
    "math"

    "shipflow/internal/config"
    "shipflow/internal/model"
)

// Engine computes shipment pricing from the rate card. Pure except for
// the rate lookup against the configured card.
type Engine struct {
    cfg config.Config
}

func NewEngine(cfg config.Config) *Engine {
    return &Engine{cfg: cfg}
}

// Zone buckets by straight road distance.
type Zone string

const (
    ZoneLocal    Zone = "local"
    ZoneRegional Zone = "regional"
    ZoneMetro    Zone = "metro"
    ZoneNational Zone = "national"
    ZoneExpress  Zone = "express"
)

// volumetricDivisor converts cm^3 to kg per industry convention.
const volumetricDivisor = 5000.0

const taxRate = 0.18

type WeightBreakdown struct {
    ActualWeight     float64 `json:"actualWeight"`
    VolumetricWeight float64 `json:"volumetricWeight"`
    ChargeableWeight float64 `json:"chargeableWeight"`
}

type CostBreakdown struct {
    Weight        WeightBreakdown `json:"weight"`
    Zone          Zone            `json:"zone"`
    DistanceKm    float64         `json:"distanceKm"`
    RatePerKg     float64         `json:"ratePerKg"`
    WeightCharge  float64         `json:"weightCharge"`
    Surcharges    float64         `json:"surcharges"`
    Subtotal      float64         `json:"subtotal"`
    FuelSurcharge float64         `json:"fuelSurcharge"`
    Tax           float64         `json:"tax"`
    Total         float64         `json:"total"`
    EstimatedDays int             `json:"estimatedDays"`
}

// CalculateWeight returns actual, volumetric and chargeable weight for
// the items. Chargeable is max(actual, volumetric) per item, summed.
// Missing dimensions contribute zero volumetric weight.
func (e *Engine) CalculateWeight(items []model.Item) WeightBreakdown {
    var wb WeightBreakdown
    for _, it := range items {
        qty := it.Quantity
        if qty <= 0 {
            qty = 1
        }
        actual := it.WeightKg * float64(qty)
        vol := it.LengthCm * it.WidthCm * it.HeightCm / volumetricDivisor * float64(qty)
        wb.ActualWeight += actual
        wb.VolumetricWeight += vol
        wb.ChargeableWeight += math.Max(actual, vol)
    }
    return wb
}

// DetermineZone maps distance to a zone. Thresholds are inclusive at
// the upper bound.
func (e *Engine) DetermineZone(distanceKm float64) Zone {
    switch {
    case distanceKm <= 100:
        return ZoneLocal
    case distanceKm <= 300:
        return ZoneRegional
    case distanceKm <= 1000:
        return ZoneMetro
    case distanceKm <= 2000:
        return ZoneNational
    default:
        return ZoneExpress
    }
}

// GetBaseRate returns the rate card entry for the carrier or the
// per-service default when no carrier-specific rate exists.
func (e *Engine) GetBaseRate(carrierID string, zone Zone, serviceType model.ServiceType) config.Rate {
    if r, ok := e.cfg.CarrierRate(carrierID, string(zone), string(serviceType)); ok {
        return r
    }
    // Unknown service type: price as standard rather than fail.
    return e.cfg.DefaultRates[string(model.ServiceStandard)]
}

// CalculateSurcharges sums handling surcharges across items. Each flag
// triggers independently; one item may accrue several.
func (e *Engine) CalculateSurcharges(items []model.Item) float64 {
    total := 0.0
    for _, it := range items {
        qty := it.Quantity
        if qty <= 0 {
            qty = 1
        }
        value := it.UnitValue * float64(qty)
        if it.Fragile {
            total += value * 0.10
        }
        if it.Hazardous {
            total += value*0.25 + 50
        }
        if it.Perishable {
            total += value * 0.15
        }
        if it.ColdStorage {
            total += value * 0.30
        }
        if it.Insured {
            declared := it.DeclaredValue
            if declared == 0 {
                declared = value
            }
            total += declared * 0.02
        }
    }
    return round2(total)
}

// CalculateShippingCost composes the full quote breakdown.
func (e *Engine) CalculateShippingCost(carrierID string, items []model.Item, distanceKm float64, serviceType model.ServiceType) CostBreakdown {
    wb := e.CalculateWeight(items)
    zone := e.DetermineZone(distanceKm)
    rate := e.GetBaseRate(carrierID, zone, serviceType)

    weightCharge := math.Max(wb.ChargeableWeight*rate.PerKg, rate.MinCharge)
    surcharges := e.CalculateSurcharges(items)
    subtotal := weightCharge + surcharges
    fuel := subtotal * rate.FuelPct
    tax := (subtotal + fuel) * taxRate

    return CostBreakdown{
        Weight:        wb,
        Zone:          zone,
        DistanceKm:    distanceKm,
        RatePerKg:     rate.PerKg,
        WeightCharge:  round2(weightCharge),
        Surcharges:    surcharges,
        Subtotal:      round2(subtotal),
        FuelSurcharge: round2(fuel),
        Tax:           round2(tax),
        Total:         round2(subtotal + fuel + tax),
        EstimatedDays: EstimatedDeliveryDays(serviceType, zone),
    }
}

// deliveryDays is keyed by service type then zone.
var deliveryDays = map[model.ServiceType]map[Zone]int{
    model.ServiceExpress: {
        ZoneLocal: 1, ZoneRegional: 1, ZoneMetro: 2, ZoneNational: 3, ZoneExpress: 5,
    },
    model.ServiceStandard: {
        ZoneLocal: 2, ZoneRegional: 3, ZoneMetro: 5, ZoneNational: 7, ZoneExpress: 10,
    },
    model.ServiceBulk: {
        ZoneLocal: 3, ZoneRegional: 5, ZoneMetro: 8, ZoneNational: 12, ZoneExpress: 15,
    },
}

// EstimatedDeliveryDays looks up transit days for a service/zone pair.
func EstimatedDeliveryDays(serviceType model.ServiceType, zone Zone) int {
    if m, ok := deliveryDays[serviceType]; ok {
        if d, ok := m[zone]; ok {
            return d
        }
    }
    return deliveryDays[model.ServiceStandard][ZoneNational]
}

func round2(v float64) float64 {
    return math.Round(v*100) / 100
}
