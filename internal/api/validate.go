package api

import (
    "fmt"

    "shipflow/internal/model"
)

func validateOrderIn(o *model.Order) error {
    if len(o.Items) == 0 {
        return fmt.Errorf("order needs at least one item")
    }
    for i, it := range o.Items {
        if it.SKU == "" {
            return fmt.Errorf("items[%d]: sku required", i)
        }
        if it.Quantity < 0 {
            return fmt.Errorf("items[%d]: quantity must be >= 0", i)
        }
        if it.WeightKg < 0 {
            return fmt.Errorf("items[%d]: weightKg must be >= 0", i)
        }
    }
    switch o.Priority {
    case "", model.ServiceExpress, model.ServiceStandard, model.ServiceBulk:
    default:
        return fmt.Errorf("invalid priority: %s (allowed: express, standard, bulk)", o.Priority)
    }
    if o.ShippingAddress.Line1 == "" || o.ShippingAddress.City == "" {
        return fmt.Errorf("shippingAddress requires line1 and city")
    }
    return nil
}

func validateCarrierIn(c *model.Carrier) error {
    if c.Code == "" || c.Name == "" {
        return fmt.Errorf("carrier requires code and name")
    }
    switch c.ServiceType {
    case "", "all", "express", "standard", "bulk":
    default:
        return fmt.Errorf("invalid serviceType: %s (allowed: express, standard, bulk, all)", c.ServiceType)
    }
    if c.ReliabilityScore < 0 || c.ReliabilityScore > 5 {
        return fmt.Errorf("reliabilityScore must be within [0,5]")
    }
    switch c.Availability {
    case "", model.CarrierAvailable, model.CarrierIsBusy, model.CarrierOffline:
    default:
        return fmt.Errorf("invalid availabilityStatus: %s", c.Availability)
    }
    return nil
}

func validateAvailabilityUpdate(u *model.CarrierAvailabilityUpdate) error {
    if u.Code == "" {
        return fmt.Errorf("code required")
    }
    switch u.Status {
    case model.CarrierAvailable, model.CarrierIsBusy, model.CarrierOffline:
        return nil
    }
    return fmt.Errorf("invalid status: %s (allowed: available, busy, offline)", u.Status)
}
