package quote

import "shipflow/internal/model"

// SelectionPolicy ranks accepted quotes. Collection logic never
// embeds criteria; swapping the policy changes ranking only.
type SelectionPolicy interface {
    // Select returns the index of the winner among quotes (accepted
    // entries only are candidates) and a machine-readable reason.
    Select(quotes []model.Quote, reliability map[string]float64) (int, string)
}

// LowestPrice is the default policy: cheapest accepted quote,
// reliability breaks ties.
type LowestPrice struct{}

func (LowestPrice) Select(quotes []model.Quote, reliability map[string]float64) (int, string) {
    best := -1
    accepted := 0
    for i, q := range quotes {
        if !q.Accepted { continue }
        accepted++
        if best < 0 {
            best = i
            continue
        }
        b := quotes[best]
        if q.Price < b.Price || (q.Price == b.Price && reliability[q.CarrierID] > reliability[b.CarrierID]) {
            best = i
        }
    }
    if best < 0 { return -1, "" }
    if accepted == 1 { return best, "only_option" }
    return best, "lowest_price"
}

// FastestDelivery prefers the shortest estimated window, price breaks
// ties.
type FastestDelivery struct{}

func (FastestDelivery) Select(quotes []model.Quote, reliability map[string]float64) (int, string) {
    best := -1
    accepted := 0
    for i, q := range quotes {
        if !q.Accepted { continue }
        accepted++
        if best < 0 {
            best = i
            continue
        }
        b := quotes[best]
        if q.EstimatedDays < b.EstimatedDays || (q.EstimatedDays == b.EstimatedDays && q.Price < b.Price) {
            best = i
        }
    }
    if best < 0 { return -1, "" }
    if accepted == 1 { return best, "only_option" }
    return best, "fastest_delivery"
}
