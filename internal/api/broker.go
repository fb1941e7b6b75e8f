package api

import (
    "sync"
)

// Event is one assignment or quote lifecycle event, keyed by order.
type Event struct {
    Type string
    Data map[string]any
}

// EventBroker fans order events out to websocket subscribers.
type EventBroker interface {
    Subscribe(orderID string) chan Event
    Unsubscribe(orderID string, ch chan Event)
    Publish(orderID string, evt Event)
}

type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // orderId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(orderID string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[orderID] == nil { b.subs[orderID] = map[chan Event]struct{}{} }
    b.subs[orderID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(orderID string, ch chan Event) {
    b.mu.Lock()
    if m := b.subs[orderID]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, orderID) }
    }
    b.mu.Unlock()
    close(ch)
}

func (b *Broker) Publish(orderID string, evt Event) {
    b.mu.Lock()
    m := b.subs[orderID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
