package model

import "testing"

func TestAssignmentTransitions(t *testing.T) {
    cases := []struct {
        from, to AssignmentStatus
        ok       bool
    }{
        {AssignmentPending, AssignmentAccepted, true},
        {AssignmentPending, AssignmentRejected, true},
        {AssignmentPending, AssignmentBusy, true},
        {AssignmentPending, AssignmentExpired, true},
        {AssignmentPending, AssignmentCancelled, true},
        {AssignmentBusy, AssignmentPending, true},
        {AssignmentBusy, AssignmentAccepted, false},
        {AssignmentAccepted, AssignmentRejected, false},
        {AssignmentRejected, AssignmentPending, false},
        {AssignmentExpired, AssignmentPending, false},
        {AssignmentCancelled, AssignmentPending, false},
    }
    for _, c := range cases {
        if got := c.from.CanTransition(c.to); got != c.ok {
            t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
        }
    }
}

func TestTerminalStatuses(t *testing.T) {
    for _, s := range []AssignmentStatus{AssignmentAccepted, AssignmentRejected, AssignmentExpired, AssignmentCancelled} {
        if !s.Terminal() {
            t.Errorf("%s should be terminal", s)
        }
    }
    for _, s := range []AssignmentStatus{AssignmentPending, AssignmentBusy} {
        if s.Terminal() {
            t.Errorf("%s should not be terminal", s)
        }
    }
}

func TestOrderActive(t *testing.T) {
    for _, s := range []OrderStatus{OrderCreated, OrderPendingCarrier, OrderReadyToShip, OrderOnHold} {
        if !s.Active() {
            t.Errorf("%s should be active", s)
        }
    }
    for _, s := range []OrderStatus{OrderShipped, OrderDelivered, OrderCancelled} {
        if s.Active() {
            t.Errorf("%s should be inactive", s)
        }
    }
}

func TestCarrierServes(t *testing.T) {
    all := Carrier{ServiceType: "all"}
    express := Carrier{ServiceType: "express"}
    if !all.Serves(ServiceBulk) || !all.Serves(ServiceExpress) {
        t.Fatal("'all' must serve every priority")
    }
    if !express.Serves(ServiceExpress) || express.Serves(ServiceStandard) {
        t.Fatal("typed carrier must serve only its own priority")
    }
}
