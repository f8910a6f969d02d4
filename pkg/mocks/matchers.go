package mocks

import (
	"fmt"

	"github.com/golang/mock/gomock"
	"github.com/prodline/prodline/pkg/types"
)

// EventMatcher matches events by type and, when set, machine and order id.
// Timestamps and durations are ignored.
type EventMatcher struct {
	Type      types.EventType
	MachineID int
	OrderID   int
}

var _ gomock.Matcher = EventMatcher{}

// EventOf matches any event of the given type
func EventOf(eventType types.EventType) EventMatcher {
	return EventMatcher{Type: eventType}
}

// MachineEvent matches an event of the given type for one machine
func MachineEvent(eventType types.EventType, machineID int) EventMatcher {
	return EventMatcher{Type: eventType, MachineID: machineID}
}

// OrderEvent matches an event of the given type for one machine and order
func OrderEvent(eventType types.EventType, machineID, orderID int) EventMatcher {
	return EventMatcher{Type: eventType, MachineID: machineID, OrderID: orderID}
}

// Matches implements gomock.Matcher
func (m EventMatcher) Matches(x interface{}) bool {
	e, ok := x.(types.Event)
	if !ok || e.Type != m.Type {
		return false
	}
	if m.MachineID != 0 && e.MachineID != m.MachineID {
		return false
	}
	if m.OrderID != 0 && e.Order.ID != m.OrderID {
		return false
	}
	return true
}

// String implements gomock.Matcher
func (m EventMatcher) String() string {
	return fmt.Sprintf("event %s (machine=%d order=%d)", m.Type, m.MachineID, m.OrderID)
}
