package enums

import "slices"

// OrderStatus tracks fulfillment of an order.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusEnroute    OrderStatus = "enroute"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusEnroute,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// orderStatusNext lists the forward transitions operators may apply.
// Cancellation is allowed from any non-terminal status.
var orderStatusNext = map[OrderStatus]OrderStatus{
	OrderStatusProcessing: OrderStatusConfirmed,
	OrderStatusConfirmed:  OrderStatusShipped,
	OrderStatusShipped:    OrderStatusEnroute,
	OrderStatusEnroute:    OrderStatusDelivered,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	return slices.Contains(validOrderStatuses, o)
}

// IsTerminal reports whether no further transition is possible.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusCancelled
}

// CanTransitionTo reports whether an operator may move an order from o to next.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if o.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	return orderStatusNext[o] == next
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parseEnum(validOrderStatuses, value, "order status")
}
