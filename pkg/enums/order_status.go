package enums

import "fmt"

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusPreparing       OrderStatus = "preparing"
	OrderStatusReady           OrderStatus = "ready"
	OrderStatusWaitingMotoboy  OrderStatus = "waiting_motoboy"
	OrderStatusMotoboyAccepted OrderStatus = "motoboy_accepted"
	OrderStatusOutForDelivery  OrderStatus = "out_for_delivery"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusWaitingMotoboy,
	OrderStatusMotoboyAccepted,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// OrderMode describes how the order reaches the customer.
type OrderMode string

const (
	OrderModeDelivery OrderMode = "delivery"
	OrderModePickup   OrderMode = "pickup"
	OrderModeTable    OrderMode = "table"
)

var validOrderModes = []OrderMode{OrderModeDelivery, OrderModePickup, OrderModeTable}

// IsValid reports whether the value is a known OrderMode.
func (m OrderMode) IsValid() bool {
	for _, candidate := range validOrderModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseOrderMode converts raw input into an OrderMode.
func ParseOrderMode(value string) (OrderMode, error) {
	for _, candidate := range validOrderModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order mode %q", value)
}

// TimeStatus buckets elapsed preparation time against its budget.
type TimeStatus string

const (
	TimeStatusPending TimeStatus = "pending"
	TimeStatusOnTime  TimeStatus = "on_time"
	TimeStatusWarning TimeStatus = "warning"
	TimeStatusLate    TimeStatus = "late"
)
