package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateProduct    OutboxAggregateType = "product"
	AggregateIngredient OutboxAggregateType = "ingredient"
	AggregateCustomer   OutboxAggregateType = "customer"
	AggregateCoupon     OutboxAggregateType = "coupon"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateProduct,
	AggregateIngredient,
	AggregateCustomer,
	AggregateCoupon,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventOrderCancelled        OutboxEventType = "order_cancelled"
	EventOrderLate             OutboxEventType = "order_late"
	EventStockLow              OutboxEventType = "stock_low"
	EventInventoryReversed     OutboxEventType = "inventory_reversed"
	EventLoyaltyPointsEarned   OutboxEventType = "loyalty_points_earned"
	EventLoyaltyPointsRedeemed OutboxEventType = "loyalty_points_redeemed"
	EventLoyaltyTierChanged    OutboxEventType = "loyalty_tier_changed"
	EventCouponRedeemed        OutboxEventType = "coupon_redeemed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderCancelled,
	EventOrderLate,
	EventStockLow,
	EventInventoryReversed,
	EventLoyaltyPointsEarned,
	EventLoyaltyPointsRedeemed,
	EventLoyaltyTierChanged,
	EventCouponRedeemed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason classifies terminal publish failures.
type OutboxDLQErrorReason string

const (
	OutboxDLQErrorReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQErrorReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
