package orders

import (
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
)

// forward lists the non-cancel moves out of each state. Cancel is legal from
// every non-terminal state and is not repeated here.
var forward = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusNew:             {enums.OrderStatusConfirmed},
	enums.OrderStatusConfirmed:       {enums.OrderStatusPreparing},
	enums.OrderStatusPreparing:       {enums.OrderStatusReady},
	enums.OrderStatusReady:           {enums.OrderStatusPreparing, enums.OrderStatusWaitingMotoboy, enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered},
	enums.OrderStatusWaitingMotoboy:  {enums.OrderStatusMotoboyAccepted},
	enums.OrderStatusMotoboyAccepted: {enums.OrderStatusOutForDelivery},
	enums.OrderStatusOutForDelivery:  {enums.OrderStatusDelivered},
}

// deliveryOnly states are reachable only by delivery orders.
var deliveryOnly = map[enums.OrderStatus]bool{
	enums.OrderStatusWaitingMotoboy:  true,
	enums.OrderStatusMotoboyAccepted: true,
	enums.OrderStatusOutForDelivery:  true,
}

// CanTransition reports whether an order in mode may move from -> to.
func CanTransition(mode enums.OrderMode, from, to enums.OrderStatus) bool {
	if from.IsTerminal() || !to.IsValid() {
		return false
	}
	if to == enums.OrderStatusCancelled {
		return true
	}
	if deliveryOnly[to] && mode != enums.OrderModeDelivery {
		return false
	}
	// Delivery orders finish through the courier leg.
	if from == enums.OrderStatusReady && to == enums.OrderStatusDelivered && mode == enums.OrderModeDelivery {
		return false
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next lists the states an order can move to from its current state.
func Next(order models.Order) []enums.OrderStatus {
	if order.Status.IsTerminal() {
		return nil
	}
	var out []enums.OrderStatus
	for _, candidate := range forward[order.Status] {
		if CanTransition(order.Mode, order.Status, candidate) {
			out = append(out, candidate)
		}
	}
	return append(out, enums.OrderStatusCancelled)
}

func invalidTransition(order models.Order, to enums.OrderStatus) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot move to "+string(to)).
		WithDetails(map[string]any{
			"order_id": order.ID.String(),
			"from":     order.Status,
			"to":       to,
			"mode":     order.Mode,
		})
}
