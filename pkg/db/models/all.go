package models

// All lists every persisted model in dependency order. Used by dev auto-migration
// and by tests that build an in-memory schema.
func All() []any {
	return []any{
		&Tenant{},
		&LoyaltyTier{},
		&User{},
		&Category{},
		&Product{},
		&Ingredient{},
		&ProductIngredient{},
		&StockMovement{},
		&IngredientMovement{},
		&Customer{},
		&LoyaltyPointsHistory{},
		&Coupon{},
		&CouponUsage{},
		&Order{},
		&OrderItem{},
		&OrderItemComplement{},
		&OrderStatusHistory{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
