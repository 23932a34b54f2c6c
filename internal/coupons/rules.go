package coupons

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
)

// Ineligibility reasons reported in error details.
const (
	ReasonNotFound         = "not_found"
	ReasonInactive         = "inactive"
	ReasonExhausted        = "max_uses_reached"
	ReasonNotStarted       = "not_started"
	ReasonExpired          = "expired"
	ReasonBelowMinimum     = "below_min_order_value"
	ReasonCustomerRequired = "customer_required"
	ReasonAlreadyUsed      = "already_used_by_customer"
)

var hundred = decimal.NewFromInt(100)

// NormalizeCode is the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckEligibility fails closed: any failing rule yields CouponIneligible with the reason.
func CheckEligibility(coupon models.Coupon, now time.Time) error {
	switch {
	case !coupon.IsActive:
		return ineligible(ReasonInactive, coupon.Code)
	case coupon.MaxUses != nil && coupon.CurrentUses >= *coupon.MaxUses:
		return ineligible(ReasonExhausted, coupon.Code)
	case coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom):
		return ineligible(ReasonNotStarted, coupon.Code)
	case coupon.ValidUntil != nil && now.After(*coupon.ValidUntil):
		return ineligible(ReasonExpired, coupon.Code)
	}
	return nil
}

// IsEligible reports whether the coupon can be applied at now.
func IsEligible(coupon models.Coupon, now time.Time) bool {
	return CheckEligibility(coupon, now) == nil
}

// ComputeDiscount returns the discount for orderTotal. It is zero below the
// minimum order value and never exceeds the total.
func ComputeDiscount(coupon models.Coupon, orderTotal decimal.Decimal) decimal.Decimal {
	if !orderTotal.IsPositive() || orderTotal.LessThan(coupon.MinOrderValue) {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		discount = orderTotal.Mul(coupon.DiscountValue).Div(hundred).Round(2)
	case enums.DiscountTypeFixed:
		discount = coupon.DiscountValue
	default:
		return decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(discount, orderTotal)
}

func ineligible(reason, code string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeCouponIneligible, "coupon cannot be applied").
		WithDetails(map[string]any{"reason": reason, "code": code})
}
