package loyalty

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/comanda-backend/internal/tenants"
)

// ResolveTier picks the highest tier whose threshold the balance meets. When none
// match, the lowest configured tier is returned.
func ResolveTier(tiers []tenants.Tier, balance int) tenants.Tier {
	if len(tiers) == 0 {
		tiers = tenants.DefaultTiers()
	}
	sorted := make([]tenants.Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPoints > sorted[j].MinPoints })

	for _, tier := range sorted {
		if balance >= tier.MinPoints {
			return tier
		}
	}
	return sorted[len(sorted)-1]
}

// Multiplier looks up a tier by name, ignoring case. Unknown names earn at 1.0.
func Multiplier(tiers []tenants.Tier, name string) decimal.Decimal {
	if len(tiers) == 0 {
		tiers = tenants.DefaultTiers()
	}
	name = strings.TrimSpace(name)
	for _, tier := range tiers {
		if strings.EqualFold(tier.Name, name) {
			if tier.Multiplier.LessThanOrEqual(decimal.Zero) {
				break
			}
			return tier.Multiplier
		}
	}
	return decimal.NewFromInt(1)
}

// EarnedPoints is floor(total × perCurrency × multiplier), never negative.
func EarnedPoints(total, perCurrency, multiplier decimal.Decimal) int {
	points := total.Mul(perCurrency).Mul(multiplier).Floor()
	if points.IsNegative() {
		return 0
	}
	return int(points.IntPart())
}
