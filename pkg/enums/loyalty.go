package enums

import "fmt"

// LoyaltyEntryType classifies loyalty_points_history rows.
type LoyaltyEntryType string

const (
	LoyaltyEntryEarn   LoyaltyEntryType = "earn"
	LoyaltyEntryRedeem LoyaltyEntryType = "redeem"
)

// IsValid reports whether the value is a known LoyaltyEntryType.
func (t LoyaltyEntryType) IsValid() bool {
	return t == LoyaltyEntryEarn || t == LoyaltyEntryRedeem
}

// ParseLoyaltyEntryType converts raw input into LoyaltyEntryType.
func ParseLoyaltyEntryType(value string) (LoyaltyEntryType, error) {
	switch LoyaltyEntryType(value) {
	case LoyaltyEntryEarn, LoyaltyEntryRedeem:
		return LoyaltyEntryType(value), nil
	}
	return "", fmt.Errorf("invalid loyalty entry type %q", value)
}
