package customers

import (
	"time"

	"github.com/google/uuid"
)

// RegisterInput creates a loyalty customer. ReferralCode is the code of the
// customer who referred this one, if any.
type RegisterInput struct {
	TenantID     uuid.UUID `json:"tenant_id" validate:"required"`
	Name         string    `json:"name" validate:"required,max=120"`
	Phone        string    `json:"phone" validate:"max=32"`
	Email        string    `json:"email" validate:"omitempty,email,max=255"`
	ReferralCode string    `json:"referral_code" validate:"max=16"`
}

// Profile is a customer with contact fields decrypted.
type Profile struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Email         string     `json:"email"`
	LoyaltyPoints int        `json:"loyalty_points"`
	LoyaltyTier   string     `json:"loyalty_tier"`
	ReferralCode  string     `json:"referral_code"`
	ReferredBy    *uuid.UUID `json:"referred_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
