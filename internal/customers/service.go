package customers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/loyalty"
	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/validate"
)

const (
	referralCodeLength = 8
	maxCodeAttempts    = 5
)

type database interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service registers and reads loyalty customers.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*Profile, error)
	Get(ctx context.Context, tenantID, customerID uuid.UUID) (*Profile, error)
	FindByReferralCode(ctx context.Context, tenantID uuid.UUID, code string) (*Profile, error)
}

type service struct {
	db       database
	repo     *Repository
	settings *tenants.Reader
	newCode  func() string
}

// NewService wires customer registration.
func NewService(conn database, repository *Repository, settings *tenants.Reader) (Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	if repository == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if settings == nil {
		return nil, fmt.Errorf("tenant settings reader required")
	}
	return &service{db: conn, repo: repository, settings: settings, newCode: generateCode}, nil
}

// Register creates a customer at zero points in the tenant's lowest tier. A
// referral code collision is retried with a fresh code.
func (s *service) Register(ctx context.Context, input RegisterInput) (*Profile, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	tiers, err := s.settings.Tiers(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	var referredBy *uuid.UUID
	if code := strings.TrimSpace(input.ReferralCode); code != "" {
		referrer, err := s.repo.FindByReferralCode(ctx, input.TenantID, code)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown referral code").
					WithDetails(map[string]any{"referral_code": normalizeCode(code)})
			}
			return nil, err
		}
		referredBy = &referrer.ID
	}

	for attempt := 1; ; attempt++ {
		customer := models.Customer{
			TenantID:     input.TenantID,
			Name:         strings.TrimSpace(input.Name),
			Phone:        input.Phone,
			Email:        input.Email,
			LoyaltyTier:  loyalty.ResolveTier(tiers, 0).Name,
			ReferralCode: s.newCode(),
			ReferredBy:   referredBy,
		}
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).Create(ctx, &customer)
		})
		if err == nil {
			stored, err := s.repo.Find(ctx, input.TenantID, customer.ID)
			if err != nil {
				return nil, err
			}
			profile := s.repo.Profile(ctx, *stored)
			return &profile, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
		}
		if attempt == maxCodeAttempts {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate referral code")
		}
	}
}

func (s *service) Get(ctx context.Context, tenantID, customerID uuid.UUID) (*Profile, error) {
	customer, err := s.repo.Find(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	profile := s.repo.Profile(ctx, *customer)
	return &profile, nil
}

func (s *service) FindByReferralCode(ctx context.Context, tenantID uuid.UUID, code string) (*Profile, error) {
	customer, err := s.repo.FindByReferralCode(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}
	profile := s.repo.Profile(ctx, *customer)
	return &profile, nil
}

func generateCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:referralCodeLength])
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
