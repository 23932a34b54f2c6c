package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/comanda-backend/pkg/types"
	"github.com/angelmondragon/comanda-backend/pkg/validate"
)

type database interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ApplyInput asks for the discount a code gives on an order total.
type ApplyInput struct {
	TenantID   uuid.UUID       `json:"tenant_id" validate:"required"`
	Code       string          `json:"code" validate:"required,max=64"`
	OrderTotal decimal.Decimal `json:"order_total"`
	CustomerID *uuid.UUID      `json:"customer_id"`
}

// Quote is an applicable coupon and its discount.
type Quote struct {
	Coupon   models.Coupon   `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
	// BelowMinimum is set when the order total does not reach the coupon's
	// minimum; the quote is still valid and Discount is zero.
	BelowMinimum bool `json:"below_minimum,omitempty"`
}

// UsageInput records that an order redeemed a coupon.
type UsageInput struct {
	TenantID   uuid.UUID       `json:"tenant_id" validate:"required"`
	CouponID   uuid.UUID       `json:"coupon_id" validate:"required"`
	OrderID    uuid.UUID       `json:"order_id" validate:"required"`
	CustomerID *uuid.UUID      `json:"customer_id"`
	Discount   decimal.Decimal `json:"discount"`
	Actor      types.Actor     `json:"-"`
}

// UsageResult reports whether this call wrote the usage row.
type UsageResult struct {
	Recorded    bool `json:"recorded"`
	CurrentUses int  `json:"current_uses"`
}

// Validator checks coupon eligibility and records redemptions.
type Validator interface {
	Lookup(ctx context.Context, tenantID uuid.UUID, code string) (*models.Coupon, error)
	Apply(ctx context.Context, input ApplyInput) (*Quote, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*Quote, error)
	RecordUsage(ctx context.Context, input UsageInput) (*UsageResult, error)
	RecordUsageTx(ctx context.Context, tx *gorm.DB, input UsageInput) (*UsageResult, error)
}

type service struct {
	db      database
	base    repo.Base
	outbox  outboxPublisher
	metrics *metrics.DomainMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewValidator builds the coupon validator.
func NewValidator(conn database, publisher outboxPublisher, m *metrics.DomainMetrics, logg *logger.Logger) (Validator, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:      conn,
		base:    repo.NewBase(conn.DB()),
		outbox:  publisher,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Lookup finds a live coupon by its normalized code.
func (s *service) Lookup(ctx context.Context, tenantID uuid.UUID, code string) (*models.Coupon, error) {
	return s.lookup(ctx, s.base.DB(ctx), tenantID, code)
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*Quote, error) {
	return s.ApplyTx(ctx, s.base.DB(ctx), input)
}

// ApplyTx validates the code for this order and customer and computes the
// discount. It does not consume a use.
func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*Quote, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	coupon, err := s.lookup(ctx, tx, input.TenantID, input.Code)
	if err != nil {
		return nil, s.reject(ctx, err)
	}
	if err := CheckEligibility(*coupon, s.now()); err != nil {
		return nil, s.reject(ctx, err)
	}
	if coupon.SingleUsePerCustomer {
		if input.CustomerID == nil {
			return nil, s.reject(ctx, ineligible(ReasonCustomerRequired, coupon.Code))
		}
		var used int64
		err := tx.WithContext(ctx).Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND customer_id = ?", coupon.ID, *input.CustomerID).
			Count(&used).Error
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check coupon usage")
		}
		if used > 0 {
			return nil, s.reject(ctx, ineligible(ReasonAlreadyUsed, coupon.Code))
		}
	}
	quote := &Quote{
		Coupon:       *coupon,
		Discount:     ComputeDiscount(*coupon, input.OrderTotal),
		BelowMinimum: input.OrderTotal.LessThan(coupon.MinOrderValue),
	}
	if quote.BelowMinimum {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"code":            coupon.Code,
			"reason":          ReasonBelowMinimum,
			"min_order_value": coupon.MinOrderValue.StringFixed(2),
		}), "coupon below minimum, no discount")
	}
	return quote, nil
}

func (s *service) RecordUsage(ctx context.Context, input UsageInput) (*UsageResult, error) {
	var result *UsageResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.RecordUsageTx(ctx, tx, input)
		return err
	})
	return result, err
}

// RecordUsageTx writes the usage row and bumps current_uses once per
// (coupon, order). Repeated calls for the same pair change nothing.
func (s *service) RecordUsageTx(ctx context.Context, tx *gorm.DB, input UsageInput) (*UsageResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	var coupon models.Coupon
	err := db.ForUpdate(tx.WithContext(ctx)).
		Unscoped().
		Scopes(repo.TenantScope(input.TenantID)).
		Where("id = ?", input.CouponID).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	usage := models.CouponUsage{
		TenantID:       input.TenantID,
		CouponID:       coupon.ID,
		OrderID:        input.OrderID,
		CustomerID:     input.CustomerID,
		DiscountAmount: input.Discount,
		ActorID:        input.Actor.UserRef(),
		CreatedAt:      s.now().UTC(),
	}
	if coupon.SingleUsePerCustomer {
		if input.CustomerID == nil {
			return nil, ineligible(ReasonCustomerRequired, coupon.Code)
		}
		usage.SingleUseCustomerID = input.CustomerID
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "coupon_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(&usage)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return nil, s.reject(ctx, ineligible(ReasonAlreadyUsed, coupon.Code))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "insert coupon usage")
	}
	if res.RowsAffected == 0 {
		return &UsageResult{Recorded: false, CurrentUses: coupon.CurrentUses}, nil
	}

	inc := tx.WithContext(ctx).Unscoped().Model(&models.Coupon{}).
		Where("id = ?", coupon.ID).
		Where("max_uses IS NULL OR current_uses < max_uses").
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if inc.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, inc.Error, "increment coupon uses")
	}
	if inc.RowsAffected == 0 {
		return nil, s.reject(ctx, ineligible(ReasonExhausted, coupon.Code))
	}
	uses := coupon.CurrentUses + 1

	event := outbox.DomainEvent{
		TenantID:      input.TenantID,
		EventType:     enums.EventCouponRedeemed,
		AggregateType: enums.AggregateCoupon,
		AggregateID:   coupon.ID,
		Actor:         outbox.ActorFrom(input.Actor),
		Data: payloads.CouponRedeemedEvent{
			CouponID:    coupon.ID,
			Code:        coupon.Code,
			OrderID:     input.OrderID,
			CustomerID:  input.CustomerID,
			Discount:    input.Discount,
			CurrentUses: uses,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit coupon redeemed")
	}
	s.metrics.IncCouponUsage()
	return &UsageResult{Recorded: true, CurrentUses: uses}, nil
}

func (s *service) lookup(ctx context.Context, conn *gorm.DB, tenantID uuid.UUID, code string) (*models.Coupon, error) {
	if tenantID == uuid.Nil {
		return nil, repo.ErrTenantRequired()
	}
	normalized := NormalizeCode(code)
	var coupon models.Coupon
	err := conn.WithContext(ctx).
		Scopes(repo.TenantScope(tenantID)).
		Where("code = ?", normalized).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ineligible(ReasonNotFound, normalized)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return &coupon, nil
}

func (s *service) reject(ctx context.Context, err error) error {
	if pkgerrors.HasCode(err, pkgerrors.CodeCouponIneligible) {
		s.metrics.IncRejection("coupon", string(pkgerrors.CodeCouponIneligible))
		if typed := pkgerrors.As(err); typed != nil {
			s.logg.Debug(s.logg.WithField(ctx, "details", typed.Details()), "coupon rejected")
		}
	}
	return err
}
