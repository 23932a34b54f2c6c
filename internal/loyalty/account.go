package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/internal/repo"
	"github.com/angelmondragon/comanda-backend/internal/tenants"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/metrics"
	"github.com/angelmondragon/comanda-backend/pkg/outbox"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
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

// PointsInput moves points on a customer balance.
type PointsInput struct {
	TenantID    uuid.UUID   `json:"tenant_id" validate:"required"`
	CustomerID  uuid.UUID   `json:"customer_id" validate:"required"`
	Points      int         `json:"points" validate:"gt=0"`
	OrderID     *uuid.UUID  `json:"order_id"`
	Description string      `json:"description" validate:"max=255"`
	Actor       types.Actor `json:"-"`
}

// Entry is a committed ledger row together with the resulting balance.
type Entry struct {
	ID          uuid.UUID              `json:"id"`
	CustomerID  uuid.UUID              `json:"customer_id"`
	Points      int                    `json:"points"`
	Type        enums.LoyaltyEntryType `json:"type"`
	Balance     int                    `json:"balance"`
	Tier        string                 `json:"tier,omitempty"`
	OrderID     *uuid.UUID             `json:"order_id,omitempty"`
	Description string                 `json:"description"`
	CreatedAt   time.Time              `json:"created_at"`
}

// BalanceCheck compares the cached balance with the ledger sum.
type BalanceCheck struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Balance    int       `json:"balance"`
	LedgerSum  int       `json:"ledger_sum"`
	Consistent bool      `json:"consistent"`
}

// Account manages customer loyalty balances.
type Account interface {
	Earn(ctx context.Context, input PointsInput) (*Entry, error)
	EarnTx(ctx context.Context, tx *gorm.DB, input PointsInput) (*Entry, error)
	Redeem(ctx context.Context, input PointsInput) (*Entry, error)
	RedeemTx(ctx context.Context, tx *gorm.DB, input PointsInput) (*Entry, error)
	RecomputeTier(ctx context.Context, tenantID, customerID uuid.UUID) (string, error)
	TierMultiplier(ctx context.Context, tenantID, customerID uuid.UUID) (decimal.Decimal, error)
	PointsForOrderTx(ctx context.Context, tx *gorm.DB, tenantID, customerID uuid.UUID, total decimal.Decimal) (int, error)
	VerifyBalance(ctx context.Context, tenantID, customerID uuid.UUID) (*BalanceCheck, error)
	History(ctx context.Context, tenantID, customerID uuid.UUID, params pagination.Params) (*pagination.Page[Entry], error)
}

type account struct {
	db      database
	base    repo.Base
	tenants *tenants.Reader
	outbox  outboxPublisher
	metrics *metrics.DomainMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewAccount builds the loyalty account service.
func NewAccount(conn database, settings *tenants.Reader, publisher outboxPublisher, m *metrics.DomainMetrics, logg *logger.Logger) (Account, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	if settings == nil {
		return nil, fmt.Errorf("tenant settings reader required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &account{
		db:      conn,
		base:    repo.NewBase(conn.DB()),
		tenants: settings,
		outbox:  publisher,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (a *account) Earn(ctx context.Context, input PointsInput) (*Entry, error) {
	var entry *Entry
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = a.EarnTx(ctx, tx, input)
		return err
	})
	return entry, err
}

func (a *account) Redeem(ctx context.Context, input PointsInput) (*Entry, error) {
	var entry *Entry
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = a.RedeemTx(ctx, tx, input)
		return err
	})
	return entry, err
}

// EarnTx credits points, appends the ledger row and re-evaluates the tier.
func (a *account) EarnTx(ctx context.Context, tx *gorm.DB, input PointsInput) (*Entry, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	res := a.customers(ctx, tx, input.TenantID).
		Where("id = ?", input.CustomerID).
		UpdateColumn("loyalty_points", gorm.Expr("loyalty_points + ?", input.Points))
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "credit loyalty points")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	entry, err := a.append(ctx, tx, input, enums.LoyaltyEntryEarn, input.Points)
	if err != nil {
		return nil, err
	}
	a.metrics.AddLoyaltyPoints(string(enums.LoyaltyEntryEarn), input.Points)
	return entry, nil
}

// RedeemTx debits points. The balance check and the decrement are one
// conditional update, so concurrent redemptions cannot overdraw.
func (a *account) RedeemTx(ctx context.Context, tx *gorm.DB, input PointsInput) (*Entry, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	res := a.customers(ctx, tx, input.TenantID).
		Where("id = ? AND loyalty_points >= ?", input.CustomerID, input.Points).
		UpdateColumn("loyalty_points", gorm.Expr("loyalty_points - ?", input.Points))
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "debit loyalty points")
	}
	if res.RowsAffected == 0 {
		customer, err := a.load(ctx, tx, input.TenantID, input.CustomerID)
		if err != nil {
			return nil, err
		}
		a.metrics.IncRejection("loyalty_redeem", string(pkgerrors.CodeInsufficientPoints))
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientPoints, "insufficient loyalty points").
			WithDetails(map[string]any{"balance": customer.LoyaltyPoints, "requested": input.Points})
	}
	entry, err := a.append(ctx, tx, input, enums.LoyaltyEntryRedeem, -input.Points)
	if err != nil {
		return nil, err
	}
	a.metrics.AddLoyaltyPoints(string(enums.LoyaltyEntryRedeem), input.Points)
	return entry, nil
}

func (a *account) append(ctx context.Context, tx *gorm.DB, input PointsInput, entryType enums.LoyaltyEntryType, delta int) (*Entry, error) {
	row := models.LoyaltyPointsHistory{
		TenantID:    input.TenantID,
		CustomerID:  input.CustomerID,
		Points:      delta,
		Type:        entryType,
		OrderID:     input.OrderID,
		ActorID:     input.Actor.UserRef(),
		Description: strings.TrimSpace(input.Description),
		CreatedAt:   a.now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append loyalty history")
	}

	customer, err := a.load(ctx, tx, input.TenantID, input.CustomerID)
	if err != nil {
		return nil, err
	}
	tier, err := a.recomputeTx(ctx, tx, customer, input.Actor)
	if err != nil {
		return nil, err
	}

	eventType := enums.EventLoyaltyPointsEarned
	if entryType == enums.LoyaltyEntryRedeem {
		eventType = enums.EventLoyaltyPointsRedeemed
	}
	event := outbox.DomainEvent{
		TenantID:      input.TenantID,
		EventType:     eventType,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   input.CustomerID,
		Actor:         outbox.ActorFrom(input.Actor),
		Data: payloads.LoyaltyPointsEvent{
			CustomerID: input.CustomerID,
			Points:     input.Points,
			Balance:    customer.LoyaltyPoints,
			OrderID:    input.OrderID,
		},
	}
	if err := a.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit loyalty event")
	}

	entry := toEntry(row, customer.LoyaltyPoints)
	entry.Tier = tier
	return &entry, nil
}

// RecomputeTier re-evaluates and persists the customer's tier if it changed.
func (a *account) RecomputeTier(ctx context.Context, tenantID, customerID uuid.UUID) (string, error) {
	var tier string
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		customer, err := a.load(ctx, tx, tenantID, customerID)
		if err != nil {
			return err
		}
		tier, err = a.recomputeTx(ctx, tx, customer, types.SystemActor())
		return err
	})
	return tier, err
}

func (a *account) recomputeTx(ctx context.Context, tx *gorm.DB, customer *models.Customer, actor types.Actor) (string, error) {
	tiers, err := a.tenants.WithTx(tx).Tiers(ctx, customer.TenantID)
	if err != nil {
		return "", err
	}
	next := ResolveTier(tiers, customer.LoyaltyPoints).Name
	if next == customer.LoyaltyTier {
		return next, nil
	}
	err = a.customers(ctx, tx, customer.TenantID).
		Where("id = ?", customer.ID).
		UpdateColumn("loyalty_tier", next).Error
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist loyalty tier")
	}
	event := outbox.DomainEvent{
		TenantID:      customer.TenantID,
		EventType:     enums.EventLoyaltyTierChanged,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   customer.ID,
		Actor:         outbox.ActorFrom(actor),
		Data: payloads.LoyaltyTierChangedEvent{
			CustomerID: customer.ID,
			From:       customer.LoyaltyTier,
			To:         next,
			Balance:    customer.LoyaltyPoints,
		},
	}
	if err := a.outbox.Emit(ctx, tx, event); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit tier change")
	}
	a.logg.Info(a.logg.WithFields(ctx, map[string]any{
		"tenant_id":   customer.TenantID.String(),
		"customer_id": customer.ID.String(),
		"from":        customer.LoyaltyTier,
		"to":          next,
	}), "loyalty tier changed")
	customer.LoyaltyTier = next
	return next, nil
}

// TierMultiplier returns the earning multiplier of the customer's stored tier.
func (a *account) TierMultiplier(ctx context.Context, tenantID, customerID uuid.UUID) (decimal.Decimal, error) {
	conn := a.base.DB(ctx)
	customer, err := a.load(ctx, conn, tenantID, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	tiers, err := a.tenants.WithTx(conn).Tiers(ctx, tenantID)
	if err != nil {
		return decimal.Zero, err
	}
	return Multiplier(tiers, customer.LoyaltyTier), nil
}

// PointsForOrderTx computes what a paid total earns. It returns zero when the
// tenant has loyalty disabled.
func (a *account) PointsForOrderTx(ctx context.Context, tx *gorm.DB, tenantID, customerID uuid.UUID, total decimal.Decimal) (int, error) {
	if tx == nil {
		return 0, fmt.Errorf("transaction required")
	}
	settings, err := a.tenants.WithTx(tx).Settings(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if !settings.LoyaltyEnabled || !total.IsPositive() {
		return 0, nil
	}
	customer, err := a.load(ctx, tx, tenantID, customerID)
	if err != nil {
		return 0, err
	}
	tiers, err := a.tenants.WithTx(tx).Tiers(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return EarnedPoints(total, settings.PointsPerCurrency, Multiplier(tiers, customer.LoyaltyTier)), nil
}

// VerifyBalance checks loyalty_points == Σ history.points.
func (a *account) VerifyBalance(ctx context.Context, tenantID, customerID uuid.UUID) (*BalanceCheck, error) {
	conn := a.base.DB(ctx)
	customer, err := a.load(ctx, conn, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	var sum int64
	err = conn.Model(&models.LoyaltyPointsHistory{}).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum loyalty history")
	}
	check := &BalanceCheck{
		CustomerID: customerID,
		Balance:    customer.LoyaltyPoints,
		LedgerSum:  int(sum),
		Consistent: int64(customer.LoyaltyPoints) == sum,
	}
	if !check.Consistent {
		a.logg.Warn(a.logg.WithFields(ctx, map[string]any{
			"tenant_id":   tenantID.String(),
			"customer_id": customerID.String(),
			"balance":     check.Balance,
			"ledger_sum":  check.LedgerSum,
		}), "loyalty ledger out of balance")
	}
	return check, nil
}

// History lists ledger rows newest first. Balance is not populated.
func (a *account) History(ctx context.Context, tenantID, customerID uuid.UUID, params pagination.Params) (*pagination.Page[Entry], error) {
	scoped, err := a.base.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.LoyaltyPointsHistory
	err = pagination.After(scoped.Where("customer_id = ?", customerID), cursor).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loyalty history")
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row, 0))
	}
	page := pagination.Build(entries, params.Limit, func(e Entry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return &page, nil
}

func (a *account) customers(ctx context.Context, conn *gorm.DB, tenantID uuid.UUID) *gorm.DB {
	return conn.WithContext(ctx).Model(&models.Customer{}).Scopes(repo.TenantScope(tenantID))
}

func (a *account) load(ctx context.Context, conn *gorm.DB, tenantID, customerID uuid.UUID) (*models.Customer, error) {
	if tenantID == uuid.Nil {
		return nil, repo.ErrTenantRequired()
	}
	var customer models.Customer
	err := conn.WithContext(ctx).Scopes(repo.TenantScope(tenantID)).Where("id = ?", customerID).First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return &customer, nil
}

func toEntry(row models.LoyaltyPointsHistory, balance int) Entry {
	return Entry{
		ID:          row.ID,
		CustomerID:  row.CustomerID,
		Points:      row.Points,
		Type:        row.Type,
		Balance:     balance,
		OrderID:     row.OrderID,
		Description: row.Description,
		CreatedAt:   row.CreatedAt,
	}
}
