package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/comanda-backend/api/responses"
	"github.com/angelmondragon/comanda-backend/api/validators"
	internalorders "github.com/angelmondragon/comanda-backend/internal/orders"
	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/pagination"
)

// Reader is the read side of the order service used by the kitchen board.
type Reader interface {
	Get(ctx context.Context, tenantID, orderID uuid.UUID) (*internalorders.Detail, error)
	List(ctx context.Context, params internalorders.ListParams) (*pagination.Page[models.Order], error)
}

// Board lists a tenant's orders, optionally filtered by ?status=preparing,ready.
func Board(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		tenantID, err := validators.ParseUUIDParam(r, "tenantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithTenantID(r.Context(), tenantID.String())

		limit, err := validators.ParseQueryInt(r, "limit", validators.IntRange{
			Default: pagination.DefaultLimit,
			Min:     1,
			Max:     pagination.MaxLimit,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		statuses, err := parseStatuses(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.List(ctx, internalorders.ListParams{
			TenantID: tenantID,
			Statuses: statuses,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns one order with its derived preparation timing.
func Detail(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		tenantID, err := validators.ParseUUIDParam(r, "tenantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithOrderID(logg.WithTenantID(r.Context(), tenantID.String()), orderID.String())

		detail, err := svc.Get(ctx, tenantID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func parseStatuses(r *http.Request) ([]enums.OrderStatus, error) {
	values, err := validators.ParseQueryList(r, "status")
	if err != nil {
		return nil, err
	}
	statuses := make([]enums.OrderStatus, 0, len(values))
	for _, value := range values {
		status, err := enums.ParseOrderStatus(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").WithDetails(map[string]any{"field": "status", "value": value})
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
