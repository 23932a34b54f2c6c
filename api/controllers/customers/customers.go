package customers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/comanda-backend/api/responses"
	"github.com/angelmondragon/comanda-backend/api/validators"
	internalcustomers "github.com/angelmondragon/comanda-backend/internal/customers"
	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
)

type Reader interface {
	Get(ctx context.Context, tenantID, customerID uuid.UUID) (*internalcustomers.Profile, error)
}

// Detail returns the decrypted customer profile with its loyalty balance.
func Detail(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customers service unavailable"))
			return
		}

		tenantID, err := validators.ParseUUIDParam(r, "tenantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := validators.ParseUUIDParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithTenantID(r.Context(), tenantID.String())

		profile, err := svc.Get(ctx, tenantID, customerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
