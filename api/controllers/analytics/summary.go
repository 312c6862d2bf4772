package analytics

import (
	"net/http"

	"github.com/angelmondragon/snapspend-backend/api/middleware"
	"github.com/angelmondragon/snapspend-backend/api/responses"
	"github.com/angelmondragon/snapspend-backend/internal/analytics"
	"github.com/angelmondragon/snapspend-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

func Summary(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
			return
		}

		from, to, err := resolveRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := service.Summary(ctx, types.SummaryRequest{
			UserID: userID,
			From:   from,
			To:     to,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
