package analytics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/angelmondragon/snapspend-backend/api/middleware"
	"github.com/angelmondragon/snapspend-backend/api/responses"
	"github.com/angelmondragon/snapspend-backend/internal/export"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

// ExportCSV writes the caller's receipts as a CSV attachment. The file is
// rendered before any byte is sent so failures still produce a JSON error.
func ExportCSV(service export.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "export service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
			return
		}

		now := timeNowUTC()
		from, to, err := resolveRange(r, now)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var buf bytes.Buffer
		rows, err := service.WriteCSV(ctx, &buf, export.Request{UserID: userID, From: from, To: to})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(logg.WithField(ctx, "rows", rows), "export.csv.written")

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="receipts-%s.csv"`, now.Format("20060102")))
		w.Header().Set("X-Row-Count", strconv.Itoa(rows))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}
