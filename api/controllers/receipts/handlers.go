package receipts

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/snapspend-backend/api/middleware"
	"github.com/angelmondragon/snapspend-backend/api/responses"
	"github.com/angelmondragon/snapspend-backend/api/validators"
	"github.com/angelmondragon/snapspend-backend/internal/receiptimages"
	internalreceipts "github.com/angelmondragon/snapspend-backend/internal/receipts"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	"github.com/angelmondragon/snapspend-backend/pkg/pagination"
)

// List returns a page of the caller's receipts, newest purchase first.
func List(svc internalreceipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipts service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), internalreceipts.ListParams{
			UserID: userID,
			From:   from,
			To:     to,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

// Create stores a new receipt for the caller.
func Create(svc internalreceipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipts service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
			return
		}

		var body internalreceipts.ReceiptInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), userID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// Get returns one receipt owned by the caller.
func Get(svc internalreceipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipts service unavailable"))
			return
		}

		userID, receiptID, err := scope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Get(r.Context(), userID, receiptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto)
	}
}

// Replace overwrites a receipt and its items.
func Replace(svc internalreceipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipts service unavailable"))
			return
		}

		userID, receiptID, err := scope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body internalreceipts.ReceiptInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Replace(r.Context(), userID, receiptID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto)
	}
}

// Delete removes a receipt, then removes its stored photos. Photo cleanup
// failures are logged and do not fail the request.
func Delete(svc internalreceipts.Service, images receiptimages.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipts service unavailable"))
			return
		}

		userID, receiptID, err := scope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var keys []string
		if images != nil {
			existing, err := svc.Get(r.Context(), userID, receiptID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			for _, ref := range existing.ImageURLs {
				if receiptimages.IsStoredKey(ref) {
					keys = append(keys, ref)
				}
			}
		}

		if err := svc.Delete(r.Context(), userID, receiptID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		for _, key := range keys {
			if err := images.Delete(r.Context(), userID, key); err != nil {
				logg.Warn(logg.WithFields(r.Context(), map[string]any{
					"receipt_id": receiptID.String(),
					"key":        key,
					"error":      err.Error(),
				}), "receipts.image_cleanup_failed")
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func scope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user")
	}
	raw := strings.TrimSpace(chi.URLParam(r, "receiptId"))
	if raw == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id is required")
	}
	receiptID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid receipt id")
	}
	return userID, receiptID, nil
}
