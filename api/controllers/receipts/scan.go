package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/snapspend-backend/api/middleware"
	"github.com/angelmondragon/snapspend-backend/api/responses"
	"github.com/angelmondragon/snapspend-backend/api/validators"
	"github.com/angelmondragon/snapspend-backend/internal/receiptimages"
	internalreceipts "github.com/angelmondragon/snapspend-backend/internal/receipts"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

const (
	scanFormField    = "image"
	scanKeyField     = "image_key"
	multipartMemory  = 1 << 20
	multipartOverrun = 1 << 20
)

type receiptExtractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (*receipt.Receipt, error)
}

// Scan reads a multipart photo, extracts a receipt draft and, with save=true,
// stores it. Saved receipts answer 201; drafts answer 200.
func Scan(extractor receiptExtractor, svc internalreceipts.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if extractor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt extraction unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
			return
		}

		save, err := validators.ParseQueryBool(r, "save")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if save && svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipts service unavailable"))
			return
		}

		image, mimeType, err := readImage(w, r, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		imageRef := receipt.NoImage
		if raw := strings.TrimSpace(r.FormValue(scanKeyField)); raw != "" {
			key, err := receiptimages.ValidateKey(userID, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			imageRef = key
		}

		draft, err := extractor.Extract(r.Context(), image, mimeType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draft.UserID = userID
		if imageRef != receipt.NoImage {
			draft.ImageURLs = []string{imageRef}
		}

		ctx := logg.WithFields(r.Context(), map[string]any{
			"receipt_id": draft.ID.String(),
			"items":      len(draft.Items),
			"save":       save,
		})
		logg.Info(ctx, "receipts.scan.extracted")

		if !save {
			responses.WriteSuccess(w, draft)
			return
		}

		created, err := svc.Create(r.Context(), userID, internalreceipts.InputFromReceipt(*draft))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func readImage(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverrun)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", pkgerrors.New(pkgerrors.CodeTooLarge, fmt.Sprintf("image must be ≤ %d bytes", maxBytes))
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}

	file, header, err := r.FormFile(scanFormField)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "image file is required").
			WithDetails(map[string]any{"field": scanFormField})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read image")
	}
	if int64(len(data)) > maxBytes {
		return nil, "", pkgerrors.New(pkgerrors.CodeTooLarge, fmt.Sprintf("image must be ≤ %d bytes", maxBytes))
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
