package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

// Header is the first CSV row.
var Header = []string{
	"id",
	"purchase_date",
	"store_name",
	"store_address",
	"receipt_name",
	"payment_method",
	"currency",
	"total_amount",
	"total_tax",
	"original_price",
	"savings",
	"actual_amount_spent",
	"item_count",
	"image_url",
}

// Request selects the receipts to export.
type Request struct {
	UserID uuid.UUID
	From   *time.Time
	To     *time.Time
}

// Service streams a user's receipts as CSV.
type Service interface {
	WriteCSV(ctx context.Context, w io.Writer, req Request) (int, error)
}

type receiptSource interface {
	All(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]receipt.Receipt, error)
}

type service struct {
	receipts receiptSource
}

// NewService builds an export service over the receipt source.
func NewService(receipts receiptSource) (Service, error) {
	if receipts == nil {
		return nil, fmt.Errorf("receipt source required")
	}
	return &service{receipts: receipts}, nil
}

// WriteCSV writes the header and one row per receipt, returning the number of
// receipt rows written.
func (s *service) WriteCSV(ctx context.Context, w io.Writer, req Request) (int, error) {
	if req.UserID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}

	receipts, err := s.receipts.All(ctx, req.UserID, req.From, req.To)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i, r := range receipts {
		if err := cw.Write(Row(r)); err != nil {
			return i, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return len(receipts), fmt.Errorf("flush csv: %w", err)
	}
	return len(receipts), nil
}

// Row renders one receipt. Money columns use two decimal places.
func Row(r receipt.Receipt) []string {
	image := r.ImageURL()
	if image == receipt.NoImage {
		image = ""
	}
	return []string{
		r.ID.String(),
		r.PurchaseDate.UTC().Format(time.RFC3339),
		r.StoreName,
		r.StoreAddress,
		r.ReceiptName,
		r.PaymentMethod,
		r.Currency,
		r.TotalAmount.StringFixed(2),
		r.TotalTax.StringFixed(2),
		r.OriginalPrice().StringFixed(2),
		r.Savings().StringFixed(2),
		r.ActualAmountSpent().StringFixed(2),
		strconv.Itoa(len(r.Items)),
		image,
	}
}
