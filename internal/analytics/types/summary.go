package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SummaryRequest selects the receipts a summary covers. From is inclusive and
// To is exclusive; nil bounds are open.
type SummaryRequest struct {
	UserID uuid.UUID
	From   *time.Time
	To     *time.Time
}

// LabelValue is one entry of a breakdown such as spend per category.
type LabelValue struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// MonthPoint is the spend for one calendar month (UTC), keyed "2006-01".
type MonthPoint struct {
	Month        string          `json:"month"`
	Spent        decimal.Decimal `json:"spent"`
	Saved        decimal.Decimal `json:"saved"`
	ReceiptCount int             `json:"receipt_count"`
}

// StoreTotal is the spend at one store.
type StoreTotal struct {
	StoreName    string          `json:"store_name"`
	Spent        decimal.Decimal `json:"spent"`
	ReceiptCount int             `json:"receipt_count"`
}

// Summary aggregates a user's receipts. Totals use the receipt value model so
// they match what each receipt shows individually.
type Summary struct {
	From          *time.Time      `json:"from,omitempty"`
	To            *time.Time      `json:"to,omitempty"`
	ReceiptCount  int             `json:"receipt_count"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	TotalSaved    decimal.Decimal `json:"total_saved"`
	TotalOriginal decimal.Decimal `json:"total_original"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	ByCategory    []LabelValue    `json:"by_category"`
	ByMonth       []MonthPoint    `json:"by_month"`
	TopStores     []StoreTotal    `json:"top_stores"`
	Currencies    []string        `json:"currencies"`
	GeneratedAt   time.Time       `json:"generated_at"`
}
