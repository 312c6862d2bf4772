package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// LabelValue is one category bucket of a summary.
type LabelValue struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// MonthPoint is the spend of one calendar month.
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

// Summary is the spending overview for a date range.
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

// Summary fetches the spending summary; nil bounds are open.
func (c *Client) Summary(ctx context.Context, from, to *time.Time) (*Summary, error) {
	req, _ := jsonRequest(http.MethodGet, "/analytics/summary", nil)
	req.query = rangeQuery(from, to)
	var out Summary
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
