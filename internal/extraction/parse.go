package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/snapspend-backend/pkg/enums"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

const (
	DefaultStoreName     = "Unknown Store"
	DefaultPaymentMethod = "Unknown"
	defaultItemName      = "Item"
)

// ErrUnparseable is returned when a model reply holds no usable receipt.
var ErrUnparseable = errors.New("extraction: reply is not a receipt object")

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04",
	"01/02/2006",
	"01/02/06",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

type parseDefaults struct {
	currency enums.Currency
	now      time.Time
}

type rawReceipt struct {
	StoreName      flexString `json:"store_name"`
	StoreAddress   flexString `json:"store_address"`
	ReceiptName    flexString `json:"receipt_name"`
	PurchaseDate   flexString `json:"purchase_date"`
	TotalAmount    flexNumber `json:"total_amount"`
	TotalTax       flexNumber `json:"total_tax"`
	Currency       flexString `json:"currency"`
	PaymentMethod  flexString `json:"payment_method"`
	LogoSearchTerm flexString `json:"logo_search_term"`
	Items          []rawItem  `json:"items"`
}

type rawItem struct {
	Name                flexString `json:"name"`
	Price               flexNumber `json:"price"`
	Category            flexString `json:"category"`
	OriginalPrice       flexNumber `json:"original_price"`
	DiscountDescription flexString `json:"discount_description"`
	IsDiscount          flexBool   `json:"is_discount"`
}

// parseReply turns a model reply into a receipt draft. Missing fields get
// defaults; a reply without a JSON object, or with neither items nor a total,
// is ErrUnparseable.
func parseReply(content string, d parseDefaults) (receipt.Receipt, error) {
	body, ok := isolateObject(stripFences(content))
	if !ok {
		return receipt.Receipt{}, ErrUnparseable
	}

	var raw rawReceipt
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return receipt.Receipt{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	items := buildItems(raw.Items)
	if len(items) == 0 && !raw.TotalAmount.set {
		return receipt.Receipt{}, ErrUnparseable
	}

	store := raw.StoreName.orDefault(DefaultStoreName)

	total := raw.TotalAmount.value
	if !raw.TotalAmount.set {
		total = sumItems(items).Add(raw.TotalTax.value)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}

	tax := raw.TotalTax.value
	if tax.IsNegative() {
		tax = decimal.Zero
	}

	currency := d.currency
	if parsed, err := enums.ParseCurrency(raw.Currency.value); err == nil {
		currency = parsed
	}

	var logoTerm *string
	if term := strings.TrimSpace(raw.LogoSearchTerm.value); term != "" {
		logoTerm = &term
	}

	return receipt.New(receipt.Params{
		ID:             uuid.New(),
		TotalAmount:    total,
		TotalTax:       tax,
		Currency:       currency.String(),
		Items:          items,
		StoreName:      store,
		StoreAddress:   strings.TrimSpace(raw.StoreAddress.value),
		ReceiptName:    raw.ReceiptName.orDefault(store),
		PurchaseDate:   parseDate(raw.PurchaseDate.value, d.now),
		PaymentMethod:  raw.PaymentMethod.orDefault(DefaultPaymentMethod),
		LogoSearchTerm: logoTerm,
	}), nil
}

func buildItems(raw []rawItem) []receipt.Item {
	items := make([]receipt.Item, 0, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r.Name.value)
		if name == "" && !r.Price.set {
			continue
		}
		if name == "" {
			name = defaultItemName
		}

		item := receipt.Item{
			ID:         uuid.New(),
			Name:       name,
			Price:      r.Price.value,
			Category:   enums.NormalizeCategory(r.Category.value).String(),
			IsDiscount: bool(r.IsDiscount),
		}
		if item.IsDiscount && item.Price.IsPositive() {
			item.Price = item.Price.Neg()
		}
		if r.OriginalPrice.set && r.OriginalPrice.value.GreaterThan(item.Price) && !item.IsDiscount {
			original := r.OriginalPrice.value
			item.OriginalPrice = &original
		}
		if desc := strings.TrimSpace(r.DiscountDescription.value); desc != "" {
			item.DiscountDescription = &desc
		}
		items = append(items, item)
	}
	return items
}

func sumItems(items []receipt.Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price)
	}
	return sum
}

func stripFences(content string) string {
	if m := fencePattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return content
}

func isolateObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// parseDate falls back to now when the value is missing or unreadable.
func parseDate(value string, now time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return now
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return now
}

// flexString accepts strings, numbers and null.
type flexString struct {
	value string
}

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.value)
	}
	s.value = string(data)
	return nil
}

func (s flexString) orDefault(fallback string) string {
	if v := strings.TrimSpace(s.value); v != "" && !strings.EqualFold(v, "null") {
		return v
	}
	return fallback
}

// flexNumber accepts JSON numbers and printed amounts such as "$1,234.50",
// "12,99" or "(3.00)".
type flexNumber struct {
	value decimal.Decimal
	set   bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	value, ok := parseAmount(raw)
	if !ok {
		return nil
	}
	n.value = value
	n.set = true
	return nil
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-':
			negative = !negative
		}
	}
	s = b.String()
	if s == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	switch {
	case lastComma > lastDot && len(s)-lastComma-1 <= 2:
		// decimal comma: "1.234,50" or "12,99"
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		value = value.Neg()
	}
	return value, true
}

// flexBool accepts booleans, "true"/"yes" strings and 1/0.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`)) {
	case "true", "yes", "1", "y":
		*b = true
	default:
		*b = false
	}
	return nil
}
