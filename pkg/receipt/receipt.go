package receipt

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NoImage marks a receipt captured without a stored photo.
const NoImage = "no_image"

// Item is a single line printed on a receipt.
type Item struct {
	ID                  uuid.UUID        `json:"id"`
	Name                string           `json:"name"`
	Price               decimal.Decimal  `json:"price"`
	Category            string           `json:"category"`
	OriginalPrice       *decimal.Decimal `json:"original_price,omitempty"`
	DiscountDescription *string          `json:"discount_description,omitempty"`
	IsDiscount          bool             `json:"is_discount"`
}

// HasItemDiscount reports whether the item carries a usable pre-discount price.
func (i Item) HasItemDiscount() bool {
	return i.OriginalPrice != nil && i.OriginalPrice.GreaterThan(i.Price)
}

// Receipt is one purchase transaction with its line items.
//
// TotalAmount is what was actually paid and is never recomputed from Items.
type Receipt struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	ImageURLs      []string        `json:"image_urls"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalTax       decimal.Decimal `json:"total_tax"`
	Currency       string          `json:"currency"`
	Items          []Item          `json:"items"`
	StoreName      string          `json:"store_name"`
	StoreAddress   string          `json:"store_address"`
	ReceiptName    string          `json:"receipt_name"`
	PurchaseDate   time.Time       `json:"purchase_date"`
	PaymentMethod  string          `json:"payment_method"`
	LogoSearchTerm *string         `json:"logo_search_term,omitempty"`
}

// Params carries the full field set used to build a Receipt.
type Params struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	ImageURLs      []string
	TotalAmount    decimal.Decimal
	TotalTax       decimal.Decimal
	Currency       string
	Items          []Item
	StoreName      string
	StoreAddress   string
	ReceiptName    string
	PurchaseDate   time.Time
	PaymentMethod  string
	LogoSearchTerm *string
}

// New builds a receipt from the full field set. A nil image list becomes empty.
func New(p Params) Receipt {
	images := make([]string, 0, len(p.ImageURLs))
	images = append(images, p.ImageURLs...)

	items := make([]Item, 0, len(p.Items))
	items = append(items, p.Items...)

	return Receipt{
		ID:             p.ID,
		UserID:         p.UserID,
		ImageURLs:      images,
		TotalAmount:    p.TotalAmount,
		TotalTax:       p.TotalTax,
		Currency:       p.Currency,
		Items:          items,
		StoreName:      p.StoreName,
		StoreAddress:   p.StoreAddress,
		ReceiptName:    p.ReceiptName,
		PurchaseDate:   p.PurchaseDate,
		PaymentMethod:  p.PaymentMethod,
		LogoSearchTerm: p.LogoSearchTerm,
	}
}

// NewWithImage builds a receipt from a single image reference. NoImage yields an
// empty list so both constructors share one representation.
func NewWithImage(p Params, image string) Receipt {
	if image == NoImage {
		p.ImageURLs = nil
	} else {
		p.ImageURLs = []string{image}
	}
	return New(p)
}

// ImageURL returns the first image reference, or NoImage when there is none.
func (r Receipt) ImageURL() string {
	if len(r.ImageURLs) == 0 {
		return NoImage
	}
	return r.ImageURLs[0]
}

// OriginalPrice is what the bill would have been without discounts: tax plus
// every regular item at its pre-discount price. Discount lines are excluded.
func (r Receipt) OriginalPrice() decimal.Decimal {
	regular := decimal.Zero
	for _, item := range r.Items {
		switch {
		case item.IsDiscount:
			continue
		case item.OriginalPrice != nil && item.OriginalPrice.GreaterThan(item.Price):
			regular = regular.Add(*item.OriginalPrice)
		default:
			regular = regular.Add(item.Price)
		}
	}
	return regular.Add(r.TotalTax)
}

// Savings sums discount lines by magnitude plus per-item markdowns.
// Discount lines count here but are excluded from OriginalPrice, so the two
// must not share a helper.
func (r Receipt) Savings() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		switch {
		case item.IsDiscount:
			total = total.Add(item.Price.Abs())
		case item.OriginalPrice != nil && item.OriginalPrice.GreaterThan(item.Price):
			total = total.Add(item.OriginalPrice.Sub(item.Price))
		}
	}
	return total
}

// ActualAmountSpent is the printed total, which already reflects discounts.
func (r Receipt) ActualAmountSpent() decimal.Decimal {
	return r.TotalAmount
}

// Clone returns a deep copy so edits on the copy never alias the original.
func (r Receipt) Clone() Receipt {
	out := r
	out.ImageURLs = append(make([]string, 0, len(r.ImageURLs)), r.ImageURLs...)
	out.Items = make([]Item, len(r.Items))
	for i, item := range r.Items {
		cp := item
		if item.OriginalPrice != nil {
			v := *item.OriginalPrice
			cp.OriginalPrice = &v
		}
		if item.DiscountDescription != nil {
			v := *item.DiscountDescription
			cp.DiscountDescription = &v
		}
		out.Items[i] = cp
	}
	if r.LogoSearchTerm != nil {
		v := *r.LogoSearchTerm
		out.LogoSearchTerm = &v
	}
	return out
}
