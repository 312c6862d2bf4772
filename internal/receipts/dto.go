package receipts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/snapspend-backend/pkg/db/models"
	"github.com/angelmondragon/snapspend-backend/pkg/enums"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

// ItemInput is one line item in a create or replace request.
type ItemInput struct {
	ID                  *uuid.UUID       `json:"id,omitempty"`
	Name                string           `json:"name" validate:"required"`
	Price               decimal.Decimal  `json:"price"`
	Category            string           `json:"category"`
	OriginalPrice       *decimal.Decimal `json:"original_price,omitempty"`
	DiscountDescription *string          `json:"discount_description,omitempty"`
	IsDiscount          bool             `json:"is_discount"`
}

// ReceiptInput is the whole-record payload for create and replace. The id is
// optional on create so clients can keep the id they generated locally.
type ReceiptInput struct {
	ID             *uuid.UUID      `json:"id,omitempty"`
	StoreName      string          `json:"store_name" validate:"required"`
	StoreAddress   string          `json:"store_address"`
	ReceiptName    string          `json:"receipt_name"`
	PurchaseDate   time.Time       `json:"purchase_date" validate:"required"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalTax       decimal.Decimal `json:"total_tax"`
	Currency       string          `json:"currency" validate:"omitempty,currency"`
	PaymentMethod  string          `json:"payment_method"`
	ImageURLs      []string        `json:"image_urls"`
	LogoSearchTerm *string         `json:"logo_search_term,omitempty"`
	Items          []ItemInput     `json:"items" validate:"dive"`
}

// ReceiptDTO is the transport shape of a stored receipt, including the derived
// totals so every client renders identical numbers.
type ReceiptDTO struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	StoreName         string          `json:"store_name"`
	StoreAddress      string          `json:"store_address"`
	ReceiptName       string          `json:"receipt_name"`
	PurchaseDate      time.Time       `json:"purchase_date"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	TotalTax          decimal.Decimal `json:"total_tax"`
	Currency          string          `json:"currency"`
	PaymentMethod     string          `json:"payment_method"`
	ImageURLs         []string        `json:"image_urls"`
	ImageURL          string          `json:"image_url"`
	LogoSearchTerm    *string         `json:"logo_search_term,omitempty"`
	LogoURL           string          `json:"logo_url,omitempty"`
	Items             []receipt.Item  `json:"items"`
	OriginalPrice     decimal.Decimal `json:"original_price"`
	Savings           decimal.Decimal `json:"savings"`
	ActualAmountSpent decimal.Decimal `json:"actual_amount_spent"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ToDomain converts a persisted receipt with its items into the value model.
func ToDomain(m models.Receipt) receipt.Receipt {
	items := make([]receipt.Item, 0, len(m.Items))
	for _, it := range m.Items {
		items = append(items, receipt.Item{
			ID:                  it.ID,
			Name:                it.Name,
			Price:               it.Price,
			Category:            it.Category,
			OriginalPrice:       it.OriginalPrice,
			DiscountDescription: it.DiscountDescription,
			IsDiscount:          it.IsDiscount,
		})
	}
	return receipt.New(receipt.Params{
		ID:             m.ID,
		UserID:         m.UserID,
		ImageURLs:      []string(m.ImageURLs),
		TotalAmount:    m.TotalAmount,
		TotalTax:       m.TotalTax,
		Currency:       m.Currency,
		Items:          items,
		StoreName:      m.StoreName,
		StoreAddress:   m.StoreAddress,
		ReceiptName:    m.ReceiptName,
		PurchaseDate:   m.PurchaseDate,
		PaymentMethod:  m.PaymentMethod,
		LogoSearchTerm: m.LogoSearchTerm,
	})
}

func toDTO(m models.Receipt, logoURL func(string) string) ReceiptDTO {
	r := ToDomain(m)
	dto := ReceiptDTO{
		ID:                r.ID,
		UserID:            r.UserID,
		StoreName:         r.StoreName,
		StoreAddress:      r.StoreAddress,
		ReceiptName:       r.ReceiptName,
		PurchaseDate:      r.PurchaseDate,
		TotalAmount:       r.TotalAmount,
		TotalTax:          r.TotalTax,
		Currency:          r.Currency,
		PaymentMethod:     r.PaymentMethod,
		ImageURLs:         r.ImageURLs,
		ImageURL:          r.ImageURL(),
		LogoSearchTerm:    r.LogoSearchTerm,
		Items:             r.Items,
		OriginalPrice:     r.OriginalPrice(),
		Savings:           r.Savings(),
		ActualAmountSpent: r.ActualAmountSpent(),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if logoURL != nil {
		dto.LogoURL = logoURL(LogoTerm(r))
	}
	return dto
}

// LogoTerm is the search term used for the store logo: the explicit term when
// set, otherwise the store name.
func LogoTerm(r receipt.Receipt) string {
	if r.LogoSearchTerm != nil && strings.TrimSpace(*r.LogoSearchTerm) != "" {
		return *r.LogoSearchTerm
	}
	return r.StoreName
}

func (in ReceiptInput) toModel(id, userID uuid.UUID, currency enums.Currency) *models.Receipt {
	images := make([]string, 0, len(in.ImageURLs))
	for _, ref := range in.ImageURLs {
		if ref = strings.TrimSpace(ref); ref != "" && ref != receipt.NoImage {
			images = append(images, ref)
		}
	}

	paymentMethod := strings.TrimSpace(in.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = "Unknown"
	}

	m := &models.Receipt{
		ID:             id,
		UserID:         userID,
		StoreName:      strings.TrimSpace(in.StoreName),
		StoreAddress:   strings.TrimSpace(in.StoreAddress),
		ReceiptName:    strings.TrimSpace(in.ReceiptName),
		PurchaseDate:   in.PurchaseDate.UTC(),
		TotalAmount:    in.TotalAmount,
		TotalTax:       in.TotalTax,
		Currency:       currency.String(),
		PaymentMethod:  paymentMethod,
		ImageURLs:      pq.StringArray(images),
		LogoSearchTerm: trimmedOrNil(in.LogoSearchTerm),
	}
	m.Items = buildItems(id, in.Items)
	return m
}

func buildItems(receiptID uuid.UUID, inputs []ItemInput) []models.ReceiptItem {
	items := make([]models.ReceiptItem, 0, len(inputs))
	for i, in := range inputs {
		id := uuid.New()
		if in.ID != nil && *in.ID != uuid.Nil {
			id = *in.ID
		}
		category := strings.TrimSpace(in.Category)
		if category == "" {
			category = enums.CategoryOther.String()
		}
		items = append(items, models.ReceiptItem{
			ID:                  id,
			ReceiptID:           receiptID,
			Position:            i,
			Name:                strings.TrimSpace(in.Name),
			Price:               in.Price,
			Category:            category,
			OriginalPrice:       in.OriginalPrice,
			DiscountDescription: trimmedOrNil(in.DiscountDescription),
			IsDiscount:          in.IsDiscount,
		})
	}
	return items
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// InputFromReceipt converts an extracted receipt into a create payload,
// keeping its id and item ids.
func InputFromReceipt(r receipt.Receipt) ReceiptInput {
	items := make([]ItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		id := it.ID
		items = append(items, ItemInput{
			ID:                  &id,
			Name:                it.Name,
			Price:               it.Price,
			Category:            it.Category,
			OriginalPrice:       it.OriginalPrice,
			DiscountDescription: it.DiscountDescription,
			IsDiscount:          it.IsDiscount,
		})
	}
	id := r.ID
	return ReceiptInput{
		ID:             &id,
		StoreName:      r.StoreName,
		StoreAddress:   r.StoreAddress,
		ReceiptName:    r.ReceiptName,
		PurchaseDate:   r.PurchaseDate,
		TotalAmount:    r.TotalAmount,
		TotalTax:       r.TotalTax,
		Currency:       r.Currency,
		PaymentMethod:  r.PaymentMethod,
		ImageURLs:      append([]string(nil), r.ImageURLs...),
		LogoSearchTerm: r.LogoSearchTerm,
		Items:          items,
	}
}
