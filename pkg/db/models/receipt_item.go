package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptItem is one line of a receipt; Position keeps the printed order.
type ReceiptItem struct {
	ID                  uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReceiptID           uuid.UUID        `gorm:"column:receipt_id;type:uuid;not null"`
	Position            int              `gorm:"column:position;not null"`
	Name                string           `gorm:"column:name;not null"`
	Price               decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	Category            string           `gorm:"column:category;not null"`
	OriginalPrice       *decimal.Decimal `gorm:"column:original_price;type:numeric(12,2)"`
	DiscountDescription *string          `gorm:"column:discount_description"`
	IsDiscount          bool             `gorm:"column:is_discount;not null;default:false"`
}
