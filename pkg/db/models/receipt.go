package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Receipt is the persisted receipt header. Items are replaced as a set.
type Receipt struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	StoreName      string          `gorm:"column:store_name;not null"`
	StoreAddress   string          `gorm:"column:store_address;not null;default:''"`
	ReceiptName    string          `gorm:"column:receipt_name;not null;default:''"`
	PurchaseDate   time.Time       `gorm:"column:purchase_date;not null"`
	TotalAmount    decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`
	TotalTax       decimal.Decimal `gorm:"column:total_tax;type:numeric(12,2);not null"`
	Currency       string          `gorm:"column:currency;not null;default:'USD'"`
	PaymentMethod  string          `gorm:"column:payment_method;not null;default:'Unknown'"`
	ImageURLs      pq.StringArray  `gorm:"column:image_urls;type:text[];not null;default:'{}'"`
	LogoSearchTerm *string         `gorm:"column:logo_search_term"`
	Items          []ReceiptItem   `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
