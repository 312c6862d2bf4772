package receipts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/snapspend-backend/pkg/db/models"
)

// Repository persists receipts and their line items. Every query is scoped by
// the owning user.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a receipts repository tied to the provided GORM DB.
// Pass the transaction handle to scope every call to it.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Create inserts the receipt header followed by its items.
func (r *Repository) Create(ctx context.Context, receipt *models.Receipt) error {
	if err := r.conn(ctx).Omit(clause.Associations).Create(receipt).Error; err != nil {
		return err
	}
	if len(receipt.Items) == 0 {
		return nil
	}
	return r.conn(ctx).Create(&receipt.Items).Error
}

// FindByID loads a receipt with its items in printed order.
func (r *Repository) FindByID(ctx context.Context, userID, id uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.conn(ctx).
		Preload("Items", orderedItems).
		Where("id = ? AND user_id = ?", id, userID).
		First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// List returns a keyset page ordered by purchase date then id, newest first.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.Receipt, error) {
	query := r.conn(ctx).Model(&models.Receipt{}).Where("user_id = ?", opts.userID)
	query = applyRange(query, opts.from, opts.to)

	if opts.cursor != nil {
		query = query.Where("(purchase_date < ?) OR (purchase_date = ? AND id < ?)", opts.cursor.At, opts.cursor.At, opts.cursor.ID)
	}

	query = query.Preload("Items", orderedItems).
		Order("purchase_date DESC").
		Order("id DESC").
		Limit(opts.limit)

	var rows []models.Receipt
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListRange returns every receipt in the range, oldest first, capped at limit.
func (r *Repository) ListRange(ctx context.Context, userID uuid.UUID, from, to *time.Time, limit int) ([]models.Receipt, error) {
	query := r.conn(ctx).Model(&models.Receipt{}).Where("user_id = ?", userID)
	query = applyRange(query, from, to)
	query = query.Preload("Items", orderedItems).
		Order("purchase_date ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.Receipt
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateHeader overwrites every header column of an owned receipt and reports
// how many rows matched.
func (r *Repository) UpdateHeader(ctx context.Context, receipt *models.Receipt) (int64, error) {
	res := r.conn(ctx).
		Model(&models.Receipt{}).
		Where("id = ? AND user_id = ?", receipt.ID, receipt.UserID).
		Updates(map[string]any{
			"store_name":       receipt.StoreName,
			"store_address":    receipt.StoreAddress,
			"receipt_name":     receipt.ReceiptName,
			"purchase_date":    receipt.PurchaseDate,
			"total_amount":     receipt.TotalAmount,
			"total_tax":        receipt.TotalTax,
			"currency":         receipt.Currency,
			"payment_method":   receipt.PaymentMethod,
			"image_urls":       receipt.ImageURLs,
			"logo_search_term": receipt.LogoSearchTerm,
		})
	return res.RowsAffected, res.Error
}

// ReplaceItems deletes the receipt's items and inserts the provided set.
func (r *Repository) ReplaceItems(ctx context.Context, receiptID uuid.UUID, items []models.ReceiptItem) error {
	if err := r.conn(ctx).Where("receipt_id = ?", receiptID).Delete(&models.ReceiptItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.conn(ctx).Create(&items).Error
}

// Delete removes an owned receipt and its items, reporting whether it existed.
func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	res := r.conn(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Receipt{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := r.conn(ctx).Where("receipt_id = ?", id).Delete(&models.ReceiptItem{}).Error; err != nil {
		return false, err
	}
	return true, nil
}

func applyRange(query *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		query = query.Where("purchase_date >= ?", from.UTC())
	}
	if to != nil {
		query = query.Where("purchase_date < ?", to.UTC())
	}
	return query
}
