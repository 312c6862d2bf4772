package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

type guestReceipt struct {
	GuestID      string `gorm:"primaryKey"`
	ID           string `gorm:"primaryKey"`
	PurchaseDate time.Time
	Data         string
	UpdatedAt    time.Time
}

func (guestReceipt) TableName() string { return "guest_receipts" }

// GuestReceipts holds the receipts of one guest on this device.
type GuestReceipts struct {
	store   *Store
	guestID uuid.UUID
}

// Receipts returns the receipt list of the given guest.
func (s *Store) Receipts(guestID uuid.UUID) *GuestReceipts {
	return &GuestReceipts{store: s, guestID: guestID}
}

// List returns the guest's receipts, newest purchase first.
func (g *GuestReceipts) List(ctx context.Context) ([]receipt.Receipt, error) {
	var rows []guestReceipt
	err := g.store.db.WithContext(ctx).
		Where("guest_id = ?", g.guestID.String()).
		Order("purchase_date DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]receipt.Receipt, 0, len(rows))
	for _, row := range rows {
		var r receipt.Receipt
		if err := json.Unmarshal([]byte(row.Data), &r); err != nil {
			return nil, fmt.Errorf("decode local receipt %s: %w", row.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Get returns one receipt or ErrNotFound.
func (g *GuestReceipts) Get(ctx context.Context, id uuid.UUID) (receipt.Receipt, error) {
	var row guestReceipt
	err := g.store.db.WithContext(ctx).
		Where("guest_id = ? AND id = ?", g.guestID.String(), id.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return receipt.Receipt{}, ErrNotFound
	}
	if err != nil {
		return receipt.Receipt{}, err
	}
	var r receipt.Receipt
	if err := json.Unmarshal([]byte(row.Data), &r); err != nil {
		return receipt.Receipt{}, fmt.Errorf("decode local receipt %s: %w", row.ID, err)
	}
	return r, nil
}

// Save inserts the receipt or replaces the stored copy with the same id.
func (g *GuestReceipts) Save(ctx context.Context, r receipt.Receipt) error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("receipt id required")
	}
	r.UserID = g.guestID
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	row := guestReceipt{
		GuestID:      g.guestID.String(),
		ID:           r.ID.String(),
		PurchaseDate: r.PurchaseDate.UTC(),
		Data:         string(data),
		UpdatedAt:    g.store.now().UTC(),
	}
	return g.store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guest_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"purchase_date", "data", "updated_at"}),
	}).Create(&row).Error
}

// Delete removes one receipt. Missing ids are not an error.
func (g *GuestReceipts) Delete(ctx context.Context, id uuid.UUID) error {
	return g.store.db.WithContext(ctx).
		Where("guest_id = ? AND id = ?", g.guestID.String(), id.String()).
		Delete(&guestReceipt{}).Error
}

// Replace swaps the whole list in one transaction.
func (g *GuestReceipts) Replace(ctx context.Context, receipts []receipt.Receipt) error {
	return g.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guest_id = ?", g.guestID.String()).Delete(&guestReceipt{}).Error; err != nil {
			return err
		}
		scoped := &GuestReceipts{store: &Store{db: tx, now: g.store.now}, guestID: g.guestID}
		for _, r := range receipts {
			if err := scoped.Save(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}
