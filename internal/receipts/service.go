package receipts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapspend-backend/pkg/db"
	"github.com/angelmondragon/snapspend-backend/pkg/db/models"
	"github.com/angelmondragon/snapspend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	pkgpagination "github.com/angelmondragon/snapspend-backend/pkg/pagination"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

// Service exposes owner-scoped receipt persistence.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input ReceiptInput) (*ReceiptDTO, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*ReceiptDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Replace(ctx context.Context, userID, id uuid.UUID, input ReceiptInput) (*ReceiptDTO, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	All(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]receipt.Receipt, error)
}

type txRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// cacheInvalidator drops derived data for a user after their receipts change.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type logoURLBuilder interface {
	URL(term string) string
}

// ServiceParams bundles the dependencies required to build a receipts service.
type ServiceParams struct {
	DB              txRunner
	Invalidator     cacheInvalidator
	Logo            logoURLBuilder
	Logger          *logger.Logger
	DefaultCurrency string
	MaxRangeRows    int
}

type service struct {
	db              txRunner
	invalidator     cacheInvalidator
	logo            logoURLBuilder
	logg            *logger.Logger
	defaultCurrency enums.Currency
	maxRangeRows    int
}

// NewService constructs a receipts service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := enums.CurrencyUSD
	if strings.TrimSpace(params.DefaultCurrency) != "" {
		parsed, err := enums.ParseKnownCurrency(params.DefaultCurrency)
		if err != nil {
			return nil, fmt.Errorf("default currency: %w", err)
		}
		currency = parsed
	}
	return &service{
		db:              params.DB,
		invalidator:     params.Invalidator,
		logo:            params.Logo,
		logg:            params.Logger,
		defaultCurrency: currency,
		maxRangeRows:    params.MaxRangeRows,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input ReceiptInput) (*ReceiptDTO, error) {
	currency, err := s.validate(userID, input)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	if input.ID != nil && *input.ID != uuid.Nil {
		id = *input.ID
	}
	model := input.toModel(id, userID, currency)

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return NewRepository(tx).Create(ctx, model)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "receipt already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create receipt")
	}

	s.invalidate(ctx, userID)
	return s.reload(ctx, userID, id)
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (*ReceiptDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	return s.reload(ctx, userID, id)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	cursor, err := pkgpagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := NewRepository(s.db.DB()).List(ctx, listQuery{
		userID: params.UserID,
		from:   params.From,
		to:     params.To,
		limit:  pkgpagination.LimitWithBuffer(params.Limit),
		cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list receipts")
	}

	page := pkgpagination.Trim(rows, params.Limit, func(m models.Receipt) pkgpagination.Cursor {
		return pkgpagination.Cursor{At: m.PurchaseDate, ID: m.ID}
	})

	result := &ListResult{
		Items:      make([]ReceiptDTO, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for _, row := range page.Items {
		result.Items = append(result.Items, toDTO(row, s.logoURL))
	}
	return result, nil
}

func (s *service) Replace(ctx context.Context, userID, id uuid.UUID, input ReceiptInput) (*ReceiptDTO, error) {
	currency, err := s.validate(userID, input)
	if err != nil {
		return nil, err
	}
	if input.ID != nil && *input.ID != uuid.Nil && *input.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id does not match path")
	}
	model := input.toModel(id, userID, currency)

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		matched, err := repo.UpdateHeader(ctx, model)
		if err != nil {
			return err
		}
		if matched == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return repo.ReplaceItems(ctx, id, model.Items)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "duplicate receipt item")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace receipt")
	}

	s.invalidate(ctx, userID)
	return s.reload(ctx, userID, id)
}

func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	var found bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		found, err = NewRepository(tx).Delete(ctx, userID, id)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete receipt")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *service) All(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]receipt.Receipt, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	rows, err := NewRepository(s.db.DB()).ListRange(ctx, userID, from, to, s.maxRangeRows)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list receipts")
	}
	out := make([]receipt.Receipt, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDomain(row))
	}
	return out, nil
}

func (s *service) reload(ctx context.Context, userID, id uuid.UUID) (*ReceiptDTO, error) {
	row, err := NewRepository(s.db.DB()).FindByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load receipt")
	}
	dto := toDTO(*row, s.logoURL)
	return &dto, nil
}

func (s *service) validate(userID uuid.UUID, input ReceiptInput) (enums.Currency, error) {
	if userID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if strings.TrimSpace(input.StoreName) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "store_name is required")
	}
	if input.PurchaseDate.IsZero() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "purchase_date is required")
	}
	if input.TotalAmount.IsNegative() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "total_amount cannot be negative")
	}
	if input.TotalTax.IsNegative() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "total_tax cannot be negative")
	}
	for i, item := range input.Items {
		if strings.TrimSpace(item.Name) == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].name is required", i))
		}
	}

	if strings.TrimSpace(input.Currency) == "" {
		return s.defaultCurrency, nil
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	return currency, nil
}

func (s *service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, userID); err != nil {
		s.logg.Warn(s.logg.WithError(ctx, err), "receipts.analytics_invalidate_failed")
	}
}

func (s *service) logoURL(term string) string {
	if s.logo == nil {
		return ""
	}
	return s.logo.URL(term)
}
