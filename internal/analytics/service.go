package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapspend-backend/internal/analytics/query"
	"github.com/angelmondragon/snapspend-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

// Service provides spending summaries over a user's receipts.
type Service interface {
	// Summary returns the spending summary for the requested window.
	Summary(ctx context.Context, req types.SummaryRequest) (*types.Summary, error)
}

type receiptSource interface {
	All(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]receipt.Receipt, error)
}

type summaryCache interface {
	Lookup(ctx context.Context, userID uuid.UUID, rangeKey string) (*types.Summary, int64, error)
	Store(ctx context.Context, userID uuid.UUID, version int64, rangeKey string, summary *types.Summary) error
}

// ServiceParams bundles the dependencies required to build an analytics service.
type ServiceParams struct {
	Receipts  receiptSource
	Cache     summaryCache
	Logger    *logger.Logger
	TopStores int
}

type service struct {
	receipts  receiptSource
	cache     summaryCache
	logg      *logger.Logger
	topStores int
	now       func() time.Time
}

// NewService builds an analytics service. The cache is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Receipts == nil {
		return nil, fmt.Errorf("receipt source required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		receipts:  params.Receipts,
		cache:     params.Cache,
		logg:      params.Logger,
		topStores: params.TopStores,
		now:       time.Now,
	}, nil
}

func (s *service) Summary(ctx context.Context, req types.SummaryRequest) (*types.Summary, error) {
	if req.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}

	rangeKey := RangeKey(req.From, req.To)
	var version int64
	if s.cache != nil {
		cached, v, err := s.cache.Lookup(ctx, req.UserID, rangeKey)
		if err != nil {
			s.logg.Warn(s.logg.WithError(ctx, err), "analytics.cache_lookup_failed")
		} else if cached != nil {
			return cached, nil
		}
		version = v
	}

	receipts, err := s.receipts.All(ctx, req.UserID, req.From, req.To)
	if err != nil {
		return nil, err
	}

	summary := query.Summarize(receipts, s.topStores)
	summary.From = utcPtr(req.From)
	summary.To = utcPtr(req.To)
	summary.GeneratedAt = s.now().UTC()

	if s.cache != nil {
		if err := s.cache.Store(ctx, req.UserID, version, rangeKey, &summary); err != nil {
			s.logg.Warn(s.logg.WithError(ctx, err), "analytics.cache_store_failed")
		}
	}
	return &summary, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
