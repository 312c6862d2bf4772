package analytics

import (
	"context"
	"io"
	"time"

	"github.com/angelmondragon/snapspend-backend/internal/analytics/types"
	"github.com/angelmondragon/snapspend-backend/internal/export"
)

type testAnalyticsService struct {
	last     types.SummaryRequest
	calls    int
	response *types.Summary
	err      error
}

func (s *testAnalyticsService) Summary(ctx context.Context, req types.SummaryRequest) (*types.Summary, error) {
	s.last = req
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.response == nil {
		s.response = &types.Summary{}
	}
	return s.response, nil
}

func (s *testAnalyticsService) called() bool {
	return s.calls > 0
}

func (s *testAnalyticsService) period() time.Duration {
	if s.last.From == nil || s.last.To == nil {
		return 0
	}
	return s.last.To.Sub(*s.last.From)
}

type testExportService struct {
	last export.Request
	body string
	rows int
	err  error
}

func (s *testExportService) WriteCSV(ctx context.Context, w io.Writer, req export.Request) (int, error) {
	s.last = req
	if s.err != nil {
		return 0, s.err
	}
	if _, err := io.WriteString(w, s.body); err != nil {
		return 0, err
	}
	return s.rows, nil
}
