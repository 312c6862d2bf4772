package analytics

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/snapspend-backend/api/validators"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// resolveRange reads either explicit from/to bounds (each optional) or a
// preset ending now. Without either the range is unbounded.
func resolveRange(r *http.Request, now time.Time) (*time.Time, *time.Time, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return nil, nil, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return nil, nil, err
	}

	if from != nil || to != nil {
		if from != nil && to != nil && !from.Before(*to) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
		}
		return from, to, nil
	}

	preset := strings.TrimSpace(r.URL.Query().Get("preset"))
	if preset == "" || strings.EqualFold(preset, "all") {
		return nil, nil, nil
	}
	duration, ok := presetDuration(preset)
	if !ok {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset").
			WithDetails(map[string]any{"field": "preset", "allowed": []string{"7d", "30d", "90d", "365d", "all"}})
	}

	end := now
	start := end.Add(-duration)
	return &start, &end, nil
}

func presetDuration(value string) (time.Duration, bool) {
	switch strings.ToLower(value) {
	case "7d":
		return 7 * 24 * time.Hour, true
	case "30d":
		return 30 * 24 * time.Hour, true
	case "90d":
		return 90 * 24 * time.Hour, true
	case "365d":
		return 365 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
