package analytics

import "time"

const rangeLayout = "20060102T150405Z"

// RangeKey encodes a summary window for cache keys. Open bounds are written
// as "-" so every window maps to exactly one key.
func RangeKey(from, to *time.Time) string {
	return boundKey(from) + "_" + boundKey(to)
}

func boundKey(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(rangeLayout)
}
