package mirror

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// endTimeKeys is the ordered list of metadata fields that may carry the
// market's resolution or trading-end timestamp. Upstream payloads are
// not versioned, so the first parseable candidate wins.
var endTimeKeys = []string{
	"endDate",
	"end_date_iso",
	"endDateIso",
	"end_date",
	"gameStartTime",
	"closedTime",
}

// extractEndTime walks the candidate fields of a raw metadata payload and
// returns the first timestamp it can parse. ok is false when no field
// yields one.
func extractEndTime(raw map[string]any) (time.Time, bool) {
	for _, key := range endTimeKeys {
		v, present := raw[key]
		if !present || v == nil {
			continue
		}
		if t, ok := parseTimestamp(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTimestamp(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05Z07:00", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromUnix(n), true
		}
		return time.Time{}, false
	case float64:
		return fromUnix(int64(x)), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(n), true
	case int64:
		return fromUnix(x), true
	default:
		return time.Time{}, false
	}
}

// fromUnix treats magnitudes below 1e12 as seconds and larger values as
// milliseconds, matching the heuristic used for trade timestamps.
func fromUnix(n int64) time.Time {
	if n < 1_000_000_000_000 {
		return time.Unix(n, 0).UTC()
	}
	return time.UnixMilli(n).UTC()
}
