package xtream

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Xtream panels encode the same field as a JSON number on one install and a
// JSON string on the next. Every mapper goes through these helpers instead of
// type-asserting inline; a value that fits neither encoding degrades to the
// type's zero value rather than failing the record.

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	}
	return ""
}

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
		if f, err := x.Float64(); err == nil {
			return int(f)
		}
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f)
		}
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return 0
}

// timeLayouts providers use for release dates and account expiry.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// asTime interprets v as a Unix-epoch second count (string or number) or an
// ISO-8601-ish string. Unparseable values yield the zero time; callers treat
// that as "absent" rather than aborting the record.
func asTime(v any) time.Time {
	switch x := v.(type) {
	case float64:
		if x <= 0 {
			return time.Time{}
		}
		return time.Unix(int64(x), 0).UTC()
	case json.Number:
		if n, err := x.Int64(); err == nil && n > 0 {
			return time.Unix(n, 0).UTC()
		}
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return time.Unix(n, 0).UTC()
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
