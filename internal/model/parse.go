package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValidationError describes why a payload could not become a Detection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// isoLayouts are tried in order by ParseTimestamp. Fractional seconds are
// accepted by time.Parse even when a layout does not spell them out.
var isoLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05-07",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

const (
	minYear = 1
	maxYear = 9999
)

// ParseTimestamp parses an ISO-8601 date or date-time. Values without an
// offset are taken as UTC. The result is UTC, truncated to microseconds, and
// must fall within years 1 to 9999.
func ParseTimestamp(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if len(v) > 10 && v[10] == ' ' {
		v = v[:10] + "T" + v[11:]
	}
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		t = t.UTC().Truncate(time.Microsecond)
		// Storage and ordering rely on a four-digit year after the offset is applied.
		if y := t.Year(); y < minYear || y > maxYear {
			return time.Time{}, fmt.Errorf("year %d is out of range in %q", y, s)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid isoformat string: %q", s)
}

// ParseDetection turns a decoded JSON object into a Detection.
//
// Missing label becomes "", missing confidence 0, missing bbox four nils,
// missing timestamp now(). The record source falls back to defaultSource
// and then to DefaultSource. The returned Detection has no ID.
func ParseDetection(raw map[string]interface{}, defaultSource string, now func() time.Time) (Detection, error) {
	var det Detection

	label, err := optionalString(raw, "label")
	if err != nil {
		return det, err
	}
	det.Label = label

	if v, ok := raw["confidence"]; ok {
		c, err := toFloat(v)
		if err != nil {
			return det, invalid("confidence", "%v", err)
		}
		det.Confidence = c
	}

	if det.BBox, err = parseBBox(raw["bbox"]); err != nil {
		return det, err
	}

	source, err := optionalString(raw, "source")
	if err != nil {
		return det, err
	}
	det.Source = firstNonEmpty(source, defaultSource, DefaultSource)

	ts, err := optionalString(raw, "timestamp")
	if err != nil {
		return det, err
	}
	if ts == "" {
		det.Timestamp = now().UTC().Truncate(time.Microsecond)
	} else {
		t, err := ParseTimestamp(ts)
		if err != nil {
			return det, invalid("timestamp", "%v", err)
		}
		det.Timestamp = t
	}

	return det, nil
}

// optionalString returns "" for a missing or null key and fails on non-strings.
func optionalString(raw map[string]interface{}, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(key, "expected a string, got %s", kindOf(v))
	}
	return s, nil
}

func parseBBox(v interface{}) (BBox, error) {
	var box BBox
	if v == nil {
		return box, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return box, invalid("bbox", "expected an array, got %s", kindOf(v))
	}
	if len(items) != len(box) {
		return box, invalid("bbox", "expected 4 elements, got %d", len(items))
	}
	for i, item := range items {
		if item == nil {
			continue
		}
		f, err := toFloat(item)
		if err != nil {
			return box, invalid("bbox", "element %d: %v", i, err)
		}
		box[i] = &f
	}
	return box, nil
}

// toFloat accepts JSON numbers and numeric strings. Non-finite values are rejected
// because they cannot be written back out as JSON.
func toFloat(v interface{}) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("could not convert %q to float", n.String())
		}
		f = parsed
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: %q", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected a number, got %s", kindOf(v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value must be finite")
	}
	return f, nil
}

func kindOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
