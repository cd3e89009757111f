package utils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dateTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ConvertDateTime parses a timestamp value. Strings are tried against the
// ISO 8601 layouts APIs commonly return, with or without a zone.
func ConvertDateTime(val interface{}) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, f := range dateTimeFormats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v))
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", val)
	}
}

func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(v)
	case []byte:
		return strconv.Atoi(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

// ConvertToFloat converts numeric values and numeric strings to float64.
func ConvertToFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}

// IsNumeric reports whether val holds a Go numeric type.
func IsNumeric(val interface{}) bool {
	switch val.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return true
	}
	return false
}

// CompareValues orders two cursor values: numerically when both are numbers,
// chronologically when both parse as timestamps, lexically otherwise.
func CompareValues(a, b interface{}) (int, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("cannot compare %v with %v", a, b)
	}

	if IsNumeric(a) && IsNumeric(b) {
		fa, _ := ConvertToFloat(a)
		fb, _ := ConvertToFloat(b)
		return compareOrdered(fa, fb), nil
	}

	ta, errA := ConvertDateTime(a)
	tb, errB := ConvertDateTime(b)
	if errA == nil && errB == nil {
		return ta.Compare(tb), nil
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ToString renders a scalar for use in a URL query string.
func ToString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
