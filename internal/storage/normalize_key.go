package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizeKey converts a key value to a canonical string form, suitable for
// in-memory key sets (e.g. "8429529" or "2024-03-01").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps key sets consistent across backends (SQLite returns int64, MySQL may
// return []byte, a CSV source returns string, all for the same id).
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.DateOnly)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// KeyInt64 coerces an identifier value read from any backend into int64.
//
// Errors:
//   - nil, empty strings, and fractional numbers are rejected.
func KeyInt64(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, fmt.Errorf("key is NULL")
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("key %v is not an integer", t)
		}
		return int64(t), nil
	case string, []byte:
		s := NormalizeKey(t)
		if s == "" {
			return 0, fmt.Errorf("key is empty")
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// "7.0" style exports from spreadsheets.
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) {
				return 0, fmt.Errorf("key %q is not an integer", s)
			}
			return int64(f), nil
		}
		return n, nil
	default:
		return KeyInt64(NormalizeKey(v))
	}
}
