// Package builtin contains small, reusable value transforms used by the loader.
package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// KeySeparator separates components of a composite natural key. ASCII Unit
// Separator never appears in the attribute values we key on.
const KeySeparator = "\x1f"

// NaturalKey builds the canonical string form of a composite natural key.
//
// Canonicalization rules:
//   - Components are joined in the given order using KeySeparator.
//   - nil is encoded as a single NUL byte (0x00) so missing differs from empty-string.
//   - Strings and []byte are trimmed of edge whitespace.
//   - Integers of any width encode identically ("7" for int, int32, int64).
//   - time.Time at UTC midnight encodes as YYYY-MM-DD, anything else as RFC3339Nano UTC.
//   - decimal.Decimal encodes without trailing zeros.
//
// Two snapshots read from different backends therefore agree on the key as
// long as the typed values agree.
func NaturalKey(values ...any) string {
	var b strings.Builder
	b.Grow(len(values) * 12)
	for i, v := range values {
		if i > 0 {
			b.WriteString(KeySeparator)
		}
		appendCanonicalValue(&b, v)
	}
	return b.String()
}

// appendCanonicalValue appends a stable, canonical representation of v.
// It avoids fmt.Sprint for common types to reduce allocations.
func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')

	case string:
		if HasEdgeSpace(t) {
			t = strings.TrimSpace(t)
		}
		b.WriteString(t)

	case []byte:
		s := string(t)
		if HasEdgeSpace(s) {
			s = strings.TrimSpace(s)
		}
		b.WriteString(s)

	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}

	case int:
		b.WriteString(strconv.Itoa(t))
	case int8:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))

	case uint:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))

	case float32:
		b.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	case decimal.Decimal:
		b.WriteString(t.String())

	case time.Time:
		tt := t.UTC()
		if tt.Hour() == 0 && tt.Minute() == 0 && tt.Second() == 0 && tt.Nanosecond() == 0 {
			b.WriteString(tt.Format(time.DateOnly))
			return
		}
		b.WriteString(tt.Format(time.RFC3339Nano))

	default:
		b.WriteString(fmt.Sprint(t))
	}
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace. It lets
// hot paths skip strings.TrimSpace for the common already-clean value.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
