package decimal

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

// Tolerance is the rounding slack the authority accepts on VAT arithmetic
var Tolerance = MustFromString("0.01")

var hundred = decimal.NewFromInt(100)

// FromInt creates decimal from int
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// FromString parses decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseStrict converts a JSON-ish value into a decimal, reporting whether it was numeric
func ParseStrict(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return Zero, false
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		if strings.TrimSpace(n) == "" {
			return Zero, false
		}
		d, err := FromString(n)
		return d, err == nil
	default:
		return Zero, false
	}
}

// Parse is the lenient variant: empty or non-numeric input yields 0.00
func Parse(v interface{}) decimal.Decimal {
	d, ok := ParseStrict(v)
	if !ok {
		return Zero
	}
	return Round2(d)
}

// ParseInt converts a JSON-ish value into an integer code
func ParseInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		return integral(n.String())
	case string:
		return integral(n)
	default:
		return 0, false
	}
}

// integral accepts "5" as well as "5.0", rejecting fractional values
func integral(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i, true
	}
	d, err := FromString(s)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	return int(d.IntPart()), true
}

// Round2 rounds to 2 decimal places
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format2 renders the fixed 2-decimal wire format, e.g. "121.00"
func Format2(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ApplyRate computes base * (percent/100) without rounding
func ApplyRate(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(hundred)
}

// WithinTolerance reports |a-b| <= tol
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// IsPositive returns true if decimal is greater than zero
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}

// IsNonNegative returns true if decimal is >= zero
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}
