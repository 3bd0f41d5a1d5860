package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept when a division produces a
// non-terminating value (derived unit prices, ratios).
const Scale int32 = 2

var (
	// ErrInvalidAmount is returned when a textual amount cannot be parsed.
	ErrInvalidAmount = errors.New("money: invalid amount")

	groupedPattern = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	plainPattern   = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
)

// Money is an exact decimal monetary amount. The zero value is 0.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// New wraps a decimal value.
func New(d decimal.Decimal) Money { return Money{d: d} }

// FromInt builds an amount from whole units.
func FromInt(v int64) Money { return Money{d: decimal.NewFromInt(v)} }

// MustParse is like Parse but panics on malformed input. Intended for tests and constants.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse reads a plain decimal ("300000", "12.5") or a comma-grouped amount
// ("1,234,567.50"). Anything else, including misplaced separators, is rejected.
func Parse(s string) (Money, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return Zero, err
	}
	return Money{d: d}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	switch {
	case trimmed == "":
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	case plainPattern.MatchString(trimmed):
	case groupedPattern.MatchString(trimmed):
		trimmed = strings.ReplaceAll(trimmed, ",", "")
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d, nil
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }
func (m Money) Abs() Money        { return Money{d: m.d.Abs()} }

// MulInt multiplies by an integer quantity.
func (m Money) MulInt(q int64) Money { return Money{d: m.d.Mul(decimal.NewFromInt(q))} }

// Mul multiplies by an arbitrary decimal factor.
func (m Money) Mul(f decimal.Decimal) Money { return Money{d: m.d.Mul(f)} }

// Div divides by f and rounds half away from zero to Scale digits. f must be non-zero.
func (m Money) Div(f decimal.Decimal) Money {
	return Money{d: m.d.DivRound(f, Scale)}
}

// Round rounds to the given number of fractional digits.
func (m Money) Round(places int32) Money { return Money{d: m.d.Round(places)} }

// Max returns the larger of m and o.
func (m Money) Max(o Money) Money {
	if m.d.GreaterThanOrEqual(o.d) {
		return m
	}
	return o
}

func (m Money) Sign() int             { return m.d.Sign() }
func (m Money) IsZero() bool          { return m.d.IsZero() }
func (m Money) IsNegative() bool      { return m.d.IsNegative() }
func (m Money) Cmp(o Money) int       { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool    { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

// String renders the canonical decimal form without trailing zeros.
func (m Money) String() string { return m.d.String() }

// MarshalJSON encodes the amount as a JSON string to avoid float coercion by clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.d.String())
}

// UnmarshalJSON accepts either a JSON string (plain or comma-grouped) or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Zero
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	*m = Money{d: d}
	return nil
}

// Sum adds all amounts.
func Sum(values ...Money) Money {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
