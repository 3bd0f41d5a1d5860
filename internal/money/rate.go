package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent is a percentage where 10 means 10%.
type Percent struct {
	d decimal.Decimal
}

// NewPercent builds a percentage from a decimal.
func NewPercent(d decimal.Decimal) Percent { return Percent{d: d} }

// PercentFromInt builds a whole-number percentage.
func PercentFromInt(v int64) Percent { return Percent{d: decimal.NewFromInt(v)} }

// ParsePercent reads a decimal percentage, tolerating a trailing "%".
func ParsePercent(s string) (Percent, error) {
	d, err := parseDecimal(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return Percent{}, err
	}
	return Percent{d: d}, nil
}

func (p Percent) Decimal() decimal.Decimal { return p.d }
func (p Percent) Add(o Percent) Percent    { return Percent{d: p.d.Add(o.d)} }
func (p Percent) IsZero() bool             { return p.d.IsZero() }
func (p Percent) String() string           { return p.d.String() }

// Of applies the percentage to an amount: m × p / 100.
func (p Percent) Of(m Money) Money {
	return Money{d: m.d.Mul(p.d).Div(hundred)}
}

// Ratio converts the percentage to a fraction (10% → 0.1).
func (p Percent) Ratio() Ratio { return Ratio{d: p.d.Div(hundred)} }

func (p Percent) MarshalJSON() ([]byte, error) { return json.Marshal(p.d.String()) }

func (p *Percent) UnmarshalJSON(data []byte) error {
	d, err := unmarshalDecimal(data)
	if err != nil {
		return err
	}
	*p = Percent{d: d}
	return nil
}

// Ratio is a decimal fraction where 0.1 means 10%.
type Ratio struct {
	d decimal.Decimal
}

// NewRatio builds a ratio from a decimal.
func NewRatio(d decimal.Decimal) Ratio { return Ratio{d: d} }

// MustRatio parses a ratio literal and panics on failure.
func MustRatio(s string) Ratio {
	d, err := parseDecimal(s)
	if err != nil {
		panic(err)
	}
	return Ratio{d: d}
}

func (r Ratio) Decimal() decimal.Decimal { return r.d }
func (r Ratio) IsZero() bool             { return r.d.IsZero() }
func (r Ratio) Sign() int                { return r.d.Sign() }
func (r Ratio) String() string           { return r.d.String() }

// Of applies the ratio to an amount.
func (r Ratio) Of(m Money) Money { return Money{d: m.d.Mul(r.d)} }

// Percent converts the ratio to a percentage (0.1 → 10).
func (r Ratio) Percent() Percent { return Percent{d: r.d.Mul(hundred)} }

func (r Ratio) MarshalJSON() ([]byte, error) { return json.Marshal(r.d.String()) }

func (r *Ratio) UnmarshalJSON(data []byte) error {
	d, err := unmarshalDecimal(data)
	if err != nil {
		return err
	}
	*r = Ratio{d: d}
	return nil
}

func unmarshalDecimal(data []byte) (decimal.Decimal, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return decimal.Zero, nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return decimal.Zero, err
		}
		return parseDecimal(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d, nil
}
