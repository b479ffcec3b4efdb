package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits (paise per rupee).
const Scale = 2

// Currency is the single currency the wallet operates in.
const Currency = "INR"

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Amount is a monetary value in integer minor units. 1250 is 12.50.
type Amount int64

// Parse reads a major-unit decimal string such as "12.50" into minor units.
// More than Scale fractional digits of precision is rejected rather than rounded.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a major-unit decimal into minor units.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(Scale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), Scale)
	}
	if minor.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return Amount(minor.IntPart()), nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// String formats the amount in major units with exactly Scale decimals.
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// Minor returns the raw minor-unit value.
func (a Amount) Minor() int64 {
	return int64(a)
}

// MarshalJSON renders the amount as a major-unit decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string ("12.50") or a JSON number (12.5).
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
