package core

// C2: fixed-point arithmetic. Amounts are non-negative, quantized to 8
// fractional digits using ROUND_DOWN (truncation toward zero). The
// underlying representation is shopspring/decimal, which — like the
// original Decimal.quantize() — stores an exact base-10 significand and
// exponent rather than a binary float, so repeated arithmetic never drifts.
// Conversion to float64 is never performed anywhere in this package.

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorDigits is the number of fractional digits every Amount is quantized
// to (spec §4.2).
const MinorDigits = 8

// Amount is a fixed-point, non-negative monetary value. The zero value
// represents zero and is valid (matching "reads of missing balance keys
// yield zero", spec §3).
type Amount struct {
	d decimal.Decimal
}

// AmountFromInt64 builds an Amount from a whole-unit integer (used by tests
// and genesis wiring).
func AmountFromInt64(whole int64) Amount {
	return Amount{d: decimal.NewFromInt(whole)}
}

// ParseAmount parses a decimal string exactly as received on the wire,
// WITHOUT quantizing it. Callers that need the canonical validation
// behaviour (spec §4.3 step 2) must check FractionalDigits() themselves
// before relying on the value; all arithmetic helpers below operate on the
// Quantized() form.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, errors.New("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// FractionalDigits returns the number of digits after the decimal point in
// the value's current (as-parsed) representation.
func (a Amount) FractionalDigits() int32 {
	exp := a.d.Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// Quantize truncates toward zero to MinorDigits fractional digits
// (ROUND_DOWN / half-down per spec §4.2).
func (a Amount) Quantize() Amount {
	return Amount{d: a.d.Truncate(MinorDigits)}
}

// Quantize builds a quantized Amount directly from a decimal.Decimal; used
// by the treasury engine, which works in high-precision decimal.Decimal
// internally and only quantizes its final result.
func Quantize(d decimal.Decimal) Amount {
	return Amount{d: d.Truncate(MinorDigits)}
}

// Decimal exposes the underlying quantized decimal for components (treasury,
// fee maths) that need ≥50-digit-precision intermediate computation.
func (a Amount) Decimal() decimal.Decimal { return a.Quantize().d }

func (a Amount) Add(b Amount) Amount { return Quantize(a.Decimal().Add(b.Decimal())) }
func (a Amount) Sub(b Amount) Amount { return Quantize(a.Decimal().Sub(b.Decimal())) }
func (a Amount) Cmp(b Amount) int    { return a.Decimal().Cmp(b.Decimal()) }
func (a Amount) IsZero() bool        { return a.Decimal().IsZero() }
func (a Amount) IsNegative() bool    { return a.Decimal().IsNegative() }
func (a Amount) IsPositive() bool    { return a.Decimal().IsPositive() }

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.Cmp(b) > 0 }

// MulRatio multiplies by a (possibly fractional) ratio and quantizes the
// result — used for fee splits and the mint/burn scaling in treasury.go.
func (a Amount) MulRatio(ratio decimal.Decimal) Amount {
	return Quantize(a.Decimal().Mul(ratio))
}

// String renders the amount as a fixed 8-decimal string, the canonical
// external form (spec §3).
func (a Amount) String() string {
	return a.Decimal().StringFixed(MinorDigits)
}

// MarshalJSON renders the amount as a quoted canonical decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a quoted decimal string and stores it verbatim
// (without quantizing), so validation can still observe the original
// fractional-digit count.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
