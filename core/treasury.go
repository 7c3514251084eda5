package core

// C4: treasury engine. Computes a (delta, action) pair from an oracle flare
// observation and the current treasury balance (spec §4.4). All math is
// performed at high precision decimal.Decimal arithmetic before the final
// quantization, so that the 8-decimal truncation only ever happens once, at
// the very end.

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.DivisionPrecision = 60
}

// FlareClass is the qualitative magnitude bucket of a flare observation.
// A/B/C mint; M/X burn (spec GLOSSARY).
type FlareClass string

const (
	FlareClassA FlareClass = "A"
	FlareClassB FlareClass = "B"
	FlareClassC FlareClass = "C"
	FlareClassM FlareClass = "M"
	FlareClassX FlareClass = "X"
)

func (c FlareClass) valid() bool {
	switch c {
	case FlareClassA, FlareClassB, FlareClassC, FlareClassM, FlareClassX:
		return true
	}
	return false
}

// FlarePayload is the full oracle observation, as revealed in a
// flare_reveal transaction (spec §6, §4.7 step d). OracleSignature is
// excluded from both the commit-hash and signature-check subsets; Secret is
// part of the commit hash only — see CommitPreimage and
// OracleSignaturePreimage.
type FlarePayload struct {
	ID              string          `json:"id"`
	Slot            uint64          `json:"slot"`
	Class           FlareClass      `json:"class"`
	Flux            decimal.Decimal `json:"flux"`
	Geomag          decimal.Decimal `json:"geomag"`
	Secret          string          `json:"secret,omitempty"`
	OracleSignature string          `json:"oracle_signature,omitempty"`
}

// CommitPreimage returns the subset of fields hashed to produce the
// producer's commit: {id, flux, class, geomag, secret} — notably excluding
// slot and oracle_signature (spec §4.7 step d).
func (p *FlarePayload) CommitPreimage() map[string]interface{} {
	return map[string]interface{}{
		"id":     p.ID,
		"flux":   p.Flux,
		"class":  p.Class,
		"geomag": p.Geomag,
		"secret": p.Secret,
	}
}

// OracleSignaturePreimage returns the subset of fields the oracle signs:
// {id, slot, class, flux, geomag} — excluding secret and oracle_signature
// itself (spec §6, §4.5 step 5).
func (p *FlarePayload) OracleSignaturePreimage() map[string]interface{} {
	return map[string]interface{}{
		"id":     p.ID,
		"slot":   p.Slot,
		"class":  p.Class,
		"flux":   p.Flux,
		"geomag": p.Geomag,
	}
}

// TreasuryAction indicates whether a flare observation mints or burns the
// native asset.
type TreasuryAction string

const (
	TreasuryMint TreasuryAction = "mint"
	TreasuryBurn TreasuryAction = "burn"
	TreasuryNone TreasuryAction = ""
)

// ComputeTreasuryDelta implements spec §4.4 steps 1-9.
func ComputeTreasuryDelta(payload *FlarePayload, treasuryBalance Amount, p *Protocol) (Amount, TreasuryAction, error) {
	if !payload.Class.valid() {
		return Amount{}, TreasuryNone, fmt.Errorf("invalid flare class %q", payload.Class)
	}

	fluxF := payload.Flux.Div(p.FluxScale)
	geomagF := payload.Geomag.Div(p.GeomagScale).Abs()

	base, err := decimalSqrt(fluxF.Mul(p.FluxNormalizer))
	if err != nil {
		return Amount{}, TreasuryNone, fmt.Errorf("treasury base: %w", err)
	}

	scaled := base.Mul(geomagF).Mul(p.MintScale)

	var delta decimal.Decimal
	var action TreasuryAction

	treasury := treasuryBalance.Decimal()

	switch payload.Class {
	case FlareClassA, FlareClassB, FlareClassC:
		delta = scaled
		action = TreasuryMint
	case FlareClassM:
		floor := treasury.Div(decimal.NewFromInt(6))
		delta = decimalMax(scaled, floor)
		action = TreasuryBurn
	case FlareClassX:
		floor := treasury.Div(decimal.NewFromInt(3))
		delta = decimalMax(scaled, floor)
		action = TreasuryBurn
	}

	if action == TreasuryBurn && treasury.GreaterThan(p.SoftCap) {
		delta = delta.Mul(decimal.NewFromFloat(1.5))
	}
	if action == TreasuryBurn {
		delta = decimalMin(delta, treasury)
	}

	q := Quantize(delta)
	if q.IsZero() {
		return q, TreasuryNone, nil
	}
	return q, action, nil
}

func decimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// decimalSqrt computes sqrt(x) at ≥50 digits of precision using Newton's
// method over big.Float, then converts back to decimal.Decimal. Negative
// inputs are rejected — flux_f*flux_normalizer is always non-negative for a
// well-formed observation.
func decimalSqrt(x decimal.Decimal) (decimal.Decimal, error) {
	if x.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("sqrt of negative value %s", x.String())
	}
	if x.IsZero() {
		return decimal.Zero, nil
	}

	const prec = 200 // bits of precision, comfortably > 50 decimal digits
	bf, _, err := big.ParseFloat(x.String(), 10, prec, big.ToNearestEven)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", x.String(), err)
	}
	bf.SetPrec(prec)

	z := new(big.Float).SetPrec(prec).Copy(bf)
	// Newton's method: z_{n+1} = (z_n + x/z_n) / 2, seeded at x itself.
	two := big.NewFloat(2)
	for i := 0; i < 100; i++ {
		if z.Sign() == 0 {
			break
		}
		next := new(big.Float).SetPrec(prec)
		next.Quo(bf, z)
		next.Add(next, z)
		next.Quo(next, two)
		if next.Cmp(z) == 0 {
			z = next
			break
		}
		z = next
	}

	d, err := decimal.NewFromString(z.Text('f', 40))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("convert sqrt result: %w", err)
	}
	return d, nil
}
