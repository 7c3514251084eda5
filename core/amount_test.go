package core

import "testing"

func TestParseAmountFractionalDigits(t *testing.T) {
	a, err := ParseAmount("10.123456789")
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	if a.FractionalDigits() != 9 {
		t.Fatalf("expected 9 fractional digits, got %d", a.FractionalDigits())
	}
}

func TestAmountQuantizeTruncates(t *testing.T) {
	a, err := ParseAmount("1.999999999")
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	q := a.Quantize()
	if q.String() != "1.99999999" {
		t.Fatalf("expected truncation to 1.99999999, got %s", q.String())
	}
}

func TestAmountArithmetic(t *testing.T) {
	a := AmountFromInt64(100)
	b, _ := ParseAmount("10.5")
	sum := a.Add(b)
	if sum.String() != "110.50000000" {
		t.Fatalf("unexpected sum: %s", sum.String())
	}
	diff := a.Sub(b)
	if diff.String() != "89.50000000" {
		t.Fatalf("unexpected diff: %s", diff.String())
	}
	if !a.GreaterThan(b) {
		t.Fatalf("expected 100 > 10.5")
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a, _ := ParseAmount("42.5")
	raw, err := a.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	var out Amount
	if err := out.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}
	if out.Decimal().Cmp(a.Decimal()) != 0 {
		t.Fatalf("round trip mismatch: got %s want %s", out, a)
	}
}
