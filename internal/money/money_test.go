package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAcceptsPlainAndGrouped(t *testing.T) {
	cases := map[string]string{
		"300000":       "300000",
		" 12.5 ":       "12.5",
		"1,234,567":    "1234567",
		"1,234,567.50": "1234567.5",
		"-2,000,000":   "-2000000",
		"0":            "0",
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("parse %q: expected %s, got %s", in, want, got)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "12,34", "1,2345", "abc", "1.000.000", "10đ", ",100"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for %q, got %v", in, err)
		}
	}
}

func TestDivRoundsToScale(t *testing.T) {
	got := FromInt(120_000).Div(decimal.NewFromInt(7))
	if got.String() != "17142.86" {
		t.Fatalf("expected 17142.86, got %s", got)
	}
	exact := FromInt(120_000).Div(decimal.NewFromInt(12))
	if !exact.Equal(FromInt(10_000)) {
		t.Fatalf("expected 10000, got %s", exact)
	}
}

func TestJSONRoundTripShapes(t *testing.T) {
	var payload struct {
		A Money   `json:"a"`
		B Money   `json:"b"`
		P Percent `json:"p"`
		R Ratio   `json:"r"`
	}
	if err := json.Unmarshal([]byte(`{"a":"1,500,000","b":2500.5,"p":"10%","r":0.1}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A.String() != "1500000" || payload.B.String() != "2500.5" {
		t.Fatalf("unexpected amounts %s %s", payload.A, payload.B)
	}
	if payload.P.String() != "10" || payload.R.String() != "0.1" {
		t.Fatalf("unexpected rates %s %s", payload.P, payload.R)
	}
	out, err := json.Marshal(payload.A)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"1500000"` {
		t.Fatalf("unexpected encoding %s", out)
	}
}

func TestPercentAndRatio(t *testing.T) {
	tax := PercentFromInt(10)
	if got := tax.Of(FromInt(300_000)); !got.Equal(FromInt(30_000)) {
		t.Fatalf("expected 30000, got %s", got)
	}
	if got := tax.Ratio().String(); got != "0.1" {
		t.Fatalf("expected 0.1, got %s", got)
	}
	share := MustRatio("0.1")
	if got := share.Of(FromInt(9_000_000)); !got.Equal(FromInt(900_000)) {
		t.Fatalf("expected 900000, got %s", got)
	}
	if got := share.Percent().String(); got != "10" {
		t.Fatalf("expected 10, got %s", got)
	}
}

func TestFormatEnglishGrouping(t *testing.T) {
	if got := Format(MustParse("1250000.4"), "en"); got != "1,250,000" {
		t.Fatalf("unexpected format %q", got)
	}
}
