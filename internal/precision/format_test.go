package precision

import (
	"math"
	"strconv"
	"testing"
)

func TestFormatPricePerp(t *testing.T) {
	cases := []struct {
		raw        float64
		szDecimals int
		out        string
	}{
		{raw: 100, szDecimals: 3, out: "100"},
		{raw: 100.1, szDecimals: 3, out: "100.1"},
		{raw: 123.456789, szDecimals: 1, out: "123.46"},
		{raw: 0.0123456789, szDecimals: 0, out: "0.012346"},
		{raw: 0.0123456789, szDecimals: 2, out: "0.0123"},
		{raw: 65432.19, szDecimals: 5, out: "65432"},
		{raw: 123456.7, szDecimals: 2, out: "123457"},
		{raw: 99999.6, szDecimals: 0, out: "100000"},
	}
	for _, tc := range cases {
		if got := FormatPrice(tc.raw, tc.szDecimals, true); got != tc.out {
			t.Fatalf("FormatPrice(%v, %d, perp) expected %s, got %s", tc.raw, tc.szDecimals, tc.out, got)
		}
	}
}

func TestFormatPriceSpotAllowsMoreDecimals(t *testing.T) {
	if got := FormatPrice(0.000123456, 0, false); got != "0.00012346" {
		t.Fatalf("expected 0.00012346, got %s", got)
	}
	if got := FormatPrice(0.000123456, 0, true); got != "0.000123" {
		t.Fatalf("expected perp cap 0.000123, got %s", got)
	}
}

func TestFormatPriceNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0} {
		if got := FormatPrice(v, 2, true); got != "0" {
			t.Fatalf("expected 0 for %v, got %s", v, got)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		raw        float64
		szDecimals int
		out        string
	}{
		{raw: 2, szDecimals: 3, out: "2.000"},
		{raw: 1.23999, szDecimals: 2, out: "1.23"},
		{raw: 2.9999999999999996, szDecimals: 3, out: "3.000"},
		{raw: 0.0004, szDecimals: 3, out: "0.000"},
		{raw: 17.9, szDecimals: 0, out: "17"},
		{raw: 5, szDecimals: -1, out: "5"},
	}
	for _, tc := range cases {
		if got := FormatSize(tc.raw, tc.szDecimals); got != tc.out {
			t.Fatalf("FormatSize(%v, %d) expected %s, got %s", tc.raw, tc.szDecimals, tc.out, got)
		}
	}
	if got := FormatSize(math.NaN(), 4); got != "0.0000" {
		t.Fatalf("expected zero size string, got %s", got)
	}
}

func TestFormatIdempotent(t *testing.T) {
	inputs := []float64{0.1 + 0.2, 1234.56789, 0.000987654, 31999.99, 7.77777777, 99999.95, 1e-9}
	for _, raw := range inputs {
		for sz := 0; sz <= 5; sz++ {
			for _, perp := range []bool{true, false} {
				once := FormatPrice(raw, sz, perp)
				parsed, err := strconv.ParseFloat(once, 64)
				if err != nil {
					t.Fatalf("parse %q: %v", once, err)
				}
				if twice := FormatPrice(parsed, sz, perp); twice != once {
					t.Fatalf("price not idempotent for %v sz=%d perp=%v: %s -> %s", raw, sz, perp, once, twice)
				}
			}
			once := FormatSize(raw, sz)
			parsed, _ := strconv.ParseFloat(once, 64)
			if twice := FormatSize(parsed, sz); twice != once {
				t.Fatalf("size not idempotent for %v sz=%d: %s -> %s", raw, sz, once, twice)
			}
		}
	}
}

func TestFormatUSD(t *testing.T) {
	if got := FormatUSD(200); got != "200.00" {
		t.Fatalf("expected 200.00, got %s", got)
	}
	if got := FormatUSD(math.Inf(1)); got != "0.00" {
		t.Fatalf("expected 0.00, got %s", got)
	}
}

func TestParseAndDecimals(t *testing.T) {
	if v, ok := Parse(" 12.5 "); !ok || v != 12.5 {
		t.Fatalf("expected 12.5, got %v ok=%v", v, ok)
	}
	for _, in := range []string{"", "abc", "NaN", "Inf"} {
		if _, ok := Parse(in); ok {
			t.Fatalf("expected parse failure for %q", in)
		}
	}
	if got := Decimals("1.2500"); got != 2 {
		t.Fatalf("expected 2 decimals, got %d", got)
	}
	if got := Decimals("10"); got != 0 {
		t.Fatalf("expected 0 decimals, got %d", got)
	}
}
