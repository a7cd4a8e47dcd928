package precision

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	perpPriceDecimals = 6
	spotPriceDecimals = 8
	maxSigFigs        = 5
	usdDecimals       = 2
	// float64 division leaves residue like 2.9999999999999996; collapse it
	// before truncating so it does not cost a whole size unit.
	noiseDecimals = 8
)

// FormatPrice rounds raw to at most five significant figures and to
// (6 - szDecimals) decimals for perps or (8 - szDecimals) for spot.
// Integer prices are always accepted regardless of significant figures.
func FormatPrice(raw float64, szDecimals int, isPerp bool) string {
	if !finite(raw) || raw == 0 {
		return "0"
	}
	d := decimal.NewFromFloat(raw)
	places := MaxPriceDecimals(szDecimals, isPerp)
	if sig := maxSigFigs - 1 - magnitude(d); sig < places {
		places = sig
	}
	if places < 0 {
		places = 0
	}
	return d.Round(int32(places)).String()
}

// MaxPriceDecimals is the decimal budget for prices before the
// significant-figure cap applies.
func MaxPriceDecimals(szDecimals int, isPerp bool) int {
	base := spotPriceDecimals
	if isPerp {
		base = perpPriceDecimals
	}
	if places := base - clampDecimals(szDecimals); places > 0 {
		return places
	}
	return 0
}

// FormatSize truncates raw to szDecimals and prints exactly that many
// decimals. It never bumps a size to reach an exchange minimum.
func FormatSize(raw float64, szDecimals int) string {
	places := int32(clampDecimals(szDecimals))
	if !finite(raw) {
		return decimal.Zero.StringFixed(places)
	}
	d := decimal.NewFromFloat(raw).Round(places + noiseDecimals).Truncate(places)
	return d.StringFixed(places)
}

// FormatUSD prints a dollar amount with cent precision.
func FormatUSD(raw float64) string {
	if !finite(raw) {
		return decimal.Zero.StringFixed(usdDecimals)
	}
	return decimal.NewFromFloat(raw).StringFixed(usdDecimals)
}

// Parse reads a user-typed number. Empty, malformed and non-finite input
// reports ok=false.
func Parse(input string) (float64, bool) {
	clean := strings.TrimSpace(input)
	if clean == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

// Decimals counts the significant decimal places in a typed value,
// ignoring trailing zeros.
func Decimals(input string) int {
	clean := strings.TrimSpace(input)
	_, frac, ok := strings.Cut(clean, ".")
	if !ok {
		return 0
	}
	return len(strings.TrimRight(frac, "0"))
}

// magnitude returns floor(log10(|d|)) for a non-zero d.
func magnitude(d decimal.Decimal) int {
	abs := d.Abs()
	return int(abs.NumDigits()) + int(abs.Exponent()) - 1
}

func clampDecimals(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
