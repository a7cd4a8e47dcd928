package ticket

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"hl-order-engine/internal/order"
	"hl-order-engine/internal/precision"
	"hl-order-engine/internal/tpsl"
)

// Compute derives the order statistics for in. It is pure: the same
// inputs always give the same stats and nothing in in is modified.
// Incomplete drafts produce zero stats rather than an error; only a market
// order with no price context fails.
func Compute(in Inputs) (Stats, error) {
	d := in.Draft
	inst := d.Instrument
	st := Stats{Tif: order.EffectiveTif(d.Kind, d.Tif)}

	var raw float64
	if d.Kind == order.KindMarket {
		p, err := MarketPrice(inst, d.Side, in.Quote, in.Slippage)
		if err != nil {
			return Stats{}, err
		}
		raw = p
	} else {
		p, ok := precision.Parse(d.Price)
		if !ok || p <= 0 {
			return st, nil
		}
		raw = p
	}
	st.Price = precision.FormatPrice(raw, inst.SzDecimals, inst.IsPerp())
	price, err := decimal.NewFromString(st.Price)
	if err != nil || !price.IsPositive() {
		return st, nil
	}
	st.PriceValue = price.InexactFloat64()

	rawSize := 0.0
	if inst.IsPerp() {
		if margin, ok := precision.Parse(d.Margin); ok && margin > 0 && d.Leverage >= 1 {
			notional := decimal.NewFromFloat(margin).Mul(decimal.NewFromInt(int64(d.Leverage)))
			rawSize = notional.Div(price).InexactFloat64()
		}
	} else {
		rawSize = spotSize(d, in.Funds, price)
	}
	st.Size = precision.FormatSize(rawSize, inst.SzDecimals)
	size := decimal.RequireFromString(st.Size)
	st.SizeValue = size.InexactFloat64()

	notional := price.Mul(size)
	st.NotionalValue = notional.InexactFloat64()
	st.Notional = precision.FormatUSD(st.NotionalValue)
	st.MarginValue = st.NotionalValue
	if inst.IsPerp() && d.Leverage >= 1 {
		st.MarginValue = notional.Div(decimal.NewFromInt(int64(d.Leverage))).InexactFloat64()
	}
	st.Margin = precision.FormatUSD(st.MarginValue)

	st.TPSL = tpsl.Validate(st.PriceValue, d.Side, level(d.TakeProfit), level(d.StopLoss))
	return st, nil
}

func spotSize(d Draft, funds Funds, price decimal.Decimal) float64 {
	if strings.TrimSpace(d.Percent) == "" {
		size, _ := precision.Parse(d.Size)
		return size
	}
	pct, ok := precision.Parse(d.Percent)
	if !ok || pct <= 0 {
		return 0
	}
	share := decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
	if d.Side.IsBuy() {
		spend := decimal.NewFromFloat(funds.Available).Mul(share)
		return spend.Div(price).InexactFloat64()
	}
	return decimal.NewFromFloat(funds.Token).Mul(share).InexactFloat64()
}

// level parses an optional TP/SL field. Unparseable text becomes NaN so
// the validator reports it instead of treating it as absent.
func level(input string) *float64 {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	v, ok := precision.Parse(input)
	if !ok {
		v = math.NaN()
	}
	return &v
}
