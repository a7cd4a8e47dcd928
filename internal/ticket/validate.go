package ticket

import (
	"strings"

	"hl-order-engine/internal/order"
	"hl-order-engine/internal/precision"
)

const DefaultMinOrderUSD = 10.0

// Validate checks the draft against the computed stats. Every failure is
// an *order.ValidationError naming the offending field.
func Validate(in Inputs, st Stats, minOrderUSD float64) error {
	d := in.Draft
	inst := d.Instrument
	if strings.TrimSpace(inst.Symbol) == "" {
		return order.Invalid("instrument", "select an instrument")
	}
	if !d.Side.Valid() {
		return order.Invalid("side", "side must be buy or sell")
	}
	if d.Kind == order.KindLimit {
		p, ok := precision.Parse(d.Price)
		if !ok || p <= 0 {
			return order.Invalid("price", "price must be greater than 0")
		}
		if limit := precision.MaxPriceDecimals(inst.SzDecimals, inst.IsPerp()); precision.Decimals(d.Price) > limit {
			return order.Invalid("price", "%s prices allow at most %d decimals", inst.Symbol, limit)
		}
		if d.Tif != "" && !d.Tif.Valid() {
			return order.Invalid("tif", "unknown time in force %q", d.Tif)
		}
	} else if d.Kind != order.KindMarket {
		return order.Invalid("kind", "order type must be limit or market")
	}
	if st.PriceValue <= 0 {
		return order.Invalid("price", "no price available for %s", inst.Symbol)
	}

	if inst.IsPerp() {
		if err := validatePerp(in); err != nil {
			return err
		}
	} else if err := validateSpotInput(d); err != nil {
		return err
	}
	if st.SizeValue <= 0 {
		return order.Invalid("size", "size must be greater than 0")
	}
	if minOrderUSD > 0 && !d.ReduceOnly && st.NotionalValue < minOrderUSD {
		return order.Invalid("size", "order value %s is below the minimum of %s", precision.FormatUSD(st.NotionalValue), precision.FormatUSD(minOrderUSD))
	}
	if !inst.IsPerp() {
		if d.Side.IsBuy() && st.NotionalValue > in.Funds.Available {
			return order.Invalid("size", "cost %s exceeds available %s %s", st.Notional, precision.FormatUSD(in.Funds.Available), quoteToken(d))
		}
		if !d.Side.IsBuy() && st.SizeValue > in.Funds.Token {
			return order.Invalid("size", "size %s exceeds %s balance", st.Size, inst.Base)
		}
	}
	return st.TPSL.Err()
}

func validatePerp(in Inputs) error {
	d := in.Draft
	maxLev := d.Instrument.MaxLeverage
	if d.Leverage < 1 {
		return order.Invalid("leverage", "leverage must be at least 1")
	}
	if maxLev > 0 && d.Leverage > maxLev {
		return order.Invalid("leverage", "leverage must be between 1 and %d", maxLev)
	}
	if d.MarginMode != "" && d.MarginMode != order.MarginCross && d.MarginMode != order.MarginIsolated {
		return order.Invalid("margin_mode", "margin mode must be cross or isolated")
	}
	margin, ok := precision.Parse(d.Margin)
	if !ok || margin <= 0 {
		return order.Invalid("margin", "margin must be greater than 0")
	}
	if precision.Decimals(d.Margin) > 2 {
		return order.Invalid("margin", "margin allows at most 2 decimals")
	}
	if !d.ReduceOnly && margin > in.Funds.Available {
		return order.Invalid("margin", "margin %s exceeds tradeable balance %s", precision.FormatUSD(margin), precision.FormatUSD(in.Funds.Available))
	}
	return nil
}

func validateSpotInput(d Draft) error {
	if strings.TrimSpace(d.TakeProfit) != "" || strings.TrimSpace(d.StopLoss) != "" {
		return order.Invalid("take_profit", "take profit and stop loss are only available on perpetuals")
	}
	if strings.TrimSpace(d.Percent) != "" {
		pct, ok := precision.Parse(d.Percent)
		if !ok || pct <= 0 || pct > 100 {
			return order.Invalid("percent", "percent must be greater than 0 and at most 100")
		}
		return nil
	}
	if _, ok := precision.Parse(d.Size); !ok {
		return order.Invalid("size", "size must be greater than 0")
	}
	if precision.Decimals(d.Size) > d.Instrument.SzDecimals {
		return order.Invalid("size", "%s sizes allow at most %d decimals", d.Instrument.Symbol, d.Instrument.SzDecimals)
	}
	return nil
}

func quoteToken(d Draft) string {
	if d.Instrument.Quote != "" {
		return d.Instrument.Quote
	}
	return "USDC"
}
