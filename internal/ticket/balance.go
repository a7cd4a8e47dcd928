package ticket

import (
	"hl-order-engine/internal/account"
	"hl-order-engine/internal/asset"
)

// TradeableBalance returns the USDC a perp ticket on symbol may commit.
// The exchange-reported withdrawable amount wins when present.
//
// Otherwise it falls back to accountValue - marginUsed minus the margin
// reserved by open orders on symbol at that position's leverage. This is an
// approximation: it ignores cross-margin interactions between instruments
// and may be intentionally conservative. Do not tighten it without
// confirming the exchange's margin rules.
func TradeableBalance(snap account.Snapshot, symbol string) float64 {
	if snap.HasWithdrawable {
		return nonNegative(snap.Withdrawable)
	}
	leverage := 1
	if pos, ok := snap.Positions[symbol]; ok && pos.Leverage > 0 {
		leverage = pos.Leverage
	}
	reserved := 0.0
	for _, o := range snap.OpenOrders {
		if o.Symbol != symbol {
			continue
		}
		reserved += o.Notional() / float64(leverage)
	}
	return nonNegative(snap.AccountValue - snap.MarginUsed - reserved)
}

// FundsFor builds the spendable balances for a ticket on inst.
func FundsFor(snap account.Snapshot, inst asset.Instrument) Funds {
	if inst.IsPerp() {
		return Funds{Available: TradeableBalance(snap, inst.Symbol)}
	}
	quote := inst.Quote
	if quote == "" {
		quote = "USDC"
	}
	return Funds{
		Available: snap.SpotBalance(quote),
		Token:     snap.SpotBalance(inst.Base),
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
