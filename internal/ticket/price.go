package ticket

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/order"
)

var ErrNoPrice = errors.New("no price available")

// MarketPrice derives the execution price for a market order. Book prices
// are preferred; the mid is a fallback for when no book is available.
func MarketPrice(inst asset.Instrument, side order.Side, q Quote, s Slippage) (float64, error) {
	var ref, slip float64
	switch {
	case q.HasBook() && side.IsBuy():
		ref = q.BestAsk
	case q.HasBook():
		ref = q.BestBid
	case q.Mid > 0:
		ref = q.Mid
	default:
		return 0, fmt.Errorf("%s: %w", inst, ErrNoPrice)
	}
	switch {
	case inst.IsPerp() && q.HasBook():
		slip = s.PerpBook
	case inst.IsPerp():
		slip = s.PerpMid
	case q.HasBook():
		slip = s.SpotBook
	default:
		slip = s.SpotMid
	}
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(side.Sign() * slip))
	price, _ := decimal.NewFromFloat(ref).Mul(factor).Float64()
	return price, nil
}
