package ticket

import (
	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/order"
	"hl-order-engine/internal/tpsl"
)

// Draft holds the ticket inputs as typed. Numeric fields stay strings so
// decimal-place validation sees exactly what was entered.
type Draft struct {
	Instrument asset.Instrument
	Side       order.Side
	Kind       order.Kind
	Tif        order.Tif
	MarginMode order.MarginMode
	Leverage   int
	ReduceOnly bool

	Price  string
	Margin string
	// Spot orders are sized by Size directly, or by Percent of the
	// spendable balance when Percent is set.
	Size    string
	Percent string

	TakeProfit string
	StopLoss   string
}

// Quote is the live price context. Zero fields are absent.
type Quote struct {
	Mid     float64
	BestBid float64
	BestAsk float64
}

func (q Quote) HasBook() bool {
	return q.BestBid > 0 && q.BestAsk > 0
}

// Funds is what the ticket may spend: tradeable USDC for perps, USDC and
// base-token balances for spot.
type Funds struct {
	Available float64
	Token     float64
}

// Slippage holds the protective multipliers applied to market orders.
type Slippage struct {
	PerpBook float64
	PerpMid  float64
	SpotBook float64
	SpotMid  float64
}

func DefaultSlippage() Slippage {
	return Slippage{
		PerpBook: 0.001,
		PerpMid:  0.001,
		SpotBook: 0.02,
		SpotMid:  0.01,
	}
}

// Inputs is the full recomputation key. It is comparable so it can key the
// memo cache directly.
type Inputs struct {
	Draft    Draft
	Quote    Quote
	Funds    Funds
	Slippage Slippage
}

type Stats struct {
	Price         string
	PriceValue    float64
	Size          string
	SizeValue     float64
	Notional      string
	NotionalValue float64
	// Margin is the collateral committed: notional / leverage for perps,
	// the full cost for spot.
	Margin      string
	MarginValue float64
	Tif         order.Tif
	TPSL        tpsl.Result
}
