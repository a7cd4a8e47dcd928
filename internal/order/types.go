package order

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) IsBuy() bool {
	return s == SideBuy
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type Kind string

const (
	KindLimit  Kind = "limit"
	KindMarket Kind = "market"
)

type Tif string

const (
	TifGtc Tif = "Gtc"
	TifIoc Tif = "Ioc"
	TifAlo Tif = "Alo"
)

func (t Tif) Valid() bool {
	return t == TifGtc || t == TifIoc || t == TifAlo
}

// EffectiveTif returns the time-in-force actually sent: market orders are
// always immediate-or-cancel.
func EffectiveTif(kind Kind, selected Tif) Tif {
	if kind == KindMarket {
		return TifIoc
	}
	if selected == "" {
		return TifGtc
	}
	return selected
}

type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

type TriggerKind string

const (
	TriggerTakeProfit TriggerKind = "tp"
	TriggerStopLoss   TriggerKind = "sl"
)
