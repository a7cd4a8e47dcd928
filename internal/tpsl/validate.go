package tpsl

import (
	"fmt"
	"math"

	"hl-order-engine/internal/order"
	"hl-order-engine/internal/precision"
)

type Check struct {
	Set     bool
	Valid   bool
	Price   float64
	Percent float64
	Message string
}

type Result struct {
	TakeProfit Check
	StopLoss   Check
}

func (r Result) Valid() bool {
	return (!r.TakeProfit.Set || r.TakeProfit.Valid) && (!r.StopLoss.Set || r.StopLoss.Valid)
}

// Err returns the first violation as a validation error, or nil.
func (r Result) Err() error {
	if r.TakeProfit.Set && !r.TakeProfit.Valid {
		return &order.ValidationError{Field: "take_profit", Message: r.TakeProfit.Message}
	}
	if r.StopLoss.Set && !r.StopLoss.Valid {
		return &order.ValidationError{Field: "stop_loss", Message: r.StopLoss.Message}
	}
	return nil
}

// Validate checks tp and sl against entry for a position opened on side.
// A nil level is absent and always valid. Percent is the price move, not
// the return on margin.
func Validate(entry float64, side order.Side, tp, sl *float64) Result {
	return Result{
		TakeProfit: check(entry, side, tp, order.TriggerTakeProfit),
		StopLoss:   check(entry, side, sl, order.TriggerStopLoss),
	}
}

func check(entry float64, side order.Side, level *float64, kind order.TriggerKind) Check {
	if level == nil {
		return Check{Valid: true}
	}
	c := Check{Set: true, Price: *level}
	name := "take profit"
	if kind == order.TriggerStopLoss {
		name = "stop loss"
	}
	if !positive(*level) {
		c.Message = name + " price must be greater than 0"
		return c
	}
	if !positive(entry) {
		c.Message = "entry price is unavailable"
		return c
	}
	c.Percent = PriceMovePercent(entry, *level, side)
	above := *level > entry
	below := *level < entry
	wantAbove := side.IsBuy() == (kind == order.TriggerTakeProfit)
	if (wantAbove && above) || (!wantAbove && below) {
		c.Valid = true
		return c
	}
	position := "long"
	if !side.IsBuy() {
		position = "short"
	}
	relation := "below"
	if wantAbove {
		relation = "above"
	}
	c.Message = fmt.Sprintf("%s for a %s must be %s the entry price %s", name, position, relation, precision.FormatUSD(entry))
	return c
}

// PriceMovePercent is the signed price move from entry to target, positive
// when it favours a position opened on side.
func PriceMovePercent(entry, target float64, side order.Side) float64 {
	if !positive(entry) {
		return 0
	}
	return side.Sign() * (target - entry) / entry * 100
}

// ReturnOnMarginPercent scales the price move by leverage. Use it only when
// editing an existing position; fresh tickets show the price move.
func ReturnOnMarginPercent(entry, target float64, side order.Side, leverage int) float64 {
	if leverage < 1 {
		leverage = 1
	}
	return PriceMovePercent(entry, target, side) * float64(leverage)
}

// PriceForPercent inverts PriceMovePercent, for sliders that set a TP/SL by
// percentage.
func PriceForPercent(entry, pct float64, side order.Side) float64 {
	return entry * (1 + side.Sign()*pct/100)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
