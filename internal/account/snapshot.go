package account

import (
	"hl-order-engine/internal/order"
)

// Snapshot is a point-in-time copy of everything the order tickets read
// from the account. It is never mutated after it is built.
type Snapshot struct {
	SpotBalances    map[string]float64
	Withdrawable    float64
	HasWithdrawable bool
	AccountValue    float64
	MarginUsed      float64
	Positions       map[string]Position
	OpenOrders      []OpenOrder
}

type Position struct {
	Symbol     string
	Size       float64
	EntryPrice float64
	Leverage   int
	MarginMode order.MarginMode
}

func (p Position) Side() order.Side {
	if p.Size < 0 {
		return order.SideSell
	}
	return order.SideBuy
}

type OpenOrder struct {
	OrderID    int64
	Cloid      string
	Symbol     string
	Side       order.Side
	Price      float64
	Size       float64
	ReduceOnly bool
	IsTrigger  bool
	TriggerPx  float64
	Trigger    order.TriggerKind
}

func (o OpenOrder) Notional() float64 {
	return o.Price * o.Size
}

func (s Snapshot) Position(symbol string) (Position, bool) {
	pos, ok := s.Positions[symbol]
	return pos, ok && pos.Size != 0
}

func (s Snapshot) SpotBalance(token string) float64 {
	return s.SpotBalances[token]
}

// Protection returns the order ids of the trigger orders currently
// attached to a position as take-profit and stop-loss.
func (s Snapshot) Protection(symbol string) (tp []int64, sl []int64) {
	for _, o := range s.OpenOrders {
		if o.Symbol != symbol || !o.IsTrigger || !o.ReduceOnly {
			continue
		}
		switch o.Trigger {
		case order.TriggerTakeProfit:
			tp = append(tp, o.OrderID)
		case order.TriggerStopLoss:
			sl = append(sl, o.OrderID)
		}
	}
	return tp, sl
}

// Copy returns a snapshot that shares no maps or slices with s.
func (s Snapshot) Copy() Snapshot {
	out := s
	if s.SpotBalances != nil {
		out.SpotBalances = make(map[string]float64, len(s.SpotBalances))
		for k, v := range s.SpotBalances {
			out.SpotBalances[k] = v
		}
	}
	if s.Positions != nil {
		out.Positions = make(map[string]Position, len(s.Positions))
		for k, v := range s.Positions {
			out.Positions[k] = v
		}
	}
	out.OpenOrders = append([]OpenOrder(nil), s.OpenOrders...)
	return out
}
