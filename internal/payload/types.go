package payload

import (
	"context"

	"hl-order-engine/internal/order"
)

// Submitter is the signing client. Each call is a single attempt.
type Submitter interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Result, error)
	CancelOrders(ctx context.Context, cancels []Cancel) error
	UpdateLeverage(ctx context.Context, update LeverageUpdate) error
}

type Notifier interface {
	Send(ctx context.Context, message string) error
}

type OrderRequest struct {
	Asset      int
	Symbol     string
	Side       order.Side
	Price      string
	Size       string
	ReduceOnly bool
	Tif        order.Tif
	// Trigger is set for take-profit and stop-loss orders. Tif is ignored
	// for trigger orders.
	Trigger *Trigger
	Cloid   string
}

type Trigger struct {
	Kind     order.TriggerKind
	Price    string
	IsMarket bool
}

type Cancel struct {
	Asset   int
	OrderID int64
}

type LeverageUpdate struct {
	Asset    int
	Leverage int
	IsCross  bool
}

type Result struct {
	OrderID    int64
	Status     string
	FilledSize string
	AvgPrice   string
}

type StepKind string

const (
	StepLeverage   StepKind = "leverage_update"
	StepCancel     StepKind = "cancel_tpsl"
	StepPrimary    StepKind = "primary_order"
	StepTakeProfit StepKind = "take_profit"
	StepStopLoss   StepKind = "stop_loss"
)

type Step struct {
	Kind     StepKind
	Leverage *LeverageUpdate
	Cancels  []Cancel
	Order    *OrderRequest
}

// Plan is an ordered submission sequence. Steps run one at a time and
// nothing is rolled back if a later step fails.
type Plan struct {
	Symbol string
	Steps  []Step
}

func (p Plan) Has(kind StepKind) bool {
	for _, s := range p.Steps {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// Orders returns the order requests in submission order.
func (p Plan) Orders() []OrderRequest {
	var out []OrderRequest
	for _, s := range p.Steps {
		if s.Order != nil {
			out = append(out, *s.Order)
		}
	}
	return out
}

type Report struct {
	Completed []StepKind
	Orders    []Result
}

func (r Report) Has(kind StepKind) bool {
	for _, k := range r.Completed {
		if k == kind {
			return true
		}
	}
	return false
}
