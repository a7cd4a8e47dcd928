package payload

import (
	"math"
	"strings"

	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/order"
	"hl-order-engine/internal/precision"
	"hl-order-engine/internal/ticket"
	"hl-order-engine/internal/tpsl"
)

type Builder struct {
	resolver *asset.Resolver
}

func NewBuilder(resolver *asset.Resolver) *Builder {
	return &Builder{resolver: resolver}
}

// OpenInput is a validated ticket plus the leverage settings the position
// currently has on the exchange.
type OpenInput struct {
	Draft           ticket.Draft
	Stats           ticket.Stats
	CurrentLeverage int
	CurrentMode     order.MarginMode
	// Slippage bounds the limit price of attached trigger orders.
	Slippage ticket.Slippage
}

func (b *Builder) BuildOpen(in OpenInput) (Plan, error) {
	d := in.Draft
	inst := d.Instrument
	if !inst.IsPerp() && (strings.TrimSpace(d.TakeProfit) != "" || strings.TrimSpace(d.StopLoss) != "") {
		return Plan{}, order.Invalid("take_profit", "take profit and stop loss are only available on perpetuals")
	}
	id, err := b.resolver.Resolve(inst)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Symbol: inst.Symbol}

	mode := d.MarginMode
	if mode == "" {
		mode = order.MarginCross
	}
	if inst.IsPerp() && (d.Leverage != in.CurrentLeverage || mode != in.CurrentMode) {
		plan.Steps = append(plan.Steps, Step{
			Kind: StepLeverage,
			Leverage: &LeverageUpdate{
				Asset:    id,
				Leverage: d.Leverage,
				IsCross:  mode == order.MarginCross,
			},
		})
	}

	plan.Steps = append(plan.Steps, Step{
		Kind: StepPrimary,
		Order: &OrderRequest{
			Asset:      id,
			Symbol:     inst.Symbol,
			Side:       d.Side,
			Price:      in.Stats.Price,
			Size:       in.Stats.Size,
			ReduceOnly: d.ReduceOnly,
			Tif:        order.EffectiveTif(d.Kind, d.Tif),
		},
	})
	plan.Steps = appendProtection(plan.Steps, id, inst, d.Side, in.Stats.Size, d.TakeProfit, d.StopLoss, in.Slippage)
	return plan, nil
}

// EditInput replaces the TP/SL attached to an open position. Existing holds
// the order ids of the conditional orders attached today.
type EditInput struct {
	Instrument asset.Instrument
	Side       order.Side
	Size       float64
	Entry      float64
	TakeProfit string
	StopLoss   string
	Existing   []int64
	Slippage   ticket.Slippage
}

func (b *Builder) BuildTpslEdit(in EditInput) (Plan, error) {
	inst := in.Instrument
	if !inst.IsPerp() {
		return Plan{}, order.Invalid("instrument", "take profit and stop loss are only available on perpetuals")
	}
	size := precision.FormatSize(math.Abs(in.Size), inst.SzDecimals)
	if v, _ := precision.Parse(size); v <= 0 {
		return Plan{}, order.Invalid("size", "no open position on %s", inst.Symbol)
	}
	if err := tpsl.Validate(in.Entry, in.Side, optional(in.TakeProfit), optional(in.StopLoss)).Err(); err != nil {
		return Plan{}, err
	}
	if len(in.Existing) == 0 && strings.TrimSpace(in.TakeProfit) == "" && strings.TrimSpace(in.StopLoss) == "" {
		return Plan{}, order.Invalid("take_profit", "no take-profit or stop-loss change")
	}
	id, err := b.resolver.Resolve(inst)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Symbol: inst.Symbol}
	if len(in.Existing) > 0 {
		cancels := make([]Cancel, 0, len(in.Existing))
		for _, oid := range in.Existing {
			cancels = append(cancels, Cancel{Asset: id, OrderID: oid})
		}
		plan.Steps = append(plan.Steps, Step{Kind: StepCancel, Cancels: cancels})
	}
	plan.Steps = appendProtection(plan.Steps, id, inst, in.Side, size, in.TakeProfit, in.StopLoss, in.Slippage)
	return plan, nil
}

// CloseInput flattens a position with a reduce-only market order.
type CloseInput struct {
	Instrument asset.Instrument
	Size       float64
	Quote      ticket.Quote
	Slippage   ticket.Slippage
}

func (b *Builder) BuildClose(in CloseInput) (Plan, error) {
	inst := in.Instrument
	size := precision.FormatSize(math.Abs(in.Size), inst.SzDecimals)
	if v, _ := precision.Parse(size); v <= 0 {
		return Plan{}, order.Invalid("size", "no open position on %s", inst.Symbol)
	}
	side := order.SideSell
	if in.Size < 0 {
		side = order.SideBuy
	}
	raw, err := ticket.MarketPrice(inst, side, in.Quote, in.Slippage)
	if err != nil {
		return Plan{}, order.Invalid("price", "%v", err)
	}
	id, err := b.resolver.Resolve(inst)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Symbol: inst.Symbol,
		Steps: []Step{{
			Kind: StepPrimary,
			Order: &OrderRequest{
				Asset:      id,
				Symbol:     inst.Symbol,
				Side:       side,
				Price:      precision.FormatPrice(raw, inst.SzDecimals, inst.IsPerp()),
				Size:       size,
				ReduceOnly: true,
				Tif:        order.TifIoc,
			},
		}},
	}, nil
}

// appendProtection adds reduce-only trigger orders on the side opposite
// the position, sized to the full position. Once triggered they execute as
// market orders limited to the trigger price moved by slip against the exit.
func appendProtection(steps []Step, id int, inst asset.Instrument, side order.Side, size, tp, sl string, slip ticket.Slippage) []Step {
	if px, ok := precision.Parse(tp); ok {
		steps = append(steps, Step{Kind: StepTakeProfit, Order: triggerOrder(id, inst, side, size, px, order.TriggerTakeProfit, slip)})
	}
	if px, ok := precision.Parse(sl); ok {
		steps = append(steps, Step{Kind: StepStopLoss, Order: triggerOrder(id, inst, side, size, px, order.TriggerStopLoss, slip)})
	}
	return steps
}

func triggerOrder(id int, inst asset.Instrument, side order.Side, size string, px float64, kind order.TriggerKind, slip ticket.Slippage) *OrderRequest {
	exit := side.Opposite()
	limit, err := ticket.MarketPrice(inst, exit, ticket.Quote{Mid: px}, slip)
	if err != nil {
		limit = px
	}
	return &OrderRequest{
		Asset:      id,
		Symbol:     inst.Symbol,
		Side:       exit,
		Price:      precision.FormatPrice(limit, inst.SzDecimals, inst.IsPerp()),
		Size:       size,
		ReduceOnly: true,
		Trigger: &Trigger{
			Kind:     kind,
			Price:    precision.FormatPrice(px, inst.SzDecimals, inst.IsPerp()),
			IsMarket: true,
		},
	}
}

func optional(input string) *float64 {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	v, ok := precision.Parse(input)
	if !ok {
		v = math.NaN()
	}
	return &v
}
