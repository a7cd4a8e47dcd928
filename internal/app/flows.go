package app

import (
	"context"
	"math"
	"strings"

	"hl-order-engine/internal/account"
	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/order"
	"hl-order-engine/internal/payload"
	"hl-order-engine/internal/prefs"
	"hl-order-engine/internal/ticket"
	"hl-order-engine/internal/transfer"
	"hl-order-engine/internal/txflow"

	"go.uber.org/zap"
)

const stakeToken = "HYPE"

// Ticket is an order draft bound to the price and balance context it was
// computed against.
type Ticket struct {
	Inputs ticket.Inputs
}

// NewDraft starts a market ticket on inst with the leverage and margin mode
// of the open position, else the last ones used on that market.
func (a *App) NewDraft(ctx context.Context, inst asset.Instrument, side order.Side) ticket.Draft {
	d := ticket.Draft{
		Instrument: inst,
		Side:       side,
		Kind:       order.KindMarket,
		MarginMode: order.MarginCross,
		Leverage:   1,
	}
	if !inst.IsPerp() {
		return d
	}
	snap, _ := a.account.Snapshot()
	if pos, ok := snap.Position(inst.Symbol); ok {
		d.Leverage = pos.Leverage
		d.MarginMode = pos.MarginMode
		return d
	}
	defaults, ok, err := a.prefs.TicketDefaults(ctx, inst.Symbol)
	if err != nil {
		a.log.Warn("ticket defaults load failed", zap.String("symbol", inst.Symbol), zap.Error(err))
	}
	if ok && defaults.Leverage > 0 {
		d.Leverage = defaults.Leverage
		if defaults.MarginMode != "" {
			d.MarginMode = defaults.MarginMode
		}
	}
	return d
}

// Ticket reads the quote and the latest account snapshot for d.
func (a *App) Ticket(ctx context.Context, d ticket.Draft) (Ticket, error) {
	quote, err := a.market.Quote(ctx, d.Instrument)
	if err != nil {
		return Ticket{}, err
	}
	snap, err := a.snapshot(ctx)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{Inputs: ticket.Inputs{
		Draft:    d,
		Quote:    quote,
		Funds:    ticket.FundsFor(snap, d.Instrument),
		Slippage: a.slippage,
	}}, nil
}

// Preview computes and validates t without touching the network.
func (a *App) Preview(t Ticket) (ticket.Stats, error) {
	stats, err := a.engine.Compute(t.Inputs)
	if err != nil {
		return ticket.Stats{}, err
	}
	return stats, ticket.Validate(t.Inputs, stats, a.cfg.Ticket.MinOrderUSD)
}

// OpenPlan builds the submission plan for t against the current position.
func (a *App) OpenPlan(t Ticket) (payload.Plan, error) {
	stats, err := a.Preview(t)
	if err != nil {
		return payload.Plan{}, err
	}
	d := t.Inputs.Draft
	in := payload.OpenInput{Draft: d, Stats: stats, Slippage: t.Inputs.Slippage}
	snap, _ := a.account.Snapshot()
	if pos, ok := snap.Position(d.Instrument.Symbol); ok {
		in.CurrentLeverage = pos.Leverage
		in.CurrentMode = pos.MarginMode
	} else if defaults, ok, _ := a.prefs.TicketDefaults(context.Background(), d.Instrument.Symbol); ok {
		in.CurrentLeverage = defaults.Leverage
		in.CurrentMode = defaults.MarginMode
	}
	return a.builder.BuildOpen(in)
}

func (a *App) OrderFlow(ctx context.Context, t Ticket) *txflow.Machine {
	d := t.Inputs.Draft
	return a.flow(ctx, txflow.ClassOrder, txflow.Action{
		Validate: func() error {
			_, err := a.OpenPlan(t)
			return err
		},
		Submit: func(ctx context.Context) error {
			plan, err := a.OpenPlan(t)
			if err != nil {
				return err
			}
			report, err := a.sequencer.Execute(ctx, plan)
			if report.Has(payload.StepLeverage) || report.Has(payload.StepPrimary) {
				a.saveDefaults(ctx, d)
			}
			return err
		},
	})
}

// ClosePlan flattens the open position on inst at the current quote.
func (a *App) ClosePlan(ctx context.Context, inst asset.Instrument) (payload.Plan, error) {
	pos, err := a.position(inst)
	if err != nil {
		return payload.Plan{}, err
	}
	quote, err := a.market.Quote(ctx, inst)
	if err != nil {
		return payload.Plan{}, err
	}
	return a.builder.BuildClose(payload.CloseInput{
		Instrument: inst,
		Size:       pos.Size,
		Quote:      quote,
		Slippage:   a.slippage,
	})
}

func (a *App) CloseFlow(ctx context.Context, inst asset.Instrument) *txflow.Machine {
	return a.flow(ctx, txflow.ClassClosePosition, txflow.Action{
		Validate: func() error {
			_, err := a.position(inst)
			return err
		},
		Submit: func(ctx context.Context) error {
			plan, err := a.ClosePlan(ctx, inst)
			if err != nil {
				return err
			}
			_, err = a.sequencer.Execute(ctx, plan)
			return err
		},
	})
}

// TpslPlan replaces the TP/SL attached to the position on inst. Empty tp or
// sl leaves that side without a conditional order.
func (a *App) TpslPlan(inst asset.Instrument, tp, sl string) (payload.Plan, error) {
	pos, err := a.position(inst)
	if err != nil {
		return payload.Plan{}, err
	}
	snap, _ := a.account.Snapshot()
	tpIDs, slIDs := snap.Protection(pos.Symbol)
	return a.builder.BuildTpslEdit(payload.EditInput{
		Instrument: inst,
		Side:       pos.Side(),
		Size:       pos.Size,
		Entry:      pos.EntryPrice,
		TakeProfit: tp,
		StopLoss:   sl,
		Existing:   append(tpIDs, slIDs...),
		Slippage:   a.slippage,
	})
}

func (a *App) TpslFlow(ctx context.Context, inst asset.Instrument, tp, sl string) *txflow.Machine {
	return a.flow(ctx, txflow.ClassTpsl, txflow.Action{
		Validate: func() error {
			_, err := a.TpslPlan(inst, tp, sl)
			return err
		},
		Submit: func(ctx context.Context) error {
			mu := a.positionLock(inst)
			mu.Lock()
			defer mu.Unlock()
			if _, err := a.account.Refresh(ctx); err != nil {
				a.log.Warn("account refresh before tpsl edit failed", zap.Error(err))
			}
			plan, err := a.TpslPlan(inst, tp, sl)
			if err != nil {
				return err
			}
			_, err = a.sequencer.Execute(ctx, plan)
			return err
		},
	})
}

func (a *App) WithdrawFlow(ctx context.Context, req transfer.WithdrawRequest) *txflow.Machine {
	return a.flow(ctx, txflow.ClassWithdraw, txflow.Action{
		Validate: func() error {
			snap, _ := a.account.Snapshot()
			return req.Validate(perpAvailable(snap), a.cfg.Ticket.WithdrawFee)
		},
		Submit: func(ctx context.Context) error {
			return a.transfers.Withdraw(ctx, req)
		},
	})
}

func (a *App) TransferFlow(ctx context.Context, req transfer.ClassTransferRequest) *txflow.Machine {
	return a.flow(ctx, txflow.ClassTransfer, txflow.Action{
		Validate: func() error {
			snap, _ := a.account.Snapshot()
			available := perpAvailable(snap)
			if req.ToPerp {
				available = snap.SpotBalance("USDC")
			}
			return req.Validate(available)
		},
		Submit: func(ctx context.Context) error {
			return a.transfers.ClassTransfer(ctx, req)
		},
	})
}

// StakeFlow delegates or undelegates. Delegated balances are not part of
// the account snapshot, so unstake amounts are checked by the exchange.
func (a *App) StakeFlow(ctx context.Context, req transfer.StakeRequest) *txflow.Machine {
	class := txflow.ClassStake
	if req.Unstake {
		class = txflow.ClassUnstake
	}
	return a.flow(ctx, class, txflow.Action{
		Validate: func() error {
			available := math.Inf(1)
			if !req.Unstake {
				snap, _ := a.account.Snapshot()
				available = snap.SpotBalance(stakeToken)
			}
			return req.Validate(available)
		},
		Submit: func(ctx context.Context) error {
			return a.transfers.Stake(ctx, req)
		},
	})
}

func (a *App) DepositFlow(ctx context.Context, req transfer.DepositRequest) *txflow.Machine {
	return a.flow(ctx, txflow.ClassDeposit, txflow.Action{
		Validate: req.Validate,
		Submit: func(ctx context.Context) error {
			bridge, err := a.bridge()
			if err != nil {
				return &order.SubmissionError{Step: "deposit", Err: err}
			}
			_, err = bridge.Deposit(ctx, req)
			return err
		},
	})
}

// SetSkipConfirmation persists the confirm-step preference for class.
func (a *App) SetSkipConfirmation(ctx context.Context, class txflow.ActionClass, skip bool) error {
	return a.prefs.SetSkipConfirmation(ctx, class, skip)
}

func (a *App) flow(ctx context.Context, class txflow.ActionClass, action txflow.Action) *txflow.Machine {
	return txflow.New(txflow.Config{
		Class:       class,
		Policy:      a.policies[class],
		Preferences: a.prefs,
		Scheduler:   a.scheduler,
		Refresh:     a.account.RefreshFunc(ctx),
		Log:         a.log,
		Metrics:     a.metricsFor(class),
	}, action)
}

func (a *App) snapshot(ctx context.Context) (account.Snapshot, error) {
	if snap, ok := a.account.Snapshot(); ok {
		return snap, nil
	}
	return a.account.Refresh(ctx)
}

func (a *App) position(inst asset.Instrument) (account.Position, error) {
	if !inst.IsPerp() {
		return account.Position{}, order.Invalid("instrument", "%s is not a perpetual", inst.Symbol)
	}
	snap, _ := a.account.Snapshot()
	pos, ok := snap.Position(inst.Symbol)
	if !ok {
		return account.Position{}, order.Invalid("size", "no open position on %s", inst.Symbol)
	}
	return pos, nil
}

func (a *App) saveDefaults(ctx context.Context, d ticket.Draft) {
	if !d.Instrument.IsPerp() {
		return
	}
	mode := d.MarginMode
	if mode == "" {
		mode = order.MarginCross
	}
	err := a.prefs.SaveTicketDefaults(ctx, d.Instrument.Symbol, prefs.TicketDefaults{
		Leverage:   d.Leverage,
		MarginMode: mode,
	})
	if err != nil {
		a.log.Warn("ticket defaults save failed", zap.String("symbol", strings.ToUpper(d.Instrument.Symbol)), zap.Error(err))
	}
}

func perpAvailable(snap account.Snapshot) float64 {
	return ticket.TradeableBalance(snap, "")
}
