package exec

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"hl-order-engine/internal/hl/exchange"
	"hl-order-engine/internal/order"
	"hl-order-engine/internal/payload"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exchange is the signed /exchange client.
type Exchange interface {
	PlaceOrder(ctx context.Context, order exchange.OrderWire) (map[string]any, error)
	CancelOrders(ctx context.Context, cancels []exchange.CancelWire) (map[string]any, error)
	UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) (map[string]any, error)
}

// Executor adapts payload requests to the wire client. Every call is a
// single attempt; a repeated cloid returns the first result without
// resubmitting.
type Executor struct {
	exchange Exchange
	log      *zap.Logger
	newCloid func() string

	mu    sync.Mutex
	cache map[string]payload.Result
}

func New(ex Exchange, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		exchange: ex,
		log:      log,
		newCloid: NewCloid,
		cache:    make(map[string]payload.Result),
	}
}

// NewCloid returns a random 128-bit client order id in the exchange's hex
// form.
func NewCloid() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}

func (e *Executor) PlaceOrder(ctx context.Context, req payload.OrderRequest) (payload.Result, error) {
	if e.exchange == nil {
		return payload.Result{}, errors.New("exchange client is required")
	}
	if req.Cloid == "" {
		req.Cloid = e.newCloid()
	}
	e.mu.Lock()
	if res, ok := e.cache[req.Cloid]; ok {
		e.mu.Unlock()
		return res, nil
	}
	e.mu.Unlock()

	wire, err := toWire(req)
	if err != nil {
		return payload.Result{}, err
	}
	resp, err := e.exchange.PlaceOrder(ctx, wire)
	if err != nil {
		return payload.Result{}, err
	}
	statuses, err := exchange.OrderStatuses(resp)
	if err != nil {
		return payload.Result{}, err
	}
	st := statuses[0]
	res := payload.Result{OrderID: st.OrderID, FilledSize: st.TotalSize, AvgPrice: st.AvgPrice}
	switch {
	case st.Filled:
		res.Status = "filled"
	case st.Resting:
		res.Status = "resting"
	}
	e.log.Debug("order accepted",
		zap.String("cloid", req.Cloid),
		zap.Int("asset", req.Asset),
		zap.Int64("oid", res.OrderID),
		zap.String("status", res.Status),
	)
	e.mu.Lock()
	e.cache[req.Cloid] = res
	e.mu.Unlock()
	return res, nil
}

func (e *Executor) CancelOrders(ctx context.Context, cancels []payload.Cancel) error {
	if e.exchange == nil {
		return errors.New("exchange client is required")
	}
	wire := make([]exchange.CancelWire, 0, len(cancels))
	for _, c := range cancels {
		wire = append(wire, exchange.CancelWire{Asset: c.Asset, OrderID: c.OrderID})
	}
	resp, err := e.exchange.CancelOrders(ctx, wire)
	if err != nil {
		return err
	}
	return exchange.CheckResponse(resp)
}

func (e *Executor) UpdateLeverage(ctx context.Context, update payload.LeverageUpdate) error {
	if e.exchange == nil {
		return errors.New("exchange client is required")
	}
	resp, err := e.exchange.UpdateLeverage(ctx, update.Asset, update.IsCross, update.Leverage)
	if err != nil {
		return err
	}
	return exchange.CheckResponse(resp)
}

func toWire(req payload.OrderRequest) (exchange.OrderWire, error) {
	if !req.Side.Valid() {
		return exchange.OrderWire{}, fmt.Errorf("invalid side %q", req.Side)
	}
	if req.Trigger != nil {
		tpsl := exchange.TpslTakeProfit
		if req.Trigger.Kind == order.TriggerStopLoss {
			tpsl = exchange.TpslStopLoss
		}
		return exchange.TriggerOrderWire(req.Asset, req.Side.IsBuy(), req.Price, req.Size, req.ReduceOnly, req.Trigger.Price, req.Trigger.IsMarket, tpsl, req.Cloid)
	}
	tif := req.Tif
	if tif == "" {
		tif = order.TifGtc
	}
	return exchange.LimitOrderWire(req.Asset, req.Side.IsBuy(), req.Price, req.Size, req.ReduceOnly, exchange.Tif(tif), req.Cloid)
}
