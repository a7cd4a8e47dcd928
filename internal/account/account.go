package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"hl-order-engine/internal/hl/rest"
	"hl-order-engine/internal/hl/ws"
	"hl-order-engine/internal/order"

	"go.uber.org/zap"
)

const defaultRefreshTimeout = 10 * time.Second

// InfoClient is the /info REST surface the account reads from.
type InfoClient interface {
	Info(ctx context.Context, req any) (map[string]any, error)
	InfoAny(ctx context.Context, req any) (any, error)
}

type Account struct {
	rest InfoClient
	ws   *ws.Client
	log  *zap.Logger
	user string

	mu          sync.RWMutex
	snap        Snapshot
	hasSnapshot bool
	venues      []string
	refreshing  bool
}

func New(restClient InfoClient, wsClient *ws.Client, log *zap.Logger, user string) *Account {
	if log == nil {
		log = zap.NewNop()
	}
	return &Account{rest: restClient, ws: wsClient, log: log, user: strings.TrimSpace(user)}
}

// SetVenues adds alternate perp venues whose positions and open orders are
// merged into the snapshot. Margin figures always come from the default venue.
func (a *Account) SetVenues(venues []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.venues = append([]string(nil), venues...)
}

// Refresh rebuilds the snapshot from spot and perp clearinghouse state and
// the frontend open order list, which includes trigger orders.
func (a *Account) Refresh(ctx context.Context) (Snapshot, error) {
	if a.rest == nil {
		return Snapshot{}, errors.New("rest client is required")
	}
	if a.user == "" {
		return Snapshot{}, errors.New("account user is required")
	}
	spot, err := a.rest.Info(ctx, rest.InfoRequest{Type: "spotClearinghouseState", User: a.user})
	if err != nil {
		return Snapshot{}, fmt.Errorf("spotClearinghouseState: %w", err)
	}
	perp, err := a.rest.Info(ctx, rest.InfoRequest{Type: "clearinghouseState", User: a.user})
	if err != nil {
		return Snapshot{}, fmt.Errorf("clearinghouseState: %w", err)
	}
	orders, err := a.rest.InfoAny(ctx, rest.InfoRequest{Type: "frontendOpenOrders", User: a.user})
	if err != nil {
		return Snapshot{}, fmt.Errorf("frontendOpenOrders: %w", err)
	}

	snap := Snapshot{
		SpotBalances: parseBalances(spot),
		Positions:    parsePositions(perp),
		OpenOrders:   parseOpenOrders(orders),
	}
	applyMarginSummary(&snap, perp)

	a.mu.RLock()
	venues := append([]string(nil), a.venues...)
	a.mu.RUnlock()
	for _, venue := range venues {
		state, err := a.rest.Info(ctx, rest.InfoRequest{Type: "clearinghouseState", User: a.user, Dex: venue})
		if err != nil {
			a.log.Warn("venue clearinghouse state failed", zap.String("venue", venue), zap.Error(err))
			continue
		}
		for symbol, pos := range parsePositions(state) {
			snap.Positions[symbol] = pos
		}
		venueOrders, err := a.rest.InfoAny(ctx, rest.InfoRequest{Type: "frontendOpenOrders", User: a.user, Dex: venue})
		if err != nil {
			a.log.Warn("venue open orders failed", zap.String("venue", venue), zap.Error(err))
			continue
		}
		snap.OpenOrders = append(snap.OpenOrders, parseOpenOrders(venueOrders)...)
	}

	a.mu.Lock()
	a.snap = snap
	a.hasSnapshot = true
	a.mu.Unlock()
	a.log.Debug("account refreshed",
		zap.Int("positions", len(snap.Positions)),
		zap.Int("open_orders", len(snap.OpenOrders)),
	)
	return snap.Copy(), nil
}

// Snapshot returns a copy of the last refreshed state.
func (a *Account) Snapshot() (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Copy(), a.hasSnapshot
}

// RefreshFunc returns a fire-and-forget refresh. Overlapping calls collapse
// into the one already running.
func (a *Account) RefreshFunc(ctx context.Context) func() {
	return func() {
		a.mu.Lock()
		if a.refreshing {
			a.mu.Unlock()
			return
		}
		a.refreshing = true
		a.mu.Unlock()
		go func() {
			defer func() {
				a.mu.Lock()
				a.refreshing = false
				a.mu.Unlock()
			}()
			rctx, cancel := context.WithTimeout(ctx, defaultRefreshTimeout)
			defer cancel()
			if _, err := a.Refresh(rctx); err != nil {
				a.log.Warn("account refresh failed", zap.Error(err))
			}
		}()
	}
}

// Start subscribes to order and fill events and refreshes the snapshot
// whenever one arrives.
func (a *Account) Start(ctx context.Context) error {
	if a.ws == nil {
		return nil
	}
	if a.user == "" {
		return errors.New("account user is required for ws subscriptions")
	}
	if err := a.ws.Connect(ctx); err != nil {
		return err
	}
	for _, feed := range []string{"orderUpdates", "userFills"} {
		if err := a.ws.Subscribe(ctx, ws.Subscription{Type: feed, User: a.user}); err != nil {
			return err
		}
	}
	refresh := a.RefreshFunc(ctx)
	go func() {
		_ = a.ws.Run(ctx, func(raw json.RawMessage) {
			if a.handleMessage(raw) {
				refresh()
			}
		})
	}()
	return nil
}

// handleMessage reports whether raw is an account event that invalidates
// the snapshot.
func (a *Account) handleMessage(raw json.RawMessage) bool {
	msg, err := ws.DecodeMessage(raw)
	if err != nil {
		a.log.Debug("account ws decode failed", zap.Error(err))
		return false
	}
	switch msg.Channel {
	case "orderUpdates":
		return true
	case "userFills":
		var data map[string]any
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return false
		}
		snapshot, _ := boolFromAny(data["isSnapshot"])
		return !snapshot
	}
	return false
}

func parseBalances(payload map[string]any) map[string]float64 {
	balances := make(map[string]float64)
	if payload == nil {
		return balances
	}
	raw, ok := payload["balances"].([]any)
	if !ok {
		return balances
	}
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		token := stringFromAny(entry["coin"])
		if token == "" {
			token = stringFromAny(entry["token"])
		}
		if token == "" {
			continue
		}
		total, ok := floatFromAny(entry["total"])
		if !ok {
			continue
		}
		hold, _ := floatFromAny(entry["hold"])
		free := total - hold
		if free < 0 {
			free = 0
		}
		balances[token] = free
	}
	return balances
}

func applyMarginSummary(snap *Snapshot, payload map[string]any) {
	if payload == nil {
		return
	}
	summary, ok := payload["marginSummary"].(map[string]any)
	if !ok {
		summary, _ = payload["crossMarginSummary"].(map[string]any)
	}
	if summary != nil {
		snap.AccountValue, _ = floatFromAny(summary["accountValue"])
		snap.MarginUsed, _ = floatFromAny(summary["totalMarginUsed"])
	}
	if w, ok := floatFromAny(payload["withdrawable"]); ok {
		snap.Withdrawable = w
		snap.HasWithdrawable = true
	}
}

func parsePositions(payload map[string]any) map[string]Position {
	positions := make(map[string]Position)
	if payload == nil {
		return positions
	}
	raw, ok := payload["assetPositions"].([]any)
	if !ok {
		return positions
	}
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pos := entry
		if nested, ok := entry["position"].(map[string]any); ok {
			pos = nested
		}
		symbol := stringFromAny(pos["coin"])
		if symbol == "" {
			continue
		}
		size, _ := floatFromAny(pos["szi"])
		if size == 0 {
			continue
		}
		entryPx, _ := floatFromAny(pos["entryPx"])
		p := Position{Symbol: symbol, Size: size, EntryPrice: entryPx, Leverage: 1, MarginMode: order.MarginCross}
		if lev, ok := pos["leverage"].(map[string]any); ok {
			if v, ok := floatFromAny(lev["value"]); ok && v >= 1 {
				p.Leverage = int(v)
			}
			if stringFromAny(lev["type"]) == string(order.MarginIsolated) {
				p.MarginMode = order.MarginIsolated
			}
		}
		positions[symbol] = p
	}
	return positions
}

func parseOpenOrders(payload any) []OpenOrder {
	var raw []any
	switch v := payload.(type) {
	case []any:
		raw = v
	case map[string]any:
		raw, _ = v["openOrders"].([]any)
	}
	orders := make([]OpenOrder, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		oid := int64FromAny(entry["oid"])
		if oid == 0 {
			continue
		}
		o := OpenOrder{
			OrderID: oid,
			Cloid:   stringFromAny(entry["cloid"]),
			Symbol:  stringFromAny(entry["coin"]),
			Side:    sideFromWire(stringFromAny(entry["side"])),
		}
		o.Price, _ = floatFromAny(entry["limitPx"])
		o.Size, _ = floatFromAny(entry["sz"])
		o.ReduceOnly, _ = boolFromAny(entry["reduceOnly"])
		o.IsTrigger, _ = boolFromAny(entry["isTrigger"])
		if o.IsTrigger {
			o.TriggerPx, _ = floatFromAny(entry["triggerPx"])
			o.Trigger = triggerKind(stringFromAny(entry["orderType"]))
		}
		orders = append(orders, o)
	}
	return orders
}

func sideFromWire(side string) order.Side {
	switch strings.ToUpper(side) {
	case "B":
		return order.SideBuy
	case "A":
		return order.SideSell
	}
	return ""
}

// triggerKind maps the frontend order type label ("Take Profit Market",
// "Stop Limit", ...) to the protection it provides.
func triggerKind(orderType string) order.TriggerKind {
	lower := strings.ToLower(orderType)
	switch {
	case strings.HasPrefix(lower, "take profit"):
		return order.TriggerTakeProfit
	case strings.HasPrefix(lower, "stop"):
		return order.TriggerStopLoss
	}
	return ""
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', 0, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func boolFromAny(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(val))
		return parsed, err == nil
	default:
		return false, false
	}
}

func int64FromAny(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return i
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err == nil {
			return i
		}
	}
	return 0
}
