package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/hl/rest"
	"hl-order-engine/internal/hl/ws"
	"hl-order-engine/internal/ticket"

	"go.uber.org/zap"
)

var ErrNoPrice = errors.New("no price for market")

// InfoClient is the /info REST surface market data reads from.
type InfoClient interface {
	Info(ctx context.Context, req any) (map[string]any, error)
	InfoAny(ctx context.Context, req any) (any, error)
}

type MarketData struct {
	rest InfoClient
	ws   *ws.Client
	log  *zap.Logger

	mu          sync.RWMutex
	table       *asset.Table
	coins       map[string]string
	mids        map[string]float64
	lastRefresh time.Time
	window      time.Duration
}

func New(restClient InfoClient, wsClient *ws.Client, log *zap.Logger) *MarketData {
	if log == nil {
		log = zap.NewNop()
	}
	return &MarketData{
		rest:   restClient,
		ws:     wsClient,
		log:    log,
		table:  asset.NewTable(nil, nil),
		coins:  make(map[string]string),
		mids:   make(map[string]float64),
		window: 30 * time.Second,
	}
}

// SetRefreshWindow bounds how often RefreshCatalog hits the REST API.
func (m *MarketData) SetRefreshWindow(window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = window
}

// Start loads the catalog and streams mids for every known venue.
func (m *MarketData) Start(ctx context.Context) error {
	if err := m.RefreshCatalog(ctx, true); err != nil {
		return err
	}
	if m.ws == nil {
		return nil
	}
	if err := m.ws.Connect(ctx); err != nil {
		return err
	}
	if err := m.ws.Subscribe(ctx, ws.Subscription{Type: "allMids"}); err != nil {
		return err
	}
	for _, venue := range m.Venues() {
		if err := m.ws.Subscribe(ctx, ws.Subscription{Type: "allMids", Dex: venue}); err != nil {
			m.log.Warn("venue mids subscribe failed", zap.String("venue", venue), zap.Error(err))
		}
	}
	go func() {
		_ = m.ws.Run(ctx, m.handleMessage)
	}()
	return nil
}

// RefreshCatalog rebuilds the instrument table from perpDexs, the default
// and alternate venue perp metas, and spotMeta. The table is swapped
// wholesale so resolvers never see a partial catalog.
func (m *MarketData) RefreshCatalog(ctx context.Context, force bool) error {
	if m.rest == nil {
		return errors.New("rest client is required")
	}
	if !force && !m.shouldRefresh() {
		return nil
	}
	dexResp, err := m.rest.InfoAny(ctx, rest.InfoRequest{Type: "perpDexs"})
	if err != nil {
		return fmt.Errorf("perpDexs: %w", err)
	}
	venues := parsePerpDexs(dexResp)

	var instruments []asset.Instrument
	coins := make(map[string]string)
	mids := make(map[string]float64)

	perpResp, err := m.rest.InfoAny(ctx, rest.InfoRequest{Type: "metaAndAssetCtxs"})
	if err != nil {
		return fmt.Errorf("metaAndAssetCtxs: %w", err)
	}
	perps, err := parsePerpUniverse(perpResp, "")
	if err != nil {
		return err
	}
	addPerps(perps, &instruments, coins, mids)

	for venue := range venues {
		resp, err := m.rest.InfoAny(ctx, rest.InfoRequest{Type: "meta", Dex: venue})
		if err != nil {
			m.log.Warn("venue meta failed", zap.String("venue", venue), zap.Error(err))
			continue
		}
		venuePerps, err := parsePerpUniverse(resp, venue)
		if err != nil {
			m.log.Warn("venue meta parse failed", zap.String("venue", venue), zap.Error(err))
			continue
		}
		addPerps(venuePerps, &instruments, coins, mids)
	}

	spotResp, err := m.rest.InfoAny(ctx, rest.InfoRequest{Type: "spotMeta"})
	if err != nil {
		return fmt.Errorf("spotMeta: %w", err)
	}
	spots, err := parseSpotUniverse(spotResp)
	if err != nil {
		return err
	}
	for _, spot := range spots {
		instruments = append(instruments, spot.Instrument)
		coins[coinKey(spot.Instrument)] = spot.Coin
	}

	table := asset.NewTable(instruments, venues)
	m.mu.Lock()
	m.table = table
	m.coins = coins
	for coin, mid := range mids {
		if _, ok := m.mids[coin]; !ok {
			m.mids[coin] = mid
		}
	}
	m.lastRefresh = time.Now().UTC()
	m.mu.Unlock()
	m.log.Info("market catalog refreshed", zap.Int("instruments", table.Len()), zap.Int("venues", len(venues)))
	return nil
}

func addPerps(u perpUniverse, instruments *[]asset.Instrument, coins map[string]string, mids map[string]float64) {
	for _, inst := range u.Instruments {
		*instruments = append(*instruments, inst)
		coins[coinKey(inst)] = inst.Symbol
	}
	for coin, mid := range u.Mids {
		mids[coin] = mid
	}
}

func (m *MarketData) shouldRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastRefresh.IsZero() {
		return true
	}
	return time.Since(m.lastRefresh) >= m.window
}

func (m *MarketData) Lookup(symbol string, kind asset.Kind, venue string) (asset.Instrument, bool) {
	m.mu.RLock()
	table := m.table
	m.mu.RUnlock()
	return table.Lookup(symbol, kind, venue)
}

func (m *MarketData) VenueIndex(venue string) (int, bool) {
	m.mu.RLock()
	table := m.table
	m.mu.RUnlock()
	return table.VenueIndex(venue)
}

func (m *MarketData) Instruments(kind asset.Kind) []asset.Instrument {
	m.mu.RLock()
	table := m.table
	m.mu.RUnlock()
	return table.Instruments(kind)
}

// Venues lists the alternate perp venues of the current catalog.
func (m *MarketData) Venues() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, inst := range m.Instruments(asset.KindPerp) {
		if inst.Venue == "" {
			continue
		}
		if _, ok := seen[inst.Venue]; ok {
			continue
		}
		seen[inst.Venue] = struct{}{}
		out = append(out, inst.Venue)
	}
	return out
}

// Instrument returns the catalog entry for a symbol, or an error wrapping
// asset.ErrMarketNotFound.
func (m *MarketData) Instrument(symbol string, kind asset.Kind, venue string) (asset.Instrument, error) {
	inst, ok := m.Lookup(symbol, kind, venue)
	if !ok {
		return asset.Instrument{}, fmt.Errorf("%s %s %q: %w", kind, symbol, venue, asset.ErrMarketNotFound)
	}
	return inst, nil
}

// Quote returns the mid and top of book for inst. The book is read fresh
// from l2Book; the mid comes from the stream, falling back to allMids.
func (m *MarketData) Quote(ctx context.Context, inst asset.Instrument) (ticket.Quote, error) {
	coin, ok := m.coin(inst)
	if !ok {
		return ticket.Quote{}, fmt.Errorf("%s: %w", inst, asset.ErrMarketNotFound)
	}
	var q ticket.Quote
	book, err := m.rest.Info(ctx, rest.InfoRequest{Type: "l2Book", Coin: coin})
	if err != nil {
		m.log.Debug("l2Book failed", zap.String("coin", coin), zap.Error(err))
	} else {
		q.BestBid, q.BestAsk = parseBook(book)
	}
	mid, err := m.Mid(ctx, inst)
	if err == nil {
		q.Mid = mid
	}
	if q.Mid <= 0 && !q.HasBook() {
		return ticket.Quote{}, fmt.Errorf("%s: %w", inst, ErrNoPrice)
	}
	return q, nil
}

func (m *MarketData) Mid(ctx context.Context, inst asset.Instrument) (float64, error) {
	coin, ok := m.coin(inst)
	if !ok {
		return 0, fmt.Errorf("%s: %w", inst, asset.ErrMarketNotFound)
	}
	m.mu.RLock()
	mid, ok := m.mids[coin]
	m.mu.RUnlock()
	if ok {
		return mid, nil
	}
	req := rest.InfoRequest{Type: "allMids"}
	if inst.IsPerp() {
		req.Dex = inst.Venue
	}
	resp, err := m.rest.Info(ctx, req)
	if err != nil {
		return 0, err
	}
	m.storeMids(parseMids(resp))
	m.mu.RLock()
	mid, ok = m.mids[coin]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s: %w", inst, ErrNoPrice)
	}
	return mid, nil
}

func (m *MarketData) coin(inst asset.Instrument) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coin, ok := m.coins[coinKey(inst)]
	return coin, ok
}

func coinKey(inst asset.Instrument) string {
	return strings.ToUpper(strings.TrimSpace(inst.Symbol)) + "|" + string(inst.Kind) + "|" + strings.ToLower(strings.TrimSpace(inst.Venue))
}

func (m *MarketData) storeMids(mids map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for coin, mid := range mids {
		m.mids[coin] = mid
	}
}

func (m *MarketData) handleMessage(raw json.RawMessage) {
	msg, err := ws.DecodeMessage(raw)
	if err != nil {
		m.log.Debug("ws decode error", zap.Error(err))
		return
	}
	if msg.Channel != "allMids" {
		return
	}
	var data map[string]any
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		m.log.Debug("allMids decode error", zap.Error(err))
		return
	}
	m.storeMids(parseMids(data))
}
