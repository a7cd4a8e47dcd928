package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/hl/rest"

	"go.uber.org/zap"
)

type infoServer struct {
	mu       sync.Mutex
	requests []rest.InfoRequest
	book     bool
}

func (s *infoServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rest.InfoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		book := s.book
		s.mu.Unlock()
		var body string
		switch req.Type {
		case "perpDexs":
			body = `[null,{"name":"xyz"}]`
		case "metaAndAssetCtxs":
			body = `[{"universe":[{"name":"BTC","szDecimals":5,"maxLeverage":40},{"name":"ETH","szDecimals":4,"maxLeverage":25}]},[{"midPx":"100"},{}]]`
		case "meta":
			body = `{"universe":[{"name":"xyz:GOLD","szDecimals":2,"maxLeverage":10}]}`
		case "spotMeta":
			body = `{"universe":[{"name":"@1","index":1,"tokens":[1,0]}],"tokens":[{"name":"USDC","index":0,"szDecimals":8},{"name":"HYPE","index":1,"szDecimals":2}]}`
		case "allMids":
			if req.Dex == "xyz" {
				body = `{"xyz:GOLD":"2400"}`
			} else {
				body = `{"BTC":"100","ETH":"2000","@1":"25"}`
			}
		case "l2Book":
			if book {
				body = `{"coin":"` + req.Coin + `","levels":[[{"px":"99","sz":"1","n":1}],[{"px":"101","sz":"1","n":1}]]}`
			} else {
				body = `{"coin":"` + req.Coin + `","levels":[[],[]]}`
			}
		default:
			http.Error(w, "unknown type", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(body))
	})
}

func newTestMarket(t *testing.T, book bool) (*MarketData, *infoServer) {
	t.Helper()
	info := &infoServer{book: book}
	srv := httptest.NewServer(info.handler(t))
	t.Cleanup(srv.Close)
	md := New(rest.New(srv.URL, time.Second, zap.NewNop()), nil, zap.NewNop())
	if err := md.RefreshCatalog(context.Background(), true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return md, info
}

func TestRefreshCatalogBuildsResolvableTable(t *testing.T) {
	md, _ := newTestMarket(t, false)
	resolver := asset.NewResolver(md)

	gold, err := md.Instrument("xyz:GOLD", asset.KindPerp, "xyz")
	if err != nil {
		t.Fatalf("lookup gold: %v", err)
	}
	id, err := resolver.Resolve(gold)
	if err != nil || id != 110000 {
		t.Fatalf("expected venue asset id 110000, got %d (%v)", id, err)
	}
	hype, err := md.Instrument("HYPE/USDC", asset.KindSpot, "")
	if err != nil {
		t.Fatalf("lookup spot: %v", err)
	}
	if id, _ := resolver.Resolve(hype); id != 10001 {
		t.Fatalf("expected spot asset id 10001, got %d", id)
	}
	eth, _ := md.Instrument("ETH", asset.KindPerp, "")
	if id, _ := resolver.Resolve(eth); id != 1 {
		t.Fatalf("expected perp asset id 1, got %d", id)
	}
	if _, err := md.Instrument("DOGE", asset.KindPerp, ""); !errors.Is(err, asset.ErrMarketNotFound) {
		t.Fatalf("expected ErrMarketNotFound, got %v", err)
	}
	if venues := md.Venues(); len(venues) != 1 || venues[0] != "xyz" {
		t.Fatalf("unexpected venues %v", venues)
	}
}

func TestRefreshCatalogRespectsWindow(t *testing.T) {
	md, info := newTestMarket(t, false)
	info.mu.Lock()
	before := len(info.requests)
	info.mu.Unlock()
	if err := md.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	info.mu.Lock()
	after := len(info.requests)
	info.mu.Unlock()
	if after != before {
		t.Fatalf("expected refresh inside window to be skipped, got %d new requests", after-before)
	}
}

func TestQuoteUsesBookAndMid(t *testing.T) {
	md, _ := newTestMarket(t, true)
	btc, _ := md.Instrument("BTC", asset.KindPerp, "")
	q, err := md.Quote(context.Background(), btc)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.BestBid != 99 || q.BestAsk != 101 || q.Mid != 100 {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestQuoteFallsBackToAllMids(t *testing.T) {
	md, info := newTestMarket(t, false)
	gold, _ := md.Instrument("xyz:GOLD", asset.KindPerp, "xyz")
	q, err := md.Quote(context.Background(), gold)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Mid != 2400 || q.HasBook() {
		t.Fatalf("unexpected quote %+v", q)
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	last := info.requests[len(info.requests)-1]
	if last.Type != "allMids" || last.Dex != "xyz" {
		t.Fatalf("expected venue-scoped allMids, got %+v", last)
	}
}

func TestHandleMessageUpdatesMids(t *testing.T) {
	md, _ := newTestMarket(t, false)
	md.handleMessage(json.RawMessage(`{"channel":"allMids","data":{"mids":{"@1":"30.5"}}}`))
	hype, _ := md.Instrument("HYPE/USDC", asset.KindSpot, "")
	mid, err := md.Mid(context.Background(), hype)
	if err != nil || mid != 30.5 {
		t.Fatalf("expected streamed mid 30.5, got %f (%v)", mid, err)
	}
}
