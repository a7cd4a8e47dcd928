package market

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"hl-order-engine/internal/asset"
)

// perpUniverse is one venue's perp listing. Mids holds the mid price of
// each market when the asset contexts carry one.
type perpUniverse struct {
	Instruments []asset.Instrument
	Mids        map[string]float64
}

func parsePerpUniverse(payload any, venue string) (perpUniverse, error) {
	universe, ctxs := extractUniverseAndCtxs(payload, "assetCtxs")
	if len(universe) == 0 {
		return perpUniverse{}, errors.New("perp meta missing universe")
	}
	out := perpUniverse{Mids: make(map[string]float64)}
	for i, entry := range universe {
		meta, ok := toMap(entry)
		if !ok {
			continue
		}
		name := stringFromMap(meta, "name", "coin", "symbol")
		if name == "" {
			continue
		}
		if delisted, _ := meta["isDelisted"].(bool); delisted {
			continue
		}
		out.Instruments = append(out.Instruments, asset.Instrument{
			Symbol:      name,
			Kind:        asset.KindPerp,
			Venue:       venue,
			Index:       intFromAny(meta["index"], i),
			SzDecimals:  intFromAny(meta["szDecimals"], 0),
			MaxLeverage: intFromAny(meta["maxLeverage"], 1),
		})
		if ctx, ok := indexedMap(ctxs, i); ok {
			if mid := floatFromMap(ctx, "midPx", "markPx"); mid > 0 {
				out.Mids[name] = mid
			}
		}
	}
	if len(out.Instruments) == 0 {
		return perpUniverse{}, errors.New("no perp markets parsed")
	}
	return out, nil
}

// spotMarket pairs a spot instrument with the coin name the exchange uses
// for it in mids and books ("@index", or the pair name for legacy pairs).
type spotMarket struct {
	Instrument asset.Instrument
	Coin       string
}

func parseSpotUniverse(payload any) ([]spotMarket, error) {
	universe, tokens := extractSpotUniverseAndTokens(payload)
	if len(universe) == 0 {
		return nil, errors.New("spot meta missing universe")
	}
	tokenMeta := tokenMetaByIndex(tokens)
	out := make([]spotMarket, 0, len(universe))
	for i, entry := range universe {
		meta, ok := toMap(entry)
		if !ok {
			continue
		}
		rawName := stringFromMap(meta, "name", "symbol", "coin")
		base, quote, baseDecimals, _ := baseQuoteFromTokens(meta, tokenMeta)
		name := spotSymbol(meta, base, quote)
		if name == "" {
			continue
		}
		coin := rawName
		if coin == "" {
			coin = name
		}
		if baseDecimals < 0 {
			baseDecimals = 0
		}
		out = append(out, spotMarket{
			Instrument: asset.Instrument{
				Symbol:      name,
				Kind:        asset.KindSpot,
				Index:       intFromAny(meta["index"], i),
				SzDecimals:  baseDecimals,
				MaxLeverage: 1,
				Base:        base,
				Quote:       quote,
			},
			Coin: coin,
		})
	}
	if len(out) == 0 {
		return nil, errors.New("no spot markets parsed")
	}
	return out, nil
}

// parsePerpDexs maps alternate venue names to their position in the dex
// list. Position 0 is the default venue and is reported as null.
func parsePerpDexs(payload any) map[string]int {
	venues := make(map[string]int)
	list, ok := toSlice(payload)
	if !ok {
		return venues
	}
	for i, entry := range list {
		meta, ok := toMap(entry)
		if !ok || i == 0 {
			continue
		}
		if name := stringFromMap(meta, "name"); name != "" {
			venues[name] = i
		}
	}
	return venues
}

// parseBook returns the best bid and ask of an l2Book response. A missing
// side is reported as 0.
func parseBook(payload map[string]any) (float64, float64) {
	levels, ok := toSlice(payload["levels"])
	if !ok || len(levels) < 2 {
		return 0, 0
	}
	return topOfSide(levels[0]), topOfSide(levels[1])
}

func topOfSide(side any) float64 {
	entries, ok := toSlice(side)
	if !ok || len(entries) == 0 {
		return 0
	}
	level, ok := toMap(entries[0])
	if !ok {
		return 0
	}
	return floatFromMap(level, "px")
}

// parseMids reads an allMids payload, either the flat /info map or the
// websocket {"mids": {...}} form.
func parseMids(payload map[string]any) map[string]float64 {
	raw := payload
	if nested, ok := toMap(payload["mids"]); ok {
		raw = nested
	}
	mids := make(map[string]float64, len(raw))
	for coin, v := range raw {
		if f, ok := floatFromAny(v); ok && f > 0 {
			mids[coin] = f
		}
	}
	return mids
}

func extractUniverseAndCtxs(payload any, ctxKey string) ([]any, []any) {
	if arr, ok := toSlice(payload); ok && len(arr) >= 2 {
		metaMap, _ := toMap(arr[0])
		if metaMap != nil {
			if universe, ok := toSlice(metaMap["universe"]); ok {
				ctxs, _ := toSlice(arr[1])
				return universe, ctxs
			}
		}
		if universe, ok := toSlice(arr[0]); ok {
			ctxs, _ := toSlice(arr[1])
			return universe, ctxs
		}
	}
	if metaMap, ok := toMap(payload); ok {
		universe, _ := toSlice(metaMap["universe"])
		ctxs, _ := toSlice(metaMap[ctxKey])
		if len(ctxs) == 0 {
			ctxs, _ = toSlice(metaMap["assetCtxs"])
		}
		return universe, ctxs
	}
	return nil, nil
}

func extractSpotUniverseAndTokens(payload any) ([]any, []any) {
	if arr, ok := toSlice(payload); ok && len(arr) >= 1 {
		metaMap, _ := toMap(arr[0])
		if metaMap != nil {
			universe, _ := toSlice(metaMap["universe"])
			tokens, _ := toSlice(metaMap["tokens"])
			return universe, tokens
		}
		if universe, ok := toSlice(arr[0]); ok {
			return universe, nil
		}
	}
	if metaMap, ok := toMap(payload); ok {
		universe, _ := toSlice(metaMap["universe"])
		tokens, _ := toSlice(metaMap["tokens"])
		return universe, tokens
	}
	return nil, nil
}

type tokenMeta struct {
	name       string
	szDecimals int
}

func tokenMetaByIndex(tokens []any) map[int]tokenMeta {
	if len(tokens) == 0 {
		return nil
	}
	names := make(map[int]tokenMeta, len(tokens))
	for i, item := range tokens {
		meta, ok := toMap(item)
		if !ok {
			continue
		}
		name := stringFromMap(meta, "name")
		if name == "" {
			continue
		}
		index := intFromAny(meta["index"], i)
		names[index] = tokenMeta{
			name:       name,
			szDecimals: intFromAny(meta["szDecimals"], -1),
		}
	}
	return names
}

func baseQuoteFromTokens(meta map[string]any, tokenNames map[int]tokenMeta) (string, string, int, int) {
	tokens, ok := toSlice(meta["tokens"])
	if !ok || len(tokens) < 2 || tokenNames == nil {
		return stringFromMap(meta, "base", "baseCoin"), stringFromMap(meta, "quote", "quoteCoin"), -1, -1
	}
	baseIdx := intFromAny(tokens[0], -1)
	quoteIdx := intFromAny(tokens[1], -1)
	base := tokenNames[baseIdx]
	quote := tokenNames[quoteIdx]
	return base.name, quote.name, base.szDecimals, quote.szDecimals
}

func spotSymbol(meta map[string]any, base, quote string) string {
	name := stringFromMap(meta, "name", "symbol", "coin")
	if name != "" && !strings.HasPrefix(name, "@") {
		return name
	}
	if base != "" && quote != "" {
		return base + "/" + quote
	}
	return strings.TrimSpace(name)
}

func indexedMap(items []any, idx int) (map[string]any, bool) {
	if idx < 0 || idx >= len(items) {
		return nil, false
	}
	return toMap(items[idx])
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatFromMap(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f
			}
		}
	}
	return 0
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
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

func intFromAny(v any, fallback int) int {
	if f, ok := floatFromAny(v); ok {
		return int(f)
	}
	return fallback
}
