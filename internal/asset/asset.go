package asset

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindPerp Kind = "perp"
	KindSpot Kind = "spot"
)

const (
	spotOffset      = 10000
	venueOffset     = 100000
	venueMultiplier = 10000
)

var ErrMarketNotFound = errors.New("market not found")

// Instrument identifies a tradable market. An empty Venue is the default
// venue; anything else names an alternate (builder-deployed) perp dex.
// Base and Quote are the token names of a spot pair.
type Instrument struct {
	Symbol      string
	Kind        Kind
	Venue       string
	Index       int
	SzDecimals  int
	MaxLeverage int
	Base        string
	Quote       string
}

func (i Instrument) IsPerp() bool {
	return i.Kind == KindPerp
}

func (i Instrument) String() string {
	if i.Venue == "" {
		return fmt.Sprintf("%s:%s", i.Kind, i.Symbol)
	}
	return fmt.Sprintf("%s:%s:%s", i.Kind, i.Venue, i.Symbol)
}

// Catalog is the instrument source the resolver consults. Lookup keys are
// the symbol, kind and venue; VenueIndex maps a venue name to its position
// in the exchange's perp dex list.
type Catalog interface {
	Lookup(symbol string, kind Kind, venue string) (Instrument, bool)
	VenueIndex(venue string) (int, bool)
}

type Resolver struct {
	catalog Catalog
}

func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the wire asset id for inst. The catalog is consulted on
// every call so a venue or index change is never masked by a stale value.
func (r *Resolver) Resolve(inst Instrument) (int, error) {
	if r == nil || r.catalog == nil {
		return 0, fmt.Errorf("%s: no catalog: %w", inst, ErrMarketNotFound)
	}
	symbol := strings.TrimSpace(inst.Symbol)
	venue := strings.TrimSpace(inst.Venue)
	if symbol == "" {
		return 0, fmt.Errorf("empty symbol: %w", ErrMarketNotFound)
	}
	known, ok := r.catalog.Lookup(symbol, inst.Kind, venue)
	if !ok {
		return 0, fmt.Errorf("%s: %w", inst, ErrMarketNotFound)
	}
	if known.Kind != inst.Kind || known.Index != inst.Index || !strings.EqualFold(known.Venue, venue) {
		return 0, fmt.Errorf("%s: stale instrument (catalog has %s index %d): %w", inst, known, known.Index, ErrMarketNotFound)
	}
	switch inst.Kind {
	case KindSpot:
		return spotOffset + known.Index, nil
	case KindPerp:
		if venue == "" {
			return known.Index, nil
		}
		venueIdx, ok := r.catalog.VenueIndex(venue)
		if !ok || venueIdx <= 0 {
			return 0, fmt.Errorf("%s: unknown venue %q: %w", inst, venue, ErrMarketNotFound)
		}
		return venueOffset + venueIdx*venueMultiplier + known.Index, nil
	default:
		return 0, fmt.Errorf("%s: unknown market kind %q: %w", inst, inst.Kind, ErrMarketNotFound)
	}
}

// IsSpotID reports whether a wire asset id is in the spot range.
func IsSpotID(id int) bool {
	return id >= spotOffset && id < venueOffset
}
