package asset

import "strings"

// Table is an immutable catalog snapshot. Build it with NewTable and replace
// it wholesale when the exchange metadata changes.
type Table struct {
	entries map[tableKey]Instrument
	venues  map[string]int
}

type tableKey struct {
	symbol string
	kind   Kind
	venue  string
}

func NewTable(instruments []Instrument, venues map[string]int) *Table {
	t := &Table{
		entries: make(map[tableKey]Instrument, len(instruments)),
		venues:  make(map[string]int, len(venues)),
	}
	for _, inst := range instruments {
		t.entries[keyFor(inst.Symbol, inst.Kind, inst.Venue)] = inst
	}
	for name, idx := range venues {
		t.venues[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	return t
}

func (t *Table) Lookup(symbol string, kind Kind, venue string) (Instrument, bool) {
	if t == nil {
		return Instrument{}, false
	}
	inst, ok := t.entries[keyFor(symbol, kind, venue)]
	return inst, ok
}

func (t *Table) VenueIndex(venue string) (int, bool) {
	if t == nil {
		return 0, false
	}
	idx, ok := t.venues[strings.ToLower(strings.TrimSpace(venue))]
	return idx, ok
}

// Instruments returns every entry of the given kind, in no particular order.
func (t *Table) Instruments(kind Kind) []Instrument {
	if t == nil {
		return nil
	}
	out := make([]Instrument, 0, len(t.entries))
	for _, inst := range t.entries {
		if inst.Kind == kind {
			out = append(out, inst)
		}
	}
	return out
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func keyFor(symbol string, kind Kind, venue string) tableKey {
	return tableKey{
		symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		kind:   kind,
		venue:  strings.ToLower(strings.TrimSpace(venue)),
	}
}
