package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"hl-order-engine/internal/order"
	"hl-order-engine/internal/state"
	"hl-order-engine/internal/txflow"

	"go.uber.org/zap"
)

const (
	skipPrefix     = "prefs:skip_confirmation:"
	defaultsPrefix = "prefs:ticket:"
)

// TicketDefaults are the last leverage and margin mode used on a market.
type TicketDefaults struct {
	Leverage   int              `json:"leverage"`
	MarginMode order.MarginMode `json:"margin_mode"`
}

// Store implements txflow.Preferences. Skip flags are cached in memory and
// written through to the kv store.
type Store struct {
	kv  state.Store
	log *zap.Logger

	mu   sync.RWMutex
	skip map[txflow.ActionClass]bool
}

func New(kv state.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: kv, log: log, skip: make(map[txflow.ActionClass]bool)}
}

// Load reads every stored skip flag. Unknown classes and unparsable values
// are ignored.
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	entries, err := s.kv.List(ctx, skipPrefix)
	if err != nil {
		return err
	}
	known := knownClasses()
	loaded := make(map[txflow.ActionClass]bool, len(entries))
	for key, raw := range entries {
		class := txflow.ActionClass(strings.TrimPrefix(key, skipPrefix))
		if _, ok := known[class]; !ok {
			s.log.Debug("ignoring preference for unknown class", zap.String("key", key))
			continue
		}
		skip, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			s.log.Warn("invalid stored preference", zap.String("key", key), zap.String("value", raw))
			continue
		}
		loaded[class] = skip
	}
	s.mu.Lock()
	s.skip = loaded
	s.mu.Unlock()
	return nil
}

func (s *Store) SkipConfirmation(class txflow.ActionClass) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skip[class]
}

func (s *Store) SetSkipConfirmation(ctx context.Context, class txflow.ActionClass, skip bool) error {
	if _, ok := knownClasses()[class]; !ok {
		return fmt.Errorf("unknown action class %q", class)
	}
	if s.kv != nil {
		if err := s.kv.Set(ctx, skipPrefix+string(class), strconv.FormatBool(skip)); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.skip[class] = skip
	s.mu.Unlock()
	s.log.Info("confirmation preference updated", zap.String("class", string(class)), zap.Bool("skip", skip))
	return nil
}

// All returns the skip flag of every action class.
func (s *Store) All() map[txflow.ActionClass]bool {
	out := make(map[txflow.ActionClass]bool)
	for _, class := range txflow.Classes() {
		out[class] = s.SkipConfirmation(class)
	}
	return out
}

func (s *Store) TicketDefaults(ctx context.Context, symbol string) (TicketDefaults, bool, error) {
	var d TicketDefaults
	ok, err := state.LoadJSON(ctx, s.kv, defaultsKey(symbol), &d)
	if err != nil || !ok {
		return TicketDefaults{}, false, err
	}
	return d, true, nil
}

func (s *Store) SaveTicketDefaults(ctx context.Context, symbol string, d TicketDefaults) error {
	if strings.TrimSpace(symbol) == "" {
		return errors.New("symbol is required")
	}
	if d.Leverage < 1 {
		return fmt.Errorf("leverage %d must be >= 1", d.Leverage)
	}
	return state.SaveJSON(ctx, s.kv, defaultsKey(symbol), d)
}

func defaultsKey(symbol string) string {
	return defaultsPrefix + strings.ToUpper(strings.TrimSpace(symbol))
}

func knownClasses() map[txflow.ActionClass]struct{} {
	out := make(map[txflow.ActionClass]struct{})
	for _, class := range txflow.Classes() {
		out[class] = struct{}{}
	}
	return out
}
