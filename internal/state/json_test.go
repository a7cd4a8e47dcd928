package state

import (
	"context"
	"strings"
	"sync"
	"testing"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.items {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error {
	return nil
}

type ticketDefaults struct {
	Leverage int    `json:"leverage"`
	Mode     string `json:"mode"`
}

func TestJSONRoundTrip(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	if err := SaveJSON(ctx, store, "prefs:ticket:BTC", ticketDefaults{Leverage: 5, Mode: "cross"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	var got ticketDefaults
	ok, err := LoadJSON(ctx, store, "prefs:ticket:BTC", &got)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Leverage != 5 || got.Mode != "cross" {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestLoadJSONMissingAndNilStore(t *testing.T) {
	var got ticketDefaults
	if ok, err := LoadJSON(context.Background(), &memoryStore{}, "missing", &got); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if ok, err := LoadJSON(context.Background(), nil, "missing", &got); ok || err != nil {
		t.Fatalf("expected nil store to be empty, got ok=%v err=%v", ok, err)
	}
	if err := SaveJSON(context.Background(), nil, "k", got); err != nil {
		t.Fatalf("expected nil store save to be a no-op, got %v", err)
	}
}

func TestLoadJSONRejectsCorruptValue(t *testing.T) {
	store := &memoryStore{items: map[string]string{"k": "{"}}
	var got ticketDefaults
	if _, err := LoadJSON(context.Background(), store, "k", &got); err == nil {
		t.Fatalf("expected decode error")
	}
}
