package state

import "context"

// Store is a flat string key/value store. Keys are namespaced by prefix
// ("prefs:", "exchange:nonce:").
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string]string, error)
	Close() error
}
