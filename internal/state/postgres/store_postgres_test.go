package postgres

import (
	"context"
	"os"
	"testing"

	"hl-order-engine/internal/config"

	"go.uber.org/zap"
)

func TestSchemaName(t *testing.T) {
	if got, err := schemaName(""); err != nil || got != "public" {
		t.Fatalf("expected public default, got %q (%v)", got, err)
	}
	if got, err := schemaName(" tickets "); err != nil || got != "tickets" {
		t.Fatalf("expected trimmed schema, got %q (%v)", got, err)
	}
	if _, err := schemaName("bad; DROP TABLE kv"); err == nil {
		t.Fatalf("expected invalid schema to be rejected")
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.PostgresConfig{}, zap.NewNop()); err == nil {
		t.Fatalf("expected missing dsn to fail")
	}
}

// Runs against a live database when HL_TEST_POSTGRES_DSN is set.
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("HL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HL_TEST_POSTGRES_DSN not set")
	}
	store, err := New(config.PostgresConfig{DSN: dsn, Schema: "hl_order_engine_test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "prefs:skip:order", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "prefs:skip:order", "false"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	val, ok, err := store.Get(ctx, "prefs:skip:order")
	if err != nil || !ok || val != "false" {
		t.Fatalf("unexpected value %q ok=%v err=%v", val, ok, err)
	}
	listed, err := store.List(ctx, "prefs:skip:")
	if err != nil || listed["prefs:skip:order"] != "false" {
		t.Fatalf("unexpected list %v (%v)", listed, err)
	}
	if err := store.Delete(ctx, "prefs:skip:order"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "prefs:skip:order"); ok {
		t.Fatalf("expected key to be deleted")
	}
}
